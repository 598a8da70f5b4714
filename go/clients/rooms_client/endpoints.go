package rooms_client

const (
	// API Endpoints
	CreateRoomEndpoint = "/create-room"
	RoomEndpoint       = "/%s"

	// Headers
	AcceptHeader = "Accept"
	JSONMimeType = "application/json"
)
