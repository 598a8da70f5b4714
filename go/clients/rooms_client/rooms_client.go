package rooms_client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/mcdev12/flamingo/go/clients"
	"github.com/rs/zerolog/log"
)

// Room is a game room on the server
type Room struct {
	ID string `json:"roomId"`
}

type RoomsClient struct {
	*clients.BaseClient
}

func NewRoomsClient(serverURL string) *RoomsClient {
	client := &RoomsClient{
		BaseClient: clients.NewBaseClient(serverURL),
	}

	client.SetHeader(AcceptHeader, JSONMimeType)

	return client
}

// CreateRoom asks the server for a new room
func (c *RoomsClient) CreateRoom(ctx context.Context) (Room, error) {
	data, err := c.Post(ctx, CreateRoomEndpoint, nil)
	if err != nil {
		return Room{}, fmt.Errorf("create room: %w", err)
	}

	var room Room
	if err := json.Unmarshal(data, &room); err != nil {
		return Room{}, fmt.Errorf("decode create room response: %w", err)
	}
	if room.ID == "" {
		return Room{}, errors.New("create room: response has no roomId")
	}

	log.Info().Str("room_id", room.ID).Msg("created room")
	return room, nil
}

// RoomExists reports whether the server knows the room
func (c *RoomsClient) RoomExists(ctx context.Context, roomID string) (bool, error) {
	if roomID == "" {
		return false, nil
	}

	_, err := c.Get(ctx, fmt.Sprintf(RoomEndpoint, url.PathEscape(roomID)))
	if err == nil {
		return true, nil
	}

	var statusErr *clients.StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
		return false, nil
	}
	return false, fmt.Errorf("check room %s: %w", roomID, err)
}
