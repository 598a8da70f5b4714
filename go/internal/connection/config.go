package connection

import "time"

// ConnectionConfig holds configuration for the websocket connection
type ConnectionConfig struct {
	WriteTimeout     time.Duration
	ReadTimeout      time.Duration
	PingInterval     time.Duration
	HandshakeTimeout time.Duration
	MaxMessageSize   int64
	ReadBufferSize   int
	WriteBufferSize  int

	// EventBuffer is the capacity of the Events channel
	EventBuffer int
}

// DefaultConnectionConfig returns default websocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:     10 * time.Second,
		ReadTimeout:      60 * time.Second,
		PingInterval:     30 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		MaxMessageSize:   64 * 1024, // roster snapshots of a full room fit comfortably
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		EventBuffer:      256,
	}
}
