package connection

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Socket is one open duplex transport. ReadMessage is called from a single goroutine;
// WriteMessage and Ping may be called concurrently.
type Socket interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Ping() error
	Close() error
}

// Dialer opens sockets
type Dialer interface {
	Dial(ctx context.Context, endpoint string) (Socket, error)
}

// WebsocketDialer dials websocket endpoints with gorilla/websocket
type WebsocketDialer struct {
	config ConnectionConfig
	dialer *websocket.Dialer
	header http.Header
}

// NewWebsocketDialer creates a dialer using the timeouts and buffer sizes of config
func NewWebsocketDialer(config ConnectionConfig) *WebsocketDialer {
	return &WebsocketDialer{
		config: config,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: config.HandshakeTimeout,
			ReadBufferSize:   config.ReadBufferSize,
			WriteBufferSize:  config.WriteBufferSize,
		},
		header: http.Header{},
	}
}

// SetHeader adds a header sent with every handshake
func (d *WebsocketDialer) SetHeader(key, value string) {
	d.header.Set(key, value)
}

func (d *WebsocketDialer) Dial(ctx context.Context, endpoint string) (Socket, error) {
	conn, resp, err := d.dialer.DialContext(ctx, endpoint, d.header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", endpoint, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}
	return newWebsocketSocket(conn, d.config), nil
}

type websocketSocket struct {
	conn   *websocket.Conn
	config ConnectionConfig

	// gorilla allows one concurrent writer
	writeMu sync.Mutex
}

func newWebsocketSocket(conn *websocket.Conn, config ConnectionConfig) *websocketSocket {
	s := &websocketSocket{conn: conn, config: config}

	if config.MaxMessageSize > 0 {
		conn.SetReadLimit(config.MaxMessageSize)
	}
	s.extendReadDeadline()
	conn.SetPongHandler(func(string) error {
		s.extendReadDeadline()
		return nil
	})
	return s
}

func (s *websocketSocket) extendReadDeadline() {
	if s.config.ReadTimeout > 0 {
		s.conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
	}
}

func (s *websocketSocket) ReadMessage() ([]byte, error) {
	for {
		kind, data, err := s.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		s.extendReadDeadline()
		if kind == websocket.TextMessage || kind == websocket.BinaryMessage {
			return data, nil
		}
	}
}

func (s *websocketSocket) WriteMessage(data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *websocketSocket) Ping() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	return s.conn.WriteMessage(websocket.PingMessage, nil)
}

// Close drops the connection without a close handshake
func (s *websocketSocket) Close() error {
	return s.conn.Close()
}
