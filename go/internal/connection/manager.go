package connection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/flamingo/go/internal/protocol"
	"github.com/rs/zerolog/log"
)

var (
	ErrNotConnected = errors.New("not connected")
	ErrClosed       = errors.New("connection manager closed")
)

// State is the connectivity of the manager
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// EventKind discriminates connection events
type EventKind int

const (
	EventConnected EventKind = iota + 1
	EventFrame
	EventDisconnected
)

func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventFrame:
		return "frame"
	case EventDisconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is delivered in FIFO order on Manager.Events
type Event struct {
	Kind         EventKind
	ConnectionID string
	Endpoint     string

	// Envelope is set for EventFrame
	Envelope protocol.Envelope

	// Err is the cause of an EventDisconnected, nil after a local Disconnect
	Err error
}

// Stats are transport counters
type Stats struct {
	FramesReceived int64     `json:"framesReceived"`
	FramesDropped  int64     `json:"framesDropped"`
	FramesSent     int64     `json:"framesSent"`
	SendFailures   int64     `json:"sendFailures"`
	LastFrameAt    time.Time `json:"lastFrameAt,omitempty"`
}

// Option configures a Manager
type Option func(*Manager)

// WithClock sets the clock driving the keepalive ticker
func WithClock(clock clockwork.Clock) Option {
	return func(m *Manager) {
		m.clock = clock
	}
}

// WithConfig overrides DefaultConnectionConfig
func WithConfig(config ConnectionConfig) Option {
	return func(m *Manager) {
		m.config = config
	}
}

// Manager owns the single duplex connection of a session
type Manager struct {
	dialer Dialer
	config ConnectionConfig
	clock  clockwork.Clock

	mu     sync.Mutex
	state  State
	link   *link
	closed bool

	events chan Event
	ctx    context.Context
	cancel context.CancelFunc

	framesReceived atomic.Int64
	framesDropped  atomic.Int64
	framesSent     atomic.Int64
	sendFailures   atomic.Int64
	lastFrameAt    atomic.Int64
}

// link is one connection epoch
type link struct {
	id       string
	endpoint string
	socket   Socket
	done     chan struct{}
	once     sync.Once
}

func (l *link) shutdown() {
	l.once.Do(func() {
		close(l.done)
		l.socket.Close()
	})
}

// NewManager creates a disconnected manager
func NewManager(dialer Dialer, opts ...Option) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		dialer: dialer,
		config: DefaultConnectionConfig(),
		clock:  clockwork.NewRealClock(),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.config.EventBuffer <= 0 {
		m.config.EventBuffer = DefaultConnectionConfig().EventBuffer
	}
	m.events = make(chan Event, m.config.EventBuffer)
	return m
}

// Events returns the single FIFO stream of connectivity changes and inbound frames
func (m *Manager) Events() <-chan Event {
	return m.events
}

// State returns the current connectivity
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// ConnectionID returns the id of the current connection epoch, empty when none
func (m *Manager) ConnectionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.link == nil {
		return ""
	}
	return m.link.id
}

// Connect starts dialing endpoint. It is a no-op while connecting or connected.
// The outcome is reported on Events.
func (m *Manager) Connect(endpoint string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if m.state != StateDisconnected {
		log.Debug().Str("state", m.state.String()).Msg("connect ignored, connection already in progress")
		return nil
	}

	m.state = StateConnecting
	log.Info().Str("endpoint", endpoint).Msg("connecting")
	go m.dial(endpoint)
	return nil
}

func (m *Manager) dial(endpoint string) {
	socket, err := m.dialer.Dial(m.ctx, endpoint)

	m.mu.Lock()
	if err != nil {
		m.state = StateDisconnected
		m.mu.Unlock()
		log.Error().Err(err).Str("endpoint", endpoint).Msg("failed to connect")
		m.emit(Event{Kind: EventDisconnected, Endpoint: endpoint, Err: err})
		return
	}
	if m.closed {
		m.mu.Unlock()
		socket.Close()
		return
	}

	l := &link{
		id:       uuid.New().String(),
		endpoint: endpoint,
		socket:   socket,
		done:     make(chan struct{}),
	}
	m.link = l
	m.state = StateConnected
	m.mu.Unlock()

	log.Info().
		Str("connection_id", l.id).
		Str("endpoint", endpoint).
		Msg("connection established")

	// connected is queued before the read pump can queue any frame
	m.emit(Event{Kind: EventConnected, ConnectionID: l.id, Endpoint: endpoint})
	go m.readPump(l)
	go m.keepalive(l)
}

// Send writes one envelope. It fails immediately when not connected; nothing is queued.
func (m *Manager) Send(env protocol.Envelope) error {
	m.mu.Lock()
	l := m.link
	state := m.state
	m.mu.Unlock()

	if state != StateConnected || l == nil {
		m.sendFailures.Add(1)
		log.Error().Str("type", string(env.Type)).Str("state", state.String()).Msg("send without connection, message lost")
		return fmt.Errorf("send %s: %w", env.Type, ErrNotConnected)
	}

	data, err := env.Marshal()
	if err != nil {
		m.sendFailures.Add(1)
		return err
	}
	if err := l.socket.WriteMessage(data); err != nil {
		m.sendFailures.Add(1)
		log.Error().Err(err).Str("connection_id", l.id).Str("type", string(env.Type)).Msg("failed to write message")
		// the read pump reports the disconnect
		l.shutdown()
		return fmt.Errorf("send %s: %w", env.Type, err)
	}
	m.framesSent.Add(1)
	return nil
}

// Disconnect drops the current connection without a close handshake. The manager stays
// usable and reports EventDisconnected.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	l := m.link
	m.mu.Unlock()
	if l != nil {
		log.Info().Str("connection_id", l.id).Msg("disconnecting")
		l.shutdown()
	}
}

// Close drops the connection and stops the manager. Events stops receiving new values.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	l := m.link
	m.mu.Unlock()

	m.cancel()
	if l != nil {
		l.shutdown()
	}
	log.Info().Msg("connection manager closed")
	return nil
}

// Stats returns a copy of the transport counters
func (m *Manager) Stats() Stats {
	s := Stats{
		FramesReceived: m.framesReceived.Load(),
		FramesDropped:  m.framesDropped.Load(),
		FramesSent:     m.framesSent.Load(),
		SendFailures:   m.sendFailures.Load(),
	}
	if ns := m.lastFrameAt.Load(); ns > 0 {
		s.LastFrameAt = time.Unix(0, ns)
	}
	return s
}

func (m *Manager) readPump(l *link) {
	var cause error
	defer func() {
		m.drop(l, cause)
	}()

	for {
		data, err := l.socket.ReadMessage()
		if err != nil {
			select {
			case <-l.done:
				// closed locally
			default:
				cause = err
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Error().Err(err).Str("connection_id", l.id).Msg("unexpected websocket close error")
				} else {
					log.Info().Err(err).Str("connection_id", l.id).Msg("connection closed by remote")
				}
			}
			return
		}

		m.framesReceived.Add(1)
		m.lastFrameAt.Store(m.clock.Now().UnixNano())

		env, err := protocol.ParseEnvelope(data)
		if err != nil {
			m.framesDropped.Add(1)
			log.Warn().Err(err).Str("connection_id", l.id).Int("size", len(data)).Msg("dropping unparsable frame")
			continue
		}
		m.emit(Event{Kind: EventFrame, ConnectionID: l.id, Endpoint: l.endpoint, Envelope: env})
	}
}

func (m *Manager) keepalive(l *link) {
	if m.config.PingInterval <= 0 {
		return
	}
	ticker := m.clock.NewTicker(m.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.done:
			return
		case <-ticker.Chan():
			if err := l.socket.Ping(); err != nil {
				log.Error().Err(err).Str("connection_id", l.id).Msg("failed to send ping")
				l.shutdown()
				return
			}
		}
	}
}

// drop discards the handle of l and reports the disconnect exactly once
func (m *Manager) drop(l *link, cause error) {
	l.shutdown()

	m.mu.Lock()
	if m.link == l {
		m.link = nil
		m.state = StateDisconnected
	}
	m.mu.Unlock()

	log.Info().Str("connection_id", l.id).Msg("connection dropped")
	m.emit(Event{Kind: EventDisconnected, ConnectionID: l.id, Endpoint: l.endpoint, Err: cause})
}

// emit blocks until the event is queued or the manager is closed
func (m *Manager) emit(ev Event) {
	select {
	case m.events <- ev:
	case <-m.ctx.Done():
		log.Debug().Str("event", ev.Kind.String()).Msg("manager closed, dropping event")
	}
}
