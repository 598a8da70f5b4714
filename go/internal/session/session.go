package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/flamingo/go/internal/connection"
	"github.com/mcdev12/flamingo/go/internal/game"
	"github.com/mcdev12/flamingo/go/internal/protocol"
	"github.com/mcdev12/flamingo/go/internal/snapshot"
	"github.com/mcdev12/flamingo/go/internal/stroke"
	"github.com/rs/zerolog/log"
)

// Transport is the connection the session drives. *connection.Manager implements it.
type Transport interface {
	Connect(endpoint string) error
	Send(env protocol.Envelope) error
	Disconnect()
	Close() error
	Events() <-chan connection.Event
	State() connection.State
	Stats() connection.Stats
}

// EndpointFunc builds the websocket endpoint of a room
type EndpointFunc func(roomID, playerName string) (string, error)

type Options struct {
	SessionID  string
	RoomID     string
	PlayerName string
	HostLaunch bool
	Endpoint   EndpointFunc

	Canvas     stroke.Canvas
	CanvasSize stroke.Size
	Style      stroke.Style

	Store           snapshot.Store
	SaveTimeout     time.Duration
	MinSaveInterval time.Duration

	Strict bool
	Clock  clockwork.Clock
}

// Session binds the transport, the game state machine and the stroke engine in a single
// event loop. Every mutation happens on the goroutine running Run.
type Session struct {
	opts      Options
	transport Transport
	machine   *game.Machine
	engine    *stroke.Engine
	store     snapshot.Store
	clock     clockwork.Clock

	actions chan action
	done    chan struct{}
	started atomic.Bool

	cancelMu sync.Mutex
	cancel   context.CancelFunc

	// owned by the loop
	stage            Stage
	name             string
	roomID           string
	hostLaunch       bool
	stats            Stats
	lastError        string
	dirty            bool
	forceSave        bool
	lastSave         time.Time
	reconnectPending bool

	statusMu sync.RWMutex
	status   Status

	subMu       sync.Mutex
	nextSub     int
	subscribers []subscriber
}

type action struct {
	name   string
	fn     func() error
	result chan error
}

type subscriber struct {
	id int
	fn func(Status)
}

// New builds a session and restores the snapshot stored for its session id, if any
func New(ctx context.Context, transport Transport, opts Options) (*Session, error) {
	if transport == nil {
		return nil, errors.New("session requires a transport")
	}
	if opts.Endpoint == nil {
		return nil, errors.New("session requires an endpoint func")
	}
	if opts.SessionID == "" {
		opts.SessionID = uuid.NewString()
	}
	if opts.CanvasSize.Width <= 0 || opts.CanvasSize.Height <= 0 {
		opts.CanvasSize = stroke.Size{Width: stroke.DefaultWidth, Height: stroke.DefaultHeight}
	}
	if opts.Canvas == nil {
		opts.Canvas = stroke.NewRecorder(opts.CanvasSize)
	}
	if opts.Store == nil {
		opts.Store = snapshot.NopStore{}
	}
	if opts.SaveTimeout <= 0 {
		opts.SaveTimeout = 5 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}

	s := &Session{
		opts:       opts,
		transport:  transport,
		machine:    game.NewMachine(game.WithStrict(opts.Strict)),
		store:      opts.Store,
		clock:      opts.Clock,
		actions:    make(chan action),
		done:       make(chan struct{}),
		stage:      StageConnecting,
		name:       opts.PlayerName,
		roomID:     opts.RoomID,
		hostLaunch: opts.HostLaunch,
	}
	s.engine = stroke.NewEngine(opts.Canvas, opts.Style, func() bool {
		return s.machine.State().CanDraw()
	})
	s.machine.RegisterCanvasReset(s.engine.Reset)
	s.machine.Subscribe(func(game.State) {
		s.dirty = true
	})

	s.restore(ctx)
	s.dirty = false
	s.publish()
	return s, nil
}

func (s *Session) restore(ctx context.Context) {
	snap, err := s.store.Load(ctx, s.opts.SessionID)
	if err != nil {
		if !errors.Is(err, snapshot.ErrNotFound) {
			log.Warn().Err(err).Str("session_id", s.opts.SessionID).Msg("failed to load snapshot")
		}
		return
	}
	if s.roomID != "" && snap.RoomID != "" && snap.RoomID != s.roomID {
		log.Info().
			Str("session_id", s.opts.SessionID).
			Str("snapshot_room_id", snap.RoomID).
			Str("room_id", s.roomID).
			Msg("snapshot belongs to another room, ignoring")
		return
	}

	state, err := game.FromRecord(snap.State)
	if err != nil {
		log.Warn().Err(err).Str("session_id", s.opts.SessionID).Msg("discarding invalid snapshot")
		return
	}
	s.machine.Restore(state)
	if s.name == "" {
		s.name = snap.SelfName
	}
	if s.roomID == "" {
		s.roomID = snap.RoomID
	}
	s.hostLaunch = s.hostLaunch || snap.HostLaunch

	log.Info().
		Str("session_id", s.opts.SessionID).
		Str("room_id", s.roomID).
		Str("phase", string(state.Phase)).
		Msg("restored session snapshot")
}

// ID returns the session id used as snapshot key
func (s *Session) ID() string {
	return s.opts.SessionID
}

// Run processes connection events and actions in FIFO order until ctx is cancelled or
// Close is called. Stopping closes the transport without a close handshake.
func (s *Session) Run(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return errors.New("session already running")
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancelMu.Lock()
	s.cancel = cancel
	s.cancelMu.Unlock()
	defer close(s.done)
	defer cancel()

	log.Info().Str("session_id", s.opts.SessionID).Str("room_id", s.roomID).Msg("session started")
	events := s.transport.Events()
	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return nil
		case ev := <-events:
			s.handleEvent(ev)
		case a := <-s.actions:
			err := a.fn()
			if err != nil {
				log.Debug().Err(err).Str("action", a.name).Msg("action failed")
			}
			a.result <- err
		}
		s.commit()
	}
}

// Close stops the loop and the transport and waits for Run to return
func (s *Session) Close() error {
	s.cancelMu.Lock()
	cancel := s.cancel
	s.cancelMu.Unlock()

	if cancel == nil {
		return s.transport.Close()
	}
	cancel()
	<-s.done
	return nil
}

// Done is closed once Run has returned
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Forget deletes the persisted snapshot of this session
func (s *Session) Forget(ctx context.Context) error {
	return s.store.Delete(ctx, s.opts.SessionID)
}

func (s *Session) shutdown() {
	if err := s.transport.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to close transport")
	}
	s.save()
	log.Info().Str("session_id", s.opts.SessionID).Msg("session stopped")
}

func (s *Session) do(ctx context.Context, name string, fn func() error) error {
	a := action{name: name, fn: fn, result: make(chan error, 1)}
	select {
	case s.actions <- a:
	case <-s.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-a.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) handleEvent(ev connection.Event) {
	switch ev.Kind {
	case connection.EventConnected:
		s.stats.Connects++
		s.lastError = ""
		s.machine.BeginEpoch()
		s.setStage(StageEnterName)
		if s.name != "" {
			if err := s.sendSetName(); err != nil {
				log.Warn().Err(err).Msg("failed to send player name")
			}
		}

	case connection.EventDisconnected:
		s.stats.Disconnects++
		if ev.Err != nil {
			s.lastError = ev.Err.Error()
		}
		s.machine.Reset()
		s.engine.Reset()
		s.setStage(StageConnecting)
		log.Info().
			Str("session_id", s.opts.SessionID).
			Str("connection_id", ev.ConnectionID).
			Msg("disconnected, game state reset")

		if s.reconnectPending {
			s.reconnectPending = false
			if err := s.connect(); err != nil {
				log.Error().Err(err).Msg("failed to reconnect")
			}
		}

	case connection.EventFrame:
		s.handleFrame(ev.Envelope)
	}
}

func (s *Session) handleFrame(env protocol.Envelope) {
	msg, err := protocol.Decode(env)
	if err != nil {
		if errors.Is(err, protocol.ErrUnknownMessageType) {
			s.stats.UnknownKinds++
			log.Warn().Str("type", string(env.Type)).Msg("ignoring unknown message type")
		} else {
			s.stats.InvalidPayloads++
			log.Warn().Err(err).Str("type", string(env.Type)).Msg("dropping invalid message")
		}
		return
	}

	effects, err := s.machine.Apply(msg)
	if err != nil {
		s.stats.Rejected++
		s.lastError = err.Error()
		return
	}

	if _, ok := msg.(protocol.GameInfo); ok {
		s.setStage(StageInGame)
	}
	for _, reply := range effects.Replies {
		if err := s.send(reply); err != nil {
			log.Warn().Err(err).Str("type", string(reply.Type())).Msg("failed to send reply")
		}
	}
	if effects.StrokeReceived {
		if ev, ok := msg.(protocol.StrokeEvent); ok && !s.machine.State().IsDrawer() {
			s.engine.Replay(ev)
		}
	}
}

func (s *Session) setStage(stage Stage) {
	if s.stage == stage {
		return
	}
	log.Info().Str("from", string(s.stage)).Str("to", string(stage)).Msg("session stage changed")
	s.stage = stage
	s.dirty = true
	s.forceSave = true
}

func (s *Session) send(msg protocol.Outbound) error {
	env, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	if err := s.transport.Send(env); err != nil {
		s.lastError = err.Error()
		s.dirty = true
		return err
	}
	return nil
}

func (s *Session) sendSetName() error {
	if err := s.send(protocol.SetName{Name: s.name}); err != nil {
		return err
	}
	if s.stage == StageEnterName {
		s.setStage(StageJoining)
	}
	return nil
}

func (s *Session) connect() error {
	if s.roomID == "" {
		return fmt.Errorf("%w: no room to join", ErrNotAllowed)
	}
	endpoint, err := s.opts.Endpoint(s.roomID, s.name)
	if err != nil {
		return err
	}
	return s.transport.Connect(endpoint)
}

// commit publishes and persists once per loop iteration when something changed
func (s *Session) commit() {
	if !s.dirty {
		return
	}
	s.dirty = false
	s.publish()

	if !s.forceSave && s.opts.MinSaveInterval > 0 && s.clock.Since(s.lastSave) < s.opts.MinSaveInterval {
		return
	}
	s.save()
}

func (s *Session) save() {
	st := s.machine.State()
	snap := snapshot.Snapshot{
		SessionID:  s.opts.SessionID,
		SelfName:   s.name,
		SelfID:     st.LocalID,
		RoomID:     s.roomID,
		HostLaunch: s.hostLaunch,
		State:      st.Record(),
		SavedAt:    s.clock.Now(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.opts.SaveTimeout)
	defer cancel()
	if err := s.store.Save(ctx, snap); err != nil {
		log.Warn().Err(err).Str("session_id", s.opts.SessionID).Msg("failed to save snapshot")
	}
	s.lastSave = s.clock.Now()
	s.forceSave = false
}

func (s *Session) publish() {
	stats := s.stats
	stats.Stats = s.transport.Stats()

	status := Status{
		SessionID:  s.opts.SessionID,
		RoomID:     s.roomID,
		SelfName:   s.name,
		HostLaunch: s.hostLaunch,
		Stage:      s.stage,
		Connection: s.transport.State(),
		Stats:      stats,
		State:      s.machine.State(),
		LastError:  s.lastError,
		UpdatedAt:  s.clock.Now(),
	}

	s.statusMu.Lock()
	s.status = status
	s.statusMu.Unlock()

	s.subMu.Lock()
	subs := append([]subscriber(nil), s.subscribers...)
	s.subMu.Unlock()
	for _, sub := range subs {
		sub.fn(status)
	}
}

// Status returns the last published status
func (s *Session) Status() Status {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	st := s.status
	st.State = st.State.Clone()
	return st
}

// Subscribe registers fn to receive every published status. Callbacks run on the session
// loop and must not call session actions synchronously.
func (s *Session) Subscribe(fn func(Status)) func() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.nextSub++
	id := s.nextSub
	s.subscribers = append(s.subscribers, subscriber{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			defer s.subMu.Unlock()
			for i, sub := range s.subscribers {
				if sub.id == id {
					s.subscribers = append(s.subscribers[:i:i], s.subscribers[i+1:]...)
					return
				}
			}
		})
	}
}
