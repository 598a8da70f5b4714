package session

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/mcdev12/flamingo/go/internal/connection"
	"github.com/mcdev12/flamingo/go/internal/game"
	"github.com/mcdev12/flamingo/go/internal/protocol"
	"github.com/mcdev12/flamingo/go/internal/snapshot"
	"github.com/mcdev12/flamingo/go/internal/stroke"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTransport struct {
	mu          sync.Mutex
	state       connection.State
	events      chan connection.Event
	sent        []protocol.Envelope
	endpoints   []string
	disconnects int
	closed      bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{events: make(chan connection.Event)}
}

func (f *fakeTransport) Connect(endpoint string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != connection.StateDisconnected {
		return nil
	}
	f.state = connection.StateConnecting
	f.endpoints = append(f.endpoints, endpoint)
	return nil
}

func (f *fakeTransport) Send(env protocol.Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != connection.StateConnected {
		return connection.ErrNotConnected
	}
	f.sent = append(f.sent, env)
	return nil
}

// Disconnect reports the drop asynchronously like the real manager does
func (f *fakeTransport) Disconnect() {
	f.mu.Lock()
	if f.state == connection.StateDisconnected {
		f.mu.Unlock()
		return
	}
	f.state = connection.StateDisconnected
	f.disconnects++
	f.mu.Unlock()
	go func() { f.events <- connection.Event{Kind: connection.EventDisconnected} }()
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.state = connection.StateDisconnected
	return nil
}

func (f *fakeTransport) Events() <-chan connection.Event { return f.events }

func (f *fakeTransport) State() connection.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeTransport) Stats() connection.Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return connection.Stats{FramesSent: int64(len(f.sent))}
}

func (f *fakeTransport) setState(st connection.State) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = st
}

func (f *fakeTransport) sentTypes() []protocol.MessageType {
	f.mu.Lock()
	defer f.mu.Unlock()
	types := make([]protocol.MessageType, 0, len(f.sent))
	for _, env := range f.sent {
		types = append(types, env.Type)
	}
	return types
}

func (f *fakeTransport) lastSent(t *testing.T) protocol.Outbound {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.sent)
	msg, err := protocol.DecodeOutbound(f.sent[len(f.sent)-1])
	require.NoError(t, err)
	return msg
}

func (f *fakeTransport) connectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.endpoints)
}

type harness struct {
	t         *testing.T
	session   *Session
	transport *fakeTransport
	canvas    *stroke.Recorder
	ctx       context.Context
}

func testEndpoint(roomID, playerName string) (string, error) {
	return "ws://flamingo.test/ws/" + roomID + "?playerName=" + playerName, nil
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)

	canvas := stroke.NewRecorder(stroke.Size{Width: stroke.DefaultWidth, Height: stroke.DefaultHeight})
	transport := newFakeTransport()
	if opts.Endpoint == nil {
		opts.Endpoint = testEndpoint
	}
	opts.Canvas = canvas

	s, err := New(ctx, transport, opts)
	require.NoError(t, err)
	go s.Run(ctx)
	t.Cleanup(func() { s.Close() })

	return &harness{t: t, session: s, transport: transport, canvas: canvas, ctx: ctx}
}

// emit hands ev to the loop and waits until it has been handled
func (h *harness) emit(ev connection.Event) {
	h.t.Helper()
	select {
	case h.transport.events <- ev:
	case <-h.ctx.Done():
		h.t.Fatal("session loop did not take the event")
	}
	require.NoError(h.t, h.session.do(h.ctx, "sync", func() error { return nil }))
}

func (h *harness) connected() {
	h.t.Helper()
	require.NoError(h.t, h.session.Connect(h.ctx))
	h.transport.setState(connection.StateConnected)
	h.emit(connection.Event{Kind: connection.EventConnected, ConnectionID: "c1"})
}

func (h *harness) frame(msg protocol.Inbound) {
	h.t.Helper()
	env, err := protocol.EncodeInbound(msg)
	require.NoError(h.t, err)
	h.emit(connection.Event{Kind: connection.EventFrame, Envelope: env})
}

func roster() []protocol.Player {
	return []protocol.Player{
		{ID: "p1", Name: "alice", IsHost: true},
		{ID: "p2", Name: "bob"},
	}
}

// inGame connects as localID and receives the lobby roster
func (h *harness) inGame(localID string) {
	h.t.Helper()
	h.connected()
	h.frame(protocol.GameInfo{YourID: localID, Players: roster(), HostID: "p1", GamePhase: "WaitingInLobby"})
}

func TestConnectSendsKnownName(t *testing.T) {
	h := newHarness(t, Options{RoomID: "k3x9q", PlayerName: "alice"})
	assert.Equal(t, StageConnecting, h.session.Status().Stage)

	h.connected()
	assert.Equal(t, []string{"ws://flamingo.test/ws/k3x9q?playerName=alice"}, h.transport.endpoints)
	assert.Equal(t, protocol.SetName{Name: "alice"}, h.transport.lastSent(t))
	assert.Equal(t, StageJoining, h.session.Status().Stage)

	h.frame(protocol.GameInfo{YourID: "p1", Players: roster(), HostID: "p1"})
	status := h.session.Status()
	assert.Equal(t, StageInGame, status.Stage)
	assert.True(t, status.Connected())
	assert.Equal(t, "p1", status.State.LocalID)
	assert.True(t, status.State.IsHost())
	assert.EqualValues(t, 1, status.Stats.Connects)
}

func TestConnectRequiresRoom(t *testing.T) {
	h := newHarness(t, Options{})
	err := h.session.Connect(h.ctx)
	assert.ErrorIs(t, err, ErrNotAllowed)
	assert.Zero(t, h.transport.connectCount())
}

func TestSetNamePolicy(t *testing.T) {
	h := newHarness(t, Options{RoomID: "k3x9q"})

	h.connected()
	assert.Equal(t, StageEnterName, h.session.Status().Stage)
	assert.Empty(t, h.transport.sentTypes())

	assert.ErrorIs(t, h.session.SetName(h.ctx, "   "), ErrNotAllowed)
	require.NoError(t, h.session.SetName(h.ctx, " alice "))
	assert.Equal(t, protocol.SetName{Name: "alice"}, h.transport.lastSent(t))
	assert.Equal(t, StageJoining, h.session.Status().Stage)
	assert.Equal(t, "alice", h.session.Status().SelfName)

	assert.ErrorIs(t, h.session.SetName(h.ctx, "bob"), ErrNotAllowed)
	assert.Len(t, h.transport.sentTypes(), 1)
}

func TestSetNameBeforeConnect(t *testing.T) {
	h := newHarness(t, Options{RoomID: "k3x9q"})
	require.NoError(t, h.session.SetName(h.ctx, "carol"))
	assert.Empty(t, h.transport.sentTypes())

	h.connected()
	assert.Equal(t, protocol.SetName{Name: "carol"}, h.transport.lastSent(t))
}

func TestStartGameGuards(t *testing.T) {
	t.Run("not host", func(t *testing.T) {
		h := newHarness(t, Options{RoomID: "k3x9q", PlayerName: "bob"})
		h.inGame("p2")
		assert.ErrorIs(t, h.session.StartGame(h.ctx), ErrNotAllowed)
	})

	t.Run("not enough players", func(t *testing.T) {
		h := newHarness(t, Options{RoomID: "k3x9q", PlayerName: "alice"})
		h.connected()
		h.frame(protocol.GameInfo{YourID: "p1", Players: roster()[:1], HostID: "p1"})
		assert.ErrorIs(t, h.session.StartGame(h.ctx), ErrNotAllowed)
	})

	t.Run("host in lobby", func(t *testing.T) {
		h := newHarness(t, Options{RoomID: "k3x9q", PlayerName: "alice"})
		h.inGame("p1")
		require.NoError(t, h.session.StartGame(h.ctx))
		assert.Equal(t, protocol.StartGame{}, h.transport.lastSent(t))
		assert.Equal(t, game.PhaseLobby, h.session.Status().State.Phase)
	})
}

func TestSelectWord(t *testing.T) {
	h := newHarness(t, Options{RoomID: "k3x9q", PlayerName: "alice"})
	h.inGame("p1")

	assert.ErrorIs(t, h.session.SelectWord(h.ctx, "apple"), ErrNotAllowed)

	h.frame(protocol.TurnSetup{CurrentDrawerID: "p1", WordChoices: []string{"apple", "pear"}, TurnEndTime: 1})
	assert.ErrorIs(t, h.session.SelectWord(h.ctx, "kiwi"), ErrNotAllowed)
	require.NoError(t, h.session.SelectWord(h.ctx, "pear"))
	assert.Equal(t, protocol.SelectRoundWord{Word: "pear"}, h.transport.lastSent(t))
	assert.Equal(t, game.PhaseWordChoice, h.session.Status().State.Phase)
}

func TestGuess(t *testing.T) {
	h := newHarness(t, Options{RoomID: "k3x9q", PlayerName: "bob"})
	h.inGame("p2")

	assert.ErrorIs(t, h.session.Guess(h.ctx, "apple"), ErrNotAllowed)

	h.frame(protocol.TurnStart{CurrentDrawerID: "p1", WordLength: 5, Players: roster(), TurnEndTime: 1})
	assert.ErrorIs(t, h.session.Guess(h.ctx, "  "), ErrNotAllowed)
	require.NoError(t, h.session.Guess(h.ctx, " apple "))
	assert.Equal(t, protocol.Guess{Guess: "apple"}, h.transport.lastSent(t))

	h.frame(protocol.CorrectGuess{PlayerID: "p2"})
	assert.ErrorIs(t, h.session.Guess(h.ctx, "apple"), ErrNotAllowed)
}

func TestDrawerCannotGuess(t *testing.T) {
	h := newHarness(t, Options{RoomID: "k3x9q", PlayerName: "alice"})
	h.inGame("p1")
	h.frame(protocol.TurnStart{CurrentDrawerID: "p1", Word: "apple", WordLength: 5, Players: roster(), TurnEndTime: 1})

	assert.ErrorIs(t, h.session.Guess(h.ctx, "apple"), ErrNotAllowed)
}

func TestLocalStrokeIsSent(t *testing.T) {
	h := newHarness(t, Options{RoomID: "k3x9q", PlayerName: "alice"})
	h.inGame("p1")
	h.frame(protocol.TurnStart{CurrentDrawerID: "p1", Word: "apple", WordLength: 5, Players: roster(), TurnEndTime: 1})

	rect := stroke.Rect{X: 10, Y: 20, Width: 400, Height: 300}
	require.NoError(t, h.session.PointerMove(h.ctx, stroke.Point{X: 50, Y: 50}, rect))
	require.NoError(t, h.session.PointerUp(h.ctx))
	assert.Len(t, h.transport.sentTypes(), 1, "idle pointer input sends nothing")

	require.NoError(t, h.session.PointerDown(h.ctx, stroke.Point{X: 110, Y: 120}, rect))
	start := h.transport.lastSent(t).(protocol.StrokeEvent)
	assert.Equal(t, protocol.StrokeStart, start.Kind)
	assert.Equal(t, 200.0, start.X)
	assert.Equal(t, 200.0, start.Y)

	require.NoError(t, h.session.PointerMove(h.ctx, stroke.Point{X: 210, Y: 170}, rect))
	draw := h.transport.lastSent(t).(protocol.StrokeEvent)
	assert.Equal(t, protocol.StrokeDraw, draw.Kind)
	assert.Equal(t, 400.0, draw.X)
	assert.Equal(t, 300.0, draw.Y)

	require.NoError(t, h.session.PointerUp(h.ctx))
	assert.Equal(t, protocol.StrokeEnd, h.transport.lastSent(t).(protocol.StrokeEvent).Kind)

	segments := h.canvas.Segments()
	require.Len(t, segments, 1)
	assert.Equal(t, stroke.Point{X: 200, Y: 200}, segments[0].From)
	assert.Equal(t, stroke.Point{X: 400, Y: 300}, segments[0].To)
}

func TestGuesserCannotDraw(t *testing.T) {
	h := newHarness(t, Options{RoomID: "k3x9q", PlayerName: "bob"})
	h.inGame("p2")
	h.frame(protocol.TurnStart{CurrentDrawerID: "p1", WordLength: 5, Players: roster(), TurnEndTime: 1})

	err := h.session.PointerDown(h.ctx, stroke.Point{X: 1, Y: 1}, stroke.Rect{Width: 800, Height: 600})
	assert.ErrorIs(t, err, ErrNotAllowed)
	assert.Empty(t, h.canvas.Segments())
}

func TestRemoteStrokeReplay(t *testing.T) {
	h := newHarness(t, Options{RoomID: "k3x9q", PlayerName: "bob"})
	h.inGame("p2")
	h.frame(protocol.TurnStart{CurrentDrawerID: "p1", WordLength: 5, Players: roster(), TurnEndTime: 1})
	clearsAtTurnStart := h.canvas.Clears()

	h.frame(protocol.NewStrokeStart(10, 10, "#ff0000", 5))
	h.frame(protocol.NewStrokeDraw(20, 20, "#ff0000", 5))
	h.frame(protocol.NewStrokeDraw(30, 25, "#ff0000", 5))
	h.frame(protocol.NewStrokeEnd())

	segments := h.canvas.Segments()
	require.Len(t, segments, 2)
	assert.Equal(t, stroke.Point{X: 20, Y: 20}, segments[1].From)
	assert.Equal(t, stroke.Style{Color: "#ff0000", LineWidth: 5}, segments[1].Style)

	h.frame(protocol.TurnStart{CurrentDrawerID: "p2", Word: "pear", WordLength: 4, Players: roster(), TurnEndTime: 2})
	assert.Empty(t, h.canvas.Segments())
	assert.Equal(t, clearsAtTurnStart+1, h.canvas.Clears())
}

func TestDisconnectResetsGame(t *testing.T) {
	h := newHarness(t, Options{RoomID: "k3x9q", PlayerName: "alice"})
	h.inGame("p1")
	require.Len(t, h.session.Status().State.Players, 2)

	h.transport.setState(connection.StateDisconnected)
	h.emit(connection.Event{Kind: connection.EventDisconnected, ConnectionID: "c1", Err: connection.ErrClosed})

	status := h.session.Status()
	assert.Equal(t, StageConnecting, status.Stage)
	assert.Equal(t, game.NewState().Phase, status.State.Phase)
	assert.Empty(t, status.State.Players)
	assert.Empty(t, status.State.LocalID)
	assert.EqualValues(t, 1, status.Stats.Disconnects)
	assert.NotEmpty(t, status.LastError)
	assert.Equal(t, 1, h.transport.connectCount(), "no automatic reconnect")

	assert.ErrorIs(t, h.session.Guess(h.ctx, "apple"), ErrNotAllowed)
}

func TestReconnect(t *testing.T) {
	h := newHarness(t, Options{RoomID: "k3x9q", PlayerName: "alice"})
	h.inGame("p1")

	require.NoError(t, h.session.Reconnect(h.ctx))
	require.Eventually(t, func() bool { return h.transport.connectCount() == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, h.transport.disconnects)

	// a second request while the dial is pending is a no-op
	require.NoError(t, h.session.Reconnect(h.ctx))
	assert.Equal(t, 2, h.transport.connectCount())

	h.transport.setState(connection.StateConnected)
	h.emit(connection.Event{Kind: connection.EventConnected, ConnectionID: "c2"})
	h.frame(protocol.GameInfo{YourID: "p9", Players: []protocol.Player{{ID: "p9", Name: "alice", IsHost: true}}})
	assert.Equal(t, "p9", h.session.Status().State.LocalID, "a new connection may assign a new identity")
}

func TestFramesThatCannotApply(t *testing.T) {
	h := newHarness(t, Options{RoomID: "k3x9q", PlayerName: "alice"})
	h.connected()

	h.emit(connection.Event{Kind: connection.EventFrame, Envelope: protocol.Envelope{Type: "confetti"}})
	h.emit(connection.Event{Kind: connection.EventFrame, Envelope: protocol.Envelope{
		Type:    protocol.TypeTurnStart,
		Payload: json.RawMessage(`{"currentDrawerId":7}`),
	}})
	h.frame(protocol.TurnEnd{CorrectWord: "apple"})

	stats := h.session.Status().Stats
	assert.EqualValues(t, 1, stats.UnknownKinds)
	assert.EqualValues(t, 1, stats.InvalidPayloads)
	assert.EqualValues(t, 1, stats.Rejected)
	assert.Equal(t, StageJoining, h.session.Status().Stage)
}

func TestPhaseChangeAck(t *testing.T) {
	h := newHarness(t, Options{RoomID: "k3x9q", PlayerName: "alice"})
	h.inGame("p1")

	h.frame(protocol.PhaseChangeAck{NewPhase: "RoundSetup"})
	assert.Equal(t, protocol.PhaseChangeAck{NewPhase: "RoundSetup"}, h.transport.lastSent(t))
	assert.Equal(t, "RoundSetup", h.session.Status().State.ServerPhase)

	assert.ErrorIs(t, h.session.AckPhase(h.ctx, ""), ErrNotAllowed)
	require.NoError(t, h.session.AckPhase(h.ctx, "RoundInProgress"))
	assert.Equal(t, protocol.PhaseChangeAck{NewPhase: "RoundInProgress"}, h.transport.lastSent(t))
}

func TestSubscribe(t *testing.T) {
	h := newHarness(t, Options{RoomID: "k3x9q", PlayerName: "alice"})

	var mu sync.Mutex
	var stages []Stage
	unsubscribe := h.session.Subscribe(func(st Status) {
		mu.Lock()
		defer mu.Unlock()
		stages = append(stages, st.Stage)
	})

	h.inGame("p1")
	unsubscribe()
	h.frame(protocol.Chat{SenderName: "bob", Message: "hi"})

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, stages, StageJoining)
	assert.Equal(t, StageInGame, stages[len(stages)-1])
	assert.Len(t, h.session.Status().State.Chat, 1)
}

func TestSnapshotRestore(t *testing.T) {
	store := snapshot.NewMemoryStore()

	h := newHarness(t, Options{SessionID: "s-1", RoomID: "k3x9q", PlayerName: "alice", HostLaunch: true, Store: store})
	h.inGame("p1")
	h.frame(protocol.Chat{SenderName: "bob", Message: "hello"})
	require.NoError(t, h.session.Close())

	snap, err := store.Load(context.Background(), "s-1")
	require.NoError(t, err)
	assert.Equal(t, "k3x9q", snap.RoomID)
	assert.Equal(t, "alice", snap.SelfName)
	assert.Equal(t, "p1", snap.SelfID)
	assert.True(t, snap.HostLaunch)
	assert.Len(t, snap.State.Players, 2)

	restored := newHarness(t, Options{SessionID: "s-1", Store: store})
	status := restored.session.Status()
	assert.Equal(t, "k3x9q", status.RoomID)
	assert.Equal(t, "alice", status.SelfName)
	assert.True(t, status.HostLaunch)
	assert.Equal(t, StageConnecting, status.Stage)
	assert.Len(t, status.State.Players, 2)
	assert.Equal(t, "hello", status.State.Chat[0].Message)

	// the restored identity gives way to the one assigned by the next roster
	restored.connected()
	restored.frame(protocol.GameInfo{YourID: "p2", Players: roster(), HostID: "p1"})
	assert.Equal(t, "p2", restored.session.Status().State.LocalID)

	require.NoError(t, restored.session.Forget(context.Background()))
	_, err = store.Load(context.Background(), "s-1")
	assert.ErrorIs(t, err, snapshot.ErrNotFound)
}

func TestSnapshotOfAnotherRoomIsIgnored(t *testing.T) {
	store := snapshot.NewMemoryStore()
	require.NoError(t, store.Save(context.Background(), snapshot.Snapshot{
		SessionID: "s-2",
		RoomID:    "other",
		SelfName:  "alice",
		State:     game.Record{Phase: game.PhaseGameEnd},
	}))

	h := newHarness(t, Options{SessionID: "s-2", RoomID: "k3x9q", Store: store})
	status := h.session.Status()
	assert.Equal(t, game.PhaseLobby, status.State.Phase)
	assert.Empty(t, status.SelfName)
}

func TestInvalidSnapshotIsDiscarded(t *testing.T) {
	store := snapshot.NewMemoryStore()
	require.NoError(t, store.Save(context.Background(), snapshot.Snapshot{
		SessionID: "s-3",
		RoomID:    "k3x9q",
		State:     game.Record{Phase: "Nowhere"},
	}))

	h := newHarness(t, Options{SessionID: "s-3", RoomID: "k3x9q", Store: store})
	assert.Equal(t, game.PhaseLobby, h.session.Status().State.Phase)
}

func TestActionsAfterStop(t *testing.T) {
	h := newHarness(t, Options{RoomID: "k3x9q"})
	require.NoError(t, h.session.Close())
	<-h.session.Done()

	assert.ErrorIs(t, h.session.Connect(h.ctx), ErrStopped)
	assert.True(t, h.transport.closed)
}

func TestJoinRoom(t *testing.T) {
	h := newHarness(t, Options{RoomID: "k3x9q", PlayerName: "alice"})
	assert.ErrorIs(t, h.session.JoinRoom(h.ctx, " ", false), ErrNotAllowed)

	require.NoError(t, h.session.JoinRoom(h.ctx, "zz9", true))
	status := h.session.Status()
	assert.Equal(t, "zz9", status.RoomID)
	assert.True(t, status.HostLaunch)
	assert.Equal(t, []string{"ws://flamingo.test/ws/zz9?playerName=alice"}, h.transport.endpoints)

	assert.ErrorIs(t, h.session.JoinRoom(h.ctx, "other", false), ErrNotAllowed)
}
