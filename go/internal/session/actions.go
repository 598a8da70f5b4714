package session

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/mcdev12/flamingo/go/internal/connection"
	"github.com/mcdev12/flamingo/go/internal/game"
	"github.com/mcdev12/flamingo/go/internal/protocol"
	"github.com/mcdev12/flamingo/go/internal/stroke"
	"github.com/rs/zerolog/log"
)

func notAllowed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotAllowed, fmt.Sprintf(format, args...))
}

// Connect dials the room endpoint. It is a no-op while a connection is in progress.
func (s *Session) Connect(ctx context.Context) error {
	return s.do(ctx, "connect", s.connect)
}

// JoinRoom switches to another room and connects to it. Only allowed while disconnected.
func (s *Session) JoinRoom(ctx context.Context, roomID string, hostLaunch bool) error {
	return s.do(ctx, "joinRoom", func() error {
		roomID = strings.TrimSpace(roomID)
		if roomID == "" {
			return notAllowed("empty room id")
		}
		if s.transport.State() != connection.StateDisconnected {
			return notAllowed("already connected to room %s", s.roomID)
		}
		if roomID != s.roomID {
			s.roomID = roomID
			s.hostLaunch = hostLaunch
			s.machine.Reset()
			s.dirty = true
		}
		return s.connect()
	})
}

// Reconnect drops the current connection and dials again once the drop is reported.
// There is no automatic reconnect; this is the explicit way back in.
func (s *Session) Reconnect(ctx context.Context) error {
	return s.do(ctx, "reconnect", func() error {
		switch s.transport.State() {
		case connection.StateDisconnected:
			return s.connect()
		case connection.StateConnecting:
			return nil
		default:
			s.reconnectPending = true
			s.transport.Disconnect()
			return nil
		}
	})
}

// SetName registers the local player's display name. Before the connection is up the
// name is kept and sent automatically once connected.
func (s *Session) SetName(ctx context.Context, name string) error {
	return s.do(ctx, "setName", func() error {
		name = strings.TrimSpace(name)
		if name == "" {
			return notAllowed("empty name")
		}

		switch s.stage {
		case StageConnecting:
			s.name = name
			s.dirty = true
			return nil
		case StageEnterName:
			s.name = name
			s.dirty = true
			return s.sendSetName()
		default:
			if s.name != "" {
				return notAllowed("name already set to %q", s.name)
			}
			s.name = name
			s.dirty = true
			return s.sendSetName()
		}
	})
}

// StartGame asks the server to start. Only the host may, from the lobby, with enough players.
func (s *Session) StartGame(ctx context.Context) error {
	return s.do(ctx, "startGame", func() error {
		st := s.machine.State()
		switch {
		case !st.IsHost():
			return notAllowed("only the host can start the game")
		case st.Phase != game.PhaseLobby:
			return notAllowed("game already running (%s)", st.Phase)
		case len(st.Players) < game.MinPlayers:
			return notAllowed("need at least %d players, have %d", game.MinPlayers, len(st.Players))
		}
		return s.send(protocol.StartGame{})
	})
}

// SelectWord picks one of the words offered to the local drawer
func (s *Session) SelectWord(ctx context.Context, word string) error {
	return s.do(ctx, "selectRoundWord", func() error {
		st := s.machine.State()
		if !st.IsDrawer() || st.Phase != game.PhaseWordChoice {
			return notAllowed("no word to choose")
		}
		if !slices.Contains(st.WordChoices, word) {
			return notAllowed("%q is not one of the offered words", word)
		}
		return s.send(protocol.SelectRoundWord{Word: word})
	})
}

// Guess submits a guess for the current word
func (s *Session) Guess(ctx context.Context, text string) error {
	return s.do(ctx, "guess", func() error {
		text = strings.TrimSpace(text)
		if text == "" {
			return notAllowed("empty guess")
		}
		if !s.machine.State().CanGuess() {
			return notAllowed("cannot guess right now")
		}
		return s.send(protocol.Guess{Guess: text})
	})
}

// AckPhase acknowledges a server phase change
func (s *Session) AckPhase(ctx context.Context, phase string) error {
	return s.do(ctx, "phaseChangeAck", func() error {
		if phase == "" {
			return notAllowed("empty phase")
		}
		return s.send(protocol.PhaseChangeAck{NewPhase: phase})
	})
}

// SetStyle changes the pen used for local strokes
func (s *Session) SetStyle(ctx context.Context, style stroke.Style) error {
	return s.do(ctx, "setStyle", func() error {
		s.engine.SetStyle(style)
		return nil
	})
}

// PointerDown begins a local stroke at a client-space position within rect
func (s *Session) PointerDown(ctx context.Context, client stroke.Point, rect stroke.Rect) error {
	return s.do(ctx, "pointerDown", func() error {
		ev, ok := s.engine.PointerDown(stroke.Normalize(client, rect, s.opts.CanvasSize))
		if !ok {
			return notAllowed("only the drawer can draw while guessing")
		}
		return s.send(ev)
	})
}

// PointerMove extends the local stroke; it is ignored when no stroke is in progress
func (s *Session) PointerMove(ctx context.Context, client stroke.Point, rect stroke.Rect) error {
	return s.do(ctx, "pointerMove", func() error {
		ev, ok := s.engine.PointerMove(stroke.Normalize(client, rect, s.opts.CanvasSize))
		if !ok {
			return nil
		}
		return s.send(ev)
	})
}

// PointerUp ends the local stroke. Leaving the canvas is reported the same way.
func (s *Session) PointerUp(ctx context.Context) error {
	return s.do(ctx, "pointerUp", func() error {
		ev, ok := s.engine.PointerUp()
		if !ok {
			return nil
		}
		if err := s.send(ev); err != nil {
			log.Warn().Err(err).Msg("failed to send stroke end")
			return err
		}
		return nil
	})
}
