package game

import (
	"fmt"

	"github.com/mcdev12/flamingo/go/internal/protocol"
	"github.com/rs/zerolog/log"
)

// Effects are the side effects a transition asks the owner of the state to perform
type Effects struct {
	// ResetCanvas is set at the start of every new turn
	ResetCanvas bool
	// StrokeReceived is set when the last-stroke slot was overwritten
	StrokeReceived bool
	// Replies are outbound messages the transition requires, e.g. phase change acknowledgements
	Replies []protocol.Outbound
}

// Reduce applies one inbound message to a copy of state and returns the next state.
// On error the input state is returned unchanged.
func Reduce(state State, msg protocol.Inbound) (State, Effects, error) {
	next := state.Clone()
	r := &reducer{state: &next}
	if err := msg.Accept(r); err != nil {
		return state, Effects{}, err
	}
	if err := next.Validate(); err != nil {
		return state, Effects{}, fmt.Errorf("after %s: %w", msg.Type(), err)
	}
	return next, r.effects, nil
}

// Reset returns the empty state used after a disconnect
func Reset() State {
	return NewState()
}

type reducer struct {
	state   *State
	effects Effects
}

var _ protocol.InboundHandler = (*reducer)(nil)

func (r *reducer) requireIdentity(t protocol.MessageType) error {
	if r.state.LocalID == "" {
		return fmt.Errorf("%w: %s received before any roster snapshot", ErrInvariantViolation, t)
	}
	return nil
}

func (r *reducer) HandleGameInfo(msg protocol.GameInfo) error {
	s := r.state
	if s.identityLocked && s.LocalID != msg.YourID {
		return fmt.Errorf("%w: local identity already set to %q, got %q", ErrInvariantViolation, s.LocalID, msg.YourID)
	}
	s.LocalID = msg.YourID
	s.identityLocked = true

	s.Players = convertPlayers(msg.Players)
	s.setHost(msg.HostID)

	s.Phase = phaseFromServer(msg.GamePhase, msg.IsGameActive, msg.CurrentDrawerID)
	if inTurn(s.Phase) && msg.CurrentDrawerID != "" {
		s.CurrentDrawerID = msg.CurrentDrawerID
		s.TurnEndTime = fromMillis(msg.TurnEndTime)
	} else {
		s.CurrentDrawerID = ""
		s.TurnEndTime = fromMillis(0)
	}

	s.Turn = nil
	if s.Phase == PhaseGuessing && s.CurrentDrawerID != "" {
		s.Turn = viewFor(s.LocalID, s.CurrentDrawerID, msg.Word, msg.WordLength)
	}
	if s.Phase != PhaseWordChoice || !s.IsDrawer() {
		s.WordChoices = nil
	}
	return nil
}

func (r *reducer) HandlePlayerUpdate(msg protocol.PlayerUpdate) error {
	s := r.state
	s.Players = convertPlayers(msg.Players)
	s.setHost(msg.HostID)
	return nil
}

func (r *reducer) HandleTurnSetup(msg protocol.TurnSetup) error {
	if err := r.requireIdentity(msg.Type()); err != nil {
		return err
	}
	s := r.state
	if len(msg.Players) > 0 {
		s.Players = convertPlayers(msg.Players)
		s.setHost(s.HostID)
	}

	s.Phase = PhaseWordChoice
	s.CurrentDrawerID = msg.CurrentDrawerID
	s.TurnEndTime = fromMillis(msg.TurnEndTime)
	s.Turn = nil
	s.RevealedWord = ""
	s.WordChoices = nil
	if s.IsDrawer() {
		s.WordChoices = append([]string(nil), msg.WordChoices...)
	}
	return nil
}

func (r *reducer) HandleTurnStart(msg protocol.TurnStart) error {
	if err := r.requireIdentity(msg.Type()); err != nil {
		return err
	}
	s := r.state
	if len(msg.Players) > 0 {
		s.Players = convertPlayers(msg.Players)
	}
	s.resetGuesses()
	s.setHost(s.HostID)

	s.Phase = PhaseGuessing
	s.CurrentDrawerID = msg.CurrentDrawerID
	s.TurnEndTime = fromMillis(msg.TurnEndTime)
	s.WordChoices = nil
	s.LastStroke = nil
	s.Turn = viewFor(s.LocalID, msg.CurrentDrawerID, msg.Word, msg.WordLength)
	if s.IsDrawer() && msg.Word == "" {
		log.Warn().Str("drawer_id", msg.CurrentDrawerID).Msg("turn start for local drawer carries no word")
	}

	r.effects.ResetCanvas = true
	return nil
}

func (r *reducer) HandleTurnEnd(msg protocol.TurnEnd) error {
	if err := r.requireIdentity(msg.Type()); err != nil {
		return err
	}
	s := r.state
	if len(msg.Players) > 0 {
		s.Players = convertPlayers(msg.Players)
	}
	s.resetGuesses()
	s.setHost(s.HostID)

	s.Phase = PhaseBetweenTurns
	s.clearTurn()
	s.RevealedWord = msg.CorrectWord
	return nil
}

func (r *reducer) HandleChat(msg protocol.Chat) error {
	r.state.appendChat(ChatMessage{SenderName: msg.SenderName, Message: msg.Message, IsSystem: msg.IsSystem})
	return nil
}

func (r *reducer) HandleDrawEvent(msg protocol.StrokeEvent) error {
	ev := msg
	r.state.LastStroke = &ev
	r.effects.StrokeReceived = true
	return nil
}

func (r *reducer) HandleCorrectGuess(msg protocol.CorrectGuess) error {
	if err := r.requireIdentity(msg.Type()); err != nil {
		return err
	}
	s := r.state
	idx := s.playerIndex(msg.PlayerID)
	if idx < 0 {
		return fmt.Errorf("%w: %q in correct guess", ErrUnknownPlayer, msg.PlayerID)
	}

	p := &s.Players[idx]
	if p.HasGuessedCorrectly {
		// duplicate notification for this turn
		return nil
	}
	p.HasGuessedCorrectly = true
	p.Score += msg.PlayerScoreDelta
	s.appendSystemChat(fmt.Sprintf("%s guessed the word!", p.Name))
	return nil
}

func (r *reducer) HandleGuessHelper(msg protocol.GuessHelper) error {
	if err := r.requireIdentity(msg.Type()); err != nil {
		return err
	}
	s := r.state
	if v, ok := s.Turn.(GuesserView); ok {
		v.Hint = msg.Hint
		s.Turn = v
	}
	return nil
}

func (r *reducer) HandleGameFinished(msg protocol.GameFinished) error {
	s := r.state
	if len(msg.Players) > 0 {
		s.Players = convertPlayers(msg.Players)
		s.setHost(s.HostID)
	}
	s.Phase = PhaseGameEnd
	s.clearTurn()
	s.LastStroke = nil
	return nil
}

func (r *reducer) HandlePhaseChangeAck(msg protocol.PhaseChangeAck) error {
	r.state.ServerPhase = msg.NewPhase
	r.effects.Replies = append(r.effects.Replies, protocol.PhaseChangeAck{NewPhase: msg.NewPhase})
	return nil
}

func (r *reducer) HandleServerError(msg protocol.ServerError) error {
	r.state.appendSystemChat("Error: " + msg.Message)
	return nil
}

func (s *State) clearTurn() {
	s.Turn = nil
	s.WordChoices = nil
	s.CurrentDrawerID = ""
	s.TurnEndTime = fromMillis(0)
}

func (s *State) resetGuesses() {
	for i := range s.Players {
		s.Players[i].HasGuessedCorrectly = false
	}
}

func (s *State) playerIndex(id string) int {
	for i, p := range s.Players {
		if p.ID == id {
			return i
		}
	}
	return -1
}

// setHost keeps HostID a member of the roster and the IsHost flags consistent with it
func (s *State) setHost(hostID string) {
	if hostID == "" {
		for _, p := range s.Players {
			if p.IsHost {
				hostID = p.ID
				break
			}
		}
	}
	if hostID != "" && s.playerIndex(hostID) < 0 {
		log.Warn().Str("host_id", hostID).Msg("host is not in the roster, clearing host")
		hostID = ""
	}

	s.HostID = hostID
	for i := range s.Players {
		s.Players[i].IsHost = s.Players[i].ID == hostID
	}
}

func convertPlayers(in []protocol.Player) []Player {
	out := make([]Player, 0, len(in))
	for _, p := range in {
		out = append(out, Player{
			ID:                  p.ID,
			Name:                p.Name,
			Score:               p.Score,
			IsHost:              p.IsHost,
			HasGuessedCorrectly: p.HasGuessedCorrectly,
		})
	}
	return out
}

func inTurn(p Phase) bool {
	return p == PhaseWordChoice || p == PhaseGuessing
}

// phaseFromServer maps the phase reported in a roster snapshot to a client phase
func phaseFromServer(serverPhase string, active bool, drawerID string) Phase {
	switch serverPhase {
	case "WaitingInLobby", string(PhaseLobby):
		return PhaseLobby
	case "RoundSetup", string(PhaseWordChoice):
		return PhaseWordChoice
	case "RoundInProgress", string(PhaseGuessing):
		return PhaseGuessing
	case "RoundFinished", string(PhaseBetweenTurns):
		return PhaseBetweenTurns
	case "GameOver", string(PhaseGameEnd):
		return PhaseGameEnd
	}
	if active && drawerID != "" {
		return PhaseGuessing
	}
	return PhaseLobby
}
