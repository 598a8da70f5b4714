package game

import (
	"fmt"

	"github.com/mcdev12/flamingo/go/internal/protocol"
)

const (
	viewDrawer  = "drawer"
	viewGuesser = "guesser"
)

// Record is the serializable form of State used by snapshot stores
type Record struct {
	Phase           Phase                 `json:"phase" yaml:"phase"`
	Players         []Player              `json:"players,omitempty" yaml:"players,omitempty"`
	CurrentDrawerID string                `json:"currentDrawerId,omitempty" yaml:"currentDrawerId,omitempty"`
	HostID          string                `json:"hostId,omitempty" yaml:"hostId,omitempty"`
	LocalID         string                `json:"localId,omitempty" yaml:"localId,omitempty"`
	View            string                `json:"view,omitempty" yaml:"view,omitempty"`
	Word            string                `json:"word,omitempty" yaml:"word,omitempty"`
	WordLength      int                   `json:"wordLength,omitempty" yaml:"wordLength,omitempty"`
	Hint            string                `json:"hint,omitempty" yaml:"hint,omitempty"`
	WordChoices     []string              `json:"wordChoices,omitempty" yaml:"wordChoices,omitempty"`
	TurnEndTime     int64                 `json:"turnEndTime,omitempty" yaml:"turnEndTime,omitempty"`
	Chat            []ChatMessage         `json:"chat,omitempty" yaml:"chat,omitempty"`
	LastStroke      *protocol.StrokeEvent `json:"lastStroke,omitempty" yaml:"lastStroke,omitempty"`
	RevealedWord    string                `json:"revealedWord,omitempty" yaml:"revealedWord,omitempty"`
	ServerPhase     string                `json:"serverPhase,omitempty" yaml:"serverPhase,omitempty"`
}

// Record converts the state into its serializable form
func (s State) Record() Record {
	c := s.Clone()
	r := Record{
		Phase:           c.Phase,
		Players:         c.Players,
		CurrentDrawerID: c.CurrentDrawerID,
		HostID:          c.HostID,
		LocalID:         c.LocalID,
		WordChoices:     c.WordChoices,
		TurnEndTime:     toMillis(c.TurnEndTime),
		Chat:            c.Chat,
		LastStroke:      c.LastStroke,
		RevealedWord:    c.RevealedWord,
		ServerPhase:     c.ServerPhase,
	}
	switch v := c.Turn.(type) {
	case DrawerView:
		r.View = viewDrawer
		r.Word = v.Word
	case GuesserView:
		r.View = viewGuesser
		r.WordLength = v.WordLength
		r.Hint = v.Hint
	}
	return r
}

// FromRecord rebuilds a State. The result must still satisfy the state invariants.
func FromRecord(r Record) (State, error) {
	s := NewState()
	if r.Phase != "" {
		s.Phase = r.Phase
	}
	switch s.Phase {
	case PhaseLobby, PhaseWordChoice, PhaseGuessing, PhaseBetweenTurns, PhaseBreak, PhaseGameEnd:
	default:
		return State{}, fmt.Errorf("%w: unknown phase %q", ErrInvariantViolation, r.Phase)
	}

	s.Players = append([]Player(nil), r.Players...)
	s.CurrentDrawerID = r.CurrentDrawerID
	s.HostID = r.HostID
	s.LocalID = r.LocalID
	s.WordChoices = append([]string(nil), r.WordChoices...)
	s.TurnEndTime = fromMillis(r.TurnEndTime)
	s.Chat = append([]ChatMessage(nil), r.Chat...)
	if r.LastStroke != nil {
		ev := *r.LastStroke
		s.LastStroke = &ev
	}
	s.RevealedWord = r.RevealedWord
	s.ServerPhase = r.ServerPhase

	switch r.View {
	case viewDrawer:
		s.Turn = DrawerView{Word: r.Word}
	case viewGuesser:
		s.Turn = GuesserView{WordLength: r.WordLength, Hint: r.Hint}
	case "":
	default:
		return State{}, fmt.Errorf("%w: unknown turn view %q", ErrInvariantViolation, r.View)
	}

	if err := s.Validate(); err != nil {
		return State{}, err
	}
	return s, nil
}

// Validate checks the cross-field invariants of the state
func (s State) Validate() error {
	if s.HostID != "" {
		if _, ok := s.Player(s.HostID); !ok {
			return fmt.Errorf("%w: host %q is not in the roster", ErrInvariantViolation, s.HostID)
		}
	}
	if s.Turn != nil && s.Phase != PhaseGuessing {
		return fmt.Errorf("%w: turn view outside of %s", ErrInvariantViolation, PhaseGuessing)
	}
	switch s.Turn.(type) {
	case DrawerView:
		if !s.IsDrawer() {
			return fmt.Errorf("%w: drawer view held by a non-drawer", ErrInvariantViolation)
		}
	case GuesserView:
		if s.IsDrawer() {
			return fmt.Errorf("%w: guesser view held by the drawer", ErrInvariantViolation)
		}
	}
	if len(s.WordChoices) > 0 && (!s.IsDrawer() || s.Phase != PhaseWordChoice) {
		return fmt.Errorf("%w: word choices held outside the drawer's word choice", ErrInvariantViolation)
	}
	if len(s.Chat) > ChatLimit {
		return fmt.Errorf("%w: chat holds %d lines, limit is %d", ErrInvariantViolation, len(s.Chat), ChatLimit)
	}
	return nil
}
