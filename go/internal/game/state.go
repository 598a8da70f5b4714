package game

import (
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/flamingo/go/internal/protocol"
)

// Phase is the stage of the current round as projected from server messages
type Phase string

const (
	PhaseLobby        Phase = "Lobby"
	PhaseWordChoice   Phase = "WordChoice"
	PhaseGuessing     Phase = "Guessing"
	PhaseBetweenTurns Phase = "BetweenTurns"
	PhaseBreak        Phase = "Break" // not sent by any server revision yet
	PhaseGameEnd      Phase = "GameEnd"
)

const (
	// MinPlayers is the roster size required before the host may start
	MinPlayers = 2

	// ChatLimit caps the transcript; older lines are dropped first
	ChatLimit = 100

	systemSender = "System"
)

// Player is one roster entry
type Player struct {
	ID                  string `json:"id" yaml:"id"`
	Name                string `json:"name" yaml:"name"`
	Score               int    `json:"score" yaml:"score"`
	IsHost              bool   `json:"isHost,omitempty" yaml:"isHost,omitempty"`
	HasGuessedCorrectly bool   `json:"hasGuessedCorrectly,omitempty" yaml:"hasGuessedCorrectly,omitempty"`
}

// ChatMessage is one transcript line
type ChatMessage struct {
	SenderName string `json:"senderName" yaml:"senderName"`
	Message    string `json:"message" yaml:"message"`
	IsSystem   bool   `json:"isSystem,omitempty" yaml:"isSystem,omitempty"`
}

// State is the canonical client-side game state.
// Empty strings stand for absent identities; a zero TurnEndTime means no deadline.
type State struct {
	Phase           Phase
	Players         []Player
	CurrentDrawerID string
	HostID          string
	LocalID         string
	Turn            TurnView
	WordChoices     []string
	TurnEndTime     time.Time
	Chat            []ChatMessage
	LastStroke      *protocol.StrokeEvent
	RevealedWord    string
	ServerPhase     string

	// set once the first roster snapshot of the current connection epoch fixed LocalID
	identityLocked bool
}

// NewState returns the empty state a session starts from and falls back to on disconnect
func NewState() State {
	return State{Phase: PhaseLobby}
}

// Clone returns a deep copy so reducers never share slices with previous states
func (s State) Clone() State {
	c := s
	if s.Players != nil {
		c.Players = append([]Player(nil), s.Players...)
	}
	if s.WordChoices != nil {
		c.WordChoices = append([]string(nil), s.WordChoices...)
	}
	if s.Chat != nil {
		c.Chat = append([]ChatMessage(nil), s.Chat...)
	}
	if s.LastStroke != nil {
		ev := *s.LastStroke
		c.LastStroke = &ev
	}
	return c
}

// Player looks up a roster entry by id
func (s State) Player(id string) (Player, bool) {
	for _, p := range s.Players {
		if p.ID == id {
			return p, true
		}
	}
	return Player{}, false
}

// LocalPlayer returns the roster entry of this client
func (s State) LocalPlayer() (Player, bool) {
	if s.LocalID == "" {
		return Player{}, false
	}
	return s.Player(s.LocalID)
}

// IsDrawer reports whether this client is the current drawer
func (s State) IsDrawer() bool {
	return s.LocalID != "" && s.LocalID == s.CurrentDrawerID
}

// IsHost reports whether this client hosts the game
func (s State) IsHost() bool {
	return s.LocalID != "" && s.LocalID == s.HostID
}

// CanDraw reports whether local pointer input should be captured into strokes
func (s State) CanDraw() bool {
	return s.IsDrawer() && s.Phase == PhaseGuessing
}

// CanStart reports whether the host may request a game start
func (s State) CanStart() bool {
	return s.IsHost() && s.Phase == PhaseLobby && len(s.Players) >= MinPlayers
}

// CanGuess reports whether this client may submit a guess
func (s State) CanGuess() bool {
	if s.Phase != PhaseGuessing || s.IsDrawer() {
		return false
	}
	p, ok := s.LocalPlayer()
	return ok && !p.HasGuessedCorrectly
}

// HasDeadline reports whether a turn deadline is set
func (s State) HasDeadline() bool {
	return !s.TurnEndTime.IsZero()
}

// TimeRemaining returns the time left until the turn deadline, never negative
func (s State) TimeRemaining(clock clockwork.Clock) time.Duration {
	if s.TurnEndTime.IsZero() {
		return 0
	}
	remaining := s.TurnEndTime.Sub(clock.Now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// fromMillis converts a wire epoch-millisecond deadline; 0 means none
func fromMillis(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
