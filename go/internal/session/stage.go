package session

import (
	"errors"
	"time"

	"github.com/mcdev12/flamingo/go/internal/connection"
	"github.com/mcdev12/flamingo/go/internal/game"
)

var (
	// ErrNotAllowed is returned when an action is not permitted for the local role or phase
	ErrNotAllowed = errors.New("action not allowed")
	// ErrStopped is returned when the session loop is not running
	ErrStopped = errors.New("session stopped")
)

// Stage is the connection super-phase wrapped around the game phases
type Stage string

const (
	StageConnecting Stage = "connecting"
	StageEnterName  Stage = "enterName"
	StageJoining    Stage = "joining"
	StageInGame     Stage = "inGame"
)

// Stats are the counters of a session, including its transport
type Stats struct {
	connection.Stats
	UnknownKinds    int64 `json:"unknownKinds"`
	InvalidPayloads int64 `json:"invalidPayloads"`
	Rejected        int64 `json:"rejected"`
	Connects        int64 `json:"connects"`
	Disconnects     int64 `json:"disconnects"`
}

// Status is a read-only view of the session published after every change
type Status struct {
	SessionID  string           `json:"sessionId"`
	RoomID     string           `json:"roomId"`
	SelfName   string           `json:"selfName"`
	HostLaunch bool             `json:"hostLaunch"`
	Stage      Stage            `json:"stage"`
	Connection connection.State `json:"-"`
	Stats      Stats            `json:"stats"`
	State      game.State       `json:"-"`
	LastError  string           `json:"lastError,omitempty"`
	UpdatedAt  time.Time        `json:"updatedAt"`
}

// Connected reports whether the transport is up
func (s Status) Connected() bool {
	return s.Connection == connection.StateConnected
}
