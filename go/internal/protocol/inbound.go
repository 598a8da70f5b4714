package protocol

import (
	"encoding/json"
	"fmt"
)

// Inbound is a decoded server -> client message. The set of implementations is closed;
// consumers dispatch with Accept so that every kind has to be handled.
type Inbound interface {
	Type() MessageType
	Accept(h InboundHandler) error
	inbound()
}

// InboundHandler has one method per inbound kind. Adding a kind adds a method here,
// which breaks every handler until it deals with the new kind.
type InboundHandler interface {
	HandleGameInfo(msg GameInfo) error
	HandlePlayerUpdate(msg PlayerUpdate) error
	HandleTurnSetup(msg TurnSetup) error
	HandleTurnStart(msg TurnStart) error
	HandleTurnEnd(msg TurnEnd) error
	HandleChat(msg Chat) error
	HandleDrawEvent(msg StrokeEvent) error
	HandleCorrectGuess(msg CorrectGuess) error
	HandleGuessHelper(msg GuessHelper) error
	HandleGameFinished(msg GameFinished) error
	HandlePhaseChangeAck(msg PhaseChangeAck) error
	HandleServerError(msg ServerError) error
}

// Player is the roster entry shared by every roster-carrying payload
type Player struct {
	ID                  string `json:"id"`
	Name                string `json:"name"`
	Score               int    `json:"score"`
	IsHost              bool   `json:"isHost,omitempty"`
	HasGuessedCorrectly bool   `json:"hasGuessedCorrectly,omitempty"`
}

// GameInfo is the roster snapshot sent on join and rejoin
type GameInfo struct {
	GamePhase       string   `json:"gamePhase,omitempty"`
	YourID          string   `json:"yourId"`
	Players         []Player `json:"players"`
	HostID          string   `json:"hostId,omitempty"`
	IsGameActive    bool     `json:"isGameActive"`
	CurrentDrawerID string   `json:"currentDrawerId,omitempty"`
	WordLength      int      `json:"wordLength,omitempty"`
	Word            string   `json:"word,omitempty"`
	TurnEndTime     int64    `json:"turnEndTime,omitempty"`
}

// PlayerUpdate replaces the roster and host
type PlayerUpdate struct {
	Players []Player `json:"players"`
	HostID  string   `json:"hostId,omitempty"`
}

// TurnSetup opens word selection for the next drawer
type TurnSetup struct {
	CurrentDrawerID string   `json:"currentDrawerId"`
	WordChoices     []string `json:"wordChoices,omitempty"`
	Players         []Player `json:"players,omitempty"`
	TurnEndTime     int64    `json:"turnEndTime"`
}

// TurnStart opens the guessing window. Word is only present in the drawer's copy.
type TurnStart struct {
	CurrentDrawerID string   `json:"currentDrawerId"`
	Word            string   `json:"word,omitempty"`
	WordLength      int      `json:"wordLength"`
	Players         []Player `json:"players"`
	TurnEndTime     int64    `json:"turnEndTime"`
}

// TurnEnd closes the guessing window and reveals the word
type TurnEnd struct {
	CorrectWord string         `json:"correctWord"`
	Players     []Player       `json:"players,omitempty"`
	RoundScores map[string]int `json:"roundScores,omitempty"`
}

// Chat is one transcript line
type Chat struct {
	SenderName string `json:"senderName"`
	Message    string `json:"message"`
	IsSystem   bool   `json:"isSystem,omitempty"`
}

// CorrectGuess notifies that a player guessed the word
type CorrectGuess struct {
	PlayerID         string `json:"playerId"`
	PlayerScoreDelta int    `json:"playerScoreDelta,omitempty"`
}

// GuessHelper carries a masked hint for players still guessing
type GuessHelper struct {
	Hint string `json:"hint"`
}

// GameFinished carries the final standings
type GameFinished struct {
	Players []Player `json:"players"`
}

// PhaseChangeAck is exchanged in both directions around server phase changes
type PhaseChangeAck struct {
	NewPhase string `json:"newPhase"`
}

// ServerError is an error reported by the server
type ServerError struct {
	Message string `json:"message"`
}

func (GameInfo) Type() MessageType       { return TypeGameInfo }
func (PlayerUpdate) Type() MessageType   { return TypePlayerUpdate }
func (TurnSetup) Type() MessageType      { return TypeTurnSetup }
func (TurnStart) Type() MessageType      { return TypeTurnStart }
func (TurnEnd) Type() MessageType        { return TypeTurnEnd }
func (Chat) Type() MessageType           { return TypeChat }
func (CorrectGuess) Type() MessageType   { return TypeCorrectGuess }
func (GuessHelper) Type() MessageType    { return TypeGuessHelper }
func (GameFinished) Type() MessageType   { return TypeGameFinished }
func (PhaseChangeAck) Type() MessageType { return TypePhaseChangeAck }
func (ServerError) Type() MessageType    { return TypeError }

func (m GameInfo) Accept(h InboundHandler) error       { return h.HandleGameInfo(m) }
func (m PlayerUpdate) Accept(h InboundHandler) error   { return h.HandlePlayerUpdate(m) }
func (m TurnSetup) Accept(h InboundHandler) error      { return h.HandleTurnSetup(m) }
func (m TurnStart) Accept(h InboundHandler) error      { return h.HandleTurnStart(m) }
func (m TurnEnd) Accept(h InboundHandler) error        { return h.HandleTurnEnd(m) }
func (m Chat) Accept(h InboundHandler) error           { return h.HandleChat(m) }
func (m CorrectGuess) Accept(h InboundHandler) error   { return h.HandleCorrectGuess(m) }
func (m GuessHelper) Accept(h InboundHandler) error    { return h.HandleGuessHelper(m) }
func (m GameFinished) Accept(h InboundHandler) error   { return h.HandleGameFinished(m) }
func (m PhaseChangeAck) Accept(h InboundHandler) error { return h.HandlePhaseChangeAck(m) }
func (m ServerError) Accept(h InboundHandler) error    { return h.HandleServerError(m) }

func (GameInfo) inbound()       {}
func (PlayerUpdate) inbound()   {}
func (TurnSetup) inbound()      {}
func (TurnStart) inbound()      {}
func (TurnEnd) inbound()        {}
func (Chat) inbound()           {}
func (CorrectGuess) inbound()   {}
func (GuessHelper) inbound()    {}
func (GameFinished) inbound()   {}
func (PhaseChangeAck) inbound() {}
func (ServerError) inbound()    {}

// Decode validates an inbound envelope and returns the typed message.
// Unknown types return ErrUnknownMessageType; payloads lacking a required field return ErrMissingField.
func Decode(env Envelope) (Inbound, error) {
	switch env.Type {
	case TypeGameInfo:
		var msg GameInfo
		if err := unmarshalPayload(env, &msg); err != nil {
			return nil, err
		}
		if msg.YourID == "" {
			return nil, missing(env.Type, "yourId")
		}
		if err := validatePlayers(env.Type, msg.Players); err != nil {
			return nil, err
		}
		return msg, nil

	case TypePlayerUpdate:
		var msg PlayerUpdate
		if err := unmarshalPayload(env, &msg); err != nil {
			return nil, err
		}
		if err := validatePlayers(env.Type, msg.Players); err != nil {
			return nil, err
		}
		return msg, nil

	case TypeTurnSetup:
		var msg TurnSetup
		if err := unmarshalPayload(env, &msg); err != nil {
			return nil, err
		}
		if msg.CurrentDrawerID == "" {
			return nil, missing(env.Type, "currentDrawerId")
		}
		if err := validatePlayers(env.Type, msg.Players); err != nil {
			return nil, err
		}
		return msg, nil

	case TypeTurnStart:
		var msg TurnStart
		if err := unmarshalPayload(env, &msg); err != nil {
			return nil, err
		}
		if msg.CurrentDrawerID == "" {
			return nil, missing(env.Type, "currentDrawerId")
		}
		if err := validatePlayers(env.Type, msg.Players); err != nil {
			return nil, err
		}
		return msg, nil

	case TypeTurnEnd:
		// a bare turnEnd still ends the turn
		var msg TurnEnd
		if env.hasPayload() {
			if err := unmarshalPayload(env, &msg); err != nil {
				return nil, err
			}
		}
		if err := validatePlayers(env.Type, msg.Players); err != nil {
			return nil, err
		}
		return msg, nil

	case TypeChat:
		var msg Chat
		if err := unmarshalPayload(env, &msg); err != nil {
			return nil, err
		}
		if msg.Message == "" {
			return nil, missing(env.Type, "message")
		}
		return msg, nil

	case TypeDrawEvent:
		var msg StrokeEvent
		if err := unmarshalPayload(env, &msg); err != nil {
			return nil, err
		}
		return msg, nil

	case TypeCorrectGuess, TypePlayerGuessedCorrectly:
		var msg CorrectGuess
		if err := unmarshalPayload(env, &msg); err != nil {
			return nil, err
		}
		if msg.PlayerID == "" {
			return nil, missing(env.Type, "playerId")
		}
		return msg, nil

	case TypeGuessHelper:
		var msg GuessHelper
		if err := unmarshalPayload(env, &msg); err != nil {
			return nil, err
		}
		if msg.Hint == "" {
			return nil, missing(env.Type, "hint")
		}
		return msg, nil

	case TypeGameFinished:
		var msg GameFinished
		if err := unmarshalPayload(env, &msg); err != nil {
			return nil, err
		}
		if err := validatePlayers(env.Type, msg.Players); err != nil {
			return nil, err
		}
		return msg, nil

	case TypePhaseChangeAck, TypePhaseChangeAckResponse:
		var msg PhaseChangeAck
		if err := unmarshalPayload(env, &msg); err != nil {
			return nil, err
		}
		if msg.NewPhase == "" {
			return nil, missing(env.Type, "newPhase")
		}
		return msg, nil

	case TypeError:
		// an error without text is dropped rather than shown as garbage
		var msg ServerError
		if err := unmarshalPayload(env, &msg); err != nil {
			return nil, err
		}
		if msg.Message == "" {
			return nil, missing(env.Type, "message")
		}
		return msg, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessageType, env.Type)
	}
}

// DecodeFrame parses a raw frame and decodes it in one step
func DecodeFrame(frame []byte) (Inbound, error) {
	env, err := ParseEnvelope(frame)
	if err != nil {
		return nil, err
	}
	return Decode(env)
}

func validatePlayers(t MessageType, players []Player) error {
	for i, p := range players {
		if p.ID == "" {
			return missing(t, fmt.Sprintf("players[%d].id", i))
		}
	}
	return nil
}

// EncodeInbound builds the envelope a server would send for msg.
// Used by tests and tooling that play the server side.
func EncodeInbound(msg Inbound) (Envelope, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s: %w", msg.Type(), err)
	}
	return Envelope{Type: msg.Type(), Payload: payload}, nil
}
