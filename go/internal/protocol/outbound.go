package protocol

import (
	"encoding/json"
	"fmt"
)

// Outbound is a client -> server message
type Outbound interface {
	Type() MessageType
	outbound()
}

// SetName registers the local player's display name
type SetName struct {
	Name string `json:"name"`
}

// SelectRoundWord picks one of the offered words
type SelectRoundWord struct {
	Word string `json:"word"`
}

// Guess submits a guess for the current word
type Guess struct {
	Guess string `json:"guess"`
}

// StartGame asks the server to start the game. It has no payload.
type StartGame struct{}

func (SetName) Type() MessageType         { return TypeSetName }
func (SelectRoundWord) Type() MessageType { return TypeSelectRoundWord }
func (Guess) Type() MessageType           { return TypeGuess }
func (StartGame) Type() MessageType       { return TypeStartGame }

func (SetName) outbound()         {}
func (SelectRoundWord) outbound() {}
func (Guess) outbound()           {}
func (StartGame) outbound()       {}
func (PhaseChangeAck) outbound()  {}

// Encode wraps an outbound message in an envelope
func Encode(msg Outbound) (Envelope, error) {
	if _, ok := msg.(StartGame); ok {
		return Envelope{Type: TypeStartGame, Payload: json.RawMessage("null")}, nil
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s: %w", msg.Type(), err)
	}
	return Envelope{Type: msg.Type(), Payload: payload}, nil
}

// DecodeOutbound is the server-side view of Encode
func DecodeOutbound(env Envelope) (Outbound, error) {
	switch env.Type {
	case TypeSetName:
		var msg SetName
		if err := unmarshalPayload(env, &msg); err != nil {
			return nil, err
		}
		if msg.Name == "" {
			return nil, missing(env.Type, "name")
		}
		return msg, nil

	case TypeSelectRoundWord:
		var msg SelectRoundWord
		if err := unmarshalPayload(env, &msg); err != nil {
			return nil, err
		}
		if msg.Word == "" {
			return nil, missing(env.Type, "word")
		}
		return msg, nil

	case TypeGuess:
		var msg Guess
		if err := unmarshalPayload(env, &msg); err != nil {
			return nil, err
		}
		if msg.Guess == "" {
			return nil, missing(env.Type, "guess")
		}
		return msg, nil

	case TypeDrawEvent:
		var msg StrokeEvent
		if err := unmarshalPayload(env, &msg); err != nil {
			return nil, err
		}
		return msg, nil

	case TypeStartGame:
		return StartGame{}, nil

	case TypePhaseChangeAck:
		var msg PhaseChangeAck
		if err := unmarshalPayload(env, &msg); err != nil {
			return nil, err
		}
		if msg.NewPhase == "" {
			return nil, missing(env.Type, "newPhase")
		}
		return msg, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessageType, env.Type)
	}
}
