package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrUnknownMessageType = errors.New("unknown message type")
	ErrMalformedPayload   = errors.New("malformed payload")
	ErrMissingField       = errors.New("missing required field")
)

// Envelope is the only unit on the wire: one JSON object per frame
type Envelope struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// MessageType selects the payload shape carried by an envelope
type MessageType string

// Inbound message types (server -> client)
const (
	TypeGameInfo               MessageType = "gameInfo"
	TypePlayerUpdate           MessageType = "playerUpdate"
	TypeTurnSetup              MessageType = "turnSetup"
	TypeTurnStart              MessageType = "turnStart"
	TypeTurnEnd                MessageType = "turnEnd"
	TypeChat                   MessageType = "chat"
	TypeDrawEvent              MessageType = "drawEvent"
	TypeCorrectGuess           MessageType = "correctGuess"
	TypePlayerGuessedCorrectly MessageType = "playerGuessedCorrectly"
	TypeGuessHelper            MessageType = "guessHelper"
	TypeGameFinished           MessageType = "gameFinished"
	TypePhaseChangeAck         MessageType = "phaseChangeAck"
	TypePhaseChangeAckResponse MessageType = "phaseChangeAckResponse"
	TypeError                  MessageType = "error"
)

// Outbound message types (client -> server). drawEvent and phaseChangeAck are shared with inbound.
const (
	TypeSetName         MessageType = "setName"
	TypeSelectRoundWord MessageType = "selectRoundWord"
	TypeGuess           MessageType = "guess"
	TypeStartGame       MessageType = "startGame"
)

// ParseEnvelope parses a raw frame into an envelope without looking at the payload
func ParseEnvelope(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("%w: type", ErrMissingField)
	}
	return env, nil
}

// Marshal encodes the envelope as a single frame
func (e Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// hasPayload reports whether the envelope carries a non-null payload
func (e Envelope) hasPayload() bool {
	trimmed := bytes.TrimSpace(e.Payload)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

func unmarshalPayload(env Envelope, v any) error {
	if !env.hasPayload() {
		return fmt.Errorf("%w: payload", ErrMissingField)
	}
	if err := json.Unmarshal(env.Payload, v); err != nil {
		// errors raised by our own UnmarshalJSON methods are already classified
		if errors.Is(err, ErrMissingField) || errors.Is(err, ErrMalformedPayload) {
			return err
		}
		return fmt.Errorf("%w: %s: %v", ErrMalformedPayload, env.Type, err)
	}
	return nil
}

func missing(t MessageType, field string) error {
	return fmt.Errorf("%w: %s.%s", ErrMissingField, t, field)
}
