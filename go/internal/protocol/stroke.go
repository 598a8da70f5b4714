package protocol

import (
	"encoding/json"
	"fmt"
)

// StrokeKind discriminates the three stroke events of the drawEvent payload
type StrokeKind string

const (
	StrokeStart StrokeKind = "start"
	StrokeDraw  StrokeKind = "draw"
	StrokeEnd   StrokeKind = "end"
)

// StrokeEvent is one step of a stroke: start{x,y,color,width} | draw{x,y,color,width} | end{}.
// Coordinates are in logical canvas space. For end events only Kind is meaningful.
type StrokeEvent struct {
	Kind      StrokeKind
	X         float64
	Y         float64
	Color     string
	LineWidth float64
}

// NewStrokeStart builds a start event anchoring a stroke at (x, y)
func NewStrokeStart(x, y float64, color string, lineWidth float64) StrokeEvent {
	return StrokeEvent{Kind: StrokeStart, X: x, Y: y, Color: color, LineWidth: lineWidth}
}

// NewStrokeDraw builds a draw event carrying the next absolute point of a stroke
func NewStrokeDraw(x, y float64, color string, lineWidth float64) StrokeEvent {
	return StrokeEvent{Kind: StrokeDraw, X: x, Y: y, Color: color, LineWidth: lineWidth}
}

// NewStrokeEnd builds the event closing a stroke
func NewStrokeEnd() StrokeEvent {
	return StrokeEvent{Kind: StrokeEnd}
}

type strokeWire struct {
	EventType StrokeKind `json:"eventType"`
	X         *float64   `json:"x,omitempty"`
	Y         *float64   `json:"y,omitempty"`
	Color     string     `json:"color,omitempty"`
	LineWidth float64    `json:"lineWidth,omitempty"`
}

// MarshalJSON writes the variant-specific payload; end events carry only the event type
func (e StrokeEvent) MarshalJSON() ([]byte, error) {
	if e.Kind == StrokeEnd {
		return json.Marshal(strokeWire{EventType: StrokeEnd})
	}
	x, y := e.X, e.Y
	return json.Marshal(strokeWire{
		EventType: e.Kind,
		X:         &x,
		Y:         &y,
		Color:     e.Color,
		LineWidth: e.LineWidth,
	})
}

// UnmarshalJSON validates the variant: start and draw need coordinates, end needs nothing
func (e *StrokeEvent) UnmarshalJSON(data []byte) error {
	var w strokeWire
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("%w: drawEvent: %v", ErrMalformedPayload, err)
	}

	switch w.EventType {
	case StrokeEnd:
		*e = NewStrokeEnd()
		return nil
	case StrokeStart, StrokeDraw:
		if w.X == nil {
			return missing(TypeDrawEvent, "x")
		}
		if w.Y == nil {
			return missing(TypeDrawEvent, "y")
		}
		*e = StrokeEvent{Kind: w.EventType, X: *w.X, Y: *w.Y, Color: w.Color, LineWidth: w.LineWidth}
		return nil
	case "":
		return missing(TypeDrawEvent, "eventType")
	default:
		return fmt.Errorf("%w: drawEvent: unknown eventType %q", ErrMalformedPayload, w.EventType)
	}
}

func (StrokeEvent) Type() MessageType { return TypeDrawEvent }

func (e StrokeEvent) Accept(h InboundHandler) error { return h.HandleDrawEvent(e) }

func (StrokeEvent) inbound()  {}
func (StrokeEvent) outbound() {}
