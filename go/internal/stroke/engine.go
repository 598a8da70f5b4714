package stroke

import (
	"github.com/mcdev12/flamingo/go/internal/protocol"
	"github.com/rs/zerolog/log"
)

// Engine turns local pointer input into stroke events and replays remote stroke events
// onto the canvas. It is not safe for concurrent use; the session loop owns it.
type Engine struct {
	canvas     Canvas
	style      Style
	canCapture func() bool

	// local capture
	pressed bool
	last    Point

	// remote replay
	replaying bool
	anchor    Point
	hasAnchor bool
}

// NewEngine creates an engine drawing onto canvas. canCapture reports whether the local
// client is currently allowed to draw; a nil func never allows capture.
func NewEngine(canvas Canvas, style Style, canCapture func() bool) *Engine {
	if style.Color == "" {
		style.Color = DefaultColor
	}
	if style.LineWidth <= 0 {
		style.LineWidth = DefaultLineWidth
	}
	if canCapture == nil {
		canCapture = func() bool { return false }
	}
	return &Engine{canvas: canvas, style: style, canCapture: canCapture}
}

// Style returns the current local pen
func (e *Engine) Style() Style {
	return e.style
}

// SetStyle changes the local pen for subsequent strokes
func (e *Engine) SetStyle(style Style) {
	if style.Color != "" {
		e.style.Color = style.Color
	}
	if style.LineWidth > 0 {
		e.style.LineWidth = style.LineWidth
	}
}

// PointerDown begins a local stroke at p. ok is false when capture is not allowed.
func (e *Engine) PointerDown(p Point) (protocol.StrokeEvent, bool) {
	if !e.canCapture() {
		e.pressed = false
		return protocol.StrokeEvent{}, false
	}
	e.pressed = true
	e.last = p
	return protocol.NewStrokeStart(p.X, p.Y, e.style.Color, e.style.LineWidth), true
}

// PointerMove extends the local stroke while the pointer is pressed. The segment is drawn
// locally right away; the emitted event carries the new absolute point.
func (e *Engine) PointerMove(p Point) (protocol.StrokeEvent, bool) {
	if !e.pressed {
		return protocol.StrokeEvent{}, false
	}
	if !e.canCapture() {
		// the turn ended under the pointer
		e.pressed = false
		return protocol.StrokeEvent{}, false
	}
	e.canvas.DrawLine(e.last, p, e.style)
	e.last = p
	return protocol.NewStrokeDraw(p.X, p.Y, e.style.Color, e.style.LineWidth), true
}

// PointerUp ends the local stroke. Leaving the canvas is treated the same way.
func (e *Engine) PointerUp() (protocol.StrokeEvent, bool) {
	if !e.pressed {
		return protocol.StrokeEvent{}, false
	}
	e.pressed = false
	return protocol.NewStrokeEnd(), true
}

// Replay draws a remote stroke event. Only straight segments between consecutive points are drawn.
func (e *Engine) Replay(ev protocol.StrokeEvent) {
	switch ev.Kind {
	case protocol.StrokeStart:
		e.anchor = Point{X: ev.X, Y: ev.Y}
		e.hasAnchor = true
		e.replaying = true

	case protocol.StrokeDraw:
		if !e.hasAnchor {
			log.Debug().Msg("draw event without a stroke start, ignoring")
			return
		}
		to := Point{X: ev.X, Y: ev.Y}
		e.canvas.DrawLine(e.anchor, to, e.remoteStyle(ev))
		e.anchor = to

	case protocol.StrokeEnd:
		e.replaying = false
		e.hasAnchor = false
	}
}

// Replaying reports whether a remote stroke is in progress
func (e *Engine) Replaying() bool {
	return e.replaying
}

// Drawing reports whether a local stroke is in progress
func (e *Engine) Drawing() bool {
	return e.pressed
}

// Reset clears the canvas and forgets any stroke in progress
func (e *Engine) Reset() {
	e.pressed = false
	e.replaying = false
	e.hasAnchor = false
	e.canvas.Clear()
}

func (e *Engine) remoteStyle(ev protocol.StrokeEvent) Style {
	s := Style{Color: ev.Color, LineWidth: ev.LineWidth}
	if s.Color == "" {
		s.Color = DefaultColor
	}
	if s.LineWidth <= 0 {
		s.LineWidth = DefaultLineWidth
	}
	return s
}
