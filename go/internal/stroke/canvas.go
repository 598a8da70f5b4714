package stroke

import "sync"

const (
	DefaultWidth     = 800
	DefaultHeight    = 600
	DefaultColor     = "#000000"
	DefaultLineWidth = 3
)

// Point is a position in logical canvas space
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Size is a width/height pair
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Rect is the on-screen rectangle the canvas is displayed in
type Rect struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// Style is the pen used for a segment
type Style struct {
	Color     string  `json:"color"`
	LineWidth float64 `json:"lineWidth"`
}

// Canvas is the drawing surface owned by the renderer
type Canvas interface {
	DrawLine(from, to Point, style Style)
	Clear()
}

// Normalize maps a client-space pointer position into the logical canvas buffer.
// A degenerate rect leaves the axis unscaled.
func Normalize(client Point, rect Rect, buffer Size) Point {
	p := Point{X: client.X - rect.X, Y: client.Y - rect.Y}
	if rect.Width > 0 {
		p.X *= buffer.Width / rect.Width
	}
	if rect.Height > 0 {
		p.Y *= buffer.Height / rect.Height
	}
	return p
}

// Segment is one straight line drawn on a Recorder
type Segment struct {
	From  Point `json:"from"`
	To    Point `json:"to"`
	Style Style `json:"style"`
}

// Recorder is an in-memory Canvas that keeps every segment since the last Clear
type Recorder struct {
	mu       sync.RWMutex
	size     Size
	segments []Segment
	clears   int
}

// NewRecorder creates a recorder with the given logical buffer size
func NewRecorder(size Size) *Recorder {
	return &Recorder{size: size}
}

func (r *Recorder) DrawLine(from, to Point, style Style) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.segments = append(r.segments, Segment{From: from, To: to, Style: style})
}

func (r *Recorder) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.segments = nil
	r.clears++
}

// Size returns the logical buffer size
func (r *Recorder) Size() Size {
	return r.size
}

// Segments returns a copy of the segments drawn since the last Clear
func (r *Recorder) Segments() []Segment {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Segment(nil), r.segments...)
}

// Clears returns how many times the canvas was cleared
func (r *Recorder) Clears() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.clears
}
