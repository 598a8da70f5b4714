package stroke

import (
	"testing"

	"github.com/mcdev12/flamingo/go/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func allow(v *bool) func() bool {
	return func() bool { return *v }
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		desc   string
		client Point
		rect   Rect
		want   Point
	}{
		{desc: "same size", client: Point{X: 110, Y: 60}, rect: Rect{X: 10, Y: 10, Width: 800, Height: 600}, want: Point{X: 100, Y: 50}},
		{desc: "half size display", client: Point{X: 200, Y: 150}, rect: Rect{Width: 400, Height: 300}, want: Point{X: 400, Y: 300}},
		{desc: "offset and scale", client: Point{X: 50, Y: 50}, rect: Rect{X: 50, Y: 50, Width: 1600, Height: 1200}, want: Point{}},
		{desc: "degenerate rect", client: Point{X: 5, Y: 7}, rect: Rect{}, want: Point{X: 5, Y: 7}},
	}
	buffer := Size{Width: DefaultWidth, Height: DefaultHeight}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.desc, func(t *testing.T) {
			t.Parallel()
			got := Normalize(tt.client, tt.rect, buffer)
			assert.InDelta(t, tt.want.X, got.X, 1e-9)
			assert.InDelta(t, tt.want.Y, got.Y, 1e-9)
		})
	}
}

func TestCaptureEmitsStrokeEvents(t *testing.T) {
	canvas := NewRecorder(Size{Width: DefaultWidth, Height: DefaultHeight})
	canDraw := true
	e := NewEngine(canvas, Style{Color: "#ff0000", LineWidth: 5}, allow(&canDraw))

	var events []protocol.StrokeEvent
	record := func(ev protocol.StrokeEvent, ok bool) {
		require.True(t, ok)
		events = append(events, ev)
	}

	record(e.PointerDown(Point{X: 1, Y: 1}))
	record(e.PointerMove(Point{X: 2, Y: 2}))
	record(e.PointerMove(Point{X: 3, Y: 5}))
	record(e.PointerUp())

	assert.Equal(t, []protocol.StrokeEvent{
		protocol.NewStrokeStart(1, 1, "#ff0000", 5),
		protocol.NewStrokeDraw(2, 2, "#ff0000", 5),
		protocol.NewStrokeDraw(3, 5, "#ff0000", 5),
		protocol.NewStrokeEnd(),
	}, events)

	assert.Equal(t, []Segment{
		{From: Point{X: 1, Y: 1}, To: Point{X: 2, Y: 2}, Style: Style{Color: "#ff0000", LineWidth: 5}},
		{From: Point{X: 2, Y: 2}, To: Point{X: 3, Y: 5}, Style: Style{Color: "#ff0000", LineWidth: 5}},
	}, canvas.Segments())

	// moving without a pressed pointer does nothing
	_, ok := e.PointerMove(Point{X: 9, Y: 9})
	assert.False(t, ok)
	_, ok = e.PointerUp()
	assert.False(t, ok)
}

func TestCaptureRequiresPermission(t *testing.T) {
	canvas := NewRecorder(Size{Width: DefaultWidth, Height: DefaultHeight})
	canDraw := false
	e := NewEngine(canvas, Style{}, allow(&canDraw))

	_, ok := e.PointerDown(Point{X: 1, Y: 1})
	assert.False(t, ok)
	_, ok = e.PointerMove(Point{X: 2, Y: 2})
	assert.False(t, ok)
	assert.Empty(t, canvas.Segments())

	t.Run("permission lost mid stroke", func(t *testing.T) {
		canDraw = true
		_, ok := e.PointerDown(Point{X: 1, Y: 1})
		require.True(t, ok)
		canDraw = false
		_, ok = e.PointerMove(Point{X: 2, Y: 2})
		assert.False(t, ok)
		assert.False(t, e.Drawing())
		assert.Empty(t, canvas.Segments())
	})
}

func TestNilCaptureGateNeverCaptures(t *testing.T) {
	e := NewEngine(NewRecorder(Size{}), Style{}, nil)
	_, ok := e.PointerDown(Point{})
	assert.False(t, ok)
	assert.Equal(t, Style{Color: DefaultColor, LineWidth: DefaultLineWidth}, e.Style())
}

func TestReplaySegmentCountMatchesDrawCount(t *testing.T) {
	for _, draws := range []int{0, 1, 2, 17} {
		canvas := NewRecorder(Size{Width: DefaultWidth, Height: DefaultHeight})
		e := NewEngine(canvas, Style{}, nil)

		e.Replay(protocol.NewStrokeStart(0, 0, "#00ff00", 2))
		assert.True(t, e.Replaying())
		for i := 1; i <= draws; i++ {
			e.Replay(protocol.NewStrokeDraw(float64(i), float64(i*2), "#00ff00", 2))
		}
		e.Replay(protocol.NewStrokeEnd())
		assert.False(t, e.Replaying())

		segments := canvas.Segments()
		require.Len(t, segments, draws)
		for i, seg := range segments {
			// each segment starts where the previous one ended
			assert.Equal(t, Point{X: float64(i), Y: float64(i * 2)}, seg.From)
			assert.Equal(t, Point{X: float64(i + 1), Y: float64((i + 1) * 2)}, seg.To)
			assert.Equal(t, Style{Color: "#00ff00", LineWidth: 2}, seg.Style)
		}
	}
}

func TestReplayIgnoresDrawWithoutStart(t *testing.T) {
	canvas := NewRecorder(Size{})
	e := NewEngine(canvas, Style{}, nil)

	e.Replay(protocol.NewStrokeDraw(5, 5, "", 0))
	assert.Empty(t, canvas.Segments())

	e.Replay(protocol.NewStrokeStart(0, 0, "", 0))
	e.Replay(protocol.NewStrokeDraw(1, 1, "", 0))
	e.Replay(protocol.NewStrokeEnd())
	e.Replay(protocol.NewStrokeDraw(2, 2, "", 0))

	require.Len(t, canvas.Segments(), 1)
	assert.Equal(t, Style{Color: DefaultColor, LineWidth: DefaultLineWidth}, canvas.Segments()[0].Style)
}

func TestResetClearsCanvas(t *testing.T) {
	canvas := NewRecorder(Size{})
	canDraw := true
	e := NewEngine(canvas, Style{}, allow(&canDraw))

	e.PointerDown(Point{})
	e.PointerMove(Point{X: 1, Y: 1})
	e.Replay(protocol.NewStrokeStart(0, 0, "", 0))
	require.Len(t, canvas.Segments(), 1)

	e.Reset()
	assert.Empty(t, canvas.Segments())
	assert.Equal(t, 1, canvas.Clears())
	assert.False(t, e.Drawing())
	assert.False(t, e.Replaying())

	// a stale draw after the reset has no anchor
	e.Replay(protocol.NewStrokeDraw(3, 3, "", 0))
	assert.Empty(t, canvas.Segments())
}
