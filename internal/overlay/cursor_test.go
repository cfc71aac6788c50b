package overlay

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/v0xg/sessionrec/internal/action"
)

func blank(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	return img
}

func TestForRecord(t *testing.T) {
	rec := action.Record{
		Kind:   action.KindClick,
		Target: &action.Target{Box: action.BoundingBox{X: 10, Y: 20, Width: 100, Height: 40}},
	}

	m, ok := ForRecord(rec, 2)
	require.True(t, ok)
	assert.Equal(t, image.Rect(20, 40, 220, 120), m.Box)
	assert.Equal(t, 120, m.X)
	assert.Equal(t, 80, m.Y)
	assert.True(t, m.Click)
	assert.Equal(t, CursorPointer, m.Cursor)

	rec.Kind = action.KindInput
	m, _ = ForRecord(rec, 1)
	assert.False(t, m.Click)
	assert.Equal(t, CursorText, m.Cursor)

	_, ok = ForRecord(action.Record{Kind: action.KindScroll}, 1)
	assert.False(t, ok, "viewport-only records have no marker")

	_, ok = ForRecord(action.Record{Kind: action.KindClick, Target: &action.Target{}}, 1)
	assert.False(t, ok, "zero-size boxes have no marker")
}

func TestDraw_DoesNotModifySource(t *testing.T) {
	src := blank(100, 100)
	m := Marker{X: 50, Y: 50, Box: image.Rect(10, 10, 90, 90), Click: true, Cursor: CursorPointer}

	out := Draw(src, m)

	assert.Equal(t, color.RGBA{255, 255, 255, 255}, src.RGBAAt(10, 10))
	assert.Equal(t, color.RGBA{255, 122, 0, 255}, out.RGBAAt(10, 10), "outline corner")
	assert.Equal(t, color.RGBA{255, 122, 0, 255}, out.RGBAAt(11, 50), "second stroke")
	assert.Equal(t, color.RGBA{0, 0, 0, 255}, out.RGBAAt(50, 50), "cursor tip")
	assert.Equal(t, color.RGBA{66, 133, 244, 255}, out.RGBAAt(65, 50), "ripple at radius")
}

func TestDraw_ClipsAtEdges(t *testing.T) {
	src := blank(20, 20)
	assert.NotPanics(t, func() {
		Draw(src, Marker{X: 19, Y: 19, Box: image.Rect(-5, -5, 40, 40), Click: true, Cursor: CursorText})
	})
}

func TestInterpolate(t *testing.T) {
	a := Marker{X: 0, Y: 0, Click: true, Cursor: CursorPointer}
	b := Marker{X: 100, Y: 200, Cursor: CursorText}

	got := Interpolate([]Keyframe{{Frame: 2, Marker: a}, {Frame: 12, Marker: b}}, 15)
	require.Len(t, got, 15)

	assert.False(t, got[0].Visible(), "nothing before the first action")
	assert.Equal(t, a, got[2])
	assert.Equal(t, a, got[7], "hold for half the gap")
	assert.False(t, got[9].Click, "ripple only while holding")
	assert.Greater(t, got[9].X, 0)
	assert.Less(t, got[9].X, 100)
	assert.Equal(t, b, got[12])
	assert.Equal(t, b, got[14])

	assert.Len(t, Interpolate(nil, 3), 3)
}
