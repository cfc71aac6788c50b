package overlay

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/v0xg/sessionrec/internal/action"
)

// CursorSize is the size of the cursor sprite
const CursorSize = 20

// CursorState represents the visual state of the cursor
type CursorState int

const (
	CursorNone CursorState = iota
	CursorPointer
	CursorText
)

// Marker is what gets drawn on a frame for one action
type Marker struct {
	X      int
	Y      int
	Box    image.Rectangle // target outline, empty for none
	Click  bool            // draw the click ripple
	Cursor CursorState
}

// Visible reports whether drawing m changes the frame
func (m Marker) Visible() bool {
	return m.Cursor != CursorNone || m.Click || !m.Box.Empty()
}

// ForRecord derives the marker of rec. scale converts CSS pixels to image
// pixels (image width / viewport width).
func ForRecord(rec action.Record, scale float64) (Marker, bool) {
	if rec.Target == nil || rec.Target.Box.Empty() {
		return Marker{}, false
	}
	if scale <= 0 {
		scale = 1
	}
	b := rec.Target.Box
	box := image.Rect(
		int(b.X*scale), int(b.Y*scale),
		int((b.X+b.Width)*scale), int((b.Y+b.Height)*scale),
	)
	cx, cy := b.Center()
	m := Marker{
		X:   int(float64(cx) * scale),
		Y:   int(float64(cy) * scale),
		Box: box,
	}

	switch rec.Kind {
	case action.KindClick, action.KindDoubleClick, action.KindSubmit:
		m.Click = true
		m.Cursor = CursorPointer
	case action.KindInput, action.KindChange, action.KindFocus, action.KindKeyPress:
		m.Cursor = CursorText
	case action.KindHover:
		m.Cursor = CursorPointer
	}
	return m, true
}

// Keyframe pins a marker to a frame index
type Keyframe struct {
	Frame  int
	Marker Marker
}

// Interpolate spreads keyframes across frameCount frames. The cursor eases
// from one keyframe to the next; ripples and outlines only appear on the
// keyframe itself and the frames that follow it until the next move starts.
func Interpolate(keys []Keyframe, frameCount int) []Marker {
	result := make([]Marker, frameCount)
	if len(keys) == 0 {
		return result
	}

	for i := 0; i < frameCount; i++ {
		k := 0
		for k+1 < len(keys) && keys[k+1].Frame <= i {
			k++
		}
		cur := keys[k]

		if i < cur.Frame {
			// before the first action
			continue
		}
		if k+1 >= len(keys) {
			result[i] = cur.Marker
			continue
		}

		next := keys[k+1]
		span := next.Frame - cur.Frame
		hold := span / 2
		if i-cur.Frame <= hold {
			result[i] = cur.Marker
			continue
		}

		// move towards the next action during the second half of the gap
		progress := easeInOut(float64(i-cur.Frame-hold) / float64(span-hold))
		result[i] = Marker{
			X:      int(float64(cur.Marker.X) + progress*float64(next.Marker.X-cur.Marker.X)),
			Y:      int(float64(cur.Marker.Y) + progress*float64(next.Marker.Y-cur.Marker.Y)),
			Cursor: cur.Marker.Cursor,
		}
	}

	return result
}

// easeInOut provides smooth acceleration and deceleration
func easeInOut(t float64) float64 {
	if t < 0.5 {
		return 2 * t * t
	}
	return 1 - math.Pow(-2*t+2, 2)/2
}

// Draw returns a copy of frame with m drawn on top
func Draw(frame image.Image, m Marker) *image.RGBA {
	bounds := frame.Bounds()
	result := image.NewRGBA(bounds)
	draw.Draw(result, bounds, frame, bounds.Min, draw.Src)

	if !m.Box.Empty() {
		drawRect(result, m.Box, color.RGBA{255, 122, 0, 255}, 2)
	}
	if m.Click {
		drawClickRipple(result, m.X, m.Y)
	}
	if m.Cursor != CursorNone {
		drawCursor(result, m.X, m.Y, m.Cursor)
	}
	return result
}

// drawCursor draws an arrow, or an I-beam for text fields
func drawCursor(img *image.RGBA, x, y int, state CursorState) {
	outline := color.RGBA{0, 0, 0, 255}
	fill := color.RGBA{255, 255, 255, 255}

	if state == CursorText {
		drawLine(img, x, y-8, x, y+8, outline)
		drawLine(img, x-3, y-8, x+3, y-8, outline)
		drawLine(img, x-3, y+8, x+3, y+8, outline)
		return
	}

	points := []struct{ dx, dy int }{
		{0, 0},
		{0, 16},
		{4, 12},
		{7, 18},
		{10, 17},
		{7, 11},
		{12, 11},
	}

	for dy := 0; dy < 18; dy++ {
		for dx := 0; dx < 13; dx++ {
			if isInsideCursor(dx, dy) {
				setPixelSafe(img, x+dx, y+dy, fill)
			}
		}
	}
	for i := range points {
		p1 := points[i]
		p2 := points[(i+1)%len(points)]
		drawLine(img, x+p1.dx, y+p1.dy, x+p2.dx, y+p2.dy, outline)
	}
}

// isInsideCursor checks if a point is inside the arrow shape
func isInsideCursor(dx, dy int) bool {
	if dy < 0 || dy > 16 || dx < 0 {
		return false
	}
	if dy <= 11 {
		return dx <= dy*12/16
	}
	return dx <= 4
}

// drawRect outlines r with the given stroke width, clipped to the image
func drawRect(img *image.RGBA, r image.Rectangle, c color.RGBA, width int) {
	for w := 0; w < width; w++ {
		x0, y0 := r.Min.X+w, r.Min.Y+w
		x1, y1 := r.Max.X-1-w, r.Max.Y-1-w
		if x0 > x1 || y0 > y1 {
			return
		}
		drawLine(img, x0, y0, x1, y0, c)
		drawLine(img, x0, y1, x1, y1, c)
		drawLine(img, x0, y0, x0, y1, c)
		drawLine(img, x1, y0, x1, y1, c)
	}
}

// drawLine draws a line between two points using Bresenham's algorithm
func drawLine(img *image.RGBA, x1, y1, x2, y2 int, c color.RGBA) {
	dx := abs(x2 - x1)
	dy := abs(y2 - y1)
	sx := 1
	if x1 > x2 {
		sx = -1
	}
	sy := 1
	if y1 > y2 {
		sy = -1
	}
	err := dx - dy

	for {
		setPixelSafe(img, x1, y1, c)
		if x1 == x2 && y1 == y2 {
			break
		}
		e2 := 2 * err
		if e2 > -dy {
			err -= dy
			x1 += sx
		}
		if e2 < dx {
			err += dx
			y1 += sy
		}
	}
}

// drawClickRipple draws a ring around the click point
func drawClickRipple(img *image.RGBA, x, y int) {
	rippleColor := color.RGBA{66, 133, 244, 255}
	radius := 15

	for angle := 0.0; angle < 360; angle++ {
		rad := angle * math.Pi / 180
		px := x + int(float64(radius)*math.Cos(rad))
		py := y + int(float64(radius)*math.Sin(rad))
		setPixelSafe(img, px, py, rippleColor)
		setPixelSafe(img, px+1, py, rippleColor)
		setPixelSafe(img, px, py+1, rippleColor)
	}
}

func setPixelSafe(img *image.RGBA, x, y int, c color.RGBA) {
	if (image.Point{X: x, Y: y}).In(img.Bounds()) {
		img.SetRGBA(x, y, c)
	}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
