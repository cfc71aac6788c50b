package gifgen

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/gif"
	"io"
	"os"
	"sort"
	"time"

	"github.com/nfnt/resize"
)

// ErrNoFrames is returned when there is nothing to encode
var ErrNoFrames = errors.New("no frames to encode")

// Frame is one image of the animation and how long it stays on screen
type Frame struct {
	Image image.Image
	Delay time.Duration
}

// Options configures GIF generation
type Options struct {
	MaxWidth  uint // output width, height keeps the aspect ratio
	MaxColors int  // palette size, at most 256
}

// Encode writes frames as a looping animated GIF
func Encode(w io.Writer, frames []Frame, opts Options) error {
	if len(frames) == 0 {
		return ErrNoFrames
	}

	bounds := frames[0].Image.Bounds()
	outputWidth := opts.MaxWidth
	if outputWidth == 0 {
		outputWidth = 800
	}
	if outputWidth > uint(bounds.Dx()) {
		outputWidth = uint(bounds.Dx())
	}
	aspectRatio := float64(bounds.Dy()) / float64(bounds.Dx())
	outputHeight := uint(float64(outputWidth) * aspectRatio)

	g := &gif.GIF{
		Image:     make([]*image.Paletted, len(frames)),
		Delay:     make([]int, len(frames)),
		LoopCount: 0,
	}

	palette := generatePalette(frames[0].Image, opts.MaxColors)

	for i, frame := range frames {
		resized := resize.Resize(outputWidth, outputHeight, frame.Image, resize.Lanczos3)

		paletted := image.NewPaletted(resized.Bounds(), palette)
		draw.FloydSteinberg.Draw(paletted, resized.Bounds(), resized, resized.Bounds().Min)

		g.Image[i] = paletted
		g.Delay[i] = centiseconds(frame.Delay)
	}

	if err := gif.EncodeAll(w, g); err != nil {
		return fmt.Errorf("encode gif: %w", err)
	}
	return nil
}

// WriteFile encodes frames into path and returns the file size
func WriteFile(path string, frames []Frame, opts Options) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	if err := Encode(f, frames, opts); err != nil {
		return 0, err
	}
	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// centiseconds converts a frame delay to GIF units, at least one
func centiseconds(d time.Duration) int {
	cs := int(d / (10 * time.Millisecond))
	if cs < 1 {
		cs = 1
	}
	return cs
}

// generatePalette builds a palette from the most frequent colors of img
func generatePalette(img image.Image, maxColors int) color.Palette {
	if maxColors <= 1 || maxColors > 256 {
		maxColors = 256
	}

	bounds := img.Bounds()
	colorMap := make(map[color.RGBA]int)

	// sample every 4th pixel
	step := 4
	for y := bounds.Min.Y; y < bounds.Max.Y; y += step {
		for x := bounds.Min.X; x < bounds.Max.X; x += step {
			r, g, b, _ := img.At(x, y).RGBA()
			c := color.RGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8), A: 255}
			colorMap[c]++
		}
	}

	type colorCount struct {
		c     color.RGBA
		count int
	}
	colors := make([]colorCount, 0, len(colorMap))
	for c, count := range colorMap {
		colors = append(colors, colorCount{c, count})
	}
	sort.Slice(colors, func(i, j int) bool {
		if colors[i].count != colors[j].count {
			return colors[i].count > colors[j].count
		}
		a, b := colors[i].c, colors[j].c
		return uint32(a.R)<<16|uint32(a.G)<<8|uint32(a.B) < uint32(b.R)<<16|uint32(b.G)<<8|uint32(b.B)
	})

	palette := make(color.Palette, 0, maxColors)
	// marker colors first so overlays survive quantization
	palette = append(palette,
		color.RGBA{0, 0, 0, 255},
		color.RGBA{255, 255, 255, 255},
		color.RGBA{255, 122, 0, 255},
		color.RGBA{66, 133, 244, 255},
	)
	for i := 0; i < len(colors) && len(palette) < maxColors; i++ {
		palette = append(palette, colors[i].c)
	}

	// pad with grayscale
	for len(palette) < maxColors {
		gray := uint8(len(palette) * 255 / maxColors)
		palette = append(palette, color.RGBA{gray, gray, gray, 255})
	}

	return palette
}
