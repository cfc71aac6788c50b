package export

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"html/template"
	"image"
	_ "image/jpeg"
	"image/png"
	"io"
	"time"

	"github.com/nfnt/resize"

	"github.com/v0xg/sessionrec/internal/action"
	"github.com/v0xg/sessionrec/internal/gifgen"
	"github.com/v0xg/sessionrec/internal/overlay"
	"github.com/v0xg/sessionrec/internal/session"
)

// annotated decodes rec's screenshot and draws its target marker on it
func annotated(exp session.Export, rec action.Record) (image.Image, error) {
	if rec.Screenshot == nil {
		return nil, nil
	}
	img, _, err := image.Decode(bytes.NewReader(rec.Screenshot.Data))
	if err != nil {
		return nil, fmt.Errorf("decode screenshot: %w", err)
	}

	scale := 1.0
	if vw := exp.Metadata.Viewport.Width; vw > 0 {
		scale = float64(img.Bounds().Dx()) / float64(vw)
	}
	if m, ok := overlay.ForRecord(rec, scale); ok {
		return overlay.Draw(img, m), nil
	}
	return img, nil
}

type htmlStep struct {
	Number      int
	Offset      string
	Description string
	URL         string
	Image       template.URL
}

var pageTemplate = template.Must(template.New("session").Parse(`<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font: 15px/1.5 system-ui, sans-serif; max-width: 960px; margin: 2em auto; color: #202124; }
header p { color: #5f6368; margin: 0; }
.summary { background: #f1f3f4; padding: .75em 1em; border-radius: 6px; }
ol { padding: 0; list-style: none; }
li { margin: 2em 0; }
.time { font-family: ui-monospace, monospace; color: #5f6368; margin-right: .5em; }
img { display: block; max-width: 100%; margin-top: .5em; border: 1px solid #dadce0; border-radius: 4px; }
</style>
</head>
<body>
<header>
<h1>{{.Title}}</h1>
<p><a href="{{.URL}}">{{.URL}}</a></p>
<p>{{.Recorded}} &middot; {{.Duration}}{{range .Tags}} &middot; {{.}}{{end}}</p>
</header>
{{if .Summary}}<p class="summary">{{.Summary}}</p>{{end}}
<ol>
{{range .Steps}}<li>
<div><span class="time">{{.Offset}}</span><strong>{{.Number}}.</strong> {{.Description}}</div>
{{if .Image}}<img src="{{.Image}}" alt="Step {{.Number}}">{{end}}
</li>
{{else}}<li>No actions recorded.</li>
{{end}}</ol>
</body>
</html>
`))

// WriteHTML writes a self-contained page with one annotated screenshot per step
func WriteHTML(w io.Writer, exp session.Export, opts Options) error {
	steps := make([]htmlStep, 0, len(exp.Actions))
	for i, rec := range exp.Actions {
		step := htmlStep{
			Number:      i + 1,
			Offset:      offset(exp, rec),
			Description: Describe(rec),
			URL:         rec.URL,
		}
		img, err := annotated(exp, rec)
		if err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
		if img != nil {
			uri, err := dataURI(img, opts.ThumbnailWidth)
			if err != nil {
				return fmt.Errorf("step %d: %w", i+1, err)
			}
			step.Image = uri
		}
		steps = append(steps, step)
	}

	return pageTemplate.Execute(w, map[string]interface{}{
		"Title":    opts.title(exp),
		"URL":      exp.URL,
		"Recorded": exp.StartTime.UTC().Format("2006-01-02 15:04:05 MST"),
		"Duration": exp.Elapsed().String(),
		"Tags":     exp.Metadata.Tags,
		"Summary":  opts.Summary,
		"Steps":    steps,
	})
}

// dataURI encodes img as an inline PNG, scaled down to width when it is wider
func dataURI(img image.Image, width uint) (template.URL, error) {
	if width > 0 && uint(img.Bounds().Dx()) > width {
		img = resize.Resize(width, 0, img, resize.Lanczos3)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("encode thumbnail: %w", err)
	}
	return template.URL("data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())), nil
}

// Frames turns the screenshots of exp into an annotated slideshow, one frame
// per step that has a screenshot
func Frames(exp session.Export, opts Options) ([]gifgen.Frame, error) {
	delay := opts.FrameDelay
	if delay == 0 {
		delay = 1200 * time.Millisecond
	}

	var frames []gifgen.Frame
	for i, rec := range exp.Actions {
		img, err := annotated(exp, rec)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
		if img == nil {
			continue
		}
		frames = append(frames, gifgen.Frame{Image: img, Delay: delay})
	}
	if len(frames) == 0 {
		return nil, gifgen.ErrNoFrames
	}
	// hold the last step twice as long
	frames[len(frames)-1].Delay *= 2
	return frames, nil
}

// WriteGIF writes the annotated slideshow of exp as an animated GIF
func WriteGIF(w io.Writer, exp session.Export, opts Options) error {
	frames, err := Frames(exp, opts)
	if err != nil {
		return err
	}
	return gifgen.Encode(w, frames, gifgen.Options{MaxWidth: opts.MaxWidth, MaxColors: opts.MaxColors})
}
