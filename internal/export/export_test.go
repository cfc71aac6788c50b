package export

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/v0xg/sessionrec/internal/action"
	"github.com/v0xg/sessionrec/internal/gifgen"
	"github.com/v0xg/sessionrec/internal/session"
)

var start = time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)

func screenshot(t *testing.T, w, h int) *action.Screenshot {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{240, 240, 240, 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return &action.Screenshot{Format: "png", Data: buf.Bytes()}
}

func sample(t *testing.T) session.Export {
	checked := true
	return session.Export{
		ID:        "9b2f",
		URL:       "https://shop.test/login",
		StartTime: start,
		EndTime:   start.Add(75 * time.Second),
		Duration:  75000,
		Metadata: session.Metadata{
			Title:    "Sign in",
			Viewport: session.Viewport{Width: 400, Height: 200},
			Tags:     []string{"smoke"},
		},
		Actions: []action.Record{
			{
				Kind:      action.KindInput,
				Timestamp: start.Add(1500 * time.Millisecond),
				Target:    &action.Target{Tag: "input", Selector: "#email", Box: action.BoundingBox{X: 10, Y: 10, Width: 100, Height: 20}},
				Payload:   action.Payload{Value: "j***@corp.com"},
			},
			{
				Kind:      action.KindChange,
				Timestamp: start.Add(3 * time.Second),
				Target:    &action.Target{Tag: "input", Selector: "#agree"},
				Payload:   action.Payload{Checked: &checked},
			},
			{
				Kind:       action.KindClick,
				Timestamp:  start.Add(62300 * time.Millisecond),
				Target:     &action.Target{Tag: "button", Selector: "#submit-btn", Text: "Sign in", Box: action.BoundingBox{X: 20, Y: 50, Width: 60, Height: 20}},
				Screenshot: screenshot(t, 200, 100),
			},
			{
				Kind:      action.KindScroll,
				Timestamp: start.Add(70 * time.Second),
				Payload:   action.Payload{ScrollY: 480},
			},
		},
	}
}

func TestDescribe(t *testing.T) {
	checked := false
	tests := []struct {
		rec  action.Record
		want string
	}{
		{action.Record{Kind: action.KindClick, Target: &action.Target{Selector: "#go", Text: "Go"}}, `Click "Go" (#go)`},
		{action.Record{Kind: action.KindDoubleClick, Target: &action.Target{FallbackLocator: "(//*)[4]"}}, `Double-click (//*)[4]`},
		{action.Record{Kind: action.KindInput, Target: &action.Target{Selector: "#q"}, Payload: action.Payload{Value: "shoes"}}, `Type "shoes" into #q`},
		{action.Record{Kind: action.KindChange, Target: &action.Target{Selector: "#c"}, Payload: action.Payload{Checked: &checked}}, `Uncheck #c`},
		{action.Record{Kind: action.KindChange, Target: &action.Target{Selector: "#country"}, Payload: action.Payload{Value: "NZ"}}, `Set #country to "NZ"`},
		{action.Record{Kind: action.KindSubmit, Target: &action.Target{Selector: "#login"}, Payload: action.Payload{Fields: map[string]string{"user": "a", "pw": "********"}}}, `Submit #login with pw="********", user="a"`},
		{action.Record{Kind: action.KindKeyPress, Payload: action.Payload{Key: "Enter"}}, `Press Enter`},
		{action.Record{Kind: action.KindScroll, Payload: action.Payload{ScrollX: 0, ScrollY: 480}}, `Scroll to 0, 480`},
		{action.Record{Kind: action.KindHover, Target: &action.Target{Selector: "#help"}, Payload: action.Payload{Tooltip: "Help"}}, `Hover over #help (tooltip "Help")`},
		{action.Record{Kind: action.KindFocus, Target: &action.Target{Tag: "textarea"}}, `Focus textarea`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Describe(tt.rec))
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, sample(t)))

	var got session.Export
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "9b2f", got.ID)
	assert.Equal(t, int64(75000), got.Duration)
	require.Len(t, got.Actions, 4)
	assert.Nil(t, got.Actions[3].Target)
	assert.NotEmpty(t, got.Actions[2].Screenshot.Data)
}

func TestWriteMarkdown(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteMarkdown(&buf, sample(t), Options{Summary: "Logs in."}))
	out := buf.String()

	assert.True(t, strings.HasPrefix(out, "# Sign in\n"))
	assert.Contains(t, out, "- Duration: 1m15s\n")
	assert.Contains(t, out, "- Tags: smoke\n")
	assert.Contains(t, out, "\nLogs in.\n")
	assert.Contains(t, out, "1. `0:01.5` Type \"j***@corp.com\" into #email\n")
	assert.Contains(t, out, "2. `0:03.0` Check #agree\n")
	assert.Contains(t, out, "3. `1:02.3` Click \"Sign in\" (#submit-btn)\n")
	assert.Contains(t, out, "4. `1:10.0` Scroll to 0, 480\n")
}

func TestWriteMarkdown_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteMarkdown(&buf, session.Export{URL: "https://a.test"}, Options{Title: "Empty"}))
	assert.Contains(t, buf.String(), "_No actions recorded._")
}

func TestWriteHTML(t *testing.T) {
	exp := sample(t)
	exp.Metadata.Title = "<script>alert(1)</script>"

	var buf bytes.Buffer
	require.NoError(t, WriteHTML(&buf, exp, Options{ThumbnailWidth: 100}))
	out := buf.String()

	assert.NotContains(t, out, "<script>alert(1)</script>")
	assert.Contains(t, out, "&lt;script&gt;")
	assert.Equal(t, 1, strings.Count(out, `src="data:image/png;base64,`))
	assert.Contains(t, out, "Click &#34;Sign in&#34; (#submit-btn)")
}

func TestDataURI_Scales(t *testing.T) {
	uri, err := dataURI(image.NewRGBA(image.Rect(0, 0, 400, 200)), 100)
	require.NoError(t, err)

	raw := strings.TrimPrefix(string(uri), "data:image/png;base64,")
	img, err := png.Decode(base64Reader(raw))
	require.NoError(t, err)
	assert.Equal(t, 100, img.Bounds().Dx())
	assert.Equal(t, 50, img.Bounds().Dy())
}

func base64Reader(s string) io.Reader {
	return base64.NewDecoder(base64.StdEncoding, strings.NewReader(s))
}

func TestFrames(t *testing.T) {
	frames, err := Frames(sample(t), Options{FrameDelay: time.Second})
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, 2*time.Second, frames[0].Delay)

	// viewport 400 wide, screenshot 200: the click box starts at (10,25)
	assert.Equal(t, color.RGBA{255, 122, 0, 255}, frames[0].Image.At(10, 25))
}

func TestFrames_NoScreenshots(t *testing.T) {
	_, err := Frames(session.Export{}, Options{})
	assert.ErrorIs(t, err, gifgen.ErrNoFrames)
}

func TestWriteGIF(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteGIF(&buf, sample(t), Options{MaxWidth: 100}))

	g, err := gif.DecodeAll(&buf)
	require.NoError(t, err)
	require.Len(t, g.Image, 1)
	assert.Equal(t, 240, g.Delay[0])
}
