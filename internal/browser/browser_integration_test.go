//go:build integration

package browser

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/v0xg/sessionrec/internal/action"
	"github.com/v0xg/sessionrec/internal/capture"
	"github.com/v0xg/sessionrec/internal/dom"
)

const fixture = `<!doctype html><html><head><title>Fixture</title></head><body>
<button id="go" onclick="document.body.appendChild(document.createElement('p'))">Go</button>
</body></html>`

func TestRecordClick(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, fixture)
	}))
	defer srv.Close()

	b, err := Launch(Options{Headless: true, Width: 800, Height: 600})
	require.NoError(t, err)
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	tab, err := b.Open(ctx, srv.URL)
	require.NoError(t, err)
	defer tab.Close()

	records := make(chan action.Record, 4)
	norm := capture.New(capture.PublisherFunc(func(_ context.Context, rec action.Record) bool {
		records <- rec
		return true
	}), capture.WithStabilizer(tab.Stabilizer()), capture.WithCapturer(tab))
	defer norm.Close()

	release, err := tab.Attach(ctx, norm.Handle)
	require.NoError(t, err)
	defer release()

	meta, err := tab.Metadata(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Fixture", meta.Title)
	assert.Equal(t, 800, meta.Viewport.Width)

	el, err := tab.Page().Context(ctx).Element("#go")
	require.NoError(t, err)
	require.NoError(t, el.Click(proto.InputMouseButtonLeft, 1))

	select {
	case rec := <-records:
		assert.Equal(t, action.KindClick, rec.Kind)
		require.NotNil(t, rec.Target)
		assert.Equal(t, "#go", rec.Target.Selector)
		require.NotNil(t, rec.Screenshot)
	case <-ctx.Done():
		t.Fatal("no record")
	}
}

const hoverFixture = `<!doctype html><html><head><title>Hover</title></head><body style="margin:0">
<div class="wrapper" style="padding:40px;width:200px">
<button id="info" aria-describedby="tip" style="width:120px;height:30px">Info</button>
</div>
</body></html>`

func TestHoverBurstReachesHandler(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, hoverFixture)
	}))
	defer srv.Close()

	b, err := Launch(Options{Headless: true, Width: 800, Height: 600})
	require.NoError(t, err)
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	tab, err := b.Open(ctx, srv.URL)
	require.NoError(t, err)
	defer tab.Close()

	hovered := make(chan string, 16)
	release, err := tab.Attach(ctx, func(ev capture.RawEvent) {
		if ev.Type != "mouseover" {
			return
		}
		doc, err := dom.Parse(ev.Snapshot)
		if err != nil {
			return
		}
		hovered <- dom.Tag(doc.ElementAt(ev.Ordinal))
	})
	require.NoError(t, err)
	defer release()

	mouse := tab.Page().Context(ctx).Mouse
	require.NoError(t, mouse.MoveTo(proto.Point{X: 10, Y: 10}))
	require.NoError(t, mouse.MoveTo(proto.Point{X: 100, Y: 55}))

	for {
		select {
		case tag := <-hovered:
			if tag == "button" {
				return
			}
		case <-ctx.Done():
			t.Fatal("hover on the button never reached the handler")
		}
	}
}

func TestAbandonedImageWaitClearsMarker(t *testing.T) {
	unblock := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/slow.png" {
			<-unblock
			return
		}
		fmt.Fprint(w, `<!doctype html><html><body><img src="/slow.png" width="50" height="50"></body></html>`)
	}))
	defer srv.Close()
	defer close(unblock)

	b, err := Launch(Options{Headless: true, Width: 800, Height: 600})
	require.NoError(t, err)
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// the load event never fires while the image hangs
	tab, err := b.Open(ctx, "")
	require.NoError(t, err)
	defer tab.Close()
	page := tab.Page().Context(ctx)
	require.NoError(t, page.Navigate(srv.URL))
	_, err = page.Element("img")
	require.NoError(t, err)

	wctx, stop := context.WithCancel(ctx)
	pending, err := tab.PendingViewportImages(wctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	stop()
	<-pending[0]

	require.Eventually(t, func() bool {
		res, err := page.Eval(`() => document.querySelector('[data-sessionrec-wait]') === null`)
		return err == nil && res.Value.Bool()
	}, 5*time.Second, 50*time.Millisecond)
}
