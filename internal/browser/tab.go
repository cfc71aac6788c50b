package browser

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"
	"go.uber.org/zap"

	"github.com/v0xg/sessionrec/internal/action"
	"github.com/v0xg/sessionrec/internal/capture"
	"github.com/v0xg/sessionrec/internal/readiness"
	"github.com/v0xg/sessionrec/internal/session"
)

// ErrAttached is returned when a tab already reports to a handler
var ErrAttached = errors.New("probe already attached")

// Tab is one recorded browser tab. It is the page-side collaborator of the
// recording core: event source, readiness instrumentation and screenshot capture.
type Tab struct {
	page   *rod.Page
	logger *zap.Logger
	format proto.PageCaptureScreenshotFormat

	mu        sync.Mutex
	handler   func(capture.RawEvent)
	observers map[int]chan struct{}
	nextObs   int
}

func newTab(page *rod.Page, logger *zap.Logger) *Tab {
	return &Tab{
		page:      page,
		logger:    logger.With(zap.String("tab", string(page.TargetID))),
		format:    proto.PageCaptureScreenshotFormatPng,
		observers: make(map[int]chan struct{}),
	}
}

// ID returns the DevTools target id
func (t *Tab) ID() string {
	return string(t.page.TargetID)
}

// Page returns the underlying Rod page
func (t *Tab) Page() *rod.Page {
	return t.page
}

// SetScreenshotFormat switches between png and jpeg captures
func (t *Tab) SetScreenshotFormat(format string) {
	if format == "jpeg" {
		t.format = proto.PageCaptureScreenshotFormatJpeg
		return
	}
	t.format = proto.PageCaptureScreenshotFormatPng
}

// Close closes the tab
func (t *Tab) Close() error {
	return t.page.Close()
}

// Navigate loads url and waits for the load event
func (t *Tab) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	page := t.page.Context(ctx).Timeout(timeout)
	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("wait load %s: %w", url, err)
	}
	return nil
}

// probeMessage is what the probe sends through the binding
type probeMessage struct {
	Channel string           `json:"channel"`
	Event   capture.RawEvent `json:"event"`
}

func decodeMessage(payload gson.JSON) (probeMessage, error) {
	var msg probeMessage
	raw, err := payload.MarshalJSON()
	if err != nil {
		return msg, err
	}
	if err := json.Unmarshal(raw, &msg); err != nil {
		return msg, fmt.Errorf("decode probe message: %w", err)
	}
	return msg, nil
}

// Attach installs the probe and routes its events to handler until the
// returned release func is called. The probe survives navigations.
func (t *Tab) Attach(ctx context.Context, handler func(capture.RawEvent)) (release func() error, err error) {
	t.mu.Lock()
	if t.handler != nil {
		t.mu.Unlock()
		return nil, ErrAttached
	}
	t.handler = handler
	t.mu.Unlock()

	var cleanup []func() error
	release = func() error {
		t.mu.Lock()
		t.handler = nil
		t.mu.Unlock()
		var errs []error
		for i := len(cleanup) - 1; i >= 0; i-- {
			if err := cleanup[i](); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
	fail := func(err error) (func() error, error) {
		_ = release()
		return nil, err
	}

	page := t.page.Context(ctx)
	if err := (proto.NetworkEnable{}).Call(page); err != nil {
		return fail(fmt.Errorf("enable network domain: %w", err))
	}

	stop, err := page.Expose(bindingName, t.dispatch)
	if err != nil {
		return fail(fmt.Errorf("expose binding: %w", err))
	}
	cleanup = append(cleanup, stop)

	remove, err := page.EvalOnNewDocument("(" + probeFn + ")()")
	if err != nil {
		return fail(fmt.Errorf("install probe: %w", err))
	}
	cleanup = append(cleanup, remove)

	if _, err := page.Eval(probeFn); err != nil {
		return fail(fmt.Errorf("run probe: %w", err))
	}
	cleanup = append(cleanup, func() error {
		_, err := t.page.Eval(removeBadgeFn)
		return err
	})

	t.logger.Debug("probe attached")
	return release, nil
}

// dispatch is the binding callback. It runs on rod's event goroutine, so it
// only hands events over and never calls back into the page.
func (t *Tab) dispatch(payload gson.JSON) (interface{}, error) {
	msg, err := decodeMessage(payload)
	if err != nil {
		t.logger.Debug("bad probe message", zap.Error(err))
		return nil, nil
	}

	switch msg.Channel {
	case "mutation":
		t.mu.Lock()
		for _, ch := range t.observers {
			select {
			case ch <- struct{}{}:
			default:
			}
		}
		t.mu.Unlock()
	case "event":
		t.mu.Lock()
		h := t.handler
		t.mu.Unlock()
		if h != nil {
			h(msg.Event)
		}
	}
	return nil, nil
}

// Observe implements readiness.MutationSource over the probe's observer
func (t *Tab) Observe(ctx context.Context) (<-chan struct{}, func(), error) {
	ch := make(chan struct{}, 1)

	t.mu.Lock()
	id := t.nextObs
	t.nextObs++
	t.observers[id] = ch
	t.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.observers, id)
			t.mu.Unlock()
		})
	}, nil
}

// PendingViewportImages implements readiness.ImageSource
func (t *Tab) PendingViewportImages(ctx context.Context) ([]<-chan struct{}, error) {
	page := t.page.Context(ctx)
	res, err := page.Eval(viewportImagesFn)
	if err != nil {
		return nil, fmt.Errorf("list viewport images: %w", err)
	}

	var out []<-chan struct{}
	for _, token := range res.Value.Arr() {
		loaded := make(chan struct{})
		go func(token string) {
			defer close(loaded)
			_, err := page.Evaluate(rod.Eval(imageLoadedFn, token).ByPromise())
			if ctx.Err() != nil {
				t.clearImageMark(token)
				return
			}
			if err != nil {
				t.logger.Debug("image wait failed", zap.String("token", token), zap.Error(err))
			}
		}(token.Str())
		out = append(out, loaded)
	}
	return out, nil
}

func (t *Tab) clearImageMark(token string) {
	if _, err := t.page.Timeout(time.Second).Eval(clearImageMarkFn, token); err != nil {
		t.logger.Debug("clear image marker", zap.String("token", token), zap.Error(err))
	}
}

// VisibleTooltip implements capture.TooltipProbe
func (t *Tab) VisibleTooltip(ctx context.Context) (string, bool) {
	res, err := t.page.Context(ctx).Eval(tooltipFn)
	if err != nil {
		t.logger.Debug("tooltip probe failed", zap.Error(err))
		return "", false
	}
	text := res.Value.Str()
	return text, text != ""
}

// CaptureScreenshot implements capture.Capturer
func (t *Tab) CaptureScreenshot(ctx context.Context) (*action.Screenshot, error) {
	req := &proto.PageCaptureScreenshot{Format: t.format}
	if t.format == proto.PageCaptureScreenshotFormatJpeg {
		quality := 85
		req.Quality = &quality
	}
	data, err := t.page.Context(ctx).Screenshot(false, req)
	if err != nil {
		return nil, fmt.Errorf("capture screenshot: %w", err)
	}
	return &action.Screenshot{Format: string(t.format), Data: data}, nil
}

// CaptureFrame grabs the viewport as a decoded image
func (t *Tab) CaptureFrame(ctx context.Context) (image.Image, error) {
	shot, err := t.CaptureScreenshot(ctx)
	if err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(shot.Data))
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	return img, nil
}

// Metadata reads title, viewport and user agent of the current document
func (t *Tab) Metadata(ctx context.Context) (session.Metadata, error) {
	res, err := t.page.Context(ctx).Eval(metadataFn)
	if err != nil {
		return session.Metadata{}, fmt.Errorf("read metadata: %w", err)
	}
	v := res.Value
	return session.Metadata{
		Title:     v.Get("title").Str(),
		Viewport:  session.Viewport{Width: v.Get("width").Int(), Height: v.Get("height").Int()},
		UserAgent: v.Get("userAgent").Str(),
	}, nil
}

// SetBadge updates the on-page recording badge
func (t *Tab) SetBadge(state string) {
	if _, err := t.page.Eval(setBadgeFn, state); err != nil {
		t.logger.Debug("update badge", zap.Error(err))
	}
}

// Stabilizer builds a readiness coordinator backed by this tab
func (t *Tab) Stabilizer(opts ...readiness.Option) *readiness.Coordinator {
	base := []readiness.Option{
		readiness.WithMutationSource(t),
		readiness.WithNetworkMonitor(t),
		readiness.WithImageSource(t),
		readiness.WithLogger(t.logger),
	}
	return readiness.New(append(base, opts...)...)
}
