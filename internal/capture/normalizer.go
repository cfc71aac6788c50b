// Package capture turns raw page events into normalized action records.
//
// Events are filtered, debounced and deduplicated on the caller's goroutine.
// Every surviving record then runs its own pipeline (readiness wait,
// screenshot, publish) so a slow page never blocks later events.
package capture

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/v0xg/sessionrec/internal/action"
	"github.com/v0xg/sessionrec/internal/dom"
	"github.com/v0xg/sessionrec/internal/locator"
	"github.com/v0xg/sessionrec/internal/readiness"
	"github.com/v0xg/sessionrec/internal/redact"
)

// Config holds the normalizer timing and filter settings
type Config struct {
	InputDebounce     time.Duration // quiet period before an input record is emitted
	ScrollDebounce    time.Duration // quiet period before a scroll record is emitted
	DuplicateWindow   time.Duration // same kind and target within this window is dropped
	HoverDelay        time.Duration // delay before checking for a visible tooltip
	ScreenshotTimeout time.Duration
	UIMarker          string // attribute marking the recorder's own UI
	TextLimit         int    // runes of target text kept
}

// DefaultConfig returns the standard normalizer settings
func DefaultConfig() Config {
	return Config{
		InputDebounce:     500 * time.Millisecond,
		ScrollDebounce:    200 * time.Millisecond,
		DuplicateWindow:   100 * time.Millisecond,
		HoverDelay:        100 * time.Millisecond,
		ScreenshotTimeout: 2 * time.Second,
		UIMarker:          "data-sessionrec-ui",
		TextLimit:         100,
	}
}

// Stabilizer waits until the page has settled after an action
type Stabilizer interface {
	AwaitStable(ctx context.Context, kind action.Kind) readiness.Report
}

// Capturer grabs the visible viewport
type Capturer interface {
	CaptureScreenshot(ctx context.Context) (*action.Screenshot, error)
}

// TooltipProbe reports the text of a visible tooltip, if any
type TooltipProbe interface {
	VisibleTooltip(ctx context.Context) (string, bool)
}

// Publisher receives finished records. It reports false when the record was
// not accepted, e.g. because the session is no longer recording.
type Publisher interface {
	Publish(ctx context.Context, rec action.Record) bool
}

// PublisherFunc adapts a function to Publisher
type PublisherFunc func(ctx context.Context, rec action.Record) bool

func (f PublisherFunc) Publish(ctx context.Context, rec action.Record) bool {
	return f(ctx, rec)
}

// Option configures a Normalizer
type Option func(*Normalizer)

func WithConfig(cfg Config) Option {
	return func(n *Normalizer) { n.cfg = cfg }
}

func WithClock(clock clockwork.Clock) Option {
	return func(n *Normalizer) { n.clock = clock }
}

func WithStabilizer(s Stabilizer) Option {
	return func(n *Normalizer) { n.stabilizer = s }
}

func WithCapturer(c Capturer) Option {
	return func(n *Normalizer) { n.capturer = c }
}

func WithTooltipProbe(p TooltipProbe) Option {
	return func(n *Normalizer) { n.tooltips = p }
}

// WithGate installs the recording check. Events arriving while it returns
// false are dropped before any processing.
func WithGate(gate func() bool) Option {
	return func(n *Normalizer) { n.gate = gate }
}

func WithLogger(logger *zap.Logger) Option {
	return func(n *Normalizer) { n.logger = logger }
}

type pendingInput struct {
	record action.Record
	timer  clockwork.Timer
}

type dupKey struct {
	kind   action.Kind
	target string
}

// Normalizer filters, debounces and completes raw events
type Normalizer struct {
	cfg        Config
	clock      clockwork.Clock
	stabilizer Stabilizer
	capturer   Capturer
	tooltips   TooltipProbe
	publisher  Publisher
	gate       func() bool
	logger     *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	closed   bool
	inputs   map[string]*pendingInput
	scroll   clockwork.Timer
	lastRaw  RawEvent // latest scroll event
	hover    clockwork.Timer
	lastSeen map[dupKey]time.Time
	inflight sync.WaitGroup
}

// New creates a normalizer that hands finished records to pub
func New(pub Publisher, opts ...Option) *Normalizer {
	n := &Normalizer{
		cfg:       DefaultConfig(),
		clock:     clockwork.NewRealClock(),
		publisher: pub,
		inputs:    make(map[string]*pendingInput),
		lastSeen:  make(map[dupKey]time.Time),
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.logger == nil {
		n.logger = zap.NewNop()
	}
	if n.stabilizer == nil {
		n.stabilizer = readiness.New(readiness.WithClock(n.clock), readiness.WithLogger(n.logger))
	}
	n.ctx, n.cancel = context.WithCancel(context.Background())
	return n
}

// Handle processes one raw event. It never panics and never blocks on the page.
func (n *Normalizer) Handle(ev RawEvent) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Warn("event handler panicked", zap.String("type", ev.Type), zap.Any("panic", r))
		}
	}()

	if n.gate != nil && !n.gate() {
		return
	}
	kind, ok := kindOf(ev)
	if !ok {
		return
	}
	if kind == action.KindScroll {
		n.scheduleScroll(ev)
		return
	}

	doc, el, err := n.resolve(ev)
	if err != nil {
		n.logger.Debug("event snapshot unusable", zap.String("type", ev.Type), zap.Error(err))
		return
	}
	if reason := n.ignoreReason(el, ev); reason != "" {
		n.logger.Debug("event ignored", zap.String("type", ev.Type), zap.String("reason", reason))
		return
	}

	rec := n.build(kind, doc, el, ev)
	switch kind {
	case action.KindInput:
		n.debounceInput(rec)
	case action.KindHover:
		n.scheduleHover(rec)
	case action.KindKeyPress:
		if n.duplicate(rec) {
			n.logger.Debug("duplicate keypress dropped", zap.String("key", ev.Key))
			return
		}
		n.dispatch(rec)
	default:
		n.dispatch(rec)
	}
}

// resolve parses the event snapshot and finds the target element
func (n *Normalizer) resolve(ev RawEvent) (*dom.Document, *html.Node, error) {
	if ev.Snapshot == "" {
		return nil, nil, nil
	}
	doc, err := dom.Parse(ev.Snapshot)
	if err != nil {
		return nil, nil, err
	}
	return doc, doc.ElementAt(ev.Ordinal), nil
}

func (n *Normalizer) ignoreReason(el *html.Node, ev RawEvent) string {
	if el == nil {
		return "no target"
	}
	if n.cfg.UIMarker != "" {
		inUI := dom.Closest(el, func(node *html.Node) bool {
			_, ok := dom.LookupAttr(node, n.cfg.UIMarker)
			return ok
		})
		if inUI != nil {
			return "recorder ui"
		}
	}
	if isPasswordTarget(el, ev) {
		return ""
	}
	if tag := dom.Tag(el); nonContentTags[tag] {
		return "non-content tag " + tag
	}
	return ""
}

func isPasswordTarget(el *html.Node, ev RawEvent) bool {
	return strings.EqualFold(ev.InputType, "password") || strings.EqualFold(dom.Attr(el, "type"), "password")
}

// isFormControl reports whether el holds a user-entered value
func isFormControl(el *html.Node) bool {
	switch dom.Tag(el) {
	case "input", "textarea", "select":
		return true
	}
	v, ok := dom.LookupAttr(el, "contenteditable")
	return ok && !strings.EqualFold(v, "false")
}

func fieldOf(el *html.Node, ev RawEvent) redact.Field {
	typ := ev.InputType
	if typ == "" {
		typ = dom.Attr(el, "type")
	}
	return redact.Field{
		Tag:   dom.Tag(el),
		Type:  typ,
		Name:  dom.Attr(el, "name"),
		ID:    dom.Attr(el, "id"),
		Class: dom.Attr(el, "class"),
	}
}

// build assembles the record for a targeted event, masking every captured value
func (n *Normalizer) build(kind action.Kind, doc *dom.Document, el *html.Node, ev RawEvent) action.Record {
	field := fieldOf(el, ev)
	loc := locator.Derive(doc, el)

	control := isFormControl(el)
	attrs := dom.Attributes(el)
	for k, v := range attrs {
		if control && strings.EqualFold(k, "value") {
			attrs[k] = redact.MaskValue(field, v)
			continue
		}
		attrs[k] = redact.MaskEmails(v)
	}
	text := dom.Text(el, n.cfg.TextLimit)
	if control {
		text = redact.MaskValue(field, text)
	} else {
		text = redact.MaskEmails(text)
	}

	rec := action.Record{
		Kind: kind,
		URL:  ev.URL,
		Target: &action.Target{
			Selector:        loc.Selector,
			FallbackLocator: loc.Fallback,
			Tag:             field.Tag,
			Text:            text,
			Attributes:      attrs,
			Box:             ev.Box,
		},
		Payload: action.Payload{Modifiers: ev.Modifiers},
	}

	switch kind {
	case action.KindInput, action.KindChange:
		rec.Payload.InputType = field.Type
		rec.Payload.Value = redact.MaskValue(field, ev.Value)
		switch strings.ToLower(field.Type) {
		case "checkbox", "radio":
			checked := ev.Checked
			rec.Payload.Checked = &checked
		}
	case action.KindSubmit:
		controls := make([]redact.Control, 0, len(ev.Controls))
		for _, c := range ev.Controls {
			controls = append(controls, c.control())
		}
		rec.Payload.Fields = redact.MaskForm(controls)
	case action.KindKeyPress:
		rec.Payload.Key = ev.Key
	}
	return rec
}

func targetKey(t *action.Target) string {
	if t == nil {
		return ""
	}
	if t.Selector != "" {
		return t.Selector
	}
	return t.FallbackLocator
}

// debounceInput keeps only the last input on an element once typing pauses
func (n *Normalizer) debounceInput(rec action.Record) {
	key := targetKey(rec.Target)

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	if prev := n.inputs[key]; prev != nil {
		prev.timer.Stop()
	}
	p := &pendingInput{record: rec}
	p.timer = n.clock.AfterFunc(n.cfg.InputDebounce, func() { n.flushInput(key, p) })
	n.inputs[key] = p
}

func (n *Normalizer) flushInput(key string, p *pendingInput) {
	n.mu.Lock()
	if n.inputs[key] != p {
		n.mu.Unlock()
		return
	}
	delete(n.inputs, key)
	n.mu.Unlock()

	n.dispatch(p.record)
}

// scheduleScroll emits only the final viewport offset once scrolling stops
func (n *Normalizer) scheduleScroll(ev RawEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	n.lastRaw = ev
	if n.scroll != nil {
		n.scroll.Stop()
	}
	var timer clockwork.Timer
	timer = n.clock.AfterFunc(n.cfg.ScrollDebounce, func() {
		n.mu.Lock()
		if n.scroll != timer {
			n.mu.Unlock()
			return
		}
		n.scroll = nil
		last := n.lastRaw
		n.mu.Unlock()

		n.dispatch(action.Record{
			Kind: action.KindScroll,
			URL:  last.URL,
			Payload: action.Payload{
				ScrollX: last.ScrollX,
				ScrollY: last.ScrollY,
			},
		})
	})
	n.scroll = timer
}

// scheduleHover records a hover only when it reveals a tooltip
func (n *Normalizer) scheduleHover(rec action.Record) {
	if n.tooltips == nil {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	if n.hover != nil {
		n.hover.Stop()
	}
	var timer clockwork.Timer
	timer = n.clock.AfterFunc(n.cfg.HoverDelay, func() {
		n.mu.Lock()
		if n.hover != timer || n.closed {
			n.mu.Unlock()
			return
		}
		n.hover = nil
		n.inflight.Add(1)
		n.mu.Unlock()
		defer n.inflight.Done()

		ctx, cancel := context.WithTimeout(n.ctx, n.cfg.ScreenshotTimeout)
		text, ok := n.tooltips.VisibleTooltip(ctx)
		cancel()
		if !ok {
			return
		}
		rec.Payload.Tooltip = redact.MaskEmails(text)
		n.dispatch(rec)
	})
	n.hover = timer
}

// duplicate reports whether the same kind on the same target was recorded
// within the duplicate window, and remembers the record otherwise
func (n *Normalizer) duplicate(rec action.Record) bool {
	key := dupKey{kind: rec.Kind, target: targetKey(rec.Target)}
	now := n.clock.Now()

	n.mu.Lock()
	defer n.mu.Unlock()
	if last, ok := n.lastSeen[key]; ok && now.Sub(last) < n.cfg.DuplicateWindow {
		return true
	}
	for k, t := range n.lastSeen {
		if now.Sub(t) >= n.cfg.DuplicateWindow {
			delete(n.lastSeen, k)
		}
	}
	n.lastSeen[key] = now
	return false
}

// dispatch runs the completion pipeline for rec on its own goroutine
func (n *Normalizer) dispatch(rec action.Record) {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.inflight.Add(1)
	n.mu.Unlock()

	go func() {
		defer n.inflight.Done()
		defer func() {
			if r := recover(); r != nil {
				n.logger.Warn("action pipeline panicked", zap.String("kind", string(rec.Kind)), zap.Any("panic", r))
			}
		}()
		n.complete(n.ctx, rec)
	}()
}

// complete waits for the page to settle, attaches a screenshot and publishes.
// A failed screenshot does not drop the record.
func (n *Normalizer) complete(ctx context.Context, rec action.Record) {
	report := n.stabilizer.AwaitStable(ctx, rec.Kind)
	n.logger.Debug("page settled",
		zap.String("kind", string(rec.Kind)),
		zap.Duration("elapsed", report.Elapsed))
	if ctx.Err() != nil {
		return
	}

	if n.capturer != nil {
		shotCtx, cancel := context.WithTimeout(ctx, n.cfg.ScreenshotTimeout)
		shot, err := n.capturer.CaptureScreenshot(shotCtx)
		cancel()
		if err != nil {
			n.logger.Debug("screenshot failed", zap.String("kind", string(rec.Kind)), zap.Error(err))
		} else {
			rec.Screenshot = shot
		}
	}

	if !rec.Valid() {
		n.logger.Warn("invalid record dropped", zap.String("kind", string(rec.Kind)))
		return
	}
	if !n.publisher.Publish(ctx, rec) {
		n.logger.Debug("record not accepted", zap.String("kind", string(rec.Kind)))
	}
}

// Close drops pending debounced events, cancels in-flight pipelines and waits
// for them to return. Handle is a no-op afterwards.
func (n *Normalizer) Close() {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.closed = true
	for key, p := range n.inputs {
		p.timer.Stop()
		delete(n.inputs, key)
	}
	if n.scroll != nil {
		n.scroll.Stop()
		n.scroll = nil
	}
	if n.hover != nil {
		n.hover.Stop()
		n.hover = nil
	}
	n.mu.Unlock()

	n.cancel()
	n.inflight.Wait()
}
