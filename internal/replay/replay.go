// Package replay re-runs an archived session against a live tab.
package replay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/v0xg/sessionrec/internal/action"
	"github.com/v0xg/sessionrec/internal/redact"
	"github.com/v0xg/sessionrec/internal/session"
)

// Status is the outcome of one replayed action
type Status string

const (
	StatusDone    Status = "done"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// Step reports how one action went
type Step struct {
	Index   int
	Kind    action.Kind
	Locator string // the locator that found the element
	Status  Status
	Reason  string
}

// ErrNotFound is returned when neither locator matches
var ErrNotFound = errors.New("element not found")

// Options configures playback
type Options struct {
	Timeout time.Duration // per element lookup, default 5s
	Delay   time.Duration // pause after each action, default 500ms
	Clock   clockwork.Clock
	Logger  *zap.Logger
	OnStep  func(Step)
}

// Player drives a page through recorded actions
type Player struct {
	page *rod.Page
	opts Options
}

// New creates a Player for page
func New(page *rod.Page, opts Options) *Player {
	if opts.Timeout == 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.Delay == 0 {
		opts.Delay = 500 * time.Millisecond
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Player{page: page, opts: opts}
}

// skipReason returns why rec cannot be replayed, or "" if it can
func skipReason(rec action.Record) string {
	switch {
	case !rec.Valid():
		return "record has no target"
	case rec.Kind == action.KindSubmit:
		return "submitted by the click or key that triggered it"
	case rec.Kind == action.KindBlur:
		return "focus moves with the next action"
	case (rec.Kind == action.KindInput || rec.Kind == action.KindChange) &&
		rec.Payload.Checked == nil && redact.IsMasked(rec.Payload.Value):
		return "value was masked"
	case rec.Kind == action.KindKeyPress:
		if _, ok := keyFor(rec.Payload.Key); !ok {
			return "key " + rec.Payload.Key + " is not replayed"
		}
	}
	return ""
}

func keyFor(name string) (input.Key, bool) {
	switch name {
	case "Enter":
		return input.Enter, true
	case "Tab":
		return input.Tab, true
	case "Escape":
		return input.Escape, true
	}
	return 0, false
}

// sameDocument compares URLs without their fragments
func sameDocument(a, b string) bool {
	strip := func(u string) string {
		if i := strings.IndexByte(u, '#'); i >= 0 {
			return u[:i]
		}
		return u
	}
	return strip(a) == strip(b)
}

// Play opens exp.URL and replays its actions in order. Individual action
// failures are reported in the steps; the error is for navigation failures
// and cancellation only.
func (p *Player) Play(ctx context.Context, exp session.Export) ([]Step, error) {
	if err := p.navigate(ctx, exp.URL); err != nil {
		return nil, err
	}

	steps := make([]Step, 0, len(exp.Actions))
	for i, rec := range exp.Actions {
		if err := ctx.Err(); err != nil {
			return steps, err
		}

		step := Step{Index: i, Kind: rec.Kind}
		if reason := skipReason(rec); reason != "" {
			step.Status = StatusSkipped
			step.Reason = reason
		} else {
			if rec.URL != "" {
				if err := p.follow(ctx, rec.URL); err != nil {
					return steps, err
				}
			}
			loc, err := p.perform(ctx, rec)
			step.Locator = loc
			if err != nil {
				step.Status = StatusFailed
				step.Reason = err.Error()
				p.opts.Logger.Debug("replay step failed",
					zap.Int("index", i), zap.String("kind", string(rec.Kind)), zap.Error(err))
			} else {
				step.Status = StatusDone
			}
		}

		steps = append(steps, step)
		if p.opts.OnStep != nil {
			p.opts.OnStep(step)
		}
		if step.Status == StatusDone {
			select {
			case <-ctx.Done():
				return steps, ctx.Err()
			case <-p.opts.Clock.After(p.opts.Delay):
			}
		}
	}
	return steps, nil
}

func (p *Player) navigate(ctx context.Context, url string) error {
	page := p.page.Context(ctx)
	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("wait load %s: %w", url, err)
	}
	return nil
}

// follow moves to url when the previous action did not already get there
func (p *Player) follow(ctx context.Context, url string) error {
	info, err := p.page.Context(ctx).Info()
	if err != nil {
		return fmt.Errorf("page info: %w", err)
	}
	if sameDocument(info.URL, url) {
		return nil
	}
	return p.navigate(ctx, url)
}

// locate tries the selector first and falls back to the positional locator
func (p *Player) locate(ctx context.Context, t *action.Target) (*rod.Element, string, error) {
	page := p.page.Context(ctx)
	if t.Selector != "" {
		el, err := page.Timeout(p.opts.Timeout).Element(t.Selector)
		if err == nil {
			return el, t.Selector, nil
		}
		if ctx.Err() != nil {
			return nil, "", ctx.Err()
		}
	}
	if t.FallbackLocator != "" {
		el, err := page.Timeout(p.opts.Timeout).ElementX(t.FallbackLocator)
		if err == nil {
			return el, t.FallbackLocator, nil
		}
	}
	return nil, "", fmt.Errorf("%w: %s", ErrNotFound, t.Selector)
}

func (p *Player) perform(ctx context.Context, rec action.Record) (string, error) {
	if rec.Kind == action.KindScroll {
		_, err := p.page.Context(ctx).Eval(`(x, y) => window.scrollTo(x, y)`, rec.Payload.ScrollX, rec.Payload.ScrollY)
		return "", err
	}

	el, loc, err := p.locate(ctx, rec.Target)
	if err != nil {
		return "", err
	}
	el = el.Context(ctx)

	switch rec.Kind {
	case action.KindClick:
		err = el.Click(proto.InputMouseButtonLeft, 1)
	case action.KindDoubleClick:
		err = el.Click(proto.InputMouseButtonLeft, 2)
	case action.KindHover:
		err = el.Hover()
	case action.KindFocus:
		err = el.Focus()
	case action.KindKeyPress:
		key, _ := keyFor(rec.Payload.Key)
		if err = el.Focus(); err == nil {
			err = p.page.Context(ctx).Keyboard.Type(key)
		}
	case action.KindInput, action.KindChange:
		err = p.setValue(el, rec)
	default:
		err = fmt.Errorf("unsupported action %s", rec.Kind)
	}
	return loc, err
}

func (p *Player) setValue(el *rod.Element, rec action.Record) error {
	if rec.Payload.Checked != nil {
		prop, err := el.Property("checked")
		if err != nil {
			return err
		}
		if prop.Bool() == *rec.Payload.Checked {
			return nil
		}
		return el.Click(proto.InputMouseButtonLeft, 1)
	}

	if rec.Target.Tag == "select" {
		_, err := el.Eval(`function (v) {
			this.value = v;
			this.dispatchEvent(new Event('input', { bubbles: true }));
			this.dispatchEvent(new Event('change', { bubbles: true }));
		}`, rec.Payload.Value)
		return err
	}

	if err := el.SelectAllText(); err != nil {
		return err
	}
	if rec.Payload.Value == "" {
		return p.page.Keyboard.Type(input.Backspace)
	}
	return el.Input(rec.Payload.Value)
}
