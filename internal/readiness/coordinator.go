// Package readiness decides when the page has settled enough after an action
// to take a representative screenshot. Every wait is bounded; AwaitStable
// always returns.
package readiness

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/v0xg/sessionrec/internal/action"
	"go.uber.org/zap"
)

// Timings configures every delay and ceiling used by the coordinator
type Timings struct {
	FrameDelay          time.Duration // delay standing in for "next paint" before observing mutations
	MutationSilence     time.Duration // quiet period that counts as quiescence
	MutationCeiling     time.Duration // hard limit for the quiescence wait
	NetworkIdleDebounce time.Duration // extra wait once in-flight requests reach zero
	NetworkCeiling      time.Duration // hard limit for the network-idle wait
	ImageTimeout        time.Duration // per-image cap for viewport image loads
	InputSettle         time.Duration // input and change
	ScrollSettle        time.Duration
	DefaultSettle       time.Duration
}

// DefaultTimings returns the standard settle profile
func DefaultTimings() Timings {
	return Timings{
		FrameDelay:          16 * time.Millisecond,
		MutationSilence:     200 * time.Millisecond,
		MutationCeiling:     1000 * time.Millisecond,
		NetworkIdleDebounce: 300 * time.Millisecond,
		NetworkCeiling:      1000 * time.Millisecond,
		ImageTimeout:        500 * time.Millisecond,
		InputSettle:         300 * time.Millisecond,
		ScrollSettle:        500 * time.Millisecond,
		DefaultSettle:       200 * time.Millisecond,
	}
}

// State is the outcome of one sub-wait
type State int

const (
	StatePending State = iota
	StateResolved
	StateTimedOut
	StateSkipped
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateResolved:
		return "resolved"
	case StateTimedOut:
		return "timed_out"
	case StateSkipped:
		return "skipped"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "pending"
	}
}

// MarshalText renders the state by name in logs and JSON
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// WaitResult records how one sub-wait ended
type WaitResult struct {
	Name    string        `json:"name"`
	State   State         `json:"state"`
	Elapsed time.Duration `json:"elapsed"`
}

// Report is the joined result of all sub-waits run for an action
type Report struct {
	Kind    action.Kind   `json:"kind"`
	Waits   []WaitResult  `json:"waits"`
	Elapsed time.Duration `json:"elapsed"`
}

// State returns the state of the named sub-wait, or StatePending if it never ran
func (r Report) State(name string) State {
	for _, w := range r.Waits {
		if w.Name == name {
			return w.State
		}
	}
	return StatePending
}

// Sub-wait names used in reports
const (
	WaitSettle    = "settle"
	WaitMutations = "mutations"
	WaitNetwork   = "network"
	WaitImages    = "images"
)

// Coordinator composes the sub-waits for each action kind
type Coordinator struct {
	clock     clockwork.Clock
	timings   Timings
	mutations MutationSource
	network   NetworkMonitor
	images    ImageSource
	logger    *zap.Logger
}

// Option configures a Coordinator
type Option func(*Coordinator)

// WithClock injects the clock used for every delay and ceiling
func WithClock(clock clockwork.Clock) Option {
	return func(c *Coordinator) { c.clock = clock }
}

// WithTimings overrides the default timings
func WithTimings(t Timings) Option {
	return func(c *Coordinator) { c.timings = t }
}

// WithMutationSource sets where DOM mutation ticks come from
func WithMutationSource(src MutationSource) Option {
	return func(c *Coordinator) { c.mutations = src }
}

// WithNetworkMonitor sets the network instrumentation
func WithNetworkMonitor(m NetworkMonitor) Option {
	return func(c *Coordinator) { c.network = m }
}

// WithImageSource sets where pending viewport images come from
func WithImageSource(src ImageSource) Option {
	return func(c *Coordinator) { c.images = src }
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(c *Coordinator) { c.logger = logger }
}

// New creates a Coordinator. Sub-waits whose source is not configured are skipped.
func New(opts ...Option) *Coordinator {
	c := &Coordinator{
		clock:   clockwork.NewRealClock(),
		timings: DefaultTimings(),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	return c
}

// AwaitStable blocks until the page is considered settled for an action of the
// given kind. It never fails; the worst case is returning at a ceiling.
//
//   - click, submit: mutation quiescence, then network idle
//   - input, change: fixed settle delay
//   - scroll: fixed settle delay, then viewport images
//   - anything else: short fixed settle delay
func (c *Coordinator) AwaitStable(ctx context.Context, kind action.Kind) Report {
	start := c.clock.Now()
	report := Report{Kind: kind}

	switch kind {
	case action.KindClick, action.KindSubmit:
		report.Waits = append(report.Waits,
			c.run(ctx, WaitMutations, c.mutations != nil, c.awaitQuiescence),
			c.run(ctx, WaitNetwork, c.network != nil, func(ctx context.Context) State {
				return c.awaitNetworkIdle(ctx, c.timings.NetworkCeiling)
			}),
		)
	case action.KindInput, action.KindChange:
		report.Waits = append(report.Waits, c.run(ctx, WaitSettle, true, c.settle(c.timings.InputSettle)))
	case action.KindScroll:
		report.Waits = append(report.Waits,
			c.run(ctx, WaitSettle, true, c.settle(c.timings.ScrollSettle)),
			c.run(ctx, WaitImages, c.images != nil, c.awaitViewportImages),
		)
	default:
		report.Waits = append(report.Waits, c.run(ctx, WaitSettle, true, c.settle(c.timings.DefaultSettle)))
	}

	report.Elapsed = c.clock.Since(start)
	c.logger.Debug("page settled",
		zap.String("kind", string(kind)),
		zap.Duration("elapsed", report.Elapsed),
		zap.Any("waits", report.Waits))
	return report
}

// run executes one sub-wait, converting panics from sources into StateFailed
func (c *Coordinator) run(ctx context.Context, name string, enabled bool, wait func(context.Context) State) (res WaitResult) {
	res.Name = name
	if !enabled {
		res.State = StateSkipped
		return res
	}
	start := c.clock.Now()
	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn("readiness wait failed", zap.String("wait", name), zap.Any("panic", r))
			res.State = StateFailed
		}
		res.Elapsed = c.clock.Since(start)
	}()
	res.State = wait(ctx)
	return res
}

func (c *Coordinator) settle(d time.Duration) func(context.Context) State {
	return func(ctx context.Context) State {
		select {
		case <-c.clock.After(d):
			return StateResolved
		case <-ctx.Done():
			return StateCancelled
		}
	}
}

// stopTimer stops t and drains a pending tick so a later Reset starts clean
func stopTimer(t clockwork.Timer) {
	if !t.Stop() {
		select {
		case <-t.Chan():
		default:
		}
	}
}

func resetTimer(t clockwork.Timer, d time.Duration) {
	stopTimer(t)
	t.Reset(d)
}
