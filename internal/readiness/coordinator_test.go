package readiness

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/v0xg/sessionrec/internal/action"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fastTimings keeps the shape of the defaults at a tenth of the duration
func fastTimings() Timings {
	return Timings{
		FrameDelay:          2 * time.Millisecond,
		MutationSilence:     20 * time.Millisecond,
		MutationCeiling:     100 * time.Millisecond,
		NetworkIdleDebounce: 30 * time.Millisecond,
		NetworkCeiling:      100 * time.Millisecond,
		ImageTimeout:        50 * time.Millisecond,
		InputSettle:         30 * time.Millisecond,
		ScrollSettle:        50 * time.Millisecond,
		DefaultSettle:       20 * time.Millisecond,
	}
}

type fakeMutations struct {
	mu       sync.Mutex
	ticks    chan struct{}
	err      error
	panics   bool
	observed atomic.Int32
	released atomic.Int32
}

func newFakeMutations() *fakeMutations {
	return &fakeMutations{ticks: make(chan struct{}, 64)}
}

func (f *fakeMutations) Observe(ctx context.Context) (<-chan struct{}, func(), error) {
	if f.panics {
		panic("observer exploded")
	}
	if f.err != nil {
		return nil, nil, f.err
	}
	f.observed.Add(1)
	return f.ticks, func() { f.released.Add(1) }, nil
}

func (f *fakeMutations) tick() {
	select {
	case f.ticks <- struct{}{}:
	default:
	}
}

type fakeWatch struct {
	events chan NetworkEvent
	closed atomic.Bool
}

func (w *fakeWatch) Events() <-chan NetworkEvent { return w.events }
func (w *fakeWatch) Close() error {
	w.closed.Store(true)
	return nil
}

type fakeNetwork struct {
	watches []*fakeWatch
	mu      sync.Mutex
}

func (n *fakeNetwork) Watch(ctx context.Context) (NetworkWatch, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	w := &fakeWatch{events: make(chan NetworkEvent, 16)}
	n.watches = append(n.watches, w)
	return w, nil
}

func (n *fakeNetwork) last() *fakeWatch {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.watches) == 0 {
		return nil
	}
	return n.watches[len(n.watches)-1]
}

type fakeImages struct {
	pending []<-chan struct{}
	err     error
}

func (f *fakeImages) PendingViewportImages(ctx context.Context) ([]<-chan struct{}, error) {
	return f.pending, f.err
}

func TestQuiescence_ResolvesAfterSilence(t *testing.T) {
	src := newFakeMutations()
	c := New(WithTimings(fastTimings()), WithMutationSource(src))

	start := time.Now()
	state := c.awaitQuiescence(context.Background())

	assert.Equal(t, StateResolved, state)
	assert.Less(t, time.Since(start), 100*time.Millisecond)
	assert.EqualValues(t, 1, src.observed.Load())
	assert.EqualValues(t, 1, src.released.Load())
}

func TestQuiescence_CeilingUnderContinuousMutation(t *testing.T) {
	src := newFakeMutations()
	c := New(WithMutationSource(src))

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(50 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				src.tick()
			}
		}
	}()

	start := time.Now()
	state := c.awaitQuiescence(context.Background())
	elapsed := time.Since(start)
	close(stop)
	<-done

	assert.Equal(t, StateTimedOut, state)
	assert.GreaterOrEqual(t, elapsed, 950*time.Millisecond)
	assert.LessOrEqual(t, elapsed, 1150*time.Millisecond)
	assert.EqualValues(t, 1, src.released.Load(), "observer must be disconnected at the ceiling")
}

func TestQuiescence_ObserverErrorStillReturns(t *testing.T) {
	src := newFakeMutations()
	src.err = errors.New("no document")
	c := New(WithTimings(fastTimings()), WithMutationSource(src))

	report := c.AwaitStable(context.Background(), action.KindClick)
	assert.Equal(t, StateFailed, report.State(WaitMutations))
	assert.Equal(t, StateSkipped, report.State(WaitNetwork))
}

func TestAwaitStable_PanickingSourceIsContained(t *testing.T) {
	src := newFakeMutations()
	src.panics = true
	c := New(WithTimings(fastTimings()), WithMutationSource(src))

	var report Report
	require.NotPanics(t, func() {
		report = c.AwaitStable(context.Background(), action.KindSubmit)
	})
	assert.Equal(t, StateFailed, report.State(WaitMutations))
}

func TestNetworkIdle_ResolvesAfterRequestsSettle(t *testing.T) {
	net := &fakeNetwork{}
	c := New(WithTimings(fastTimings()), WithNetworkMonitor(net))

	result := make(chan State, 1)
	go func() { result <- c.awaitNetworkIdle(context.Background(), time.Second) }()

	require.Eventually(t, func() bool { return net.last() != nil }, time.Second, time.Millisecond)
	w := net.last()
	w.events <- NetworkEvent{Type: RequestStarted, RequestID: "1"}
	w.events <- NetworkEvent{Type: RequestStarted, RequestID: "2"}
	w.events <- NetworkEvent{Type: RequestFinished, RequestID: "1"}
	w.events <- NetworkEvent{Type: RequestFinished, RequestID: "stale"}
	time.Sleep(60 * time.Millisecond)
	select {
	case <-result:
		t.Fatal("resolved while a request was still in flight")
	default:
	}
	w.events <- NetworkEvent{Type: RequestFinished, RequestID: "2"}

	select {
	case state := <-result:
		assert.Equal(t, StateResolved, state)
	case <-time.After(time.Second):
		t.Fatal("network wait did not resolve")
	}
	assert.True(t, w.closed.Load())
}

func TestNetworkIdle_IdlePageResolvesAfterOneDebounce(t *testing.T) {
	net := &fakeNetwork{}
	c := New(WithTimings(fastTimings()), WithNetworkMonitor(net))

	start := time.Now()
	state := c.awaitNetworkIdle(context.Background(), time.Second)

	assert.Equal(t, StateResolved, state)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestNetworkIdle_CeilingWhenRequestsNeverSettle(t *testing.T) {
	net := &fakeNetwork{}
	c := New(WithNetworkMonitor(net))

	result := make(chan State, 1)
	start := time.Now()
	go func() { result <- c.awaitNetworkIdle(context.Background(), 1500*time.Millisecond) }()

	require.Eventually(t, func() bool { return net.last() != nil }, time.Second, time.Millisecond)
	net.last().events <- NetworkEvent{Type: RequestStarted, RequestID: "long-poll"}

	state := <-result
	elapsed := time.Since(start)
	assert.Equal(t, StateTimedOut, state)
	assert.LessOrEqual(t, elapsed, 1650*time.Millisecond)
	assert.True(t, net.last().closed.Load(), "watch must be released at the ceiling")
}

func TestNetworkIdle_OverlappingWatchesAreIndependent(t *testing.T) {
	net := &fakeNetwork{}
	c := New(WithTimings(fastTimings()), WithNetworkMonitor(net))

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.awaitNetworkIdle(context.Background(), 100*time.Millisecond)
		}()
	}
	wg.Wait()

	net.mu.Lock()
	defer net.mu.Unlock()
	require.Len(t, net.watches, 3)
	for _, w := range net.watches {
		assert.True(t, w.closed.Load())
	}
}

func TestViewportImages_EachImageCapped(t *testing.T) {
	fast := make(chan struct{})
	close(fast)
	never := make(chan struct{})
	c := New(WithTimings(fastTimings()), WithImageSource(&fakeImages{pending: []<-chan struct{}{fast, never}}))

	start := time.Now()
	state := c.awaitViewportImages(context.Background())

	assert.Equal(t, StateTimedOut, state)
	assert.Less(t, time.Since(start), 200*time.Millisecond)
}

func TestViewportImages_AllLoaded(t *testing.T) {
	a, b := make(chan struct{}), make(chan struct{})
	c := New(WithTimings(fastTimings()), WithImageSource(&fakeImages{pending: []<-chan struct{}{a, b}}))

	go func() {
		time.Sleep(5 * time.Millisecond)
		close(a)
		close(b)
	}()
	assert.Equal(t, StateResolved, c.awaitViewportImages(context.Background()))
}

func TestAwaitStable_KindProfiles(t *testing.T) {
	tests := []struct {
		kind  action.Kind
		waits []string
	}{
		{action.KindClick, []string{WaitMutations, WaitNetwork}},
		{action.KindSubmit, []string{WaitMutations, WaitNetwork}},
		{action.KindInput, []string{WaitSettle}},
		{action.KindChange, []string{WaitSettle}},
		{action.KindScroll, []string{WaitSettle, WaitImages}},
		{action.KindFocus, []string{WaitSettle}},
		{action.KindKeyPress, []string{WaitSettle}},
	}

	c := New(
		WithTimings(fastTimings()),
		WithMutationSource(newFakeMutations()),
		WithNetworkMonitor(&fakeNetwork{}),
		WithImageSource(&fakeImages{}),
	)
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			report := c.AwaitStable(context.Background(), tt.kind)
			var names []string
			for _, w := range report.Waits {
				names = append(names, w.Name)
				assert.Equal(t, StateResolved, w.State, w.Name)
			}
			assert.Equal(t, tt.waits, names)
		})
	}
}

func TestAwaitStable_SettleUsesInjectedClock(t *testing.T) {
	fc := clockwork.NewFakeClock()
	c := New(WithClock(fc))

	done := make(chan Report, 1)
	go func() { done <- c.AwaitStable(context.Background(), action.KindInput) }()

	fc.BlockUntil(1)
	fc.Advance(299 * time.Millisecond)
	select {
	case <-done:
		t.Fatal("settled before the input delay elapsed")
	case <-time.After(20 * time.Millisecond):
	}

	fc.Advance(time.Millisecond)
	select {
	case report := <-done:
		assert.Equal(t, StateResolved, report.State(WaitSettle))
		assert.Equal(t, 300*time.Millisecond, report.Elapsed)
	case <-time.After(time.Second):
		t.Fatal("settle did not complete after advancing the clock")
	}
}

func TestAwaitStable_CancelledContext(t *testing.T) {
	c := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report := c.AwaitStable(ctx, action.KindScroll)
	assert.Equal(t, StateCancelled, report.State(WaitSettle))
	assert.Equal(t, StateSkipped, report.State(WaitImages))
}
