package readiness

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// NetworkEventType distinguishes request lifecycle events
type NetworkEventType int

const (
	RequestStarted NetworkEventType = iota
	RequestFinished
)

// NetworkEvent is one request lifecycle transition. Failed and cancelled
// requests are reported as finished.
type NetworkEvent struct {
	Type      NetworkEventType
	RequestID string
}

// NetworkWatch is one instrumentation window over the page's transports.
// Close must restore whatever Watch installed; the coordinator always calls it.
type NetworkWatch interface {
	Events() <-chan NetworkEvent
	Close() error
}

// NetworkMonitor begins network watches. Each watch is independent, so
// overlapping waits never see each other's instrumentation.
type NetworkMonitor interface {
	Watch(ctx context.Context) (NetworkWatch, error)
}

// awaitNetworkIdle resolves NetworkIdleDebounce after the in-flight count drops
// to zero (or after one debounce if nothing starts). Requests that were already
// running when the watch began are not tracked.
func (c *Coordinator) awaitNetworkIdle(ctx context.Context, ceilingAfter time.Duration) State {
	ceiling := c.clock.NewTimer(ceilingAfter)
	defer ceiling.Stop()

	watch, err := c.network.Watch(ctx)
	if err != nil {
		c.logger.Debug("network watch unavailable", zap.Error(err))
		return StateFailed
	}
	defer func() {
		if err := watch.Close(); err != nil {
			c.logger.Debug("close network watch", zap.Error(err))
		}
	}()

	inflight := make(map[string]struct{})
	idle := c.clock.NewTimer(c.timings.NetworkIdleDebounce)
	defer idle.Stop()

	events := watch.Events()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			switch ev.Type {
			case RequestStarted:
				if len(inflight) == 0 {
					stopTimer(idle)
				}
				inflight[ev.RequestID] = struct{}{}
			case RequestFinished:
				if _, tracked := inflight[ev.RequestID]; !tracked {
					continue
				}
				delete(inflight, ev.RequestID)
				if len(inflight) == 0 {
					resetTimer(idle, c.timings.NetworkIdleDebounce)
				}
			}
		case <-idle.Chan():
			if len(inflight) == 0 {
				return StateResolved
			}
		case <-ceiling.Chan():
			if len(inflight) > 0 {
				c.logger.Debug("network still busy at ceiling", zap.Int("inflight", len(inflight)))
			}
			return StateTimedOut
		case <-ctx.Done():
			return StateCancelled
		}
	}
}
