package readiness

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ImageSource lists images intersecting the viewport that have not finished
// loading. Each returned channel closes on the image's load or error event.
// The context passed in is cancelled once the wait is over.
type ImageSource interface {
	PendingViewportImages(ctx context.Context) ([]<-chan struct{}, error)
}

// awaitViewportImages joins all pending image loads, each capped at ImageTimeout
func (c *Coordinator) awaitViewportImages(ctx context.Context) State {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	pending, err := c.images.PendingViewportImages(ctx)
	if err != nil {
		c.logger.Debug("viewport images unavailable", zap.Error(err))
		return StateFailed
	}
	if len(pending) == 0 {
		return StateResolved
	}

	var timedOut atomic.Bool
	g, gctx := errgroup.WithContext(ctx)
	for _, loaded := range pending {
		g.Go(func() error {
			timer := c.clock.NewTimer(c.timings.ImageTimeout)
			defer timer.Stop()
			select {
			case <-loaded:
			case <-timer.Chan():
				timedOut.Store(true)
			case <-gctx.Done():
			}
			return nil
		})
	}
	_ = g.Wait()

	switch {
	case ctx.Err() != nil:
		return StateCancelled
	case timedOut.Load():
		return StateTimedOut
	default:
		return StateResolved
	}
}
