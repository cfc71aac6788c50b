package readiness

import (
	"context"

	"go.uber.org/zap"
)

// MutationSource delivers a tick for every observed DOM mutation batch
// (child list, attributes, character data) of the recorded page.
type MutationSource interface {
	// Observe starts an observer. The returned release func must be called
	// exactly once and disconnects it.
	Observe(ctx context.Context) (ticks <-chan struct{}, release func(), err error)
}

// awaitQuiescence waits until no mutation was seen for MutationSilence, starting
// after one frame. MutationCeiling, counted from the call, forces the result.
func (c *Coordinator) awaitQuiescence(ctx context.Context) State {
	ceiling := c.clock.NewTimer(c.timings.MutationCeiling)
	defer ceiling.Stop()

	select {
	case <-c.clock.After(c.timings.FrameDelay):
	case <-ceiling.Chan():
		return StateTimedOut
	case <-ctx.Done():
		return StateCancelled
	}

	ticks, release, err := c.mutations.Observe(ctx)
	if err != nil {
		c.logger.Debug("mutation observer unavailable", zap.Error(err))
		return StateFailed
	}
	if release != nil {
		defer release()
	}

	silence := c.clock.NewTimer(c.timings.MutationSilence)
	defer silence.Stop()

	for {
		select {
		case _, ok := <-ticks:
			if !ok {
				ticks = nil
				continue
			}
			resetTimer(silence, c.timings.MutationSilence)
		case <-silence.Chan():
			return StateResolved
		case <-ceiling.Chan():
			return StateTimedOut
		case <-ctx.Done():
			return StateCancelled
		}
	}
}
