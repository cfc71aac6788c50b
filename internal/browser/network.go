package browser

import (
	"context"
	"sync"

	"github.com/go-rod/rod/lib/proto"

	"github.com/v0xg/sessionrec/internal/readiness"
)

// networkWatch forwards CDP request lifecycle events for one readiness wait.
// Its subscription is scoped to its own context, so closing it never touches
// other watches on the same tab.
type networkWatch struct {
	events chan readiness.NetworkEvent
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (w *networkWatch) Events() <-chan readiness.NetworkEvent { return w.events }

func (w *networkWatch) Close() error {
	w.once.Do(func() {
		w.cancel()
		<-w.done
	})
	return nil
}

// Watch implements readiness.NetworkMonitor. The network domain is enabled by Attach.
func (t *Tab) Watch(ctx context.Context) (readiness.NetworkWatch, error) {
	wctx, cancel := context.WithCancel(ctx)
	w := &networkWatch{
		events: make(chan readiness.NetworkEvent, 64),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	send := func(typ readiness.NetworkEventType, id proto.NetworkRequestID) {
		select {
		case w.events <- readiness.NetworkEvent{Type: typ, RequestID: string(id)}:
		case <-wctx.Done():
		}
	}

	wait := t.page.Context(wctx).EachEvent(
		func(e *proto.NetworkRequestWillBeSent) {
			send(readiness.RequestStarted, e.RequestID)
		},
		func(e *proto.NetworkLoadingFinished) {
			send(readiness.RequestFinished, e.RequestID)
		},
		func(e *proto.NetworkLoadingFailed) {
			send(readiness.RequestFinished, e.RequestID)
		},
	)
	go func() {
		defer close(w.done)
		wait()
	}()
	return w, nil
}
