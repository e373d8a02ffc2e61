package event

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

const (
	defaultMaxInFlight    = 1000
	defaultHandlerTimeout = 30 * time.Second
)

type Event interface {
	Name() string
}

type Handler func(ctx context.Context, e Event) error

// Bus is an in-memory asynchronous event bus. Handlers run on their own
// goroutines, bounded by a shared in-flight limit; a handler error or panic
// is logged and never reaches the publisher. This is the machinery behind
// the best-effort semantics of end-of-session persistence.
type Bus struct {
	inflight chan struct{}
	wg       sync.WaitGroup

	mu       sync.RWMutex
	handlers map[string][]Handler
}

// NewBus creates a bus. Callers should call Stop on shutdown to drain
// in-flight handlers.
func NewBus() *Bus {
	return &Bus{
		inflight: make(chan struct{}, defaultMaxInFlight),
		handlers: make(map[string][]Handler),
	}
}

// Subscribe registers a handler for events with the given name.
func (b *Bus) Subscribe(name string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[name] = append(b.handlers[name], h)
}

// Publish dispatches e to every subscribed handler. It may block when the
// in-flight limit is reached, but never returns an error: failures belong
// to the handlers.
func (b *Bus) Publish(ctx context.Context, e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, h := range b.handlers[e.Name()] {
		b.dispatch(ctx, h, e)
	}
}

func (b *Bus) dispatch(ctx context.Context, h Handler, e Event) {
	b.wg.Add(1)
	b.inflight <- struct{}{}

	// Detach from the publisher's context so a finished HTTP request does
	// not cancel persistence still in flight.
	hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultHandlerTimeout)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.ErrorContext(hctx, "event: handler panic",
					"event", e.Name(),
					"error", fmt.Errorf("%v, stack: %s", r, debug.Stack()),
				)
			}

			cancel()
			<-b.inflight
			b.wg.Done()
		}()

		if err := h(hctx, e); err != nil {
			slog.ErrorContext(hctx, "event: handle event failed",
				"event", e.Name(),
				"error", err,
			)
		}
	}()
}

// Stop waits for all dispatched handlers to finish.
func (b *Bus) Stop() {
	b.wg.Wait()
}
