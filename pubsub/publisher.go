// Package pubsub provides a best-effort, in-process fan-out of committed
// events to live subscribers. It is not part of the durability or
// read-model-correctness guarantees: a handler failure is logged and
// ignored, never propagated.
package pubsub

import (
	"context"
	"log/slog"
	"sync"

	"github.com/0m3kk/taskstream/eventsrc"
)

// Handler consumes one committed event. A returned error is logged, not
// propagated; publishing continues with the remaining handlers.
type Handler func(ctx context.Context, evt eventsrc.Event) error

// Publisher fans committed events out to subscribers registered by event
// type or as wildcards. Safe for concurrent use.
type Publisher struct {
	mu       sync.RWMutex
	byType   map[string][]Handler
	wildcard []Handler
}

func NewPublisher() *Publisher {
	return &Publisher{byType: make(map[string][]Handler)}
}

// Subscribe registers a handler for one event type.
func (p *Publisher) Subscribe(eventType string, h Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.byType[eventType] = append(p.byType[eventType], h)
}

// SubscribeAll registers a handler for every event type.
func (p *Publisher) SubscribeAll(h Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.wildcard = append(p.wildcard, h)
}

// Publish invokes all handlers registered for the event's exact type, then
// all wildcard handlers, in registration order. Each invocation is isolated:
// an error or panic in one handler never prevents the others from running.
func (p *Publisher) Publish(ctx context.Context, evt eventsrc.Event) {
	p.mu.RLock()
	handlers := make([]Handler, 0, len(p.byType[evt.Type])+len(p.wildcard))
	handlers = append(handlers, p.byType[evt.Type]...)
	handlers = append(handlers, p.wildcard...)
	p.mu.RUnlock()

	for _, h := range handlers {
		p.invoke(ctx, h, evt)
	}
}

func (p *Publisher) invoke(ctx context.Context, h Handler, evt eventsrc.Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "Event handler panicked",
				"eventID", evt.ID, "eventType", evt.Type, "panic", r)
		}
	}()
	if err := h(ctx, evt); err != nil {
		slog.WarnContext(ctx, "Event handler failed",
			"eventID", evt.ID, "eventType", evt.Type, "error", err)
	}
}
