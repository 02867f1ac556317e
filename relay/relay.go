// Package relay forwards committed events from the store to a message
// broker. It is a checkpointed catch-up reader over the global event log:
// each tick it resumes from the last id it published, so delivery is
// at-least-once and survives restarts. Like the in-process publisher, it is
// a best-effort notification path, not part of the store's correctness
// guarantees.
package relay

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/0m3kk/taskstream/eventsrc"
	"github.com/0m3kk/taskstream/msgbus"
)

// CheckpointStore persists the relay's resume position in the global log.
type CheckpointStore interface {
	// Load returns the position of the last event the subscriber processed,
	// or 0 for a fresh subscriber.
	Load(ctx context.Context, subscriberID string) (int64, error)
	// Save records the position of the last processed event.
	Save(ctx context.Context, subscriberID string, position int64) error
}

// TopicMapper is a function type that maps an event type to a message bus topic.
// Returning an empty string skips the event.
type TopicMapper func(eventType string) string

// Relay is a background worker that polls the event log and publishes
// newly committed events.
type Relay struct {
	subscriberID string
	store        eventsrc.Store
	checkpoints  CheckpointStore
	broker       msgbus.Broker
	topicMapper  TopicMapper
	batchSize    int
	interval     time.Duration
	wg           sync.WaitGroup
	quit         chan struct{}
}

// NewRelay creates a new Relay instance. Each subscriberID owns its own
// checkpoint, so independent relays can fan the same log out to different
// destinations.
func NewRelay(
	subscriberID string,
	store eventsrc.Store,
	checkpoints CheckpointStore,
	broker msgbus.Broker,
	mapper TopicMapper,
	batchSize int,
	interval time.Duration,
) *Relay {
	return &Relay{
		subscriberID: subscriberID,
		store:        store,
		checkpoints:  checkpoints,
		broker:       broker,
		topicMapper:  mapper,
		batchSize:    batchSize,
		interval:     interval,
		quit:         make(chan struct{}),
	}
}

// Start begins the relay's polling process in a separate goroutine.
func (r *Relay) Start(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		slog.InfoContext(ctx, "Event relay started", "subscriberID", r.subscriberID)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := r.forward(ctx); err != nil {
					slog.ErrorContext(ctx, "Failed to forward events", "subscriberID", r.subscriberID, "error", err)
				}
			case <-r.quit:
				slog.InfoContext(ctx, "Event relay shutting down", "subscriberID", r.subscriberID)
				return
			case <-ctx.Done():
				slog.InfoContext(ctx, "Context cancelled, event relay shutting down", "subscriberID", r.subscriberID)
				return
			}
		}
	}()
}

// forward publishes everything committed since the checkpoint. The
// checkpoint only advances past an event after its publish succeeded, so a
// broker failure means redelivery on the next tick, never loss.
func (r *Relay) forward(ctx context.Context) error {
	position, err := r.checkpoints.Load(ctx, r.subscriberID)
	if err != nil {
		return fmt.Errorf("failed to load checkpoint: %w", err)
	}

	var published int
	for evt, err := range r.store.ReadAll(ctx, position, r.batchSize) {
		if err != nil {
			return fmt.Errorf("failed to read event log: %w", err)
		}

		topic := r.topicMapper(evt.Type)
		if topic != "" {
			if err := r.broker.Publish(ctx, topic, evt); err != nil {
				return fmt.Errorf("failed to publish event %d to topic %s: %w", evt.ID, topic, err)
			}
			published++
		} else {
			slog.DebugContext(ctx, "No topic mapped for event type, skipping",
				"eventType", evt.Type, "eventID", evt.ID)
		}

		if err := r.checkpoints.Save(ctx, r.subscriberID, evt.ID); err != nil {
			return fmt.Errorf("failed to save checkpoint: %w", err)
		}
	}

	if published > 0 {
		slog.InfoContext(ctx, "Published events to broker", "subscriberID", r.subscriberID, "count", published)
	}
	return nil
}

// Stop gracefully stops the relay.
func (r *Relay) Stop() {
	close(r.quit)
	r.wg.Wait()
}
