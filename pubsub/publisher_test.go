package pubsub_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/0m3kk/taskstream/eventsrc"
	"github.com/0m3kk/taskstream/pubsub"
)

func TestPublisher_ExactTypeBeforeWildcard(t *testing.T) {
	publisher := pubsub.NewPublisher()
	var calls []string

	publisher.SubscribeAll(func(_ context.Context, _ eventsrc.Event) error {
		calls = append(calls, "wildcard")
		return nil
	})
	publisher.Subscribe("TaskCreated", func(_ context.Context, _ eventsrc.Event) error {
		calls = append(calls, "exact")
		return nil
	})

	publisher.Publish(context.Background(), eventsrc.Event{ID: 1, Type: "TaskCreated"})

	assert.Equal(t, []string{"exact", "wildcard"}, calls,
		"exact-type handlers run before wildcard handlers")
}

func TestPublisher_OnlyMatchingTypeHandlersRun(t *testing.T) {
	publisher := pubsub.NewPublisher()
	var calls []string

	publisher.Subscribe("TaskCreated", func(_ context.Context, _ eventsrc.Event) error {
		calls = append(calls, "created")
		return nil
	})
	publisher.Subscribe("TaskDeleted", func(_ context.Context, _ eventsrc.Event) error {
		calls = append(calls, "deleted")
		return nil
	})

	publisher.Publish(context.Background(), eventsrc.Event{ID: 1, Type: "TaskDeleted"})

	assert.Equal(t, []string{"deleted"}, calls)
}

func TestPublisher_HandlerErrorDoesNotStopFanOut(t *testing.T) {
	publisher := pubsub.NewPublisher()
	var calls []string

	publisher.Subscribe("TaskCreated", func(_ context.Context, _ eventsrc.Event) error {
		calls = append(calls, "failing")
		return errors.New("subscriber broke")
	})
	publisher.Subscribe("TaskCreated", func(_ context.Context, _ eventsrc.Event) error {
		calls = append(calls, "healthy")
		return nil
	})

	publisher.Publish(context.Background(), eventsrc.Event{ID: 1, Type: "TaskCreated"})

	assert.Equal(t, []string{"failing", "healthy"}, calls,
		"an error in one handler must not prevent the others from running")
}

func TestPublisher_HandlerPanicIsContained(t *testing.T) {
	publisher := pubsub.NewPublisher()
	var calls []string

	publisher.Subscribe("TaskCreated", func(_ context.Context, _ eventsrc.Event) error {
		panic("subscriber exploded")
	})
	publisher.SubscribeAll(func(_ context.Context, _ eventsrc.Event) error {
		calls = append(calls, "survivor")
		return nil
	})

	assert.NotPanics(t, func() {
		publisher.Publish(context.Background(), eventsrc.Event{ID: 1, Type: "TaskCreated"})
	})
	assert.Equal(t, []string{"survivor"}, calls)
}

func TestPublisher_NoSubscribersIsFine(t *testing.T) {
	publisher := pubsub.NewPublisher()
	assert.NotPanics(t, func() {
		publisher.Publish(context.Background(), eventsrc.Event{ID: 1, Type: "TaskCreated"})
	})
}
