package msgbus

import (
	"context"

	"github.com/0m3kk/taskstream/eventsrc"
)

// Broker defines the interface for a message broker used to publish
// committed events to out-of-process subscribers.
type Broker interface {
	// Publish sends an event to a specific topic.
	Publish(ctx context.Context, topic string, evt eventsrc.Event) error
	// Subscribe creates a subscription to a topic and handles incoming
	// messages using the provided handler function.
	Subscribe(
		ctx context.Context,
		topic, subscriberID string,
		handler func(ctx context.Context, evt eventsrc.Event) error,
	) error
	// Close gracefully shuts down the broker connection.
	Close()
}
