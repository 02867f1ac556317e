package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/0m3kk/taskstream/eventsrc"
)

// Broker is an implementation of the msgbus.Broker interface using NATS
// JetStream.
type Broker struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// NewBroker creates a new NATS-backed broker.
func NewBroker(url string) (*Broker, error) {
	nc, err := nats.Connect(
		url,
		nats.Timeout(10*time.Second),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	return &Broker{conn: nc, js: js}, nil
}

// Publish sends an event to a NATS topic.
func (b *Broker) Publish(ctx context.Context, topic string, evt eventsrc.Event) error {
	if err := b.ensureStream(ctx, topic); err != nil {
		return err
	}

	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	// Use the stream id as the NATS subject suffix for partitioning.
	// Example subject: tasks.task-c7c0b6f2-7a7e-4b2a-8f3b-5e4e2a1e0b5e
	subject := fmt.Sprintf("%s.%s", topic, evt.StreamID)

	if _, err := b.js.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish event to NATS: %w", err)
	}

	slog.DebugContext(ctx, "Event published successfully", "topic", topic, "subject", subject, "eventID", evt.ID)
	return nil
}

// Subscribe creates a durable, pull-based subscription.
func (b *Broker) Subscribe(
	ctx context.Context,
	topic, subscriberID string,
	handler func(context.Context, eventsrc.Event) error,
) error {
	if err := b.ensureStream(ctx, topic); err != nil {
		return err
	}

	consumerName := fmt.Sprintf("%s-%s", topic, subscriberID)

	// A durable consumer resumes from where it left off after a restart.
	sub, err := b.js.PullSubscribe(
		fmt.Sprintf("%s.*", topic),
		consumerName,
		nats.PullMaxWaiting(128),
	)
	if err != nil {
		return fmt.Errorf("failed to create pull subscription: %w", err)
	}

	go func() {
		slog.InfoContext(ctx, "Subscriber started", "topic", topic, "subscriberID", subscriberID)
		for {
			select {
			case <-ctx.Done():
				slog.InfoContext(ctx, "Subscriber stopping", "topic", topic, "subscriberID", subscriberID)
				return
			default:
				msgs, err := sub.Fetch(10, nats.MaxWait(5*time.Second))
				if err != nil {
					if err != nats.ErrTimeout {
						slog.ErrorContext(ctx, "Failed to fetch messages", "error", err, "topic", topic)
					}
					continue
				}

				for _, msg := range msgs {
					var evt eventsrc.Event
					if err := json.Unmarshal(msg.Data, &evt); err != nil {
						slog.ErrorContext(ctx, "Failed to unmarshal event, skipping", "error", err, "topic", topic)
						msg.Nak()
						continue
					}

					if err := handler(ctx, evt); err != nil {
						slog.ErrorContext(ctx, "Handler failed to process event", "error", err, "eventID", evt.ID)
						msg.Nak()
					} else {
						msg.Ack()
					}
				}
			}
		}
	}()

	return nil
}

func (b *Broker) ensureStream(ctx context.Context, topic string) error {
	_, err := b.js.StreamInfo(topic)
	if err == nil {
		return nil
	}
	if err != nats.ErrStreamNotFound {
		return fmt.Errorf("failed to get stream info for %s: %w", topic, err)
	}

	slog.InfoContext(ctx, "Stream not found, creating it", "stream", topic)
	_, err = b.js.AddStream(&nats.StreamConfig{
		Name:     topic,
		Subjects: []string{fmt.Sprintf("%s.*", topic)},
	})
	if err != nil {
		return fmt.Errorf("failed to create stream %s: %w", topic, err)
	}
	return nil
}

// Close gracefully closes the NATS connection.
func (b *Broker) Close() {
	if b.conn != nil {
		b.conn.Close()
	}
}
