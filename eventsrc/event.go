package eventsrc

import (
	"encoding/json"
	"time"
)

// Event is an immutable fact that has been committed to the store.
// ID is assigned by the store at commit time and is strictly increasing
// across all streams; StreamVersion is the zero-based, gapless position
// of the event within its stream.
type Event struct {
	ID            int64           `json:"id"`
	StreamID      string          `json:"stream_id"`
	StreamVersion int64           `json:"stream_version"`
	Type          string          `json:"event_type"`
	Data          json.RawMessage `json:"event_data"`
	Metadata      json.RawMessage `json:"metadata,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	Tenant        string          `json:"tenant,omitempty"`
}

// NewEvent is a draft event that has not been persisted yet. It has no
// identity, version, or timestamp until it is appended to a stream.
type NewEvent struct {
	Type     string          `json:"event_type"`
	Data     json.RawMessage `json:"event_data"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

// Draft builds a NewEvent, marshaling the payload and metadata. Metadata may
// be nil. Marshal failures surface here rather than at append time so that
// callers fail before touching the store.
func Draft(eventType string, data any, metadata any) (NewEvent, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return NewEvent{}, err
	}
	evt := NewEvent{Type: eventType, Data: payload}
	if metadata != nil {
		meta, err := json.Marshal(metadata)
		if err != nil {
			return NewEvent{}, err
		}
		evt.Metadata = meta
	}
	return evt, nil
}
