package testutil

import (
	"encoding/json"
	"fmt"

	"github.com/0m3kk/taskstream/eventsrc"
)

// RawDraft builds a NewEvent from a raw JSON payload string.
func RawDraft(eventType, data string) eventsrc.NewEvent {
	return eventsrc.NewEvent{Type: eventType, Data: json.RawMessage(data)}
}

// Drafts builds n NewEvents of the same type with a counter field, useful
// for filling streams in bulk.
func Drafts(eventType string, n int) []eventsrc.NewEvent {
	events := make([]eventsrc.NewEvent, n)
	for i := range n {
		events[i] = eventsrc.NewEvent{
			Type: eventType,
			Data: json.RawMessage(fmt.Sprintf(`{"seq":%d}`, i)),
		}
	}
	return events
}
