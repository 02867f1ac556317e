package eventsrc

import "fmt"

// ErrConcurrency is returned when an append fails because the caller's
// expected version does not match the stream's current version at commit
// time, indicating a concurrent modification. The whole batch is rejected;
// no partial writes occur.
type ErrConcurrency struct {
	StreamID string
	Expected int64
	Actual   int64
}

func (e ErrConcurrency) Error() string {
	return fmt.Sprintf(
		"concurrency conflict on stream %q: expected version %d, actual %d",
		e.StreamID, e.Expected, e.Actual,
	)
}
