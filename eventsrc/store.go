package eventsrc

import (
	"context"
	"iter"
)

// AnyVersion disables the optimistic concurrency check on Append: the batch
// is committed at whatever the stream's current version happens to be.
const AnyVersion int64 = -1

// NoStream is the version reported for a stream that has never been
// written to.
const NoStream int64 = -1

// AppendOption configures a single Append call.
type AppendOption func(*AppendConfig)

// AppendConfig carries the optional parameters of an Append call.
type AppendConfig struct {
	Tenant string
}

// WithTenant tags every event in the batch with a tenant partition key.
func WithTenant(tenant string) AppendOption {
	return func(c *AppendConfig) {
		c.Tenant = tenant
	}
}

// ReadAllOption configures a ReadAll scan.
type ReadAllOption func(*ReadAllConfig)

// ReadAllConfig carries the optional parameters of a ReadAll scan.
type ReadAllConfig struct {
	EventTypes []string
	Tenant     string
}

// WithEventTypes restricts the scan to the given event types.
func WithEventTypes(types ...string) ReadAllOption {
	return func(c *ReadAllConfig) {
		c.EventTypes = types
	}
}

// WithTenantFilter restricts the scan to events of one tenant.
func WithTenantFilter(tenant string) ReadAllOption {
	return func(c *ReadAllConfig) {
		c.Tenant = tenant
	}
}

// Store is an append-only, per-stream-versioned, globally-ordered event log
// with optimistic concurrency control.
type Store interface {
	// Append atomically commits a batch of draft events to a stream. Each
	// committed event is assigned a new global id and a consecutive stream
	// version; the persisted events are returned in append order. If
	// expectedVersion is not AnyVersion and does not match the stream's
	// current version at commit time, the whole batch is rejected with
	// ErrConcurrency. An empty batch is a no-op returning an empty slice.
	Append(
		ctx context.Context,
		streamID string,
		events []NewEvent,
		expectedVersion int64,
		opts ...AppendOption,
	) ([]Event, error)

	// ReadStream returns the stream's events with stream_version in
	// [from, to] inclusive, ascending. A negative to means open-ended.
	// A positive limit caps the number of returned events.
	ReadStream(ctx context.Context, streamID string, from, to int64, limit int) ([]Event, error)

	// ReadAll yields committed events across all streams in ascending global
	// id order, starting strictly after fromPosition, fetched in pages of
	// batchSize. The sequence terminates when no more rows exist at call
	// time; a caller resumes by re-invoking with the last id it processed.
	ReadAll(ctx context.Context, fromPosition int64, batchSize int, opts ...ReadAllOption) iter.Seq2[Event, error]

	// StreamVersion returns the highest stream_version in the stream, or
	// NoStream if the stream has never been written to.
	StreamVersion(ctx context.Context, streamID string) (int64, error)

	// StreamExists reports whether the stream has at least one event.
	StreamExists(ctx context.Context, streamID string) (bool, error)
}
