package testutil

import (
	"context"
	"iter"
	"slices"
	"sync"
	"time"

	"github.com/0m3kk/taskstream/eventsrc"
)

// MemStore is an in-memory eventsrc.Store for unit tests that do not need a
// database. It honors the same versioning and ordering contract as the
// PostgreSQL store.
type MemStore struct {
	mu     sync.Mutex
	events []eventsrc.Event
	nextID int64
}

func NewMemStore() *MemStore {
	return &MemStore{nextID: 1}
}

func (s *MemStore) Append(
	_ context.Context,
	streamID string,
	events []eventsrc.NewEvent,
	expectedVersion int64,
	opts ...eventsrc.AppendOption,
) ([]eventsrc.Event, error) {
	if len(events) == 0 {
		return []eventsrc.Event{}, nil
	}
	var cfg eventsrc.AppendConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.versionLocked(streamID)
	if expectedVersion != eventsrc.AnyVersion && expectedVersion != current {
		return nil, eventsrc.ErrConcurrency{StreamID: streamID, Expected: expectedVersion, Actual: current}
	}

	persisted := make([]eventsrc.Event, 0, len(events))
	for i, evt := range events {
		persisted = append(persisted, eventsrc.Event{
			ID:            s.nextID,
			StreamID:      streamID,
			StreamVersion: current + int64(i) + 1,
			Type:          evt.Type,
			Data:          evt.Data,
			Metadata:      evt.Metadata,
			CreatedAt:     time.Now().UTC(),
			Tenant:        cfg.Tenant,
		})
		s.nextID++
	}
	s.events = append(s.events, persisted...)
	return persisted, nil
}

func (s *MemStore) ReadStream(
	_ context.Context,
	streamID string,
	from, to int64,
	limit int,
) ([]eventsrc.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []eventsrc.Event
	for _, evt := range s.events {
		if evt.StreamID != streamID || evt.StreamVersion < from {
			continue
		}
		if to >= 0 && evt.StreamVersion > to {
			continue
		}
		out = append(out, evt)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *MemStore) ReadAll(
	_ context.Context,
	fromPosition int64,
	batchSize int,
	opts ...eventsrc.ReadAllOption,
) iter.Seq2[eventsrc.Event, error] {
	var cfg eventsrc.ReadAllConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	s.mu.Lock()
	snapshot := slices.Clone(s.events)
	s.mu.Unlock()

	return func(yield func(eventsrc.Event, error) bool) {
		for _, evt := range snapshot {
			if evt.ID <= fromPosition {
				continue
			}
			if len(cfg.EventTypes) > 0 && !slices.Contains(cfg.EventTypes, evt.Type) {
				continue
			}
			if cfg.Tenant != "" && evt.Tenant != cfg.Tenant {
				continue
			}
			if !yield(evt, nil) {
				return
			}
		}
	}
}

func (s *MemStore) StreamVersion(_ context.Context, streamID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.versionLocked(streamID), nil
}

func (s *MemStore) StreamExists(ctx context.Context, streamID string) (bool, error) {
	version, err := s.StreamVersion(ctx, streamID)
	return version >= 0, err
}

func (s *MemStore) versionLocked(streamID string) int64 {
	version := eventsrc.NoStream
	for _, evt := range s.events {
		if evt.StreamID == streamID && evt.StreamVersion > version {
			version = evt.StreamVersion
		}
	}
	return version
}
