package postgres

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/0m3kk/taskstream/eventsrc"
)

const defaultReadAllBatchSize = 1000

// errVersionRace marks a unique-constraint violation on
// (stream_id, stream_version): a concurrent writer landed the same version
// between our read and our insert. Surfaced to callers as ErrConcurrency.
var errVersionRace = errors.New("stream version already taken")

// EventStore implements the eventsrc.Store interface for PostgreSQL.
//
// The version check and the inserts run in one transaction, so two writers
// that both observed version v cannot both commit v+1. The unique constraint
// on (stream_id, stream_version) backs this up: even if the transaction
// boundary were ever wrong, the race surfaces as a conflict instead of a
// gap or duplicate in the stream.
type EventStore struct {
	db *DB
}

// NewEventStore creates a new PostgreSQL event store.
func NewEventStore(db *DB) *EventStore {
	return &EventStore{db: db}
}

// Append atomically commits a batch of draft events to a stream.
func (s *EventStore) Append(
	ctx context.Context,
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

	var persisted []eventsrc.Event
	err := s.db.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		persisted, err = s.appendInTx(txCtx, streamID, events, expectedVersion, cfg)
		return err
	})
	if err != nil {
		if errors.Is(err, errVersionRace) {
			// The transaction rolled back, so re-read the winner's version
			// to report the actual position of the stream.
			actual, verr := s.StreamVersion(ctx, streamID)
			if verr != nil {
				return nil, fmt.Errorf("failed to read stream version after conflict: %w", verr)
			}
			return nil, eventsrc.ErrConcurrency{StreamID: streamID, Expected: expectedVersion, Actual: actual}
		}
		return nil, err
	}
	return persisted, nil
}

func (s *EventStore) appendInTx(
	ctx context.Context,
	streamID string,
	events []eventsrc.NewEvent,
	expectedVersion int64,
	cfg eventsrc.AppendConfig,
) ([]eventsrc.Event, error) {
	q := s.db.Querier(ctx)

	current, err := currentVersion(ctx, q, streamID)
	if err != nil {
		return nil, fmt.Errorf("failed to read current stream version: %w", err)
	}
	if expectedVersion != eventsrc.AnyVersion && expectedVersion != current {
		return nil, eventsrc.ErrConcurrency{StreamID: streamID, Expected: expectedVersion, Actual: current}
	}

	b := &pgx.Batch{}
	stmt := `
        INSERT INTO events (stream_id, stream_version, event_type, event_data, metadata, tenant)
        VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''))
        RETURNING id, created_at
    `
	for i, evt := range events {
		b.Queue(stmt, streamID, current+int64(i)+1, evt.Type, evt.Data, evt.Metadata, cfg.Tenant)
	}

	br := q.SendBatch(ctx, b)
	defer br.Close()

	persisted := make([]eventsrc.Event, 0, len(events))
	for i, evt := range events {
		var id int64
		var createdAt time.Time
		if err := br.QueryRow().Scan(&id, &createdAt); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
				return nil, errVersionRace
			}
			return nil, fmt.Errorf("failed to insert event into batch: %w", err)
		}
		persisted = append(persisted, eventsrc.Event{
			ID:            id,
			StreamID:      streamID,
			StreamVersion: current + int64(i) + 1,
			Type:          evt.Type,
			Data:          evt.Data,
			Metadata:      evt.Metadata,
			CreatedAt:     createdAt,
			Tenant:        cfg.Tenant,
		})
	}
	if err := br.Close(); err != nil {
		return nil, fmt.Errorf("failed to close batch results: %w", err)
	}
	return persisted, nil
}

// ReadStream returns the stream's events in ascending version order.
func (s *EventStore) ReadStream(
	ctx context.Context,
	streamID string,
	from, to int64,
	limit int,
) ([]eventsrc.Event, error) {
	query := `
        SELECT id, stream_id, stream_version, event_type, event_data, metadata, created_at, COALESCE(tenant, '')
        FROM events
        WHERE stream_id = $1 AND stream_version >= $2
    `
	args := []any{streamID, from}
	if to >= 0 {
		args = append(args, to)
		query += " AND stream_version <= $" + strconv.Itoa(len(args))
	}
	query += " ORDER BY stream_version ASC"
	if limit > 0 {
		args = append(args, limit)
		query += " LIMIT $" + strconv.Itoa(len(args))
	}

	rows, err := s.db.Querier(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query stream %q: %w", streamID, err)
	}
	defer rows.Close()

	return collectEvents(rows)
}

// ReadAll yields committed events across all streams in ascending global id
// order, fetched in pages of batchSize. The sequence terminates when no more
// rows exist at call time; it is not a live stream.
func (s *EventStore) ReadAll(
	ctx context.Context,
	fromPosition int64,
	batchSize int,
	opts ...eventsrc.ReadAllOption,
) iter.Seq2[eventsrc.Event, error] {
	var cfg eventsrc.ReadAllConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if batchSize <= 0 {
		batchSize = defaultReadAllBatchSize
	}

	return func(yield func(eventsrc.Event, error) bool) {
		pos := fromPosition
		for {
			page, err := s.readAllPage(ctx, pos, batchSize, cfg)
			if err != nil {
				yield(eventsrc.Event{}, err)
				return
			}
			for _, evt := range page {
				if !yield(evt, nil) {
					return
				}
				pos = evt.ID
			}
			if len(page) < batchSize {
				return
			}
		}
	}
}

func (s *EventStore) readAllPage(
	ctx context.Context,
	after int64,
	batchSize int,
	cfg eventsrc.ReadAllConfig,
) ([]eventsrc.Event, error) {
	query := `
        SELECT id, stream_id, stream_version, event_type, event_data, metadata, created_at, COALESCE(tenant, '')
        FROM events
        WHERE id > $1
    `
	args := []any{after}
	if len(cfg.EventTypes) > 0 {
		args = append(args, cfg.EventTypes)
		query += " AND event_type = ANY($" + strconv.Itoa(len(args)) + ")"
	}
	if cfg.Tenant != "" {
		args = append(args, cfg.Tenant)
		query += " AND tenant = $" + strconv.Itoa(len(args))
	}
	args = append(args, batchSize)
	query += " ORDER BY id ASC LIMIT $" + strconv.Itoa(len(args))

	rows, err := s.db.Querier(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query event log: %w", err)
	}
	defer rows.Close()

	return collectEvents(rows)
}

// StreamVersion returns the highest stream_version for the stream, or
// eventsrc.NoStream if the stream has never been written to. It never fails
// for a nonexistent stream.
func (s *EventStore) StreamVersion(ctx context.Context, streamID string) (int64, error) {
	q := s.db.Querier(ctx)
	return currentVersion(ctx, q, streamID)
}

// StreamExists reports whether the stream has at least one event.
func (s *EventStore) StreamExists(ctx context.Context, streamID string) (bool, error) {
	version, err := s.StreamVersion(ctx, streamID)
	if err != nil {
		return false, err
	}
	return version >= 0, nil
}

func currentVersion(ctx context.Context, q Querier, streamID string) (int64, error) {
	var version int64
	query := `SELECT COALESCE(MAX(stream_version), -1) FROM events WHERE stream_id = $1`
	if err := q.QueryRow(ctx, query, streamID).Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to read version of stream %q: %w", streamID, err)
	}
	return version, nil
}

func collectEvents(rows pgx.Rows) ([]eventsrc.Event, error) {
	var events []eventsrc.Event
	for rows.Next() {
		var evt eventsrc.Event
		if err := rows.Scan(
			&evt.ID,
			&evt.StreamID,
			&evt.StreamVersion,
			&evt.Type,
			&evt.Data,
			&evt.Metadata,
			&evt.CreatedAt,
			&evt.Tenant,
		); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		events = append(events, evt)
	}
	return events, rows.Err()
}
