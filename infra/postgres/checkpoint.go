package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// CheckpointStore persists the resume position of catch-up consumers of the
// event log, keyed by subscriber id. The position is the global id of the
// last event the subscriber successfully processed.
type CheckpointStore struct {
	db *DB
}

func NewCheckpointStore(db *DB) *CheckpointStore {
	return &CheckpointStore{db: db}
}

// Load returns the subscriber's checkpoint, or 0 if it has never saved one,
// which makes a fresh subscriber start from the beginning of the log.
func (s *CheckpointStore) Load(ctx context.Context, subscriberID string) (int64, error) {
	var position int64
	query := `SELECT position FROM relay_checkpoints WHERE subscriber_id = $1`
	err := s.db.Querier(ctx).QueryRow(ctx, query, subscriberID).Scan(&position)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to load checkpoint for %q: %w", subscriberID, err)
	}
	return position, nil
}

// Save upserts the subscriber's checkpoint.
func (s *CheckpointStore) Save(ctx context.Context, subscriberID string, position int64) error {
	query := `
        INSERT INTO relay_checkpoints (subscriber_id, position, updated_at)
        VALUES ($1, $2, now())
        ON CONFLICT (subscriber_id) DO UPDATE SET
            position = EXCLUDED.position,
            updated_at = EXCLUDED.updated_at
    `
	_, err := s.db.Querier(ctx).Exec(ctx, query, subscriberID, position)
	if err != nil {
		return fmt.Errorf("failed to save checkpoint for %q: %w", subscriberID, err)
	}
	return nil
}
