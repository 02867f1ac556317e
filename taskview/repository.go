package taskview

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/0m3kk/taskstream/infra/postgres"
)

// Repository owns all reads and writes of the task_views table. The write
// methods are only called by the task projection; the query methods serve
// the API layer directly.
type Repository struct {
	db *postgres.DB
}

func NewRepository(db *postgres.DB) *Repository {
	return &Repository{db: db}
}

// Insert creates the row for a freshly created task. Re-applying the same
// creation event is a no-op, which keeps replay idempotent.
func (r *Repository) Insert(ctx context.Context, view TaskView) error {
	metadata, err := json.Marshal(view.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal task metadata: %w", err)
	}
	query := `
        INSERT INTO task_views (id, tenant, title, description, status, priority, tags, metadata, created_at, updated_at)
        VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8, $9, $10)
        ON CONFLICT (id) DO NOTHING
    `
	_, err = r.db.Querier(ctx).Exec(ctx, query,
		view.ID, view.Tenant, view.Title, view.Description, view.Status,
		view.Priority, view.Tags, metadata, view.CreatedAt, view.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert task view %s: %w", view.ID, err)
	}
	return nil
}

// Patch applies a sparse update: only non-nil fields are written. When the
// patch carries no updatable field, no statement is issued at all.
func (r *Repository) Patch(ctx context.Context, patch TaskUpdated, updatedAt time.Time) error {
	sets := make([]string, 0, 4)
	args := []any{patch.TaskID}

	appendSet := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, column+" = $"+strconv.Itoa(len(args)))
	}

	if patch.Title != nil {
		appendSet("title", *patch.Title)
	}
	if patch.Description != nil {
		appendSet("description", *patch.Description)
	}
	if patch.Priority != nil {
		appendSet("priority", *patch.Priority)
	}
	if patch.Tags != nil {
		appendSet("tags", *patch.Tags)
	}
	if len(sets) == 0 {
		return nil
	}
	appendSet("updated_at", updatedAt)

	query := "UPDATE task_views SET " + strings.Join(sets, ", ") + " WHERE id = $1"
	_, err := r.db.Querier(ctx).Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to patch task view %s: %w", patch.TaskID, err)
	}
	return nil
}

// Assign sets the task's assignee fields from the event payload.
func (r *Repository) Assign(ctx context.Context, evt TaskAssigned, updatedAt time.Time) error {
	query := `
        UPDATE task_views SET assigned_agent = $2, assigned_user_id = $3, updated_at = $4
        WHERE id = $1
    `
	_, err := r.db.Querier(ctx).Exec(ctx, query, evt.TaskID, evt.AssignedAgent, evt.AssignedUserID, updatedAt)
	if err != nil {
		return fmt.Errorf("failed to assign task view %s: %w", evt.TaskID, err)
	}
	return nil
}

// SetStatus moves the task to a new status.
func (r *Repository) SetStatus(ctx context.Context, taskID uuid.UUID, status string, updatedAt time.Time) error {
	query := `UPDATE task_views SET status = $2, updated_at = $3 WHERE id = $1`
	_, err := r.db.Querier(ctx).Exec(ctx, query, taskID, status, updatedAt)
	if err != nil {
		return fmt.Errorf("failed to set status of task view %s: %w", taskID, err)
	}
	return nil
}

// Complete marks the task completed and merges the completion result into
// the row's free-form metadata. The merge is additive: existing keys not
// present in the result are retained.
func (r *Repository) Complete(ctx context.Context, taskID uuid.UUID, result map[string]any, updatedAt time.Time) error {
	merged, err := json.Marshal(map[string]any{"completion_result": result})
	if err != nil {
		return fmt.Errorf("failed to marshal completion result: %w", err)
	}
	query := `
        UPDATE task_views SET status = $2, metadata = metadata || $3::jsonb, updated_at = $4
        WHERE id = $1
    `
	_, err = r.db.Querier(ctx).Exec(ctx, query, taskID, StatusCompleted, merged, updatedAt)
	if err != nil {
		return fmt.Errorf("failed to complete task view %s: %w", taskID, err)
	}
	return nil
}

// Delete removes the row entirely. Deleting a row that is already gone is
// not an error.
func (r *Repository) Delete(ctx context.Context, taskID uuid.UUID) error {
	query := `DELETE FROM task_views WHERE id = $1`
	_, err := r.db.Querier(ctx).Exec(ctx, query, taskID)
	if err != nil {
		return fmt.Errorf("failed to delete task view %s: %w", taskID, err)
	}
	return nil
}

// Clear empties the read model. Only called at the start of a rebuild.
func (r *Repository) Clear(ctx context.Context) error {
	_, err := r.db.Querier(ctx).Exec(ctx, `TRUNCATE TABLE task_views`)
	if err != nil {
		return fmt.Errorf("failed to clear task views: %w", err)
	}
	return nil
}

// GetByID returns the task row, or nil if the task does not exist in the
// read model.
func (r *Repository) GetByID(ctx context.Context, taskID uuid.UUID) (*TaskView, error) {
	query := selectColumns + ` WHERE id = $1`
	rows, err := r.db.Querier(ctx).Query(ctx, query, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to get task view %s: %w", taskID, err)
	}
	defer rows.Close()

	views, err := collectViews(rows)
	if err != nil {
		return nil, err
	}
	if len(views) == 0 {
		return nil, nil
	}
	return &views[0], nil
}

// ListByStatus returns tasks in the given status, most recently updated
// first.
func (r *Repository) ListByStatus(ctx context.Context, status string, limit int) ([]TaskView, error) {
	query := selectColumns + ` WHERE status = $1 ORDER BY updated_at DESC LIMIT $2`
	rows, err := r.db.Querier(ctx).Query(ctx, query, status, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list task views by status: %w", err)
	}
	defer rows.Close()

	return collectViews(rows)
}

// ListByTenant returns one tenant's tasks, most recently updated first.
func (r *Repository) ListByTenant(ctx context.Context, tenant string, limit int) ([]TaskView, error) {
	query := selectColumns + ` WHERE tenant = $1 ORDER BY updated_at DESC LIMIT $2`
	rows, err := r.db.Querier(ctx).Query(ctx, query, tenant, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list task views by tenant: %w", err)
	}
	defer rows.Close()

	return collectViews(rows)
}

const selectColumns = `
    SELECT id, COALESCE(tenant, ''), title, description, status, priority,
           assigned_agent, assigned_user_id, tags, metadata, created_at, updated_at
    FROM task_views`

func collectViews(rows pgx.Rows) ([]TaskView, error) {
	var views []TaskView
	for rows.Next() {
		var v TaskView
		if err := rows.Scan(
			&v.ID,
			&v.Tenant,
			&v.Title,
			&v.Description,
			&v.Status,
			&v.Priority,
			&v.AssignedAgent,
			&v.AssignedUserID,
			&v.Tags,
			&v.Metadata,
			&v.CreatedAt,
			&v.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan task view row: %w", err)
		}
		views = append(views, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return views, nil
}

