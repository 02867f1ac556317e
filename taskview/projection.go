package taskview

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/0m3kk/taskstream/eventsrc"
	"github.com/0m3kk/taskstream/projection"
)

const rebuildBatchSize = 500

// Projection maps task domain events onto the task_views read model.
// It implements projection.Projection.
type Projection struct {
	repo       *Repository
	transactor projection.Transactor
}

func NewProjection(repo *Repository, transactor projection.Transactor) *Projection {
	return &Projection{repo: repo, transactor: transactor}
}

func (p *Projection) Name() string { return "TaskProjection" }

// Apply folds one committed event into the read model. Event types outside
// the task domain are a no-op: new types may ship before this projection
// learns about them.
func (p *Projection) Apply(ctx context.Context, evt eventsrc.Event) error {
	switch evt.Type {
	case TaskCreatedEvent:
		return p.applyCreated(ctx, evt)
	case TaskUpdatedEvent:
		return p.applyUpdated(ctx, evt)
	case TaskAssignedEvent:
		return p.applyAssigned(ctx, evt)
	case TaskStatusChangedEvent:
		return p.applyStatusChanged(ctx, evt)
	case TaskCompletedEvent:
		return p.applyCompleted(ctx, evt)
	case TaskDeletedEvent:
		return p.applyDeleted(ctx, evt)
	default:
		return nil
	}
}

// Rebuild clears the read model and replays the full task history from the
// store in global id order. The whole operation runs in one transaction, so
// concurrent readers never observe the transient empty state and an
// interrupted rebuild leaves the previous rows in place.
func (p *Projection) Rebuild(ctx context.Context, store eventsrc.Store) error {
	return p.transactor.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := p.repo.Clear(txCtx); err != nil {
			return err
		}
		var count int64
		for evt, err := range store.ReadAll(txCtx, 0, rebuildBatchSize, eventsrc.WithEventTypes(EventTypes()...)) {
			if err != nil {
				return fmt.Errorf("failed to read event history: %w", err)
			}
			if err := p.Apply(txCtx, evt); err != nil {
				return err
			}
			count++
		}
		slog.InfoContext(txCtx, "Task projection replayed", "events", count)
		return nil
	})
}

func (p *Projection) applyCreated(ctx context.Context, evt eventsrc.Event) error {
	var payload TaskCreated
	if err := json.Unmarshal(evt.Data, &payload); err != nil {
		return fmt.Errorf("failed to unmarshal TaskCreated payload: %w", err)
	}

	view := TaskView{
		ID:          payload.TaskID,
		Tenant:      evt.Tenant,
		Title:       payload.Title,
		Description: payload.Description,
		Status:      StatusPending,
		Priority:    payload.Priority,
		Tags:        payload.Tags,
		Metadata:    map[string]any{},
		CreatedAt:   evt.CreatedAt,
		UpdatedAt:   evt.CreatedAt,
	}
	if view.Priority == "" {
		view.Priority = defaultPriority
	}
	if view.Tags == nil {
		view.Tags = []string{}
	}
	return p.repo.Insert(ctx, view)
}

func (p *Projection) applyUpdated(ctx context.Context, evt eventsrc.Event) error {
	var payload TaskUpdated
	if err := json.Unmarshal(evt.Data, &payload); err != nil {
		return fmt.Errorf("failed to unmarshal TaskUpdated payload: %w", err)
	}
	return p.repo.Patch(ctx, payload, evt.CreatedAt)
}

func (p *Projection) applyAssigned(ctx context.Context, evt eventsrc.Event) error {
	var payload TaskAssigned
	if err := json.Unmarshal(evt.Data, &payload); err != nil {
		return fmt.Errorf("failed to unmarshal TaskAssigned payload: %w", err)
	}
	return p.repo.Assign(ctx, payload, evt.CreatedAt)
}

func (p *Projection) applyStatusChanged(ctx context.Context, evt eventsrc.Event) error {
	var payload TaskStatusChanged
	if err := json.Unmarshal(evt.Data, &payload); err != nil {
		return fmt.Errorf("failed to unmarshal TaskStatusChanged payload: %w", err)
	}
	return p.repo.SetStatus(ctx, payload.TaskID, payload.Status, evt.CreatedAt)
}

func (p *Projection) applyCompleted(ctx context.Context, evt eventsrc.Event) error {
	var payload TaskCompleted
	if err := json.Unmarshal(evt.Data, &payload); err != nil {
		return fmt.Errorf("failed to unmarshal TaskCompleted payload: %w", err)
	}
	return p.repo.Complete(ctx, payload.TaskID, payload.CompletionResult, evt.CreatedAt)
}

func (p *Projection) applyDeleted(ctx context.Context, evt eventsrc.Event) error {
	var payload TaskDeleted
	if err := json.Unmarshal(evt.Data, &payload); err != nil {
		return fmt.Errorf("failed to unmarshal TaskDeleted payload: %w", err)
	}
	return p.repo.Delete(ctx, payload.TaskID)
}
