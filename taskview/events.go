package taskview

import (
	"github.com/google/uuid"
)

// Task domain event types. The projection recognizes exactly this set;
// anything else is ignored.
const (
	TaskCreatedEvent       = "TaskCreated"
	TaskUpdatedEvent       = "TaskUpdated"
	TaskAssignedEvent      = "TaskAssigned"
	TaskStatusChangedEvent = "TaskStatusChanged"
	TaskCompletedEvent     = "TaskCompleted"
	TaskDeletedEvent       = "TaskDeleted"
)

// EventTypes lists every event type the task projection consumes, in no
// particular order. Used to filter full-log replays during rebuild.
func EventTypes() []string {
	return []string{
		TaskCreatedEvent,
		TaskUpdatedEvent,
		TaskAssignedEvent,
		TaskStatusChangedEvent,
		TaskCompletedEvent,
		TaskDeletedEvent,
	}
}

// StreamID returns the event stream key for a task.
func StreamID(taskID uuid.UUID) string {
	return "task-" + taskID.String()
}

// TaskCreated is the payload of the event that brings a task into existence.
type TaskCreated struct {
	TaskID      uuid.UUID `json:"task_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Priority    string    `json:"priority,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
}

// TaskUpdated is a sparse patch: only fields present in the payload are
// written to the read model. A nil pointer means "leave unchanged", which
// keeps present, absent, and explicitly empty unambiguous at the type level.
type TaskUpdated struct {
	TaskID      uuid.UUID `json:"task_id"`
	Title       *string   `json:"title,omitempty"`
	Description *string   `json:"description,omitempty"`
	Priority    *string   `json:"priority,omitempty"`
	Tags        *[]string `json:"tags,omitempty"`
}

// TaskAssigned sets the task's assignee. Either field may be absent.
type TaskAssigned struct {
	TaskID         uuid.UUID  `json:"task_id"`
	AssignedAgent  *string    `json:"assigned_agent,omitempty"`
	AssignedUserID *uuid.UUID `json:"assigned_user_id,omitempty"`
}

// TaskStatusChanged moves the task to a new status.
type TaskStatusChanged struct {
	TaskID uuid.UUID `json:"task_id"`
	Status string    `json:"status"`
}

// TaskCompleted marks the task completed and records its outcome. The
// completion result is merged additively into the row's free-form metadata.
type TaskCompleted struct {
	TaskID           uuid.UUID      `json:"task_id"`
	CompletionResult map[string]any `json:"completion_result,omitempty"`
}

// TaskDeleted removes the task from the read model. The underlying log
// entries are retained; deletion is a read-model-only operation.
type TaskDeleted struct {
	TaskID uuid.UUID `json:"task_id"`
}
