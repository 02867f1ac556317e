package taskview

import (
	"time"

	"github.com/google/uuid"
)

// TaskView is the read-model row for one task. It is a derived, mutable
// snapshot owned exclusively by the task projection; the event log remains
// the source of truth.
type TaskView struct {
	ID             uuid.UUID      `json:"id"`
	Tenant         string         `json:"tenant,omitempty"`
	Title          string         `json:"title"`
	Description    string         `json:"description"`
	Status         string         `json:"status"`
	Priority       string         `json:"priority"`
	AssignedAgent  *string        `json:"assigned_agent,omitempty"`
	AssignedUserID *uuid.UUID     `json:"assigned_user_id,omitempty"`
	Tags           []string       `json:"tags"`
	Metadata       map[string]any `json:"metadata"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Statuses a task row moves through. StatusPending is the default on
// creation; StatusCompleted is set by the TaskCompleted event.
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
)

const defaultPriority = "medium"
