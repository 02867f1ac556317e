package taskview_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"github.com/0m3kk/taskstream/eventsrc"
	"github.com/0m3kk/taskstream/infra/postgres"
	"github.com/0m3kk/taskstream/projection"
	"github.com/0m3kk/taskstream/taskview"
	"github.com/0m3kk/taskstream/testutil"
)

type TaskProjectionSuite struct {
	testutil.DBIntegrationSuite
	db         *postgres.DB
	store      *postgres.EventStore
	repo       *taskview.Repository
	projection *taskview.Projection
	manager    *projection.Manager
}

func TestTaskProjectionSuite(t *testing.T) {
	suite.Run(t, new(TaskProjectionSuite))
}

func (s *TaskProjectionSuite) SetupTest() {
	s.db = &postgres.DB{Pool: s.Pool}
	s.store = postgres.NewEventStore(s.db)
	s.repo = taskview.NewRepository(s.db)
	s.projection = taskview.NewProjection(s.repo, s.db)
	s.manager = projection.NewManager(s.store)
	s.manager.Register(s.projection)
	s.TruncateTables("events", "task_views")
}

// commit appends one event to the task's stream and returns it persisted,
// without applying it to the projection.
func (s *TaskProjectionSuite) commit(taskID uuid.UUID, eventType string, payload any) eventsrc.Event {
	draft, err := eventsrc.Draft(eventType, payload, nil)
	s.Require().NoError(err)
	persisted, err := s.store.Append(
		context.Background(), taskview.StreamID(taskID), []eventsrc.NewEvent{draft}, eventsrc.AnyVersion)
	s.Require().NoError(err)
	return persisted[0]
}

// commitAndApply additionally folds the event into the projection, the way
// the API layer would after a successful append.
func (s *TaskProjectionSuite) commitAndApply(taskID uuid.UUID, eventType string, payload any) eventsrc.Event {
	evt := s.commit(taskID, eventType, payload)
	s.Require().NoError(s.manager.ApplyEvent(context.Background(), evt))
	return evt
}

func (s *TaskProjectionSuite) TestTaskCreated_InsertsRowWithDefaults() {
	ctx := context.Background()
	taskID := uuid.New()

	evt := s.commitAndApply(taskID, taskview.TaskCreatedEvent, taskview.TaskCreated{
		TaskID: taskID,
		Title:  "Write the quarterly report",
		Tags:   []string{"reporting"},
	})

	view, err := s.repo.GetByID(ctx, taskID)
	s.Require().NoError(err)
	s.Require().NotNil(view)
	s.Equal("Write the quarterly report", view.Title)
	s.Equal(taskview.StatusPending, view.Status)
	s.Equal("medium", view.Priority)
	s.Equal([]string{"reporting"}, view.Tags)
	s.Nil(view.AssignedAgent)
	s.WithinDuration(evt.CreatedAt, view.CreatedAt, 0)
	s.WithinDuration(evt.CreatedAt, view.UpdatedAt, 0)
}

func (s *TaskProjectionSuite) TestTaskUpdated_PatchesOnlyPresentFields() {
	ctx := context.Background()
	taskID := uuid.New()

	s.commitAndApply(taskID, taskview.TaskCreatedEvent, taskview.TaskCreated{
		TaskID:      taskID,
		Title:       "Original",
		Description: "Keep me",
		Priority:    "low",
	})

	title := "Renamed"
	s.commitAndApply(taskID, taskview.TaskUpdatedEvent, taskview.TaskUpdated{
		TaskID: taskID,
		Title:  &title,
	})

	view, err := s.repo.GetByID(ctx, taskID)
	s.Require().NoError(err)
	s.Equal("Renamed", view.Title)
	s.Equal("Keep me", view.Description, "absent fields must be left untouched")
	s.Equal("low", view.Priority)
}

func (s *TaskProjectionSuite) TestTaskUpdated_EmptyPatchWritesNothing() {
	ctx := context.Background()
	taskID := uuid.New()

	s.commitAndApply(taskID, taskview.TaskCreatedEvent, taskview.TaskCreated{TaskID: taskID, Title: "T"})
	before, err := s.repo.GetByID(ctx, taskID)
	s.Require().NoError(err)

	s.commitAndApply(taskID, taskview.TaskUpdatedEvent, taskview.TaskUpdated{TaskID: taskID})

	after, err := s.repo.GetByID(ctx, taskID)
	s.Require().NoError(err)
	s.Equal(before, after, "a patch with no updatable field must not issue a write")
}

func (s *TaskProjectionSuite) TestTaskAssigned_SetsAssignee() {
	ctx := context.Background()
	taskID := uuid.New()
	userID := uuid.New()
	agent := "scheduler-7"

	s.commitAndApply(taskID, taskview.TaskCreatedEvent, taskview.TaskCreated{TaskID: taskID, Title: "T"})
	s.commitAndApply(taskID, taskview.TaskAssignedEvent, taskview.TaskAssigned{
		TaskID:         taskID,
		AssignedAgent:  &agent,
		AssignedUserID: &userID,
	})

	view, err := s.repo.GetByID(ctx, taskID)
	s.Require().NoError(err)
	s.Require().NotNil(view.AssignedAgent)
	s.Equal("scheduler-7", *view.AssignedAgent)
	s.Require().NotNil(view.AssignedUserID)
	s.Equal(userID, *view.AssignedUserID)
}

func (s *TaskProjectionSuite) TestTaskStatusChanged_SetsStatus() {
	ctx := context.Background()
	taskID := uuid.New()

	s.commitAndApply(taskID, taskview.TaskCreatedEvent, taskview.TaskCreated{TaskID: taskID, Title: "T"})
	s.commitAndApply(taskID, taskview.TaskStatusChangedEvent, taskview.TaskStatusChanged{
		TaskID: taskID,
		Status: taskview.StatusInProgress,
	})

	view, err := s.repo.GetByID(ctx, taskID)
	s.Require().NoError(err)
	s.Equal(taskview.StatusInProgress, view.Status)
}

func (s *TaskProjectionSuite) TestTaskCompleted_MergesResultIntoMetadata() {
	ctx := context.Background()
	taskID := uuid.New()

	s.commitAndApply(taskID, taskview.TaskCreatedEvent, taskview.TaskCreated{TaskID: taskID, Title: "T"})

	// Seed an unrelated metadata key to prove the merge is additive.
	_, err := s.Pool.Exec(ctx, `UPDATE task_views SET metadata = '{"origin":"import"}' WHERE id = $1`, taskID)
	s.Require().NoError(err)

	s.commitAndApply(taskID, taskview.TaskCompletedEvent, taskview.TaskCompleted{
		TaskID:           taskID,
		CompletionResult: map[string]any{"exit_code": float64(0)},
	})

	view, err := s.repo.GetByID(ctx, taskID)
	s.Require().NoError(err)
	s.Equal(taskview.StatusCompleted, view.Status)
	s.Equal("import", view.Metadata["origin"], "existing metadata keys must survive the merge")
	result, ok := view.Metadata["completion_result"].(map[string]any)
	s.Require().True(ok)
	s.Equal(float64(0), result["exit_code"])
}

func (s *TaskProjectionSuite) TestTaskDeleted_RemovesRowButKeepsLog() {
	ctx := context.Background()
	taskID := uuid.New()

	s.commitAndApply(taskID, taskview.TaskCreatedEvent, taskview.TaskCreated{TaskID: taskID, Title: "T"})
	s.commitAndApply(taskID, taskview.TaskDeletedEvent, taskview.TaskDeleted{TaskID: taskID})

	view, err := s.repo.GetByID(ctx, taskID)
	s.Require().NoError(err)
	s.Nil(view)

	// Deletion is a read-model-only operation; history stays intact.
	events, err := s.store.ReadStream(ctx, taskview.StreamID(taskID), 0, -1, 0)
	s.Require().NoError(err)
	s.Len(events, 2)
}

func (s *TaskProjectionSuite) TestUnknownEventType_IsNoOp() {
	ctx := context.Background()
	taskID := uuid.New()

	s.commitAndApply(taskID, taskview.TaskCreatedEvent, taskview.TaskCreated{TaskID: taskID, Title: "T"})
	before, err := s.repo.GetByID(ctx, taskID)
	s.Require().NoError(err)

	evt := s.commit(taskID, "TaskArchived", map[string]any{"reason": "cleanup"})
	s.Require().NoError(s.projection.Apply(ctx, evt))

	after, err := s.repo.GetByID(ctx, taskID)
	s.Require().NoError(err)
	s.Equal(before, after, "an unrecognized event type must leave the row untouched")
}

func (s *TaskProjectionSuite) TestRebuild_MatchesIncrementalApplication() {
	ctx := context.Background()
	first := uuid.New()
	second := uuid.New()
	agent := "worker-3"
	title := "Second, renamed"

	s.commitAndApply(first, taskview.TaskCreatedEvent, taskview.TaskCreated{
		TaskID: first, Title: "First", Priority: "high", Tags: []string{"a", "b"},
	})
	s.commitAndApply(second, taskview.TaskCreatedEvent, taskview.TaskCreated{TaskID: second, Title: "Second"})
	s.commitAndApply(first, taskview.TaskAssignedEvent, taskview.TaskAssigned{TaskID: first, AssignedAgent: &agent})
	s.commitAndApply(second, taskview.TaskUpdatedEvent, taskview.TaskUpdated{TaskID: second, Title: &title})
	s.commitAndApply(first, taskview.TaskCompletedEvent, taskview.TaskCompleted{
		TaskID: first, CompletionResult: map[string]any{"ok": true},
	})

	incrementalFirst, err := s.repo.GetByID(ctx, first)
	s.Require().NoError(err)
	incrementalSecond, err := s.repo.GetByID(ctx, second)
	s.Require().NoError(err)

	s.Require().NoError(s.manager.RebuildAll(ctx))

	rebuiltFirst, err := s.repo.GetByID(ctx, first)
	s.Require().NoError(err)
	rebuiltSecond, err := s.repo.GetByID(ctx, second)
	s.Require().NoError(err)

	s.Equal(incrementalFirst, rebuiltFirst, "rebuild must reproduce the incrementally built row")
	s.Equal(incrementalSecond, rebuiltSecond, "rebuild must reproduce the incrementally built row")
}

func (s *TaskProjectionSuite) TestRebuild_RepairsTamperedReadModel() {
	ctx := context.Background()
	taskID := uuid.New()

	s.commitAndApply(taskID, taskview.TaskCreatedEvent, taskview.TaskCreated{TaskID: taskID, Title: "Truth"})

	// Corrupt the derived row out of band, then prove history wins.
	_, err := s.Pool.Exec(ctx, `UPDATE task_views SET title = 'Drifted' WHERE id = $1`, taskID)
	s.Require().NoError(err)

	s.Require().NoError(s.projection.Rebuild(ctx, s.store))

	view, err := s.repo.GetByID(ctx, taskID)
	s.Require().NoError(err)
	s.Equal("Truth", view.Title)
}

func (s *TaskProjectionSuite) TestListQueries() {
	ctx := context.Background()
	taskID := uuid.New()

	draft, err := eventsrc.Draft(taskview.TaskCreatedEvent, taskview.TaskCreated{TaskID: taskID, Title: "T"}, nil)
	s.Require().NoError(err)
	persisted, err := s.store.Append(ctx, taskview.StreamID(taskID), []eventsrc.NewEvent{draft},
		eventsrc.AnyVersion, eventsrc.WithTenant("acme"))
	s.Require().NoError(err)
	s.Require().NoError(s.manager.ApplyEvent(ctx, persisted[0]))

	byStatus, err := s.repo.ListByStatus(ctx, taskview.StatusPending, 10)
	s.Require().NoError(err)
	s.Require().Len(byStatus, 1)
	s.Equal(taskID, byStatus[0].ID)

	byTenant, err := s.repo.ListByTenant(ctx, "acme", 10)
	s.Require().NoError(err)
	s.Require().Len(byTenant, 1)
	s.Equal("acme", byTenant[0].Tenant)
}
