package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"

	"github.com/0m3kk/taskstream/eventsrc"
	natsbroker "github.com/0m3kk/taskstream/infra/nats"
	"github.com/0m3kk/taskstream/infra/postgres"
	"github.com/0m3kk/taskstream/projection"
	"github.com/0m3kk/taskstream/pubsub"
	"github.com/0m3kk/taskstream/relay"
	"github.com/0m3kk/taskstream/taskview"
)

type config struct {
	DSN           string        `env:"APP_DSN,required"`
	NATSURL       string        `env:"APP_NATS_URL"`
	RelayInterval time.Duration `env:"APP_RELAY_INTERVAL" envDefault:"2s"`
	Tenant        string        `env:"APP_TENANT" envDefault:"acme"`
}

func main() {
	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Create a context that we can cancel on shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		slog.Error("Failed to parse configuration", "error", err)
		os.Exit(1)
	}

	// --- Dependency Injection ---

	db, err := postgres.NewDB(ctx, cfg.DSN)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("Database connection established")

	if err := db.EnsureSchema(ctx); err != nil {
		slog.Error("Failed to apply schema", "error", err)
		os.Exit(1)
	}

	store := postgres.NewEventStore(db)

	// Query Side
	taskRepo := taskview.NewRepository(db)
	manager := projection.NewManager(store)
	manager.Register(taskview.NewProjection(taskRepo, db))

	// Live notification paths. The in-process publisher is wired directly;
	// the NATS relay only runs when a broker URL is configured.
	publisher := pubsub.NewPublisher()
	publisher.Subscribe(taskview.TaskCompletedEvent, func(ctx context.Context, evt eventsrc.Event) error {
		slog.InfoContext(ctx, "Live notification: task completed", "streamID", evt.StreamID)
		return nil
	})

	if cfg.NATSURL != "" {
		broker, err := natsbroker.NewBroker(cfg.NATSURL)
		if err != nil {
			slog.Error("Failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer broker.Close()
		slog.Info("NATS connection established")

		checkpoints := postgres.NewCheckpointStore(db)
		mapper := func(eventType string) string { return "tasks" }
		r := relay.NewRelay("task-relay", store, checkpoints, broker, mapper, 100, cfg.RelayInterval)
		r.Start(ctx)
		defer r.Stop()
	}

	// --- Simulate Work (Full Event-Sourcing Loop) ---

	taskID := uuid.New()
	streamID := taskview.StreamID(taskID)

	// 1. Create the task. The stream does not exist yet, so there is
	// nothing to check against.
	created, err := eventsrc.Draft(taskview.TaskCreatedEvent, taskview.TaskCreated{
		TaskID:   taskID,
		Title:    "Index the knowledge base",
		Priority: "high",
		Tags:     []string{"infra", "batch"},
	}, nil)
	if err != nil {
		slog.Error("Failed to draft event", "error", err)
		os.Exit(1)
	}
	persisted, err := store.Append(ctx, streamID, []eventsrc.NewEvent{created}, eventsrc.AnyVersion,
		eventsrc.WithTenant(cfg.Tenant))
	if err != nil {
		slog.Error("Failed to append TaskCreated", "error", err)
		os.Exit(1)
	}
	project(ctx, manager, publisher, persisted)

	// 2. Update the task with the version we just observed.
	version, err := store.StreamVersion(ctx, streamID)
	if err != nil {
		slog.Error("Failed to read stream version", "error", err)
		os.Exit(1)
	}
	title := "Index the knowledge base (phase 1)"
	updated, _ := eventsrc.Draft(taskview.TaskUpdatedEvent, taskview.TaskUpdated{TaskID: taskID, Title: &title}, nil)
	persisted, err = store.Append(ctx, streamID, []eventsrc.NewEvent{updated}, version,
		eventsrc.WithTenant(cfg.Tenant))
	if err != nil {
		slog.Error("Failed to append TaskUpdated", "error", err)
		os.Exit(1)
	}
	project(ctx, manager, publisher, persisted)

	// 3. A stale writer retries the same expected version and loses.
	staleTitle := "Stale rename"
	stale, _ := eventsrc.Draft(taskview.TaskUpdatedEvent, taskview.TaskUpdated{TaskID: taskID, Title: &staleTitle}, nil)
	_, err = store.Append(ctx, streamID, []eventsrc.NewEvent{stale}, version,
		eventsrc.WithTenant(cfg.Tenant))
	var conflict eventsrc.ErrConcurrency
	if errors.As(err, &conflict) {
		slog.Info("Stale append rejected as expected",
			"expected", conflict.Expected, "actual", conflict.Actual)
	}

	// 4. Complete the task with a compare-and-swap retry loop.
	err = eventsrc.RetryConflict(ctx, func(ctx context.Context) error {
		current, err := store.StreamVersion(ctx, streamID)
		if err != nil {
			return err
		}
		completed, err := eventsrc.Draft(taskview.TaskCompletedEvent, taskview.TaskCompleted{
			TaskID:           taskID,
			CompletionResult: map[string]any{"documents": 1287, "duration_ms": 5421},
		}, nil)
		if err != nil {
			return err
		}
		persisted, err = store.Append(ctx, streamID, []eventsrc.NewEvent{completed}, current,
			eventsrc.WithTenant(cfg.Tenant))
		return err
	})
	if err != nil {
		slog.Error("Failed to complete task", "error", err)
		os.Exit(1)
	}
	project(ctx, manager, publisher, persisted)

	// 5. Prove the read model is derivable from history alone.
	if err := manager.RebuildAll(ctx); err != nil {
		slog.Error("Failed to rebuild projections", "error", err)
		os.Exit(1)
	}
	view, err := taskRepo.GetByID(ctx, taskID)
	if err != nil {
		slog.Error("Failed to read task view", "error", err)
		os.Exit(1)
	}
	slog.Info("Task view after rebuild", "title", view.Title, "status", view.Status)

	<-ctx.Done()
}

// project forwards each persisted event to the projections and the live
// publisher, as the API layer would after a successful append.
func project(ctx context.Context, manager *projection.Manager, publisher *pubsub.Publisher, events []eventsrc.Event) {
	for _, evt := range events {
		if err := manager.ApplyEvent(ctx, evt); err != nil {
			slog.ErrorContext(ctx, "Failed to apply event to projections", "eventID", evt.ID, "error", err)
			os.Exit(1)
		}
		publisher.Publish(ctx, evt)
	}
}
