package projection

import (
	"context"

	"github.com/0m3kk/taskstream/eventsrc"
)

// Projection derives and maintains a queryable read model from the event log.
// Implementations own their materialized table exclusively; no other
// component writes to it.
type Projection interface {
	// Name identifies the projection in logs.
	Name() string

	// Apply incrementally folds one committed event into the read model.
	// It must be a pure function of the current row and the event, and it
	// must treat events of unrecognized types as a no-op so that new event
	// types can be introduced before every projection is updated.
	Apply(ctx context.Context, evt eventsrc.Event) error

	// Rebuild clears the projection's entire read model and replays the
	// relevant history from the store in global order, producing a state
	// identical to what incremental Apply calls would have produced from
	// the beginning.
	Rebuild(ctx context.Context, store eventsrc.Store) error
}

// TransactionalHandler defines a function that executes business logic within a transaction.
type TransactionalHandler func(ctx context.Context) error

// Transactor defines an interface for an object that can execute a function within a transaction.
type Transactor interface {
	WithTransaction(ctx context.Context, fn TransactionalHandler) error
}
