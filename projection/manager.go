package projection

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/0m3kk/taskstream/eventsrc"
)

// Manager fans committed events out to a fixed, ordered set of projections
// and can trigger a full rebuild of all of them. The set is owned by the
// Manager value; there is no global registry.
type Manager struct {
	store       eventsrc.Store
	projections []Projection
}

// NewManager creates a manager over the given store.
func NewManager(store eventsrc.Store) *Manager {
	return &Manager{store: store}
}

// Register adds a projection to the managed set. Registration order is the
// fan-out order for ApplyEvent and RebuildAll. Register is not safe for
// concurrent use with ApplyEvent; wire the full set up before serving.
func (m *Manager) Register(p Projection) {
	m.projections = append(m.projections, p)
}

// ApplyEvent calls Apply on every registered projection in registration
// order. The first failure aborts the fan-out and propagates; projections
// later in the order will not have seen the event.
func (m *Manager) ApplyEvent(ctx context.Context, evt eventsrc.Event) error {
	for _, p := range m.projections {
		if err := p.Apply(ctx, evt); err != nil {
			return fmt.Errorf("projection %s failed to apply event %d: %w", p.Name(), evt.ID, err)
		}
	}
	return nil
}

// RebuildAll rebuilds every registered projection from the full event
// history, in registration order.
func (m *Manager) RebuildAll(ctx context.Context) error {
	for _, p := range m.projections {
		slog.InfoContext(ctx, "Rebuilding projection", "projection", p.Name())
		if err := p.Rebuild(ctx, m.store); err != nil {
			return fmt.Errorf("projection %s failed to rebuild: %w", p.Name(), err)
		}
		slog.InfoContext(ctx, "Projection rebuilt", "projection", p.Name())
	}
	return nil
}
