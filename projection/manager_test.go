package projection_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0m3kk/taskstream/eventsrc"
	"github.com/0m3kk/taskstream/projection"
	"github.com/0m3kk/taskstream/testutil"
)

// recordingProjection records the order in which it sees calls, shared
// across instances through a common journal.
type recordingProjection struct {
	name     string
	journal  *[]string
	applyErr error
}

func (p *recordingProjection) Name() string { return p.name }

func (p *recordingProjection) Apply(_ context.Context, evt eventsrc.Event) error {
	*p.journal = append(*p.journal, p.name+":apply")
	return p.applyErr
}

func (p *recordingProjection) Rebuild(_ context.Context, _ eventsrc.Store) error {
	*p.journal = append(*p.journal, p.name+":rebuild")
	return nil
}

func TestManager_AppliesInRegistrationOrder(t *testing.T) {
	var journal []string
	manager := projection.NewManager(testutil.NewMemStore())
	manager.Register(&recordingProjection{name: "first", journal: &journal})
	manager.Register(&recordingProjection{name: "second", journal: &journal})

	err := manager.ApplyEvent(context.Background(), eventsrc.Event{ID: 1, Type: "TaskCreated"})

	require.NoError(t, err)
	assert.Equal(t, []string{"first:apply", "second:apply"}, journal)
}

func TestManager_FirstApplyFailureAbortsFanOut(t *testing.T) {
	var journal []string
	boom := errors.New("boom")
	manager := projection.NewManager(testutil.NewMemStore())
	manager.Register(&recordingProjection{name: "first", journal: &journal, applyErr: boom})
	manager.Register(&recordingProjection{name: "second", journal: &journal})

	err := manager.ApplyEvent(context.Background(), eventsrc.Event{ID: 1, Type: "TaskCreated"})

	require.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"first:apply"}, journal,
		"projections after the failed one must not see the event")
}

func TestManager_RebuildAllRunsInRegistrationOrder(t *testing.T) {
	var journal []string
	manager := projection.NewManager(testutil.NewMemStore())
	manager.Register(&recordingProjection{name: "first", journal: &journal})
	manager.Register(&recordingProjection{name: "second", journal: &journal})

	err := manager.RebuildAll(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"first:rebuild", "second:rebuild"}, journal)
}
