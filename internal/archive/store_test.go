package archive_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocloud.dev/blob/memblob"

	"github.com/lgmbx/DataProcessingOrchestrator/internal/archive"
	"github.com/lgmbx/DataProcessingOrchestrator/internal/store"
	"github.com/lgmbx/DataProcessingOrchestrator/internal/store/memory"
	"github.com/lgmbx/DataProcessingOrchestrator/internal/store/storetest"
	"github.com/lgmbx/DataProcessingOrchestrator/pkg/api"
)

var sweepNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newArchiveStore(t *testing.T) (*archive.Store, *memory.Store) {
	t.Helper()
	primary := memory.New()
	a := archive.NewArchiver(memblob.OpenBucket(nil), "instances/")
	s := archive.NewStore(primary, a, archive.Options{
		MaxAge:    time.Hour,
		BatchSize: 10,
	}).WithClock(func() time.Time { return sweepNow })
	t.Cleanup(func() { _ = s.Close() })
	return s, primary
}

func TestArchiveStoreSuite(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		s, _ := newArchiveStore(t)
		return s
	})
}

// createTerminal inserts a Running instance and commits it to Completed
// with the given last update time
func createTerminal(
	t *testing.T, s store.Store, id api.InstanceID, updated time.Time,
) {
	t.Helper()
	ctx := context.Background()
	inst := storetest.NewInstance(id)
	require.NoError(t, s.Create(ctx, inst))
	done := inst.Clone()
	done.Status = api.StatusCompleted
	done.Cursor = 1
	done.UpdatedAt = updated
	require.NoError(t, s.Commit(ctx, 0, done))
}

func TestSweepMovesOldTerminalInstances(t *testing.T) {
	ctx := context.Background()
	s, primary := newArchiveStore(t)

	createTerminal(t, s, "old", sweepNow.Add(-2*time.Hour))
	createTerminal(t, s, "fresh", sweepNow.Add(-time.Minute))
	require.NoError(t, s.Create(ctx, storetest.NewInstance("running")))

	n, err := s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = primary.Load(ctx, "old")
	assert.ErrorIs(t, err, store.ErrInstanceNotFound)

	archived, err := s.Load(ctx, "old")
	require.NoError(t, err)
	assert.Equal(t, api.StatusCompleted, archived.Status)
	assert.Equal(t, 1, archived.Cursor)

	_, err = primary.Load(ctx, "fresh")
	assert.NoError(t, err)
	_, err = primary.Load(ctx, "running")
	assert.NoError(t, err)

	ids, err := s.List(ctx, api.StatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, []api.InstanceID{"fresh"}, ids)
}

func TestSweepBatchSize(t *testing.T) {
	ctx := context.Background()
	primary := memory.New()
	a := archive.NewArchiver(memblob.OpenBucket(nil), "")
	s := archive.NewStore(primary, a, archive.Options{
		MaxAge:    time.Hour,
		BatchSize: 2,
	}).WithClock(func() time.Time { return sweepNow })
	defer func() { _ = s.Close() }()

	for _, id := range []api.InstanceID{"a", "b", "c"} {
		createTerminal(t, s, id, sweepNow.Add(-2*time.Hour))
	}

	n, err := s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestArchivedInstanceIsImmutable(t *testing.T) {
	ctx := context.Background()
	s, _ := newArchiveStore(t)
	createTerminal(t, s, "old", sweepNow.Add(-2*time.Hour))
	_, err := s.Sweep(ctx)
	require.NoError(t, err)

	inst, err := s.Load(ctx, "old")
	require.NoError(t, err)
	next := inst.Clone()
	next.Cursor++
	err = s.Commit(ctx, inst.Cursor, next)
	assert.ErrorIs(t, err, store.ErrConcurrentModification)

	err = s.Create(ctx, storetest.NewInstance("old"))
	assert.ErrorIs(t, err, store.ErrInstanceExists)
}

func TestArchiveStoreDelete(t *testing.T) {
	ctx := context.Background()
	s, _ := newArchiveStore(t)
	createTerminal(t, s, "old", sweepNow.Add(-2*time.Hour))
	_, err := s.Sweep(ctx)
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, "old"))
	_, err = s.Load(ctx, "old")
	assert.ErrorIs(t, err, store.ErrInstanceNotFound)
}
