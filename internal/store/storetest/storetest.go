// Package storetest holds the behavioral suite every store.Store backend
// must pass
package storetest

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lgmbx/DataProcessingOrchestrator/internal/store"
	"github.com/lgmbx/DataProcessingOrchestrator/pkg/api"
)

// Factory builds a fresh, empty store for a single sub-test
type Factory func(t *testing.T) store.Store

// Run executes the full store suite against the backend built by newStore
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(*testing.T, store.Store)
	}{
		{"CreateAndLoad", testCreateAndLoad},
		{"CreateDuplicate", testCreateDuplicate},
		{"CreateInvalid", testCreateInvalid},
		{"LoadNotFound", testLoadNotFound},
		{"LoadReturnsCopy", testLoadReturnsCopy},
		{"CommitAdvances", testCommitAdvances},
		{"CommitStaleCursor", testCommitStaleCursor},
		{"CommitNotFound", testCommitNotFound},
		{"CommitBackwards", testCommitBackwards},
		{"TerminalImmutable", testTerminalImmutable},
		{"RacingCommits", testRacingCommits},
		{"ListByStatus", testListByStatus},
		{"Delete", testDelete},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := newStore(t)
			defer func() { _ = s.Close() }()
			tc.fn(t, s)
		})
	}
}

// NewInstance builds a Running instance at cursor zero
func NewInstance(id api.InstanceID) *api.Instance {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &api.Instance{
		ID:        id,
		Workflow:  "order",
		Status:    api.StatusRunning,
		Input:     json.RawMessage(`{"productName":"Widget"}`),
		Payload:   json.RawMessage(`{"step":0}`),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func advance(inst *api.Instance, payload string) *api.Instance {
	next := inst.Clone()
	next.Cursor++
	next.Payload = json.RawMessage(payload)
	return next
}

func testCreateAndLoad(t *testing.T, s store.Store) {
	ctx := context.Background()
	inst := NewInstance("inst-1")
	require.NoError(t, s.Create(ctx, inst))

	got, err := s.Load(ctx, "inst-1")
	require.NoError(t, err)
	assert.Equal(t, inst.ID, got.ID)
	assert.Equal(t, inst.Workflow, got.Workflow)
	assert.Equal(t, api.StatusRunning, got.Status)
	assert.Equal(t, 0, got.Cursor)
	assert.JSONEq(t, string(inst.Payload), string(got.Payload))
	assert.JSONEq(t, string(inst.Input), string(got.Input))
	assert.True(t, inst.CreatedAt.Equal(got.CreatedAt))
}

func testCreateDuplicate(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, NewInstance("inst-1")))

	err := s.Create(ctx, NewInstance("inst-1"))
	assert.ErrorIs(t, err, store.ErrInstanceExists)
}

func testCreateInvalid(t *testing.T, s store.Store) {
	ctx := context.Background()
	inst := NewInstance("")
	assert.ErrorIs(t, s.Create(ctx, inst), store.ErrInvalidInstance)
}

func testLoadNotFound(t *testing.T, s store.Store) {
	_, err := s.Load(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrInstanceNotFound)
}

func testLoadReturnsCopy(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, NewInstance("inst-1")))

	got, err := s.Load(ctx, "inst-1")
	require.NoError(t, err)
	got.Cursor = 4
	got.Payload = json.RawMessage(`{"tampered":true}`)

	again, err := s.Load(ctx, "inst-1")
	require.NoError(t, err)
	assert.Equal(t, 0, again.Cursor)
	assert.JSONEq(t, `{"step":0}`, string(again.Payload))
}

func testCommitAdvances(t *testing.T, s store.Store) {
	ctx := context.Background()
	inst := NewInstance("inst-1")
	require.NoError(t, s.Create(ctx, inst))

	next := advance(inst, `{"step":1}`)
	require.NoError(t, s.Commit(ctx, 0, next))

	done := advance(next, `{"step":2}`)
	done.Status = api.StatusCompleted
	require.NoError(t, s.Commit(ctx, 1, done))

	got, err := s.Load(ctx, "inst-1")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Cursor)
	assert.Equal(t, api.StatusCompleted, got.Status)
	assert.JSONEq(t, `{"step":2}`, string(got.Payload))
}

func testCommitStaleCursor(t *testing.T, s store.Store) {
	ctx := context.Background()
	inst := NewInstance("inst-1")
	require.NoError(t, s.Create(ctx, inst))
	require.NoError(t, s.Commit(ctx, 0, advance(inst, `{"step":1}`)))

	err := s.Commit(ctx, 0, advance(inst, `{"stale":true}`))
	assert.ErrorIs(t, err, store.ErrConcurrentModification)

	got, err := s.Load(ctx, "inst-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"step":1}`, string(got.Payload))
}

func testCommitNotFound(t *testing.T, s store.Store) {
	err := s.Commit(context.Background(), 0, NewInstance("missing"))
	assert.ErrorIs(t, err, store.ErrInstanceNotFound)
}

func testCommitBackwards(t *testing.T, s store.Store) {
	ctx := context.Background()
	inst := NewInstance("inst-1")
	require.NoError(t, s.Create(ctx, inst))
	next := advance(inst, `{"step":1}`)
	require.NoError(t, s.Commit(ctx, 0, next))

	back := next.Clone()
	back.Cursor = 0
	assert.ErrorIs(t, s.Commit(ctx, 1, back), store.ErrInvalidCommit)
}

func testTerminalImmutable(t *testing.T, s store.Store) {
	ctx := context.Background()
	inst := NewInstance("inst-1")
	require.NoError(t, s.Create(ctx, inst))

	failed := inst.Clone()
	failed.Status = api.StatusFailed
	failed.FailureReason = api.ReasonCancelled
	require.NoError(t, s.Commit(ctx, 0, failed))

	err := s.Commit(ctx, 0, advance(inst, `{"step":1}`))
	assert.ErrorIs(t, err, store.ErrConcurrentModification)

	got, err := s.Load(ctx, "inst-1")
	require.NoError(t, err)
	assert.Equal(t, api.StatusFailed, got.Status)
	assert.Equal(t, api.ReasonCancelled, got.FailureReason)
	assert.Equal(t, 0, got.Cursor)
}

func testRacingCommits(t *testing.T, s store.Store) {
	ctx := context.Background()
	inst := NewInstance("inst-1")
	require.NoError(t, s.Create(ctx, inst))

	const racers = 8
	var wg sync.WaitGroup
	errs := make([]error, racers)
	start := make(chan struct{})
	for i := range racers {
		wg.Go(func() {
			<-start
			errs[i] = s.Commit(ctx, 0, advance(inst, `{"step":1}`))
		})
	}
	close(start)
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, store.ErrConcurrentModification)
	}
	assert.Equal(t, 1, succeeded)

	got, err := s.Load(ctx, "inst-1")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Cursor)
}

func testListByStatus(t *testing.T, s store.Store) {
	ctx := context.Background()
	for _, id := range []api.InstanceID{"inst-b", "inst-a", "inst-c"} {
		require.NoError(t, s.Create(ctx, NewInstance(id)))
	}

	done := NewInstance("inst-b")
	done.Status = api.StatusCompleted
	require.NoError(t, s.Commit(ctx, 0, done))

	running, err := s.List(ctx, api.StatusRunning)
	require.NoError(t, err)
	assert.Equal(t, []api.InstanceID{"inst-a", "inst-c"}, running)

	completed, err := s.List(ctx, api.StatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, []api.InstanceID{"inst-b"}, completed)

	failed, err := s.List(ctx, api.StatusFailed)
	require.NoError(t, err)
	assert.Empty(t, failed)
}

func testDelete(t *testing.T, s store.Store) {
	ctx := context.Background()
	inst := NewInstance("inst-1")
	require.NoError(t, s.Create(ctx, inst))

	assert.ErrorIs(t, s.Delete(ctx, "inst-1"), store.ErrInstanceRunning)
	assert.ErrorIs(t, s.Delete(ctx, "missing"), store.ErrInstanceNotFound)

	done := inst.Clone()
	done.Status = api.StatusCompleted
	require.NoError(t, s.Commit(ctx, 0, done))
	require.NoError(t, s.Delete(ctx, "inst-1"))

	_, err := s.Load(ctx, "inst-1")
	assert.ErrorIs(t, err, store.ErrInstanceNotFound)

	completed, err := s.List(ctx, api.StatusCompleted)
	require.NoError(t, err)
	assert.Empty(t, completed)
}
