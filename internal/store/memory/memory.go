package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/lgmbx/DataProcessingOrchestrator/internal/store"
	"github.com/lgmbx/DataProcessingOrchestrator/pkg/api"
)

// Store is a process-local store.Store. It does not survive a restart and
// is meant for tests and single-process development
type Store struct {
	mu        sync.Mutex
	instances map[api.InstanceID]*api.Instance
}

var _ store.Store = (*Store)(nil)

// New creates an empty in-memory store
func New() *Store {
	return &Store{
		instances: map[api.InstanceID]*api.Instance{},
	}
}

func (s *Store) Create(_ context.Context, inst *api.Instance) error {
	if err := store.CheckCreate(inst); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.instances[inst.ID]; ok {
		return fmt.Errorf("%w: %s", store.ErrInstanceExists, inst.ID)
	}
	s.instances[inst.ID] = inst.Clone()
	return nil
}

func (s *Store) Load(
	_ context.Context, id api.InstanceID,
) (*api.Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inst, ok := s.instances[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrInstanceNotFound, id)
	}
	return inst.Clone(), nil
}

func (s *Store) Commit(
	_ context.Context, expect int, inst *api.Instance,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if inst == nil {
		return store.ErrInvalidCommit
	}
	stored, ok := s.instances[inst.ID]
	if !ok {
		return fmt.Errorf("%w: %s", store.ErrInstanceNotFound, inst.ID)
	}
	err := store.CheckCommit(stored.Status, stored.Cursor, expect, inst)
	if err != nil {
		return err
	}
	s.instances[inst.ID] = inst.Clone()
	return nil
}

func (s *Store) List(
	_ context.Context, status api.Status,
) ([]api.InstanceID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res []api.InstanceID
	for id, inst := range s.instances {
		if inst.Status == status {
			res = append(res, id)
		}
	}
	slices.Sort(res)
	return res, nil
}

func (s *Store) Delete(_ context.Context, id api.InstanceID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inst, ok := s.instances[id]
	if !ok {
		return fmt.Errorf("%w: %s", store.ErrInstanceNotFound, id)
	}
	if !inst.Status.IsTerminal() {
		return fmt.Errorf("%w: %s", store.ErrInstanceRunning, id)
	}
	delete(s.instances, id)
	return nil
}

func (s *Store) Close() error {
	return nil
}
