// Package journal is an event-sourced store.Store built on timebox. Every
// instance is an aggregate whose log records its creation, each committed
// step, and its terminal transition
package journal

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/kode4food/timebox"

	"github.com/lgmbx/DataProcessingOrchestrator/internal/store"
	"github.com/lgmbx/DataProcessingOrchestrator/internal/store/redis"
	"github.com/lgmbx/DataProcessingOrchestrator/pkg/api"
)

type (
	// Config holds the settings of a journal store. A nil Hibernator
	// disables Hibernate
	Config struct {
		Hibernator timebox.Hibernator
		Redis      redis.Config
		CacheSize  int
	}

	// Store keeps instances as timebox aggregates. Commits run through a
	// timebox Executor, so they are appended only if no other event landed
	// on the aggregate since its state was read. The executor caches
	// projections in process, so a journal prefix belongs to one
	// orchestrator process at a time
	Store struct {
		timebox    *timebox.Timebox
		store      *timebox.Store
		exec       *timebox.Executor[*api.Instance]
		hibernator timebox.Hibernator
	}

	instanceCommand = timebox.Command[*api.Instance]
	instanceAgg     = timebox.Aggregator[*api.Instance]
)

const instanceSegment = "instance"

var _ store.Store = (*Store)(nil)

var (
	ErrConnect      = errors.New("failed to connect to journal")
	ErrNotTerminal  = errors.New("only terminal instances can be hibernated")
	ErrNoHibernator = timebox.ErrNoHibernator
)

// New connects to the Redis server named in cfg and returns a journal
// store that owns its timebox
func New(cfg Config) (*Store, error) {
	tbCfg := timebox.DefaultConfig()
	// instance logs stay short, and a background snapshot save could
	// recreate the keys that Hibernate removed
	tbCfg.Workers = false
	if cfg.CacheSize > 0 {
		tbCfg.CacheSize = cfg.CacheSize
	}
	tb, err := timebox.NewTimebox(tbCfg)
	if err != nil {
		return nil, err
	}

	storeCfg := tbCfg.Store
	storeCfg.Addr = cfg.Redis.Addr
	storeCfg.Password = cfg.Redis.Password
	storeCfg.DB = cfg.Redis.DB
	storeCfg.Prefix = cfg.Redis.Prefix
	storeCfg.Hibernator = cfg.Hibernator

	st, err := tb.NewStore(storeCfg)
	if err != nil {
		_ = tb.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnect, err)
	}

	return &Store{
		timebox:    tb,
		store:      st,
		exec:       timebox.NewExecutor(st, NewInstanceState, Appliers),
		hibernator: cfg.Hibernator,
	}, nil
}

// Events returns the hub on which every appended event is published
func (s *Store) Events() timebox.EventHub {
	return s.timebox.GetHub()
}

func (s *Store) Create(ctx context.Context, inst *api.Instance) error {
	if err := store.CheckCreate(inst); err != nil {
		return err
	}
	if err := s.checkHibernated(ctx, inst.ID); err != nil {
		return err
	}

	data := inst.Clone()
	_, err := s.exec.Exec(ctx, instanceKey(inst.ID),
		func(st *api.Instance, ag *instanceAgg) error {
			if st.ID != "" {
				return fmt.Errorf("%w: %s", store.ErrInstanceExists, inst.ID)
			}
			return timebox.Raise(ag, EventInstanceCreated, data)
		},
	)
	return err
}

// Load projects the instance from its snapshot and remaining events. It
// reads through to the Hibernator once the instance has been hibernated
func (s *Store) Load(
	ctx context.Context, id api.InstanceID,
) (*api.Instance, error) {
	inst, err := s.project(ctx, instanceKey(id))
	if err != nil {
		return nil, err
	}
	if inst.ID == "" {
		return nil, fmt.Errorf("%w: %s", store.ErrInstanceNotFound, id)
	}
	return inst, nil
}

func (s *Store) Commit(
	ctx context.Context, expect int, inst *api.Instance,
) error {
	if inst == nil {
		return store.ErrInvalidCommit
	}

	next := Transition{
		UpdatedAt: inst.UpdatedAt,
		Payload:   inst.Payload,
		Reason:    inst.FailureReason,
		Cursor:    inst.Cursor,
	}
	_, err := s.exec.Exec(ctx, instanceKey(inst.ID),
		func(st *api.Instance, ag *instanceAgg) error {
			if st.ID == "" {
				return fmt.Errorf("%w: %s",
					store.ErrInstanceNotFound, inst.ID)
			}
			err := store.CheckCommit(st.Status, st.Cursor, expect, inst)
			if err != nil {
				return err
			}
			return timebox.Raise(ag, commitEvent(inst.Status), next)
		},
	)
	if errors.Is(err, timebox.ErrMaxRetriesExceeded) {
		return fmt.Errorf("%w: %s", store.ErrConcurrentModification, inst.ID)
	}
	return err
}

// List projects every live aggregate and keeps those in status. Hibernated
// instances are not listed
func (s *Store) List(
	ctx context.Context, status api.Status,
) ([]api.InstanceID, error) {
	ids, err := s.store.ListAggregates(ctx, instanceKey("*"))
	if err != nil {
		return nil, err
	}

	var res []api.InstanceID
	for _, id := range ids {
		if len(id) != 2 || id[0] != instanceSegment {
			continue
		}
		inst, err := s.project(ctx, id)
		if err != nil {
			return nil, err
		}
		if inst.ID != "" && inst.Status == status {
			res = append(res, inst.ID)
		}
	}
	slices.Sort(res)
	return res, nil
}

// Delete tombstones a terminal instance. A hibernated instance is removed
// from the Hibernator instead
func (s *Store) Delete(ctx context.Context, id api.InstanceID) error {
	inst, err := s.Load(ctx, id)
	if err != nil {
		return err
	}
	if !inst.Status.IsTerminal() {
		return fmt.Errorf("%w: %s", store.ErrInstanceRunning, id)
	}

	key := instanceKey(id)
	live, err := s.isLive(ctx, key)
	if err != nil {
		return err
	}
	if !live {
		return s.hibernator.Delete(ctx, key)
	}

	_, err = s.exec.Exec(ctx, key, s.deleteCommand(id))
	return err
}

// Hibernate moves a terminal instance's log out of Redis and into the
// Hibernator. It remains loadable but is no longer listed
func (s *Store) Hibernate(ctx context.Context, id api.InstanceID) error {
	if s.hibernator == nil {
		return ErrNoHibernator
	}
	inst, err := s.Load(ctx, id)
	if err != nil {
		return err
	}
	if !inst.Status.IsTerminal() {
		return fmt.Errorf("%w: %s is %s", ErrNotTerminal, id, inst.Status)
	}
	return s.store.Hibernate(ctx, instanceKey(id))
}

// Close stops the timebox and releases its Redis connection
func (s *Store) Close() error {
	return errors.Join(s.store.Close(), s.timebox.Close())
}

func (s *Store) deleteCommand(id api.InstanceID) instanceCommand {
	return func(st *api.Instance, ag *instanceAgg) error {
		if st.ID == "" {
			return fmt.Errorf("%w: %s", store.ErrInstanceNotFound, id)
		}
		if !st.Status.IsTerminal() {
			return fmt.Errorf("%w: %s", store.ErrInstanceRunning, id)
		}
		return timebox.Raise(ag, EventInstanceDeleted, Deleted{})
	}
}

func (s *Store) project(
	ctx context.Context, id timebox.AggregateID,
) (*api.Instance, error) {
	state := NewInstanceState()
	snap, err := s.store.GetSnapshot(ctx, id, &state)
	if err != nil {
		return nil, err
	}
	for _, ev := range snap.AdditionalEvents {
		if apply, ok := Appliers[ev.Type]; ok {
			state = apply(state, ev)
		}
	}
	return state, nil
}

func (s *Store) isLive(
	ctx context.Context, id timebox.AggregateID,
) (bool, error) {
	ids, err := s.store.ListAggregates(ctx, id)
	if err != nil {
		return false, err
	}
	return len(ids) > 0, nil
}

func (s *Store) checkHibernated(ctx context.Context, id api.InstanceID) error {
	if s.hibernator == nil {
		return nil
	}
	_, err := s.hibernator.Get(ctx, instanceKey(id))
	switch {
	case err == nil:
		return fmt.Errorf("%w: %s", store.ErrInstanceExists, id)
	case errors.Is(err, timebox.ErrHibernateNotFound):
		return nil
	default:
		return err
	}
}

func instanceKey(id api.InstanceID) timebox.AggregateID {
	return timebox.NewAggregateID(instanceSegment, timebox.ID(id))
}
