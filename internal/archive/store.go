package archive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lgmbx/DataProcessingOrchestrator/internal/store"
	"github.com/lgmbx/DataProcessingOrchestrator/pkg/api"
	"github.com/lgmbx/DataProcessingOrchestrator/pkg/log"
)

type (
	// Store is a store.Store whose terminal instances are moved to an
	// Archiver once they are old enough. Archived instances remain loadable
	// but are no longer listed
	Store struct {
		store.Store
		archiver *Archiver
		clock    func() time.Time
		opts     Options
	}

	// Options control which terminal instances are swept into the archive
	Options struct {
		MaxAge    time.Duration
		BatchSize int
	}

	// Hibernating is implemented by primary stores that move terminal
	// instances into the archive themselves, such as the journal store
	Hibernating interface {
		Hibernate(ctx context.Context, id api.InstanceID) error
	}
)

var _ store.Store = (*Store)(nil)

// NewStore wraps primary so that Load falls back to the archive
func NewStore(primary store.Store, a *Archiver, opts Options) *Store {
	return &Store{
		Store:    primary,
		archiver: a,
		clock:    time.Now,
		opts:     opts,
	}
}

// WithClock replaces the clock used to judge instance age
func (s *Store) WithClock(clock func() time.Time) *Store {
	s.clock = clock
	return s
}

// Create inserts an instance unless its id is already archived
func (s *Store) Create(ctx context.Context, inst *api.Instance) error {
	if inst != nil && inst.ID != "" {
		ok, err := s.archiver.Exists(ctx, inst.ID)
		if err != nil {
			return err
		}
		if ok {
			return fmt.Errorf("%w: %s", store.ErrInstanceExists, inst.ID)
		}
	}
	return s.Store.Create(ctx, inst)
}

// Load returns the instance from the primary store, or from the archive if
// it has been swept
func (s *Store) Load(
	ctx context.Context, id api.InstanceID,
) (*api.Instance, error) {
	inst, err := s.Store.Load(ctx, id)
	if !errors.Is(err, store.ErrInstanceNotFound) {
		return inst, err
	}
	return s.archiver.Get(ctx, id)
}

// Commit replaces a live instance. Archived instances are terminal, so a
// commit against one is a concurrent modification
func (s *Store) Commit(
	ctx context.Context, expect int, inst *api.Instance,
) error {
	err := s.Store.Commit(ctx, expect, inst)
	if !errors.Is(err, store.ErrInstanceNotFound) {
		return err
	}
	ok, aerr := s.archiver.Exists(ctx, inst.ID)
	if aerr != nil || !ok {
		return err
	}
	return fmt.Errorf("%w: %s is archived",
		store.ErrConcurrentModification, inst.ID)
}

// Delete removes the instance from both the primary store and the archive
func (s *Store) Delete(ctx context.Context, id api.InstanceID) error {
	err := s.Store.Delete(ctx, id)
	if errors.Is(err, store.ErrInstanceNotFound) {
		ok, aerr := s.archiver.Exists(ctx, id)
		if aerr != nil {
			return aerr
		}
		if !ok {
			return err
		}
	} else if err != nil {
		return err
	}
	return s.archiver.Delete(ctx, id)
}

// Close closes the archive and the primary store
func (s *Store) Close() error {
	return errors.Join(s.archiver.Close(), s.Store.Close())
}

// Sweep archives terminal instances last updated more than MaxAge ago and
// removes them from the primary store. It returns how many were moved
func (s *Store) Sweep(ctx context.Context) (int, error) {
	cutoff := s.clock().Add(-s.opts.MaxAge)
	moved := 0
	for _, status := range []api.Status{
		api.StatusCompleted, api.StatusFailed,
	} {
		ids, err := s.Store.List(ctx, status)
		if err != nil {
			return moved, err
		}
		for _, id := range ids {
			if s.opts.BatchSize > 0 && moved >= s.opts.BatchSize {
				return moved, nil
			}
			ok, err := s.sweepOne(ctx, id, cutoff)
			if err != nil {
				return moved, err
			}
			if ok {
				moved++
			}
		}
	}
	return moved, nil
}

// Run sweeps every interval until ctx ends
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.Sweep(ctx)
			if err != nil && ctx.Err() == nil {
				slog.Error("Archive sweep failed",
					log.Error(err))
			}
			if n > 0 {
				slog.Info("Archived instances",
					slog.Int("count", n))
			}
		}
	}
}

func (s *Store) sweepOne(
	ctx context.Context, id api.InstanceID, cutoff time.Time,
) (bool, error) {
	inst, err := s.Store.Load(ctx, id)
	if errors.Is(err, store.ErrInstanceNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !inst.Status.IsTerminal() || inst.UpdatedAt.After(cutoff) {
		return false, nil
	}
	if err := s.move(ctx, inst); err != nil {
		return false, err
	}
	slog.Debug("Instance archived",
		log.InstanceID(id),
		log.Status(inst.Status))
	return true, nil
}

func (s *Store) move(ctx context.Context, inst *api.Instance) error {
	if h, ok := s.Store.(Hibernating); ok {
		return h.Hibernate(ctx, inst.ID)
	}
	if err := s.archiver.Put(ctx, inst); err != nil {
		return err
	}
	err := s.Store.Delete(ctx, inst.ID)
	if err != nil && !errors.Is(err, store.ErrInstanceNotFound) {
		return err
	}
	return nil
}
