package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/lgmbx/DataProcessingOrchestrator/pkg/api"
)

// Store persists workflow instances. Commit is the only way to change an
// existing instance and is guarded by the expected cursor, so two workers
// advancing the same instance cannot both succeed
type Store interface {
	// Create inserts a new instance
	Create(ctx context.Context, inst *api.Instance) error

	// Load returns a copy of the stored instance
	Load(ctx context.Context, id api.InstanceID) (*api.Instance, error)

	// Commit atomically replaces the stored instance if its cursor still
	// equals expect and it is still Running
	Commit(ctx context.Context, expect int, inst *api.Instance) error

	// List returns the ids of instances with the given status, oldest first
	List(ctx context.Context, status api.Status) ([]api.InstanceID, error)

	// Delete removes a terminal instance
	Delete(ctx context.Context, id api.InstanceID) error

	// Close releases any resources held by the store
	Close() error
}

var (
	ErrInstanceExists         = errors.New("instance exists")
	ErrInstanceNotFound       = errors.New("instance not found")
	ErrConcurrentModification = errors.New("concurrent modification")
	ErrInvalidCommit          = errors.New("invalid commit")
	ErrInvalidInstance        = errors.New("invalid instance")
	ErrInstanceRunning        = errors.New("instance is running")
)

// CheckCreate verifies that an instance is fit to be inserted
func CheckCreate(inst *api.Instance) error {
	if inst == nil || inst.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidInstance)
	}
	if !inst.Status.IsValid() {
		return fmt.Errorf("%w: status %q", ErrInvalidInstance, inst.Status)
	}
	if inst.Cursor != 0 {
		return fmt.Errorf("%w: initial cursor %d", ErrInvalidInstance,
			inst.Cursor)
	}
	return nil
}

// CheckCommit applies the optimistic concurrency rules shared by every
// backend: the stored instance must still be Running at the expected
// cursor, and the replacement may not move the cursor backwards
func CheckCommit(
	stored api.Status, cursor, expect int, next *api.Instance,
) error {
	if next == nil || !next.Status.IsValid() {
		return fmt.Errorf("%w: invalid status", ErrInvalidCommit)
	}
	if next.Cursor < expect {
		return fmt.Errorf("%w: cursor %d behind expected %d",
			ErrInvalidCommit, next.Cursor, expect)
	}
	if stored != api.StatusRunning {
		return fmt.Errorf("%w: %s is %s",
			ErrConcurrentModification, next.ID, stored)
	}
	if cursor != expect {
		return fmt.Errorf("%w: %s cursor %d, expected %d",
			ErrConcurrentModification, next.ID, cursor, expect)
	}
	return nil
}
