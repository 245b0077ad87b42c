package assert

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/lgmbx/DataProcessingOrchestrator/internal/config"
	"github.com/lgmbx/DataProcessingOrchestrator/pkg/api"
)

type (
	// Loader retrieves the persisted state of an instance
	Loader interface {
		GetInstance(
			ctx context.Context, id api.InstanceID,
		) (*api.Instance, error)
	}

	// Wrapper wraps testify assertions with orchestrator-specific helpers
	Wrapper struct {
		*testing.T
		*assert.Assertions
	}
)

const (
	// DefaultRetryInterval is the default polling interval for Eventually
	// checks
	DefaultRetryInterval = 10 * time.Millisecond

	// DefaultWaitTimeout bounds how long instance waits may take
	DefaultWaitTimeout = 5 * time.Second
)

// New creates a new test assertion wrapper
func New(t *testing.T) *Wrapper {
	return &Wrapper{
		T:          t,
		Assertions: assert.New(t),
	}
}

// InstanceStatus asserts the status of an instance
func (w *Wrapper) InstanceStatus(inst *api.Instance, expected api.Status) {
	w.Helper()
	if w.NotNil(inst) {
		w.Equal(expected, inst.Status)
	}
}

// ConfigValid asserts that a configuration passes validation
func (w *Wrapper) ConfigValid(cfg *config.Config) {
	w.Helper()
	w.NoError(cfg.Validate())
}

// ConfigInvalid asserts that a configuration fails validation with a
// message containing the given text
func (w *Wrapper) ConfigInvalid(cfg *config.Config, contains string) {
	w.Helper()
	err := cfg.Validate()
	w.Error(err)
	if err != nil && contains != "" {
		w.Contains(err.Error(), contains)
	}
}

// WaitForTerminal polls until the instance reaches a terminal status and
// returns its final state
func (w *Wrapper) WaitForTerminal(
	l Loader, id api.InstanceID,
) *api.Instance {
	w.Helper()
	return w.WaitForStatus(l, id, api.StatusCompleted, api.StatusFailed)
}

// WaitForStatus polls until the instance reaches one of the given statuses
// and returns its state at that point
func (w *Wrapper) WaitForStatus(
	l Loader, id api.InstanceID, statuses ...api.Status,
) *api.Instance {
	w.Helper()
	var res *api.Instance
	ok := w.Eventually(func() bool {
		inst, err := l.GetInstance(context.Background(), id)
		if err != nil {
			return false
		}
		for _, s := range statuses {
			if inst.Status == s {
				res = inst
				return true
			}
		}
		return false
	}, DefaultWaitTimeout, DefaultRetryInterval)
	if !ok {
		w.Fail("instance did not reach expected status",
			"instance %s, statuses %v", id, statuses)
	}
	return res
}

// ErrorIsAny asserts that err matches at least one of the targets
func (w *Wrapper) ErrorIsAny(err error, targets ...error) bool {
	w.Helper()
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return w.Fail("error did not match any target", "error: %v", err)
}
