package assert_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	testify "github.com/stretchr/testify/assert"

	"github.com/lgmbx/DataProcessingOrchestrator/internal/assert"
	"github.com/lgmbx/DataProcessingOrchestrator/internal/config"
	"github.com/lgmbx/DataProcessingOrchestrator/pkg/api"
)

type countingLoader struct {
	calls atomic.Int32
	after int32
}

var errNotYet = errors.New("not yet")

func (l *countingLoader) GetInstance(
	_ context.Context, id api.InstanceID,
) (*api.Instance, error) {
	n := l.calls.Add(1)
	if n < l.after {
		return &api.Instance{ID: id, Status: api.StatusRunning}, nil
	}
	return &api.Instance{ID: id, Status: api.StatusCompleted}, nil
}

func TestNew(t *testing.T) {
	w := assert.New(t)
	testify.NotNil(t, w)
	testify.NotNil(t, w.Assertions)
	testify.Equal(t, t, w.T)
}

func TestInstanceStatus(t *testing.T) {
	w := assert.New(t)
	w.InstanceStatus(
		&api.Instance{Status: api.StatusFailed}, api.StatusFailed,
	)
}

func TestConfigValid(t *testing.T) {
	w := assert.New(t)
	w.ConfigValid(config.NewDefaultConfig())
}

func TestConfigInvalid(t *testing.T) {
	w := assert.New(t)
	cfg := config.NewDefaultConfig()
	cfg.Workers = 0
	w.ConfigInvalid(cfg, "workers must be positive")
}

func TestWaitForTerminal(t *testing.T) {
	w := assert.New(t)
	l := &countingLoader{after: 3}

	inst := w.WaitForTerminal(l, "inst-1")
	w.InstanceStatus(inst, api.StatusCompleted)
	w.GreaterOrEqual(l.calls.Load(), int32(3))
}

func TestErrorIsAny(t *testing.T) {
	w := assert.New(t)
	wrapped := errors.Join(errNotYet, errors.New("other"))
	w.True(w.ErrorIsAny(wrapped, errors.New("unrelated"), errNotYet))
}
