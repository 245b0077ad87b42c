package engine_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lgmbx/DataProcessingOrchestrator/internal/engine"
	"github.com/lgmbx/DataProcessingOrchestrator/pkg/api"
)

type (
	trace struct {
		Steps []string `json:"steps"`
		Count int      `json:"count"`
	}

	// calls counts step invocations by name
	calls struct {
		counts map[string]int
		mu     sync.Mutex
	}

	recorder struct {
		events []*api.InstanceEvent
		mu     sync.Mutex
	}
)

var fixedNow = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func fixedClock() time.Time {
	return fixedNow
}

func noSleep(context.Context, time.Duration) error {
	return nil
}

func newCalls() *calls {
	return &calls{counts: map[string]int{}}
}

func (c *calls) inc(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[name]++
}

func (c *calls) get(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[name]
}

func (r *recorder) Publish(ev *api.InstanceEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) types() []api.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := make([]api.EventType, len(r.events))
	for i, ev := range r.events {
		res[i] = ev.Type
	}
	return res
}

func appendStep(c *calls, name string) engine.StepFunc {
	return engine.Typed(
		func(_ context.Context, _ *engine.Call, in trace) (trace, error) {
			c.inc(name)
			in.Steps = append(in.Steps, name)
			in.Count++
			return in, nil
		},
	)
}

func traceWorkflow(
	t *testing.T, c *calls, typ api.WorkflowType, names ...string,
) *engine.Workflow {
	t.Helper()
	wf := engine.NewWorkflow(typ)
	for _, name := range names {
		require.NoError(t, wf.Register(api.StepName(name), appendStep(c, name)))
	}
	return wf
}

func decodeTrace(t *testing.T, payload json.RawMessage) trace {
	t.Helper()
	var res trace
	require.NoError(t, json.Unmarshal(payload, &res))
	return res
}
