package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/lgmbx/DataProcessingOrchestrator/pkg/api"
	"github.com/lgmbx/DataProcessingOrchestrator/pkg/log"
)

type (
	// Call describes a single step invocation to the step function
	Call struct {
		numbers    NumberSource
		clock      Clock
		InstanceID api.InstanceID
		Workflow   api.WorkflowType
		Step       api.StepName
		Index      int
		Attempt    int
	}

	// Executor runs one step of one instance with a per-step timeout,
	// classifying the outcome for the orchestrator
	Executor struct {
		Clock   Clock
		Numbers NumberSource
		Timeout time.Duration
	}

	stepResult struct {
		payload json.RawMessage
		err     error
	}
)

// NewExecutor creates an executor using the system clock and hash-derived
// numbers
func NewExecutor(timeout time.Duration) *Executor {
	return &Executor{
		Clock:   time.Now,
		Numbers: HashNumbers,
		Timeout: timeout,
	}
}

// Now returns the current time from the injected clock
func (c *Call) Now() time.Time {
	return c.clock()
}

// Number returns a number in [lo, hi] that is stable across replays of the
// same step of the same instance
func (c *Call) Number(lo, hi int) int {
	return c.numbers.Number(string(c.InstanceID)+":"+string(c.Step), lo, hi)
}

// Key returns an idempotency key for the invocation that stays the same
// across retries and replays
func (c *Call) Key() string {
	return fmt.Sprintf("%s:%d:%s", c.InstanceID, c.Index, c.Step)
}

// Execute runs step against payload. The returned error is a
// *TransientError when the step may be retried, and terminal otherwise. If
// ctx itself ends, its error is returned unwrapped
func (e *Executor) Execute(
	ctx context.Context, inst *api.Instance, step *Step, attempt int,
	payload json.RawMessage,
) (json.RawMessage, error) {
	call := &Call{
		InstanceID: inst.ID,
		Workflow:   inst.Workflow,
		Step:       step.Name,
		Index:      step.Index,
		Attempt:    attempt,
		clock:      e.clock(),
		numbers:    e.numbers(),
	}

	stepCtx, cancel := e.stepContext(ctx)
	defer cancel()

	res := make(chan stepResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("Step panic",
					log.InstanceID(inst.ID),
					log.Step(step.Name),
					slog.Any("panic", r))
				res <- stepResult{
					err: fmt.Errorf("%w: %v", ErrStepPanicked, r),
				}
			}
		}()
		out, err := step.fn(stepCtx, call, slices.Clone(payload))
		res <- stepResult{payload: out, err: err}
	}()

	select {
	case r := <-res:
		if r.err != nil {
			return nil, e.classify(ctx, stepCtx, r.err)
		}
		return checkOutput(r.payload, payload)
	case <-stepCtx.Done():
		return nil, e.classify(ctx, stepCtx, stepCtx.Err())
	}
}

func (e *Executor) classify(ctx, stepCtx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(stepCtx.Err(), context.DeadlineExceeded) {
		return Transient(fmt.Errorf("%w after %s", ErrStepTimeout, e.Timeout))
	}
	if IsTransient(err) || IsValidation(err) ||
		errors.Is(err, ErrStepPanicked) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrStepFailed, err)
}

func (e *Executor) stepContext(
	ctx context.Context,
) (context.Context, context.CancelFunc) {
	if e.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.Timeout)
}

func (e *Executor) clock() Clock {
	if e.Clock == nil {
		return time.Now
	}
	return e.Clock
}

func (e *Executor) numbers() NumberSource {
	if e.Numbers == nil {
		return HashNumbers
	}
	return e.Numbers
}

func checkOutput(out, in json.RawMessage) (json.RawMessage, error) {
	if out == nil {
		return slices.Clone(in), nil
	}
	if !json.Valid(out) {
		return nil, fmt.Errorf("%w: step output is not JSON",
			ErrInvalidPayload)
	}
	return out, nil
}
