package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lgmbx/DataProcessingOrchestrator/internal/store"
	"github.com/lgmbx/DataProcessingOrchestrator/pkg/api"
	"github.com/lgmbx/DataProcessingOrchestrator/pkg/log"
)

type (
	// Publisher receives instance lifecycle events
	Publisher interface {
		Publish(*api.InstanceEvent)
	}

	// SleepFunc waits for d or until ctx ends
	SleepFunc func(ctx context.Context, d time.Duration) error

	// Orchestrator drives a single instance from its committed cursor to a
	// terminal status, checkpointing after every step
	Orchestrator struct {
		store    store.Store
		catalog  *Catalog
		executor *Executor
		events   Publisher
		clock    Clock
		sleep    SleepFunc
		retry    api.RetryConfig
	}

	noopPublisher struct{}
)

// NewOrchestrator creates an orchestrator. A nil Publisher discards events
func NewOrchestrator(
	st store.Store, cat *Catalog, exec *Executor, retry api.RetryConfig,
	pub Publisher,
) *Orchestrator {
	if pub == nil {
		pub = noopPublisher{}
	}
	return &Orchestrator{
		store:    st,
		catalog:  cat,
		executor: exec,
		events:   pub,
		clock:    exec.clock(),
		sleep:    sleepContext,
		retry:    retry,
	}
}

// WithSleep replaces how the orchestrator waits between retries
func (o *Orchestrator) WithSleep(fn SleepFunc) *Orchestrator {
	o.sleep = fn
	return o
}

// Run advances the instance until it is terminal, until another worker is
// found to own it (ErrLeaseLost), or until ctx ends. Progress is only ever
// made through the store's compare-and-set commit, so Run is safe to call
// for an instance that is concurrently being run elsewhere
func (o *Orchestrator) Run(ctx context.Context, id api.InstanceID) error {
	var last *api.Instance
	for {
		inst, err := o.store.Load(ctx, id)
		if err != nil {
			return err
		}
		if inst.Status.IsTerminal() {
			return nil
		}
		if last != nil && inst.Cursor != last.Cursor {
			return fmt.Errorf("%w: %s", ErrLeaseLost, id)
		}

		next, err := o.advance(ctx, inst)
		switch {
		case err == nil:
			last = next
		case errors.Is(err, store.ErrConcurrentModification):
			slog.Debug("Commit conflict",
				log.InstanceID(id),
				log.Cursor(inst.Cursor))
			last = inst
		default:
			return err
		}
	}
}

func (o *Orchestrator) advance(
	ctx context.Context, inst *api.Instance,
) (*api.Instance, error) {
	wf, err := o.catalog.Get(inst.Workflow)
	if err != nil {
		return o.fail(ctx, inst, "", err.Error())
	}

	payload := inst.Payload
	if inst.Cursor == 0 {
		if err := wf.ValidateInput(inst.Input); err != nil {
			slog.Info("Instance input rejected",
				log.InstanceID(inst.ID),
				log.Workflow(inst.Workflow),
				log.Error(err))
			return o.fail(ctx, inst, "", wf.InvalidReason())
		}
		if len(payload) == 0 {
			payload, err = wf.InitialPayload(inst.Input)
			if err != nil {
				return o.fail(ctx, inst, "", wf.InvalidReason())
			}
		}
	}

	steps := wf.Steps()
	if inst.Cursor >= len(steps) {
		return o.complete(ctx, inst, inst.Cursor, payload)
	}

	step := steps[inst.Cursor]
	out, err := o.runStep(ctx, inst, step, payload)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		reason := fmt.Sprintf("%s: %s", step.Name, err)
		return o.fail(ctx, inst, step.Name, reason)
	}

	if inst.Cursor+1 == len(steps) {
		return o.complete(ctx, inst, inst.Cursor+1, out)
	}

	next := inst.Clone()
	next.Cursor++
	next.Payload = out
	next.UpdatedAt = o.clock()
	if err := o.store.Commit(ctx, inst.Cursor, next); err != nil {
		return nil, err
	}
	o.publish(next, api.EventTypeStepCompleted, step.Name, "", 0)
	return next, nil
}

func (o *Orchestrator) runStep(
	ctx context.Context, inst *api.Instance, step *Step,
	payload json.RawMessage,
) (json.RawMessage, error) {
	for attempt := 1; ; attempt++ {
		out, err := o.executor.Execute(ctx, inst, step, attempt, payload)
		if err == nil {
			slog.Debug("Step completed",
				log.InstanceID(inst.ID),
				log.Step(step.Name),
				slog.Int("attempt", attempt))
			return out, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !IsTransient(err) {
			return nil, err
		}
		if attempt >= o.retry.MaxAttempts {
			return nil, fmt.Errorf("%w after %d attempts: %w",
				ErrRetriesExhausted, attempt, err)
		}

		delay := RetryDelay(&o.retry, attempt-1)
		slog.Warn("Step failed, retrying",
			log.InstanceID(inst.ID),
			log.Step(step.Name),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			log.Error(err))
		o.publish(inst, api.EventTypeStepRetrying, step.Name, err.Error(),
			attempt)

		if err := o.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

func (o *Orchestrator) complete(
	ctx context.Context, inst *api.Instance, cursor int,
	payload json.RawMessage,
) (*api.Instance, error) {
	next := inst.Clone()
	next.Cursor = cursor
	next.Payload = payload
	next.Status = api.StatusCompleted
	next.UpdatedAt = o.clock()
	if err := o.store.Commit(ctx, inst.Cursor, next); err != nil {
		return nil, err
	}

	slog.Info("Instance completed",
		log.InstanceID(next.ID),
		log.Workflow(next.Workflow))
	if cursor > inst.Cursor {
		name := o.stepName(next, cursor-1)
		o.publish(next, api.EventTypeStepCompleted, name, "", 0)
	}
	o.publish(next, api.EventTypeInstanceCompleted, "", "", 0)
	return next, nil
}

func (o *Orchestrator) fail(
	ctx context.Context, inst *api.Instance, step api.StepName, reason string,
) (*api.Instance, error) {
	next := inst.Clone()
	next.Status = api.StatusFailed
	next.FailureReason = reason
	next.UpdatedAt = o.clock()
	if err := o.store.Commit(ctx, inst.Cursor, next); err != nil {
		return nil, err
	}

	slog.Warn("Instance failed",
		log.InstanceID(next.ID),
		log.Workflow(next.Workflow),
		log.Cursor(next.Cursor),
		slog.String("reason", reason))
	o.publish(next, api.EventTypeInstanceFailed, step, reason, 0)
	return next, nil
}

func (o *Orchestrator) stepName(inst *api.Instance, idx int) api.StepName {
	wf, err := o.catalog.Get(inst.Workflow)
	if err != nil {
		return ""
	}
	steps := wf.Steps()
	if idx < 0 || idx >= len(steps) {
		return ""
	}
	return steps[idx].Name
}

func (o *Orchestrator) publish(
	inst *api.Instance, typ api.EventType, step api.StepName, msg string,
	attempt int,
) {
	o.events.Publish(&api.InstanceEvent{
		Timestamp:  o.clock(),
		Type:       typ,
		InstanceID: inst.ID,
		Workflow:   inst.Workflow,
		Step:       step,
		Status:     inst.Status,
		Error:      msg,
		Cursor:     inst.Cursor,
		Attempt:    attempt,
	})
}

func (noopPublisher) Publish(*api.InstanceEvent) {}
