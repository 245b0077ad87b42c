package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lgmbx/DataProcessingOrchestrator/internal/store"
	"github.com/lgmbx/DataProcessingOrchestrator/pkg/api"
	"github.com/lgmbx/DataProcessingOrchestrator/pkg/log"
)

const maxCancelAttempts = 16

// StartInstance creates a Running instance of the named workflow at cursor
// zero and dispatches it. Input is not validated here; invalid input fails
// the instance asynchronously
func (e *Engine) StartInstance(
	ctx context.Context, typ api.WorkflowType, input json.RawMessage,
) (api.InstanceID, error) {
	wf, err := e.catalog.Get(typ)
	if err != nil {
		return "", err
	}
	if len(input) == 0 {
		input = json.RawMessage("null")
	}

	now := e.clock()
	inst := &api.Instance{
		ID:        e.newID(),
		Workflow:  typ,
		Status:    api.StatusRunning,
		Input:     input,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if payload, err := wf.InitialPayload(input); err == nil {
		inst.Payload = payload
	}

	if err := e.store.Create(ctx, inst); err != nil {
		return "", err
	}

	slog.Info("Instance started",
		log.InstanceID(inst.ID),
		log.Workflow(typ))
	e.events.Publish(&api.InstanceEvent{
		Timestamp:  now,
		Type:       api.EventTypeInstanceStarted,
		InstanceID: inst.ID,
		Workflow:   typ,
		Status:     inst.Status,
	})

	if err := e.Dispatch(inst.ID); err != nil {
		return inst.ID, err
	}
	return inst.ID, nil
}

// GetInstance returns the current state of an instance
func (e *Engine) GetInstance(
	ctx context.Context, id api.InstanceID,
) (*api.Instance, error) {
	return e.store.Load(ctx, id)
}

// CancelInstance fails a Running instance with the cancelled reason. The
// worker running it observes the terminal status at its next commit and
// stops without executing further steps
func (e *Engine) CancelInstance(
	ctx context.Context, id api.InstanceID,
) (*api.Instance, error) {
	for range maxCancelAttempts {
		inst, err := e.store.Load(ctx, id)
		if err != nil {
			return nil, err
		}
		if inst.Status.IsTerminal() {
			return inst, fmt.Errorf("%w: %s is %s", ErrInstanceTerminal, id,
				inst.Status)
		}

		next := inst.Clone()
		next.Status = api.StatusFailed
		next.FailureReason = api.ReasonCancelled
		next.UpdatedAt = e.clock()
		err = e.store.Commit(ctx, inst.Cursor, next)
		if errors.Is(err, store.ErrConcurrentModification) {
			continue
		}
		if err != nil {
			return nil, err
		}

		slog.Info("Instance cancelled",
			log.InstanceID(id),
			log.Cursor(next.Cursor))
		e.events.Publish(&api.InstanceEvent{
			Timestamp:  next.UpdatedAt,
			Type:       api.EventTypeInstanceCancelled,
			InstanceID: id,
			Workflow:   next.Workflow,
			Status:     next.Status,
			Error:      next.FailureReason,
			Cursor:     next.Cursor,
		})
		return next, nil
	}
	return nil, fmt.Errorf("%w: %s", store.ErrConcurrentModification, id)
}

// ListInstances returns the ids of instances with the given status
func (e *Engine) ListInstances(
	ctx context.Context, status api.Status,
) ([]api.InstanceID, error) {
	return e.store.List(ctx, status)
}

// Catalog returns the workflows the engine runs
func (e *Engine) Catalog() *Catalog {
	return e.catalog
}

// Workflows summarizes every registered workflow
func (e *Engine) Workflows() []*api.WorkflowDigest {
	types := e.catalog.Types()
	res := make([]*api.WorkflowDigest, 0, len(types))
	for _, typ := range types {
		if wf, err := e.catalog.Get(typ); err == nil {
			res = append(res, wf.Digest())
		}
	}
	return res
}
