package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"github.com/lgmbx/DataProcessingOrchestrator/pkg/api"
)

type (
	// StepFunc transforms the payload committed by the previous step into
	// a new payload. It may run more than once for the same input, so any
	// external side effect must be idempotent or deduplicated using
	// Call.InstanceID
	StepFunc func(
		ctx context.Context, call *Call, payload json.RawMessage,
	) (json.RawMessage, error)

	// InputValidator checks an instance's input before any step runs
	InputValidator func(input json.RawMessage) error

	// InitFunc derives the initial payload from an instance's input
	InitFunc func(input json.RawMessage) (json.RawMessage, error)

	// Step is a named entry in a workflow's ordered step list
	Step struct {
		fn    StepFunc
		Name  api.StepName
		Index int
	}

	// Workflow is an ordered, named sequence of steps. Steps are registered
	// at configuration time; once the workflow is frozen (by adding it to a
	// Catalog) its step order can no longer change
	Workflow struct {
		validate      InputValidator
		init          InitFunc
		names         map[api.StepName]int
		typ           api.WorkflowType
		invalidReason string
		steps         []*Step
		mu            sync.RWMutex
		frozen        bool
	}

	// WorkflowOption configures a Workflow at construction
	WorkflowOption func(*Workflow)
)

// DefaultInvalidReason is the failure reason recorded when a workflow's
// input is rejected and the workflow does not name its own
const DefaultInvalidReason = "invalid input"

// NewWorkflow creates an empty workflow of the given type
func NewWorkflow(typ api.WorkflowType, opts ...WorkflowOption) *Workflow {
	wf := &Workflow{
		typ:           typ,
		names:         map[api.StepName]int{},
		invalidReason: DefaultInvalidReason,
	}
	for _, opt := range opts {
		opt(wf)
	}
	return wf
}

// WithValidator sets the predicate an instance's input must satisfy before
// any step runs
func WithValidator(fn InputValidator) WorkflowOption {
	return func(wf *Workflow) {
		wf.validate = fn
	}
}

// WithInit sets how the initial payload is derived from the input. Without
// it the input itself is the initial payload
func WithInit(fn InitFunc) WorkflowOption {
	return func(wf *Workflow) {
		wf.init = fn
	}
}

// WithInvalidReason sets the failure reason recorded when input validation
// fails
func WithInvalidReason(reason string) WorkflowOption {
	return func(wf *Workflow) {
		wf.invalidReason = reason
	}
}

// Type returns the workflow's type name
func (wf *Workflow) Type() api.WorkflowType {
	return wf.typ
}

// InvalidReason returns the failure reason used for rejected input
func (wf *Workflow) InvalidReason() string {
	return wf.invalidReason
}

// Register appends a named step to the end of the workflow
func (wf *Workflow) Register(name api.StepName, fn StepFunc) error {
	if name == "" || fn == nil {
		return fmt.Errorf("%w: %q", ErrInvalidStep, name)
	}

	wf.mu.Lock()
	defer wf.mu.Unlock()

	if wf.frozen {
		return fmt.Errorf("%w: %s", ErrWorkflowFrozen, wf.typ)
	}
	if _, ok := wf.names[name]; ok {
		return fmt.Errorf("%w: %s", ErrStepExists, name)
	}
	step := &Step{
		Name:  name,
		Index: len(wf.steps),
		fn:    fn,
	}
	wf.names[name] = step.Index
	wf.steps = append(wf.steps, step)
	return nil
}

// MustRegister is Register for static workflow definitions, panicking on a
// programming error such as a duplicate name
func (wf *Workflow) MustRegister(name api.StepName, fn StepFunc) *Workflow {
	if err := wf.Register(name, fn); err != nil {
		panic(err)
	}
	return wf
}

// Steps returns the ordered step sequence
func (wf *Workflow) Steps() []*Step {
	wf.mu.RLock()
	defer wf.mu.RUnlock()
	return slices.Clone(wf.steps)
}

// StepNames returns the ordered step names
func (wf *Workflow) StepNames() []api.StepName {
	steps := wf.Steps()
	res := make([]api.StepName, len(steps))
	for i, s := range steps {
		res[i] = s.Name
	}
	return res
}

// Len returns the number of registered steps
func (wf *Workflow) Len() int {
	wf.mu.RLock()
	defer wf.mu.RUnlock()
	return len(wf.steps)
}

// Freeze prevents any further step registration
func (wf *Workflow) Freeze() {
	wf.mu.Lock()
	defer wf.mu.Unlock()
	wf.frozen = true
}

// Frozen reports whether the step list is fixed
func (wf *Workflow) Frozen() bool {
	wf.mu.RLock()
	defer wf.mu.RUnlock()
	return wf.frozen
}

// ValidateInput runs the workflow's input validator, if any
func (wf *Workflow) ValidateInput(input json.RawMessage) error {
	if wf.validate == nil {
		return nil
	}
	return wf.validate(input)
}

// InitialPayload derives the payload handed to the first step
func (wf *Workflow) InitialPayload(
	input json.RawMessage,
) (json.RawMessage, error) {
	if wf.init == nil {
		return slices.Clone(input), nil
	}
	return wf.init(input)
}

// Digest summarizes the workflow for API listings
func (wf *Workflow) Digest() *api.WorkflowDigest {
	return &api.WorkflowDigest{
		Type:  wf.typ,
		Steps: wf.StepNames(),
	}
}

// Typed adapts a function over a concrete payload type into a StepFunc.
// Each invocation decodes a fresh value, so steps never share state through
// the payload
func Typed[T any](
	fn func(ctx context.Context, call *Call, in T) (T, error),
) StepFunc {
	return func(
		ctx context.Context, call *Call, payload json.RawMessage,
	) (json.RawMessage, error) {
		var in T
		if err := json.Unmarshal(payload, &in); err != nil {
			return nil, Validation(
				fmt.Errorf("%w: %w", ErrInvalidPayload, err),
			)
		}
		out, err := fn(ctx, call, in)
		if err != nil {
			return nil, err
		}
		return json.Marshal(out)
	}
}

// TypedValidator adapts a predicate over a concrete input type into an
// InputValidator. Input that does not decode is rejected
func TypedValidator[T any](fn func(T) error) InputValidator {
	return func(input json.RawMessage) error {
		var in T
		if err := json.Unmarshal(input, &in); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidPayload, err)
		}
		return fn(in)
	}
}

// TypedInit adapts a conversion from a concrete input type to a concrete
// payload type into an InitFunc
func TypedInit[I, P any](fn func(I) P) InitFunc {
	return func(input json.RawMessage) (json.RawMessage, error) {
		var in I
		if err := json.Unmarshal(input, &in); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
		}
		return json.Marshal(fn(in))
	}
}
