package engine

import (
	"errors"
	"fmt"
)

type (
	// ValidationError reports that a payload failed a step's precondition.
	// The instance fails and the step is never retried
	ValidationError struct {
		Err error
	}

	// TransientError reports a failure that may succeed if the step runs
	// again, such as a timed out external call
	TransientError struct {
		Err error
	}
)

var (
	ErrWorkflowNotFound = errors.New("workflow not found")
	ErrWorkflowExists   = errors.New("workflow exists")
	ErrWorkflowFrozen   = errors.New("workflow is frozen")
	ErrWorkflowEmpty    = errors.New("workflow has no steps")
	ErrStepExists       = errors.New("step exists")
	ErrInvalidStep      = errors.New("invalid step")
	ErrInstanceTerminal = errors.New("instance is not running")
	ErrStepFailed       = errors.New("step failed")
	ErrStepPanicked     = errors.New("step panicked")
	ErrStepTimeout      = errors.New("step timed out")
	ErrRetriesExhausted = errors.New("retries exhausted")
	ErrLeaseLost        = errors.New("instance advanced by another worker")
	ErrEngineStopped    = errors.New("engine stopped")
	ErrShutdownTimeout  = errors.New("shutdown timeout exceeded")
	ErrInvalidPayload   = errors.New("invalid payload")
)

// Validation wraps err so that the orchestrator fails the instance without
// retrying the step
func Validation(err error) error {
	if err == nil {
		return nil
	}
	return &ValidationError{Err: err}
}

// Validationf formats a ValidationError
func Validationf(format string, args ...any) error {
	return Validation(fmt.Errorf(format, args...))
}

// Transient wraps err so that the orchestrator retries the step with backoff
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// Transientf formats a TransientError
func Transientf(format string, args ...any) error {
	return Transient(fmt.Errorf(format, args...))
}

// IsValidation reports whether err is or wraps a ValidationError
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsTransient reports whether err is or wraps a TransientError
func IsTransient(err error) bool {
	var t *TransientError
	return errors.As(err, &t)
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func (e *TransientError) Error() string {
	return "transient failure: " + e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}
