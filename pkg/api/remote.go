package api

import "encoding/json"

type (
	// StepRequest is the body posted to a remote step endpoint
	StepRequest struct {
		Payload  json.RawMessage `json:"payload"`
		Metadata StepMetadata    `json:"metadata"`
	}

	// StepMetadata identifies the invocation behind a StepRequest.
	// IdempotencyKey is stable across retries and replays of the same step
	StepMetadata struct {
		InstanceID     InstanceID   `json:"instance_id"`
		Workflow       WorkflowType `json:"workflow"`
		Step           StepName     `json:"step"`
		IdempotencyKey string       `json:"idempotency_key"`
		Index          int          `json:"index"`
		Attempt        int          `json:"attempt"`
	}

	// StepResult is the response of a remote step endpoint
	StepResult struct {
		Payload   json.RawMessage `json:"payload,omitempty"`
		Error     string          `json:"error,omitempty"`
		Success   bool            `json:"success"`
		Retryable bool            `json:"retryable,omitempty"`
	}
)

// NewResult creates a successful StepResult carrying payload
func NewResult(payload json.RawMessage) *StepResult {
	return &StepResult{
		Success: true,
		Payload: payload,
	}
}

// NewFailure creates an unsuccessful StepResult
func NewFailure(err error, retryable bool) *StepResult {
	return &StepResult{
		Error:     err.Error(),
		Retryable: retryable,
	}
}
