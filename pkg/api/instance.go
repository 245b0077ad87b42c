package api

import (
	"encoding/json"
	"slices"
	"time"
)

type (
	// Status is the lifecycle state of a workflow instance
	Status string

	// Instance is the persisted state of one workflow run. Cursor is the
	// index of the next step to execute; Payload is the output of the last
	// committed step (or the initial payload when Cursor is zero)
	Instance struct {
		CreatedAt     time.Time       `json:"created_at"`
		UpdatedAt     time.Time       `json:"updated_at"`
		ID            InstanceID      `json:"id"`
		Workflow      WorkflowType    `json:"workflow"`
		Status        Status          `json:"status"`
		FailureReason string          `json:"failure_reason,omitempty"`
		Input         json.RawMessage `json:"input,omitempty"`
		Payload       json.RawMessage `json:"payload,omitempty"`
		Cursor        int             `json:"cursor"`
	}
)

// An instance is pending only until its creation is stored, so no pending
// status is ever persisted
const (
	StatusRunning   Status = "Running"
	StatusCompleted Status = "Completed"
	StatusFailed    Status = "Failed"
)

const (
	ReasonCancelled = "cancelled"
)

// IsTerminal reports whether the status can no longer change
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// IsValid reports whether the status is one an instance can be stored with
func (s Status) IsValid() bool {
	return s == StatusRunning || s.IsTerminal()
}

// Clone returns a deep copy of the instance so that callers never share
// payload buffers with a store
func (i *Instance) Clone() *Instance {
	if i == nil {
		return nil
	}
	res := *i
	res.Input = slices.Clone(i.Input)
	res.Payload = slices.Clone(i.Payload)
	return &res
}
