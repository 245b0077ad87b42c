package api

import "time"

type (
	// EventType identifies a lifecycle transition of an instance
	EventType string

	// InstanceEvent is published whenever an instance changes state
	InstanceEvent struct {
		Timestamp  time.Time    `json:"timestamp"`
		Type       EventType    `json:"type"`
		InstanceID InstanceID   `json:"instance_id"`
		Workflow   WorkflowType `json:"workflow"`
		Step       StepName     `json:"step,omitempty"`
		Status     Status       `json:"status"`
		Error      string       `json:"error,omitempty"`
		Cursor     int          `json:"cursor"`
		Attempt    int          `json:"attempt,omitempty"`
	}
)

const (
	EventTypeInstanceStarted   EventType = "instance_started"
	EventTypeStepCompleted     EventType = "step_completed"
	EventTypeStepRetrying      EventType = "step_retrying"
	EventTypeInstanceCompleted EventType = "instance_completed"
	EventTypeInstanceFailed    EventType = "instance_failed"
	EventTypeInstanceCancelled EventType = "instance_cancelled"
)

// IsTerminal reports whether the event ends the instance's lifecycle
func (t EventType) IsTerminal() bool {
	switch t {
	case EventTypeInstanceCompleted, EventTypeInstanceFailed,
		EventTypeInstanceCancelled:
		return true
	default:
		return false
	}
}
