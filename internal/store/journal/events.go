package journal

import (
	"encoding/json"
	"time"

	"github.com/kode4food/timebox"

	"github.com/lgmbx/DataProcessingOrchestrator/pkg/api"
)

type (
	// Transition is the event payload recorded whenever a step commits or an
	// instance reaches a terminal status
	Transition struct {
		UpdatedAt time.Time       `json:"updated_at"`
		Payload   json.RawMessage `json:"payload,omitempty"`
		Reason    string          `json:"reason,omitempty"`
		Cursor    int             `json:"cursor"`
	}

	// Deleted is the payload of the tombstone raised by Delete
	Deleted struct{}
)

const (
	EventInstanceCreated   timebox.EventType = "instance_created"
	EventStepCommitted     timebox.EventType = "step_committed"
	EventInstanceCompleted timebox.EventType = "instance_completed"
	EventInstanceFailed    timebox.EventType = "instance_failed"
	EventInstanceDeleted   timebox.EventType = "instance_deleted"
)

// Appliers project the event log of one instance into its api.Instance.
// Every applier returns a fresh value, because projections are shared by
// the executor cache
var Appliers = timebox.Appliers[*api.Instance]{
	EventInstanceCreated: timebox.MakeApplier(instanceCreated),
	EventStepCommitted: timebox.MakeApplier(
		transitionTo(api.StatusRunning),
	),
	EventInstanceCompleted: timebox.MakeApplier(
		transitionTo(api.StatusCompleted),
	),
	EventInstanceFailed: timebox.MakeApplier(
		transitionTo(api.StatusFailed),
	),
	EventInstanceDeleted: timebox.MakeApplier(instanceDeleted),
}

// NewInstanceState returns the projection of an instance with no events
func NewInstanceState() *api.Instance {
	return &api.Instance{}
}

// commitEvent picks the event type that records a move to status
func commitEvent(status api.Status) timebox.EventType {
	switch status {
	case api.StatusCompleted:
		return EventInstanceCompleted
	case api.StatusFailed:
		return EventInstanceFailed
	default:
		return EventStepCommitted
	}
}

func instanceCreated(
	_ *api.Instance, _ *timebox.Event, data api.Instance,
) *api.Instance {
	return &data
}

func transitionTo(status api.Status) func(
	*api.Instance, *timebox.Event, Transition,
) *api.Instance {
	return func(
		st *api.Instance, _ *timebox.Event, t Transition,
	) *api.Instance {
		res := st.Clone()
		res.Status = status
		res.Cursor = t.Cursor
		res.Payload = t.Payload
		res.FailureReason = t.Reason
		res.UpdatedAt = t.UpdatedAt
		return res
	}
}

func instanceDeleted(*api.Instance, *timebox.Event, Deleted) *api.Instance {
	return NewInstanceState()
}
