package api

import "encoding/json"

type (
	// StartedResponse is returned when an instance has been accepted
	StartedResponse struct {
		InstanceID     InstanceID   `json:"instanceId"`
		Workflow       WorkflowType `json:"workflow"`
		StatusQueryURL string       `json:"statusQueryUrl"`
	}

	// InstanceResponse describes the current state of an instance
	InstanceResponse struct {
		InstanceID    InstanceID      `json:"instanceId"`
		Workflow      WorkflowType    `json:"workflow"`
		Status        Status          `json:"status"`
		Payload       json.RawMessage `json:"payload"`
		FailureReason string          `json:"failureReason,omitempty"`
		Cursor        int             `json:"cursor"`
	}

	// InstancesListResponse contains the ids of matching instances
	InstancesListResponse struct {
		Instances []InstanceID `json:"instances"`
		Count     int          `json:"count"`
	}

	// WorkflowDigest describes a registered workflow and its ordered steps
	WorkflowDigest struct {
		Type  WorkflowType `json:"type"`
		Steps []StepName   `json:"steps"`
	}

	// WorkflowsListResponse contains every registered workflow
	WorkflowsListResponse struct {
		Workflows []*WorkflowDigest `json:"workflows"`
		Count     int               `json:"count"`
	}

	// HealthResponse provides service health information
	HealthResponse struct {
		Service string `json:"service"`
		Status  string `json:"status"`
		Version string `json:"version"`
	}

	// StreamMessage is one frame of an instance event stream. The first
	// frame is a snapshot of the instance, later frames carry events
	StreamMessage struct {
		Type     StreamMessageType `json:"type"`
		Instance *InstanceResponse `json:"instance,omitempty"`
		Event    *InstanceEvent    `json:"event,omitempty"`
	}

	// StreamMessageType distinguishes snapshot frames from event frames
	StreamMessageType string

	// ErrorResponse contains error details for failed requests
	ErrorResponse struct {
		Error  string `json:"error"`
		Status int    `json:"status,omitempty"`
	}
)

const (
	StreamSnapshot StreamMessageType = "snapshot"
	StreamEvent    StreamMessageType = "event"
)

// NewInstanceResponse projects persisted instance state onto the status
// query message
func NewInstanceResponse(inst *Instance) *InstanceResponse {
	payload := inst.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	return &InstanceResponse{
		InstanceID:    inst.ID,
		Workflow:      inst.Workflow,
		Status:        inst.Status,
		Payload:       payload,
		FailureReason: inst.FailureReason,
		Cursor:        inst.Cursor,
	}
}
