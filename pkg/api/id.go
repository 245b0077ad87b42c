package api

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

type (
	// InstanceID uniquely identifies one run of a workflow
	InstanceID string

	// WorkflowType names a registered workflow definition
	WorkflowType string

	// StepName names a single step within a workflow
	StepName string
)

// InvalidIDChars matches characters not permitted in instance IDs. Valid
// characters are: letters, digits, underscore, dot, hyphen
var InvalidIDChars = regexp.MustCompile(`[^a-zA-Z0-9_.\-]`)

// NewInstanceID returns a time-ordered UUID (version 7), falling back to a
// random UUID if the clock source cannot produce one
func NewInstanceID() InstanceID {
	id, err := uuid.NewV7()
	if err != nil {
		return InstanceID(uuid.NewString())
	}
	return InstanceID(id.String())
}

// SanitizeID lowercases an ID and removes invalid characters
func SanitizeID[T ~string](id T) T {
	lower := strings.ToLower(strings.TrimSpace(string(id)))
	return T(InvalidIDChars.ReplaceAllString(lower, ""))
}
