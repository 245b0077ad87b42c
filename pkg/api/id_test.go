package api_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/lgmbx/DataProcessingOrchestrator/pkg/api"
)

func TestNewInstanceID(t *testing.T) {
	seen := map[api.InstanceID]bool{}
	for range 100 {
		id := api.NewInstanceID()
		parsed, err := uuid.Parse(string(id))
		assert.NoError(t, err)
		assert.Equal(t, uuid.Version(7), parsed.Version())
		assert.False(t, seen[id])
		seen[id] = true
	}
}

func TestSanitizeID(t *testing.T) {
	assert.Equal(t, api.InstanceID("abc-123"),
		api.SanitizeID(api.InstanceID("  ABC-123 ")))
	assert.Equal(t, api.InstanceID("abc"),
		api.SanitizeID(api.InstanceID("a/b?c")))
	assert.Equal(t, api.WorkflowType("order"),
		api.SanitizeID(api.WorkflowType("Order")))
}
