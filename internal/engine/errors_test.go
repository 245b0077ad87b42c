package engine_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lgmbx/DataProcessingOrchestrator/internal/engine"
)

func TestErrorClassification(t *testing.T) {
	base := errors.New("boom")

	v := engine.Validation(base)
	assert.True(t, engine.IsValidation(v))
	assert.False(t, engine.IsTransient(v))
	assert.ErrorIs(t, v, base)
	assert.Equal(t, "validation failed: boom", v.Error())

	tr := engine.Transient(base)
	assert.True(t, engine.IsTransient(tr))
	assert.False(t, engine.IsValidation(tr))
	assert.ErrorIs(t, tr, base)
	assert.Equal(t, "transient failure: boom", tr.Error())

	wrapped := fmt.Errorf("context: %w", tr)
	assert.True(t, engine.IsTransient(wrapped))

	assert.False(t, engine.IsTransient(base))
	assert.False(t, engine.IsValidation(base))
}

func TestErrorConstructorsNil(t *testing.T) {
	assert.NoError(t, engine.Validation(nil))
	assert.NoError(t, engine.Transient(nil))
}

func TestErrorf(t *testing.T) {
	err := engine.Validationf("total %d", 0)
	assert.True(t, engine.IsValidation(err))
	assert.Contains(t, err.Error(), "total 0")

	err = engine.Transientf("status %d", 503)
	assert.True(t, engine.IsTransient(err))
	assert.Contains(t, err.Error(), "status 503")
}
