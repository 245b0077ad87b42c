package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lgmbx/DataProcessingOrchestrator/pkg/api"
	"github.com/lgmbx/DataProcessingOrchestrator/pkg/builder"
)

func ship(t *testing.T, failureRate float64, payload string) *api.StepResult {
	t.Helper()
	body, err := json.Marshal(api.StepRequest{
		Payload: json.RawMessage(payload),
		Metadata: api.StepMetadata{
			InstanceID: "inst-1",
			Step:       "SendOrder",
			Attempt:    1,
		},
	})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	builder.NewStepHandler(newHandler(failureRate)).ServeHTTP(w,
		httptest.NewRequest(http.MethodPost, shipPath, bytes.NewReader(body)))
	require.Equal(t, http.StatusOK, w.Code)

	var res api.StepResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	return &res
}

func TestShipSchedules(t *testing.T) {
	res := ship(t, 0, `{"orderNumber":1234,"productName":"Widget"}`)
	assert.True(t, res.Success)
	assert.Contains(t, string(res.Payload), "shipmentId")
}

func TestShipRejectsEmptyOrder(t *testing.T) {
	res := ship(t, 0, `{"orderNumber":1234}`)
	assert.False(t, res.Success)
	assert.False(t, res.Retryable)
	assert.Contains(t, res.Error, ErrNothingToShip.Error())
}

func TestShipCarrierFailure(t *testing.T) {
	res := ship(t, 1, `{"orderNumber":1234,"productName":"Widget"}`)
	assert.False(t, res.Success)
	assert.True(t, res.Retryable)
}
