package client_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lgmbx/DataProcessingOrchestrator/internal/client"
	"github.com/lgmbx/DataProcessingOrchestrator/internal/engine"
	"github.com/lgmbx/DataProcessingOrchestrator/pkg/api"
	"github.com/lgmbx/DataProcessingOrchestrator/pkg/builder"
)

func testCall() *engine.Call {
	return &engine.Call{
		InstanceID: "inst-1",
		Workflow:   "order",
		Step:       "SendOrder",
		Index:      4,
		Attempt:    1,
	}
}

func TestSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			assert.Equal(t, "inst-1:4:SendOrder", r.Header.Get("Idempotency-Key"))

			var req api.StepRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, api.InstanceID("inst-1"), req.Metadata.InstanceID)
			assert.Equal(t, api.StepName("SendOrder"), req.Metadata.Step)
			assert.Equal(t, 4, req.Metadata.Index)
			assert.JSONEq(t, `{"a":1}`, string(req.Payload))

			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(api.NewResult(
				json.RawMessage(`{"a":2}`),
			))
		},
	))
	defer server.Close()

	cl := client.NewHTTPClient(5 * time.Second)
	out, err := cl.Invoke(context.Background(), server.URL, testCall(),
		json.RawMessage(`{"a":1}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":2}`, string(out))
}

func TestStepFunc(t *testing.T) {
	server := httptest.NewServer(builder.NewStepHandler(
		func(ctx *builder.StepContext, p json.RawMessage) (json.RawMessage, error) {
			assert.Equal(t, "inst-1:4:SendOrder", ctx.Metadata.IdempotencyKey)
			return p, nil
		},
	))
	defer server.Close()

	fn := client.NewHTTPClient(5 * time.Second).Step(server.URL)
	out, err := fn(context.Background(), testCall(), json.RawMessage(`{"x":true}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"x":true}`, string(out))
}

func TestSuccessWithoutPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"success":true}`))
		},
	))
	defer server.Close()

	cl := client.NewHTTPClient(5 * time.Second)
	out, err := cl.Invoke(context.Background(), server.URL, testCall(), nil)
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestHandlerFailures(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
	}{
		{"permanent", errors.New("address rejected"), false},
		{"retryable", builder.Retryable(errors.New("carrier busy")), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(builder.NewStepHandler(
				func(*builder.StepContext, json.RawMessage) (json.RawMessage, error) {
					return nil, tt.err
				},
			))
			defer server.Close()

			cl := client.NewHTTPClient(5 * time.Second)
			_, err := cl.Invoke(context.Background(), server.URL, testCall(),
				json.RawMessage(`{}`))
			assert.ErrorIs(t, err, client.ErrStepUnsuccessful)
			assert.Contains(t, err.Error(), tt.err.Error())
			assert.Equal(t, tt.transient, engine.IsTransient(err))
			assert.Equal(t, !tt.transient, engine.IsValidation(err))
		})
	}
}

func TestHTTPStatusClassification(t *testing.T) {
	tests := []struct {
		status    int
		transient bool
	}{
		{http.StatusInternalServerError, true},
		{http.StatusServiceUnavailable, true},
		{http.StatusTooManyRequests, true},
		{http.StatusRequestTimeout, true},
		{http.StatusBadRequest, false},
		{http.StatusNotFound, false},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(
				func(w http.ResponseWriter, _ *http.Request) {
					w.WriteHeader(tt.status)
				},
			))
			defer server.Close()

			cl := client.NewHTTPClient(5 * time.Second)
			_, err := cl.Invoke(context.Background(), server.URL, testCall(),
				json.RawMessage(`{}`))
			assert.ErrorIs(t, err, client.ErrHTTPError)
			assert.Equal(t, tt.transient, engine.IsTransient(err))
		})
	}
}

func TestInvalidResponses(t *testing.T) {
	for name, body := range map[string]string{
		"not json":        `nope`,
		"missing success": `{"payload":{}}`,
	} {
		t.Run(name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(
				func(w http.ResponseWriter, _ *http.Request) {
					_, _ = w.Write([]byte(body))
				},
			))
			defer server.Close()

			cl := client.NewHTTPClient(5 * time.Second)
			_, err := cl.Invoke(context.Background(), server.URL, testCall(),
				json.RawMessage(`{}`))
			assert.ErrorIs(t, err, client.ErrInvalidResponse)
			assert.False(t, engine.IsTransient(err))
		})
	}
}

func TestNetworkErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	endpoint := server.URL
	server.Close()

	cl := client.NewHTTPClient(time.Second)
	_, err := cl.Invoke(context.Background(), endpoint, testCall(),
		json.RawMessage(`{}`))
	assert.Error(t, err)
	assert.True(t, engine.IsTransient(err))
}

func TestTimeoutIsTransient(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(
		func(http.ResponseWriter, *http.Request) {
			<-release
		},
	))
	defer server.Close()
	defer close(release)

	cl := client.NewHTTPClient(50 * time.Millisecond)
	_, err := cl.Invoke(context.Background(), server.URL, testCall(),
		json.RawMessage(`{}`))
	assert.Error(t, err)
	assert.True(t, engine.IsTransient(err))
}

func TestNoEndpoint(t *testing.T) {
	cl := client.NewHTTPClient(time.Second)
	_, err := cl.Invoke(context.Background(), "", testCall(), nil)
	assert.ErrorIs(t, err, client.ErrNoEndpoint)
}
