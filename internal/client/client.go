package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"github.com/lgmbx/DataProcessingOrchestrator/internal/engine"
	"github.com/lgmbx/DataProcessingOrchestrator/pkg/api"
	"github.com/lgmbx/DataProcessingOrchestrator/pkg/log"
)

type (
	// Client invokes a step hosted behind an HTTP endpoint
	Client interface {
		Invoke(
			ctx context.Context, endpoint string, call *engine.Call,
			payload json.RawMessage,
		) (json.RawMessage, error)
	}

	// HTTPClient is a Client speaking the JSON step protocol
	HTTPClient struct {
		httpClient *http.Client
	}
)

const userAgent = "DataProcessingOrchestrator/1.0"

var (
	ErrStepUnsuccessful = errors.New("step returned success=false")
	ErrHTTPError        = errors.New("step returned HTTP error")
	ErrInvalidResponse  = errors.New("step returned invalid response")
	ErrNoEndpoint       = errors.New("step has no endpoint")
)

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient creates a client whose requests time out after timeout
func NewHTTPClient(timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Step returns a StepFunc that delegates to the endpoint
func (c *HTTPClient) Step(endpoint string) engine.StepFunc {
	return func(
		ctx context.Context, call *engine.Call, payload json.RawMessage,
	) (json.RawMessage, error) {
		return c.Invoke(ctx, endpoint, call, payload)
	}
}

// Invoke posts the payload to endpoint. Network failures, timeouts, 5xx
// and 429 responses, and results flagged retryable are transient; other
// failures are validation errors. A successful result without a payload
// returns nil
func (c *HTTPClient) Invoke(
	ctx context.Context, endpoint string, call *engine.Call,
	payload json.RawMessage,
) (json.RawMessage, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoEndpoint, call.Step)
	}

	body, err := json.Marshal(api.StepRequest{
		Payload: payload,
		Metadata: api.StepMetadata{
			InstanceID:     call.InstanceID,
			Workflow:       call.Workflow,
			Step:           call.Step,
			Index:          call.Index,
			Attempt:        call.Attempt,
			IdempotencyKey: call.Key(),
		},
	})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(
		ctx, http.MethodPost, endpoint, bytes.NewBuffer(body),
	)
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", userAgent)
	httpReq.Header.Set("Idempotency-Key", call.Key())

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	dur := time.Since(start)

	if err != nil {
		slog.Warn("HTTP request failed",
			log.InstanceID(call.InstanceID),
			log.Step(call.Step),
			slog.Duration("duration", dur),
			log.Error(err))
		return nil, engine.Transient(err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, engine.Transient(err)
	}

	if resp.StatusCode != http.StatusOK {
		slog.Warn("HTTP error",
			log.InstanceID(call.InstanceID),
			log.Step(call.Step),
			slog.Int("status_code", resp.StatusCode),
			slog.String("response_body", string(respBody)))
		err := fmt.Errorf("%w: HTTP %d", ErrHTTPError, resp.StatusCode)
		if retryableStatus(resp.StatusCode) {
			return nil, engine.Transient(err)
		}
		return nil, engine.Validation(err)
	}

	return parseResult(respBody)
}

func parseResult(body []byte) (json.RawMessage, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: not JSON", ErrInvalidResponse)
	}
	res := gjson.GetManyBytes(body, "success", "payload", "error", "retryable")
	success, payload, msg, retryable := res[0], res[1], res[2], res[3]

	if !success.Exists() {
		return nil, fmt.Errorf("%w: missing success", ErrInvalidResponse)
	}
	if !success.Bool() {
		err := ErrStepUnsuccessful
		if msg.String() != "" {
			err = fmt.Errorf("%w: %s", ErrStepUnsuccessful, msg.String())
		}
		if retryable.Bool() {
			return nil, engine.Transient(err)
		}
		return nil, engine.Validation(err)
	}

	if !payload.Exists() || payload.Type == gjson.Null {
		return nil, nil
	}
	return json.RawMessage(payload.Raw), nil
}

func retryableStatus(code int) bool {
	return code >= http.StatusInternalServerError ||
		code == http.StatusTooManyRequests ||
		code == http.StatusRequestTimeout
}
