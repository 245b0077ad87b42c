package builder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/lgmbx/DataProcessingOrchestrator/pkg/api"
)

// Client talks to the orchestrator HTTP API
type Client struct {
	httpClient *http.Client
	baseURL    string
}

var (
	ErrStartInstance  = errors.New("failed to start instance")
	ErrGetInstance    = errors.New("failed to get instance")
	ErrCancelInstance = errors.New("failed to cancel instance")
	ErrListWorkflows  = errors.New("failed to list workflows")
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("conflict")
)

const (
	DefaultEngineURL = "http://localhost:8080"

	routeOrders    = "/orders"
	routeWorkflows = "/workflows"
)

// NewClient creates a client for the orchestrator at baseURL
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// StartOrder starts an order workflow instance
func (c *Client) StartOrder(
	ctx context.Context, order api.OrderInput,
) (*api.StartedResponse, error) {
	return c.start(ctx, c.url(routeOrders), order)
}

// StartWorkflow starts an instance of any registered workflow type
func (c *Client) StartWorkflow(
	ctx context.Context, typ api.WorkflowType, input any,
) (*api.StartedResponse, error) {
	return c.start(ctx,
		c.url("%s/%s", routeWorkflows, url.PathEscape(string(typ))), input)
}

// GetOrder returns the status of an order instance
func (c *Client) GetOrder(
	ctx context.Context, id api.InstanceID,
) (*api.InstanceResponse, error) {
	var res api.InstanceResponse
	err := c.do(ctx, http.MethodGet,
		c.url("%s/%s", routeOrders, url.PathEscape(string(id))), nil, &res)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGetInstance, err)
	}
	return &res, nil
}

// CancelOrder cancels a running order instance
func (c *Client) CancelOrder(
	ctx context.Context, id api.InstanceID,
) (*api.InstanceResponse, error) {
	var res api.InstanceResponse
	err := c.do(ctx, http.MethodPost,
		c.url("%s/%s/cancel", routeOrders, url.PathEscape(string(id))), nil,
		&res)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCancelInstance, err)
	}
	return &res, nil
}

// ListWorkflows returns the workflow types the orchestrator runs
func (c *Client) ListWorkflows(
	ctx context.Context,
) (*api.WorkflowsListResponse, error) {
	var res api.WorkflowsListResponse
	if err := c.do(ctx, http.MethodGet, c.url(routeWorkflows), nil, &res); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrListWorkflows, err)
	}
	return &res, nil
}

// WaitForTerminal polls an order instance every interval until it is
// Completed or Failed, or until ctx ends
func (c *Client) WaitForTerminal(
	ctx context.Context, id api.InstanceID, interval time.Duration,
) (*api.InstanceResponse, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		res, err := c.GetOrder(ctx, id)
		if err != nil {
			return nil, err
		}
		if res.Status.IsTerminal() {
			return res, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) start(
	ctx context.Context, target string, input any,
) (*api.StartedResponse, error) {
	var res api.StartedResponse
	if err := c.do(ctx, http.MethodPost, target, input, &res); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStartInstance, err)
	}
	return &res, nil
}

func (c *Client) do(
	ctx context.Context, method, target string, in, out any,
) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusAccepted:
		return json.NewDecoder(resp.Body).Decode(out)
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	default:
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("status %d, body: %s", resp.StatusCode,
			string(data))
	}
}

func (c *Client) url(format string, args ...any) string {
	path := fmt.Sprintf(format, args...)
	return c.baseURL + path
}
