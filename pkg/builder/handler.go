package builder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/lgmbx/DataProcessingOrchestrator/pkg/api"
)

type (
	// StepHandler implements a remote step. Returning a *RetryableError
	// asks the orchestrator to retry the step
	StepHandler func(*StepContext, json.RawMessage) (json.RawMessage, error)

	// StepContext carries the request context and invocation metadata
	StepContext struct {
		context.Context
		Metadata api.StepMetadata
	}

	// RetryableError marks a handler failure as worth retrying
	RetryableError struct {
		Err error
	}
)

var ErrHandlerPanic = errors.New("step handler panicked")

// Retryable wraps err so the orchestrator retries the step
func Retryable(err error) error {
	return &RetryableError{Err: err}
}

func (e *RetryableError) Error() string {
	return e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewStepHandler serves handler over the JSON step protocol
func NewStepHandler(handler StepHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req api.StepRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid JSON", http.StatusBadRequest)
			return
		}

		ctx := &StepContext{
			Context:  r.Context(),
			Metadata: req.Metadata,
		}
		result := executeWithRecovery(ctx, handler, req.Payload)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(result)
	}
}

func executeWithRecovery(
	ctx *StepContext, handler StepHandler, payload json.RawMessage,
) (result *api.StepResult) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Step handler panicked",
				slog.String("step", string(ctx.Metadata.Step)),
				slog.Any("panic", r))
			result = api.NewFailure(
				fmt.Errorf("%w: %v", ErrHandlerPanic, r), false,
			)
		}
	}()

	out, err := handler(ctx, payload)
	if err != nil {
		var retry *RetryableError
		return api.NewFailure(err, errors.As(err, &retry))
	}
	return api.NewResult(out)
}
