package text

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lgmbx/DataProcessingOrchestrator/internal/engine"
	"github.com/lgmbx/DataProcessingOrchestrator/internal/script"
	"github.com/lgmbx/DataProcessingOrchestrator/pkg/api"
	"github.com/lgmbx/DataProcessingOrchestrator/pkg/log"
)

// Payload is the text being processed plus the output of each step
type Payload struct {
	Text    string   `json:"text"`
	Outputs []string `json:"outputs"`
}

const (
	Type api.WorkflowType = "text"

	StepCleanseData   api.StepName = "CleanseData"
	StepTransformData api.StepName = "TransformData"

	// InvalidReason is the failure reason of an instance without text
	InvalidReason = "invalid text"
)

var (
	// cleanseScript trims the text and collapses its runs of whitespace
	cleanseScript = script.Source{
		Language: script.LangAle,
		Script:   `{:text (collapse text)}`,
		Args:     []string{"text"},
	}

	// transformScript upper-cases the cleansed text
	transformScript = script.Source{
		Language: script.LangLua,
		Script:   `return { text = string.upper(payload.text or "") }`,
	}
)

var ErrEmptyText = errors.New("text is required")

// New builds the two-step text workflow, compiling its scripts in reg
func New(reg *script.Registry) (*engine.Workflow, error) {
	cleanse, err := reg.Step(StepCleanseData, cleanseScript)
	if err != nil {
		return nil, err
	}
	transform, err := reg.Step(StepTransformData, transformScript)
	if err != nil {
		return nil, err
	}

	wf := engine.NewWorkflow(Type,
		engine.WithInvalidReason(InvalidReason),
		engine.WithValidator(engine.TypedValidator(Validate)),
		engine.WithInit(engine.TypedInit(NewPayload)),
	)
	err = wf.Register(StepCleanseData,
		recorded(cleanse, "Data cleansing completed"),
	)
	if err != nil {
		return nil, err
	}
	err = wf.Register(StepTransformData,
		recorded(transform, "Data transformation completed"),
	)
	if err != nil {
		return nil, err
	}
	return wf, nil
}

// Validate rejects input without any non-whitespace text
func Validate(in api.TextInput) error {
	if strings.TrimSpace(in.Text) == "" {
		return ErrEmptyText
	}
	return nil
}

// NewPayload seeds the payload from the text input
func NewPayload(in api.TextInput) Payload {
	return Payload{
		Text:    in.Text,
		Outputs: []string{},
	}
}

// recorded appends the text a script produced to the step outputs
func recorded(fn engine.StepFunc, msg string) engine.StepFunc {
	return func(
		ctx context.Context, call *engine.Call, payload json.RawMessage,
	) (json.RawMessage, error) {
		out, err := fn(ctx, call, payload)
		if err != nil {
			return nil, err
		}
		var p Payload
		if err := json.Unmarshal(out, &p); err != nil {
			return nil, engine.Validation(
				fmt.Errorf("%w: %w", engine.ErrInvalidPayload, err),
			)
		}
		p.Outputs = append(p.Outputs, p.Text)
		slog.Info(msg, log.InstanceID(call.InstanceID))
		return json.Marshal(p)
	}
}
