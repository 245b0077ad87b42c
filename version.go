// Package orchestrator runs durable, strictly sequential workflows
package orchestrator

const (
	// Name identifies the service in logs and health responses
	Name = "data-processing-orchestrator"

	// Version is the service version
	Version = "1.0.0"
)
