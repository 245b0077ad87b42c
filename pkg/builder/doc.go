// Package builder provides Go clients for both sides of the orchestrator's
// HTTP surface
//
// Client starts, queries, and cancels workflow instances through the
// orchestrator API. NewStepHandler exposes a Go function as a remote step
// endpoint that the orchestrator can call from a workflow
package builder
