// Package server implements the HTTP API of the orchestrator
//
// This package provides REST endpoints for starting, querying, and
// cancelling workflow instances, listing workflows, health checks, and a
// WebSocket stream of instance events
package server
