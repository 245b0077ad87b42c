// Package api defines the shared data types of the orchestrator
//
// This package contains the types exchanged between the engine, the state
// stores, and the HTTP API: instance identifiers, persisted instance state,
// the order input model, lifecycle events, and request/response messages
package api
