// Package engine implements the durable sequential workflow engine
//
// A Workflow is an ordered list of named steps fixed at configuration time.
// The Engine accepts new instances, hands them to a pool of workers, and
// each worker runs an Orchestrator that executes the instance's steps one at
// a time through the Executor, checkpointing (cursor, payload) to the state
// store after every step. A restarted engine resumes every Running instance
// from its last checkpoint, so a committed step is never executed again
package engine
