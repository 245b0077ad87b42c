// Package workflows assembles the catalog of workflow definitions the
// orchestrator ships with
package workflows
