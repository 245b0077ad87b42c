package engine

import (
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/lgmbx/DataProcessingOrchestrator/pkg/api"
)

// Catalog holds the workflows an engine knows how to run, keyed by type
type Catalog struct {
	workflows map[api.WorkflowType]*Workflow
	mu        sync.RWMutex
}

// NewCatalog creates a catalog holding the given workflows
func NewCatalog(wfs ...*Workflow) (*Catalog, error) {
	c := &Catalog{
		workflows: map[api.WorkflowType]*Workflow{},
	}
	for _, wf := range wfs {
		if err := c.Add(wf); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Add registers a workflow and freezes its step list
func (c *Catalog) Add(wf *Workflow) error {
	if wf.Len() == 0 {
		return fmt.Errorf("%w: %s", ErrWorkflowEmpty, wf.Type())
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.workflows[wf.Type()]; ok {
		return fmt.Errorf("%w: %s", ErrWorkflowExists, wf.Type())
	}
	wf.Freeze()
	c.workflows[wf.Type()] = wf
	return nil
}

// Get returns the workflow registered under typ
func (c *Catalog) Get(typ api.WorkflowType) (*Workflow, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	wf, ok := c.workflows[typ]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrWorkflowNotFound, typ)
	}
	return wf, nil
}

// Types returns the registered workflow types in sorted order
func (c *Catalog) Types() []api.WorkflowType {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Sorted(maps.Keys(c.workflows))
}
