package events

import "github.com/lgmbx/DataProcessingOrchestrator/pkg/api"

// Filter selects the events a subscription receives
type Filter func(*api.InstanceEvent) bool

// All accepts every event
func All(*api.InstanceEvent) bool {
	return true
}

// FilterTypes accepts events of the given types
func FilterTypes(types ...api.EventType) Filter {
	lookup := map[api.EventType]bool{}
	for _, et := range types {
		lookup[et] = true
	}
	return func(ev *api.InstanceEvent) bool {
		return lookup[ev.Type]
	}
}

// FilterInstance accepts events of a single instance
func FilterInstance(id api.InstanceID) Filter {
	return func(ev *api.InstanceEvent) bool {
		return ev.InstanceID == id
	}
}

// FilterWorkflow accepts events of instances of one workflow type
func FilterWorkflow(typ api.WorkflowType) Filter {
	return func(ev *api.InstanceEvent) bool {
		return ev.Workflow == typ
	}
}

// OrFilters accepts an event if any of the filters accepts it
func OrFilters(filters ...Filter) Filter {
	return func(ev *api.InstanceEvent) bool {
		for _, filter := range filters {
			if filter(ev) {
				return true
			}
		}
		return false
	}
}

// AndFilters accepts an event only if every filter accepts it
func AndFilters(filters ...Filter) Filter {
	return func(ev *api.InstanceEvent) bool {
		for _, filter := range filters {
			if !filter(ev) {
				return false
			}
		}
		return true
	}
}
