package org

import "context"

// Graph answers readiness questions over the delegation call graph. It is a
// readiness predicate evaluated on demand, not an event-driven scheduler.
type Graph struct {
	store Store
}

// NewGraph creates a Graph over the given store.
func NewGraph(store Store) *Graph {
	return &Graph{store: store}
}

// ReadyTasks returns the IDs of tasks whose dependencies have all
// completed. A dependency on an unknown call counts as incomplete: a task
// is never ready on the strength of a dangling reference.
func (g *Graph) ReadyTasks(ctx context.Context) ([]string, error) {
	deps, err := g.store.Dependencies(ctx)
	if err != nil {
		return nil, err
	}

	// blocked[task] is true once any dependency is found incomplete.
	blocked := make(map[string]bool)
	order := make([]string, 0, len(deps))
	for _, d := range deps {
		if _, seen := blocked[d.TaskID]; !seen {
			order = append(order, d.TaskID)
			blocked[d.TaskID] = false
		}
		if blocked[d.TaskID] {
			continue
		}
		call, err := g.store.GetCall(ctx, d.DependsOn)
		if err != nil {
			return nil, err
		}
		if call == nil || call.Status != CallCompleted {
			blocked[d.TaskID] = true
		}
	}

	var ready []string
	for _, task := range order {
		if !blocked[task] {
			ready = append(ready, task)
		}
	}
	return ready, nil
}

// CallChain returns the session's delegation calls in dispatch order.
func (g *Graph) CallChain(ctx context.Context, sessionID string) ([]Call, error) {
	return g.store.CallsForSession(ctx, sessionID)
}
