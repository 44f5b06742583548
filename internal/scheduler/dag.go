package scheduler

import (
	"fmt"
	"slices"

	"github.com/gammazero/toposort"
)

// Graph tracks the dependency edges of live (queued or running) tasks.
// It answers "who is waiting on X" after X finishes and rejects submissions that
// would close a cycle. Not safe for concurrent use; the engine loop owns it.
type Graph struct {
	deps       map[string][]string // taskID -> IDs it depends on
	dependents map[string][]string // taskID -> live tasks that depend on it
}

// NewGraph creates an empty dependency graph.
func NewGraph() *Graph {
	return &Graph{
		deps:       make(map[string][]string),
		dependents: make(map[string][]string),
	}
}

// Has reports whether the task is tracked as live.
func (g *Graph) Has(taskID string) bool {
	_, ok := g.deps[taskID]
	return ok
}

// Add registers a live task and its dependencies. Returns an error wrapping
// ErrDependencyCycle, leaving the graph untouched, if the task would close a cycle.
func (g *Graph) Add(taskID string, dependsOn []string) error {
	if _, exists := g.deps[taskID]; exists {
		return fmt.Errorf("task %q: %w", taskID, ErrDuplicateTask)
	}

	if len(dependsOn) > 0 {
		if _, err := g.order(taskID, dependsOn); err != nil {
			return fmt.Errorf("task %q: %w: %v", taskID, ErrDependencyCycle, err)
		}
	}

	g.deps[taskID] = slices.Clone(dependsOn)
	for _, depID := range dependsOn {
		g.dependents[depID] = append(g.dependents[depID], taskID)
	}
	return nil
}

// order topologically sorts the live graph plus a candidate node.
func (g *Graph) order(candidate string, candidateDeps []string) ([]string, error) {
	var edges []toposort.Edge
	addNode := func(taskID string, deps []string) {
		if len(deps) == 0 {
			edges = append(edges, toposort.Edge{nil, taskID})
			return
		}
		for _, depID := range deps {
			// Edge (depID, taskID): depID must finish before taskID
			edges = append(edges, toposort.Edge{depID, taskID})
		}
	}

	for taskID, deps := range g.deps {
		addNode(taskID, deps)
	}
	addNode(candidate, candidateDeps)

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		return nil, err
	}

	order := make([]string, 0, len(sorted))
	for _, id := range sorted {
		if id != nil {
			order = append(order, id.(string))
		}
	}
	return order, nil
}

// Remove forgets a task once it is terminal or cancelled. Tasks still depending on
// it keep their edges.
func (g *Graph) Remove(taskID string) {
	deps, ok := g.deps[taskID]
	if !ok {
		return
	}
	delete(g.deps, taskID)

	for _, depID := range deps {
		remaining := slices.DeleteFunc(g.dependents[depID], func(id string) bool {
			return id == taskID
		})
		if len(remaining) == 0 {
			delete(g.dependents, depID)
		} else {
			g.dependents[depID] = remaining
		}
	}
}

// Dependents returns the live tasks that list taskID as a dependency.
func (g *Graph) Dependents(taskID string) []string {
	return slices.Clone(g.dependents[taskID])
}

// Len returns the number of live tasks tracked.
func (g *Graph) Len() int {
	return len(g.deps)
}
