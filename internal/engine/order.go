package engine

import (
	"sort"

	"github.com/user/verdandi/internal/storage"
)

// ExecutionOrder returns the workflow's node IDs in dependency order using
// Kahn's algorithm: every connection's source precedes its target. Ready
// nodes are consumed in sorted ID order, so the result is deterministic.
// Connections referencing unknown nodes are ignored here; the validator
// reports them.
func ExecutionOrder(w *storage.Workflow) ([]string, error) {
	indegree := make(map[string]int, len(w.Nodes))
	for i := range w.Nodes {
		indegree[w.Nodes[i].ID] = 0
	}

	adj := make(map[string][]string)
	for _, c := range w.Connections {
		if _, ok := indegree[c.SourceID]; !ok {
			continue
		}
		if _, ok := indegree[c.TargetID]; !ok {
			continue
		}
		adj[c.SourceID] = append(adj[c.SourceID], c.TargetID)
		indegree[c.TargetID]++
	}

	ready := make([]string, 0, len(indegree))
	for id, deg := range indegree {
		if deg == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(indegree))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)

		freed := false
		for _, next := range adj[id] {
			indegree[next]--
			if indegree[next] == 0 {
				ready = append(ready, next)
				freed = true
			}
		}
		if freed {
			sort.Strings(ready)
		}
	}

	if len(order) != len(indegree) {
		seen := make(map[string]bool, len(order))
		for _, id := range order {
			seen[id] = true
		}
		var remaining []string
		for id := range indegree {
			if !seen[id] {
				remaining = append(remaining, id)
			}
		}
		sort.Strings(remaining)
		return nil, &CycleError{Remaining: remaining}
	}
	return order, nil
}
