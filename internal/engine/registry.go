package engine

import (
	"sort"
	"sync"

	"github.com/user/verdandi"
)

// nodeCategories is the closed set of node types the engine understands.
// Executors register against these tags; anything else is an
// UnknownNodeTypeError at both registration and dispatch.
var nodeCategories = map[string]verdandi.Category{
	"source.http":       verdandi.CategorySource,
	"source.database":   verdandi.CategorySource,
	"source.webhook":    verdandi.CategorySource,
	"process.transform": verdandi.CategoryProcess,
	"control.condition": verdandi.CategoryControl,
	"control.delay":     verdandi.CategoryControl,
	"output.email":      verdandi.CategoryOutput,
	"output.http":       verdandi.CategoryOutput,
	"output.file":       verdandi.CategoryOutput,
	"agent.generate":    verdandi.CategoryAgent,
}

// CategoryOf returns the category of a node type from the closed set.
func CategoryOf(nodeType string) (verdandi.Category, bool) {
	c, ok := nodeCategories[nodeType]
	return c, ok
}

// NodeTypes returns the closed set of node types, sorted.
func NodeTypes() []string {
	types := make([]string, 0, len(nodeCategories))
	for t := range nodeCategories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Registry binds node types to their executors.
type Registry struct {
	mu        sync.RWMutex
	executors map[string]verdandi.Executor
}

func NewRegistry() *Registry {
	return &Registry{executors: make(map[string]verdandi.Executor)}
}

// Register binds an executor to a node type from the closed set.
func (r *Registry) Register(nodeType string, ex verdandi.Executor) error {
	if _, ok := nodeCategories[nodeType]; !ok {
		return &UnknownNodeTypeError{Type: nodeType}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[nodeType] = ex
	return nil
}

// Resolve returns the executor bound to the node type.
func (r *Registry) Resolve(nodeType string) (verdandi.Executor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ex, ok := r.executors[nodeType]
	if !ok {
		return nil, &UnknownNodeTypeError{Type: nodeType}
	}
	return ex, nil
}
