package engine

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/user/verdandi"
)

func noopExecutor() verdandi.Executor {
	return verdandi.ExecutorFunc(func(ctx context.Context, node verdandi.Node, input map[string]interface{}, ec verdandi.ExecContext) (map[string]interface{}, error) {
		return map[string]interface{}{}, nil
	})
}

func TestRegistryClosedSet(t *testing.T) {
	r := NewRegistry()
	for _, nodeType := range NodeTypes() {
		if err := r.Register(nodeType, noopExecutor()); err != nil {
			t.Fatalf("failed to register %s: %v", nodeType, err)
		}
	}
	err := r.Register("source.carrier_pigeon", noopExecutor())
	if err == nil {
		t.Fatal("expected registration outside the closed set to fail")
	}
	var unknownErr *UnknownNodeTypeError
	if !errors.As(err, &unknownErr) || unknownErr.Type != "source.carrier_pigeon" {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRegistryResolveUnbound(t *testing.T) {
	r := NewRegistry()
	_, err := r.Resolve("output.email")
	var unknownErr *UnknownNodeTypeError
	if !errors.As(err, &unknownErr) {
		t.Fatalf("expected *UnknownNodeTypeError, got %v", err)
	}

	if err := r.Register("output.email", noopExecutor()); err != nil {
		t.Fatalf("failed to register: %v", err)
	}
	if _, err := r.Resolve("output.email"); err != nil {
		t.Fatalf("failed to resolve registered type: %v", err)
	}
}

func TestNodeTypesSorted(t *testing.T) {
	types := NodeTypes()
	if len(types) != 10 {
		t.Fatalf("expected 10 node types, got %d: %v", len(types), types)
	}
	if !sort.StringsAreSorted(types) {
		t.Fatalf("node types not sorted: %v", types)
	}
}

func TestCategoryOf(t *testing.T) {
	tests := []struct {
		nodeType string
		want     verdandi.Category
		ok       bool
	}{
		{"source.http", verdandi.CategorySource, true},
		{"process.transform", verdandi.CategoryProcess, true},
		{"control.delay", verdandi.CategoryControl, true},
		{"output.file", verdandi.CategoryOutput, true},
		{"agent.generate", verdandi.CategoryAgent, true},
		{"sink.kafka", "", false},
	}
	for _, tt := range tests {
		got, ok := CategoryOf(tt.nodeType)
		if ok != tt.ok || got != tt.want {
			t.Fatalf("CategoryOf(%s) = %v, %v; want %v, %v", tt.nodeType, got, ok, tt.want, tt.ok)
		}
	}
}
