package engine

import (
	"strings"
	"testing"

	"github.com/user/verdandi/internal/storage"
)

func newTestValidator(t *testing.T) *Validator {
	t.Helper()
	v, err := NewValidator()
	if err != nil {
		t.Fatalf("failed to build validator: %v", err)
	}
	return v
}

func validWorkflow() *storage.Workflow {
	return &storage.Workflow{
		ID: "wf", Name: "report pipeline", Owner: "tester",
		Status: storage.WorkflowActive, TriggerType: storage.TriggerManual,
		Nodes: []storage.WorkflowNode{
			{ID: "pull", Type: "source.http", Config: map[string]interface{}{"url": "https://api.example.com/items"}},
			{ID: "shape", Type: "process.transform", Config: map[string]interface{}{"kind": "fields", "fields": map[string]interface{}{"n": "count"}}},
			{ID: "mail", Type: "output.email", Config: map[string]interface{}{"to": "ops@example.com", "subject": "report"}},
		},
		Connections: []storage.Connection{
			{ID: "c1", SourceID: "pull", TargetID: "shape"},
			{ID: "c2", SourceID: "shape", TargetID: "mail"},
		},
	}
}

func TestValidateAccepts(t *testing.T) {
	v := newTestValidator(t)
	if problems := v.Validate(validWorkflow()); len(problems) != 0 {
		t.Fatalf("expected no problems, got %v", problems)
	}
}

func TestValidateRejects(t *testing.T) {
	v := newTestValidator(t)

	tests := []struct {
		name   string
		mutate func(w *storage.Workflow)
		want   string
	}{
		{
			"blank name",
			func(w *storage.Workflow) { w.Name = "   " },
			"workflow name is required",
		},
		{
			"no nodes",
			func(w *storage.Workflow) { w.Nodes = nil; w.Connections = nil },
			"at least one node",
		},
		{
			"duplicate node id",
			func(w *storage.Workflow) { w.Nodes = append(w.Nodes, storage.WorkflowNode{ID: "pull", Type: "source.http"}) },
			"duplicate node id pull",
		},
		{
			"missing node id",
			func(w *storage.Workflow) { w.Nodes[0].ID = "" },
			"has no id",
		},
		{
			"unknown node type",
			func(w *storage.Workflow) { w.Nodes[0].Type = "source.carrier_pigeon" },
			"unknown type source.carrier_pigeon",
		},
		{
			"missing url",
			func(w *storage.Workflow) { delete(w.Nodes[0].Config, "url") },
			"url is required",
		},
		{
			"ftp url",
			func(w *storage.Workflow) { w.Nodes[0].Config["url"] = "ftp://example.com/items" },
			"must be http or https",
		},
		{
			"unknown transform kind",
			func(w *storage.Workflow) { w.Nodes[1].Config["kind"] = "teleport" },
			"node shape:",
		},
		{
			"webhook schema does not parse",
			func(w *storage.Workflow) {
				w.Nodes = append(w.Nodes, storage.WorkflowNode{
					ID: "hook", Type: "source.webhook",
					Config: map[string]interface{}{"schema": `{"type": 12}`},
				})
				w.Connections = append(w.Connections, storage.Connection{ID: "c-hook", SourceID: "hook", TargetID: "shape"})
			},
			"failed to parse JSON schema",
		},
		{
			"unknown mask mode",
			func(w *storage.Workflow) {
				w.Nodes[1].Config = map[string]interface{}{"kind": "mask", "mode": "rot13"}
			},
			`unknown mask mode "rot13"`,
		},
		{
			"unknown mask scanner",
			func(w *storage.Workflow) {
				w.Nodes[1].Config = map[string]interface{}{"kind": "mask", "scanners": []interface{}{"dna"}}
			},
			"unknown pii scanner: dna",
		},
		{
			"unknown database driver",
			func(w *storage.Workflow) {
				w.Nodes = append(w.Nodes, storage.WorkflowNode{
					ID: "db", Type: "source.database",
					Config: map[string]interface{}{"driver": "db2", "query": "SELECT 1"},
				})
				w.Connections = append(w.Connections, storage.Connection{ID: "c-db", SourceID: "db", TargetID: "shape"})
			},
			`unknown driver "db2"`,
		},
		{
			"bad email recipient",
			func(w *storage.Workflow) { w.Nodes[2].Config["to"] = "ops@example.com, not-an-address" },
			`invalid recipient "not-an-address"`,
		},
		{
			"dangling connection source",
			func(w *storage.Workflow) { w.Connections[0].SourceID = "ghost" },
			"missing source node ghost",
		},
		{
			"self loop",
			func(w *storage.Workflow) { w.Connections[0].TargetID = "pull" },
			"self-loop",
		},
		{
			"cycle",
			func(w *storage.Workflow) {
				w.Connections = append(w.Connections, storage.Connection{ID: "back", SourceID: "mail", TargetID: "pull"})
			},
			"cycle detected",
		},
		{
			"isolated node",
			func(w *storage.Workflow) {
				w.Nodes = append(w.Nodes, storage.WorkflowNode{ID: "loner", Type: "source.webhook"})
			},
			"node loner is not connected",
		},
		{
			"schedule without cron",
			func(w *storage.Workflow) { w.TriggerType = storage.TriggerSchedule },
			"needs a cron expression",
		},
		{
			"invalid cron",
			func(w *storage.Workflow) {
				w.TriggerType = storage.TriggerSchedule
				w.ScheduleCron = "every full moon"
			},
			"invalid cron expression",
		},
		{
			"unknown condition operator",
			func(w *storage.Workflow) {
				w.Connections[0].Condition = &storage.ConditionSpec{Field: "n", Operator: "resembles"}
			},
			`unknown operator "resembles"`,
		},
		{
			"comparison without field",
			func(w *storage.Workflow) {
				w.Connections[0].Condition = &storage.ConditionSpec{Operator: "equals"}
			},
			"needs a field",
		},
		{
			"unsafe condition expression",
			func(w *storage.Workflow) {
				w.Connections[0].Condition = &storage.ConditionSpec{Kind: "expression", Expression: `os.getenv("HOME") ~= nil`}
			},
			"unsafe condition",
		},
		{
			"unsafe code transform",
			func(w *storage.Workflow) {
				w.Connections[0].Transform = &storage.TransformSpec{Kind: "code", Template: `os.execute("rm -rf /")`}
			},
			"unsafe code",
		},
		{
			"template transform without template",
			func(w *storage.Workflow) {
				w.Connections[0].Transform = &storage.TransformSpec{Kind: "template"}
			},
			"needs a template",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := validWorkflow()
			tt.mutate(w)
			problems := v.Validate(w)
			if len(problems) == 0 {
				t.Fatalf("expected a problem containing %q, got none", tt.want)
			}
			for _, p := range problems {
				if strings.Contains(p, tt.want) {
					return
				}
			}
			t.Fatalf("no problem contains %q: %v", tt.want, problems)
		})
	}
}

func TestValidateSafeExpressionAccepted(t *testing.T) {
	v := newTestValidator(t)
	w := validWorkflow()
	w.Connections[0].Condition = &storage.ConditionSpec{
		Kind:       "expression",
		Expression: "data.count > 10 and string.len(data.name) < 64",
	}
	if problems := v.Validate(w); len(problems) != 0 {
		t.Fatalf("expected no problems, got %v", problems)
	}
}

func TestValidateDestructiveQuery(t *testing.T) {
	v := newTestValidator(t)
	w := validWorkflow()
	w.Nodes[0] = storage.WorkflowNode{
		ID: "pull", Type: "source.database",
		Config: map[string]interface{}{"query": "DELETE FROM users"},
	}
	problems := v.Validate(w)
	found := false
	for _, p := range problems {
		if strings.Contains(p, "destructive keyword") {
			found = true
		}
	}
	if !found {
		t.Fatalf("destructive query not rejected: %v", problems)
	}

	w.Nodes[0].Config["query"] = "SELECT id, name FROM users WHERE active = 1"
	if problems := v.Validate(w); len(problems) != 0 {
		t.Fatalf("read-only query rejected: %v", problems)
	}
}

func TestValidateScheduleCronAccepted(t *testing.T) {
	v := newTestValidator(t)
	w := validWorkflow()
	w.TriggerType = storage.TriggerSchedule
	w.ScheduleCron = "*/5 * * * *"
	if problems := v.Validate(w); len(problems) != 0 {
		t.Fatalf("expected no problems, got %v", problems)
	}
}
