package engine

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/robfig/cron/v3"
	"github.com/user/verdandi"
	"github.com/user/verdandi/internal/storage"
	"github.com/user/verdandi/pkg/evaluator"
	"github.com/user/verdandi/pkg/pii"
	"github.com/user/verdandi/pkg/sandbox"
	"github.com/user/verdandi/pkg/schema"
	"github.com/xeipuuv/gojsonschema"
)

// Per-type config schemas. The validator layers semantic checks (URL syntax,
// SQL denylist, expression safety, cron grammar) on top of these shapes.
var nodeConfigSchemas = map[string]string{
	"source.http": `{
		"type": "object",
		"properties": {
			"url": {"type": "string", "minLength": 1},
			"method": {"type": "string"},
			"headers": {"type": "object"}
		},
		"required": ["url"]
	}`,
	"source.database": `{
		"type": "object",
		"properties": {
			"driver": {"type": "string"},
			"query": {"type": "string", "minLength": 1}
		},
		"required": ["query"]
	}`,
	"source.webhook": `{
		"type": "object",
		"properties": {
			"schema_type": {"type": "string", "enum": ["json", "avro", "protobuf"]},
			"schema": {"type": "string"}
		}
	}`,
	"process.transform": `{
		"type": "object",
		"properties": {
			"kind": {"type": "string", "enum": ["fields", "shape", "template", "code", "mask"]}
		},
		"required": ["kind"]
	}`,
	"control.condition": `{"type": "object"}`,
	"control.delay": `{
		"type": "object",
		"properties": {
			"seconds": {"type": "number", "minimum": 0}
		},
		"required": ["seconds"]
	}`,
	"output.email": `{
		"type": "object",
		"properties": {
			"to": {"type": "string", "minLength": 1},
			"subject": {"type": "string"}
		},
		"required": ["to"]
	}`,
	"output.http": `{
		"type": "object",
		"properties": {
			"url": {"type": "string", "minLength": 1},
			"method": {"type": "string"}
		},
		"required": ["url"]
	}`,
	"output.file": `{
		"type": "object",
		"properties": {
			"path": {"type": "string", "minLength": 1}
		},
		"required": ["path"]
	}`,
	"agent.generate": `{
		"type": "object",
		"properties": {
			"prompt": {"type": "string", "minLength": 1},
			"model": {"type": "string"}
		},
		"required": ["prompt"]
	}`,
}

// destructiveSQL is a heuristic filter, not a parser. Query nodes are
// read-only by contract; anything matching here is refused outright.
var destructiveSQL = regexp.MustCompile(`(?i)\b(drop|truncate|delete|update|insert|create|alter|exec|grant|revoke|sp_executesql|xp_cmdshell)\b`)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// Validator checks workflows structurally and per node type. It returns
// human-readable problems rather than failing fast, so callers can show
// everything wrong at once.
type Validator struct {
	schemas map[string]*gojsonschema.Schema
}

func NewValidator() (*Validator, error) {
	schemas := make(map[string]*gojsonschema.Schema, len(nodeConfigSchemas))
	for nodeType, doc := range nodeConfigSchemas {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(doc))
		if err != nil {
			return nil, fmt.Errorf("failed to compile schema for %s: %w", nodeType, err)
		}
		schemas[nodeType] = schema
	}
	return &Validator{schemas: schemas}, nil
}

// Validate returns the list of problems with the workflow; an empty list
// means it is valid.
func (v *Validator) Validate(w *storage.Workflow) []string {
	var problems []string

	if strings.TrimSpace(w.Name) == "" {
		problems = append(problems, "workflow name is required")
	}
	if len(w.Nodes) == 0 {
		problems = append(problems, "workflow must have at least one node")
		return problems
	}

	seen := make(map[string]bool, len(w.Nodes))
	for i := range w.Nodes {
		node := &w.Nodes[i]
		if node.ID == "" {
			problems = append(problems, fmt.Sprintf("node %d has no id", i))
			continue
		}
		if seen[node.ID] {
			problems = append(problems, fmt.Sprintf("duplicate node id %s", node.ID))
			continue
		}
		seen[node.ID] = true

		if node.Type == "" {
			problems = append(problems, fmt.Sprintf("node %s has no type", node.ID))
			continue
		}
		if _, ok := CategoryOf(node.Type); !ok {
			problems = append(problems, fmt.Sprintf("node %s has unknown type %s", node.ID, node.Type))
			continue
		}
		problems = append(problems, v.validateNodeConfig(node)...)
	}

	connected := make(map[string]bool)
	for _, conn := range w.Connections {
		if !seen[conn.SourceID] {
			problems = append(problems, fmt.Sprintf("connection %s refers to missing source node %s", conn.ID, conn.SourceID))
			continue
		}
		if !seen[conn.TargetID] {
			problems = append(problems, fmt.Sprintf("connection %s refers to missing target node %s", conn.ID, conn.TargetID))
			continue
		}
		if conn.SourceID == conn.TargetID {
			problems = append(problems, fmt.Sprintf("connection %s is a self-loop on node %s", conn.ID, conn.SourceID))
			continue
		}
		connected[conn.SourceID] = true
		connected[conn.TargetID] = true
		problems = append(problems, v.validateConnection(&conn)...)
	}

	if len(w.Nodes) > 1 {
		for i := range w.Nodes {
			if id := w.Nodes[i].ID; id != "" && !connected[id] {
				problems = append(problems, fmt.Sprintf("node %s is not connected to any other node", id))
			}
		}
	}

	if _, err := ExecutionOrder(w); err != nil {
		problems = append(problems, err.Error())
	}

	if w.TriggerType == storage.TriggerSchedule {
		if strings.TrimSpace(w.ScheduleCron) == "" {
			problems = append(problems, "schedule-triggered workflow needs a cron expression")
		} else if _, err := cron.ParseStandard(w.ScheduleCron); err != nil {
			problems = append(problems, fmt.Sprintf("invalid cron expression %q: %v", w.ScheduleCron, err))
		}
	}

	return problems
}

func (v *Validator) validateNodeConfig(node *storage.WorkflowNode) []string {
	var problems []string

	if schema, ok := v.schemas[node.Type]; ok {
		config := node.Config
		if config == nil {
			config = map[string]interface{}{}
		}
		result, err := schema.Validate(gojsonschema.NewGoLoader(config))
		if err != nil {
			problems = append(problems, fmt.Sprintf("node %s: config rejected: %v", node.ID, err))
			return problems
		}
		for _, resErr := range result.Errors() {
			problems = append(problems, fmt.Sprintf("node %s: %s", node.ID, resErr))
		}
		if len(problems) > 0 {
			return problems
		}
	}

	vn := verdandi.Node{Config: node.Config}
	cfg := vn.ConfigString

	switch node.Type {
	case "source.http", "output.http":
		if problem := checkURL(cfg("url")); problem != "" {
			problems = append(problems, fmt.Sprintf("node %s: %s", node.ID, problem))
		}
	case "source.webhook":
		if text := cfg("schema"); text != "" {
			schemaType := schema.Type(cfg("schema_type"))
			if schemaType == "" {
				schemaType = schema.JSONSchema
			}
			if _, err := schema.New(schemaType, text); err != nil {
				problems = append(problems, fmt.Sprintf("node %s: %v", node.ID, err))
			}
		}
	case "source.database":
		if destructiveSQL.MatchString(cfg("query")) {
			problems = append(problems, fmt.Sprintf("node %s: query contains a destructive keyword", node.ID))
		}
		switch driver := cfg("driver"); driver {
		case "", "sqlite", "postgres", "pgx", "mysql", "sqlserver", "mssql", "clickhouse", "oracle", "snowflake":
		default:
			problems = append(problems, fmt.Sprintf("node %s: unknown driver %q", node.ID, driver))
		}
	case "output.email":
		for _, addr := range strings.Split(cfg("to"), ",") {
			addr = strings.TrimSpace(addr)
			if addr == "" || !emailPattern.MatchString(addr) {
				problems = append(problems, fmt.Sprintf("node %s: invalid recipient %q", node.ID, addr))
			}
		}
	case "agent.generate":
		if strings.TrimSpace(cfg("prompt")) == "" {
			problems = append(problems, fmt.Sprintf("node %s: prompt must not be blank", node.ID))
		}
	case "process.transform":
		switch cfg("kind") {
		case "code":
			if err := sandbox.CheckExpr(cfg("code")); err != nil {
				problems = append(problems, fmt.Sprintf("node %s: unsafe code: %v", node.ID, err))
			}
		case "mask":
			switch mode := cfg("mode"); mode {
			case "", "scan", "partial", "email", "redact":
			default:
				problems = append(problems, fmt.Sprintf("node %s: unknown mask mode %q", node.ID, mode))
			}
			if names, ok := node.Config["scanners"].([]interface{}); ok {
				for _, name := range names {
					s, _ := name.(string)
					if _, err := pii.Named([]string{s}); err != nil {
						problems = append(problems, fmt.Sprintf("node %s: %v", node.ID, err))
					}
				}
			}
		}
	case "control.condition":
		spec := &storage.ConditionSpec{
			Kind:       cfg("kind"),
			Expression: cfg("expression"),
			Field:      cfg("field"),
			Operator:   cfg("operator"),
		}
		for _, problem := range validateCondition(spec) {
			problems = append(problems, fmt.Sprintf("node %s: %s", node.ID, problem))
		}
	}
	return problems
}

func (v *Validator) validateConnection(conn *storage.Connection) []string {
	var problems []string

	if conn.Condition != nil {
		for _, problem := range validateCondition(conn.Condition) {
			problems = append(problems, fmt.Sprintf("connection %s: %s", conn.ID, problem))
		}
	}
	if t := conn.Transform; t != nil {
		switch t.Kind {
		case "fields":
			if len(t.Fields) == 0 {
				problems = append(problems, fmt.Sprintf("connection %s: fields transform needs a field map", conn.ID))
			}
		case "shape":
			if len(t.Shape) == 0 {
				problems = append(problems, fmt.Sprintf("connection %s: shape transform needs a shape map", conn.ID))
			}
		case "template":
			if t.Template == "" {
				problems = append(problems, fmt.Sprintf("connection %s: template transform needs a template", conn.ID))
			}
		case "code":
			if err := sandbox.CheckExpr(t.Template); err != nil {
				problems = append(problems, fmt.Sprintf("connection %s: unsafe code: %v", conn.ID, err))
			}
		default:
			problems = append(problems, fmt.Sprintf("connection %s: unknown transform kind %q", conn.ID, t.Kind))
		}
	}
	return problems
}

func validateCondition(c *storage.ConditionSpec) []string {
	var problems []string
	switch c.Kind {
	case "expression":
		if err := sandbox.CheckExpr(c.Expression); err != nil {
			problems = append(problems, fmt.Sprintf("unsafe condition: %v", err))
		}
	case "comparison", "":
		if strings.TrimSpace(c.Field) == "" {
			problems = append(problems, "comparison condition needs a field")
		}
		if !evaluator.KnownOperator(c.Operator) {
			problems = append(problems, fmt.Sprintf("unknown operator %q", c.Operator))
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown condition kind %q", c.Kind))
	}
	return problems
}

func checkURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Sprintf("invalid url %q", raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Sprintf("url %q must be http or https", raw)
	}
	if u.Host == "" {
		return fmt.Sprintf("url %q has no host", raw)
	}
	return ""
}
