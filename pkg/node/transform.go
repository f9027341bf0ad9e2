package node

import (
	"context"
	"fmt"

	"github.com/user/verdandi"
	"github.com/user/verdandi/pkg/evaluator"
	"github.com/user/verdandi/pkg/pii"
)

// TransformNode reshapes its input with the same kinds a connection
// transform supports.
type TransformNode struct {
	sandbox SandboxEvaluator
}

func NewTransform(sb SandboxEvaluator) *TransformNode {
	return &TransformNode{sandbox: sb}
}

func (t *TransformNode) Execute(ctx context.Context, node verdandi.Node, input map[string]interface{}, ec verdandi.ExecContext) (map[string]interface{}, error) {
	switch kind := node.ConfigString("kind"); kind {
	case "fields":
		return evaluator.Fields(input, stringMap(node.Config["fields"])), nil
	case "shape":
		return evaluator.Shape(input, stringMap(node.Config["shape"]))
	case "template":
		return map[string]interface{}{
			"result": evaluator.ResolveTemplate(node.ConfigString("template"), input),
		}, nil
	case "code":
		if t.sandbox == nil {
			return nil, fmt.Errorf("transform node %s: no sandbox configured", node.ID)
		}
		return t.sandbox.EvalTransform(ctx, node.ConfigString("code"), input)
	case "mask":
		return maskTransform(node, input)
	default:
		return nil, fmt.Errorf("unknown transform kind: %s", kind)
	}
}

// maskTransform scrubs string values. Mode "scan" replaces recognized PII
// patterns, "partial" and "email" keep enough to identify the value, and
// "redact" blanks everything.
func maskTransform(node verdandi.Node, input map[string]interface{}) (map[string]interface{}, error) {
	fields := stringList(node.Config["fields"])
	switch mode := node.ConfigString("mode"); mode {
	case "", "scan":
		scanners := pii.DefaultScanners
		if names := stringList(node.Config["scanners"]); len(names) > 0 {
			var err error
			scanners, err = pii.Named(names)
			if err != nil {
				return nil, fmt.Errorf("transform node %s: %w", node.ID, err)
			}
		}
		return pii.NewEngine(scanners...).MaskPayload(input, fields), nil
	case "partial":
		return pii.MaskPayloadWith(input, fields, pii.MaskPartial), nil
	case "email":
		return pii.MaskPayloadWith(input, fields, pii.MaskEmail), nil
	case "redact":
		return pii.MaskPayloadWith(input, fields, func(string) string { return "****" }), nil
	default:
		return nil, fmt.Errorf("transform node %s: unknown mask mode %q", node.ID, mode)
	}
}

// stringList narrows a decoded JSON config array to its string elements.
func stringList(v interface{}) []string {
	items, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// stringMap narrows a decoded JSON config map to string values.
func stringMap(v interface{}) map[string]string {
	m, ok := v.(map[string]interface{})
	if !ok {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, val := range m {
		if s, ok := val.(string); ok {
			out[k] = s
		}
	}
	return out
}
