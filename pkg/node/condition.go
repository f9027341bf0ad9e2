package node

import (
	"context"
	"fmt"

	"github.com/user/verdandi"
	"github.com/user/verdandi/pkg/evaluator"
)

// ConditionNode evaluates its configured check and forwards the input with a
// "passed" flag. Downstream connections typically gate on that flag.
type ConditionNode struct {
	sandbox SandboxEvaluator
}

func NewCondition(sb SandboxEvaluator) *ConditionNode {
	return &ConditionNode{sandbox: sb}
}

func (c *ConditionNode) Execute(ctx context.Context, node verdandi.Node, input map[string]interface{}, ec verdandi.ExecContext) (map[string]interface{}, error) {
	var passed bool
	var err error

	switch kind := node.ConfigString("kind"); kind {
	case "expression":
		if c.sandbox == nil {
			return nil, fmt.Errorf("condition node %s: no sandbox configured", node.ID)
		}
		passed, err = c.sandbox.EvalBool(ctx, node.ConfigString("expression"), input)
	case "comparison", "":
		passed, err = evaluator.Compare(input, node.ConfigString("field"), node.ConfigString("operator"), node.Config["value"])
	default:
		return nil, fmt.Errorf("unknown condition kind: %s", kind)
	}
	if err != nil {
		return nil, err
	}

	out := make(map[string]interface{}, len(input)+1)
	for k, v := range input {
		out[k] = v
	}
	out["passed"] = passed
	return out, nil
}
