package engine

import (
	"context"
	"fmt"

	"github.com/user/verdandi"
	"github.com/user/verdandi/internal/storage"
	"github.com/user/verdandi/pkg/evaluator"
	"github.com/user/verdandi/pkg/sandbox"
)

// InputResolver assembles a node's input payload from the outputs of its
// completed upstream nodes.
type InputResolver struct {
	sandbox *sandbox.Evaluator
	logger  verdandi.Logger
}

func NewInputResolver(sb *sandbox.Evaluator, logger verdandi.Logger) *InputResolver {
	if logger == nil {
		logger = verdandi.NopLogger{}
	}
	return &InputResolver{sandbox: sb, logger: logger}
}

// Resolve merges the contributions of every incoming connection. A node with
// no incoming connections receives the workflow input. Each contribution is
// transformed first, then gated by its condition; a false or failing
// condition drops it. Map contributions merge key by key with the last
// writer winning; anything else lands under the connection's source handle,
// or the source node ID when no handle is set.
func (r *InputResolver) Resolve(ctx context.Context, w *storage.Workflow, nodeID string, workflowInput map[string]interface{}, outputs map[string]map[string]interface{}) map[string]interface{} {
	incoming := w.Incoming(nodeID)
	if len(incoming) == 0 {
		if workflowInput == nil {
			return map[string]interface{}{}
		}
		return workflowInput
	}

	merged := make(map[string]interface{})
	for _, conn := range incoming {
		out, ok := outputs[conn.SourceID]
		if !ok {
			// upstream failed or was skipped, nothing to contribute
			continue
		}

		payload, err := r.applyTransform(ctx, conn.Transform, out)
		if err != nil {
			r.logger.Warn("transform failed, dropping contribution",
				"workflow_id", w.ID, "connection_id", conn.ID, "error", err)
			continue
		}

		if conn.Condition != nil {
			pass, err := r.evalCondition(ctx, conn.Condition, asMap(payload, conn))
			if err != nil {
				r.logger.Warn("condition evaluation failed, treating as false",
					"workflow_id", w.ID, "connection_id", conn.ID, "error", err)
				continue
			}
			if !pass {
				continue
			}
		}

		if m, isMap := payload.(map[string]interface{}); isMap {
			for k, v := range m {
				merged[k] = v
			}
			continue
		}
		merged[contributionKey(conn)] = payload
	}
	return merged
}

func contributionKey(conn storage.Connection) string {
	if conn.SourceHandle != "" {
		return conn.SourceHandle
	}
	return conn.SourceID
}

// asMap gives the condition something addressable even when the transform
// produced a scalar.
func asMap(payload interface{}, conn storage.Connection) map[string]interface{} {
	if m, ok := payload.(map[string]interface{}); ok {
		return m
	}
	return map[string]interface{}{contributionKey(conn): payload}
}

func (r *InputResolver) applyTransform(ctx context.Context, t *storage.TransformSpec, out map[string]interface{}) (interface{}, error) {
	if t == nil {
		return out, nil
	}
	switch t.Kind {
	case "fields":
		return evaluator.Fields(out, t.Fields), nil
	case "shape":
		return evaluator.Shape(out, t.Shape)
	case "template":
		return evaluator.ResolveTemplate(t.Template, out), nil
	case "code":
		return r.sandbox.EvalTransform(ctx, t.Template, out)
	default:
		return nil, fmt.Errorf("unknown transform kind: %s", t.Kind)
	}
}

func (r *InputResolver) evalCondition(ctx context.Context, c *storage.ConditionSpec, payload map[string]interface{}) (bool, error) {
	switch c.Kind {
	case "expression":
		return r.sandbox.EvalBool(ctx, c.Expression, payload)
	case "comparison", "":
		return evaluator.Compare(payload, c.Field, c.Operator, c.Value)
	default:
		return false, fmt.Errorf("unknown condition kind: %s", c.Kind)
	}
}
