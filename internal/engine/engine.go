// Package engine orders workflow graphs, resolves data flow between nodes
// and runs them through registered executors. One run is strictly
// sequential; concurrency lives in the dispatcher above it.
package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/user/verdandi"
	"github.com/user/verdandi/internal/events"
	"github.com/user/verdandi/internal/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Trigger describes what caused a run. A non-empty ID pins the execution
// record's ID so the enqueuing side can hand it out before the run starts.
type Trigger struct {
	ID   string
	By   string
	Type string
}

// Default execution budgets, applied when the workflow or node does not set
// its own.
const (
	defaultRunTimeout  = time.Hour
	defaultNodeTimeout = 2 * time.Minute
)

// Engine runs workflows: order the graph, execute nodes one at a time,
// log every step, finalize exactly one execution record per run.
type Engine struct {
	storage  storage.Storage
	registry *Registry
	inputs   *InputResolver
	creds    verdandi.CredentialResolver
	logger   verdandi.Logger
	tracer   trace.Tracer
	events   *events.Hub
}

func New(s storage.Storage, reg *Registry, inputs *InputResolver, creds verdandi.CredentialResolver, logger verdandi.Logger) *Engine {
	if logger == nil {
		logger = verdandi.NopLogger{}
	}
	return &Engine{
		storage:  s,
		registry: reg,
		inputs:   inputs,
		creds:    creds,
		logger:   logger,
		tracer:   otel.Tracer("verdandi/engine"),
	}
}

// SetEvents makes the engine publish execution progress to the hub. Without
// one, runs stay silent.
func (e *Engine) SetEvents(hub *events.Hub) {
	e.events = hub
}

func (e *Engine) publish(ev events.Event) {
	if e.events != nil {
		e.events.Publish(ev)
	}
}

// Run executes the workflow and always returns a terminal execution record,
// never an error and never a panic. Persistence failures along the way are
// logged and the in-memory record is still returned, so every caller can
// report a result unconditionally.
func (e *Engine) Run(ctx context.Context, w *storage.Workflow, input map[string]interface{}, trig Trigger) (exec *storage.Execution) {
	started := time.Now().UTC()
	executionID := trig.ID
	if executionID == "" {
		executionID = uuid.NewString()
	}
	exec = &storage.Execution{
		ID:          executionID,
		WorkflowID:  w.ID,
		Status:      storage.ExecutionPending,
		TriggeredBy: trig.By,
		TriggerType: trig.Type,
		StartedAt:   started,
		Input:       input,
	}
	if err := e.storage.CreateExecution(ctx, exec); err != nil {
		e.logger.Error("failed to create execution record", "workflow_id", w.ID, "error", err)
	}

	ctx, span := e.tracer.Start(ctx, "workflow.run", trace.WithAttributes(
		attribute.String("workflow.id", w.ID),
		attribute.String("workflow.name", w.Name),
		attribute.String("trigger.type", trig.Type),
	))
	defer func() {
		span.SetAttributes(attribute.String("execution.status", exec.Status))
		span.End()
	}()

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("workflow run panicked", "workflow_id", w.ID, "panic", r)
			e.finalize(w, exec, started, storage.ExecutionFailed,
				fmt.Sprintf("panic: %v", r), string(debug.Stack()))
		}
	}()

	exec.Status = storage.ExecutionRunning
	if err := e.storage.UpdateExecution(ctx, exec); err != nil {
		e.logger.Error("failed to mark execution running", "execution_id", exec.ID, "error", err)
	}
	e.publish(events.Event{ExecutionID: exec.ID, WorkflowID: w.ID, Status: exec.Status})

	budget := defaultRunTimeout
	if w.TimeoutSeconds > 0 {
		budget = time.Duration(w.TimeoutSeconds) * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	order, err := ExecutionOrder(w)
	if err != nil {
		e.finalize(w, exec, started, storage.ExecutionFailed, err.Error(), "")
		return exec
	}

	outputs := make(map[string]map[string]interface{}, len(order))
	for _, nodeID := range order {
		node := w.Node(nodeID)
		if node == nil {
			continue
		}

		// the workflow budget and caller cancellation are checked between
		// nodes; a node cut off mid-flight reports its own failure first
		if err := runCtx.Err(); err != nil {
			status := storage.ExecutionCancelled
			msg := "workflow cancelled"
			if errors.Is(err, context.DeadlineExceeded) {
				status = storage.ExecutionTimeout
				msg = fmt.Sprintf("workflow timed out after %s", budget)
			}
			e.finalize(w, exec, started, status, msg, "")
			return exec
		}

		if node.Disabled {
			exec.NodeLogs = append(exec.NodeLogs, storage.NodeLog{
				NodeID:    node.ID,
				Label:     node.Label,
				Type:      node.Type,
				Status:    storage.NodeSkipped,
				Timestamp: time.Now().UTC(),
			})
			continue
		}

		nodeInput := e.inputs.Resolve(runCtx, w, node.ID, input, outputs)
		out, nodeErr := e.runNode(runCtx, w, node, nodeInput, exec, trig)
		if nodeErr != nil {
			if !w.RetryOnFailure {
				e.finalize(w, exec, started, storage.ExecutionFailed,
					fmt.Sprintf("node %s failed: %v", node.ID, nodeErr), "")
				return exec
			}
			// keep going; downstream inputs simply omit this node
			continue
		}
		outputs[node.ID] = out
	}

	exec.Output = collectOutput(w, order, outputs)
	e.finalize(w, exec, started, storage.ExecutionSuccess, "", "")
	return exec
}

func (e *Engine) runNode(ctx context.Context, w *storage.Workflow, node *storage.WorkflowNode, input map[string]interface{}, exec *storage.Execution, trig Trigger) (map[string]interface{}, error) {
	budget := defaultNodeTimeout
	if node.TimeoutSeconds > 0 {
		budget = time.Duration(node.TimeoutSeconds) * time.Second
	}
	nodeCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	nodeCtx, span := e.tracer.Start(nodeCtx, "node.execute", trace.WithAttributes(
		attribute.String("node.id", node.ID),
		attribute.String("node.type", node.Type),
	))
	defer span.End()

	nodeStart := time.Now()
	entry := storage.NodeLog{
		NodeID:    node.ID,
		Label:     node.Label,
		Type:      node.Type,
		Timestamp: nodeStart.UTC(),
	}

	var out map[string]interface{}
	ex, err := e.registry.Resolve(node.Type)
	if err == nil {
		ec := verdandi.ExecContext{
			WorkflowID:  w.ID,
			ExecutionID: exec.ID,
			Owner:       w.Owner,
			TriggerType: trig.Type,
			Logger:      e.logger,
			Credentials: e.creds,
		}
		out, err = ex.Execute(nodeCtx, toNode(node), input, ec)
	}

	entry.DurationMS = time.Since(nodeStart).Milliseconds()
	if err != nil {
		entry.Status = storage.NodeFailed
		entry.Error = err.Error()
		span.RecordError(err)
	} else {
		entry.Status = storage.NodeSuccess
	}
	exec.NodeLogs = append(exec.NodeLogs, entry)
	NodeExecutionsTotal.WithLabelValues(node.Type, entry.Status).Inc()
	e.publish(events.Event{
		ExecutionID: exec.ID,
		WorkflowID:  w.ID,
		Status:      entry.Status,
		NodeID:      node.ID,
		NodeType:    node.Type,
		Error:       entry.Error,
	})

	if err != nil {
		e.logger.Warn("node execution failed",
			"workflow_id", w.ID, "node_id", node.ID, "node_type", node.Type, "error", err)
		return nil, err
	}
	return out, nil
}

// collectOutput picks the run's output. One output-category node gives its
// map directly; several are keyed by node ID; none falls back to the output
// of the last completed node.
func collectOutput(w *storage.Workflow, order []string, outputs map[string]map[string]interface{}) map[string]interface{} {
	var outputNodes []string
	for _, id := range order {
		node := w.Node(id)
		if node == nil {
			continue
		}
		if cat, ok := CategoryOf(node.Type); !ok || cat != verdandi.CategoryOutput {
			continue
		}
		if _, ok := outputs[id]; ok {
			outputNodes = append(outputNodes, id)
		}
	}

	switch len(outputNodes) {
	case 0:
		for i := len(order) - 1; i >= 0; i-- {
			if out, ok := outputs[order[i]]; ok {
				return out
			}
		}
		return map[string]interface{}{}
	case 1:
		return outputs[outputNodes[0]]
	default:
		byNode := make(map[string]interface{}, len(outputNodes))
		for _, id := range outputNodes {
			byNode[id] = outputs[id]
		}
		return byNode
	}
}

// finalize moves the record to a terminal status exactly once and folds the
// run into the workflow statistics. It uses a fresh persistence context
// since the run context may already be dead.
func (e *Engine) finalize(w *storage.Workflow, exec *storage.Execution, started time.Time, status, errMsg, stack string) {
	if exec.Terminal() {
		return
	}
	completed := time.Now().UTC()
	exec.Status = status
	exec.CompletedAt = &completed
	exec.DurationMS = completed.Sub(started).Milliseconds()
	exec.Error = errMsg
	exec.Trace = stack

	pctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.storage.UpdateExecution(pctx, exec); err != nil {
		e.logger.Error("failed to finalize execution", "execution_id", exec.ID, "error", err)
	}
	success := status == storage.ExecutionSuccess
	if err := e.storage.RecordWorkflowRun(pctx, w.ID, success, float64(exec.DurationMS), completed); err != nil {
		e.logger.Error("failed to record workflow run", "workflow_id", w.ID, "error", err)
	}
	e.publish(events.Event{ExecutionID: exec.ID, WorkflowID: w.ID, Status: status, Error: errMsg})

	ExecutionsTotal.WithLabelValues(status, exec.TriggerType).Inc()
	ExecutionDuration.Observe(completed.Sub(started).Seconds())
}

func toNode(n *storage.WorkflowNode) verdandi.Node {
	return verdandi.Node{
		ID:             n.ID,
		Type:           n.Type,
		Label:          n.Label,
		Config:         n.Config,
		Credential:     n.Credential,
		TimeoutSeconds: n.TimeoutSeconds,
	}
}
