package storage

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("not found")

// Workflow statuses.
const (
	WorkflowDraft    = "draft"
	WorkflowActive   = "active"
	WorkflowPaused   = "paused"
	WorkflowDisabled = "disabled"
)

// Trigger types.
const (
	TriggerManual   = "manual"
	TriggerSchedule = "schedule"
	TriggerWebhook  = "webhook"
	TriggerEvent    = "event"
	TriggerRetry    = "retry"
)

// Execution statuses.
const (
	ExecutionPending   = "pending"
	ExecutionRunning   = "running"
	ExecutionSuccess   = "success"
	ExecutionFailed    = "failed"
	ExecutionCancelled = "cancelled"
	ExecutionTimeout   = "timeout"
)

// Node log statuses.
const (
	NodeSuccess = "success"
	NodeFailed  = "failed"
	NodeSkipped = "skipped"
)

// WorkflowNode is one typed unit of work in a workflow graph.
type WorkflowNode struct {
	ID             string                 `json:"id"`
	Type           string                 `json:"type"`
	Label          string                 `json:"label"`
	Config         map[string]interface{} `json:"config,omitempty"`
	Credential     string                 `json:"credential,omitempty"` // "provider/name"
	Disabled       bool                   `json:"disabled,omitempty"`
	TimeoutSeconds int                    `json:"timeout_seconds,omitempty"`
	MaxRetries     int                    `json:"max_retries,omitempty"`
	X              float64                `json:"x"`
	Y              float64                `json:"y"`
}

// ConditionSpec gates a connection's contribution to its target.
type ConditionSpec struct {
	Kind       string      `json:"kind"` // "expression" or "comparison"
	Expression string      `json:"expression,omitempty"`
	Field      string      `json:"field,omitempty"`
	Operator   string      `json:"operator,omitempty"`
	Value      interface{} `json:"value,omitempty"`
}

// TransformSpec reshapes a connection's payload before merging.
type TransformSpec struct {
	Kind     string            `json:"kind"` // "fields", "shape" or "template"
	Fields   map[string]string `json:"fields,omitempty"`
	Shape    map[string]string `json:"shape,omitempty"`
	Template string            `json:"template,omitempty"`
}

// Connection is a directed edge between two nodes of the same workflow.
type Connection struct {
	ID           string         `json:"id"`
	SourceID     string         `json:"source_id"`
	TargetID     string         `json:"target_id"`
	SourceHandle string         `json:"source_handle,omitempty"`
	TargetHandle string         `json:"target_handle,omitempty"`
	Condition    *ConditionSpec `json:"condition,omitempty"`
	Transform    *TransformSpec `json:"transform,omitempty"`
}

// Workflow is a named, owned automation definition.
// Nodes and connections are authored by the API layer; the engine mutates a
// workflow only through run statistics, the cron watermark and forced disablement.
type Workflow struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Owner          string         `json:"owner"`
	Status         string         `json:"status"`
	TriggerType    string         `json:"trigger_type"`
	ScheduleCron   string         `json:"schedule_cron,omitempty"`
	TimeoutSeconds int            `json:"timeout_seconds,omitempty"`
	RetryOnFailure bool           `json:"retry_on_failure"`
	MaxRetries     int            `json:"max_retries"`
	Nodes          []WorkflowNode `json:"nodes"`
	Connections    []Connection   `json:"connections"`
	TotalRuns      int64          `json:"total_runs"`
	SuccessRuns    int64          `json:"success_runs"`
	FailedRuns     int64          `json:"failed_runs"`
	LastExecutedAt *time.Time     `json:"last_executed_at,omitempty"`
	AvgDurationMS  float64        `json:"average_duration_ms"`
	LastFiredAt    time.Time      `json:"last_fired_at,omitempty"` // cron watermark, zero = never
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Node returns the node with the given ID, or nil.
func (w *Workflow) Node(id string) *WorkflowNode {
	for i := range w.Nodes {
		if w.Nodes[i].ID == id {
			return &w.Nodes[i]
		}
	}
	return nil
}

// Incoming returns the connections targeting the given node, in authored order.
func (w *Workflow) Incoming(nodeID string) []Connection {
	var in []Connection
	for _, c := range w.Connections {
		if c.TargetID == nodeID {
			in = append(in, c)
		}
	}
	return in
}

// NodeLog is one ordered entry of an execution's per-node log.
type NodeLog struct {
	NodeID     string    `json:"node_id"`
	Label      string    `json:"label"`
	Type       string    `json:"type"`
	Status     string    `json:"status"`
	DurationMS int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Execution is one concrete run of a workflow.
type Execution struct {
	ID          string                 `json:"id"`
	WorkflowID  string                 `json:"workflow_id"`
	Status      string                 `json:"status"`
	TriggeredBy string                 `json:"triggered_by"`
	TriggerType string                 `json:"trigger_type"`
	StartedAt   time.Time              `json:"started_at"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	DurationMS  int64                  `json:"duration_ms"`
	Input       map[string]interface{} `json:"input,omitempty"`
	Output      map[string]interface{} `json:"output,omitempty"`
	Error       string                 `json:"error,omitempty"`
	Trace       string                 `json:"trace,omitempty"`
	NodeLogs    []NodeLog              `json:"node_logs,omitempty"`
}

// Terminal reports whether the execution reached a final status.
func (e *Execution) Terminal() bool {
	switch e.Status {
	case ExecutionSuccess, ExecutionFailed, ExecutionCancelled, ExecutionTimeout:
		return true
	}
	return false
}

// Credential is a per-owner secret bundle for one provider.
// Data values are encrypted at rest by the SQL layer.
type Credential struct {
	ID        string            `json:"id"`
	Owner     string            `json:"owner"`
	Provider  string            `json:"provider"`
	Name      string            `json:"name"`
	Data      map[string]string `json:"data"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// WorkflowFilter narrows ListWorkflows.
type WorkflowFilter struct {
	Owner       string
	Status      string
	TriggerType string
	Search      string
	Limit       int
	Offset      int
}

// ExecutionFilter narrows ListExecutions.
type ExecutionFilter struct {
	WorkflowID  string
	Status      string
	TriggerType string
	Limit       int
	Offset      int
}

// Storage is the persistence boundary for all entities.
type Storage interface {
	Init(ctx context.Context) error
	Close() error

	GetWorkflow(ctx context.Context, id string) (*Workflow, error)
	ListWorkflows(ctx context.Context, f WorkflowFilter) ([]*Workflow, error)
	SaveWorkflow(ctx context.Context, w *Workflow) error
	DeleteWorkflow(ctx context.Context, id string) error
	UpdateWorkflowStatus(ctx context.Context, id, status string) error

	// RecordWorkflowRun updates the rolling statistics in a single atomic
	// statement: total always increments; on success the success count,
	// last_executed_at and the running average move together.
	RecordWorkflowRun(ctx context.Context, id string, success bool, durationMS float64, at time.Time) error

	// AdvanceCronWatermark moves last_fired_at from the observed value to the
	// new one. Returns false without error when another poller won the race.
	AdvanceCronWatermark(ctx context.Context, id string, from, to time.Time) (bool, error)

	CreateExecution(ctx context.Context, e *Execution) error
	UpdateExecution(ctx context.Context, e *Execution) error
	GetExecution(ctx context.Context, id string) (*Execution, error)
	ListExecutions(ctx context.Context, f ExecutionFilter) ([]*Execution, error)
	CountExecutionsByTrigger(ctx context.Context, workflowID, triggerType string) (int, error)

	// PruneExecutions deletes records of the workflow older than the cutoff
	// while always keeping the most recent keep records. Returns rows deleted.
	PruneExecutions(ctx context.Context, workflowID string, before time.Time, keep int) (int64, error)

	GetCredential(ctx context.Context, owner, provider, name string) (*Credential, error)
	SaveCredential(ctx context.Context, c *Credential) error
	ListCredentials(ctx context.Context, owner string) ([]*Credential, error)
	DeleteCredential(ctx context.Context, id string) error
}
