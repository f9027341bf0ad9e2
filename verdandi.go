package verdandi

import "context"

// Category groups node types by the role they play in a workflow graph.
type Category string

const (
	CategorySource  Category = "source"
	CategoryProcess Category = "process"
	CategoryControl Category = "control"
	CategoryOutput  Category = "output"
	CategoryAgent   Category = "agent"
)

// Node is the view of a workflow node an executor receives.
// The full entity lives in internal/storage; executors only need this slice of it.
type Node struct {
	ID             string
	Type           string
	Label          string
	Config         map[string]interface{}
	Credential     string // "provider/name" reference, optional
	TimeoutSeconds int
}

// ConfigString reads a string value from the node config.
func (n Node) ConfigString(key string) string {
	if n.Config == nil {
		return ""
	}
	s, _ := n.Config[key].(string)
	return s
}

// ConfigBool reads a boolean value from the node config. JSON decoding
// yields real booleans; the string forms cover hand-written configs.
func (n Node) ConfigBool(key string) bool {
	if n.Config == nil {
		return false
	}
	switch v := n.Config[key].(type) {
	case bool:
		return v
	case string:
		return v == "true" || v == "yes" || v == "1"
	default:
		return false
	}
}

// ExecContext carries per-run information into an executor.
type ExecContext struct {
	WorkflowID  string
	ExecutionID string
	Owner       string
	TriggerType string
	Logger      Logger
	Credentials CredentialResolver
}

// Executor performs the actual work of one node type.
// Implementations must honor ctx cancellation and return the node's output map.
type Executor interface {
	Execute(ctx context.Context, node Node, input map[string]interface{}, ec ExecContext) (map[string]interface{}, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, node Node, input map[string]interface{}, ec ExecContext) (map[string]interface{}, error)

func (f ExecutorFunc) Execute(ctx context.Context, node Node, input map[string]interface{}, ec ExecContext) (map[string]interface{}, error) {
	return f(ctx, node, input, ec)
}

// CredentialResolver resolves per-owner secrets, keyed by provider and name.
// Decryption happens behind this interface.
type CredentialResolver interface {
	Resolve(ctx context.Context, owner, provider, name string) (map[string]string, error)
}

// Logger defines the interface for logging in Verdandi.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// NopLogger discards everything. Useful as a default and in tests.
type NopLogger struct{}

func (NopLogger) Debug(string, ...interface{}) {}
func (NopLogger) Info(string, ...interface{})  {}
func (NopLogger) Warn(string, ...interface{})  {}
func (NopLogger) Error(string, ...interface{}) {}
