// Package node ships the built-in executors behind the engine's closed
// node-type set. Each executor takes its external dependencies through a
// constructor so tests can swap in fakes.
package node

import (
	"context"
	"database/sql"
	"net/http"
	"strings"

	"github.com/gsoultan/gsmail"
	"github.com/user/verdandi"
)

// Registry is the slice of the engine's registry the executors bind against.
type Registry interface {
	Register(nodeType string, ex verdandi.Executor) error
}

// SandboxEvaluator runs user expressions inside the restricted Lua sandbox.
type SandboxEvaluator interface {
	EvalBool(ctx context.Context, expr string, payload map[string]interface{}) (bool, error)
	EvalTransform(ctx context.Context, code string, payload map[string]interface{}) (map[string]interface{}, error)
}

// Options carries the shared dependencies of the built-in executors.
// Zero values fall back to production defaults.
type Options struct {
	HTTPClient *http.Client
	OpenDB     func(driver, dsn string) (*sql.DB, error)
	Sender     gsmail.Sender
	Sandbox    SandboxEvaluator
	BaseDir    string
	AIBaseURL  string
	AIModel    string
}

// RegisterDefaults binds every built-in executor to its node type.
func RegisterDefaults(reg Registry, opts Options) error {
	httpNode := NewHTTP(opts.HTTPClient)
	bindings := map[string]verdandi.Executor{
		"source.http":       httpNode,
		"output.http":       httpNode,
		"source.database":   NewDatabase(opts.OpenDB),
		"source.webhook":    NewWebhook(),
		"process.transform": NewTransform(opts.Sandbox),
		"control.condition": NewCondition(opts.Sandbox),
		"control.delay":     NewDelay(),
		"output.email":      NewEmail(opts.Sender),
		"output.file":       NewFile(opts.BaseDir),
		"agent.generate":    NewGenerate(opts.HTTPClient, opts.AIBaseURL, opts.AIModel),
	}
	for nodeType, ex := range bindings {
		if err := reg.Register(nodeType, ex); err != nil {
			return err
		}
	}
	return nil
}

// splitCredential breaks a "provider/name" reference into its parts.
func splitCredential(ref string) (provider, name string) {
	if i := strings.Index(ref, "/"); i >= 0 {
		return ref[:i], ref[i+1:]
	}
	return ref, ""
}

// resolveCredential loads the node's credential bundle, or nil when the node
// carries no reference.
func resolveCredential(ctx context.Context, node verdandi.Node, ec verdandi.ExecContext) (map[string]string, error) {
	if node.Credential == "" || ec.Credentials == nil {
		return nil, nil
	}
	provider, name := splitCredential(node.Credential)
	return ec.Credentials.Resolve(ctx, ec.Owner, provider, name)
}
