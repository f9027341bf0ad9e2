package node

import (
	"context"
	"fmt"

	"github.com/user/verdandi"
	"github.com/user/verdandi/pkg/schema"
)

// WebhookNode passes the trigger payload through, optionally checked
// against a schema declared in the node config. The API layer has already
// turned the HTTP request into the workflow input.
type WebhookNode struct{}

func NewWebhook() *WebhookNode {
	return &WebhookNode{}
}

func (wh *WebhookNode) Execute(ctx context.Context, node verdandi.Node, input map[string]interface{}, ec verdandi.ExecContext) (map[string]interface{}, error) {
	if input == nil {
		input = map[string]interface{}{}
	}
	if schemaText := node.ConfigString("schema"); schemaText != "" {
		schemaType := schema.Type(node.ConfigString("schema_type"))
		if schemaType == "" {
			schemaType = schema.JSONSchema
		}
		v, err := schema.New(schemaType, schemaText)
		if err != nil {
			return nil, fmt.Errorf("webhook node %s: %w", node.ID, err)
		}
		if err := v.Validate(ctx, input); err != nil {
			return nil, fmt.Errorf("webhook node %s: payload rejected: %w", node.ID, err)
		}
	}
	return input, nil
}
