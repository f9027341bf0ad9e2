package node

import (
	"context"
	"strings"
	"testing"

	"github.com/user/verdandi"
)

const hookSchema = `{
	"type": "object",
	"required": ["event"],
	"properties": {
		"event": {"type": "string"},
		"count": {"type": "number"}
	}
}`

func webhookNode(config map[string]interface{}) verdandi.Node {
	return verdandi.Node{ID: "hook", Type: "source.webhook", Config: config}
}

func TestWebhookPassthrough(t *testing.T) {
	input := map[string]interface{}{"event": "created", "count": float64(2)}
	out, err := NewWebhook().Execute(context.Background(), webhookNode(nil), input, testEC(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out["event"] != "created" || out["count"] != float64(2) {
		t.Errorf("payload not forwarded: %v", out)
	}
}

func TestWebhookNilInput(t *testing.T) {
	out, err := NewWebhook().Execute(context.Background(), webhookNode(nil), nil, testEC(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out == nil || len(out) != 0 {
		t.Errorf("expected empty payload, got %v", out)
	}
}

func TestWebhookSchemaAccepts(t *testing.T) {
	n := webhookNode(map[string]interface{}{"schema": hookSchema})
	input := map[string]interface{}{"event": "created"}
	out, err := NewWebhook().Execute(context.Background(), n, input, testEC(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out["event"] != "created" {
		t.Errorf("payload not forwarded: %v", out)
	}
}

func TestWebhookSchemaRejects(t *testing.T) {
	n := webhookNode(map[string]interface{}{"schema": hookSchema})
	_, err := NewWebhook().Execute(context.Background(), n, map[string]interface{}{"count": float64(1)}, testEC(nil))
	if err == nil || !strings.Contains(err.Error(), "payload rejected") {
		t.Errorf("expected rejection, got %v", err)
	}
}

func TestWebhookSchemaTypeAvro(t *testing.T) {
	avro := `{"type": "record", "name": "Hook", "fields": [{"name": "event", "type": "string"}]}`
	n := webhookNode(map[string]interface{}{"schema": avro, "schema_type": "avro"})
	if _, err := NewWebhook().Execute(context.Background(), n, map[string]interface{}{"event": "created"}, testEC(nil)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := NewWebhook().Execute(context.Background(), n, map[string]interface{}{"event": float64(3)}, testEC(nil)); err == nil {
		t.Error("expected avro rejection for non-string event")
	}
}

func TestWebhookBadSchema(t *testing.T) {
	n := webhookNode(map[string]interface{}{"schema": `{"type": 12}`})
	_, err := NewWebhook().Execute(context.Background(), n, map[string]interface{}{"event": "x"}, testEC(nil))
	if err == nil {
		t.Error("expected schema construction error")
	}
}
