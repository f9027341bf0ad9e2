package schema

import (
	"context"
	"testing"
)

const orderJSONSchema = `{
	"type": "object",
	"properties": {
		"order_id": {"type": "string"},
		"amount": {"type": "number"}
	},
	"required": ["order_id"]
}`

const orderAvroSchema = `{
	"type": "record",
	"name": "Order",
	"fields": [
		{"name": "order_id", "type": "string"},
		{"name": "amount", "type": "double"}
	]
}`

const orderProtoSchema = `syntax = "proto3";
message Order {
	string order_id = 1;
	double amount = 2;
}`

func TestJSONSchemaValidator(t *testing.T) {
	v, err := New(JSONSchema, orderJSONSchema)
	if err != nil {
		t.Fatalf("new validator: %v", err)
	}
	if v.Type() != JSONSchema {
		t.Errorf("unexpected type %s", v.Type())
	}

	ctx := context.Background()
	if err := v.Validate(ctx, map[string]interface{}{"order_id": "o-1", "amount": 10.5}); err != nil {
		t.Errorf("valid payload rejected: %v", err)
	}
	if err := v.Validate(ctx, map[string]interface{}{"amount": 10.5}); err == nil {
		t.Error("payload missing required field accepted")
	}
	if err := v.Validate(ctx, map[string]interface{}{"order_id": 7}); err == nil {
		t.Error("wrong field type accepted")
	}
}

func TestJSONSchemaValidatorBadSchema(t *testing.T) {
	if _, err := New(JSONSchema, `{"type": 12}`); err == nil {
		t.Error("invalid schema accepted")
	}
}

func TestAvroValidator(t *testing.T) {
	v, err := New(Avro, orderAvroSchema)
	if err != nil {
		t.Fatalf("new validator: %v", err)
	}

	ctx := context.Background()
	if err := v.Validate(ctx, map[string]interface{}{"order_id": "o-1", "amount": 10.5}); err != nil {
		t.Errorf("valid payload rejected: %v", err)
	}
	if err := v.Validate(ctx, map[string]interface{}{"order_id": "o-1", "amount": "lots"}); err == nil {
		t.Error("mistyped payload accepted")
	}
}

func TestAvroValidatorBadSchema(t *testing.T) {
	if _, err := New(Avro, `{"type": "wibble"}`); err == nil {
		t.Error("invalid schema accepted")
	}
}

func TestProtobufValidator(t *testing.T) {
	v, err := New(Protobuf, orderProtoSchema)
	if err != nil {
		t.Fatalf("new validator: %v", err)
	}

	ctx := context.Background()
	if err := v.Validate(ctx, map[string]interface{}{"order_id": "o-1", "amount": 10.5}); err != nil {
		t.Errorf("valid payload rejected: %v", err)
	}
	if err := v.Validate(ctx, map[string]interface{}{"order_id": "o-1", "unknown_field": true}); err == nil {
		t.Error("payload with unknown field accepted")
	}
}

func TestProtobufValidatorBadSchema(t *testing.T) {
	if _, err := New(Protobuf, `message {`); err == nil {
		t.Error("invalid proto source accepted")
	}
}

func TestUnsupportedType(t *testing.T) {
	if _, err := New("xml", "<xs:schema/>"); err == nil {
		t.Error("unsupported schema type accepted")
	}
}
