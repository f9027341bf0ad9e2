// Package schema validates incoming payloads against a declared shape
// before a workflow runs on them. Webhook nodes carry the schema inline
// in their config.
package schema

import (
	"context"
	"fmt"
)

// Type names a supported schema format.
type Type string

const (
	Avro       Type = "avro"
	JSONSchema Type = "json"
	Protobuf   Type = "protobuf"
)

// Validator checks a payload against one parsed schema.
type Validator interface {
	Validate(ctx context.Context, data map[string]interface{}) error
	Type() Type
}

// New parses the schema text and returns a validator for it.
func New(schemaType Type, schema string) (Validator, error) {
	switch schemaType {
	case Avro:
		return newAvroValidator(schema)
	case JSONSchema:
		return newJSONSchemaValidator(schema)
	case Protobuf:
		return newProtobufValidator(schema)
	default:
		return nil, fmt.Errorf("unsupported schema type: %s", schemaType)
	}
}
