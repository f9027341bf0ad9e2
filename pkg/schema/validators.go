package schema

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hamba/avro/v2"
	"github.com/jhump/protoreflect/desc"
	"github.com/jhump/protoreflect/desc/protoparse"
	"github.com/jhump/protoreflect/dynamic"
	"github.com/xeipuuv/gojsonschema"
)

type avroValidator struct {
	schema avro.Schema
}

func newAvroValidator(schemaStr string) (*avroValidator, error) {
	s, err := avro.Parse(schemaStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse avro schema: %w", err)
	}
	return &avroValidator{schema: s}, nil
}

// Validate encodes the payload against the schema; whatever does not fit
// the declared record surfaces as a marshal error.
func (v *avroValidator) Validate(ctx context.Context, data map[string]interface{}) error {
	if _, err := avro.Marshal(v.schema, data); err != nil {
		return fmt.Errorf("avro validation failed: %w", err)
	}
	return nil
}

func (v *avroValidator) Type() Type { return Avro }

type jsonSchemaValidator struct {
	schema *gojsonschema.Schema
}

func newJSONSchemaValidator(schemaStr string) (*jsonSchemaValidator, error) {
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemaStr))
	if err != nil {
		return nil, fmt.Errorf("failed to parse JSON schema: %w", err)
	}
	return &jsonSchemaValidator{schema: compiled}, nil
}

func (v *jsonSchemaValidator) Validate(ctx context.Context, data map[string]interface{}) error {
	result, err := v.schema.Validate(gojsonschema.NewGoLoader(data))
	if err != nil {
		return fmt.Errorf("JSON schema validation error: %w", err)
	}
	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, resErr := range result.Errors() {
			problems = append(problems, resErr.String())
		}
		return fmt.Errorf("JSON schema validation failed: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (v *jsonSchemaValidator) Type() Type { return JSONSchema }

type protobufValidator struct {
	descriptor *desc.MessageDescriptor
}

// newProtobufValidator parses schemaStr as .proto source. The first
// message type declared in it is the one payloads are checked against.
func newProtobufValidator(schemaStr string) (*protobufValidator, error) {
	parser := protoparse.Parser{
		Accessor: protoparse.FileContentsFromMap(map[string]string{
			"schema.proto": schemaStr,
		}),
	}
	fds, err := parser.ParseFiles("schema.proto")
	if err != nil {
		return nil, fmt.Errorf("failed to parse protobuf schema: %w", err)
	}
	if len(fds) == 0 {
		return nil, fmt.Errorf("no descriptors found in protobuf schema")
	}
	msgs := fds[0].GetMessageTypes()
	if len(msgs) == 0 {
		return nil, fmt.Errorf("no message types found in protobuf schema")
	}
	return &protobufValidator{descriptor: msgs[0]}, nil
}

func (v *protobufValidator) Validate(ctx context.Context, data map[string]interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal data for protobuf validation: %w", err)
	}
	msg := dynamic.NewMessage(v.descriptor)
	if err := msg.UnmarshalJSON(raw); err != nil {
		return fmt.Errorf("protobuf validation failed: %w", err)
	}
	return nil
}

func (v *protobufValidator) Type() Type { return Protobuf }
