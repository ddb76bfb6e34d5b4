package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"voicebot/internal/domain"
)

// SchemaValidatingTool wraps a Tool with JSON Schema validation.
// On Execute, it validates params against the compiled schema before delegating.
type SchemaValidatingTool struct {
	inner  domain.Tool
	schema *jsonschema.Schema
}

// WithSchemaValidation wraps a tool so that Execute validates params against
// the tool's JSON Schema before forwarding to the inner tool.
// Returns error if the schema is missing or fails to compile.
func WithSchemaValidation(t domain.Tool) (*SchemaValidatingTool, error) {
	raw := t.Schema().Parameters
	if len(raw) == 0 || string(raw) == "null" {
		return nil, fmt.Errorf("tool %q declares no parameter schema", t.Name())
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("add schema resource for %q: %w", t.Name(), err)
	}
	compiled, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema for %q: %w", t.Name(), err)
	}

	return &SchemaValidatingTool{inner: t, schema: compiled}, nil
}

func (s *SchemaValidatingTool) Name() string              { return s.inner.Name() }
func (s *SchemaValidatingTool) Description() string       { return s.inner.Description() }
func (s *SchemaValidatingTool) Schema() domain.ToolSchema { return s.inner.Schema() }

// Execute rejects arguments that do not match the schema with an error
// result naming the first offending location. The inner tool is not called.
func (s *SchemaValidatingTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	if len(bytes.TrimSpace(params)) == 0 {
		params = json.RawMessage(`{}`)
	}

	var v any
	if err := json.Unmarshal(params, &v); err != nil {
		return invalidArgs(fmt.Sprintf("invalid JSON: %v", err)), nil
	}

	if err := s.schema.Validate(v); err != nil {
		return invalidArgs(validationReason(err)), nil
	}

	return s.inner.Execute(ctx, params)
}

func invalidArgs(reason string) *domain.ToolResult {
	return &domain.ToolResult{IsError: true, Content: fmt.Sprintf(invalidArgsFormat, reason)}
}

// validationReason reduces a schema validation error to its deepest cause.
func validationReason(err error) string {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return err.Error()
	}
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	loc := strings.TrimPrefix(ve.InstanceLocation, "/")
	if loc == "" {
		return ve.Message
	}
	return loc + ": " + ve.Message
}
