package tool

import (
	"fmt"

	"voicebot/internal/domain"
)

// Registry is the fixed set of tools exposed to the completion service.
// It is built once and never mutated, so lookups need no locking.
type Registry struct {
	tools   map[string]domain.Tool
	order   []string
	schemas []domain.ToolSchema
}

// NewRegistry wraps every tool with strict schema validation and indexes it
// by name. Duplicate names, non-strict declarations and schemas that do not
// compile fail construction.
func NewRegistry(tools ...domain.Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]domain.Tool, len(tools))}
	for _, t := range tools {
		name := t.Name()
		if _, exists := r.tools[name]; exists {
			return nil, fmt.Errorf("tool %q already registered", name)
		}
		schema := t.Schema()
		if !schema.Strict {
			return nil, fmt.Errorf("tool %q must declare a strict schema", name)
		}
		wrapped, err := WithSchemaValidation(t)
		if err != nil {
			return nil, err
		}
		r.tools[name] = wrapped
		r.order = append(r.order, name)
		r.schemas = append(r.schemas, schema)
	}
	return r, nil
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) (domain.Tool, error) {
	t, ok := r.tools[name]
	if !ok {
		return nil, domain.NewDomainError("Registry.Get", domain.ErrToolNotFound, name)
	}
	return t, nil
}

// Names returns tool names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Schemas returns the declarations in registration order.
func (r *Registry) Schemas() []domain.ToolSchema {
	return append([]domain.ToolSchema(nil), r.schemas...)
}
