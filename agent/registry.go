package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/hayride-dev/hayride-go/domain/entities"
	domainerrors "github.com/hayride-dev/hayride-go/domain/errors"
	"github.com/hayride-dev/hayride-go/domain/ports"
	jsv "github.com/santhosh-tekuri/jsonschema/v5"
)

type registeredTool struct {
	schema   entities.ToolSchema
	provider ports.ToolProvider
	params   *jsv.Schema
}

// ToolRegistry is an immutable set of tools keyed by name.
// Once created via NewToolRegistry, tools cannot be added or removed, so
// lookups during a conversation need no locking.
type ToolRegistry struct {
	tools map[string]*registeredTool
	names []string
}

type toolRegistryBuilder struct {
	tools  map[string]*registeredTool
	errors []error
}

// ToolOption registers tools during registry construction.
type ToolOption func(*toolRegistryBuilder)

// NewToolRegistry creates an immutable ToolRegistry. Returns the first
// registration error: an empty or duplicate name, a nil provider, or a
// params-schema that does not compile.
//
// Example usage:
//
//	tools, err := agent.NewToolRegistry(
//	    agent.WithFunc("clock", "Current time", nowTool),
//	    agent.WithTools(schemas, agent.NewSiloDispatcher(manager, siloID)),
//	)
func NewToolRegistry(opts ...ToolOption) (*ToolRegistry, error) {
	b := &toolRegistryBuilder{tools: make(map[string]*registeredTool)}
	for _, opt := range opts {
		opt(b)
	}
	if len(b.errors) > 0 {
		return nil, b.errors[0]
	}

	names := make([]string, 0, len(b.tools))
	for name := range b.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return &ToolRegistry{tools: b.tools, names: names}, nil
}

func (b *toolRegistryBuilder) add(schema entities.ToolSchema, provider ports.ToolProvider) error {
	name := strings.TrimSpace(schema.Name)
	if name == "" {
		return &domainerrors.ConfigError{Kind: domainerrors.KindInvalid, Field: "tool.name", Err: fmt.Errorf("tool name is empty")}
	}
	if provider == nil {
		return &domainerrors.ConfigError{Kind: domainerrors.KindInvalid, Field: "tool.provider", Err: fmt.Errorf("tool %s has no provider", name)}
	}
	if _, exists := b.tools[name]; exists {
		return &domainerrors.ConfigError{Kind: domainerrors.KindInvalid, Field: "tool.name", Err: fmt.Errorf("tool %s already registered", name)}
	}
	params, err := compileSchema(name, schema.ParamsSchema)
	if err != nil {
		return &domainerrors.SchemaError{Type: name, Err: err}
	}
	schema.Name = name
	if schema.ID == "" {
		schema.ID = toolID(name)
	}
	b.tools[name] = &registeredTool{schema: schema, provider: provider, params: params}
	return nil
}

// toolID derives a stable id for tools that do not bring their own.
func toolID(name string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("hayride:tool/"+name)).String()
}

// WithTool registers one tool served by provider.
func WithTool(schema entities.ToolSchema, provider ports.ToolProvider) ToolOption {
	return func(b *toolRegistryBuilder) {
		if err := b.add(schema, provider); err != nil {
			b.errors = append(b.errors, err)
		}
	}
}

// WithTools registers several tools served by the same provider, typically
// every tool a component silo advertises.
func WithTools(schemas []entities.ToolSchema, provider ports.ToolProvider) ToolOption {
	return func(b *toolRegistryBuilder) {
		for _, s := range schemas {
			if err := b.add(s, provider); err != nil {
				b.errors = append(b.errors, err)
			}
		}
	}
}

// WithRegistry copies every tool of r, keeping its providers. A nil r adds
// nothing.
func WithRegistry(r *ToolRegistry) ToolOption {
	return func(b *toolRegistryBuilder) {
		if r == nil {
			return
		}
		for _, name := range r.names {
			t := r.tools[name]
			if _, exists := b.tools[name]; exists {
				b.errors = append(b.errors, &domainerrors.ConfigError{Kind: domainerrors.KindInvalid, Field: "tool.name", Err: fmt.Errorf("tool %s already registered", name)})
				continue
			}
			b.tools[name] = t
		}
	}
}

// WithFunc registers a host Go function as a tool. The params-schema is
// reflected from In; arguments are decoded into In before fn runs. A string
// Out is returned as is, anything else is JSON encoded.
func WithFunc[In, Out any](name, description string, fn func(ctx context.Context, in In) (Out, error)) ToolOption {
	return func(b *toolRegistryBuilder) {
		var zero In
		raw, err := GenerateSchema(zero)
		if err != nil {
			b.errors = append(b.errors, &domainerrors.SchemaError{Err: fmt.Errorf("tool %s: %w", name, err)})
			return
		}
		provider := &funcProvider[In, Out]{fn: fn}
		if err := b.add(entities.ToolSchema{Name: name, Description: description, ParamsSchema: string(raw)}, provider); err != nil {
			b.errors = append(b.errors, err)
			return
		}
		provider.params = b.tools[strings.TrimSpace(name)].params
	}
}

// Names returns the sorted tool names.
func (r *ToolRegistry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Schemas returns the tool descriptors sorted by name, as advertised to the
// model.
func (r *ToolRegistry) Schemas() []entities.ToolSchema {
	out := make([]entities.ToolSchema, 0, len(r.names))
	for _, name := range r.names {
		out = append(out, r.tools[name].schema)
	}
	return out
}

// Lookup returns the descriptor of a tool.
func (r *ToolRegistry) Lookup(name string) (entities.ToolSchema, bool) {
	t, ok := r.tools[name]
	if !ok {
		return entities.ToolSchema{}, false
	}
	return t.schema, true
}

// Len returns the number of tools.
func (r *ToolRegistry) Len() int {
	return len(r.names)
}

// Validate checks the arguments of input against the tool's params-schema.
func (r *ToolRegistry) Validate(input *entities.ToolInput) error {
	t, ok := r.tools[input.Name]
	if !ok {
		return &domainerrors.ToolError{Tool: input.Name, CallID: input.ID, Err: domainerrors.ErrToolNotFound}
	}
	if t.params == nil {
		return nil
	}
	if err := t.params.Validate(decodeArguments(input.Arguments(), t.params)); err != nil {
		return &domainerrors.ToolError{Tool: input.Name, CallID: input.ID, Err: &domainerrors.SchemaError{Type: input.Name, Err: err}}
	}
	return nil
}

// Call validates input and hands it to the tool's provider. Failures are
// returned as *errors.ToolError.
func (r *ToolRegistry) Call(ctx context.Context, input *entities.ToolInput) (entities.ToolOutput, error) {
	if err := r.Validate(input); err != nil {
		return entities.ToolOutput{}, err
	}
	out, err := r.tools[input.Name].provider.Call(ctx, input)
	if err != nil {
		return entities.ToolOutput{}, &domainerrors.ToolError{Tool: input.Name, CallID: input.ID, Err: err}
	}
	out.ID = input.ID
	if out.Name == "" {
		out.Name = input.Name
	}
	if out.ContentType == "" {
		out.ContentType = "text/plain"
	}
	return out, nil
}

var _ ports.ToolProvider = (*ToolRegistry)(nil)

type funcProvider[In, Out any] struct {
	fn     func(ctx context.Context, in In) (Out, error)
	params *jsv.Schema
}

func (p *funcProvider[In, Out]) Call(ctx context.Context, input *entities.ToolInput) (entities.ToolOutput, error) {
	raw, err := json.Marshal(decodeArguments(input.Arguments(), p.params))
	if err != nil {
		return entities.ToolOutput{}, fmt.Errorf("encode arguments: %w", err)
	}
	var in In
	if err := json.Unmarshal(raw, &in); err != nil {
		return entities.ToolOutput{}, fmt.Errorf("decode arguments: %w", err)
	}
	result, err := p.fn(ctx, in)
	if err != nil {
		return entities.ToolOutput{}, err
	}
	if s, ok := any(result).(string); ok {
		return entities.ToolOutput{ContentType: "text/plain", Output: s}, nil
	}
	encoded, err := json.Marshal(result)
	if err != nil {
		return entities.ToolOutput{}, fmt.Errorf("encode result: %w", err)
	}
	return entities.ToolOutput{ContentType: "application/json", Output: string(encoded)}, nil
}
