package worker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"

	"github.com/okanya/webagentd/internal/observability"
)

// maxToolOutputSize bounds what a single tool execution may feed back
// into the conversation.
const maxToolOutputSize = 10 * 1024 // 10KB

// ToolHandler is the function signature for tool execution.
type ToolHandler func(ctx context.Context, params map[string]interface{}) (string, error)

// ToolParameter describes one argument of a tool.
type ToolParameter struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
}

// ToolDefinition defines a tool's metadata and handler.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  []ToolParameter `json:"parameters"`
	Handler     ToolHandler     `json:"-"`
}

// ToolOutcome is what a tool execution feeds back to the model. A
// non-empty Error replaces Output in the conversation.
type ToolOutcome struct {
	Output    string `json:"output,omitempty"`
	Error     string `json:"error,omitempty"`
	Truncated bool   `json:"truncated,omitempty"`
}

// Content returns the text handed back to the model.
func (o ToolOutcome) Content() string {
	if o.Error != "" {
		return "Error: " + o.Error
	}
	return o.Output
}

// Registry holds the tools available to one worker, with compiled JSON
// Schemas for argument validation.
type Registry struct {
	tools   map[string]*ToolDefinition
	schemas map[string]*gojsonschema.Schema
	order   []string
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:   make(map[string]*ToolDefinition),
		schemas: make(map[string]*gojsonschema.Schema),
	}
}

// Register adds a tool and compiles its argument schema.
func (r *Registry) Register(def ToolDefinition) error {
	if def.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if def.Handler == nil {
		return fmt.Errorf("tool %s has no handler", def.Name)
	}
	if _, exists := r.tools[def.Name]; exists {
		return fmt.Errorf("tool %s already registered", def.Name)
	}

	schema, err := compileSchema(def)
	if err != nil {
		return fmt.Errorf("failed to compile schema for %s: %w", def.Name, err)
	}

	r.tools[def.Name] = &def
	r.schemas[def.Name] = schema
	r.order = append(r.order, def.Name)
	return nil
}

// Specs returns the provider-facing tool descriptions in registration
// order.
func (r *Registry) Specs() []ToolSpec {
	specs := make([]ToolSpec, 0, len(r.order))
	for _, name := range r.order {
		def := r.tools[name]

		properties := make(map[string]interface{})
		required := []string{}
		for _, param := range def.Parameters {
			properties[param.Name] = map[string]interface{}{
				"type":        param.Type,
				"description": param.Description,
			}
			if param.Required {
				required = append(required, param.Name)
			}
		}

		schema := map[string]interface{}{
			"type":       "object",
			"properties": properties,
		}
		if len(required) > 0 {
			schema["required"] = required
		}

		specs = append(specs, ToolSpec{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: schema,
		})
	}
	return specs
}

// Execute validates params against the tool's schema and runs its
// handler. Failures are reported in the outcome rather than as errors
// so the model can react to them.
func (r *Registry) Execute(ctx context.Context, name string, params map[string]interface{}) ToolOutcome {
	start := time.Now()

	def, exists := r.tools[name]
	if !exists {
		observability.RecordToolExecution(name, time.Since(start), false)
		return ToolOutcome{Error: fmt.Sprintf("unknown tool: %s", name)}
	}

	if err := r.validateParameters(name, params); err != nil {
		observability.RecordToolExecution(name, time.Since(start), false)
		return ToolOutcome{Error: fmt.Sprintf("invalid parameters: %v", err)}
	}

	output, err := def.Handler(ctx, params)
	duration := time.Since(start)
	observability.RecordToolExecution(name, duration, err == nil)

	if err != nil {
		log.Debug().
			Str("tool", name).
			Dur("duration", duration).
			Err(err).
			Msg("Tool execution failed")
		return ToolOutcome{Error: err.Error()}
	}

	truncated := false
	if len(output) > maxToolOutputSize {
		log.Warn().
			Str("tool", name).
			Int("original", len(output)).
			Int("truncated", maxToolOutputSize).
			Msg("Tool output truncated")
		output = output[:maxToolOutputSize] + "\n... [output truncated]"
		truncated = true
	}

	return ToolOutcome{Output: output, Truncated: truncated}
}

func (r *Registry) validateParameters(name string, params map[string]interface{}) error {
	schema := r.schemas[name]
	if schema == nil {
		return nil
	}
	if params == nil {
		params = map[string]interface{}{}
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(params))
	if err != nil {
		return err
	}

	if !result.Valid() {
		errors := []string{}
		for _, e := range result.Errors() {
			errors = append(errors, e.String())
		}
		return fmt.Errorf("%s", strings.Join(errors, "; "))
	}

	return nil
}

func compileSchema(def ToolDefinition) (*gojsonschema.Schema, error) {
	properties := make(map[string]interface{})
	required := []string{}

	for _, param := range def.Parameters {
		properties[param.Name] = map[string]interface{}{
			"type":        param.Type,
			"description": param.Description,
		}
		if param.Required {
			required = append(required, param.Name)
		}
	}

	schemaMap := map[string]interface{}{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           properties,
	}
	if len(required) > 0 {
		schemaMap["required"] = required
	}

	return gojsonschema.NewSchema(gojsonschema.NewGoLoader(schemaMap))
}
