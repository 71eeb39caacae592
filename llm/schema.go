package llm

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// SchemaFor derives a JSON schema for a tool's parameters from a Go
// struct, so tools can be declared from typed argument structs instead
// of hand-written schema documents. Field names follow the struct's
// json tags.
func SchemaFor(v any) (json.RawMessage, error) {
	r := &jsonschema.Reflector{
		Anonymous:                 true,
		DoNotReference:            true,
		AllowAdditionalProperties: false,
	}
	schema := r.Reflect(v)
	// The reflected version marker only adds noise inside a tool
	// declaration.
	schema.Version = ""
	data, err := json.Marshal(schema)
	if err != nil {
		return nil, NewInternalError("failed to marshal tool schema: " + err.Error())
	}
	return data, nil
}

// NewTool declares a function tool whose parameter schema is derived
// from the given argument struct.
func NewTool(name, description string, params any) (Tool, error) {
	schema, err := SchemaFor(params)
	if err != nil {
		return Tool{}, err
	}
	return Tool{
		Type: "function",
		Function: ToolFunction{
			Name:        name,
			Description: description,
			Parameters:  schema,
		},
	}, nil
}
