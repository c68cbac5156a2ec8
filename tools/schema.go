package tools

import (
	"encoding/json"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/kairoslabs/delegate/internal/errs"
)

// CompileInputSchema validates that raw is well-formed JSON Schema, for
// callers (such as the MCP catalog builder) that only need to know whether
// a discovered tool's schema compiles, not dispatch against it.
func CompileInputSchema(raw any) (*jsonschema.Resolved, error) {
	return compileSchema(raw)
}

// compileSchema turns a tool's InputSchema — ordinarily a map[string]any
// decoded off JSON, occasionally an already-typed *jsonschema.Schema — into
// a Resolved schema ready to validate call arguments against. A nil or
// empty schema resolves to nil, meaning "no constraints".
func compileSchema(raw any) (*jsonschema.Resolved, error) {
	if raw == nil {
		return nil, nil
	}
	var schema jsonschema.Schema
	switch v := raw.(type) {
	case *jsonschema.Schema:
		if v == nil {
			return nil, nil
		}
		schema = *v
	case map[string]any:
		if len(v) == 0 {
			return nil, nil
		}
		data, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, &schema); err != nil {
			return nil, err
		}
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, &schema); err != nil {
			return nil, err
		}
	}
	return schema.Resolve(nil)
}

// validateArgs checks args against a tool's resolved input schema, wrapping
// any mismatch as a ToolArgError so it reaches the model as a tool result
// the same way every hand-written field check elsewhere in this package
// does, rather than as a raw jsonschema-go validation error.
func validateArgs(op string, resolved *jsonschema.Resolved, args map[string]any) error {
	if resolved == nil {
		return nil
	}
	if err := resolved.Validate(args); err != nil {
		return errs.Wrap(errs.KindToolArgError, op, err)
	}
	return nil
}
