package artifact

import (
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
)

// BuildFormSchema generates a JSON-schema plus UI-widget hints for a
// form-like artifact's data, inferred from its property names and value
// types, grounded on the same recursive properties-map walking idiom
// the pack's MCP-to-tool-spec converters use for JSON-schema input
// shapes (property name -> kind, nested object -> recurse), applied here
// in the opposite direction: native Go values -> schema, rather than
// schema -> native types.
func BuildFormSchema(data map[string]any) (*jsonschema.Schema, map[string]string) {
	return schemaFor(data), widgetHints(data)
}

func schemaFor(data map[string]any) *jsonschema.Schema {
	schema := &jsonschema.Schema{Type: "object", Properties: map[string]*jsonschema.Schema{}}
	var required []string
	for name, val := range data {
		prop, isRequired := propertyFor(val)
		schema.Properties[name] = prop
		if isRequired {
			required = append(required, name)
		}
	}
	schema.Required = required
	return schema
}

// propertyFor infers one property's schema from its native Go value.
// isRequired is true for string, bool and number fields; arrays (empty or
// not), nested objects and values of any other type are treated as optional.
func propertyFor(val any) (*jsonschema.Schema, bool) {
	switch v := val.(type) {
	case string:
		return &jsonschema.Schema{Type: "string"}, true
	case bool:
		return &jsonschema.Schema{Type: "boolean"}, true
	case float64:
		return &jsonschema.Schema{Type: "number"}, true
	case []any:
		item := &jsonschema.Schema{Type: "string"}
		if len(v) > 0 {
			item, _ = propertyFor(v[0])
		}
		return &jsonschema.Schema{Type: "array", Items: item}, false
	case map[string]any:
		return schemaFor(v), false
	default:
		return &jsonschema.Schema{Type: "string"}, false
	}
}

// widgetHints maps each property name to a UI widget hint, inferred first
// from the property name's vocabulary (password/email/color/date/url),
// then falling back to its value type.
func widgetHints(data map[string]any) map[string]string {
	hints := make(map[string]string, len(data))
	for name, val := range data {
		hints[name] = widgetFor(name, val)
	}
	return hints
}

func widgetFor(name string, val any) string {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "password"):
		return "password"
	case strings.Contains(lower, "email"):
		return "email"
	case strings.Contains(lower, "color"):
		return "color"
	case strings.Contains(lower, "date"):
		return "date"
	case strings.Contains(lower, "url"), strings.Contains(lower, "link"):
		return "url"
	}
	switch val.(type) {
	case bool:
		return "checkbox"
	case []any:
		return "multiselect"
	case map[string]any:
		return "group"
	case float64:
		return "number"
	default:
		return "text"
	}
}
