package tools

import (
	"context"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/kairoslabs/delegate/internal/errs"
)

func configDefinitions() []*Definition {
	return []*Definition{
		readConfigDef(),
		updateConfigDef(),
	}
}

func readConfigDef() *Definition {
	return &Definition{
		Name:        "read_config",
		Description: "Read a key from the delegation engine's YAML config file, returning it as JSON-like YAML.",
		Category:    CategoryConfig,
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"key": map[string]any{"type": "string", "description": "Dotted key path, e.g. \"delegation.max_tasks\""}},
			"required":   []string{"key"},
		},
		Handler: func(ctx context.Context, tctx *Context, args map[string]any) (string, error) {
			key, _ := args["key"].(string)
			if key == "" {
				return "", errs.New(errs.KindToolArgError, "tools.read_config", "key is required")
			}
			node, ok := lookupConfigKey(tctx, key)
			if !ok {
				return "", errs.Errorf(errs.KindToolArgError, "tools.read_config", "key %q not found", key)
			}
			out, err := yaml.Marshal(node)
			if err != nil {
				return "", errs.Wrap(errs.KindToolArgError, "tools.read_config", err)
			}
			return string(out), nil
		},
	}
}

func updateConfigDef() *Definition {
	return &Definition{
		Name:        "update_config",
		Description: "Set a key in the delegation engine's YAML config file to a new value, preserving every other key.",
		Category:    CategoryConfig,
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"key":   map[string]any{"type": "string"},
				"value": map[string]any{"description": "New value; any JSON-compatible type"},
			},
			"required": []string{"key", "value"},
		},
		Handler: func(ctx context.Context, tctx *Context, args map[string]any) (string, error) {
			key, _ := args["key"].(string)
			if key == "" {
				return "", errs.New(errs.KindToolArgError, "tools.update_config", "key is required")
			}
			if err := setConfigKey(tctx, key, args["value"]); err != nil {
				return "", err
			}
			return fmt.Sprintf("updated config key %q", key), nil
		},
	}
}

func lookupConfigKey(tctx *Context, key string) (*yaml.Node, bool) {
	if tctx == nil || tctx.Config == nil {
		return nil, false
	}
	return tctx.Config.Lookup(key)
}

func setConfigKey(tctx *Context, key string, value any) error {
	if tctx == nil || tctx.Config == nil {
		return errs.New(errs.KindToolArgError, "tools.update_config", "no config handle available in this session")
	}
	return tctx.Config.Set(key, value)
}
