package tools

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/kairoslabs/delegate/internal/errs"
)

// change is one search/replace instruction within a patch_file call.
type change struct {
	search     string
	replace    string
	occurrence int // 0 means unset — "any" if there's exactly one match
}

func patchFileDef() *Definition {
	return &Definition{
		Name: "patch_file",
		Description: "Apply one or more search/replace changes to a file atomically. Each change's search " +
			"text must match exactly once unless occurrence disambiguates which match to use. The whole " +
			"patch is rejected if any change fails to apply cleanly — no partial writes.",
		Category: CategoryFilesystemWrite,
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path": map[string]any{"type": "string"},
				"changes": map[string]any{
					"type": "array",
					"items": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"search":     map[string]any{"type": "string"},
							"replace":    map[string]any{"type": "string"},
							"occurrence": map[string]any{"type": "integer", "description": "1-based index of which match to replace, when search matches more than once"},
						},
						"required": []string{"search", "replace"},
					},
				},
			},
			"required": []string{"path", "changes"},
		},
		Handler: func(ctx context.Context, tctx *Context, args map[string]any) (string, error) {
			path, _ := args["path"].(string)
			if path == "" {
				return "", errs.New(errs.KindToolArgError, "tools.patch_file", "path is required")
			}
			changes, err := parseChanges(args["changes"])
			if err != nil {
				return "", err
			}
			if len(changes) == 0 {
				return "", errs.New(errs.KindToolArgError, "tools.patch_file", "changes must be non-empty")
			}

			full, err := resolvePath(tctx, path)
			if err != nil {
				return "", err
			}
			data, err := os.ReadFile(full)
			if err != nil {
				return "", errs.Wrap(errs.KindToolArgError, "tools.patch_file", err)
			}

			content := string(data)
			for i, c := range changes {
				content, err = applyChange(content, c)
				if err != nil {
					return "", errs.Errorf(errs.KindToolArgError, "tools.patch_file", "change %d: %w", i+1, err)
				}
			}

			if err := atomicWrite(full, []byte(content)); err != nil {
				return "", errs.Wrap(errs.KindToolArgError, "tools.patch_file", err)
			}
			return fmt.Sprintf("applied %d change(s) to %s", len(changes), path), nil
		},
	}
}

func parseChanges(raw any) ([]change, error) {
	list, ok := raw.([]any)
	if !ok {
		return nil, errs.New(errs.KindToolArgError, "tools.patch_file", "changes must be an array")
	}
	out := make([]change, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, errs.New(errs.KindToolArgError, "tools.patch_file", "each change must be an object")
		}
		search, _ := m["search"].(string)
		if search == "" {
			return nil, errs.New(errs.KindToolArgError, "tools.patch_file", "search is required in every change")
		}
		replace, _ := m["replace"].(string)
		occurrence := 0
		if v, ok := numberArg(m["occurrence"]); ok {
			occurrence = v
		}
		out = append(out, change{search: search, replace: replace, occurrence: occurrence})
	}
	return out, nil
}

// applyChange applies one search/replace. A search with zero matches, or
// more than one match with no disambiguating occurrence, fails — this
// failure must propagate and abort the whole patch (handled by the caller
// never writing to disk once any change errors).
func applyChange(content string, c change) (string, error) {
	count := strings.Count(content, c.search)
	if count == 0 {
		return "", fmt.Errorf("search text not found")
	}
	if c.occurrence == 0 {
		if count > 1 {
			return "", fmt.Errorf("search text matches %d times; specify occurrence to disambiguate", count)
		}
		return strings.Replace(content, c.search, c.replace, 1), nil
	}
	if c.occurrence < 1 || c.occurrence > count {
		return "", fmt.Errorf("occurrence %d out of range; search text matches %d times", c.occurrence, count)
	}
	return replaceNth(content, c.search, c.replace, c.occurrence), nil
}

func replaceNth(content, search, replace string, n int) string {
	var b strings.Builder
	remaining := content
	for i := 1; ; i++ {
		idx := strings.Index(remaining, search)
		if idx < 0 {
			b.WriteString(remaining)
			break
		}
		b.WriteString(remaining[:idx])
		if i == n {
			b.WriteString(replace)
		} else {
			b.WriteString(search)
		}
		remaining = remaining[idx+len(search):]
	}
	return b.String()
}
