package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kairoslabs/delegate/internal/errs"
)

func fileDefinitions() []*Definition {
	return []*Definition{
		readFileDef(),
		writeFileDef(),
		patchFileDef(),
		listFilesDef(),
	}
}

// resolvePath confines path to tctx.WorkspaceRoot, rejecting any path that
// escapes it after cleaning — the only check write_file/patch_file need
// before touching disk.
func resolvePath(tctx *Context, path string) (string, error) {
	root := tctx.WorkspaceRoot
	if root == "" {
		root = "."
	}
	var abs string
	if filepath.IsAbs(path) {
		abs = filepath.Clean(path)
	} else {
		abs = filepath.Clean(filepath.Join(root, path))
	}
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	absClean, err := filepath.Abs(abs)
	if err != nil {
		return "", err
	}
	if absClean != rootAbs && !strings.HasPrefix(absClean, rootAbs+string(filepath.Separator)) {
		return "", errs.Errorf(errs.KindToolArgError, "tools.resolve_path", "path %q escapes the workspace root", path)
	}
	return absClean, nil
}

func readFileDef() *Definition {
	return &Definition{
		Name:        "read_file",
		Description: "Read a file's contents with 1-based line numbers. Use offset/limit for large files.",
		Category:    CategoryFilesystemRead,
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path":   map[string]any{"type": "string", "description": "File path relative to the workspace root"},
				"offset": map[string]any{"type": "integer", "description": "1-based line number to start from"},
				"limit":  map[string]any{"type": "integer", "description": "Maximum number of lines to return"},
			},
			"required": []string{"path"},
		},
		Handler: func(ctx context.Context, tctx *Context, args map[string]any) (string, error) {
			path, _ := args["path"].(string)
			if path == "" {
				return "", errs.New(errs.KindToolArgError, "tools.read_file", "path is required")
			}
			full, err := resolvePath(tctx, path)
			if err != nil {
				return "", err
			}
			data, err := os.ReadFile(full)
			if err != nil {
				return "", errs.Wrap(errs.KindToolArgError, "tools.read_file", err)
			}

			lines := strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")
			total := len(lines)

			offset := 1
			if v, ok := numberArg(args["offset"]); ok && v > 0 {
				offset = v
			}
			limit := total
			if v, ok := numberArg(args["limit"]); ok && v > 0 {
				limit = v
			}

			start := offset - 1
			if start < 0 {
				start = 0
			}
			if start > total {
				start = total
			}
			end := start + limit
			if end > total {
				end = total
			}

			header := fmt.Sprintf("%s: full (%d lines)\n", path, total)
			if start != 0 || end != total {
				header = fmt.Sprintf("%s: lines %d-%d of %d\n", path, start+1, end, total)
			}

			var b strings.Builder
			b.WriteString(header)
			for i := start; i < end; i++ {
				fmt.Fprintf(&b, "%4d→%s\n", i+1, lines[i])
			}
			return b.String(), nil
		},
	}
}

func numberArg(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	}
	return 0, false
}

func writeFileDef() *Definition {
	return &Definition{
		Name:        "write_file",
		Description: "Atomically create or overwrite a file. Parent directories are created automatically.",
		Category:    CategoryFilesystemWrite,
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path":    map[string]any{"type": "string"},
				"content": map[string]any{"type": "string"},
			},
			"required": []string{"path", "content"},
		},
		Handler: func(ctx context.Context, tctx *Context, args map[string]any) (string, error) {
			path, _ := args["path"].(string)
			if path == "" {
				return "", errs.New(errs.KindToolArgError, "tools.write_file", "path is required")
			}
			content, _ := args["content"].(string)

			full, err := resolvePath(tctx, path)
			if err != nil {
				return "", err
			}
			if err := atomicWrite(full, []byte(content)); err != nil {
				return "", errs.Wrap(errs.KindToolArgError, "tools.write_file", err)
			}
			return fmt.Sprintf("wrote %d bytes to %s", len(content), path), nil
		},
	}
}

// atomicWrite writes data to a temp file in the same directory as path, then
// renames it into place, so a reader never observes a partially-written file.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming into place: %w", err)
	}
	return nil
}

func listFilesDef() *Definition {
	return &Definition{
		Name:        "list_files",
		Description: "List files under a directory (non-recursive) with size and kind.",
		Category:    CategoryFilesystemRead,
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"path": map[string]any{"type": "string", "description": "Directory path relative to the workspace root, default \".\""}},
		},
		Handler: func(ctx context.Context, tctx *Context, args map[string]any) (string, error) {
			path, _ := args["path"].(string)
			if path == "" {
				path = "."
			}
			full, err := resolvePath(tctx, path)
			if err != nil {
				return "", err
			}
			entries, err := os.ReadDir(full)
			if err != nil {
				return "", errs.Wrap(errs.KindToolArgError, "tools.list_files", err)
			}
			var b strings.Builder
			for _, e := range entries {
				kind := "file"
				var size int64
				if info, err := e.Info(); err == nil {
					size = info.Size()
				}
				if e.IsDir() {
					kind = "dir"
				}
				fmt.Fprintf(&b, "%s\t%s\t%d\n", kind, e.Name(), size)
			}
			return b.String(), nil
		},
	}
}
