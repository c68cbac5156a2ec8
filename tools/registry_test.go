package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kairoslabs/delegate/internal/errs"
)

func TestRegistryRegistersEveryBuiltinTool(t *testing.T) {
	r := NewRegistry()
	names := r.Names()
	require.Contains(t, names, "read_file")
	require.Contains(t, names, "write_file")
	require.Contains(t, names, "patch_file")
	require.Contains(t, names, "bash")
	require.Contains(t, names, "add_goal")
	require.Contains(t, names, "log_progress")
}

func TestRegistryToolDefinitionsNamespacesUnderBuiltin(t *testing.T) {
	r := NewRegistry()
	defs := r.ToolDefinitions()
	require.NotEmpty(t, defs)
	for _, d := range defs {
		require.True(t, strings.HasPrefix(d.Name, "builtin."), "%s missing builtin. prefix", d.Name)
	}
}

func TestRegistryDispatchAcceptsQualifiedAndBareNames(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "f.txt"), []byte("hi\n"), 0o644))

	r := NewRegistry()
	tctx := &Context{WorkspaceRoot: dir}

	out1, err := r.Dispatch(context.Background(), tctx, Ident("read_file"), map[string]any{"path": "f.txt"})
	require.NoError(t, err)

	out2, err := r.Dispatch(context.Background(), tctx, Ident("builtin.read_file"), map[string]any{"path": "f.txt"})
	require.NoError(t, err)
	require.Equal(t, out1, out2)
}

func TestRegistryDispatchUnknownToolReturnsUnknownToolKind(t *testing.T) {
	r := NewRegistry()
	_, err := r.Dispatch(context.Background(), &Context{}, Ident("no_such_tool"), nil)
	require.Error(t, err)
	require.Equal(t, errs.KindUnknownTool, errs.KindOf(err))
}

func TestDispatchTruncatesOversizedResults(t *testing.T) {
	r := &Registry{defs: map[string]*Definition{
		"big": {
			Name: "big",
			Handler: func(ctx context.Context, tctx *Context, args map[string]any) (string, error) {
				return strings.Repeat("x", maxResultBytes+100), nil
			},
		},
	}}
	out, err := r.Dispatch(context.Background(), &Context{}, Ident("big"), nil)
	require.NoError(t, err)
	require.Contains(t, out, fmt.Sprintf("(truncated, total %d bytes)", maxResultBytes+100))
	require.LessOrEqual(t, len(out), maxResultBytes+100)
}
