package tools

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kairoslabs/delegate/internal/errs"
)

func TestPatchFileAppliesSequentialChanges(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.go")
	require.NoError(t, os.WriteFile(path, []byte("func foo() {}\nfunc bar() {}\n"), 0o644))

	def := patchFileDef()
	result, err := def.Handler(context.Background(), &Context{WorkspaceRoot: dir}, map[string]any{
		"path": "a.go",
		"changes": []any{
			map[string]any{"search": "func foo() {}", "replace": "func foo() { return }"},
			map[string]any{"search": "func bar() {}", "replace": "func bar() { return }"},
		},
	})
	require.NoError(t, err)
	require.Contains(t, result, "applied 2 change")

	data, _ := os.ReadFile(path)
	require.Equal(t, "func foo() { return }\nfunc bar() { return }\n", string(data))
}

func TestPatchFileAmbiguousSearchFailsWholePatchAtomically(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.go")
	original := "x := 1\nx := 1\n"
	require.NoError(t, os.WriteFile(path, []byte(original), 0o644))

	def := patchFileDef()
	_, err := def.Handler(context.Background(), &Context{WorkspaceRoot: dir}, map[string]any{
		"path": "a.go",
		"changes": []any{
			map[string]any{"search": "x := 1", "replace": "x := 2"},
		},
	})
	require.Error(t, err)
	require.Equal(t, errs.KindToolArgError, errs.KindOf(err))

	data, _ := os.ReadFile(path)
	require.Equal(t, original, string(data), "file must be untouched when a change is ambiguous")
}

func TestPatchFileOccurrenceDisambiguates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.go")
	require.NoError(t, os.WriteFile(path, []byte("x := 1\nx := 1\n"), 0o644))

	def := patchFileDef()
	_, err := def.Handler(context.Background(), &Context{WorkspaceRoot: dir}, map[string]any{
		"path": "a.go",
		"changes": []any{
			map[string]any{"search": "x := 1", "replace": "x := 2", "occurrence": float64(2)},
		},
	})
	require.NoError(t, err)

	data, _ := os.ReadFile(path)
	require.Equal(t, "x := 1\nx := 2\n", string(data))
}

func TestPatchFileNoMatchFailsPatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.go")
	require.NoError(t, os.WriteFile(path, []byte("hello\n"), 0o644))

	def := patchFileDef()
	_, err := def.Handler(context.Background(), &Context{WorkspaceRoot: dir}, map[string]any{
		"path":    "a.go",
		"changes": []any{map[string]any{"search": "missing", "replace": "x"}},
	})
	require.Error(t, err)
}

func TestPatchFileSecondChangeFailureLeavesFileUntouched(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.go")
	original := "alpha\nbeta\n"
	require.NoError(t, os.WriteFile(path, []byte(original), 0o644))

	def := patchFileDef()
	_, err := def.Handler(context.Background(), &Context{WorkspaceRoot: dir}, map[string]any{
		"path": "a.go",
		"changes": []any{
			map[string]any{"search": "alpha", "replace": "ALPHA"},
			map[string]any{"search": "gamma", "replace": "GAMMA"},
		},
	})
	require.Error(t, err)

	data, _ := os.ReadFile(path)
	require.Equal(t, original, string(data))
}
