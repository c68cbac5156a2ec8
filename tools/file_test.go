package tools

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadFileReturnsLineNumberedContent(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hello.txt"), []byte("line1\nline2\nline3\n"), 0o644))

	def := readFileDef()
	tctx := &Context{WorkspaceRoot: dir}
	result, err := def.Handler(context.Background(), tctx, map[string]any{"path": "hello.txt"})
	require.NoError(t, err)
	require.Contains(t, result, "full (4 lines)")
	require.Contains(t, result, "   1→line1")
}

func TestReadFileOffsetAndLimit(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nums.txt"), []byte("a\nb\nc\nd\ne\n"), 0o644))

	def := readFileDef()
	tctx := &Context{WorkspaceRoot: dir}
	result, err := def.Handler(context.Background(), tctx, map[string]any{
		"path": "nums.txt", "offset": float64(2), "limit": float64(2),
	})
	require.NoError(t, err)
	require.Contains(t, result, "lines 2-3 of 6")
	require.Contains(t, result, "   2→b")
	require.NotContains(t, result, "   1→a")
}

func TestWriteFileIsAtomicAndCreatesDirs(t *testing.T) {
	dir := t.TempDir()
	def := writeFileDef()
	tctx := &Context{WorkspaceRoot: dir}

	_, err := def.Handler(context.Background(), tctx, map[string]any{
		"path": "nested/out.txt", "content": "hello",
	})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "nested", "out.txt"))
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))
}

func TestResolvePathRejectsEscapingWorkspaceRoot(t *testing.T) {
	dir := t.TempDir()
	_, err := resolvePath(&Context{WorkspaceRoot: dir}, "../../etc/passwd")
	require.Error(t, err)
}

func TestListFilesReportsKindAndSize(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("xyz"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	def := listFilesDef()
	result, err := def.Handler(context.Background(), &Context{WorkspaceRoot: dir}, map[string]any{})
	require.NoError(t, err)
	require.Contains(t, result, "file\ta.txt\t3")
	require.Contains(t, result, "dir\tsub\t")
}
