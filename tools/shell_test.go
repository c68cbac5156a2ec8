package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBashRunsCommandInWorkspaceRoot(t *testing.T) {
	dir := t.TempDir()
	def := bashDef()
	result, err := def.Handler(context.Background(), &Context{WorkspaceRoot: dir}, map[string]any{
		"command": "pwd",
	})
	require.NoError(t, err)
	require.Contains(t, result, dir)
}

func TestBashRequiresCommand(t *testing.T) {
	def := bashDef()
	_, err := def.Handler(context.Background(), &Context{}, map[string]any{})
	require.Error(t, err)
}

func TestBashSurfacesNonZeroExitWithoutError(t *testing.T) {
	def := bashDef()
	result, err := def.Handler(context.Background(), &Context{}, map[string]any{"command": "exit 3"})
	require.NoError(t, err, "a failing command is reported in the result text, not as a Go error")
	require.Contains(t, result, "exit code: 3")
}

func TestShellTimeoutClampsToMax(t *testing.T) {
	got := shellTimeout(map[string]any{"timeout": float64(99999)})
	require.Equal(t, maxShellTimeout, got)
}

func TestShellTimeoutDefault(t *testing.T) {
	got := shellTimeout(map[string]any{})
	require.Equal(t, defaultShellTimeout, got)
}
