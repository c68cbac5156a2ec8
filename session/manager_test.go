package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kairoslabs/delegate/internal/config"
	"github.com/kairoslabs/delegate/memory"
)

func TestBootstrapRegistersResidentSession(t *testing.T) {
	m := NewManager(t.TempDir(), time.Hour, nil)
	s, err := m.Bootstrap(context.Background(), "support", "sess-1", "a support session", memory.Skeleton{})
	require.NoError(t, err)
	require.Equal(t, "sess-1", s.ID)
	require.Equal(t, "support", s.Domain)

	again, err := m.Open(context.Background(), "support", "sess-1")
	require.NoError(t, err)
	require.Same(t, s, again)
}

func TestOpenLoadsPersistedSessionOnFreshManager(t *testing.T) {
	root := t.TempDir()
	m1 := NewManager(root, time.Hour, nil)
	_, err := m1.Bootstrap(context.Background(), "support", "sess-2", "d", memory.Skeleton{})
	require.NoError(t, err)

	m2 := NewManager(root, time.Hour, nil)
	s, err := m2.Open(context.Background(), "support", "sess-2")
	require.NoError(t, err)
	require.Equal(t, "sess-2", s.ID)
}

func TestOpenRejectsEmptySessionID(t *testing.T) {
	m := NewManager(t.TempDir(), time.Hour, nil)
	_, err := m.Open(context.Background(), "support", "  ")
	require.ErrorIs(t, err, ErrMissingSessionID)
}

func TestOpenReturnsNotFoundForUnknownSession(t *testing.T) {
	m := NewManager(t.TempDir(), time.Hour, nil)
	_, err := m.Open(context.Background(), "support", "ghost")
	require.ErrorIs(t, err, memory.ErrSessionNotFound)
}

func TestGCSkipsBusySessions(t *testing.T) {
	m := NewManager(t.TempDir(), time.Millisecond, nil)
	s, err := m.Bootstrap(context.Background(), "d", "busy", "d", memory.Skeleton{})
	require.NoError(t, err)
	s.BeginTask()

	time.Sleep(5 * time.Millisecond)
	m.GC(time.Now())

	again, err := m.Open(context.Background(), "d", "busy")
	require.NoError(t, err)
	require.Same(t, s, again)
}

func TestGCReleasesQuiescentIdleSessions(t *testing.T) {
	m := NewManager(t.TempDir(), time.Millisecond, nil)
	_, err := m.Bootstrap(context.Background(), "d", "idle", "d", memory.Skeleton{})
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	m.GC(time.Now())

	_, ok := m.resident("d", "idle")
	require.False(t, ok)
}

func TestToMCPServerConfigsSkipsDisabledAndTranslatesFields(t *testing.T) {
	disabled := false
	servers := map[string]config.MCPServerConfig{
		"fs":    {Transport: "stdio", Command: "mcp-fs", Args: []string{"--root", "."}},
		"ghost": {Transport: "stdio", Command: "mcp-ghost", Enabled: &disabled},
	}
	out := toMCPServerConfigs(servers)
	require.Len(t, out, 1)
	require.Equal(t, "stdio", out["fs"].Type)
	require.Equal(t, "mcp-fs", out["fs"].Command)
	require.Equal(t, []string{"--root", "."}, out["fs"].Args)
}
