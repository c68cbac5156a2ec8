package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kairoslabs/delegate/internal/config"
	"github.com/stretchr/testify/require"
)

// TestSavePreservesUnknownKeys is the executable form of P7: save-config
// must never drop a key it does not itself manage.
func TestSavePreservesUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	initial := `
mcpServers:
  files:
    transport: stdio
    command: mcp-files
customVendorBlock:
  nested:
    - a
    - b
delegation:
  enabled: true
  trace_enabled: true
  max_tasks: 8
`
	require.NoError(t, os.WriteFile(path, []byte(initial), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.True(t, cfg.Delegation.Enabled)

	cfg.AgentModels = map[string]string{"PLANNER": "claude-opus"}
	require.NoError(t, cfg.Save(path))

	out, err := os.ReadFile(path)
	require.NoError(t, err)

	reloaded, err := config.Parse(out)
	require.NoError(t, err)
	require.Equal(t, "claude-opus", reloaded.AgentModels["PLANNER"])

	raw := string(out)
	require.Contains(t, raw, "customVendorBlock")
	require.Contains(t, raw, "trace_enabled")
	require.Contains(t, raw, "mcpServers")
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("DELEGATE_API_KEY", "secret-value")
	require.Equal(t, "secret-value", config.ExpandEnv("${DELEGATE_API_KEY}"))
	require.Equal(t, "fallback", config.ExpandEnv("${MISSING_VAR:-fallback}"))
	require.Equal(t, "", config.ExpandEnv("${MISSING_VAR}"))
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	require.False(t, cfg.Delegation.Enabled)
}

func TestLookupResolvesDottedPath(t *testing.T) {
	cfg, err := config.Parse([]byte("delegation:\n  max_tasks: 8\n"))
	require.NoError(t, err)

	node, ok := cfg.Lookup("delegation.max_tasks")
	require.True(t, ok)
	require.Equal(t, "8", node.Value)

	_, ok = cfg.Lookup("delegation.missing")
	require.False(t, ok)
}

func TestSetWritesNestedKeyAndRefreshesTypedFields(t *testing.T) {
	cfg, err := config.Parse([]byte("delegation:\n  max_tasks: 8\n"))
	require.NoError(t, err)

	require.NoError(t, cfg.Set("delegation.max_tasks", 20))
	require.Equal(t, 20, cfg.Delegation.MaxTasks)

	node, ok := cfg.Lookup("delegation.max_tasks")
	require.True(t, ok)
	require.Equal(t, "20", node.Value)
}

func TestSetCreatesMissingIntermediateMappings(t *testing.T) {
	cfg, err := config.Parse([]byte("{}\n"))
	require.NoError(t, err)

	require.NoError(t, cfg.Set("escalation.threshold", 5))
	require.Equal(t, 5, cfg.Escalation.Threshold)
}
