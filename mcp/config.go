package mcp

// ServerConfig describes how to connect to a single MCP server; the session
// Manager builds it from an entry of config.Config's mcpServers block.
type ServerConfig struct {
	Type    string            `yaml:"type" json:"type"`
	Command string            `yaml:"command,omitempty" json:"command,omitempty"`
	Args    []string          `yaml:"args,omitempty" json:"args,omitempty"`
	Env     map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
	URL     string            `yaml:"url,omitempty" json:"url,omitempty"`
}

const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
	TransportSSE   = "sse"
)

func (sc ServerConfig) transportKind() string {
	if sc.Type == "" {
		return TransportStdio
	}
	return sc.Type
}
