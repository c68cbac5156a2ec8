package mcp

import "strings"

// NamespacedName returns the canonical "server.tool" identifier for a tool
// discovered on an MCP server. The server name is sanitized so a stray '.'
// in the server's own name can't be mistaken for the namespace separator.
func NamespacedName(serverName, toolName string) string {
	return sanitizeServerName(serverName) + "." + toolName
}

// ParseNamespacedName splits a canonical "server.tool" identifier. ok is
// false when name has no namespace separator or an empty tool segment.
func ParseNamespacedName(name string) (server, tool string, ok bool) {
	idx := strings.IndexByte(name, '.')
	if idx <= 0 || idx == len(name)-1 {
		return "", "", false
	}
	return name[:idx], name[idx+1:], true
}

func sanitizeServerName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	return b.String()
}
