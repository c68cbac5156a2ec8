// Package provname sanitizes qualified tool identifiers ("server.tool") into
// names that satisfy the character and length restrictions most model
// provider tool-calling APIs impose on function/tool names, and reverses the
// mapping when translating a provider's tool_use response back into the
// canonical identifier the rest of the engine dispatches on.
//
// Providers see only the sanitized name; the Tool Parser, MCP multiplexer,
// and Built-in Tool Registry only ever see the dotted canonical form.
package provname

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

const (
	maxLen  = 64
	hashLen = 8
)

// Map is a per-request bidirectional mapping between canonical tool
// identifiers and their provider-safe sanitized form.
type Map struct {
	canonToSafe map[string]string
	safeToCanon map[string]string
}

// NewMap builds a Map for the given canonical tool names, detecting
// collisions where two distinct names sanitize to the same provider-safe
// string.
func NewMap(canonical []string) (*Map, error) {
	m := &Map{
		canonToSafe: make(map[string]string, len(canonical)),
		safeToCanon: make(map[string]string, len(canonical)),
	}
	for _, name := range canonical {
		if name == "" {
			continue
		}
		safe := Sanitize(name)
		if prev, ok := m.safeToCanon[safe]; ok && prev != name {
			return nil, fmt.Errorf("provname: tool name %q sanitizes to %q which collides with %q", name, safe, prev)
		}
		m.safeToCanon[safe] = name
		m.canonToSafe[name] = safe
	}
	return m, nil
}

// Safe returns the provider-visible name for a canonical tool identifier,
// or the identifier unchanged if it was not registered in the map.
func (m *Map) Safe(canonical string) string {
	if m == nil {
		return canonical
	}
	if s, ok := m.canonToSafe[canonical]; ok {
		return s
	}
	return canonical
}

// Canonical resolves a provider-visible name back to the canonical tool
// identifier. ok is false when the provider echoed a name the map never
// produced (a hallucinated tool call); callers should surface this as an
// unknown-tool result rather than erroring out the whole request.
func (m *Map) Canonical(safe string) (string, bool) {
	if m == nil {
		return safe, true
	}
	name, ok := m.safeToCanon[safe]
	return name, ok
}

// Sanitize maps a canonical "server.tool" identifier to a string composed
// only of ASCII letters, digits, '_', and '-', truncating and appending a
// stable hash suffix when the result would exceed the common 64-character
// provider limit. Sanitization is deterministic so the same canonical name
// always produces the same provider-visible name across requests.
func Sanitize(in string) string {
	if in == "" {
		return ""
	}
	out := make([]byte, 0, len(in))
	for i := 0; i < len(in); i++ {
		c := in[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_', c == '-':
			out = append(out, c)
		case c == '.':
			out = append(out, '_', '_')
		default:
			out = append(out, '_')
		}
	}
	safe := string(out)
	if len(safe) <= maxLen {
		return safe
	}
	sum := sha256.Sum256([]byte(in))
	suffix := hex.EncodeToString(sum[:])[:hashLen]
	keep := maxLen - hashLen - 1
	if keep < 0 {
		keep = 0
	}
	return safe[:keep] + "-" + suffix
}
