package artifact

import (
	"encoding/json"
	"regexp"
)

// tagPattern finds an "artifact:<kind>" marker (optionally fenced or
// wrapped in an XML-like tag, both of which are simply text around the
// marker and don't need special-casing) immediately followed by a JSON
// object literal.
var tagPattern = regexp.MustCompile(`artifact:([a-z_]+)\s*\{`)

type blockWire struct {
	Title string         `json:"title"`
	Data  map[string]any `json:"data"`
}

// Parse scans text for every `artifact:<kind> { ... }` block and returns
// the ones naming a recognized Kind with a well-formed JSON object.
// Unrecognized kinds and malformed objects are skipped, not reported as
// errors, matching the Tool Parser's soft-failure posture for free-text
// carriers (toolparser.Parse).
func Parse(text string) []Artifact {
	var found []Artifact

	for _, loc := range tagPattern.FindAllStringSubmatchIndex(text, -1) {
		kind := Kind(text[loc[2]:loc[3]])
		if !ValidKind(kind) {
			continue
		}
		openIdx := loc[1] - 1 // the matched '{' is the last byte of the full match
		closeIdx := findMatchingBrace(text, openIdx)
		if closeIdx < 0 {
			continue
		}

		var wire blockWire
		if err := json.Unmarshal([]byte(text[openIdx:closeIdx]), &wire); err != nil {
			continue
		}
		found = append(found, Artifact{Kind: kind, Title: wire.Title, Data: wire.Data})
	}
	return found
}

// findMatchingBrace returns the index just past the '}' matching the '{'
// at openIdx, honoring string/escape boundaries the same way
// toolparser.findTopLevelObjects does, or -1 if unbalanced.
func findMatchingBrace(s string, openIdx int) int {
	if openIdx < 0 || openIdx >= len(s) || s[openIdx] != '{' {
		return -1
	}
	depth := 0
	inString := false
	escaped := false
	for i := openIdx; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return -1
}
