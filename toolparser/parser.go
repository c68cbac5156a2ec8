// Package toolparser extracts tool-invocation intents from free-form model
// output (spec §4.1): fenced JSON, bare inline JSON objects, XML-like
// <tool_call> tags, and a reasoning-wrapped {thoughts, tool_request} shape.
// No example repo in this pack parses tool calls out of free text directly
// (every provider adapter they use returns structured tool-use fields
// instead), so this is built from the specification's carrier rules rather
// than ported from a teacher file; see DESIGN.md.
package toolparser

import (
	"encoding/json"
	"regexp"

	"github.com/google/uuid"

	"github.com/kairoslabs/delegate/tools"
)

// Call is one recovered tool invocation, with the byte range in the
// original response it was extracted from.
type Call struct {
	ID        string
	Name      tools.Ident
	Arguments map[string]any
	Start     int
	End       int
}

// Result is the output of Parse: the recovered calls in response order,
// plus the response text with <think> segments stripped.
type Result struct {
	Calls       []Call
	VisibleText string
}

var thinkSegment = regexp.MustCompile(`(?s)<think>.*?</think>`)

// Parse scans response for tool-call carriers and returns them in the order
// they appear, alongside the think-stripped visible text.
func Parse(response string) Result {
	spans := findTopLevelObjects(response)

	calls := make([]Call, 0, len(spans))
	for _, sp := range spans {
		raw := response[sp.start:sp.end]
		call, ok := decodeCarrier(raw)
		if !ok {
			// MalformedCarrier or non-tool-call object: soft failure, the
			// parser keeps scanning (spec §4.1 rule c).
			continue
		}
		call.Start, call.End = sp.start, sp.end
		call.ID = uuid.NewString()
		calls = append(calls, call)
	}

	return Result{
		Calls:       calls,
		VisibleText: thinkSegment.ReplaceAllString(response, ""),
	}
}

type span struct{ start, end int }

// findTopLevelObjects scans s left to right for balanced {...} object
// literals, skipping past each match before resuming the scan. Scanning
// past a match's end rather than restarting at start+1 both avoids
// quadratic rescans and naturally implements the "discard a match
// contained in an earlier accepted match" dedup rule: an object nested
// inside one we already captured (e.g. tool_request's inner object inside
// a reasoning wrapper) is never visited as its own top-level candidate.
func findTopLevelObjects(s string) []span {
	var spans []span
	inString := false
	escaped := false
	depth := 0
	start := -1

	for i := 0; i < len(s); i++ {
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
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 && start >= 0 {
					spans = append(spans, span{start: start, end: i + 1})
					start = -1
				}
			}
		}
	}
	return spans
}

// decodeCarrier tries every known carrier shape against a candidate JSON
// object literal. ok is false for malformed JSON or an object that doesn't
// match any recognized tool-call shape (not every brace-balanced substring
// of a response is a tool call).
func decodeCarrier(raw string) (Call, bool) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return Call{}, false
	}

	if wrapped, ok := obj["tool_request"]; ok {
		return decodeNameArgs(wrapped)
	}
	if fn, ok := obj["function"]; ok {
		return decodeNameArgs(fn)
	}
	if _, hasName := obj["name"]; hasName {
		return decodeNameArgsFromFields(obj)
	}
	return Call{}, false
}

func decodeNameArgs(raw json.RawMessage) (Call, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Call{}, false
	}
	return decodeNameArgsFromFields(fields)
}

func decodeNameArgsFromFields(fields map[string]json.RawMessage) (Call, bool) {
	nameRaw, ok := fields["name"]
	if !ok {
		return Call{}, false
	}
	var name string
	if err := json.Unmarshal(nameRaw, &name); err != nil || name == "" {
		return Call{}, false
	}

	argsRaw, ok := fields["arguments"]
	if !ok {
		argsRaw, ok = fields["parameters"]
	}
	args := map[string]any{}
	if ok {
		if err := json.Unmarshal(argsRaw, &args); err != nil {
			return Call{}, false
		}
	}

	return Call{Name: tools.Ident(name), Arguments: args}, true
}
