package model

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MarshalJSON encodes a Message while preserving the concrete Part types
// stored in Parts, via the Kind discriminator each part type writes in
// json_marshal.go. Without this, Parts (an interface slice) would lose its
// concrete types on any round trip through persistence (memory mutation
// logging, dependency-output rendering for a downstream task's prompt).
func (m Message) MarshalJSON() ([]byte, error) {
	type alias struct {
		Role  ConversationRole `json:"role"`
		Parts []Part           `json:"parts"`
		Meta  map[string]any   `json:"meta,omitempty"`
	}
	return json.Marshal(alias{Role: m.Role, Parts: m.Parts, Meta: m.Meta})
}

// UnmarshalJSON decodes a Message, materializing concrete Part
// implementations from each part's Kind discriminator.
func (m *Message) UnmarshalJSON(data []byte) error {
	var tmp struct {
		Role  ConversationRole  `json:"role"`
		Parts []json.RawMessage `json:"parts"`
		Meta  map[string]any    `json:"meta"`
	}
	if err := json.Unmarshal(data, &tmp); err != nil {
		return err
	}
	m.Role, m.Meta = tmp.Role, tmp.Meta
	if len(tmp.Parts) == 0 {
		m.Parts = nil
		return nil
	}
	m.Parts = make([]Part, 0, len(tmp.Parts))
	for i, raw := range tmp.Parts {
		part, err := decodePart(raw)
		if err != nil {
			return fmt.Errorf("decode parts[%d]: %w", i, err)
		}
		m.Parts = append(m.Parts, part)
	}
	return nil
}

func decodePart(raw json.RawMessage) (Part, error) {
	var disc struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(raw, &disc); err != nil {
		return nil, fmt.Errorf("decode part kind: %w", err)
	}
	switch disc.Kind {
	case "text":
		var p TextPart
		err := json.Unmarshal(raw, &p)
		return p, err
	case "thinking":
		var p ThinkingPart
		err := json.Unmarshal(raw, &p)
		return p, err
	case "image":
		var p ImagePart
		err := json.Unmarshal(raw, &p)
		return p, err
	case "document":
		var p DocumentPart
		err := json.Unmarshal(raw, &p)
		return p, err
	case "citations":
		var p CitationsPart
		err := json.Unmarshal(raw, &p)
		return p, err
	case "tool_use":
		var p ToolUsePart
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		if p.Name == "" {
			return nil, errors.New("tool_use part requires name")
		}
		return p, nil
	case "tool_result":
		var p ToolResultPart
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		if p.ToolUseID == "" {
			return nil, errors.New("tool_result part requires tool use id")
		}
		return p, nil
	case "cache_checkpoint":
		return CacheCheckpointPart{}, nil
	default:
		return nil, fmt.Errorf("unknown part kind %q", disc.Kind)
	}
}
