package model

import "encoding/json"

// MarshalJSON encodes TextPart with a Kind discriminator so the concrete
// part type survives being stored as a generic Part.
func (p TextPart) MarshalJSON() ([]byte, error) {
	type alias TextPart
	return json.Marshal(struct {
		Kind string `json:"kind"`
		alias
	}{Kind: "text", alias: alias(p)})
}

func (p ThinkingPart) MarshalJSON() ([]byte, error) {
	type alias ThinkingPart
	return json.Marshal(struct {
		Kind string `json:"kind"`
		alias
	}{Kind: "thinking", alias: alias(p)})
}

func (p ToolUsePart) MarshalJSON() ([]byte, error) {
	type alias ToolUsePart
	return json.Marshal(struct {
		Kind string `json:"kind"`
		alias
	}{Kind: "tool_use", alias: alias(p)})
}

func (p ToolResultPart) MarshalJSON() ([]byte, error) {
	type alias ToolResultPart
	return json.Marshal(struct {
		Kind string `json:"kind"`
		alias
	}{Kind: "tool_result", alias: alias(p)})
}

func (p CacheCheckpointPart) MarshalJSON() ([]byte, error) {
	type alias CacheCheckpointPart
	return json.Marshal(struct {
		Kind string `json:"kind"`
		alias
	}{Kind: "cache_checkpoint", alias: alias(p)})
}

func (p ImagePart) MarshalJSON() ([]byte, error) {
	type alias ImagePart
	return json.Marshal(struct {
		Kind string `json:"kind"`
		alias
	}{Kind: "image", alias: alias(p)})
}

func (p DocumentPart) MarshalJSON() ([]byte, error) {
	type alias DocumentPart
	return json.Marshal(struct {
		Kind string `json:"kind"`
		alias
	}{Kind: "document", alias: alias(p)})
}

func (p CitationsPart) MarshalJSON() ([]byte, error) {
	type alias CitationsPart
	return json.Marshal(struct {
		Kind string `json:"kind"`
		alias
	}{Kind: "citations", alias: alias(p)})
}
