// Package model defines the provider-agnostic request/response types the
// Model Router (spec §4.5) and Task Executor (spec §4.9) use to talk to any
// model endpoint — local-style or paid-cloud-style — through one interface.
// Messages are modeled as typed parts (text, thinking, tool use/result)
// rather than flattened strings so provider adapters can round-trip
// structure without re-parsing it from prose.
package model

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/kairoslabs/delegate/tools"
)

// ConversationRole is the role for a message in a conversation.
type ConversationRole string

type (
	// Part is a marker interface implemented by every message content block.
	Part interface {
		isPart()
	}

	// ImageFormat identifies the on-wire format of an image part.
	ImageFormat string

	// DocumentFormat identifies the on-wire format (extension) of a document part.
	DocumentFormat string

	// TextPart is a plain text content block in a message.
	TextPart struct {
		Text string
	}

	// ImagePart carries image bytes attached to a user message.
	ImagePart struct {
		Format ImageFormat
		Bytes  []byte
	}

	// DocumentPart carries document content attached to a user message.
	// Exactly one of Bytes, Text, Chunks, or URI is expected to be set.
	DocumentPart struct {
		Name    string
		Format  DocumentFormat
		Bytes   []byte
		Text    string
		Chunks  []string
		URI     string
		Context string
		Cite    bool
	}

	// CitationsPart is generated content paired with citation metadata.
	CitationsPart struct {
		Text      string
		Citations []Citation
	}

	// Citation links generated content back to a location in a source document.
	Citation struct {
		Title         string
		Source        string
		Location      CitationLocation
		SourceContent []string
	}

	// CitationLocation identifies where cited content can be found. Exactly
	// one of the three fields should be set when present.
	CitationLocation struct {
		DocumentChar  *DocumentCharLocation
		DocumentChunk *DocumentChunkLocation
		DocumentPage  *DocumentPageLocation
	}

	DocumentCharLocation struct {
		DocumentIndex int
		Start, End    int
	}

	DocumentChunkLocation struct {
		DocumentIndex int
		Start, End    int
	}

	DocumentPageLocation struct {
		DocumentIndex int
		Start, End    int
	}

	// ThinkingPart represents provider-issued reasoning content. Callers
	// treat Signature/Redacted as opaque and surface Text per UI policy.
	ThinkingPart struct {
		Text      string
		Signature string
		Redacted  []byte
		Index     int
		Final     bool
	}

	// ToolUsePart declares a tool invocation requested by the assistant.
	// The Tool Parser (spec §4.1) is the other source of tool calls, for
	// providers that fold tool requests into free-form text instead of a
	// structured field; both paths converge on the same dispatch surface.
	ToolUsePart struct {
		ID    string
		Name  string
		Input any
	}

	// ToolResultPart carries a tool result attached to a later user message
	// so the model can read it in its next turn.
	ToolResultPart struct {
		ToolUseID string
		Content   any
		IsError   bool
	}

	// CacheCheckpointPart marks a cache boundary in a message; adapters that
	// don't support prompt caching ignore it.
	CacheCheckpointPart struct{}

	// Message is a single chat message: an ordered list of typed parts
	// rather than one flat string.
	Message struct {
		Role  ConversationRole
		Parts []Part
		Meta  map[string]any
	}

	// ToolDefinition describes one tool exposed to the model: its name, a
	// description used to decide when to call it, and its JSON-schema input
	// shape (built-in tools' schemas or an MCP server's discovered schema).
	ToolDefinition struct {
		Name        string
		Description string
		InputSchema any
	}

	// ToolCall is a tool invocation requested by the model via a structured
	// provider field (as opposed to one recovered from free text by the
	// Tool Parser).
	ToolCall struct {
		Name    tools.Ident
		Payload json.RawMessage
		ID      string
	}

	// ToolCallDelta is an incremental, best-effort tool-call payload
	// fragment for progressive UI previews; the canonical payload is still
	// delivered as a complete ToolCall.
	ToolCallDelta struct {
		Name  tools.Ident
		ID    string
		Delta string
	}

	// ToolChoiceMode controls how the model uses tools for one request.
	ToolChoiceMode string

	// ToolChoice configures optional tool-use behavior for a Request.
	ToolChoice struct {
		Mode ToolChoiceMode
		Name string
	}

	// TokenUsage tracks token counts for one model call.
	TokenUsage struct {
		InputTokens      int
		OutputTokens     int
		TotalTokens      int
		CacheReadTokens  int
		CacheWriteTokens int
	}

	// Request captures the inputs for one model invocation.
	Request struct {
		RunID       string
		Model       string
		ModelClass  ModelClass
		Messages    []*Message
		Temperature float32
		Tools       []*ToolDefinition
		ToolChoice  *ToolChoice
		MaxTokens   int
		Stream      bool
		Thinking    *ThinkingOptions
		Cache       *CacheOptions
	}

	// Response is the result of a non-streaming invocation.
	Response struct {
		Content    []Message
		ToolCalls  []ToolCall
		Usage      TokenUsage
		StopReason string
	}

	// Chunk is one streaming event from the model.
	Chunk struct {
		Type          string
		Message       *Message
		Thinking      string
		ToolCall      *ToolCall
		ToolCallDelta *ToolCallDelta
		UsageDelta    *TokenUsage
		StopReason    string
	}

	// ThinkingOptions configures provider reasoning behavior.
	ThinkingOptions struct {
		Enable       bool
		Interleaved  bool
		BudgetTokens int
	}

	// CacheOptions configures prompt caching for a request. Providers that
	// don't support caching ignore it.
	CacheOptions struct {
		AfterSystem bool
		AfterTools  bool
	}

	// ModelClass identifies a model family the Router maps to a concrete
	// model identifier when Request.Model is unset.
	ModelClass string

	// Client is the provider-agnostic model endpoint interface the Router
	// (spec §4.5) ranks and the Task Executor (spec §4.9) drives.
	Client interface {
		Complete(ctx context.Context, req *Request) (*Response, error)
		Stream(ctx context.Context, req *Request) (Streamer, error)
	}

	// Streamer delivers incremental model output. Callers drain Recv until
	// it returns io.EOF or another terminal error, then call Close exactly
	// once.
	Streamer interface {
		Recv() (Chunk, error)
		Close() error
		Metadata() map[string]any
	}
)

const (
	ConversationRoleSystem    ConversationRole = "system"
	ConversationRoleUser      ConversationRole = "user"
	ConversationRoleAssistant ConversationRole = "assistant"
)

const (
	// ToolChoiceModeAuto lets the provider decide whether to call tools.
	// This is the default when ToolChoice is nil.
	ToolChoiceModeAuto ToolChoiceMode = "auto"
	ToolChoiceModeNone ToolChoiceMode = "none"
	ToolChoiceModeAny  ToolChoiceMode = "any"
	ToolChoiceModeTool ToolChoiceMode = "tool"
)

const (
	ChunkTypeText          = "text"
	ChunkTypeToolCall      = "tool_call"
	ChunkTypeToolCallDelta = "tool_call_delta"
	ChunkTypeThinking      = "thinking"
	ChunkTypeUsage         = "usage"
	ChunkTypeStop          = "stop"
)

const (
	ImageFormatPNG  ImageFormat = "png"
	ImageFormatJPEG ImageFormat = "jpeg"
	ImageFormatGIF  ImageFormat = "gif"
	ImageFormatWEBP ImageFormat = "webp"
)

const (
	DocumentFormatPDF  DocumentFormat = "pdf"
	DocumentFormatCSV  DocumentFormat = "csv"
	DocumentFormatDOC  DocumentFormat = "doc"
	DocumentFormatDOCX DocumentFormat = "docx"
	DocumentFormatXLS  DocumentFormat = "xls"
	DocumentFormatXLSX DocumentFormat = "xlsx"
	DocumentFormatHTML DocumentFormat = "html"
	DocumentFormatTXT  DocumentFormat = "txt"
	DocumentFormatMD   DocumentFormat = "md"
)

const (
	// ModelClassHighReasoning selects a high-reasoning model family, used
	// for the Planner role and for escalation.
	ModelClassHighReasoning ModelClass = "high-reasoning"
	ModelClassDefault       ModelClass = "default"
	ModelClassSmall         ModelClass = "small"
)

// ErrStreamingUnsupported indicates the provider does not support streaming.
var ErrStreamingUnsupported = errors.New("model: streaming not supported")

// ErrRateLimited indicates the provider rejected the request due to rate
// limiting after exhausting configured retries; callers must not retry in a
// tight loop.
var ErrRateLimited = errors.New("model: rate limited")

func (TextPart) isPart()            {}
func (ImagePart) isPart()           {}
func (DocumentPart) isPart()        {}
func (CitationsPart) isPart()       {}
func (ThinkingPart) isPart()        {}
func (ToolUsePart) isPart()         {}
func (ToolResultPart) isPart()      {}
func (CacheCheckpointPart) isPart() {}
