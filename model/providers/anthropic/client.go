// Package anthropic adapts github.com/anthropics/anthropic-sdk-go to
// model.Client, one of the engine's model endpoints (spec §6 "paid-cloud-style
// endpoint"; typically configured for escalation and validation roles).
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/kairoslabs/delegate/model"
	"github.com/kairoslabs/delegate/model/providers/provname"
	"github.com/kairoslabs/delegate/tools"
)

// MessagesClient is the subset of the SDK used here, satisfied by
// *sdk.MessageService so tests can substitute a fake.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
	NewStreaming(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) *ssestream.Stream[sdk.MessageStreamEventUnion]
}

// Options configures default model selection and sampling parameters.
type Options struct {
	DefaultModel   string
	HighModel      string
	SmallModel     string
	MaxTokens      int
	Temperature    float64
	ThinkingBudget int64
}

// Client implements model.Client against the Anthropic Messages API.
type Client struct {
	msg          MessagesClient
	defaultModel string
	highModel    string
	smallModel   string
	maxTok       int
	temp         float64
	think        int64
}

// New builds a Client. msg is typically (*anthropic.Client).Messages from a
// real SDK client constructed with an API key read via config.ExpandEnv.
func New(msg MessagesClient, opts Options) (*Client, error) {
	if msg == nil {
		return nil, errors.New("anthropic: messages client is required")
	}
	if opts.DefaultModel == "" {
		return nil, errors.New("anthropic: default model identifier is required")
	}
	return &Client{
		msg: msg, defaultModel: opts.DefaultModel, highModel: opts.HighModel,
		smallModel: opts.SmallModel, maxTok: opts.MaxTokens, temp: opts.Temperature,
		think: opts.ThinkingBudget,
	}, nil
}

// NewFromAPIKey constructs a Client using the SDK's default HTTP client,
// reading ANTHROPIC_API_KEY and related defaults from the environment when
// apiKey is empty, the same convenience shape this engine's escalation and
// validation roles use to get a ready-to-use paid-cloud endpoint from one
// config value.
func NewFromAPIKey(apiKey string, opts Options) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic: api key is required")
	}
	ac := sdk.NewClient(option.WithAPIKey(apiKey))
	return New(&ac.Messages, opts)
}

func (c *Client) Complete(ctx context.Context, req *model.Request) (*model.Response, error) {
	params, names, err := c.prepareRequest(req)
	if err != nil {
		return nil, err
	}
	msg, err := c.msg.New(ctx, *params)
	if err != nil {
		if errors.Is(err, model.ErrRateLimited) {
			return nil, fmt.Errorf("%w: %w", model.ErrRateLimited, err)
		}
		return nil, fmt.Errorf("anthropic messages.new: %w", err)
	}
	return translateResponse(msg, names)
}

func (c *Client) Stream(ctx context.Context, req *model.Request) (model.Streamer, error) {
	params, names, err := c.prepareRequest(req)
	if err != nil {
		return nil, err
	}
	stream := c.msg.NewStreaming(ctx, *params)
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("anthropic messages.new stream: %w", err)
	}
	return newStreamer(stream, names), nil
}

// prepareRequest also returns the per-request tool name map: Anthropic's
// tool-calling field accepts only [a-zA-Z0-9_-]{1,128}, so the dotted
// "server.tool" identifiers used everywhere else in the engine are sanitized
// here and reversed when translating the response back.
func (c *Client) prepareRequest(req *model.Request) (*sdk.MessageNewParams, *provname.Map, error) {
	if len(req.Messages) == 0 {
		return nil, nil, errors.New("anthropic: messages are required")
	}
	modelID := c.resolveModelID(req)
	names, err := toolNameMap(req.Tools)
	if err != nil {
		return nil, nil, err
	}
	toolDefs, err := encodeTools(req.Tools, names)
	if err != nil {
		return nil, nil, err
	}
	msgs, system, err := encodeMessages(req.Messages, names)
	if err != nil {
		return nil, nil, err
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTok
	}
	if maxTokens <= 0 {
		return nil, nil, errors.New("anthropic: max_tokens must be positive")
	}
	params := sdk.MessageNewParams{
		MaxTokens: int64(maxTokens),
		Messages:  msgs,
		Model:     sdk.Model(modelID),
	}
	if len(system) > 0 {
		params.System = system
	}
	if len(toolDefs) > 0 {
		params.Tools = toolDefs
	}
	if req.ToolChoice != nil {
		tc, err := encodeToolChoice(*req.ToolChoice, names)
		if err != nil {
			return nil, nil, err
		}
		params.ToolChoice = tc
	}
	temp := float64(req.Temperature)
	if temp <= 0 {
		temp = c.temp
	}
	if temp > 0 {
		params.Temperature = sdk.Float(temp)
	}
	if req.Thinking != nil && req.Thinking.Enable {
		budget := req.Thinking.BudgetTokens
		if budget <= 0 {
			budget = int(c.think)
		}
		if budget < 1024 {
			return nil, nil, fmt.Errorf("anthropic: thinking budget %d must be >= 1024", budget)
		}
		params.Thinking = sdk.ThinkingConfigParamOfEnabled(int64(budget))
	}
	return &params, names, nil
}

func toolNameMap(defs []*model.ToolDefinition) (*provname.Map, error) {
	names := make([]string, 0, len(defs))
	for _, def := range defs {
		if def != nil && def.Name != "" {
			names = append(names, def.Name)
		}
	}
	return provname.NewMap(names)
}

func (c *Client) resolveModelID(req *model.Request) string {
	if req.Model != "" {
		return req.Model
	}
	switch req.ModelClass {
	case model.ModelClassHighReasoning:
		if c.highModel != "" {
			return c.highModel
		}
	case model.ModelClassSmall:
		if c.smallModel != "" {
			return c.smallModel
		}
	}
	return c.defaultModel
}

func encodeMessages(msgs []*model.Message, names *provname.Map) ([]sdk.MessageParam, []sdk.TextBlockParam, error) {
	conversation := make([]sdk.MessageParam, 0, len(msgs))
	var system []sdk.TextBlockParam

	for _, m := range msgs {
		if m == nil {
			continue
		}
		if m.Role == model.ConversationRoleSystem {
			for _, p := range m.Parts {
				if v, ok := p.(model.TextPart); ok && v.Text != "" {
					system = append(system, sdk.TextBlockParam{Text: v.Text})
				}
			}
			continue
		}
		blocks, err := encodeBlocks(m.Parts, names)
		if err != nil {
			return nil, nil, err
		}
		if len(blocks) == 0 {
			continue
		}
		switch m.Role {
		case model.ConversationRoleUser:
			conversation = append(conversation, sdk.NewUserMessage(blocks...))
		case model.ConversationRoleAssistant:
			conversation = append(conversation, sdk.NewAssistantMessage(blocks...))
		default:
			return nil, nil, fmt.Errorf("anthropic: unsupported message role %q", m.Role)
		}
	}
	if len(conversation) == 0 {
		return nil, nil, errors.New("anthropic: at least one user/assistant message is required")
	}
	return conversation, system, nil
}

func encodeBlocks(parts []model.Part, names *provname.Map) ([]sdk.ContentBlockParamUnion, error) {
	blocks := make([]sdk.ContentBlockParamUnion, 0, len(parts))
	for _, part := range parts {
		switch v := part.(type) {
		case model.TextPart:
			if v.Text != "" {
				blocks = append(blocks, sdk.NewTextBlock(v.Text))
			}
		case model.ToolUsePart:
			if v.Name == "" {
				return nil, errors.New("anthropic: tool_use part missing name")
			}
			blocks = append(blocks, sdk.NewToolUseBlock(v.ID, v.Input, names.Safe(v.Name)))
		case model.ToolResultPart:
			blocks = append(blocks, encodeToolResult(v))
		default:
			// Thinking and cache checkpoint parts are provider-specific and
			// not re-encoded here.
		}
	}
	return blocks, nil
}

func encodeToolResult(v model.ToolResultPart) sdk.ContentBlockParamUnion {
	var content string
	switch c := v.Content.(type) {
	case nil:
		content = ""
	case string:
		content = c
	case []byte:
		content = string(c)
	default:
		if data, err := json.Marshal(c); err == nil {
			content = string(data)
		}
	}
	return sdk.NewToolResultBlock(v.ToolUseID, content, v.IsError)
}

func encodeToolChoice(tc model.ToolChoice, names *provname.Map) (sdk.ToolChoiceUnionParam, error) {
	switch tc.Mode {
	case model.ToolChoiceModeNone:
		return sdk.ToolChoiceParamOfNone(), nil
	case model.ToolChoiceModeAny:
		return sdk.ToolChoiceParamOfAny(), nil
	case model.ToolChoiceModeTool:
		if tc.Name == "" {
			return sdk.ToolChoiceUnionParam{}, errors.New("anthropic: tool choice mode tool requires a name")
		}
		return sdk.ToolChoiceParamOfTool(names.Safe(tc.Name)), nil
	default:
		return sdk.ToolChoiceParamOfAuto(), nil
	}
}

func encodeTools(defs []*model.ToolDefinition, names *provname.Map) ([]sdk.ToolUnionParam, error) {
	if len(defs) == 0 {
		return nil, nil
	}
	out := make([]sdk.ToolUnionParam, 0, len(defs))
	for _, def := range defs {
		if def == nil || def.Name == "" {
			continue
		}
		schema, err := toolInputSchema(def.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("anthropic: tool %q: %w", def.Name, err)
		}
		out = append(out, sdk.ToolUnionParamOfTool(schema, names.Safe(def.Name)))
	}
	return out, nil
}

func toolInputSchema(schema any) (sdk.ToolInputSchemaParam, error) {
	data, err := json.Marshal(schema)
	if err != nil {
		return sdk.ToolInputSchemaParam{}, err
	}
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return sdk.ToolInputSchemaParam{}, err
	}
	props, _ := obj["properties"].(map[string]any)
	var required []string
	for _, r := range toSlice(obj["required"]) {
		if s, ok := r.(string); ok {
			required = append(required, s)
		}
	}
	return sdk.ToolInputSchemaParam{Properties: props, Required: required}, nil
}

func toSlice(v any) []any {
	s, _ := v.([]any)
	return s
}

func translateResponse(msg *sdk.Message, names *provname.Map) (*model.Response, error) {
	if msg == nil {
		return nil, errors.New("anthropic: response message is nil")
	}
	resp := &model.Response{}
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			if block.Text == "" {
				continue
			}
			resp.Content = append(resp.Content, model.Message{
				Role:  model.ConversationRoleAssistant,
				Parts: []model.Part{model.TextPart{Text: block.Text}},
			})
		case "tool_use":
			canonical, ok := names.Canonical(block.Name)
			if !ok {
				canonical = block.Name
			}
			resp.ToolCalls = append(resp.ToolCalls, model.ToolCall{
				Name:    tools.Ident(canonical),
				Payload: block.Input,
				ID:      block.ID,
			})
		}
	}
	if u := msg.Usage; u.InputTokens != 0 || u.OutputTokens != 0 {
		resp.Usage = model.TokenUsage{
			InputTokens:      int(u.InputTokens),
			OutputTokens:     int(u.OutputTokens),
			TotalTokens:      int(u.InputTokens + u.OutputTokens),
			CacheReadTokens:  int(u.CacheReadInputTokens),
			CacheWriteTokens: int(u.CacheCreationInputTokens),
		}
	}
	resp.StopReason = string(msg.StopReason)
	return resp, nil
}
