// Package openai adapts github.com/openai/openai-go to model.Client. Its
// Chat Completions surface is also what most local-style inference servers
// (vLLM, Ollama, LM Studio) expose, so pointing it at a local base URL
// instead of the OpenAI cloud endpoint is how this engine satisfies the
// "local-style endpoint" half of spec §6's model-endpoint requirement;
// pointed at the real OpenAI cloud it serves as a second paid-cloud-style
// endpoint alongside the anthropic adapter for fallback and escalation
// (spec §4.5).
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/kairoslabs/delegate/model"
	"github.com/kairoslabs/delegate/model/providers/provname"
	"github.com/kairoslabs/delegate/tools"
)

// ChatClient is the subset of the SDK used here, satisfied by the real
// client's Chat.Completions service.
type ChatClient interface {
	New(ctx context.Context, body sdk.ChatCompletionNewParams) (*sdk.ChatCompletion, error)
}

// Options configures the OpenAI adapter.
type Options struct {
	Chat         ChatClient
	DefaultModel string
	MaxTokens    int
	Temperature  float64
}

// Client implements model.Client via the Chat Completions API.
type Client struct {
	chat  ChatClient
	model string
	maxTk int
	temp  float64
}

// New builds a Client.
func New(opts Options) (*Client, error) {
	if opts.Chat == nil {
		return nil, errors.New("openai: chat client is required")
	}
	modelID := strings.TrimSpace(opts.DefaultModel)
	if modelID == "" {
		return nil, errors.New("openai: default model is required")
	}
	return &Client{chat: opts.Chat, model: modelID, maxTk: opts.MaxTokens, temp: opts.Temperature}, nil
}

// NewFromAPIKey constructs a Client using the official SDK's own HTTP
// client. An empty baseURL talks to the OpenAI cloud API; a non-empty one
// (e.g. "http://localhost:11434/v1") points at a local OpenAI-compatible
// inference server instead, an empty apiKey being the usual case for those.
func NewFromAPIKey(apiKey, baseURL, defaultModel string, maxTokens int, temperature float64) (*Client, error) {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	sc := sdk.NewClient(opts...)
	return New(Options{Chat: sc.Chat.Completions, DefaultModel: defaultModel, MaxTokens: maxTokens, Temperature: temperature})
}

func (c *Client) Complete(ctx context.Context, req *model.Request) (*model.Response, error) {
	params, names, err := c.prepareRequest(req)
	if err != nil {
		return nil, err
	}
	resp, err := c.chat.New(ctx, *params)
	if err != nil {
		return nil, fmt.Errorf("openai chat completion: %w", err)
	}
	return translateResponse(resp, names)
}

// Stream reports that this adapter does not implement incremental
// delivery; the Executor falls back to Complete for any endpoint returning
// ErrStreamingUnsupported.
func (c *Client) Stream(context.Context, *model.Request) (model.Streamer, error) {
	return nil, model.ErrStreamingUnsupported
}

// prepareRequest also returns the per-request tool name map: OpenAI function
// names are restricted to [a-zA-Z0-9_-]{1,64}, so dotted "server.tool"
// identifiers are sanitized here and reversed when translating tool calls
// back out of the response.
func (c *Client) prepareRequest(req *model.Request) (*sdk.ChatCompletionNewParams, *provname.Map, error) {
	if len(req.Messages) == 0 {
		return nil, nil, errors.New("openai: messages are required")
	}
	modelID := req.Model
	if modelID == "" {
		modelID = c.model
	}
	names, err := toolNameMap(req.Tools)
	if err != nil {
		return nil, nil, err
	}
	msgs, err := encodeMessages(req.Messages, names)
	if err != nil {
		return nil, nil, err
	}
	toolParams, err := encodeTools(req.Tools, names)
	if err != nil {
		return nil, nil, err
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTk
	}
	params := &sdk.ChatCompletionNewParams{
		Model:    sdk.ChatModel(modelID),
		Messages: msgs,
	}
	if maxTokens > 0 {
		params.MaxCompletionTokens = sdk.Int(int64(maxTokens))
	}
	if len(toolParams) > 0 {
		params.Tools = toolParams
	}
	temp := float64(req.Temperature)
	if temp <= 0 {
		temp = c.temp
	}
	if temp > 0 {
		params.Temperature = sdk.Float(temp)
	}
	if req.ToolChoice != nil {
		params.ToolChoice = encodeToolChoice(*req.ToolChoice, names)
	}
	return params, names, nil
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

func encodeMessages(msgs []*model.Message, names *provname.Map) ([]sdk.ChatCompletionMessageParamUnion, error) {
	out := make([]sdk.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		if m == nil {
			continue
		}
		text := flattenText(m.Parts)
		switch m.Role {
		case model.ConversationRoleSystem:
			if text != "" {
				out = append(out, sdk.SystemMessage(text))
			}
		case model.ConversationRoleUser:
			out = append(out, encodeUserMessage(m, text))
		case model.ConversationRoleAssistant:
			out = append(out, encodeAssistantMessage(m, text, names))
		default:
			return nil, fmt.Errorf("openai: unsupported message role %q", m.Role)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("openai: at least one message is required")
	}
	return out, nil
}

func flattenText(parts []model.Part) string {
	var b strings.Builder
	for _, p := range parts {
		if tp, ok := p.(model.TextPart); ok && tp.Text != "" {
			if b.Len() > 0 {
				b.WriteString("\n")
			}
			b.WriteString(tp.Text)
		}
	}
	return b.String()
}

func encodeUserMessage(m *model.Message, text string) sdk.ChatCompletionMessageParamUnion {
	for _, p := range m.Parts {
		if tr, ok := p.(model.ToolResultPart); ok {
			return encodeToolMessage(tr)
		}
	}
	return sdk.UserMessage(text)
}

func encodeToolMessage(tr model.ToolResultPart) sdk.ChatCompletionMessageParamUnion {
	var content string
	switch c := tr.Content.(type) {
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
	return sdk.ToolMessage(content, tr.ToolUseID)
}

func encodeAssistantMessage(m *model.Message, text string, names *provname.Map) sdk.ChatCompletionMessageParamUnion {
	msg := sdk.AssistantMessage(text)
	var calls []sdk.ChatCompletionMessageToolCallParam
	for _, p := range m.Parts {
		tu, ok := p.(model.ToolUsePart)
		if !ok {
			continue
		}
		args, err := json.Marshal(tu.Input)
		if err != nil {
			args = []byte("{}")
		}
		calls = append(calls, sdk.ChatCompletionMessageToolCallParam{
			ID: tu.ID,
			Function: sdk.ChatCompletionMessageToolCallFunctionParam{
				Name:      names.Safe(tu.Name),
				Arguments: string(args),
			},
		})
	}
	if len(calls) > 0 {
		msg.OfAssistant.ToolCalls = calls
	}
	return msg
}

func encodeToolChoice(tc model.ToolChoice, names *provname.Map) sdk.ChatCompletionToolChoiceOptionUnionParam {
	switch tc.Mode {
	case model.ToolChoiceModeNone:
		return sdk.ChatCompletionToolChoiceOptionUnionParam{OfAuto: sdk.String("none")}
	case model.ToolChoiceModeAny:
		return sdk.ChatCompletionToolChoiceOptionUnionParam{OfAuto: sdk.String("required")}
	case model.ToolChoiceModeTool:
		return sdk.ChatCompletionToolChoiceOptionUnionParam{
			OfChatCompletionNamedToolChoice: &sdk.ChatCompletionNamedToolChoiceParam{
				Function: sdk.ChatCompletionNamedToolChoiceFunctionParam{Name: names.Safe(tc.Name)},
			},
		}
	default:
		return sdk.ChatCompletionToolChoiceOptionUnionParam{OfAuto: sdk.String("auto")}
	}
}

func encodeTools(defs []*model.ToolDefinition, names *provname.Map) ([]sdk.ChatCompletionToolParam, error) {
	if len(defs) == 0 {
		return nil, nil
	}
	out := make([]sdk.ChatCompletionToolParam, 0, len(defs))
	for _, def := range defs {
		if def == nil || def.Name == "" {
			continue
		}
		params, err := json.Marshal(def.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("openai: marshal tool %q schema: %w", def.Name, err)
		}
		var schema map[string]any
		if err := json.Unmarshal(params, &schema); err != nil {
			return nil, fmt.Errorf("openai: tool %q schema must be an object: %w", def.Name, err)
		}
		out = append(out, sdk.ChatCompletionToolParam{
			Function: sdk.FunctionDefinitionParam{
				Name:        names.Safe(def.Name),
				Description: sdk.String(def.Description),
				Parameters:  schema,
			},
		})
	}
	return out, nil
}

func translateResponse(resp *sdk.ChatCompletion, names *provname.Map) (*model.Response, error) {
	if resp == nil || len(resp.Choices) == 0 {
		return nil, errors.New("openai: response had no choices")
	}
	out := &model.Response{}
	for _, choice := range resp.Choices {
		if text := choice.Message.Content; text != "" {
			out.Content = append(out.Content, model.Message{
				Role:  model.ConversationRoleAssistant,
				Parts: []model.Part{model.TextPart{Text: text}},
			})
		}
		for _, call := range choice.Message.ToolCalls {
			canonical, ok := names.Canonical(call.Function.Name)
			if !ok {
				canonical = call.Function.Name
			}
			out.ToolCalls = append(out.ToolCalls, model.ToolCall{
				Name:    tools.Ident(canonical),
				Payload: json.RawMessage(parseToolArguments(call.Function.Arguments)),
				ID:      call.ID,
			})
		}
	}
	out.Usage = model.TokenUsage{
		InputTokens:  int(resp.Usage.PromptTokens),
		OutputTokens: int(resp.Usage.CompletionTokens),
		TotalTokens:  int(resp.Usage.TotalTokens),
	}
	out.StopReason = string(resp.Choices[0].FinishReason)
	return out, nil
}

func parseToolArguments(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return "{}"
	}
	return raw
}
