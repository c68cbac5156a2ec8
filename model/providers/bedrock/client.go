// Package bedrock adapts the AWS Bedrock Converse API to model.Client, a
// third paid-cloud-style model endpoint the Router can rank (spec §4.5).
// Streaming is not implemented here; Stream returns
// model.ErrStreamingUnsupported, which the Executor treats as a normal
// endpoint capability by falling back to Complete, the same contract the
// openai adapter relies on.
package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	smithy "github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/kairoslabs/delegate/model"
	"github.com/kairoslabs/delegate/model/providers/provname"
	"github.com/kairoslabs/delegate/tools"
)

// RuntimeClient is the subset of the AWS Bedrock runtime client used here,
// satisfied by *bedrockruntime.Client.
type RuntimeClient interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// Options configures the Bedrock adapter.
type Options struct {
	Runtime      RuntimeClient
	DefaultModel string
	HighModel    string
	SmallModel   string
	MaxTokens    int
	Temperature  float32
}

// Client implements model.Client on top of AWS Bedrock Converse.
type Client struct {
	runtime      RuntimeClient
	defaultModel string
	highModel    string
	smallModel   string
	maxTok       int
	temp         float32
}

// New builds a Client.
func New(opts Options) (*Client, error) {
	if opts.Runtime == nil {
		return nil, errors.New("bedrock: runtime client is required")
	}
	if opts.DefaultModel == "" {
		return nil, errors.New("bedrock: default model identifier is required")
	}
	return &Client{
		runtime: opts.Runtime, defaultModel: opts.DefaultModel, highModel: opts.HighModel,
		smallModel: opts.SmallModel, maxTok: opts.MaxTokens, temp: opts.Temperature,
	}, nil
}

func (c *Client) Complete(ctx context.Context, req *model.Request) (*model.Response, error) {
	input, names, err := c.prepareRequest(req)
	if err != nil {
		return nil, err
	}
	output, err := c.runtime.Converse(ctx, input)
	if err != nil {
		if isRateLimited(err) {
			return nil, fmt.Errorf("%w: %w", model.ErrRateLimited, err)
		}
		return nil, fmt.Errorf("bedrock converse: %w", err)
	}
	return translateResponse(output, names)
}

func (c *Client) Stream(context.Context, *model.Request) (model.Streamer, error) {
	return nil, model.ErrStreamingUnsupported
}

// prepareRequest also returns the per-request tool name map: Bedrock's
// toolSpec.name field is restricted to [a-zA-Z0-9_-]{1,64}, so dotted
// "server.tool" identifiers are sanitized here and reversed when translating
// the response's toolUse blocks.
func (c *Client) prepareRequest(req *model.Request) (*bedrockruntime.ConverseInput, *provname.Map, error) {
	if len(req.Messages) == 0 {
		return nil, nil, errors.New("bedrock: messages are required")
	}
	modelID := c.resolveModelID(req)
	names, err := toolNameMap(req.Tools)
	if err != nil {
		return nil, nil, err
	}
	toolConfig, err := encodeTools(req.Tools, req.ToolChoice, names)
	if err != nil {
		return nil, nil, err
	}
	messages, system, err := encodeMessages(req.Messages, names)
	if err != nil {
		return nil, nil, err
	}
	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(modelID),
		Messages: messages,
	}
	if len(system) > 0 {
		input.System = system
	}
	if toolConfig != nil {
		input.ToolConfig = toolConfig
	}
	if cfg := c.inferenceConfig(req.MaxTokens, req.Temperature); cfg != nil {
		input.InferenceConfig = cfg
	}
	return input, names, nil
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

func (c *Client) inferenceConfig(maxTokens int, temp float32) *brtypes.InferenceConfiguration {
	var cfg brtypes.InferenceConfiguration
	tokens := maxTokens
	if tokens <= 0 {
		tokens = c.maxTok
	}
	if tokens > 0 {
		cfg.MaxTokens = aws.Int32(int32(tokens))
	}
	t := temp
	if t <= 0 {
		t = c.temp
	}
	if t > 0 {
		cfg.Temperature = aws.Float32(t)
	}
	if cfg.MaxTokens == nil && cfg.Temperature == nil {
		return nil
	}
	return &cfg
}

func isRateLimited(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, model.ErrRateLimited) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "TooManyRequestsException":
			return true
		}
	}
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) && respErr.HTTPStatusCode() == 429 {
		return true
	}
	return false
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

func encodeMessages(msgs []*model.Message, names *provname.Map) ([]brtypes.Message, []brtypes.SystemContentBlock, error) {
	var conversation []brtypes.Message
	var system []brtypes.SystemContentBlock
	for _, m := range msgs {
		if m == nil {
			continue
		}
		if m.Role == model.ConversationRoleSystem {
			for _, p := range m.Parts {
				if v, ok := p.(model.TextPart); ok && v.Text != "" {
					system = append(system, &brtypes.SystemContentBlockMemberText{Value: v.Text})
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
		var role brtypes.ConversationRole
		switch m.Role {
		case model.ConversationRoleUser:
			role = brtypes.ConversationRoleUser
		case model.ConversationRoleAssistant:
			role = brtypes.ConversationRoleAssistant
		default:
			return nil, nil, fmt.Errorf("bedrock: unsupported message role %q", m.Role)
		}
		conversation = append(conversation, brtypes.Message{Role: role, Content: blocks})
	}
	if len(conversation) == 0 {
		return nil, nil, errors.New("bedrock: at least one user/assistant message is required")
	}
	return conversation, system, nil
}

func encodeBlocks(parts []model.Part, names *provname.Map) ([]brtypes.ContentBlock, error) {
	var blocks []brtypes.ContentBlock
	for _, part := range parts {
		switch v := part.(type) {
		case model.TextPart:
			if v.Text != "" {
				blocks = append(blocks, &brtypes.ContentBlockMemberText{Value: v.Text})
			}
		case model.ToolUsePart:
			if v.Name == "" {
				return nil, errors.New("bedrock: tool_use part missing name")
			}
			blocks = append(blocks, &brtypes.ContentBlockMemberToolUse{
				Value: brtypes.ToolUseBlock{
					ToolUseId: aws.String(v.ID),
					Name:      aws.String(names.Safe(v.Name)),
					Input:     toDocument(v.Input),
				},
			})
		case model.ToolResultPart:
			blocks = append(blocks, encodeToolResult(v))
		}
	}
	return blocks, nil
}

func encodeToolResult(v model.ToolResultPart) brtypes.ContentBlock {
	status := brtypes.ToolResultStatusSuccess
	if v.IsError {
		status = brtypes.ToolResultStatusError
	}
	var text string
	switch c := v.Content.(type) {
	case nil:
		text = ""
	case string:
		text = c
	case []byte:
		text = string(c)
	default:
		if data, err := json.Marshal(c); err == nil {
			text = string(data)
		}
	}
	return &brtypes.ContentBlockMemberToolResult{
		Value: brtypes.ToolResultBlock{
			ToolUseId: aws.String(v.ToolUseID),
			Status:    status,
			Content:   []brtypes.ToolResultContentBlock{&brtypes.ToolResultContentBlockMemberText{Value: text}},
		},
	}
}

func encodeTools(defs []*model.ToolDefinition, choice *model.ToolChoice, names *provname.Map) (*brtypes.ToolConfiguration, error) {
	if len(defs) == 0 {
		if choice == nil {
			return nil, nil
		}
		return nil, errors.New("bedrock: tool choice is set but no tools are defined")
	}
	var toolList []brtypes.Tool
	for _, def := range defs {
		if def == nil || def.Name == "" {
			continue
		}
		if def.Description == "" {
			return nil, fmt.Errorf("bedrock: tool %q is missing description", def.Name)
		}
		toolList = append(toolList, &brtypes.ToolMemberToolSpec{
			Value: brtypes.ToolSpecification{
				Name:        aws.String(names.Safe(def.Name)),
				Description: aws.String(def.Description),
				InputSchema: &brtypes.ToolInputSchemaMemberJson{Value: toDocument(def.InputSchema)},
			},
		})
	}
	if len(toolList) == 0 {
		return nil, nil
	}
	cfg := &brtypes.ToolConfiguration{Tools: toolList}
	if choice == nil {
		return cfg, nil
	}
	switch choice.Mode {
	case "", model.ToolChoiceModeAuto:
	case model.ToolChoiceModeNone:
	case model.ToolChoiceModeAny:
		cfg.ToolChoice = &brtypes.ToolChoiceMemberAny{Value: brtypes.AnyToolChoice{}}
	case model.ToolChoiceModeTool:
		if choice.Name == "" {
			return nil, fmt.Errorf("bedrock: tool choice mode %q requires a tool name", choice.Mode)
		}
		cfg.ToolChoice = &brtypes.ToolChoiceMemberTool{
			Value: brtypes.SpecificToolChoice{Name: aws.String(names.Safe(choice.Name))},
		}
	default:
		return nil, fmt.Errorf("bedrock: unsupported tool choice mode %q", choice.Mode)
	}
	return cfg, nil
}

func toDocument(schema any) document.Interface {
	if schema == nil {
		return document.NewLazyDocument(map[string]any{"type": "object"})
	}
	switch v := schema.(type) {
	case document.Interface:
		return v
	case json.RawMessage:
		var decoded any
		if len(v) == 0 {
			return document.NewLazyDocument(map[string]any{"type": "object"})
		}
		if err := json.Unmarshal(v, &decoded); err != nil {
			return document.NewLazyDocument(map[string]any{"type": "object"})
		}
		return document.NewLazyDocument(decoded)
	default:
		return document.NewLazyDocument(v)
	}
}

func translateResponse(output *bedrockruntime.ConverseOutput, names *provname.Map) (*model.Response, error) {
	if output == nil {
		return nil, errors.New("bedrock: response is nil")
	}
	resp := &model.Response{}
	if msg, ok := output.Output.(*brtypes.ConverseOutputMemberMessage); ok {
		for _, block := range msg.Value.Content {
			switch v := block.(type) {
			case *brtypes.ContentBlockMemberText:
				if v.Value == "" {
					continue
				}
				resp.Content = append(resp.Content, model.Message{
					Role:  model.ConversationRoleAssistant,
					Parts: []model.Part{model.TextPart{Text: v.Value}},
				})
			case *brtypes.ContentBlockMemberToolUse:
				payload := decodeDocument(v.Value.Input)
				var name string
				if v.Value.Name != nil {
					if canonical, ok := names.Canonical(*v.Value.Name); ok {
						name = canonical
					} else {
						name = *v.Value.Name
					}
				}
				var id string
				if v.Value.ToolUseId != nil {
					id = *v.Value.ToolUseId
				}
				resp.ToolCalls = append(resp.ToolCalls, model.ToolCall{
					Name:    tools.Ident(name),
					Payload: payload,
					ID:      id,
				})
			}
		}
	}
	if usage := output.Usage; usage != nil {
		resp.Usage = model.TokenUsage{
			InputTokens:  int(ptrValue(usage.InputTokens)),
			OutputTokens: int(ptrValue(usage.OutputTokens)),
			TotalTokens:  int(ptrValue(usage.TotalTokens)),
		}
	}
	resp.StopReason = string(output.StopReason)
	return resp, nil
}

func decodeDocument(doc document.Interface) json.RawMessage {
	if doc == nil {
		return nil
	}
	data, err := doc.MarshalSmithyDocument()
	if err != nil || len(data) == 0 {
		return nil
	}
	return json.RawMessage(data)
}

func ptrValue[T ~int32 | ~int64](ptr *T) T {
	if ptr == nil {
		return 0
	}
	return *ptr
}
