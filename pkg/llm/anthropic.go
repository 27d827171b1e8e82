package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/tablemind/tablemind/pkg/models"
)

// MessagesAPI captures the subset of the Anthropic SDK used by the adapter.
// It is satisfied by *sdk.MessageService so tests can substitute a fake.
type MessagesAPI interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// Anthropic implements Client on the Claude Messages API.
type Anthropic struct {
	messages MessagesAPI
	timeout  time.Duration
}

// NewAnthropic builds an adapter over a Messages API implementation.
// A non-positive timeout disables the per-call deadline.
func NewAnthropic(messages MessagesAPI, timeout time.Duration) (*Anthropic, error) {
	if messages == nil {
		return nil, errors.New("anthropic messages client is required")
	}
	return &Anthropic{messages: messages, timeout: timeout}, nil
}

// NewAnthropicFromAPIKey constructs the adapter with the default SDK HTTP
// client.
func NewAnthropicFromAPIKey(apiKey string, timeout time.Duration) (*Anthropic, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic api key is required")
	}
	ac := sdk.NewClient(option.WithAPIKey(apiKey))
	return NewAnthropic(&ac.Messages, timeout)
}

func (c *Anthropic) Call(ctx context.Context, req *Request) (*Response, error) {
	params, err := encodeParams(req)
	if err != nil {
		return nil, err
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	msg, err := c.messages.New(ctx, *params)
	if err != nil {
		return nil, wrapProviderError(err)
	}
	return translateMessage(msg)
}

func encodeParams(req *Request) (*sdk.MessageNewParams, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("anthropic: messages are required")
	}
	if req.Model.Model == "" {
		return nil, errors.New("anthropic: model identifier is required")
	}
	if req.Model.MaxTokens <= 0 {
		return nil, errors.New("anthropic: max_tokens must be positive")
	}

	conversation, err := encodeMessages(req.Messages)
	if err != nil {
		return nil, err
	}

	params := sdk.MessageNewParams{
		MaxTokens: req.Model.MaxTokens,
		Messages:  conversation,
		Model:     sdk.Model(req.Model.Model),
	}
	if req.System != "" {
		params.System = []sdk.TextBlockParam{{Text: req.System}}
	}
	if len(req.Tools) > 0 {
		tools, err := encodeTools(req.Tools)
		if err != nil {
			return nil, err
		}
		params.Tools = tools
	}
	if req.Thinking != nil {
		budget := req.Thinking.BudgetTokens
		if budget < 1024 {
			return nil, fmt.Errorf("anthropic: thinking budget %d must be >= 1024", budget)
		}
		if budget >= req.Model.MaxTokens {
			return nil, fmt.Errorf("anthropic: thinking budget %d must be less than max_tokens %d", budget, req.Model.MaxTokens)
		}
		params.Thinking = sdk.ThinkingConfigParamOfEnabled(budget)
	}
	return &params, nil
}

func encodeMessages(msgs []models.Message) ([]sdk.MessageParam, error) {
	conversation := make([]sdk.MessageParam, 0, len(msgs))

	for _, m := range msgs {
		blocks := make([]sdk.ContentBlockParamUnion, 0, len(m.Content))
		for _, blk := range m.Content {
			switch blk.Type {
			case models.BlockTypeText:
				if blk.Text != "" {
					blocks = append(blocks, sdk.NewTextBlock(blk.Text))
				}
			case models.BlockTypeThinking:
				// Replayed verbatim including the signature; the provider
				// validates it when thinking is enabled.
				blocks = append(blocks, sdk.ContentBlockParamUnion{
					OfThinking: &sdk.ThinkingBlockParam{
						Thinking:  blk.Thinking,
						Signature: blk.Signature,
					},
				})
			case models.BlockTypeToolUse:
				var input map[string]any
				if err := json.Unmarshal(blk.Input, &input); err != nil {
					return nil, fmt.Errorf("anthropic: invalid tool_use input for %s: %w", blk.ID, err)
				}
				blocks = append(blocks, sdk.NewToolUseBlock(blk.ID, input, blk.Name))
			case models.BlockTypeToolResult:
				blocks = append(blocks, sdk.NewToolResultBlock(blk.ToolUseID, blk.Content, blk.IsError))
			default:
				return nil, fmt.Errorf("anthropic: unsupported content block type %q", blk.Type)
			}
		}
		if len(blocks) == 0 {
			continue
		}
		switch m.Role {
		case models.RoleUser:
			conversation = append(conversation, sdk.NewUserMessage(blocks...))
		case models.RoleAssistant:
			conversation = append(conversation, sdk.NewAssistantMessage(blocks...))
		default:
			return nil, fmt.Errorf("anthropic: unsupported message role %q", m.Role)
		}
	}
	if len(conversation) == 0 {
		return nil, errors.New("anthropic: at least one non-empty message is required")
	}
	return conversation, nil
}

func encodeTools(defs []ToolDefinition) ([]sdk.ToolUnionParam, error) {
	toolList := make([]sdk.ToolUnionParam, 0, len(defs))
	for _, def := range defs {
		if def.Name == "" {
			return nil, errors.New("anthropic: tool is missing a name")
		}
		var schema sdk.ToolInputSchemaParam
		if err := json.Unmarshal(def.InputSchema, &schema); err != nil {
			return nil, fmt.Errorf("anthropic: invalid schema for tool %q: %w", def.Name, err)
		}
		u := sdk.ToolUnionParamOfTool(schema, def.Name)
		if u.OfTool == nil {
			return nil, fmt.Errorf("anthropic: invalid schema for tool %q: missing tool definition", def.Name)
		}
		u.OfTool.Description = sdk.String(def.Description)
		toolList = append(toolList, u)
	}
	return toolList, nil
}

func translateMessage(msg *sdk.Message) (*Response, error) {
	if msg == nil {
		return nil, &Error{Message: "provider returned an empty response"}
	}

	resp := &Response{
		StopReason: string(msg.StopReason),
		Usage: Usage{
			InputTokens:  msg.Usage.InputTokens,
			OutputTokens: msg.Usage.OutputTokens,
		},
	}
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			if block.Text == "" {
				continue
			}
			resp.ContentBlocks = append(resp.ContentBlocks, models.NewTextBlock(block.Text))
		case "thinking":
			resp.ContentBlocks = append(resp.ContentBlocks, models.NewThinkingBlock(block.Thinking, block.Signature))
		case "tool_use":
			resp.ContentBlocks = append(resp.ContentBlocks, models.NewToolUseBlock(block.ID, block.Name, json.RawMessage(block.Input)))
		}
	}
	return resp, nil
}

type anthropicErrorPayload struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
	RequestID string `json:"request_id"`
}

// wrapProviderError flattens SDK and transport failures into *Error.
func wrapProviderError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		out := &Error{
			Message:    "anthropic request failed",
			StatusCode: apiErr.StatusCode,
			RequestID:  apiErr.RequestID,
			Err:        err,
		}
		if raw := apiErr.RawJSON(); raw != "" {
			var payload anthropicErrorPayload
			if json.Unmarshal([]byte(raw), &payload) == nil && payload.Error.Message != "" {
				out.Message = payload.Error.Message
				if payload.RequestID != "" {
					out.RequestID = payload.RequestID
				}
			}
		}
		return out
	}

	return &Error{Message: err.Error(), Err: err}
}
