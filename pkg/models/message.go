package models

import "encoding/json"

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Block type discriminators, matching the provider wire format.
const (
	BlockTypeText       = "text"
	BlockTypeThinking   = "thinking"
	BlockTypeToolUse    = "tool_use"
	BlockTypeToolResult = "tool_result"
)

// Message is one turn of conversation history in provider shape.
type Message struct {
	Role    Role           `json:"role"`
	Content []ContentBlock `json:"content"`
}

// ContentBlock is a tagged union over the provider's content block kinds.
// Only the fields for the active Type are populated; the rest marshal away
// through omitempty so stored history stays in provider shape.
type ContentBlock struct {
	Type string `json:"type"`

	// Text blocks.
	Text string `json:"text,omitempty"`

	// Thinking blocks. The signature must round-trip unmodified or the
	// provider rejects the replayed history.
	Thinking  string `json:"thinking,omitempty"`
	Signature string `json:"signature,omitempty"`

	// Tool use blocks.
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// Tool result blocks.
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`
}

// NewTextBlock builds a text content block.
func NewTextBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockTypeText, Text: text}
}

// NewThinkingBlock builds a thinking content block with its signature.
func NewThinkingBlock(thinking, signature string) ContentBlock {
	return ContentBlock{Type: BlockTypeThinking, Thinking: thinking, Signature: signature}
}

// NewToolUseBlock builds a tool_use content block.
func NewToolUseBlock(id, name string, input json.RawMessage) ContentBlock {
	return ContentBlock{Type: BlockTypeToolUse, ID: id, Name: name, Input: input}
}

// NewToolResultBlock builds a tool_result content block referencing a prior
// tool_use block.
func NewToolResultBlock(toolUseID, content string, isError bool) ContentBlock {
	return ContentBlock{Type: BlockTypeToolResult, ToolUseID: toolUseID, Content: content, IsError: isError}
}

// NewUserMessage builds a user-role message from blocks.
func NewUserMessage(blocks ...ContentBlock) Message {
	return Message{Role: RoleUser, Content: blocks}
}

// NewAssistantMessage builds an assistant-role message from blocks.
func NewAssistantMessage(blocks ...ContentBlock) Message {
	return Message{Role: RoleAssistant, Content: blocks}
}

// FirstToolUse returns the first tool_use block, or nil when the message
// contains none. Parallel tool calls are not supported, so only the first
// block is ever dispatched.
func (m *Message) FirstToolUse() *ContentBlock {
	for i := range m.Content {
		if m.Content[i].Type == BlockTypeToolUse {
			return &m.Content[i]
		}
	}
	return nil
}

// ToolUseByID returns the tool_use block with the given id, or nil.
func (m *Message) ToolUseByID(id string) *ContentBlock {
	for i := range m.Content {
		if m.Content[i].Type == BlockTypeToolUse && m.Content[i].ID == id {
			return &m.Content[i]
		}
	}
	return nil
}

// Clone deep-copies the message.
func (m Message) Clone() Message {
	out := m
	out.Content = make([]ContentBlock, len(m.Content))
	for i, blk := range m.Content {
		out.Content[i] = blk
		if blk.Input != nil {
			out.Content[i].Input = append(json.RawMessage(nil), blk.Input...)
		}
	}
	return out
}
