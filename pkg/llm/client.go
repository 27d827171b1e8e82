// Package llm abstracts the conversation-completion provider behind a
// single-call client so the turn loop and tests never touch provider SDKs
// directly.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tablemind/tablemind/pkg/models"
)

// ModelConfig is the provider-facing slice of a tier: which model to call
// and the completion token ceiling.
type ModelConfig struct {
	Model     string
	MaxTokens int64
}

// ThinkingConfig enables extended thinking with a token budget. The budget
// must be at least the provider minimum of 1024 and below MaxTokens.
type ThinkingConfig struct {
	BudgetTokens int64
}

// ToolDefinition is one declarative tool advertised to the model.
type ToolDefinition struct {
	Name        string
	Description string

	// InputSchema is the tool's JSON Schema object.
	InputSchema json.RawMessage
}

// Request is one completion call: full conversation history plus the
// static system prompt, tool catalog, and model settings.
type Request struct {
	System   string
	Messages []models.Message
	Tools    []ToolDefinition
	Model    ModelConfig
	Thinking *ThinkingConfig
}

// Usage is the provider-reported token consumption for one call.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// Total is the number charged against the user's quota.
func (u Usage) Total() int64 {
	return u.InputTokens + u.OutputTokens
}

// Response is the assistant's reply: ordered content blocks
// (text/thinking/tool_use), the stop reason, and usage.
type Response struct {
	ContentBlocks []models.ContentBlock
	StopReason    string
	Usage         Usage
}

// Client issues completion calls against the configured provider.
type Client interface {
	Call(ctx context.Context, req *Request) (*Response, error)
}

// Error carries a provider failure in a uniform shape. Message is safe to
// surface to the end user; the wrapped cause is for logs.
type Error struct {
	Message    string
	StatusCode int
	RequestID  string
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("llm call failed (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("llm call failed: %s", e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// UserMessage extracts the client-surfaceable message from any error the
// llm package returned.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var llmErr *Error
	if errors.As(err, &llmErr) && llmErr.Message != "" {
		return llmErr.Message
	}
	return err.Error()
}
