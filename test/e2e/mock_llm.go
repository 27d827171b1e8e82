package e2e

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/tablemind/tablemind/pkg/llm"
	"github.com/tablemind/tablemind/pkg/models"
)

// LLMScriptEntry defines a single scripted LLM turn.
type LLMScriptEntry struct {
	// Turn outcome (exactly one must be set)
	Response *llm.Response // Returned from Call()
	Err      error         // Returned from Call() instead

	// Test control
	WaitCh  <-chan struct{} // Block Call() until closed, then return normally
	OnBlock chan<- struct{} // Notified when Call() enters its blocking path
}

// ScriptedLLMClient implements llm.Client from a fixed script consumed in
// call order. Running past the end of the script fails the turn, which shows
// up in the stream as a provider error rather than a hang.
type ScriptedLLMClient struct {
	mu       sync.Mutex
	entries  []LLMScriptEntry
	index    int
	captured []*llm.Request
}

// NewScriptedLLMClient creates an empty script.
func NewScriptedLLMClient() *ScriptedLLMClient {
	return &ScriptedLLMClient{}
}

// Add appends an entry consumed on the next unserved Call.
func (c *ScriptedLLMClient) Add(entry LLMScriptEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, entry)
}

// AddResponse is shorthand for Add with a plain response.
func (c *ScriptedLLMClient) AddResponse(resp *llm.Response) {
	c.Add(LLMScriptEntry{Response: resp})
}

// Call implements llm.Client.
func (c *ScriptedLLMClient) Call(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	c.mu.Lock()
	c.captured = append(c.captured, req)
	if c.index >= len(c.entries) {
		c.mu.Unlock()
		return nil, &llm.Error{Message: "scripted client exhausted"}
	}
	entry := c.entries[c.index]
	c.index++
	c.mu.Unlock()

	// Handle WaitCh: park the turn until the test releases it.
	if entry.WaitCh != nil {
		if entry.OnBlock != nil {
			entry.OnBlock <- struct{}{}
		}
		select {
		case <-entry.WaitCh:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if entry.Err != nil {
		return nil, entry.Err
	}
	return entry.Response, nil
}

// CallCount returns the total number of Call() invocations.
func (c *ScriptedLLMClient) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.captured)
}

// CapturedRequests returns a snapshot of every request the client received.
func (c *ScriptedLLMClient) CapturedRequests() []*llm.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*llm.Request, len(c.captured))
	copy(out, c.captured)
	return out
}

// FinalAnswerResponse scripts a turn that concludes the analysis with a
// final_answer tool call.
func FinalAnswerResponse(answer string) *llm.Response {
	input, _ := json.Marshal(map[string]string{
		"thought":   "ready to answer",
		"answer":    answer,
		"chartType": "table",
	})
	return &llm.Response{
		ContentBlocks: []models.ContentBlock{
			models.NewToolUseBlock("toolu_final", "final_answer", input),
		},
		StopReason: "tool_use",
		Usage:      llm.Usage{InputTokens: 120, OutputTokens: 40},
	}
}

// ToolCallResponse scripts a turn that suspends the session on a
// browser-executed tool.
func ToolCallResponse(id, name string, input map[string]any) *llm.Response {
	raw, _ := json.Marshal(input)
	return &llm.Response{
		ContentBlocks: []models.ContentBlock{
			models.NewToolUseBlock(id, name, raw),
		},
		StopReason: "tool_use",
		Usage:      llm.Usage{InputTokens: 200, OutputTokens: 60},
	}
}
