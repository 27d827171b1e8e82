// Package models defines the conversational state shared across the
// orchestrator: sessions, messages, content blocks, and analysis results.
package models

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

// Session is the unit of conversational state for one analysis question.
// It is serialised as JSON into the session store and mutated only by the
// turn loop and tool-result ingestion.
type Session struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`

	ModelTier   string `json:"model_tier"`
	UseThinking bool   `json:"use_thinking"`

	Query  string      `json:"query"`
	Schema []TableInfo `json:"schema"`

	// Messages is the conversation history in provider message shape:
	// user/assistant roles alternating, starting with user.
	Messages []Message `json:"messages"`

	// QueryResults maps step keys ("step_0", "step_1", ...) to the rows
	// returned by the corresponding client-side tool execution.
	QueryResults map[string]json.RawMessage `json:"query_results"`

	// StepIndex counts completed client-executed tool invocations.
	StepIndex int `json:"step_index"`

	// Iteration counts LLM turns taken.
	Iteration int `json:"iteration"`

	// PendingToolID identifies the tool_use block the client is currently
	// executing; empty when no tool call is outstanding.
	PendingToolID string `json:"pending_tool_id,omitempty"`

	// AwaitingToolResult mirrors PendingToolID != "". Kept as an explicit
	// flag so state transitions read as a state machine.
	AwaitingToolResult bool `json:"awaiting_tool_result"`
}

// TableInfo describes one client-side table available to the agent.
type TableInfo struct {
	TableName  string           `json:"table_name"`
	Columns    []string         `json:"columns"`
	SampleRows []map[string]any `json:"sample_rows"`
	RowCount   int64            `json:"row_count"`
}

// sessionIDBytes gives 192 random bits per identifier. Session IDs guard
// resumable conversations, so they must be unguessable.
const sessionIDBytes = 24

// NewSessionID returns an unguessable opaque session identifier.
func NewSessionID() (string, error) {
	buf := make([]byte, sessionIDBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate session id: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// StepKey returns the query-results key for a step index.
func StepKey(index int) string {
	return fmt.Sprintf("step_%d", index)
}

// Touch updates the activity timestamp.
func (s *Session) Touch(now time.Time) {
	s.LastActivity = now
}

// SetPendingTool marks the session as suspended on a client-executed tool.
func (s *Session) SetPendingTool(toolID string) {
	s.PendingToolID = toolID
	s.AwaitingToolResult = true
}

// ClearPendingTool clears the suspension marker.
func (s *Session) ClearPendingTool() {
	s.PendingToolID = ""
	s.AwaitingToolResult = false
}

// LastMessage returns the most recent message, or nil when the history is
// empty.
func (s *Session) LastMessage() *Message {
	if len(s.Messages) == 0 {
		return nil
	}
	return &s.Messages[len(s.Messages)-1]
}

// Clone returns a deep copy. Stores hand out clones so callers can mutate
// freely before committing.
func (s *Session) Clone() *Session {
	out := *s
	out.Schema = make([]TableInfo, len(s.Schema))
	for i, tbl := range s.Schema {
		out.Schema[i] = tbl.clone()
	}
	out.Messages = make([]Message, len(s.Messages))
	for i, msg := range s.Messages {
		out.Messages[i] = msg.Clone()
	}
	if s.QueryResults != nil {
		out.QueryResults = make(map[string]json.RawMessage, len(s.QueryResults))
		for k, v := range s.QueryResults {
			out.QueryResults[k] = append(json.RawMessage(nil), v...)
		}
	}
	return &out
}

func (t TableInfo) clone() TableInfo {
	out := t
	out.Columns = append([]string(nil), t.Columns...)
	if t.SampleRows != nil {
		out.SampleRows = make([]map[string]any, len(t.SampleRows))
		for i, row := range t.SampleRows {
			copied := make(map[string]any, len(row))
			for k, v := range row {
				copied[k] = v
			}
			out.SampleRows[i] = copied
		}
	}
	return out
}
