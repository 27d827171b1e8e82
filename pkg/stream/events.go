// Package stream delivers typed analysis events to a single subscriber over
// a server-push HTTP response.
//
// Wire framing is one line per event: the JSON payload prefixed with
// "data: " and terminated by a blank line. Every payload carries a "type"
// discriminator so the client can demultiplex without SSE event names.
//
// Stream contract:
//
//	start stream:   session, e_1 … e_k, done            (normal end)
//	                session, e_1 … e_k, tool_call        (suspension, no done)
//	resume stream:  e_1 … e_k, done | tool_call          (never session)
//	error flow:     …, error, done
//
// A stream that ends on tool_call signals the client to execute the tool
// locally and reconnect via resume; every other stream ends with done.
package stream

import (
	"encoding/json"

	"github.com/tablemind/tablemind/pkg/models"
)

// Event type discriminators.
const (
	EventSession          = "session"
	EventThinking         = "thinking"
	EventExtendedThinking = "extended_thinking"
	EventToolCall         = "tool_call"
	EventAnswer           = "answer"
	EventError            = "error"
	EventDone             = "done"
)

// SessionPayload opens a start stream with the session identifier the
// client needs for tool-result posts and resumes.
type SessionPayload struct {
	Type      string `json:"type"` // always EventSession
	SessionID string `json:"sessionId"`
}

// ThinkingPayload carries visible assistant text.
type ThinkingPayload struct {
	Type    string `json:"type"` // always EventThinking
	Content string `json:"content"`
}

// ExtendedThinkingPayload carries the model's internal reasoning, emitted
// only when extended thinking is active.
type ExtendedThinkingPayload struct {
	Type    string `json:"type"` // always EventExtendedThinking
	Content string `json:"content"`
}

// ToolCallPayload asks the client to execute a tool against its local
// analytics engine. It is always the last event of its stream.
type ToolCallPayload struct {
	Type  string          `json:"type"` // always EventToolCall
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// AnswerPayload delivers the final analysis result.
type AnswerPayload struct {
	Type   string                 `json:"type"` // always EventAnswer
	Result *models.AnalysisResult `json:"result"`
}

// ErrorPayload reports a failure to the subscriber. Always followed by done.
type ErrorPayload struct {
	Type    string `json:"type"` // always EventError
	Message string `json:"message"`
}

// DonePayload terminates a stream.
type DonePayload struct {
	Type string `json:"type"` // always EventDone
}

// Emitter is the turn loop's view of the subscriber connection. Send
// failures mean the subscriber is gone; callers treat them as advisory and
// finish the turn regardless, so state and usage are still committed.
type Emitter interface {
	SendSession(sessionID string) error
	SendThinking(content string) error
	SendExtendedThinking(content string) error
	SendToolCall(id, name string, input json.RawMessage) error
	SendAnswer(result *models.AnalysisResult) error
	SendError(message string) error
	SendDone() error
}
