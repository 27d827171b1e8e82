package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/tablemind/tablemind/pkg/models"
)

// ErrStreamDone is returned by sends attempted after done was emitted.
// It indicates a turn-loop bug, not a subscriber problem.
var ErrStreamDone = errors.New("stream already ended with done")

// SSE frames typed events onto an HTTP response body. Safe for use from a
// single goroutine per stream, which is all the protocol allows: one
// subscriber, one writer.
//
// The first send failure is retained and every later send returns it
// without touching the connection again; a vanished subscriber must not
// abort the turn that is feeding it.
type SSE struct {
	w        http.ResponseWriter
	flusher  http.Flusher
	done     bool
	writeErr error
}

// NewSSE prepares the response for server-push delivery: sets the streaming
// headers, commits the 200 status, and flushes so the client observes
// headers before the first event. Admission headers (rate, token) must be
// set before calling this.
func NewSSE(w http.ResponseWriter) (*SSE, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("response writer does not support streaming")
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &SSE{w: w, flusher: flusher}, nil
}

func (s *SSE) SendSession(sessionID string) error {
	return s.send(SessionPayload{Type: EventSession, SessionID: sessionID})
}

func (s *SSE) SendThinking(content string) error {
	return s.send(ThinkingPayload{Type: EventThinking, Content: content})
}

func (s *SSE) SendExtendedThinking(content string) error {
	return s.send(ExtendedThinkingPayload{Type: EventExtendedThinking, Content: content})
}

func (s *SSE) SendToolCall(id, name string, input json.RawMessage) error {
	return s.send(ToolCallPayload{Type: EventToolCall, ID: id, Name: name, Input: input})
}

func (s *SSE) SendAnswer(result *models.AnalysisResult) error {
	return s.send(AnswerPayload{Type: EventAnswer, Result: result})
}

func (s *SSE) SendError(message string) error {
	return s.send(ErrorPayload{Type: EventError, Message: message})
}

func (s *SSE) SendDone() error {
	err := s.send(DonePayload{Type: EventDone})
	s.done = true
	return err
}

// send frames one payload as "data: <json>\n\n" and flushes it through.
func (s *SSE) send(payload any) error {
	if s.done {
		return ErrStreamDone
	}
	if s.writeErr != nil {
		return s.writeErr
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode stream event: %w", err)
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		s.writeErr = err
		return err
	}
	s.flusher.Flush()
	return nil
}
