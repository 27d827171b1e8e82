package e2e

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tablemind/tablemind/pkg/models"
)

// Event is one parsed frame from an event stream.
type Event struct {
	Type   string
	Raw    json.RawMessage        // Original JSON
	Parsed map[string]interface{} // Parsed for assertions
}

// StreamResult is a fully consumed response from a streaming endpoint.
// Admission rejections arrive as plain JSON, so Body carries the raw bytes
// whenever the response was not an event stream.
type StreamResult struct {
	Status int
	Header http.Header
	Events []Event
	Body   []byte
}

// Types returns the event type sequence of the consumed stream.
func (r *StreamResult) Types() []string {
	return EventTypes(r.Events)
}

// EventTypes returns the type sequence of a slice of events.
func EventTypes(events []Event) []string {
	types := make([]string, 0, len(events))
	for _, ev := range events {
		types = append(types, ev.Type)
	}
	return types
}

// JSONBody parses the non-stream response body as a JSON object.
func (r *StreamResult) JSONBody(t *testing.T) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(r.Body, &body), "body %q is not a JSON object", r.Body)
	return body
}

// ────────────────────────────────────────────────────────────
// HTTP Client Helpers
// ────────────────────────────────────────────────────────────

// AnalyzeTarget builds a /analyze URL for the standard single-table schema.
func AnalyzeTarget(query string, extra map[string]string) string {
	schema, _ := json.Marshal(models.TableInfo{
		TableName:  "data",
		Columns:    []string{"a", "b"},
		SampleRows: []map[string]any{{"a": 1, "b": 2}},
		RowCount:   3,
	})
	params := url.Values{}
	params.Set("query", query)
	params.Set("schema", string(schema))
	for k, v := range extra {
		params.Set(k, v)
	}
	return "/analyze?" + params.Encode()
}

// Analyze opens GET /analyze as user and consumes the response to EOF.
func (app *TestApp) Analyze(t *testing.T, user, query string, extra map[string]string) *StreamResult {
	t.Helper()
	return app.CollectStream(t, user, AnalyzeTarget(query, extra))
}

// Resume opens GET /analyze/resume as user and consumes the response to EOF.
func (app *TestApp) Resume(t *testing.T, user, sessionID string) *StreamResult {
	t.Helper()
	return app.CollectStream(t, user, "/analyze/resume?sessionId="+url.QueryEscape(sessionID))
}

// SubmitToolResult posts rows for the pending tool call and expects success.
func (app *TestApp) SubmitToolResult(t *testing.T, user, sessionID, toolID string, result any) map[string]interface{} {
	t.Helper()
	return app.postJSON(t, user, "/analyze/tool-result", map[string]any{
		"sessionId": sessionID,
		"toolId":    toolID,
		"result":    result,
	}, http.StatusOK)
}

// GetHealth calls GET /health.
func (app *TestApp) GetHealth(t *testing.T) map[string]interface{} {
	t.Helper()
	resp, err := http.DefaultClient.Do(app.newRequest(t, http.MethodGet, "/health", nil, ""))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode, "GET /health: unexpected status")
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func (app *TestApp) postJSON(t *testing.T, user, path string, body any, expectedStatus int) map[string]interface{} {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := app.newRequest(t, http.MethodPost, path, bytes.NewReader(data), user)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, expectedStatus, resp.StatusCode, "POST %s: unexpected status", path)
	var result map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	return result
}

// newRequest builds a request carrying the auth-proxy identity headers.
// An empty user sends the request anonymously.
func (app *TestApp) newRequest(t *testing.T, method, path string, body io.Reader, user string) *http.Request {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), method, app.BaseURL+path, body)
	require.NoError(t, err)
	if user != "" {
		req.Header.Set("X-Forwarded-User", user)
	}
	return req
}

// ────────────────────────────────────────────────────────────
// SSE Stream Consumption
// ────────────────────────────────────────────────────────────

// CollectStream issues a GET as user and consumes the whole response,
// parsing frames when the server answered with an event stream.
func (app *TestApp) CollectStream(t *testing.T, user, path string) *StreamResult {
	t.Helper()
	conn := app.OpenStream(t, user, path)
	defer conn.Close()

	result := &StreamResult{
		Status: conn.resp.StatusCode,
		Header: conn.resp.Header,
	}
	if !strings.HasPrefix(conn.resp.Header.Get("Content-Type"), "text/event-stream") {
		body, err := io.ReadAll(conn.resp.Body)
		require.NoError(t, err)
		result.Body = body
		return result
	}
	result.Events = conn.ReadToEnd(t)
	return result
}

// OpenStream issues a GET as user and returns the live connection without
// consuming it. Callers read frames incrementally and must Close.
func (app *TestApp) OpenStream(t *testing.T, user, path string) *StreamConn {
	t.Helper()
	resp, err := http.DefaultClient.Do(app.newRequest(t, http.MethodGet, path, nil, user))
	require.NoError(t, err)
	return &StreamConn{resp: resp, reader: bufio.NewReader(resp.Body)}
}

// StreamConn is an open streaming response being read frame by frame.
type StreamConn struct {
	resp   *http.Response
	reader *bufio.Reader
}

// Status returns the HTTP status of the response.
func (c *StreamConn) Status() int {
	return c.resp.StatusCode
}

// Header returns the response headers.
func (c *StreamConn) Header() http.Header {
	return c.resp.Header
}

// Next blocks until the next frame arrives. Fails the test if none shows up
// within 10 seconds, so a stalled stream cannot hang the run.
func (c *StreamConn) Next(t *testing.T) Event {
	t.Helper()
	type frameResult struct {
		ev  Event
		err error
	}
	ch := make(chan frameResult, 1)
	go func() {
		ev, err := c.readFrame()
		ch <- frameResult{ev, err}
	}()
	select {
	case r := <-ch:
		require.NoError(t, r.err, "reading next frame")
		return r.ev
	case <-time.After(10 * time.Second):
		t.Fatal("timeout waiting for next frame")
		return Event{}
	}
}

// ReadToEnd consumes the remaining frames until the server closes the stream.
func (c *StreamConn) ReadToEnd(t *testing.T) []Event {
	t.Helper()
	var events []Event
	for {
		ev, err := c.readFrame()
		if err == io.EOF {
			return events
		}
		require.NoError(t, err, "reading frame %d", len(events))
		events = append(events, ev)
	}
}

// Close releases the underlying connection.
func (c *StreamConn) Close() {
	_ = c.resp.Body.Close()
}

// readFrame reads one "data: <json>\n\n" frame. Returns io.EOF once the
// server has closed the stream.
func (c *StreamConn) readFrame() (Event, error) {
	var data []byte
	for {
		line, err := c.reader.ReadString('\n')
		if err != nil {
			if err == io.EOF && len(data) == 0 {
				return Event{}, io.EOF
			}
			return Event{}, fmt.Errorf("read frame line: %w", err)
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if len(data) == 0 {
				continue // stray separator between frames
			}
			break
		}
		payload, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			return Event{}, fmt.Errorf("frame line %q lacks data prefix", line)
		}
		data = append(data, payload...)
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return Event{}, fmt.Errorf("frame %q is not valid JSON: %w", data, err)
	}
	ev := Event{Raw: json.RawMessage(data), Parsed: parsed}
	if typ, ok := parsed["type"].(string); ok {
		ev.Type = typ
	}
	return ev, nil
}

// AnswerResult unpacks the result object from an answer event.
func AnswerResult(t *testing.T, ev Event) map[string]interface{} {
	t.Helper()
	require.Equal(t, "answer", ev.Type)
	result, ok := ev.Parsed["result"].(map[string]interface{})
	require.True(t, ok, "answer event has no result object: %s", ev.Raw)
	return result
}
