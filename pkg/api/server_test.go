package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tablemind/tablemind/pkg/agent"
	"github.com/tablemind/tablemind/pkg/agent/prompt"
	"github.com/tablemind/tablemind/pkg/config"
	"github.com/tablemind/tablemind/pkg/llm"
	"github.com/tablemind/tablemind/pkg/models"
	"github.com/tablemind/tablemind/pkg/quota"
	"github.com/tablemind/tablemind/pkg/ratelimit"
	"github.com/tablemind/tablemind/pkg/services"
	"github.com/tablemind/tablemind/pkg/store"
)

// scriptedLLM returns queued responses in order. A non-nil err short-circuits
// every call.
type scriptedLLM struct {
	mu        sync.Mutex
	responses []*llm.Response
	err       error
	calls     int
}

func (s *scriptedLLM) Call(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if len(s.responses) == 0 {
		return nil, &llm.Error{Message: "scripted client exhausted"}
	}
	resp := s.responses[0]
	s.responses = s.responses[1:]
	return resp, nil
}

func (s *scriptedLLM) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *scriptedLLM) setError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *scriptedLLM) enqueue(responses ...*llm.Response) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, responses...)
}

func finalAnswerTurn(answer string) *llm.Response {
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

func toolUseTurn(id, name string, input map[string]any) *llm.Response {
	raw, _ := json.Marshal(input)
	return &llm.Response{
		ContentBlocks: []models.ContentBlock{
			models.NewToolUseBlock(id, name, raw),
		},
		StopReason: "tool_use",
		Usage:      llm.Usage{InputTokens: 200, OutputTokens: 60},
	}
}

// serverFixture assembles a Server on in-memory backends. Mutations run
// before construction so tests can tighten limits or swap backends.
type serverFixture struct {
	sessionCfg *config.SessionConfig
	rateCfg    *config.RateLimitConfig
	quotaCfg   *config.QuotaConfig

	limiter    ratelimit.Limiter
	accountant quota.Accountant

	sessions *store.MemoryStore
	locker   *store.MemoryTurnLock
	server   *Server
}

func setupTestServer(t *testing.T, client llm.Client, mutations ...func(*serverFixture)) *serverFixture {
	t.Helper()

	fx := &serverFixture{
		sessionCfg: config.DefaultSessionConfig(),
		rateCfg:    config.DefaultRateLimitConfig(),
		quotaCfg:   config.DefaultQuotaConfig(),
	}
	for _, mutate := range mutations {
		mutate(fx)
	}
	if fx.limiter == nil {
		fx.limiter = ratelimit.NewMemoryLimiter(fx.rateCfg)
	}
	if fx.accountant == nil {
		fx.accountant = quota.NewMemoryAccountant(fx.quotaCfg)
	}
	fx.sessions = store.NewMemoryStore(fx.sessionCfg.TTL)
	fx.locker = store.NewMemoryTurnLock(fx.sessionCfg.LockTTL)

	tiers := config.NewTierRegistry(config.BuiltinTiers())
	runner := agent.NewRunner(fx.sessions, client, fx.accountant, tiers, fx.sessionCfg, prompt.NewBuilder())
	analysis := services.NewAnalysisService(fx.sessions, fx.sessionCfg, tiers)
	fx.server = NewServer(analysis, runner, fx.limiter, fx.accountant, fx.locker, nil)
	return fx
}

// do runs a prepared request through the full middleware chain.
func (fx *serverFixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	fx.server.Handler().ServeHTTP(rec, req)
	return rec
}

// getAs performs a GET with auth-proxy identity headers for user.
func (fx *serverFixture) getAs(user, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if user != "" {
		req.Header.Set("X-Forwarded-User", user)
	}
	rec := httptest.NewRecorder()
	fx.server.Handler().ServeHTTP(rec, req)
	return rec
}

// postAs performs a JSON POST with auth-proxy identity headers for user.
func (fx *serverFixture) postAs(user, target string, body any) *httptest.ResponseRecorder {
	raw, err := json.Marshal(body)
	if err != nil {
		panic(err)
	}
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(string(raw)))
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("X-Forwarded-User", user)
	}
	rec := httptest.NewRecorder()
	fx.server.Handler().ServeHTTP(rec, req)
	return rec
}

// analyzeURL builds a /analyze target for the standard single-table schema.
func analyzeURL(query string, extra map[string]string) string {
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

// decodeEvents parses an SSE body into its JSON payloads, asserting the
// data-prefix framing along the way.
func decodeEvents(t *testing.T, body string) []map[string]any {
	t.Helper()
	var events []map[string]any
	for _, frame := range strings.Split(body, "\n\n") {
		if frame == "" {
			continue
		}
		require.True(t, strings.HasPrefix(frame, "data: "), "frame %q lacks data prefix", frame)
		var payload map[string]any
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(frame, "data: ")), &payload))
		events = append(events, payload)
	}
	return events
}

func eventTypes(events []map[string]any) []string {
	types := make([]string, 0, len(events))
	for _, ev := range events {
		types = append(types, ev["type"].(string))
	}
	return types
}

func jsonBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestNewServerPanicsOnNilDeps(t *testing.T) {
	assert.Panics(t, func() {
		NewServer(nil, nil, nil, nil, nil, nil)
	})
}

func TestUnknownRouteReturns404(t *testing.T) {
	fx := setupTestServer(t, &scriptedLLM{})

	rec := fx.getAs("alice", "/nope")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStreamingHeaders(t *testing.T) {
	client := &scriptedLLM{responses: []*llm.Response{finalAnswerTurn("done")}}
	fx := setupTestServer(t, client)

	rec := fx.getAs("alice", analyzeURL("Show the first 3 rows", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "keep-alive", rec.Header().Get("Connection"))
}
