package api

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tablemind/tablemind/pkg/llm"
	"github.com/tablemind/tablemind/pkg/quota"
	"github.com/tablemind/tablemind/pkg/ratelimit"
)

// brokenLimiter simulates a lost rate-limit backend.
type brokenLimiter struct{}

func (brokenLimiter) Check(ctx context.Context, endpoint, clientKey string) (ratelimit.Decision, error) {
	return ratelimit.Decision{}, errors.New("backend unreachable")
}

// brokenAccountant simulates a lost quota backend.
type brokenAccountant struct{}

func (brokenAccountant) Check(ctx context.Context, userID string) (quota.Status, error) {
	return quota.Status{}, errors.New("backend unreachable")
}

func (brokenAccountant) Record(ctx context.Context, userID string, tokens int64) error {
	return errors.New("backend unreachable")
}

func TestHealthMemoryMode(t *testing.T) {
	fx := setupTestServer(t, &scriptedLLM{})

	rec := fx.getAs("", "/health")

	require.Equal(t, http.StatusOK, rec.Code)
	body := jsonBody(t, rec)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "memory", body["mode"])
	assert.NotEmpty(t, body["version"])

	checks := body["checks"].(map[string]any)
	store := checks["store"].(map[string]any)
	assert.Equal(t, "healthy", store["status"])
}

func TestHealthReportsFailOpenCounters(t *testing.T) {
	client := &scriptedLLM{responses: []*llm.Response{finalAnswerTurn("done")}}
	fx := setupTestServer(t, client, func(fx *serverFixture) {
		fx.limiter = brokenLimiter{}
		fx.accountant = brokenAccountant{}
	})

	// Admission backends are down; the request must still stream.
	rec := fx.getAs("alice", analyzeURL("Show rows", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	events := decodeEvents(t, rec.Body.String())
	require.Equal(t, []string{"session", "answer", "done"}, eventTypes(events))
	assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
	assert.Empty(t, rec.Header().Get("X-Token-Limit"))

	health := fx.getAs("", "/health")
	require.Equal(t, http.StatusOK, health.Code)
	failOpen := jsonBody(t, health)["fail_open"].(map[string]any)
	assert.Equal(t, float64(1), failOpen["rate_limit"])
	assert.Equal(t, float64(1), failOpen["quota"])
}
