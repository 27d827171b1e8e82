// Package e2e exercises the full HTTP surface over real connections: a
// server on an ephemeral port, genuine SSE streams, in-memory backends, and
// a scripted LLM client.
package e2e

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tablemind/tablemind/pkg/agent"
	"github.com/tablemind/tablemind/pkg/agent/prompt"
	"github.com/tablemind/tablemind/pkg/api"
	"github.com/tablemind/tablemind/pkg/config"
	"github.com/tablemind/tablemind/pkg/quota"
	"github.com/tablemind/tablemind/pkg/ratelimit"
	"github.com/tablemind/tablemind/pkg/services"
	"github.com/tablemind/tablemind/pkg/store"
)

// TestApp boots a complete tablemind instance for e2e testing.
type TestApp struct {
	// Config handed to the runtime.
	SessionConfig *config.SessionConfig
	RateConfig    *config.RateLimitConfig
	QuotaConfig   *config.QuotaConfig

	// Mocks / test wiring
	LLMClient *ScriptedLLMClient

	// Real infrastructure
	Sessions   *store.MemoryStore
	Locker     *store.MemoryTurnLock
	Limiter    ratelimit.Limiter
	Accountant quota.Accountant
	Server     *api.Server

	// Runtime
	BaseURL string // e.g. "http://127.0.0.1:54321"

	t *testing.T
}

// testAppConfig holds options accumulated before creating the TestApp.
type testAppConfig struct {
	llmClient      *ScriptedLLMClient
	maxIterations  int
	endpointLimits map[string]int
	tokenLimit     int64
}

// TestAppOption configures the test app.
type TestAppOption func(*testAppConfig)

// WithLLMClient sets a pre-scripted LLM client.
func WithLLMClient(client *ScriptedLLMClient) TestAppOption {
	return func(c *testAppConfig) { c.llmClient = client }
}

// WithMaxIterations caps LLM turns per session.
func WithMaxIterations(n int) TestAppOption {
	return func(c *testAppConfig) { c.maxIterations = n }
}

// WithEndpointLimit overrides the per-window request limit for one endpoint.
func WithEndpointLimit(endpoint string, n int) TestAppOption {
	return func(c *testAppConfig) {
		if c.endpointLimits == nil {
			c.endpointLimits = make(map[string]int)
		}
		c.endpointLimits[endpoint] = n
	}
}

// WithTokenLimit sets the default per-user token allowance.
func WithTokenLimit(n int64) TestAppOption {
	return func(c *testAppConfig) { c.tokenLimit = n }
}

// NewTestApp creates and starts a full tablemind test instance.
// Shutdown is registered via t.Cleanup automatically.
func NewTestApp(t *testing.T, opts ...TestAppOption) *TestApp {
	t.Helper()

	// Apply options.
	tc := &testAppConfig{}
	for _, opt := range opts {
		opt(tc)
	}
	if tc.llmClient == nil {
		tc.llmClient = NewScriptedLLMClient()
	}

	sessionCfg := config.DefaultSessionConfig()
	if tc.maxIterations > 0 {
		sessionCfg.MaxIterations = tc.maxIterations
	}
	rateCfg := config.DefaultRateLimitConfig()
	for endpoint, n := range tc.endpointLimits {
		rateCfg.Endpoints[endpoint] = n
	}
	quotaCfg := config.DefaultQuotaConfig()
	if tc.tokenLimit > 0 {
		quotaCfg.DefaultTokenLimit = tc.tokenLimit
	}

	// 1. In-memory backends.
	sessions := store.NewMemoryStore(sessionCfg.TTL)
	locker := store.NewMemoryTurnLock(sessionCfg.LockTTL)
	limiter := ratelimit.NewMemoryLimiter(rateCfg)
	accountant := quota.NewMemoryAccountant(quotaCfg)

	// 2. Agent runtime.
	tiers := config.NewTierRegistry(config.BuiltinTiers())
	runner := agent.NewRunner(sessions, tc.llmClient, accountant, tiers, sessionCfg, prompt.NewBuilder())
	analysisService := services.NewAnalysisService(sessions, sessionCfg, tiers)

	// 3. HTTP server on an ephemeral port.
	server := api.NewServer(analysisService, runner, limiter, accountant, locker, nil)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go func() {
		_ = server.StartWithListener(ln)
	}()

	app := &TestApp{
		SessionConfig: sessionCfg,
		RateConfig:    rateCfg,
		QuotaConfig:   quotaCfg,
		LLMClient:     tc.llmClient,
		Sessions:      sessions,
		Locker:        locker,
		Limiter:       limiter,
		Accountant:    accountant,
		Server:        server,
		BaseURL:       fmt.Sprintf("http://%s", ln.Addr().String()),
		t:             t,
	}

	t.Cleanup(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	})

	return app
}
