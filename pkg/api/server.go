// Package api exposes the HTTP surface of the orchestrator: the streaming
// analysis endpoints, tool-result ingestion, and health. Handlers read
// identity from auth-proxy headers, run rate and quota admission, and hand
// streaming work to the agent runner.
package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/tablemind/tablemind/pkg/agent"
	"github.com/tablemind/tablemind/pkg/quota"
	"github.com/tablemind/tablemind/pkg/ratelimit"
	"github.com/tablemind/tablemind/pkg/services"
	"github.com/tablemind/tablemind/pkg/store"
)

// Server wires the gin engine to the agent runtime and its backends.
type Server struct {
	analysis *services.AnalysisService
	runner   *agent.Runner
	limiter  ratelimit.Limiter
	quota    quota.Accountant
	locker   store.TurnLocker

	// redis is nil when the server runs on in-memory backends; health
	// reporting switches on it.
	redis *redis.Client

	engine *gin.Engine
	http   *http.Server

	// Fail-open counters for the admission backends, surfaced by /health.
	rateFailOpen  atomic.Int64
	quotaFailOpen atomic.Int64
}

// NewServer builds the engine, registers middleware and routes, and returns
// a server ready to Start.
func NewServer(
	analysis *services.AnalysisService,
	runner *agent.Runner,
	limiter ratelimit.Limiter,
	accountant quota.Accountant,
	locker store.TurnLocker,
	redisClient *redis.Client,
) *Server {
	if analysis == nil {
		panic("NewServer: analysis must not be nil")
	}
	if runner == nil {
		panic("NewServer: runner must not be nil")
	}
	if limiter == nil {
		panic("NewServer: limiter must not be nil")
	}
	if accountant == nil {
		panic("NewServer: accountant must not be nil")
	}
	if locker == nil {
		panic("NewServer: locker must not be nil")
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), requestID(), requestLogger(), securityHeaders())

	s := &Server{
		analysis: analysis,
		runner:   runner,
		limiter:  limiter,
		quota:    accountant,
		locker:   locker,
		redis:    redisClient,
		engine:   engine,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.engine.GET("/health", s.healthHandler)

	authed := s.engine.Group("", authRequired())
	authed.GET("/analyze", s.analyzeHandler)
	authed.GET("/analyze/resume", s.resumeHandler)
	authed.POST("/analyze/tool-result", s.toolResultHandler)
}

// Handler exposes the routed engine, primarily for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start serves on addr and blocks until the listener fails or Shutdown is
// called. A clean shutdown returns nil.
func (s *Server) Start(addr string) error {
	s.http = &http.Server{Addr: addr, Handler: s.engine}
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// StartWithListener serves on an already-bound listener. Tests use it to run
// the server on an ephemeral port.
func (s *Server) StartWithListener(ln net.Listener) error {
	s.http = &http.Server{Handler: s.engine}
	err := s.http.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
