package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tablemind/tablemind/pkg/version"
)

const (
	healthStatusHealthy   = "healthy"
	healthStatusUnhealthy = "unhealthy"
)

// healthResponse is the body of GET /health.
type healthResponse struct {
	Status   string                 `json:"status"`
	Version  string                 `json:"version"`
	Mode     string                 `json:"mode"`
	Checks   map[string]healthCheck `json:"checks"`
	FailOpen failOpenCounters       `json:"fail_open"`
}

type healthCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// failOpenCounters reports admission checks that were allowed through
// because their backend failed.
type failOpenCounters struct {
	RateLimit int64 `json:"rate_limit"`
	Quota     int64 `json:"quota"`
}

// healthHandler handles GET /health.
// Returns a minimal, safe response suitable for unauthenticated access. Only
// the session store backend is checked; the LLM provider is excluded so an
// external outage cannot make the orchestrator restart-loop.
func (s *Server) healthHandler(c *gin.Context) {
	reqCtx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]healthCheck)
	status := healthStatusHealthy
	mode := "memory"

	if s.redis != nil {
		mode = "redis"
		if err := s.redis.Ping(reqCtx).Err(); err != nil {
			status = healthStatusUnhealthy
			checks["redis"] = healthCheck{Status: healthStatusUnhealthy, Message: err.Error()}
		} else {
			checks["redis"] = healthCheck{Status: healthStatusHealthy}
		}
	} else {
		checks["store"] = healthCheck{Status: healthStatusHealthy, Message: "in-memory backends"}
	}

	httpStatus := http.StatusOK
	if status == healthStatusUnhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, &healthResponse{
		Status:  status,
		Version: version.GitCommit,
		Mode:    mode,
		Checks:  checks,
		FailOpen: failOpenCounters{
			RateLimit: s.rateFailOpen.Load(),
			Quota:     s.quotaFailOpen.Load(),
		},
	})
}
