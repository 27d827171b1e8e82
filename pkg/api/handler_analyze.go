package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tablemind/tablemind/pkg/config"
	"github.com/tablemind/tablemind/pkg/ratelimit"
	"github.com/tablemind/tablemind/pkg/services"
	"github.com/tablemind/tablemind/pkg/stream"
)

// analyzeHandler handles GET /analyze.
// Admits the request, creates a session, opens the event stream, and runs
// the first LLM turn. The stream opens with a session event; every failure
// after that point is delivered as an error event, not an HTTP status.
func (s *Server) analyzeHandler(c *gin.Context) {
	userID := c.GetString(ctxKeyUserID)

	// 1. Admission: rate limit, then token quota.
	if !s.checkRateLimit(c, ratelimit.EndpointAnalyze) {
		return
	}
	if !s.checkQuota(c, userID) {
		return
	}

	// 2. Validate inputs and create the session.
	input := services.StartAnalysisInput{
		UserID:      userID,
		Query:       c.Query("query"),
		SchemaJSON:  c.Query("schema"),
		ModelTier:   config.ParseModelTier(c.Query("model")),
		UseThinking: c.Query("thinking") != "false",
		HasPaidPlan: hasPaidPlan(c),
	}
	sess, err := s.analysis.StartAnalysis(c.Request.Context(), input)
	if err != nil {
		renderError(c, err)
		return
	}

	// 3. Take the session's turn lock for the duration of the stream.
	release, err := s.locker.Acquire(c.Request.Context(), sess.ID)
	if err != nil {
		renderError(c, err)
		return
	}
	defer release(context.WithoutCancel(c.Request.Context()))

	// 4. Open the event stream and run the turn loop.
	out, err := stream.NewSSE(c.Writer)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Streaming unsupported"})
		return
	}
	if err := out.SendSession(sess.ID); err != nil {
		slog.Warn("Subscriber gone before first event", "session_id", sess.ID)
		return
	}
	s.runner.Run(c.Request.Context(), sess, out)
}
