package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tablemind/tablemind/pkg/ratelimit"
	"github.com/tablemind/tablemind/pkg/stream"
)

// resumeHandler handles GET /analyze/resume.
// Reattaches to a suspended session and re-enters the turn loop. No session
// event is emitted; the client already holds the id. Failures before the
// stream opens are JSON, including the 404 for a missing session.
func (s *Server) resumeHandler(c *gin.Context) {
	userID := c.GetString(ctxKeyUserID)

	// 1. Admission: rate limit, then token quota.
	if !s.checkRateLimit(c, ratelimit.EndpointResume) {
		return
	}
	if !s.checkQuota(c, userID) {
		return
	}

	// 2. Locate the session.
	sessionID := c.Query("sessionId")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "sessionId is required"})
		return
	}
	sess, err := s.analysis.GetSession(c.Request.Context(), sessionID, userID)
	if err != nil {
		renderError(c, err)
		return
	}

	// 3. A session still waiting on its tool result cannot run a turn; the
	// client must post the result first.
	if sess.AwaitingToolResult {
		c.JSON(http.StatusConflict, gin.H{"error": "Session is awaiting a tool result"})
		return
	}

	// 4. Take the turn lock. Contention means a duplicate client connection
	// is already streaming this session.
	release, err := s.locker.Acquire(c.Request.Context(), sess.ID)
	if err != nil {
		renderError(c, err)
		return
	}
	defer release(context.WithoutCancel(c.Request.Context()))

	// 5. Open the event stream and run the next turn.
	out, err := stream.NewSSE(c.Writer)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Streaming unsupported"})
		return
	}
	s.runner.Run(c.Request.Context(), sess, out)
}
