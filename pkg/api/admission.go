package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// quotaExceededResponse is the typed 429 body for an exhausted token quota.
type quotaExceededResponse struct {
	Error      string `json:"error"`
	TokensUsed int64  `json:"tokensUsed"`
	TokenLimit int64  `json:"tokenLimit"`
	PeriodEnd  string `json:"periodEnd"`
}

// checkRateLimit runs the sliding-window check for the endpoint and writes
// the X-RateLimit-* headers. On deny it writes the 429 response and returns
// false. Backend failures fail open: the request proceeds, counted and
// logged, without rate headers.
func (s *Server) checkRateLimit(c *gin.Context, endpoint string) bool {
	decision, err := s.limiter.Check(c.Request.Context(), endpoint, clientKey(c))
	if err != nil {
		s.rateFailOpen.Add(1)
		slog.Error("Rate limit check failed, allowing request",
			"endpoint", endpoint, "error", err)
		return true
	}

	h := c.Writer.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
	h.Set("X-RateLimit-Reset", strconv.Itoa(decision.ResetSeconds()))

	if !decision.Allowed {
		c.AbortWithStatusJSON(http.StatusTooManyRequests,
			gin.H{"error": "Rate limit exceeded. Try again later."})
		return false
	}
	return true
}

// checkQuota verifies the user is under their token allowance and writes the
// X-Token-* accounting headers. On deny it writes the typed 429 body and
// returns false. Backend failures fail open.
func (s *Server) checkQuota(c *gin.Context, userID string) bool {
	status, err := s.quota.Check(c.Request.Context(), userID)
	if err != nil {
		s.quotaFailOpen.Add(1)
		slog.Error("Quota check failed, allowing request",
			"user_id", userID, "error", err)
		return true
	}

	h := c.Writer.Header()
	h.Set("X-Token-Limit", strconv.FormatInt(status.Limit, 10))
	h.Set("X-Token-Used", strconv.FormatInt(status.Used, 10))
	h.Set("X-Token-Remaining", strconv.FormatInt(status.Remaining, 10))
	h.Set("X-Period-End", status.PeriodEnd.Format(time.RFC3339))

	if !status.Allowed {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, &quotaExceededResponse{
			Error:      "Token limit exceeded for this billing period",
			TokensUsed: status.Used,
			TokenLimit: status.Limit,
			PeriodEnd:  status.PeriodEnd.Format(time.RFC3339),
		})
		return false
	}
	return true
}
