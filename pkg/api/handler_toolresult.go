package api

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tablemind/tablemind/pkg/ratelimit"
	"github.com/tablemind/tablemind/pkg/services"
)

// toolResultRequest is the body of POST /analyze/tool-result. Exactly one of
// Result and Error carries the outcome of the client-side tool execution.
type toolResultRequest struct {
	SessionID string          `json:"sessionId"`
	ToolID    string          `json:"toolId"`
	Result    json.RawMessage `json:"result"`
	Error     string          `json:"error"`
}

// toolResultHandler handles POST /analyze/tool-result.
// Writes one client-side tool outcome into its suspended session so the next
// resume can continue the conversation.
func (s *Server) toolResultHandler(c *gin.Context) {
	userID := c.GetString(ctxKeyUserID)

	// 1. Admission: rate limit only; ingestion consumes no model tokens.
	if !s.checkRateLimit(c, ratelimit.EndpointToolResult) {
		return
	}

	// 2. Bind HTTP request.
	var req toolResultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// 3. Call service.
	input := services.ToolResultInput{
		SessionID: req.SessionID,
		ToolID:    req.ToolID,
		Result:    req.Result,
		Error:     req.Error,
		UserID:    userID,
	}
	if err := s.analysis.SubmitToolResult(c.Request.Context(), input); err != nil {
		renderError(c, err)
		return
	}

	// 4. Return response.
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
