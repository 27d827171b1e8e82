package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tablemind/tablemind/pkg/services"
	"github.com/tablemind/tablemind/pkg/store"
)

// renderError maps service-layer errors to HTTP JSON responses. Only usable
// before a stream opens; mid-stream failures become error events instead.
func renderError(c *gin.Context, err error) {
	var validErr *services.ValidationError
	if errors.As(err, &validErr) {
		c.JSON(http.StatusBadRequest, gin.H{"error": validErr.Error()})
		return
	}

	switch {
	case errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
	case errors.Is(err, services.ErrPaidTierRequired):
		c.JSON(http.StatusForbidden, gin.H{"error": "This model tier requires a paid plan"})
	case errors.Is(err, services.ErrNotAwaitingResult):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Session is not awaiting a tool result"})
	case errors.Is(err, services.ErrToolMismatch):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Tool id does not match the pending tool call"})
	case errors.Is(err, services.ErrSessionBusy), errors.Is(err, store.ErrLocked):
		c.JSON(http.StatusConflict, gin.H{"error": "Another connection is already streaming this session"})
	default:
		// Unexpected error
		slog.Error("Unexpected service error", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
