package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/airside-ops/apron/pkg/queue"
	"github.com/airside-ops/apron/pkg/services"
	"github.com/airside-ops/apron/pkg/session"
)

// abortWithServiceError maps service-layer errors to HTTP responses.
func (s *Server) abortWithServiceError(c *gin.Context, err error) {
	switch {
	case services.IsValidationError(err):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, session.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "session not found"})
	case errors.Is(err, services.ErrReportNotReady):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "report not ready"})
	case errors.Is(err, session.ErrSessionBusy), errors.Is(err, queue.ErrSessionBusy):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "session busy"})
	case errors.Is(err, queue.ErrQueueFull):
		c.Header("Retry-After", "1")
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "engine at capacity"})
	case errors.Is(err, queue.ErrPoolStopped):
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "shutting down"})
	case errors.Is(err, context.DeadlineExceeded):
		c.AbortWithStatusJSON(http.StatusGatewayTimeout, gin.H{"error": "turn timed out"})
	default:
		s.logger.Error("Unhandled service error", "error", err, "path", c.Request.URL.Path)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
