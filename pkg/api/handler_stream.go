package api

import (
	"io"
	"net/http"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"

	"github.com/airside-ops/apron/pkg/events"
	"github.com/airside-ops/apron/pkg/models"
)

// handleStartStream handles POST /event/start/stream. Session errors
// surface as plain JSON before the stream opens; once frames flow, the
// turn's outcome arrives as the terminal complete or error frame.
func (s *Server) handleStartStream(c *gin.Context) {
	var req models.StartEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	stream, err := s.events.StartStream(c.Request.Context(), &req)
	if err != nil {
		s.abortWithServiceError(c, err)
		return
	}
	s.writeStream(c, stream)
}

// handleChatStream handles POST /event/chat/stream.
func (s *Server) handleChatStream(c *gin.Context) {
	var req models.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	stream, err := s.events.ChatStream(c.Request.Context(), &req)
	if err != nil {
		s.abortWithServiceError(c, err)
		return
	}
	s.writeStream(c, stream)
}

// writeStream copies frames to the wire until the terminal frame. The
// turn keeps running on its own goroutine; a consumer that disconnects
// cancels the request context and with it the turn.
func (s *Server) writeStream(c *gin.Context, stream *events.Stream) {
	c.Header("Content-Type", sse.ContentType)
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	c.Stream(func(w io.Writer) bool {
		frame, ok := <-stream.Frames()
		if !ok {
			return false
		}
		if err := sse.Encode(w, sse.Event{Event: frame.Event, Data: frame.Data}); err != nil {
			s.logger.Warn("SSE encode failed", "error", err)
			return false
		}
		return true
	})

	if n := stream.Dropped(); n > 0 {
		s.logger.Warn("Frames dropped on slow consumer", "count", n)
	}
}
