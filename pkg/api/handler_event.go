package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/airside-ops/apron/pkg/models"
)

// handleStart handles POST /event/start.
func (s *Server) handleStart(c *gin.Context) {
	var req models.StartEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := s.events.Start(c.Request.Context(), &req)
	if err != nil {
		s.abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// handleChat handles POST /event/chat.
func (s *Server) handleChat(c *gin.Context) {
	var req models.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := s.events.Chat(c.Request.Context(), &req)
	if err != nil {
		s.abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// handleParse handles POST /event/parse: extraction without a session.
func (s *Server) handleParse(c *gin.Context) {
	var req models.ParseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := s.events.Parse(c.Request.Context(), &req)
	if err != nil {
		s.abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// handleGet handles GET /event/:session_id.
func (s *Server) handleGet(c *gin.Context) {
	resp, err := s.events.Get(c.Request.Context(), c.Param("session_id"))
	if err != nil {
		s.abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// handleReport handles GET /event/:session_id/report.
func (s *Server) handleReport(c *gin.Context) {
	report, err := s.events.Report(c.Request.Context(), c.Param("session_id"))
	if err != nil {
		s.abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// handleReportMarkdown handles GET /event/:session_id/report/markdown.
func (s *Server) handleReportMarkdown(c *gin.Context) {
	md, err := s.events.ReportMarkdown(c.Request.Context(), c.Param("session_id"))
	if err != nil {
		s.abortWithServiceError(c, err)
		return
	}
	c.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(md))
}

// handleDelete handles DELETE /event/:session_id.
func (s *Server) handleDelete(c *gin.Context) {
	sessionID := c.Param("session_id")
	if err := s.events.Delete(c.Request.Context(), sessionID); err != nil {
		s.abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted", "session_id": sessionID})
}
