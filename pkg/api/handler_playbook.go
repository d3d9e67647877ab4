package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// handleListPlaybooks handles GET /playbooks: the disposal-plan documents
// published in the configured repository. Listing failures degrade to an
// empty list so the console never breaks on a document-host outage.
func (s *Server) handleListPlaybooks(c *gin.Context) {
	if s.playbooks == nil {
		c.JSON(http.StatusOK, []string{})
		return
	}

	docs, err := s.playbooks.List(c.Request.Context())
	if err != nil {
		s.logger.Warn("Failed to list disposal plans", "error", err)
		c.JSON(http.StatusOK, []string{})
		return
	}
	c.JSON(http.StatusOK, docs)
}

// handleGetPlaybook handles GET /playbooks/:scenario, returning the
// resolved disposal-plan markdown for one scenario.
func (s *Server) handleGetPlaybook(c *gin.Context) {
	scenarioID := c.Param("scenario")

	doc := s.playbooks.ForScenario(c.Request.Context(), scenarioID)
	if doc == "" {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "no disposal plan for scenario"})
		return
	}
	c.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(doc))
}
