package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/airside-ops/apron/pkg/database"
	"github.com/airside-ops/apron/pkg/queue"
	"github.com/airside-ops/apron/pkg/version"
)

// healthResponse is the envelope served by GET /health.
type healthResponse struct {
	Status   string                 `json:"status"`
	Version  string                 `json:"version"`
	Store    string                 `json:"store"`
	Queue    queue.Health           `json:"queue"`
	Database *database.HealthStatus `json:"database,omitempty"`
}

// handleHealth reports liveness: session store reachability, worker
// pool occupancy, and database health when the SQL backend is wired.
func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	status := http.StatusOK
	resp := healthResponse{
		Status:  "healthy",
		Version: version.Full(),
		Store:   "ok",
		Queue:   s.pool.Snapshot(),
	}

	if err := s.store.Ping(ctx); err != nil {
		resp.Status = "unhealthy"
		resp.Store = err.Error()
		status = http.StatusServiceUnavailable
	}

	if s.db != nil {
		dbHealth, err := s.db.Health(ctx)
		resp.Database = dbHealth
		if err != nil {
			resp.Status = "unhealthy"
			status = http.StatusServiceUnavailable
		}
	}

	if resp.Queue.Stopped {
		resp.Status = "unhealthy"
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, resp)
}
