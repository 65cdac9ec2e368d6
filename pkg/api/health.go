package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/glossforge/glossforge/pkg/database"
)

// health reports catalog database reachability. Per-project databases and
// LLM endpoints are probed lazily on use, not here; a dead LLM should not
// mark the whole service unhealthy.
func (s *Server) health(c *gin.Context) {
	if err := database.Health(c.Request.Context(), s.catalog.DB); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
