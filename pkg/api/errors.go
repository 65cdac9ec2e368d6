package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/glossforge/glossforge/pkg/repository"
	"github.com/glossforge/glossforge/pkg/run"
)

// respondError maps domain errors onto HTTP statuses. Unrecognized errors
// become 500 with a generic body; the detail goes to the log, not the wire.
func (s *Server) respondError(c *gin.Context, err error) {
	var vErr *repository.ValidationError
	switch {
	case errors.As(err, &vErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": vErr.Error(), "field": vErr.Field})
	case errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, repository.ErrAlreadyExists):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, run.ErrAlreadyRunning):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, run.ErrShuttingDown):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		s.logger.Error("request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
