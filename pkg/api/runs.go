package api

import (
	"io"
	"net/http"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"

	"github.com/glossforge/glossforge/pkg/models"
	"github.com/glossforge/glossforge/pkg/repository"
)

type startRunRequest struct {
	Scope       models.Scope `json:"scope" binding:"required"`
	DocumentIDs []int64      `json:"document_ids"`
}

func (s *Server) startRun(c *gin.Context) {
	ps, ok := s.withProject(c)
	if !ok {
		return
	}
	var req startRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	if !req.Scope.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown scope " + string(req.Scope)})
		return
	}

	runID, err := ps.manager.StartRun(c.Request.Context(), req.Scope, "api", req.DocumentIDs)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"run_id": runID})
}

func (s *Server) cancelRun(c *gin.Context) {
	ps, ok := s.withProject(c)
	if !ok {
		return
	}
	runID, ok := pathID(c, "run_id")
	if !ok {
		return
	}

	result, err := ps.manager.CancelRun(c.Request.Context(), runID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if result == models.CancelNotFound {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	// ok and already_terminal are both accepted; cancel is idempotent.
	c.Status(http.StatusNoContent)
}

func (s *Server) currentRun(c *gin.Context) {
	ps, ok := s.withProject(c)
	if !ok {
		return
	}
	current, err := ps.manager.GetCurrentRun(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	if current == nil {
		c.JSON(http.StatusOK, gin.H{"run": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"run": current})
}

func (s *Server) listRuns(c *gin.Context) {
	ps, ok := s.withProject(c)
	if !ok {
		return
	}
	runs, err := repository.ListRuns(c.Request.Context(), ps.db.Handle(), 0)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

// streamRunLogs serves the SSE log stream: buffered snapshot first, then
// live events, ending with the complete sentinel.
func (s *Server) streamRunLogs(c *gin.Context) {
	ps, ok := s.withProject(c)
	if !ok {
		return
	}
	runID, ok := pathID(c, "run_id")
	if !ok {
		return
	}
	if _, err := repository.GetRun(c.Request.Context(), ps.db.Handle(), runID); err != nil {
		s.respondError(c, err)
		return
	}

	events, unsubscribe := ps.manager.SubscribeLogs(runID)
	defer unsubscribe()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	clientGone := c.Request.Context().Done()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-clientGone:
			return false
		case ev, open := <-events:
			if !open {
				return false
			}
			name := "message"
			if ev.Complete {
				name = "complete"
			}
			if err := sse.Encode(w, sse.Event{Event: name, Data: ev}); err != nil {
				return false
			}
			return !ev.Complete
		}
	})
}
