package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/glossforge/glossforge/pkg/repository"
)

// listVisibleTerms returns the term enumeration shown to the UI: extracted
// terms plus required terms not surfaced by extraction (those carry negative
// synthetic ids).
func (s *Server) listVisibleTerms(c *gin.Context) {
	ps, ok := s.withProject(c)
	if !ok {
		return
	}
	terms, err := repository.VisibleTerms(c.Request.Context(), ps.db.Handle())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"terms": terms})
}

type addTermRequest struct {
	TermText string `json:"term_text" binding:"required"`
}

func (s *Server) listExcludedTerms(c *gin.Context) {
	ps, ok := s.withProject(c)
	if !ok {
		return
	}
	terms, err := repository.ListExcludedTerms(c.Request.Context(), ps.db.Handle())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"terms": terms})
}

func (s *Server) addExcludedTerm(c *gin.Context) {
	ps, ok := s.withProject(c)
	if !ok {
		return
	}
	var req addTermRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	term, err := repository.AddExcludedTerm(c.Request.Context(), ps.db.Handle(), req.TermText, "manual")
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, term)
}

func (s *Server) deleteExcludedTerm(c *gin.Context) {
	ps, ok := s.withProject(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := repository.DeleteExcludedTerm(c.Request.Context(), ps.db.Handle(), id); err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) listRequiredTerms(c *gin.Context) {
	ps, ok := s.withProject(c)
	if !ok {
		return
	}
	terms, err := repository.ListRequiredTerms(c.Request.Context(), ps.db.Handle())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"terms": terms})
}

func (s *Server) addRequiredTerm(c *gin.Context) {
	ps, ok := s.withProject(c)
	if !ok {
		return
	}
	var req addTermRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	term, err := repository.AddRequiredTerm(c.Request.Context(), ps.db.Handle(), req.TermText)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, term)
}

func (s *Server) deleteRequiredTerm(c *gin.Context) {
	ps, ok := s.withProject(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := repository.DeleteRequiredTerm(c.Request.Context(), ps.db.Handle(), id); err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
