package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/glossforge/glossforge/pkg/models"
	"github.com/glossforge/glossforge/pkg/repository"
)

func (s *Server) listProvisional(c *gin.Context) {
	s.listGlossary(c, repository.TableProvisional)
}

func (s *Server) listRefined(c *gin.Context) {
	s.listGlossary(c, repository.TableRefined)
}

func (s *Server) listGlossary(c *gin.Context, table string) {
	ps, ok := s.withProject(c)
	if !ok {
		return
	}
	entries, err := repository.ListGlossaryEntries(c.Request.Context(), ps.db.Handle(), table)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if entries == nil {
		entries = []models.GlossaryEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (s *Server) listIssues(c *gin.Context) {
	ps, ok := s.withProject(c)
	if !ok {
		return
	}
	issues, err := repository.ListIssues(c.Request.Context(), ps.db.Handle())
	if err != nil {
		s.respondError(c, err)
		return
	}
	if issues == nil {
		issues = []models.Issue{}
	}
	c.JSON(http.StatusOK, gin.H{"issues": issues})
}

type createSynonymGroupRequest struct {
	PrimaryTermText string   `json:"primary_term_text" binding:"required"`
	Members         []string `json:"members"`
}

func (s *Server) createSynonymGroup(c *gin.Context) {
	ps, ok := s.withProject(c)
	if !ok {
		return
	}
	var req createSynonymGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	group, err := repository.CreateSynonymGroup(c.Request.Context(), ps.db.Handle(), models.SynonymGroup{
		PrimaryTermText: req.PrimaryTermText,
		Members:         req.Members,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, group)
}

func (s *Server) listSynonymGroups(c *gin.Context) {
	ps, ok := s.withProject(c)
	if !ok {
		return
	}
	groups, err := repository.ListSynonymGroups(c.Request.Context(), ps.db.Handle())
	if err != nil {
		s.respondError(c, err)
		return
	}
	if groups == nil {
		groups = []models.SynonymGroup{}
	}
	c.JSON(http.StatusOK, gin.H{"groups": groups})
}

func (s *Server) getSynonymGroup(c *gin.Context) {
	ps, ok := s.withProject(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	group, err := repository.GetSynonymGroup(c.Request.Context(), ps.db.Handle(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, group)
}

func (s *Server) deleteSynonymGroup(c *gin.Context) {
	ps, ok := s.withProject(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := repository.DeleteSynonymGroup(c.Request.Context(), ps.db.Handle(), id); err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
