package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/glossforge/glossforge/pkg/models"
	"github.com/glossforge/glossforge/pkg/repository"
)

type createProjectRequest struct {
	Name        string `json:"name" binding:"required"`
	DocRoot     string `json:"doc_root"`
	LLMProvider string `json:"llm_provider"`
	LLMModel    string `json:"llm_model"`
	LLMBaseURL  string `json:"llm_base_url"`
}

func (s *Server) createProject(c *gin.Context) {
	var req createProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	project, err := repository.CreateProject(c.Request.Context(), s.catalog.Handle(), models.Project{
		Name:        req.Name,
		DocRoot:     req.DocRoot,
		LLMProvider: req.LLMProvider,
		LLMModel:    req.LLMModel,
		LLMBaseURL:  req.LLMBaseURL,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, project)
}

func (s *Server) listProjects(c *gin.Context) {
	projects, err := repository.ListProjects(c.Request.Context(), s.catalog.Handle())
	if err != nil {
		s.respondError(c, err)
		return
	}
	if projects == nil {
		projects = []models.Project{}
	}
	c.JSON(http.StatusOK, gin.H{"projects": projects})
}

func (s *Server) getProject(c *gin.Context) {
	pid, ok := pathID(c, "pid")
	if !ok {
		return
	}
	project, err := repository.GetProject(c.Request.Context(), s.catalog.Handle(), pid)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, project)
}

type updateProjectRequest struct {
	DocRoot     string `json:"doc_root"`
	LLMProvider string `json:"llm_provider"`
	LLMModel    string `json:"llm_model"`
	LLMBaseURL  string `json:"llm_base_url"`
}

func (s *Server) updateProject(c *gin.Context) {
	pid, ok := pathID(c, "pid")
	if !ok {
		return
	}
	var req updateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	err := repository.UpdateProjectSettings(c.Request.Context(), s.catalog.Handle(), pid,
		req.DocRoot, req.LLMProvider, req.LLMModel, req.LLMBaseURL)
	if err != nil {
		s.respondError(c, err)
		return
	}

	// Drop the cached state so the next request sees the new settings. An
	// in-flight run keeps its already-built client.
	s.mu.Lock()
	delete(s.projects, pid)
	s.mu.Unlock()

	c.Status(http.StatusNoContent)
}

func (s *Server) deleteProject(c *gin.Context) {
	pid, ok := pathID(c, "pid")
	if !ok {
		return
	}

	s.mu.Lock()
	ps := s.projects[pid]
	delete(s.projects, pid)
	s.mu.Unlock()
	if ps != nil {
		if err := ps.manager.Shutdown(c.Request.Context()); err != nil {
			s.logger.Warn("shutdown of deleted project's manager timed out", "project_id", pid, "error", err)
		}
		_ = ps.db.Close()
	}

	if err := repository.DeleteProject(c.Request.Context(), s.catalog.Handle(), pid); err != nil {
		s.respondError(c, err)
		return
	}
	// The project database file stays on disk; removal is an operator
	// decision.
	c.Status(http.StatusNoContent)
}
