// Package api exposes the HTTP surface: project catalog CRUD, run control,
// the SSE log stream, document upload, and glossary CRUD.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/glossforge/glossforge/pkg/config"
	"github.com/glossforge/glossforge/pkg/database"
	"github.com/glossforge/glossforge/pkg/llm"
	"github.com/glossforge/glossforge/pkg/models"
	"github.com/glossforge/glossforge/pkg/repository"
	"github.com/glossforge/glossforge/pkg/run"
)

// projectState bundles the lazily-opened per-project resources.
type projectState struct {
	project models.Project
	db      *database.DB
	manager *run.Manager
}

// Server is the HTTP API server. Per-project databases and run managers are
// opened on first use and cached for the process lifetime.
type Server struct {
	cfg     config.Config
	catalog *database.DB
	logger  *slog.Logger
	http    *http.Server

	mu       sync.Mutex
	projects map[int64]*projectState
}

// NewServer builds the server over an open catalog database.
func NewServer(cfg config.Config, catalog *database.DB, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:      cfg,
		catalog:  catalog,
		logger:   logger.With("component", "api"),
		projects: make(map[int64]*projectState),
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/api/healthz", s.health)

	r.POST("/api/projects", s.createProject)
	r.GET("/api/projects", s.listProjects)
	r.GET("/api/projects/:pid", s.getProject)
	r.PATCH("/api/projects/:pid", s.updateProject)
	r.DELETE("/api/projects/:pid", s.deleteProject)

	p := r.Group("/api/projects/:pid")
	{
		p.POST("/runs", s.startRun)
		p.GET("/runs", s.listRuns)
		p.GET("/runs/current", s.currentRun)
		p.POST("/runs/:run_id/cancel", s.cancelRun)
		p.GET("/runs/:run_id/logs", s.streamRunLogs)

		p.POST("/files/bulk", s.bulkUpload)
		p.GET("/documents", s.listDocuments)
		p.GET("/documents/:id", s.getDocument)
		p.PUT("/documents/:id", s.replaceDocument)
		p.DELETE("/documents/:id", s.deleteDocument)

		p.GET("/terms", s.listVisibleTerms)
		p.GET("/terms/excluded", s.listExcludedTerms)
		p.POST("/terms/excluded", s.addExcludedTerm)
		p.DELETE("/terms/excluded/:id", s.deleteExcludedTerm)
		p.GET("/terms/required", s.listRequiredTerms)
		p.POST("/terms/required", s.addRequiredTerm)
		p.DELETE("/terms/required/:id", s.deleteRequiredTerm)

		p.GET("/glossary/provisional", s.listProvisional)
		p.GET("/glossary/refined", s.listRefined)
		p.GET("/issues", s.listIssues)

		p.GET("/synonym-groups", s.listSynonymGroups)
		p.POST("/synonym-groups", s.createSynonymGroup)
		p.GET("/synonym-groups/:id", s.getSynonymGroup)
		p.DELETE("/synonym-groups/:id", s.deleteSynonymGroup)
	}
	return r
}

// ListenAndServe runs the HTTP server until ctx is cancelled, then drains
// connections and shuts project managers down.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.http = &http.Server{
		Addr:    s.cfg.Server.Addr(),
		Handler: s.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("http shutdown did not drain cleanly", "error", err)
	}
	return s.Close(shutdownCtx)
}

// Close cancels active runs and closes every open database.
func (s *Server) Close(ctx context.Context) error {
	s.mu.Lock()
	states := make([]*projectState, 0, len(s.projects))
	for _, ps := range s.projects {
		states = append(states, ps)
	}
	s.projects = make(map[int64]*projectState)
	s.mu.Unlock()

	var firstErr error
	for _, ps := range states {
		if err := ps.manager.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := ps.db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// projectState resolves (opening lazily) the database and run manager for a
// project id.
func (s *Server) projectState(ctx context.Context, projectID int64) (*projectState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ps, ok := s.projects[projectID]; ok {
		return ps, nil
	}

	project, err := repository.GetProject(ctx, s.catalog.Handle(), projectID)
	if err != nil {
		return nil, err
	}

	dbPath := filepath.Join(s.cfg.ProjectsRoot, project.Name, "project.db")
	db, err := database.OpenProject(ctx, dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open project database: %w", err)
	}

	ps := &projectState{
		project: *project,
		db:      db,
		manager: run.NewManager(project.ID, db, project.DocRoot, s.clientFactory(project, dbPath), s.logger),
	}
	s.projects[projectID] = ps
	return ps, nil
}

// clientFactory builds the per-run LLM client, wiring a fresh debug sink per
// run so the transcript counter restarts.
func (s *Server) clientFactory(project *models.Project, dbPath string) run.ClientFactory {
	p := *project
	return func(runID int64) (llm.Client, error) {
		cfg := llm.Config{
			APIKey:  s.cfg.LLM.APIKey,
			BaseURL: s.cfg.LLM.BaseURL,
			Model:   s.cfg.LLM.Model,
			Timeout: s.cfg.LLM.Timeout,
		}
		if s.cfg.LLMDebug {
			sink, err := llm.NewDebugSink(filepath.Join(filepath.Dir(dbPath), "llm-debug"), s.logger)
			if err != nil {
				return nil, err
			}
			cfg.Sink = sink
		}
		return llm.NewClientForProject(&p, cfg, s.logger.With("run_id", runID))
	}
}

// pathID parses an integer path parameter.
func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

// withProject resolves the project state for the :pid parameter, writing the
// error response itself on failure.
func (s *Server) withProject(c *gin.Context) (*projectState, bool) {
	pid, ok := pathID(c, "pid")
	if !ok {
		return nil, false
	}
	ps, err := s.projectState(c.Request.Context(), pid)
	if err != nil {
		s.respondError(c, err)
		return nil, false
	}
	return ps, true
}
