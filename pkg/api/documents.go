package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/glossforge/glossforge/pkg/database"
	"github.com/glossforge/glossforge/pkg/models"
	"github.com/glossforge/glossforge/pkg/repository"
	"github.com/glossforge/glossforge/pkg/run"
)

type uploadFile struct {
	FileName string `json:"file_name"`
	Content  string `json:"content"`
}

type bulkUploadRequest struct {
	Files []uploadFile `json:"files" binding:"required"`
}

type fileError struct {
	FileName string `json:"file_name"`
	Error    string `json:"error"`
}

// bulkUpload validates every file before creating any. A single offender
// fails the whole request with 400 and no side effects. On success the
// documents are inserted in one transaction and an incremental extract run
// is triggered for the new ids.
func (s *Server) bulkUpload(c *gin.Context) {
	ps, ok := s.withProject(c)
	if !ok {
		return
	}
	var req bulkUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	if len(req.Files) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no files provided"})
		return
	}

	var fileErrors []fileError
	for _, f := range req.Files {
		if err := models.ValidateFileName(f.FileName); err != nil {
			fileErrors = append(fileErrors, fileError{FileName: f.FileName, Error: err.Error()})
			continue
		}
		if err := models.ValidateDocumentContent(f.Content); err != nil {
			fileErrors = append(fileErrors, fileError{FileName: f.FileName, Error: err.Error()})
		}
	}
	if len(fileErrors) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid files", "files": fileErrors})
		return
	}

	docs := make([]models.Document, len(req.Files))
	for i, f := range req.Files {
		docs[i] = models.Document{FileName: f.FileName, Content: f.Content}
	}

	var created []models.Document
	err := ps.db.Handle().InTx(c.Request.Context(), func(h *database.Handle) error {
		var err error
		created, err = repository.InsertDocuments(c.Request.Context(), h, docs)
		return err
	})
	if err != nil {
		s.respondError(c, err)
		return
	}

	ids := make([]int64, len(created))
	for i, d := range created {
		ids[i] = d.ID
	}

	resp := gin.H{"document_ids": ids}
	runID, err := ps.manager.StartRun(c.Request.Context(), models.ScopeExtract, "upload", ids)
	switch {
	case err == nil:
		resp["run_id"] = runID
	case errors.Is(err, run.ErrAlreadyRunning):
		// Upload succeeded; extraction must be triggered manually later.
		resp["warning"] = "a run is already active, extraction not triggered"
	default:
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (s *Server) listDocuments(c *gin.Context) {
	ps, ok := s.withProject(c)
	if !ok {
		return
	}
	docs, err := repository.ListDocuments(c.Request.Context(), ps.db.Handle())
	if err != nil {
		s.respondError(c, err)
		return
	}
	// Content is omitted from the listing; fetch a single document for it.
	type docMeta struct {
		ID          int64  `json:"id"`
		FileName    string `json:"file_name"`
		ContentHash string `json:"content_hash"`
	}
	out := make([]docMeta, len(docs))
	for i, d := range docs {
		out[i] = docMeta{ID: d.ID, FileName: d.FileName, ContentHash: d.ContentHash}
	}
	c.JSON(http.StatusOK, gin.H{"documents": out})
}

func (s *Server) getDocument(c *gin.Context) {
	ps, ok := s.withProject(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	doc, err := repository.GetDocument(c.Request.Context(), ps.db.Handle(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

type replaceDocumentRequest struct {
	Content string `json:"content"`
}

func (s *Server) replaceDocument(c *gin.Context) {
	ps, ok := s.withProject(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req replaceDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	if err := models.ValidateDocumentContent(req.Content); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := repository.ReplaceDocumentContent(c.Request.Context(), ps.db.Handle(), id, req.Content); err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) deleteDocument(c *gin.Context) {
	ps, ok := s.withProject(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := repository.DeleteDocument(c.Request.Context(), ps.db.Handle(), id); err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
