package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glossforge/glossforge/pkg/config"
	"github.com/glossforge/glossforge/pkg/database"
)

func newTestServer(t *testing.T) (*Server, *gin.Engine) {
	t.Helper()
	root := t.TempDir()
	catalog, err := database.OpenCatalog(context.Background(), filepath.Join(root, "catalog.db"))
	require.NoError(t, err)

	cfg := config.Default()
	cfg.ProjectsRoot = root
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s := NewServer(cfg, catalog, logger)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = s.Close(ctx)
		_ = catalog.Close()
	})
	return s, s.Router()
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func createTestProject(t *testing.T, r *gin.Engine) int64 {
	t.Helper()
	w := doJSON(t, r, http.MethodPost, "/api/projects", gin.H{"name": "demo"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created struct {
		ID int64 `json:"id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.NotZero(t, created.ID)
	return created.ID
}

func TestProjectLifecycle(t *testing.T) {
	_, r := newTestServer(t)

	pid := createTestProject(t, r)

	w := doJSON(t, r, http.MethodGet, fmt.Sprintf("/api/projects/%d", pid), nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodPost, "/api/projects", gin.H{"name": "demo"})
	assert.Equal(t, http.StatusConflict, w.Code, "duplicate project name must be rejected")

	w = doJSON(t, r, http.MethodGet, "/api/projects/9999", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, r, http.MethodDelete, fmt.Sprintf("/api/projects/%d", pid), nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(t, r, http.MethodGet, fmt.Sprintf("/api/projects/%d", pid), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBulkUploadRejectsAllOnSingleOffender(t *testing.T) {
	_, r := newTestServer(t)
	pid := createTestProject(t, r)
	base := fmt.Sprintf("/api/projects/%d", pid)

	w := doJSON(t, r, http.MethodPost, base+"/files/bulk", gin.H{
		"files": []gin.H{
			{"file_name": "good.txt", "content": "fine"},
			{"file_name": "../etc/passwd", "content": "x"},
			{"file_name": "a//b.md", "content": "x"},
			{"file_name": "con.txt", "content": "x"},
			{"file_name": "x.exe", "content": "x"},
		},
	})
	require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())

	var resp struct {
		Error string `json:"error"`
		Files []struct {
			FileName string `json:"file_name"`
		} `json:"files"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "invalid files", resp.Error)
	// Every offender is reported; the valid file is not.
	assert.Len(t, resp.Files, 4)

	// Nothing was created and no run was triggered.
	w = doJSON(t, r, http.MethodGet, base+"/documents", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var docs struct {
		Documents []json.RawMessage `json:"documents"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &docs))
	assert.Empty(t, docs.Documents)

	w = doJSON(t, r, http.MethodGet, base+"/runs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var runs struct {
		Runs []json.RawMessage `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &runs))
	assert.Empty(t, runs.Runs)
}

func TestBulkUploadEmptyFiles(t *testing.T) {
	_, r := newTestServer(t)
	pid := createTestProject(t, r)

	w := doJSON(t, r, http.MethodPost, fmt.Sprintf("/api/projects/%d/files/bulk", pid), gin.H{"files": []gin.H{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStartRunValidation(t *testing.T) {
	_, r := newTestServer(t)
	pid := createTestProject(t, r)
	base := fmt.Sprintf("/api/projects/%d", pid)

	w := doJSON(t, r, http.MethodPost, base+"/runs", gin.H{"scope": "bogus"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, r, http.MethodPost, base+"/runs", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCurrentRunWhenIdle(t *testing.T) {
	_, r := newTestServer(t)
	pid := createTestProject(t, r)

	w := doJSON(t, r, http.MethodGet, fmt.Sprintf("/api/projects/%d/runs/current", pid), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "null", string(resp["run"]))
}

func TestCancelUnknownRunReturns404(t *testing.T) {
	_, r := newTestServer(t)
	pid := createTestProject(t, r)

	w := doJSON(t, r, http.MethodPost, fmt.Sprintf("/api/projects/%d/runs/42/cancel", pid), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStreamLogsUnknownRunReturns404(t *testing.T) {
	_, r := newTestServer(t)
	pid := createTestProject(t, r)

	w := doJSON(t, r, http.MethodGet, fmt.Sprintf("/api/projects/%d/runs/42/logs", pid), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTermListManagement(t *testing.T) {
	_, r := newTestServer(t)
	pid := createTestProject(t, r)
	base := fmt.Sprintf("/api/projects/%d", pid)

	w := doJSON(t, r, http.MethodPost, base+"/terms/required", gin.H{"term_text": "Alice"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = doJSON(t, r, http.MethodPost, base+"/terms/required", gin.H{"term_text": "Alice"})
	assert.Equal(t, http.StatusConflict, w.Code, "duplicates are rejected after normalization")

	w = doJSON(t, r, http.MethodPost, base+"/terms/excluded", gin.H{"term_text": ""})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, r, http.MethodGet, base+"/terms/required", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var listed struct {
		Terms []struct {
			ID       int64  `json:"id"`
			TermText string `json:"term_text"`
		} `json:"terms"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	require.Len(t, listed.Terms, 1)
	assert.Equal(t, "Alice", listed.Terms[0].TermText)

	w = doJSON(t, r, http.MethodDelete, fmt.Sprintf("%s/terms/required/%d", base, listed.Terms[0].ID), nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(t, r, http.MethodDelete, fmt.Sprintf("%s/terms/required/%d", base, listed.Terms[0].ID), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealthz(t *testing.T) {
	_, r := newTestServer(t)
	w := doJSON(t, r, http.MethodGet, "/api/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
