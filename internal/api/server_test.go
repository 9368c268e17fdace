package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"corefetch/internal/audit"
	"corefetch/internal/config"
	"corefetch/internal/eventbus"
	"corefetch/internal/httpprobe"
	"corefetch/internal/model"
	"corefetch/internal/registry"
	"corefetch/internal/scheduler"
	"corefetch/internal/storage"
)

func newTestServer(t *testing.T) (*Server, *registry.Registry) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.New(filepath.Join(dir, "corefetch.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	cfg := config.NewManager(store)
	settings, err := cfg.Load()
	require.NoError(t, err)
	settings.DownloadDir = dir
	require.NoError(t, cfg.Save(settings))

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := registry.New(registry.Config{DownloadDir: dir, Probe: httpprobe.New()})
	sched := scheduler.New(context.Background(), scheduler.Deps{
		Registry: reg,
		Config:   cfg,
		Log:      log,
		Bus:      eventbus.New(nil),
		Audit:    audit.New(store, log),
		Store:    store,
	})
	reg.SetOnChange(func(taskID string, old, newStatus model.TaskStatus) {
		sched.ProcessQueue()
	})
	return New(reg, sched, cfg, log), reg
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandleAdd_CreatesPendingTask(t *testing.T) {
	s, reg := newTestServer(t)
	rec := doJSON(t, s.Handler(), http.MethodPost, "/downloads", addRequest{
		URL:      "https://example.test/file.bin",
		Filename: "file.bin",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp["id"])

	assert.Len(t, reg.List(), 1)
}

func TestHandleAdd_WithFolderIDCreatesFolderTask(t *testing.T) {
	s, reg := newTestServer(t)
	rec := doJSON(t, s.Handler(), http.MethodPost, "/downloads", addRequest{
		FolderID: "drive-folder-1",
		Filename: "MyFolder",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, reg.List(), 1)
	assert.Equal(t, "folder", string(reg.List()[0].Kind()))
}

func TestHandleList_ReturnsAllTasks(t *testing.T) {
	s, _ := newTestServer(t)
	doJSON(t, s.Handler(), http.MethodPost, "/downloads", addRequest{URL: "https://example.test/a", Filename: "a.bin"})
	doJSON(t, s.Handler(), http.MethodPost, "/downloads", addRequest{URL: "https://example.test/b", Filename: "b.bin"})

	rec := doJSON(t, s.Handler(), http.MethodGet, "/downloads", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var views []taskView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
	assert.Len(t, views, 2)
}

func TestHandlePause_MarksRunningTaskPaused(t *testing.T) {
	s, reg := newTestServer(t)
	addRec := doJSON(t, s.Handler(), http.MethodPost, "/downloads", addRequest{URL: "https://example.test/a", Filename: "a.bin"})
	var added map[string]string
	require.NoError(t, json.Unmarshal(addRec.Body.Bytes(), &added))
	id := added["id"]

	task, err := reg.Get(id)
	require.NoError(t, err)
	task.MarkRunning()

	pauseRec := doJSON(t, s.Handler(), http.MethodPost, "/downloads/"+id+"/pause", nil)
	require.Equal(t, http.StatusOK, pauseRec.Code)
	assert.Equal(t, model.StatusPaused, task.Status())
}

func TestHandleDelete_RemovesTask(t *testing.T) {
	s, reg := newTestServer(t)
	addRec := doJSON(t, s.Handler(), http.MethodPost, "/downloads", addRequest{URL: "https://example.test/a", Filename: "a.bin"})
	var added map[string]string
	require.NoError(t, json.Unmarshal(addRec.Body.Bytes(), &added))
	id := added["id"]

	req := httptest.NewRequest(http.MethodDelete, "/downloads/"+id+"?delete_file=false", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)

	assert.Empty(t, reg.List())
}

func TestHandleDelete_UnknownIDReturns404(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodDelete, "/downloads/missing", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleCheckFile_ReflectsExistence(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doJSON(t, s.Handler(), http.MethodGet, "/downloads/check_file?filename=a.bin", nil)
	var before map[string]bool
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &before))
	assert.False(t, before["exists"])

	doJSON(t, s.Handler(), http.MethodPost, "/downloads", addRequest{URL: "https://example.test/a", Filename: "a.bin"})

	rec = doJSON(t, s.Handler(), http.MethodGet, "/downloads/check_file?filename=a.bin", nil)
	var after map[string]bool
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &after))
	assert.True(t, after["exists"])
}

func TestHandleSettings_GetAndPostRoundTrip(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doJSON(t, s.Handler(), http.MethodGet, "/settings", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got config.Settings
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))

	got.MaxConcurrentDownloads = 7
	postRec := doJSON(t, s.Handler(), http.MethodPost, "/settings", got)
	require.Equal(t, http.StatusOK, postRec.Code)

	rec = doJSON(t, s.Handler(), http.MethodGet, "/settings", nil)
	var reread config.Settings
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reread))
	assert.Equal(t, 7, reread.MaxConcurrentDownloads)
}
