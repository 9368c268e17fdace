// Package api exposes the engine's REST surface (spec §6): a thin
// collaborator kept out of the core, with a fixed contract over task
// lifecycle and settings. Grounded on the teacher's
// internal/api/server.go (ControlServer), stripped of its AI-bridge
// token auth and loopback enforcement — those guarded an opt-in local
// automation feature with no analogue in this spec — but keeping its
// chi.Mux + middleware.Logger/Recoverer shape.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"corefetch/internal/config"
	"corefetch/internal/model"
	"corefetch/internal/registry"
	"corefetch/internal/scheduler"
)

// Server is the §6 REST surface over a Registry and Scheduler.
type Server struct {
	reg    *registry.Registry
	sched  *scheduler.Scheduler
	cfg    *config.Manager
	log    *slog.Logger
	router *chi.Mux
}

// New builds a Server with routes installed; call Handler to get the
// http.Handler to serve.
func New(reg *registry.Registry, sched *scheduler.Scheduler, cfg *config.Manager, log *slog.Logger) *Server {
	s := &Server{reg: reg, sched: sched, cfg: cfg, log: log, router: chi.NewRouter()}
	s.routes()
	return s
}

// Handler returns the server's http.Handler for use with http.Serve or
// httptest.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() {
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)

	s.router.Post("/downloads", s.handleAdd)
	s.router.Get("/downloads", s.handleList)
	s.router.Get("/downloads/check_file", s.handleCheckFile)
	s.router.Post("/downloads/{id}/pause", s.handlePause)
	s.router.Post("/downloads/{id}/resume", s.handleResume)
	s.router.Post("/downloads/{id}/limit", s.handleLimit)
	s.router.Post("/downloads/{id}/refresh_link", s.handleRefreshLink)
	s.router.Post("/downloads/{id}/rename", s.handleRename)
	s.router.Delete("/downloads/{id}", s.handleDelete)

	s.router.Get("/settings", s.handleGetSettings)
	s.router.Post("/settings", s.handlePostSettings)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrTaskBusy):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

type addRequest struct {
	URL            string            `json:"url"`
	FolderID       string            `json:"folder_id"`
	Filename       string            `json:"filename"`
	AutoExtract    bool              `json:"auto_extract"`
	SpeedLimit     int64             `json:"speed_limit"`
	MaxConnections int               `json:"max_connections"`
	Headers        map[string]string `json:"headers"`
}

func (s *Server) handleAdd(w http.ResponseWriter, r *http.Request) {
	var req addRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var (
		id  string
		err error
	)
	if req.MaxConnections <= 0 {
		if settings, lerr := s.cfg.Load(); lerr == nil {
			req.MaxConnections = settings.MaxConnectionsPerTask
		}
	}
	if req.FolderID != "" {
		id, err = s.reg.AddFolder(req.FolderID, registry.AddFolderOpts{
			Name:           req.Filename,
			AutoExtract:    req.AutoExtract,
			SpeedLimit:     req.SpeedLimit,
			MaxConnections: req.MaxConnections,
		})
	} else {
		id, err = s.reg.Add(req.URL, registry.AddFileOpts{
			Filename:       req.Filename,
			AutoExtract:    req.AutoExtract,
			SpeedLimit:     req.SpeedLimit,
			MaxConnections: req.MaxConnections,
			Headers:        req.Headers,
		})
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	s.sched.ProcessQueue()
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": "started"})
}

type taskView struct {
	ID             string  `json:"id"`
	Kind           string  `json:"kind"`
	Filename       string  `json:"filename"`
	Status         string  `json:"status"`
	Progress       float64 `json:"progress"`
	TotalSize      int64   `json:"total_size"`
	DownloadedSize int64   `json:"downloaded_size"`
	Speed          int64   `json:"speed"`
	SpeedLimit     int64   `json:"speed_limit"`
	ErrorMessage   string  `json:"error_message,omitempty"`
}

func viewOf(t *registry.Task) taskView {
	downloaded, total, speed := t.Progress()
	var progress float64
	if total > 0 {
		progress = float64(downloaded) / float64(total) * 100
	}
	return taskView{
		ID:             t.ID(),
		Kind:           string(t.Kind()),
		Filename:       t.Filename(),
		Status:         string(t.Status()),
		Progress:       progress,
		TotalSize:      total,
		DownloadedSize: downloaded,
		Speed:          speed,
		SpeedLimit:     t.SpeedLimit(),
		ErrorMessage:   t.ErrorMessage(),
	}
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	tasks := s.reg.List()
	views := make([]taskView, 0, len(tasks))
	for _, t := range tasks {
		views = append(views, viewOf(t))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleCheckFile(w http.ResponseWriter, r *http.Request) {
	filename := r.URL.Query().Get("filename")
	writeJSON(w, http.StatusOK, map[string]bool{"exists": s.reg.Exists(filename)})
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	t, err := s.reg.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	t.Pause()
	writeJSON(w, http.StatusOK, viewOf(t))
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	t, err := s.reg.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	t.Resume()
	s.sched.ProcessQueue()
	writeJSON(w, http.StatusOK, viewOf(t))
}

type limitRequest struct {
	Limit int64 `json:"limit"`
}

func (s *Server) handleLimit(w http.ResponseWriter, r *http.Request) {
	t, err := s.reg.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	var req limitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	t.SetSpeedLimit(req.Limit)
	writeJSON(w, http.StatusOK, viewOf(t))
}

type refreshLinkRequest struct {
	URL string `json:"url"`
}

func (s *Server) handleRefreshLink(w http.ResponseWriter, r *http.Request) {
	t, err := s.reg.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	var req refreshLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	t.UpdateURL(req.URL)
	writeJSON(w, http.StatusOK, viewOf(t))
}

type renameRequest struct {
	Filename string `json:"filename"`
}

func (s *Server) handleRename(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req renameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.reg.Rename(id, req.Filename); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	t, err := s.reg.Get(id)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(t))
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	deleteFile, _ := strconv.ParseBool(r.URL.Query().Get("delete_file"))
	if err := s.reg.Delete(id, deleteFile); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	s.sched.ProcessQueue()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.cfg.Load()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (s *Server) handlePostSettings(w http.ResponseWriter, r *http.Request) {
	var settings config.Settings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.cfg.Save(settings); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.sched.ProcessQueue()
	writeJSON(w, http.StatusOK, settings)
}

// ListenAndServe starts the HTTP server on addr (e.g. "127.0.0.1:8080")
// and blocks until it returns an error.
func (s *Server) ListenAndServe(addr string) error {
	s.log.Info("api: listening", "addr", addr)
	if err := http.ListenAndServe(addr, s.router); err != nil {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}
