package controlplane

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/voxkb/voxkb/internal/models"
)

// Server provides the HTTP API for the ingestion queue.
type Server struct {
	service *Service
	addr    string
	log     *slog.Logger
	server  *http.Server
}

// NewServer creates a new HTTP server.
func NewServer(service *Service, addr string, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{service: service, addr: addr, log: log}
}

// Router builds the API routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/queue", func(r chi.Router) {
		r.Post("/tasks", s.submitTask)
		r.Get("/tasks", s.listTasks)
		r.Get("/tasks/{id}", s.getTask)
		r.Post("/tasks/{id}/cancel", s.cancelTask)
		r.Get("/tasks/{id}/events", s.taskEvents)
		r.Get("/stats", s.queueStats)
	})

	r.Route("/progress", func(r chi.Router) {
		r.Get("/", s.listProgress)
		r.Get("/{expertID}", s.getProgress)
		r.Delete("/{expertID}", s.deleteProgress)
	})

	r.Get("/worker", s.workerStatus)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return r
}

// Start starts the HTTP server and blocks until it exits.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	s.log.Info("starting ingestion daemon", "addr", s.addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// --- Queue handlers ---

func (s *Server) submitTask(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	resp, err := s.service.SubmitIngestion(req)
	if err != nil {
		writeError(w, httpStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	status := models.TaskStatus(r.URL.Query().Get("status"))
	tasks, err := s.service.ListTasks(status)
	if err != nil {
		writeError(w, httpStatus(err), err.Error())
		return
	}
	if tasks == nil {
		tasks = []models.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.service.GetTask(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, httpStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) cancelTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.service.CancelTask(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, httpStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) taskEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.service.TaskEvents(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, httpStatus(err), err.Error())
		return
	}
	if events == nil {
		events = []models.TaskEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) queueStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.service.QueueStats()
	if err != nil {
		writeError(w, httpStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// --- Progress handlers ---

func (s *Server) listProgress(w http.ResponseWriter, r *http.Request) {
	records, err := s.service.ListProgress()
	if err != nil {
		writeError(w, httpStatus(err), err.Error())
		return
	}
	if records == nil {
		records = []models.Progress{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) getProgress(w http.ResponseWriter, r *http.Request) {
	record, err := s.service.GetProgress(chi.URLParam(r, "expertID"))
	if err != nil {
		writeError(w, httpStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) deleteProgress(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteProgress(chi.URLParam(r, "expertID")); err != nil {
		writeError(w, httpStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// --- Worker handler ---

func (s *Server) workerStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.WorkerStatus())
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
