package httpserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrymomot/jobqueue/pkg/logger"
	"github.com/dmitrymomot/jobqueue/pkg/queue"
)

// NewRouter exposes worker state over HTTP:
//
//	GET    /health/live
//	GET    /health/ready          worker adapter checks plus extra ones
//	GET    /queues                stats of every queue
//	GET    /queues/{name}         stats of one queue
//	GET    /queues/{name}/failed  failed jobs
//	DELETE /queues/{name}/failed  drop failed jobs
func NewRouter(w *queue.Worker, log *slog.Logger, checks ...Check) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	h := &handlers{worker: w, log: log}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	ready := append([]Check{{Name: "queues", Fn: w.Healthcheck}}, checks...)
	r.Get("/health/live", HealthCheckHandler(log))
	r.Get("/health/ready", HealthCheckHandler(log, ready...))

	r.Route("/queues", func(r chi.Router) {
		r.Get("/", h.listQueues)
		r.Get("/{name}", h.getQueue)
		r.Get("/{name}/failed", h.failedJobs)
		r.Delete("/{name}/failed", h.clearFailed)
	})
	return r
}

type handlers struct {
	worker *queue.Worker
	log    *slog.Logger
}

func (h *handlers) listQueues(w http.ResponseWriter, r *http.Request) {
	stats, err := h.worker.Stats(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.json(w, http.StatusOK, stats)
}

func (h *handlers) getQueue(w http.ResponseWriter, r *http.Request) {
	q, err := h.worker.Queue(chi.URLParam(r, "name"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	stats, err := q.Stats(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.json(w, http.StatusOK, stats)
}

func (h *handlers) failedJobs(w http.ResponseWriter, r *http.Request) {
	q, err := h.worker.Queue(chi.URLParam(r, "name"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	jobs, err := q.FailedJobs(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.json(w, http.StatusOK, jobs)
}

func (h *handlers) clearFailed(w http.ResponseWriter, r *http.Request) {
	q, err := h.worker.Queue(chi.URLParam(r, "name"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := q.ClearFailed(r.Context()); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) json(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, queue.ErrQueueNotFound) {
		status = http.StatusNotFound
	} else {
		h.log.ErrorContext(r.Context(), "request failed", slog.String("path", r.URL.Path), logger.Error(err))
	}
	h.json(w, status, map[string]string{"error": err.Error()})
}
