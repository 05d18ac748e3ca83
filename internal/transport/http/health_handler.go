package http

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apperrors "omnichannel/internal/errors"
	"omnichannel/internal/pipeline"
)

// HealthResponse is the body of /healthz
type HealthResponse struct {
	Status  string    `json:"status"`
	Service string    `json:"service"`
	Started time.Time `json:"started"`
	Uptime  string    `json:"uptime"`
}

// StatusHandler reports liveness and the progress of the tracked run
type StatusHandler struct {
	service string
	started time.Time
	logger  *slog.Logger

	mu  sync.RWMutex
	run *pipeline.RunState
}

// NewStatusHandler creates a status handler with no run tracked yet
func NewStatusHandler(service string, logger *slog.Logger) *StatusHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StatusHandler{
		service: service,
		started: time.Now(),
		logger:  logger.With(slog.String("handler", "status")),
	}
}

// Track makes state the run reported by /status
func (h *StatusHandler) Track(state *pipeline.RunState) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.run = state
}

// Health handles GET /healthz
func (h *StatusHandler) Health(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, HealthResponse{
		Status:  "ok",
		Service: h.service,
		Started: h.started,
		Uptime:  time.Since(h.started).Truncate(time.Second).String(),
	})
}

// Status handles GET /status
func (h *StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	run := h.run
	h.mu.RUnlock()

	if run == nil {
		h.logger.DebugContext(r.Context(), "status requested before run start")
		apperrors.WriteError(w, apperrors.ErrRunNotStarted)
		return
	}
	render.JSON(w, r, run.Snapshot())
}

// StepStatus handles GET /status/{step}
func (h *StatusHandler) StepStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "step")
	h.mu.RLock()
	run := h.run
	h.mu.RUnlock()

	if run == nil {
		apperrors.WriteError(w, apperrors.ErrRunNotStarted)
		return
	}
	st := run.Step(id)
	if st == nil {
		apperrors.WriteError(w, apperrors.FromError(apperrors.NewNotFoundError("step "+id)))
		return
	}
	render.JSON(w, r, st.Snapshot())
}
