package jobs

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	"github.com/tallybooks/tallybooks/internal/platform/httpx"
)

// QueueHealth is the queue snapshot served by the health route.
type QueueHealth struct {
	Queue     string `json:"queue"`
	Pending   int    `json:"pending"`
	Active    int    `json:"active"`
	Scheduled int    `json:"scheduled"`
	Retry     int    `json:"retry"`
	Failed    int    `json:"failed_today"`
	Paused    bool   `json:"paused"`
}

// Snapshot reads the default queue state.
func Snapshot(inspector *asynq.Inspector) (QueueHealth, error) {
	out := QueueHealth{Queue: QueueDefault}
	if inspector == nil {
		return out, nil
	}
	info, err := inspector.GetQueueInfo(QueueDefault)
	if err != nil {
		return out, err
	}
	out.Pending = info.Pending
	out.Active = info.Active
	out.Scheduled = info.Scheduled
	out.Retry = info.Retry
	out.Failed = info.Failed
	out.Paused = info.Paused
	return out, nil
}

// Handler serves job queue health.
type Handler struct {
	inspector *asynq.Inspector
	logger    *slog.Logger
}

// NewHandler builds a Handler. A nil inspector reports an empty queue.
func NewHandler(inspector *asynq.Inspector, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{inspector: inspector, logger: logger}
}

// MountRoutes attaches job routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/health", h.health)
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	snapshot, err := Snapshot(h.inspector)
	if err != nil {
		h.logger.Warn("jobs health", slog.Any("error", err))
		httpx.Problem(w, http.StatusServiceUnavailable, "", "job queue unreachable")
		return
	}
	httpx.JSON(w, http.StatusOK, snapshot)
}
