package activity

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fenestra-erp/fenestra-erp/internal/platform/httpx"
)

// Handler serves the per-job activity feed.
type Handler struct {
	logger *slog.Logger
	log    *Logger
}

func NewHandler(logger *slog.Logger, log *Logger) *Handler {
	return &Handler{logger: logger, log: log}
}

// MountRoutes registers activity routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/jobs/{jobID}", h.listByJob)
}

func (h *Handler) listByJob(w http.ResponseWriter, r *http.Request) {
	entries, err := h.log.ListByJob(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		h.logger.Error("activity list failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	if entries == nil {
		entries = []Entry{}
	}
	httpx.JSON(w, http.StatusOK, entries)
}
