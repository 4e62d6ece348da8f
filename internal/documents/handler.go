package documents

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/fenestra-erp/fenestra-erp/internal/platform/httpx"
)

// Handler records and lists document type tags. The upload pipeline lives
// outside the engine; it only reports tags here.
type Handler struct {
	logger   *slog.Logger
	store    *TagStore
	validate *validator.Validate
}

func NewHandler(logger *slog.Logger, store *TagStore) *Handler {
	return &Handler{logger: logger, store: store, validate: validator.New()}
}

// MountRoutes registers document tag routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/jobs/{jobID}/tags", h.list)
	r.Post("/jobs/{jobID}/tags", h.record)
	r.Delete("/jobs/{jobID}/tags/{tag}", h.remove)
}

type tagDTO struct {
	Tag string `json:"tag" validate:"required"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	tags, err := h.store.ListTags(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	if tags == nil {
		tags = []string{}
	}
	httpx.JSON(w, http.StatusOK, tags)
}

func (h *Handler) record(w http.ResponseWriter, r *http.Request) {
	var dto tagDTO
	if err := httpx.DecodeJSON(r, &dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.store.Record(r.Context(), chi.URLParam(r, "jobID"), dto.Tag); err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]string{"tag": dto.Tag})
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Remove(r.Context(), chi.URLParam(r, "jobID"), chi.URLParam(r, "tag")); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	h.logger.Error("document tag request failed", slog.Any("error", err))
	httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
}
