package stock

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/fenestra-erp/fenestra-erp/internal/platform/httpx"
)

// Handler wires HTTP endpoints for the stock ledger.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the stock handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers stock routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/items", h.listItems)
	r.Get("/items/{id}", h.getItem)
	r.Get("/items/{id}/movements", h.listMovements)
	r.Post("/reserve", h.reserve)
	r.Post("/consume", h.consume)
	r.Post("/release", h.release)
}

type batchRequestDTO struct {
	JobID     string `json:"job_id" validate:"required"`
	Note      string `json:"note"`
	Confirmed bool   `json:"confirmed"`
	Lines     []struct {
		ItemID string  `json:"item_id" validate:"required"`
		Qty    float64 `json:"qty" validate:"required,gt=0"`
	} `json:"lines" validate:"required,min=1,dive"`
}

func (dto batchRequestDTO) toRequest() BatchRequest {
	req := BatchRequest{JobID: dto.JobID, Note: dto.Note, Confirmed: dto.Confirmed}
	for _, l := range dto.Lines {
		req.Lines = append(req.Lines, Line{ItemID: l.ItemID, Qty: l.Qty})
	}
	return req
}

func (h *Handler) listItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.ListItems(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, items)
}

func (h *Handler) getItem(w http.ResponseWriter, r *http.Request) {
	item, err := h.service.GetItem(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) listMovements(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	movements, err := h.service.ListMovements(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, movements)
}

func (h *Handler) reserve(w http.ResponseWriter, r *http.Request) {
	h.batch(w, r, h.service.Reserve)
}

func (h *Handler) consume(w http.ResponseWriter, r *http.Request) {
	h.batch(w, r, h.service.Consume)
}

func (h *Handler) release(w http.ResponseWriter, r *http.Request) {
	h.batch(w, r, h.service.Release)
}

func (h *Handler) batch(w http.ResponseWriter, r *http.Request, op func(context.Context, BatchRequest) (BatchResult, error)) {
	var dto batchRequestDTO
	if err := httpx.DecodeJSON(r, &dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	result, err := op(r.Context(), dto.toRequest())
	if err != nil {
		h.respondError(w, err)
		return
	}
	status := http.StatusOK
	if result.RequiresConfirmation && !result.Applied {
		// Preview response: the caller has to repeat with confirmed=true.
		status = http.StatusConflict
	}
	httpx.JSON(w, status, result)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrItemNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrEmptyBatch), errors.Is(err, ErrDuplicateLine):
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
	default:
		h.logger.Error("stock request failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
