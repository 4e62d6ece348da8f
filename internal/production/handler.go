package production

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/fenestra-erp/fenestra-erp/internal/platform/httpx"
	"github.com/fenestra-erp/fenestra-erp/internal/shared"
)

// Handler wires HTTP endpoints for production orders.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers production routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/orders", h.listOrders)
	r.Post("/orders", h.createOrder)
	r.Get("/orders/{id}", h.getOrder)
	r.Put("/orders/{id}", h.updateOrder)
	r.Delete("/orders/{id}", h.deleteOrder)
	r.Post("/orders/{id}/start", h.startOrder)
	r.Post("/orders/{id}/deliveries", h.recordDelivery)
	r.Post("/orders/{id}/reschedule", h.reschedule)
	r.Post("/orders/{id}/issues/{issueID}/resolve", h.resolveIssue)
	r.Get("/jobs/{jobID}/summary", h.jobSummary)
	r.Get("/summary", h.globalSummary)
	r.Get("/alerts", h.alerts)
}

type orderItemDTO struct {
	Description string `json:"description"`
	GlassType   string `json:"glass_type"`
	GlassName   string `json:"glass_name"`
	Combination string `json:"combination"`
	Quantity    int    `json:"quantity" validate:"required,gt=0"`
	Unit        string `json:"unit"`
	Notes       string `json:"notes"`
}

func (dto orderItemDTO) toItem() OrderItem {
	return OrderItem{
		Description: dto.Description,
		GlassType:   dto.GlassType,
		GlassName:   dto.GlassName,
		Combination: dto.Combination,
		Quantity:    dto.Quantity,
		Unit:        dto.Unit,
		Notes:       dto.Notes,
	}
}

type createOrderDTO struct {
	JobID             string         `json:"job_id" validate:"required"`
	RoleID            string         `json:"role_id" validate:"required"`
	RoleName          string         `json:"role_name"`
	Type              string         `json:"order_type" validate:"required,oneof=internal external glass"`
	SupplierID        string         `json:"supplier_id"`
	SupplierName      string         `json:"supplier_name"`
	Items             []orderItemDTO `json:"items" validate:"required,min=1,dive"`
	EstimatedDelivery *time.Time     `json:"estimated_delivery"`
	Notes             string         `json:"notes"`
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var dto createOrderDTO
	if err := httpx.DecodeJSON(r, &dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	in := CreateOrderInput{
		JobID:             dto.JobID,
		RoleID:            dto.RoleID,
		RoleName:          dto.RoleName,
		Type:              OrderType(dto.Type),
		SupplierID:        dto.SupplierID,
		SupplierName:      dto.SupplierName,
		EstimatedDelivery: dto.EstimatedDelivery,
		Notes:             dto.Notes,
	}
	for _, item := range dto.Items {
		in.Items = append(in.Items, item.toItem())
	}
	order, err := h.service.CreateOrder(r.Context(), in)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, order)
}

type updateOrderDTO struct {
	Items             []orderItemDTO `json:"items"`
	EstimatedDelivery *time.Time     `json:"estimated_delivery"`
	SupplierID        *string        `json:"supplier_id"`
	SupplierName      *string        `json:"supplier_name"`
	Notes             *string        `json:"notes"`
}

func (h *Handler) updateOrder(w http.ResponseWriter, r *http.Request) {
	var dto updateOrderDTO
	if err := httpx.DecodeJSON(r, &dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	in := UpdateOrderInput{
		EstimatedDelivery: dto.EstimatedDelivery,
		SupplierID:        dto.SupplierID,
		SupplierName:      dto.SupplierName,
		Notes:             dto.Notes,
	}
	if dto.Items != nil {
		in.Items = make([]OrderItem, 0, len(dto.Items))
		for _, item := range dto.Items {
			in.Items = append(in.Items, item.toItem())
		}
	}
	order, err := h.service.UpdateOrder(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteOrder(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := Filter{
		JobID:      q.Get("job_id"),
		RoleID:     q.Get("role_id"),
		Type:       OrderType(q.Get("order_type")),
		Status:     OrderStatus(q.Get("status")),
		SupplierID: q.Get("supplier_id"),
		Overdue:    q.Get("overdue") == "true",
	}
	orders, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, orders)
}

func (h *Handler) startOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.service.StartProduction(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

type deliveryDTO struct {
	Date  *time.Time `json:"date"`
	Note  string     `json:"note"`
	Lines []struct {
		LineIndex   int    `json:"line_index"`
		ReceivedQty int    `json:"received_qty" validate:"gte=0"`
		ProblemQty  int    `json:"problem_qty" validate:"gte=0"`
		ProblemType string `json:"problem_type"`
		ProblemNote string `json:"problem_note"`
	} `json:"lines" validate:"required,min=1,dive"`
}

func (h *Handler) recordDelivery(w http.ResponseWriter, r *http.Request) {
	var dto deliveryDTO
	if err := httpx.DecodeJSON(r, &dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	rec := DeliveryRecord{Note: dto.Note}
	if dto.Date != nil {
		rec.Date = *dto.Date
	}
	for _, line := range dto.Lines {
		rec.Lines = append(rec.Lines, DeliveryLine{
			LineIndex:   line.LineIndex,
			ReceivedQty: line.ReceivedQty,
			ProblemQty:  line.ProblemQty,
			ProblemType: ProblemType(line.ProblemType),
			ProblemNote: line.ProblemNote,
		})
	}
	order, err := h.service.RecordDelivery(r.Context(), chi.URLParam(r, "id"), rec)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

type rescheduleDTO struct {
	NewDate             time.Time `json:"new_date" validate:"required"`
	Reason              string    `json:"reason"`
	ResponsiblePersonID string    `json:"responsible_person_id"`
	Note                string    `json:"note"`
}

func (h *Handler) reschedule(w http.ResponseWriter, r *http.Request) {
	var dto rescheduleDTO
	if err := httpx.DecodeJSON(r, &dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	order, err := h.service.Reschedule(r.Context(), chi.URLParam(r, "id"), RescheduleInput{
		NewDate:             dto.NewDate,
		Reason:              dto.Reason,
		ResponsiblePersonID: dto.ResponsiblePersonID,
		Note:                dto.Note,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

type resolveIssueDTO struct {
	Resolution   string `json:"resolution" validate:"required,oneof=replaced refunded credited cancelled"`
	ResolvedQty  int    `json:"resolved_qty" validate:"gte=0"`
	Note         string `json:"note"`
	FollowUpType string `json:"follow_up_type"`
	FollowUpQty  int    `json:"follow_up_qty" validate:"gte=0"`
	FollowUpNote string `json:"follow_up_note"`
}

func (h *Handler) resolveIssue(w http.ResponseWriter, r *http.Request) {
	var dto resolveIssueDTO
	if err := httpx.DecodeJSON(r, &dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	order, err := h.service.ResolveIssue(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "issueID"), ResolveIssueInput{
		Resolution:   Resolution(dto.Resolution),
		ResolvedQty:  dto.ResolvedQty,
		Note:         dto.Note,
		FollowUpType: ProblemType(dto.FollowUpType),
		FollowUpQty:  dto.FollowUpQty,
		FollowUpNote: dto.FollowUpNote,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) jobSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := h.service.Summarize(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sum)
}

func (h *Handler) globalSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := h.service.GlobalSummary(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sum)
}

func (h *Handler) alerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.service.Alerts(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, alerts)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	var verr *shared.ValidationError
	switch {
	case errors.As(err, &verr):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", verr.Error())
	case errors.Is(err, ErrOrderNotFound), errors.Is(err, ErrIssueNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrOrderLocked), errors.Is(err, ErrAlreadyStarted):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrDelayReasonRequired), errors.Is(err, ErrNoItems), errors.Is(err, ErrBadLineIndex):
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
	default:
		h.logger.Error("production request failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
