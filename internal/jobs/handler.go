package jobs

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/fenestra-erp/fenestra-erp/internal/payments"
	"github.com/fenestra-erp/fenestra-erp/internal/platform/httpx"
	"github.com/fenestra-erp/fenestra-erp/internal/shared"
)

// Handler wires HTTP endpoints for the job state machine.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers job routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Post("/{id}/transition", h.transition)
	r.Put("/{id}/offer", h.updateOffer)
	r.Post("/{id}/reject", h.reject)
	r.Post("/{id}/reactivate", h.reactivate)
	r.Put("/{id}/payment-plan", h.updatePaymentPlan)
	r.Post("/{id}/approval", h.startApproval)
	r.Post("/{id}/measure-issues", h.reportMeasureIssue)
	r.Post("/{id}/measure-issues/{issueID}/resolve", h.resolveMeasureIssue)
	r.Put("/{id}/estimated-assembly", h.setEstimatedAssembly)
	r.Post("/{id}/schedule-assembly", h.scheduleAssembly)
	r.Post("/{id}/complete-assembly", h.completeAssembly)
	r.Post("/{id}/payments", h.recordPayment)
	r.Post("/{id}/close", h.closeFinance)
	r.Post("/{id}/inquiry-decision", h.inquiryDecision)
	r.Post("/{id}/visits", h.openVisit)
	r.Post("/{id}/visits/{visitID}/complete", h.completeVisit)
	r.Post("/{id}/cancel", h.cancel)
}

type roleDTO struct {
	ID            string `json:"id" validate:"required"`
	Key           string `json:"key"`
	Name          string `json:"name"`
	RequiresGlass bool   `json:"requires_glass"`
}

type createJobDTO struct {
	CustomerID string    `json:"customer_id"`
	Title      string    `json:"title"`
	StartType  string    `json:"start_type" validate:"required,oneof=MEASURE_SELF MEASURE_CUSTOMER SERVICE ARCHIVE"`
	Roles      []roleDTO `json:"roles" validate:"dive"`
	FixedFee   float64   `json:"fixed_fee" validate:"gte=0"`
	Note       string    `json:"note"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var dto createJobDTO
	if err := httpx.DecodeJSON(r, &dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	in := CreateInput{
		CustomerID: dto.CustomerID,
		Title:      dto.Title,
		StartType:  StartType(dto.StartType),
		FixedFee:   dto.FixedFee,
		Note:       dto.Note,
	}
	for _, role := range dto.Roles {
		in.Roles = append(in.Roles, Role{
			ID:            role.ID,
			Key:           role.Key,
			Name:          role.Name,
			RequiresGlass: role.RequiresGlass,
		})
	}
	job, err := h.service.Create(r.Context(), in)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, job)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	job, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, job)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	jobs, err := h.service.List(r.Context(), Filter{
		Status:    Status(q.Get("status")),
		StartType: StartType(q.Get("start_type")),
		Query:     q.Get("q"),
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, jobs)
}

type stockLineDTO struct {
	ItemID string  `json:"item_id" validate:"required"`
	Qty    float64 `json:"qty" validate:"required,gt=0"`
	Unit   string  `json:"unit"`
}

type transitionDTO struct {
	Target string `json:"target" validate:"required"`

	AppointmentDate *time.Time     `json:"appointment_date"`
	EstimatedDate   *time.Time     `json:"estimated_date"`
	StockLines      []stockLineDTO `json:"stock_lines" validate:"omitempty,dive"`
	Note            string         `json:"note"`

	RejectionCategory string     `json:"rejection_category"`
	RejectionReason   string     `json:"rejection_reason"`
	FollowUpDate      *time.Time `json:"follow_up_date"`

	CancelReason string `json:"cancel_reason"`
	CancelNote   string `json:"cancel_note"`

	ConfirmBorrow          bool `json:"confirm_borrow"`
	ConfirmPendingAssembly bool `json:"confirm_pending_assembly"`
	NoAutoAdvance          bool `json:"no_auto_advance"`
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request) {
	var dto transitionDTO
	if err := httpx.DecodeJSON(r, &dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	in := TransitionInput{
		Target:                 Status(dto.Target),
		AppointmentDate:        dto.AppointmentDate,
		EstimatedDate:          dto.EstimatedDate,
		Note:                   dto.Note,
		RejectionCategory:      dto.RejectionCategory,
		RejectionReason:        dto.RejectionReason,
		FollowUpDate:           dto.FollowUpDate,
		CancelReason:           dto.CancelReason,
		CancelNote:             dto.CancelNote,
		ConfirmBorrow:          dto.ConfirmBorrow,
		ConfirmPendingAssembly: dto.ConfirmPendingAssembly,
		NoAutoAdvance:          dto.NoAutoAdvance,
	}
	for _, line := range dto.StockLines {
		in.StockLines = append(in.StockLines, StockLine{ItemID: line.ItemID, Qty: line.Qty, Unit: line.Unit})
	}
	result, err := h.service.Transition(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

type offerDTO struct {
	RolePrices    map[string]float64 `json:"role_prices" validate:"required,min=1"`
	DiscountTotal float64            `json:"discount_total" validate:"gte=0"`
}

func (h *Handler) updateOffer(w http.ResponseWriter, r *http.Request) {
	var dto offerDTO
	if err := httpx.DecodeJSON(r, &dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	job, err := h.service.UpdateOffer(r.Context(), chi.URLParam(r, "id"), OfferInput{
		RolePrices:    dto.RolePrices,
		DiscountTotal: dto.DiscountTotal,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, job)
}

type rejectDTO struct {
	Category     string     `json:"category" validate:"required"`
	Reason       string     `json:"reason" validate:"required"`
	FollowUpDate *time.Time `json:"follow_up_date"`
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	var dto rejectDTO
	if err := httpx.DecodeJSON(r, &dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	result, err := h.service.RejectOffer(r.Context(), chi.URLParam(r, "id"), RejectInput{
		Category:     dto.Category,
		Reason:       dto.Reason,
		FollowUpDate: dto.FollowUpDate,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) reactivate(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.Reactivate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

type subPlanDTO struct {
	Amount  float64    `json:"amount" validate:"gte=0"`
	DueDate *time.Time `json:"due_date"`
}

type chequeLineDTO struct {
	Amount  float64   `json:"amount" validate:"gt=0"`
	DueDate time.Time `json:"due_date" validate:"required"`
	Bank    string    `json:"bank"`
	Number  string    `json:"number"`
}

type paymentPlanDTO struct {
	Cash          subPlanDTO      `json:"cash"`
	Card          subPlanDTO      `json:"card"`
	Cheque        subPlanDTO      `json:"cheque"`
	AfterDelivery subPlanDTO      `json:"after_delivery"`
	ChequeLines   []chequeLineDTO `json:"cheque_lines" validate:"omitempty,dive"`
	ChequesIn     bool            `json:"cheques_in"`
}

func (dto paymentPlanDTO) toPlan() payments.Plan {
	plan := payments.Plan{
		Cash:          payments.SubPlan{Amount: dto.Cash.Amount, DueDate: dto.Cash.DueDate},
		Card:          payments.SubPlan{Amount: dto.Card.Amount, DueDate: dto.Card.DueDate},
		Cheque:        payments.SubPlan{Amount: dto.Cheque.Amount, DueDate: dto.Cheque.DueDate},
		AfterDelivery: payments.SubPlan{Amount: dto.AfterDelivery.Amount, DueDate: dto.AfterDelivery.DueDate},
		ChequesIn:     dto.ChequesIn,
	}
	for _, line := range dto.ChequeLines {
		plan.ChequeLines = append(plan.ChequeLines, payments.ChequeLine{
			Amount:  line.Amount,
			DueDate: line.DueDate,
			Bank:    line.Bank,
			Number:  line.Number,
		})
	}
	return plan
}

func (h *Handler) updatePaymentPlan(w http.ResponseWriter, r *http.Request) {
	var dto paymentPlanDTO
	if err := httpx.DecodeJSON(r, &dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	job, err := h.service.UpdatePaymentPlan(r.Context(), chi.URLParam(r, "id"), dto.toPlan())
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, job)
}

func (h *Handler) startApproval(w http.ResponseWriter, r *http.Request) {
	var dto paymentPlanDTO
	if err := httpx.DecodeJSON(r, &dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	result, err := h.service.StartApproval(r.Context(), chi.URLParam(r, "id"), dto.toPlan())
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

type measureIssueDTO struct {
	Type        string `json:"type" validate:"required"`
	FaultSource string `json:"fault_source"`
	Description string `json:"description"`
}

func (h *Handler) reportMeasureIssue(w http.ResponseWriter, r *http.Request) {
	var dto measureIssueDTO
	if err := httpx.DecodeJSON(r, &dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	job, err := h.service.ReportMeasureIssue(r.Context(), chi.URLParam(r, "id"), MeasureIssueInput{
		Type:        dto.Type,
		FaultSource: dto.FaultSource,
		Description: dto.Description,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, job)
}

type resolveDTO struct {
	Resolution string `json:"resolution" validate:"required"`
}

func (h *Handler) resolveMeasureIssue(w http.ResponseWriter, r *http.Request) {
	var dto resolveDTO
	if err := httpx.DecodeJSON(r, &dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	job, err := h.service.ResolveMeasureIssue(r.Context(),
		chi.URLParam(r, "id"), chi.URLParam(r, "issueID"), dto.Resolution)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, job)
}

type dateNoteDTO struct {
	Date time.Time `json:"date" validate:"required"`
	Note string    `json:"note"`
}

func (h *Handler) setEstimatedAssembly(w http.ResponseWriter, r *http.Request) {
	var dto dateNoteDTO
	if err := httpx.DecodeJSON(r, &dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	job, err := h.service.SetEstimatedAssembly(r.Context(), chi.URLParam(r, "id"), dto.Date, dto.Note)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, job)
}

func (h *Handler) scheduleAssembly(w http.ResponseWriter, r *http.Request) {
	var dto dateNoteDTO
	if err := httpx.DecodeJSON(r, &dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	result, err := h.service.ScheduleAssembly(r.Context(), chi.URLParam(r, "id"), dto.Date, dto.Note)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

type completeAssemblyDTO struct {
	ConfirmPending bool `json:"confirm_pending"`
}

func (h *Handler) completeAssembly(w http.ResponseWriter, r *http.Request) {
	var dto completeAssemblyDTO
	if err := httpx.DecodeJSON(r, &dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	result, err := h.service.CompleteAssembly(r.Context(), chi.URLParam(r, "id"), dto.ConfirmPending)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

type paymentDTO struct {
	Amount float64 `json:"amount" validate:"required,gt=0"`
	Method string  `json:"method" validate:"required"`
	Note   string  `json:"note"`
}

func (h *Handler) recordPayment(w http.ResponseWriter, r *http.Request) {
	var dto paymentDTO
	if err := httpx.DecodeJSON(r, &dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	job, err := h.service.RecordPayment(r.Context(), chi.URLParam(r, "id"), PaymentInput{
		Amount: dto.Amount,
		Method: dto.Method,
		Note:   dto.Note,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, job)
}

type closeDTO struct {
	Discount     float64 `json:"discount" validate:"gte=0"`
	DiscountNote string  `json:"discount_note"`
}

func (h *Handler) closeFinance(w http.ResponseWriter, r *http.Request) {
	var dto closeDTO
	if err := httpx.DecodeJSON(r, &dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	result, err := h.service.CloseFinance(r.Context(), chi.URLParam(r, "id"), CloseInput{
		Discount:     dto.Discount,
		DiscountNote: dto.DiscountNote,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

type inquiryDecisionDTO struct {
	Approved bool   `json:"approved"`
	Note     string `json:"note"`
}

func (h *Handler) inquiryDecision(w http.ResponseWriter, r *http.Request) {
	var dto inquiryDecisionDTO
	if err := httpx.DecodeJSON(r, &dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	result, err := h.service.InquiryDecision(r.Context(), chi.URLParam(r, "id"), dto.Approved, dto.Note)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

type visitDTO struct {
	AppointmentDate *time.Time `json:"appointment_date"`
}

func (h *Handler) openVisit(w http.ResponseWriter, r *http.Request) {
	var dto visitDTO
	if err := httpx.DecodeJSON(r, &dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	result, err := h.service.OpenVisit(r.Context(), chi.URLParam(r, "id"), VisitInput{
		AppointmentDate: dto.AppointmentDate,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

type completeVisitDTO struct {
	WorkNote  string  `json:"work_note"`
	Materials string  `json:"materials"`
	ExtraCost float64 `json:"extra_cost" validate:"gte=0"`
}

func (h *Handler) completeVisit(w http.ResponseWriter, r *http.Request) {
	var dto completeVisitDTO
	if err := httpx.DecodeJSON(r, &dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	job, err := h.service.CompleteVisit(r.Context(),
		chi.URLParam(r, "id"), chi.URLParam(r, "visitID"), CompleteVisitInput{
			WorkNote:  dto.WorkNote,
			Materials: dto.Materials,
			ExtraCost: dto.ExtraCost,
		})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, job)
}

type cancelDTO struct {
	ReasonCode string `json:"reason_code" validate:"required"`
	Note       string `json:"note"`
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	var dto cancelDTO
	if err := httpx.DecodeJSON(r, &dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	result, err := h.service.CancelJob(r.Context(), chi.URLParam(r, "id"), dto.ReasonCode, dto.Note)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	var (
		verr     *shared.ValidationError
		mismatch *shared.ReconciliationMismatch
		shortage *shared.InsufficientStock
		conflict *shared.ConcurrencyConflict
	)
	switch {
	case errors.As(err, &verr):
		httpx.JSON(w, http.StatusUnprocessableEntity, map[string]any{
			"title":   "Validation Failed",
			"reasons": verr.Reasons,
		})
	case errors.As(err, &mismatch):
		httpx.JSON(w, http.StatusUnprocessableEntity, map[string]any{
			"title":      "Reconciliation Mismatch",
			"difference": mismatch.Difference,
			"detail":     mismatch.Error(),
		})
	case errors.As(err, &shortage):
		httpx.JSON(w, http.StatusConflict, map[string]any{
			"title":           "Insufficient Stock",
			"lines":           shortage.Lines,
			"borrow_resolves": shortage.BorrowResolves,
		})
	case errors.As(err, &conflict):
		httpx.Problem(w, http.StatusConflict, "Concurrency Conflict", conflict.Error())
	case errors.Is(err, shared.ErrReadOnly):
		httpx.Problem(w, http.StatusConflict, "Read Only", "job is archived or terminal")
	case errors.Is(err, ErrJobNotFound), errors.Is(err, ErrVisitNotFound), errors.Is(err, ErrIssueNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrNoRejection):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		h.logger.Error("job request failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
