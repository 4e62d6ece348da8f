package assembly

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

// Handler wires HTTP endpoints for assembly tasks.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers assembly routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/jobs/{jobID}/tasks", h.listTasks)
	r.Get("/jobs/{jobID}/progress", h.progress)
	r.Post("/jobs/{jobID}/complete-all", h.completeAll)
	r.Get("/tasks/{id}", h.getTask)
	r.Patch("/tasks/{id}", h.updateTask)
	r.Post("/tasks/{id}/start", h.startTask)
	r.Post("/tasks/{id}/complete", h.completeTask)
	r.Post("/tasks/{id}/reschedule", h.reschedule)
	r.Post("/tasks/{id}/issues", h.reportIssue)
	r.Post("/tasks/{id}/issues/{issueID}/resolve", h.resolveIssue)
}

func (h *Handler) listTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.service.ListByJob(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, tasks)
}

func (h *Handler) progress(w http.ResponseWriter, r *http.Request) {
	progress, err := h.service.ProgressFor(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, progress)
}

func (h *Handler) getTask(w http.ResponseWriter, r *http.Request) {
	task, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, task)
}

type startTaskDTO struct {
	PhotoTags  []string `json:"photo_tags" validate:"required,min=1"`
	AssigneeID string   `json:"assignee_id"`
}

func (h *Handler) startTask(w http.ResponseWriter, r *http.Request) {
	var dto startTaskDTO
	if err := httpx.DecodeJSON(r, &dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	task, err := h.service.StartTask(r.Context(), chi.URLParam(r, "id"), StartInput{
		PhotoTags:  dto.PhotoTags,
		AssigneeID: dto.AssigneeID,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, task)
}

type completeTaskDTO struct {
	PhotoTags []string `json:"photo_tags" validate:"required,min=1"`
	Signature string   `json:"signature"`
	Note      string   `json:"note"`
}

func (h *Handler) completeTask(w http.ResponseWriter, r *http.Request) {
	var dto completeTaskDTO
	if err := httpx.DecodeJSON(r, &dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	task, err := h.service.CompleteTask(r.Context(), chi.URLParam(r, "id"), CompleteInput{
		PhotoTags: dto.PhotoTags,
		Signature: dto.Signature,
		Note:      dto.Note,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, task)
}

func (h *Handler) completeAll(w http.ResponseWriter, r *http.Request) {
	var dto completeTaskDTO
	if err := httpx.DecodeJSON(r, &dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	tasks, err := h.service.CompleteAll(r.Context(), chi.URLParam(r, "jobID"), CompleteAllInput{
		PhotoTags: dto.PhotoTags,
		Signature: dto.Signature,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, tasks)
}

type updateTaskDTO struct {
	AssigneeID *string `json:"assignee_id"`
	Notes      *string `json:"notes"`
}

func (h *Handler) updateTask(w http.ResponseWriter, r *http.Request) {
	var dto updateTaskDTO
	if err := httpx.DecodeJSON(r, &dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	task, err := h.service.UpdateTask(r.Context(), chi.URLParam(r, "id"), UpdateInput{
		AssigneeID: dto.AssigneeID,
		Notes:      dto.Notes,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, task)
}

type rescheduleDTO struct {
	NewDate             time.Time `json:"new_date" validate:"required"`
	Reason              string    `json:"reason"`
	ResponsiblePersonID string    `json:"responsible_person_id"`
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
	task, err := h.service.Reschedule(r.Context(), chi.URLParam(r, "id"), RescheduleInput{
		NewDate:             dto.NewDate,
		Reason:              dto.Reason,
		ResponsiblePersonID: dto.ResponsiblePersonID,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, task)
}

type issueDTO struct {
	Type        string `json:"type" validate:"required"`
	FaultSource string `json:"fault_source"`
	Description string `json:"description"`
}

func (h *Handler) reportIssue(w http.ResponseWriter, r *http.Request) {
	var dto issueDTO
	if err := httpx.DecodeJSON(r, &dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	task, err := h.service.ReportIssue(r.Context(), chi.URLParam(r, "id"), IssueInput{
		Type:        dto.Type,
		FaultSource: dto.FaultSource,
		Description: dto.Description,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, task)
}

type resolveIssueDTO struct {
	Resolution string `json:"resolution" validate:"required"`
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
	task, err := h.service.ResolveIssue(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "issueID"), dto.Resolution)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, task)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	var verr *shared.ValidationError
	switch {
	case errors.As(err, &verr):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", verr.Error())
	case errors.Is(err, ErrTaskNotFound), errors.Is(err, ErrIssueNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrTaskState), errors.Is(err, ErrTasksExist),
		errors.Is(err, ErrStageOrder), errors.Is(err, ErrOpenIssues):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrPhotoRequired), errors.Is(err, ErrSignatureRequired),
		errors.Is(err, ErrDelayReasonRequired):
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
	default:
		h.logger.Error("assembly request failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
