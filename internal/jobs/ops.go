package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/fenestra-erp/fenestra-erp/internal/payments"
	"github.com/fenestra-erp/fenestra-erp/internal/production"
	"github.com/fenestra-erp/fenestra-erp/internal/shared"
)

// mutate loads a job, applies fn, persists and returns it. ReadOnly jobs
// refuse every mutation.
func (s *Service) mutate(ctx context.Context, jobID string, fn func(job *Job) error) (*Job, error) {
	job, err := s.repo.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.ReadOnly() {
		return nil, shared.ErrReadOnly
	}
	if err := fn(job); err != nil {
		return nil, err
	}
	job.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, job); err != nil {
		return nil, fmt.Errorf("update job: %w", err)
	}
	return job, nil
}

// OfferInput updates the per-role prices. Each call appends a negotiation
// entry; prior entries are never rewritten.
type OfferInput struct {
	RolePrices    map[string]float64
	DiscountTotal float64
}

func (s *Service) UpdateOffer(ctx context.Context, jobID string, in OfferInput) (*Job, error) {
	job, err := s.mutate(ctx, jobID, func(job *Job) error {
		var verr shared.ValidationError
		if len(in.RolePrices) == 0 {
			verr.Add("en az bir rol fiyatı girilmelidir")
		}
		var original float64
		for roleID, price := range in.RolePrices {
			if job.RoleByID(roleID) == nil {
				verr.Add("iş kapsamında olmayan rol: %s", roleID)
			}
			if price < 0 {
				verr.Add("fiyat negatif olamaz")
			}
			original += price
		}
		if in.DiscountTotal < 0 || in.DiscountTotal > original {
			verr.Add("iskonto tutarı geçersiz")
		}
		if verr.HasReasons() {
			return &verr
		}

		final := original - in.DiscountTotal
		job.Offer.RolePrices = clonePrices(in.RolePrices)
		job.Offer.Total = final
		job.Offer.NegotiationHistory = append(job.Offer.NegotiationHistory, NegotiationEntry{
			At:            s.now(),
			OriginalTotal: original,
			DiscountTotal: in.DiscountTotal,
			FinalTotal:    final,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log(ctx, jobID, "job.offer_updated",
		fmt.Sprintf("teklif güncellendi: %s", shared.FormatAmount(job.Offer.Total)),
		map[string]any{"total": job.Offer.Total})
	return job, nil
}

// RejectInput declines the current offer.
type RejectInput struct {
	Category     string
	Reason       string
	FollowUpDate *time.Time
}

// RejectOffer moves a PRICE_GIVEN job to NOT_AGREED, snapshotting the offer.
func (s *Service) RejectOffer(ctx context.Context, jobID string, in RejectInput) (*TransitionResult, error) {
	return s.Transition(ctx, jobID, TransitionInput{
		Target:            StatusNotAgreed,
		RejectionCategory: in.Category,
		RejectionReason:   in.Reason,
		FollowUpDate:      in.FollowUpDate,
	})
}

// Reactivate returns a rejected job to PRICE_GIVEN, carrying the snapshot's
// role prices forward untouched.
func (s *Service) Reactivate(ctx context.Context, jobID string) (*TransitionResult, error) {
	job, err := s.repo.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Offer.Rejection == nil {
		return nil, ErrNoRejection
	}
	snapshot := job.Offer.Rejection.Snapshot
	result, err := s.Transition(ctx, jobID, TransitionInput{Target: StatusPriceGiven})
	if err != nil {
		return nil, err
	}
	job, err = s.mutate(ctx, jobID, func(job *Job) error {
		job.Offer.RolePrices = clonePrices(snapshot.RolePrices)
		job.Offer.Total = snapshot.Total
		job.Offer.Rejection = nil
		return nil
	})
	if err != nil {
		return nil, err
	}
	result.Job = job
	s.log(ctx, jobID, "job.reactivated",
		fmt.Sprintf("teklif yeniden aktif: %s", shared.FormatAmount(job.Offer.Total)), nil)
	return result, nil
}

// UpdatePaymentPlan stores the declared plan without validating it against
// the offer; validation happens on StartApproval.
func (s *Service) UpdatePaymentPlan(ctx context.Context, jobID string, plan payments.Plan) (*Job, error) {
	job, err := s.mutate(ctx, jobID, func(job *Job) error {
		job.Approval.PaymentPlan = plan
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log(ctx, jobID, "job.payment_plan_updated",
		fmt.Sprintf("ödeme planı güncellendi: %s", shared.FormatAmount(payments.PlanTotal(plan))), nil)
	return job, nil
}

// StartApproval validates the plan against the offer and enters the
// agreement stage.
func (s *Service) StartApproval(ctx context.Context, jobID string, plan payments.Plan) (*TransitionResult, error) {
	if _, err := s.UpdatePaymentPlan(ctx, jobID, plan); err != nil {
		return nil, err
	}
	return s.Transition(ctx, jobID, TransitionInput{Target: StatusAgreementInProgress})
}

// MeasureIssueInput reports a measurement problem.
type MeasureIssueInput struct {
	Type        string
	FaultSource string
	Description string
}

func (s *Service) ReportMeasureIssue(ctx context.Context, jobID string, in MeasureIssueInput) (*Job, error) {
	job, err := s.mutate(ctx, jobID, func(job *Job) error {
		if in.Type == "" {
			return &shared.ValidationError{Reasons: []string{"sorun tipi zorunludur"}}
		}
		job.Measure.Issues = append(job.Measure.Issues, MeasureIssue{
			ID:          shared.NewID("MIS"),
			Type:        in.Type,
			FaultSource: in.FaultSource,
			Description: in.Description,
			Status:      MeasureIssuePending,
			CreatedAt:   s.now(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log(ctx, jobID, "job.measure_issue_reported", "ölçü sorunu bildirildi",
		map[string]any{"type": in.Type})
	return job, nil
}

func (s *Service) ResolveMeasureIssue(ctx context.Context, jobID, issueID, resolution string) (*Job, error) {
	job, err := s.mutate(ctx, jobID, func(job *Job) error {
		for i := range job.Measure.Issues {
			if job.Measure.Issues[i].ID != issueID {
				continue
			}
			if job.Measure.Issues[i].Status == MeasureIssueResolved {
				return &shared.ValidationError{Reasons: []string{"sorun zaten çözülmüş"}}
			}
			now := s.now()
			job.Measure.Issues[i].Status = MeasureIssueResolved
			job.Measure.Issues[i].Resolution = resolution
			job.Measure.Issues[i].ResolvedAt = &now
			return nil
		}
		return ErrIssueNotFound
	})
	if err != nil {
		return nil, err
	}
	s.log(ctx, jobID, "job.measure_issue_resolved", "ölçü sorunu çözüldü",
		map[string]any{"issue_id": issueID})
	return job, nil
}

// SetEstimatedAssembly records the externally-communicated delivery promise.
// The previous promise, if any, moves into the history.
func (s *Service) SetEstimatedAssembly(ctx context.Context, jobID string, date time.Time, note string) (*Job, error) {
	job, err := s.mutate(ctx, jobID, func(job *Job) error {
		if job.EstimatedAssembly.Date != nil {
			job.EstimatedAssembly.History = append(job.EstimatedAssembly.History, AssemblyEstimate{
				Date:  *job.EstimatedAssembly.Date,
				Note:  job.EstimatedAssembly.Note,
				SetAt: s.now(),
			})
		}
		job.EstimatedAssembly.Date = &date
		job.EstimatedAssembly.Note = note
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log(ctx, jobID, "job.estimated_assembly_set",
		fmt.Sprintf("tahmini montaj tarihi: %s", date.Format("02.01.2006")), nil)
	return job, nil
}

// ScheduleAssembly sets the internal date and enters ASSEMBLY_SCHEDULED,
// creating the task list (skipped for knockdown deliveries).
func (s *Service) ScheduleAssembly(ctx context.Context, jobID string, date time.Time, note string) (*TransitionResult, error) {
	return s.Transition(ctx, jobID, TransitionInput{
		Target:          StatusAssemblyScheduled,
		AppointmentDate: &date,
		Note:            note,
	})
}

// CompleteAssembly moves the job into finance. Pending tasks require the
// caller's explicit confirmation; the gate never hard-blocks.
func (s *Service) CompleteAssembly(ctx context.Context, jobID string, confirmPending bool) (*TransitionResult, error) {
	return s.Transition(ctx, jobID, TransitionInput{
		Target:                 StatusFinancePending,
		ConfirmPendingAssembly: confirmPending,
	})
}

// PaymentInput records one collected amount.
type PaymentInput struct {
	Amount float64
	Method string
	Note   string
}

func (s *Service) RecordPayment(ctx context.Context, jobID string, in PaymentInput) (*Job, error) {
	job, err := s.mutate(ctx, jobID, func(job *Job) error {
		if in.Amount <= 0 {
			return &shared.ValidationError{Reasons: []string{"tahsilat tutarı pozitif olmalıdır"}}
		}
		job.Finance.Collections = append(job.Finance.Collections, CollectionEntry{
			Amount: in.Amount,
			Method: in.Method,
			Note:   in.Note,
			At:     s.now(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log(ctx, jobID, "job.payment_recorded",
		fmt.Sprintf("tahsilat: %s", shared.FormatAmount(in.Amount)),
		map[string]any{"method": in.Method})
	return job, nil
}

// CloseInput finishes the job financially.
type CloseInput struct {
	Discount     float64
	DiscountNote string
}

// CloseFinance applies the closing discount and transitions to the flow's
// terminal status. The balance must land on exactly zero.
func (s *Service) CloseFinance(ctx context.Context, jobID string, in CloseInput) (*TransitionResult, error) {
	job, err := s.mutate(ctx, jobID, func(job *Job) error {
		if in.Discount < 0 {
			return &shared.ValidationError{Reasons: []string{"iskonto negatif olamaz"}}
		}
		job.Finance.Discount = in.Discount
		job.Finance.DiscountNote = in.DiscountNote
		return nil
	})
	if err != nil {
		return nil, err
	}
	target := StatusClosed
	if FlowFor(job.StartType) == FlowService {
		target = StatusServiceClosed
	}
	return s.Transition(ctx, jobID, TransitionInput{Target: target})
}

// InquiryDecision settles a price inquiry.
func (s *Service) InquiryDecision(ctx context.Context, jobID string, approved bool, note string) (*TransitionResult, error) {
	target := StatusInquiryRejected
	if approved {
		target = StatusInquiryApproved
	}
	return s.Transition(ctx, jobID, TransitionInput{Target: target, Note: note})
}

// VisitInput opens a return visit.
type VisitInput struct {
	AppointmentDate *time.Time
}

// OpenVisit appends a return visit via the SERVICE_CONTINUING loop-back and
// immediately resumes SERVICE_IN_PROGRESS.
func (s *Service) OpenVisit(ctx context.Context, jobID string, in VisitInput) (*TransitionResult, error) {
	if _, err := s.Transition(ctx, jobID, TransitionInput{
		Target:          StatusServiceContinuing,
		AppointmentDate: in.AppointmentDate,
	}); err != nil {
		return nil, err
	}
	return s.Transition(ctx, jobID, TransitionInput{Target: StatusServiceInProgress})
}

// CompleteVisitInput finishes one service visit.
type CompleteVisitInput struct {
	WorkNote  string
	Materials string
	ExtraCost float64
}

func (s *Service) CompleteVisit(ctx context.Context, jobID, visitID string, in CompleteVisitInput) (*Job, error) {
	job, err := s.mutate(ctx, jobID, func(job *Job) error {
		if in.ExtraCost < 0 {
			return &shared.ValidationError{Reasons: []string{"ek maliyet negatif olamaz"}}
		}
		for i := range job.Service.Visits {
			if job.Service.Visits[i].ID != visitID {
				continue
			}
			if job.Service.Visits[i].Status == VisitCompleted {
				return &shared.ValidationError{Reasons: []string{"ziyaret zaten tamamlanmış"}}
			}
			now := s.now()
			job.Service.Visits[i].Status = VisitCompleted
			job.Service.Visits[i].WorkNote = in.WorkNote
			job.Service.Visits[i].Materials = in.Materials
			job.Service.Visits[i].ExtraCost = in.ExtraCost
			job.Service.Visits[i].CompletedAt = &now
			return nil
		}
		return ErrVisitNotFound
	})
	if err != nil {
		return nil, err
	}
	s.log(ctx, jobID, "job.visit_completed",
		fmt.Sprintf("servis ziyareti tamamlandı (%s)", shared.FormatAmount(in.ExtraCost)),
		map[string]any{"visit_id": visitID})
	return job, nil
}

// CancelJob terminates the job with a catalog-validated reason; unknown
// codes fall back to the generic label rather than failing.
func (s *Service) CancelJob(ctx context.Context, jobID, reasonCode, note string) (*TransitionResult, error) {
	return s.Transition(ctx, jobID, TransitionInput{
		Target:       StatusCancelled,
		CancelReason: reasonCode,
		CancelNote:   note,
	})
}

// RequiredRoles exposes the job's role requirements to the production
// aggregator's readiness check.
func (s *Service) RequiredRoles(ctx context.Context, jobID string) ([]production.RequiredRole, error) {
	job, err := s.repo.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	required := make([]production.RequiredRole, 0, len(job.Roles))
	for _, role := range job.Roles {
		required = append(required, production.RequiredRole{
			ID:            role.ID,
			Name:          role.Name,
			RequiresGlass: role.RequiresGlass,
		})
	}
	return required, nil
}
