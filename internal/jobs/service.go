package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fenestra-erp/fenestra-erp/internal/assembly"
	"github.com/fenestra-erp/fenestra-erp/internal/catalog"
	"github.com/fenestra-erp/fenestra-erp/internal/documents"
	"github.com/fenestra-erp/fenestra-erp/internal/payments"
	"github.com/fenestra-erp/fenestra-erp/internal/shared"
	"github.com/fenestra-erp/fenestra-erp/internal/stock"
)

// RepositoryPort is the persistence surface the service depends on.
type RepositoryPort interface {
	Get(ctx context.Context, id string) (*Job, error)
	List(ctx context.Context, filter Filter) ([]*Job, error)
	Insert(ctx context.Context, job *Job) error
	Update(ctx context.Context, job *Job) error
}

// DocumentPort answers document tag presence checks. The engine never
// touches file bytes.
type DocumentPort interface {
	HasTag(ctx context.Context, jobID, tag string) (bool, error)
}

// StockPort is the ledger surface the stock and production stages use.
type StockPort interface {
	Reserve(ctx context.Context, req stock.BatchRequest) (stock.BatchResult, error)
	Consume(ctx context.Context, req stock.BatchRequest) (stock.BatchResult, error)
}

// ProductionGate answers whether a job's orders permit assembly.
type ProductionGate interface {
	ReadyForAssembly(ctx context.Context, jobID string) (bool, error)
}

// AssemblyPort creates tasks for scheduled jobs and reports progress.
type AssemblyPort interface {
	CreateTasksForJob(ctx context.Context, jobID string, roles []assembly.RoleSpec, scheduled *time.Time, knockdown bool) ([]*assembly.Task, error)
	ProgressFor(ctx context.Context, jobID string) (assembly.Progress, error)
}

// CatalogPort resolves reference data: role definitions and code labels.
type CatalogPort interface {
	Role(ctx context.Context, roleID string) (catalog.Role, error)
	Label(ctx context.Context, kind, code string) string
}

// ActivitySink receives activity entries; failures must not fail the caller.
type ActivitySink interface {
	Append(ctx context.Context, jobID, action, detail string, meta map[string]any)
}

// Service is the job state machine. Every job mutation passes through it;
// the four collaborators act as guards and side effects around transitions.
type Service struct {
	repo       RepositoryPort
	docs       DocumentPort
	stock      StockPort
	production ProductionGate
	assembly   AssemblyPort
	catalog    CatalogPort
	activity   ActivitySink
	logger     *slog.Logger
	now        func() time.Time
}

func NewService(
	repo RepositoryPort,
	docs DocumentPort,
	stockPort StockPort,
	productionGate ProductionGate,
	assemblyPort AssemblyPort,
	cat CatalogPort,
	sink ActivitySink,
	logger *slog.Logger,
) *Service {
	return &Service{
		repo:       repo,
		docs:       docs,
		stock:      stockPort,
		production: productionGate,
		assembly:   assemblyPort,
		catalog:    cat,
		activity:   sink,
		logger:     logger,
		now:        time.Now,
	}
}

// CreateInput opens a new job.
type CreateInput struct {
	CustomerID string
	Title      string
	StartType  StartType
	Roles      []Role
	FixedFee   float64 // service flow only
	Note       string
}

// Create opens a job in its flow's initial status. Archive imports are
// created directly in CLOSED with every section pre-completed.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Job, error) {
	var verr shared.ValidationError
	switch in.StartType {
	case StartMeasureSelf, StartMeasureCustomer, StartService, StartArchive:
	default:
		verr.Add("geçersiz başlangıç tipi: %s", in.StartType)
	}
	if in.StartType != StartService && len(in.Roles) == 0 {
		verr.Add("en az bir rol seçilmelidir")
	}
	seen := map[string]bool{}
	for _, role := range in.Roles {
		if role.ID == "" {
			verr.Add("rol kimliği zorunludur")
			continue
		}
		if seen[role.ID] {
			verr.Add("rol birden fazla kez seçilmiş: %s", role.Name)
		}
		seen[role.ID] = true
	}
	if verr.HasReasons() {
		return nil, &verr
	}

	now := s.now()
	job := &Job{
		ID:         shared.NewID("JOB"),
		CustomerID: in.CustomerID,
		Title:      in.Title,
		Status:     InitialStatus(in.StartType),
		StartType:  in.StartType,
		Roles:      in.Roles,
		Measure:    MeasureSection{Note: in.Note},
		Service:    ServiceSection{FixedFee: in.FixedFee},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if in.StartType == StartArchive {
		job.Measure.Confirmed = true
		job.Stock.Ready = true
		job.Assembly.CompletedAt = &now
		job.Finance.ClosedAt = &now
	}
	if err := s.repo.Insert(ctx, job); err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	s.log(ctx, job.ID, "job.created",
		fmt.Sprintf("iş açıldı (%s)", job.StartType),
		map[string]any{"status": job.Status, "roles": len(job.Roles)})
	return job, nil
}

// Get returns one job.
func (s *Service) Get(ctx context.Context, id string) (*Job, error) {
	return s.repo.Get(ctx, id)
}

// List returns matching jobs.
func (s *Service) List(ctx context.Context, filter Filter) ([]*Job, error) {
	return s.repo.List(ctx, filter)
}

// TransitionInput carries the target status and the payload its guards and
// side effects need.
type TransitionInput struct {
	Target Status

	AppointmentDate *time.Time // measure / service scheduling
	EstimatedDate   *time.Time // STOCK_LATER
	StockLines      []StockLine
	Note            string

	RejectionCategory string // NOT_AGREED
	RejectionReason   string
	FollowUpDate      *time.Time

	CancelReason string // CANCELLED
	CancelNote   string

	// ConfirmBorrow acknowledges consuming reserved (not merely available)
	// stock. ConfirmPendingAssembly acknowledges entering finance with
	// unfinished assembly tasks.
	ConfirmBorrow          bool
	ConfirmPendingAssembly bool

	// NoAutoAdvance keeps the user-visible stage pointer where it was.
	NoAutoAdvance bool
}

// TransitionResult reports the accepted transition. NextStatus is the
// flow's default next step, returned explicitly instead of being inferred
// by the caller.
type TransitionResult struct {
	Job        *Job     `json:"job"`
	NextStatus Status   `json:"next_status,omitempty"`
	Stage      Stage    `json:"stage"`
	Warnings   []string `json:"warnings,omitempty"`
}

// Transition moves a job to the target status. Guards run before any
// mutation and accumulate every unmet precondition; side effects and the
// activity log entry apply only on acceptance.
func (s *Service) Transition(ctx context.Context, jobID string, in TransitionInput) (*TransitionResult, error) {
	job, err := s.repo.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.ReadOnly() {
		return nil, shared.ErrReadOnly
	}
	flow := FlowFor(job.StartType)
	if !CanTransition(flow, job.Status, in.Target) {
		return nil, &shared.ValidationError{Reasons: []string{
			fmt.Sprintf("geçersiz durum geçişi: %s → %s", job.Status, in.Target),
		}}
	}

	var warnings []string
	if err := s.guard(ctx, job, flow, in, &warnings); err != nil {
		return nil, err
	}

	prev := job.Status
	now := s.now()
	if err := s.applyEffects(ctx, job, in, now); err != nil {
		return nil, err
	}
	job.Status = in.Target
	job.UpdatedAt = now
	if err := s.repo.Update(ctx, job); err != nil {
		return nil, fmt.Errorf("update job: %w", err)
	}

	s.log(ctx, job.ID, "job.transition",
		fmt.Sprintf("%s → %s", prev, in.Target),
		map[string]any{"from": prev, "to": in.Target, "stage": StageOf(flow, in.Target)})

	result := &TransitionResult{
		Job:        job,
		NextStatus: DefaultNext(flow, in.Target),
		Warnings:   warnings,
	}
	if in.NoAutoAdvance {
		result.Stage = StageOf(flow, prev)
	} else {
		result.Stage = StageOf(flow, in.Target)
	}
	return result, nil
}

// guard checks the target's preconditions. Validation failures accumulate;
// ledger and reconciliation failures are returned typed, never downgraded.
func (s *Service) guard(ctx context.Context, job *Job, flow Flow, in TransitionInput, warnings *[]string) error {
	var verr shared.ValidationError
	switch in.Target {
	case StatusMeasureScheduled, StatusServiceScheduled:
		if in.AppointmentDate == nil && job.Measure.AppointmentDate == nil {
			verr.Add("randevu tarihi zorunludur")
		}

	case StatusCustomerFilesUploaded:
		for _, role := range job.Roles {
			ok, err := s.docs.HasTag(ctx, job.ID, documents.MeasureTag(role.Key))
			if err != nil {
				return fmt.Errorf("check measure tag: %w", err)
			}
			if !ok {
				verr.Add("%s için ölçü dosyası eksik", role.Name)
			}
		}

	case StatusPricing:
		if job.StartType == StartMeasureCustomer {
			for _, role := range job.Roles {
				ok, err := s.docs.HasTag(ctx, job.ID, documents.MeasureTag(role.Key))
				if err != nil {
					return fmt.Errorf("check measure tag: %w", err)
				}
				if !ok {
					verr.Add("%s için ölçü dosyası eksik", role.Name)
				}
				ok, err = s.docs.HasTag(ctx, job.ID, documents.DrawingTag(role.Key))
				if err != nil {
					return fmt.Errorf("check drawing tag: %w", err)
				}
				if !ok {
					verr.Add("%s için teknik çizim eksik", role.Name)
				}
			}
		} else {
			if !job.Measure.Confirmed {
				verr.Add("ölçü randevusu onaylanmadı")
			}
			if n := job.PendingMeasureIssues(); n > 0 {
				verr.Add("%d adet çözülmemiş ölçü sorunu var", n)
			}
		}

	case StatusPriceGiven:
		if job.Offer.Total <= 0 {
			verr.Add("teklif tutarı girilmedi")
		}
		for _, role := range job.Roles {
			if job.Offer.RolePrices[role.ID] <= 0 {
				verr.Add("%s için fiyat girilmedi", role.Name)
			}
		}

	case StatusAgreementInProgress, StatusAgreementDone:
		if mismatch := payments.MismatchError(job.Approval.PaymentPlan, job.Offer.Total); mismatch != nil {
			return mismatch
		}
		advisory := payments.Maturity(job.Approval.PaymentPlan, s.now())
		if advisory.Flagged {
			*warnings = append(*warnings,
				fmt.Sprintf("ortalama çek vadesi %.0f gün (%d günü aşıyor)",
					advisory.AverageDays, payments.MaturityAdvisoryDays))
		}

	case StatusNotAgreed:
		if in.RejectionCategory == "" {
			verr.Add("ret kategorisi zorunludur")
		}
		if in.RejectionReason == "" {
			verr.Add("ret gerekçesi zorunludur")
		}

	case StatusStockLater:
		if in.EstimatedDate == nil {
			verr.Add("ertelenen stok için tahmini tarih zorunludur")
		}

	case StatusAssemblyReady, StatusDeliveryReadyKnockdown:
		ready, err := s.production.ReadyForAssembly(ctx, job.ID)
		if err != nil {
			return fmt.Errorf("production readiness: %w", err)
		}
		if !ready {
			verr.Add("üretim siparişleri tamamlanmadı")
		}

	case StatusAssemblyScheduled:
		if in.AppointmentDate == nil && job.Assembly.ScheduledDate == nil {
			verr.Add("montaj tarihi zorunludur")
		}

	case StatusFinancePending:
		// knockdown deliveries skip the task gate entirely
		if !job.Assembly.Knockdown {
			progress, err := s.assembly.ProgressFor(ctx, job.ID)
			if err != nil {
				return fmt.Errorf("assembly progress: %w", err)
			}
			if !progress.AllCompleted {
				if !in.ConfirmPendingAssembly {
					verr.Add("tamamlanmamış montaj görevleri var (onay gerekli)")
				} else {
					*warnings = append(*warnings,
						fmt.Sprintf("%d montaj görevinden %d tamamlandı",
							progress.TotalTasks, progress.CompletedTasks))
				}
			}
		}

	case StatusClosed:
		if job.Finance.Discount > 0 && job.Finance.DiscountNote == "" {
			verr.Add("iskonto için açıklama zorunludur")
		}
		if verr.HasReasons() {
			return &verr
		}
		if mismatch := payments.CloseCheck(job.Offer.Total, job.Finance.Collected(), job.Finance.Discount); mismatch != nil {
			return mismatch
		}

	case StatusServicePaymentPending:
		if len(job.Service.Visits) == 0 {
			verr.Add("en az bir servis ziyareti gereklidir")
		}
		if idx := job.Service.OpenVisitIndex(); idx >= 0 {
			verr.Add("tamamlanmamış servis ziyareti var")
		}

	case StatusServiceClosed:
		if job.Finance.Discount > 0 && job.Finance.DiscountNote == "" {
			verr.Add("iskonto için açıklama zorunludur")
		}
		if verr.HasReasons() {
			return &verr
		}
		if mismatch := payments.CloseCheck(job.Service.TotalCost(), job.Finance.Collected(), job.Finance.Discount); mismatch != nil {
			return mismatch
		}

	case StatusCancelled:
		if in.CancelReason == "" {
			verr.Add("iptal nedeni zorunludur")
		}
	}
	if verr.HasReasons() {
		return &verr
	}
	return s.guardStock(ctx, job, flow, in)
}

// guardStock covers the ledger-touching targets. The reservation or
// consumption itself is the side effect; here only the two-phase preview
// runs so that nothing mutates when confirmation is still missing.
func (s *Service) guardStock(ctx context.Context, job *Job, _ Flow, in TransitionInput) error {
	switch in.Target {
	case StatusProductionReady, StatusStockLater, StatusInProduction:
	default:
		return nil
	}
	lines := in.StockLines
	if lines == nil {
		lines = job.Stock.Lines
	}
	if len(lines) == 0 {
		return nil
	}
	req := stock.BatchRequest{JobID: job.ID, Confirmed: in.ConfirmBorrow}
	for _, line := range lines {
		req.Lines = append(req.Lines, stock.Line{ItemID: line.ItemID, Qty: line.Qty})
	}
	var (
		result stock.BatchResult
		err    error
	)
	if in.Target == StatusInProduction {
		result, err = s.stock.Consume(ctx, req)
	} else {
		result, err = s.stock.Reserve(ctx, req)
	}
	if err != nil {
		return err
	}
	if result.RequiresConfirmation && !result.Applied {
		if shortage := stock.Shortages(result); shortage != nil {
			return shortage
		}
		return &shared.ValidationError{Reasons: []string{"stok onayı gerekli"}}
	}
	return nil
}

// applyEffects applies the target's section mutations. Guards already
// passed; errors here are infrastructure failures only.
func (s *Service) applyEffects(ctx context.Context, job *Job, in TransitionInput, now time.Time) error {
	switch in.Target {
	case StatusMeasureScheduled:
		if in.AppointmentDate != nil {
			job.Measure.AppointmentDate = in.AppointmentDate
		}
		if in.Note != "" {
			job.Measure.Note = in.Note
		}

	case StatusMeasureDone:
		job.Measure.Confirmed = true

	case StatusNotAgreed:
		job.Offer.Rejection = &Rejection{
			Category:     in.RejectionCategory,
			Reason:       in.RejectionReason,
			FollowUpDate: in.FollowUpDate,
			Snapshot: OfferSnapshot{
				RolePrices: clonePrices(job.Offer.RolePrices),
				Total:      job.Offer.Total,
			},
			RejectedAt: now,
		}

	case StatusAgreementDone:
		job.Approval.ApprovedAt = &now

	case StatusStockLater:
		if in.StockLines != nil {
			job.Stock.Lines = in.StockLines
		}
		job.Stock.EstimatedDate = in.EstimatedDate

	case StatusProductionReady:
		if in.StockLines != nil {
			job.Stock.Lines = in.StockLines
		}
		job.Stock.Ready = true
		job.Stock.EstimatedDate = nil

	case StatusDeliveryReadyKnockdown:
		job.Assembly.Knockdown = true

	case StatusAssemblyScheduled:
		if in.AppointmentDate != nil {
			job.Assembly.ScheduledDate = in.AppointmentDate
		}
		if in.Note != "" {
			job.Assembly.Note = in.Note
		}
		if err := s.createAssemblyTasks(ctx, job); err != nil {
			return err
		}

	case StatusFinancePending:
		job.Assembly.CompletedAt = &now

	case StatusClosed, StatusServiceClosed:
		job.Finance.ClosedAt = &now

	case StatusServiceScheduled:
		if len(job.Service.Visits) == 0 {
			job.Service.Visits = append(job.Service.Visits, ServiceVisit{
				ID:              shared.NewID("VIS"),
				AppointmentDate: in.AppointmentDate,
				Status:          VisitScheduled,
			})
		} else if in.AppointmentDate != nil {
			job.Service.Visits[0].AppointmentDate = in.AppointmentDate
		}

	case StatusServiceInProgress:
		if idx := job.Service.OpenVisitIndex(); idx >= 0 {
			job.Service.Visits[idx].Status = VisitInProgress
		}

	case StatusServiceContinuing:
		// a return visit is needed: append a fresh record instead of
		// mutating linearly
		job.Service.Visits = append(job.Service.Visits, ServiceVisit{
			ID:              shared.NewID("VIS"),
			AppointmentDate: in.AppointmentDate,
			Status:          VisitScheduled,
		})

	case StatusInquiryOnHold:
		job.Inquiry.Note = in.Note

	case StatusInquiryApproved:
		job.Inquiry.Decision = "approved"
		job.Inquiry.Note = in.Note
		job.Inquiry.DecidedAt = &now

	case StatusInquiryRejected:
		job.Inquiry.Decision = "rejected"
		job.Inquiry.Note = in.Note
		job.Inquiry.DecidedAt = &now

	case StatusCancelled:
		job.Cancellation = &Cancellation{
			ReasonCode:  in.CancelReason,
			ReasonLabel: s.catalog.Label(ctx, catalog.CodeKindCancelReason, in.CancelReason),
			Note:        in.CancelNote,
			CancelledAt: now,
		}
	}
	return nil
}

// createAssemblyTasks materializes the job's task list from the catalog's
// per-role stage definitions.
func (s *Service) createAssemblyTasks(ctx context.Context, job *Job) error {
	specs := make([]assembly.RoleSpec, 0, len(job.Roles))
	for _, role := range job.Roles {
		spec := assembly.RoleSpec{RoleID: role.ID, RoleName: role.Name}
		if catRole, err := s.catalog.Role(ctx, role.ID); err == nil {
			for _, stage := range catRole.AssemblyStages {
				spec.Stages = append(spec.Stages, stage.Name)
			}
		}
		specs = append(specs, spec)
	}
	_, err := s.assembly.CreateTasksForJob(ctx, job.ID, specs, job.Assembly.ScheduledDate, job.Assembly.Knockdown)
	if err != nil {
		return fmt.Errorf("create assembly tasks: %w", err)
	}
	return nil
}

func clonePrices(prices map[string]float64) map[string]float64 {
	clone := make(map[string]float64, len(prices))
	for k, v := range prices {
		clone[k] = v
	}
	return clone
}

func (s *Service) log(ctx context.Context, jobID, action, detail string, meta map[string]any) {
	if s.activity == nil {
		return
	}
	s.activity.Append(ctx, jobID, action, detail, meta)
}
