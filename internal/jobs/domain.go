package jobs

import (
	"errors"
	"time"

	"github.com/fenestra-erp/fenestra-erp/internal/payments"
)

// StartType selects which flow a job lives in.
type StartType string

const (
	// StartMeasureSelf is the standard flow: the company measures on site.
	StartMeasureSelf StartType = "MEASURE_SELF"
	// StartMeasureCustomer is the inquiry flow: the customer supplies
	// measurements and only wants a price.
	StartMeasureCustomer StartType = "MEASURE_CUSTOMER"
	// StartService is the service-call flow.
	StartService StartType = "SERVICE"
	// StartArchive imports a historical job directly in CLOSED.
	StartArchive StartType = "ARCHIVE"
)

// Status is the job's single lifecycle state.
type Status string

const (
	// standard flow
	StatusMeasurePending          Status = "MEASURE_PENDING"
	StatusMeasureScheduled        Status = "MEASURE_SCHEDULED"
	StatusMeasureDone             Status = "MEASURE_DONE"
	StatusPricing                 Status = "PRICING"
	StatusPriceGiven              Status = "PRICE_GIVEN"
	StatusAgreementInProgress     Status = "AGREEMENT_IN_PROGRESS"
	StatusNotAgreed               Status = "NOT_AGREED"
	StatusAgreementDone           Status = "AGREEMENT_DONE"
	StatusStockLater              Status = "STOCK_LATER"
	StatusProductionReady         Status = "PRODUCTION_READY"
	StatusInProduction            Status = "IN_PRODUCTION"
	StatusAssemblyReady           Status = "ASSEMBLY_READY"
	StatusDeliveryReadyKnockdown  Status = "DELIVERY_READY_KNOCKDOWN"
	StatusAssemblyScheduled       Status = "ASSEMBLY_SCHEDULED"
	StatusFinancePending          Status = "FINANCE_PENDING"
	StatusClosed                  Status = "CLOSED"

	// service flow
	StatusServiceSchedulePending Status = "SERVICE_SCHEDULE_PENDING"
	StatusServiceScheduled       Status = "SERVICE_SCHEDULED"
	StatusServiceInProgress      Status = "SERVICE_IN_PROGRESS"
	StatusServiceContinuing      Status = "SERVICE_CONTINUING"
	StatusServicePaymentPending  Status = "SERVICE_PAYMENT_PENDING"
	StatusServiceClosed          Status = "SERVICE_CLOSED"

	// inquiry flow
	StatusCustomerFilesPending  Status = "CUSTOMER_FILES_PENDING"
	StatusCustomerFilesUploaded Status = "CUSTOMER_FILES_UPLOADED"
	StatusInquiryOnHold         Status = "INQUIRY_ON_HOLD"
	StatusInquiryApproved       Status = "INQUIRY_APPROVED"
	StatusInquiryRejected       Status = "INQUIRY_REJECTED"

	// any flow
	StatusCancelled Status = "CANCELLED"
)

// Role is the job's snapshot of a catalog work-category.
type Role struct {
	ID            string `json:"id"`
	Key           string `json:"key"`
	Name          string `json:"name"`
	RequiresGlass bool   `json:"requires_glass"`
}

// MeasureIssueStatus tracks a measurement problem report.
type MeasureIssueStatus string

const (
	MeasureIssuePending  MeasureIssueStatus = "pending"
	MeasureIssueResolved MeasureIssueStatus = "resolved"
)

// MeasureIssue is a problem reported against the measurement.
type MeasureIssue struct {
	ID          string             `json:"id"`
	Type        string             `json:"type"`
	FaultSource string             `json:"fault_source,omitempty"`
	Description string             `json:"description,omitempty"`
	Status      MeasureIssueStatus `json:"status"`
	Resolution  string             `json:"resolution,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	ResolvedAt  *time.Time         `json:"resolved_at,omitempty"`
}

// MeasureSection holds the appointment and its problem reports.
type MeasureSection struct {
	AppointmentDate *time.Time     `json:"appointment_date,omitempty"`
	Confirmed       bool           `json:"confirmed"`
	Note            string         `json:"note,omitempty"`
	Issues          []MeasureIssue `json:"issues,omitempty"`
}

// NegotiationEntry is one step of the price negotiation, append-only.
type NegotiationEntry struct {
	At            time.Time `json:"at"`
	OriginalTotal float64   `json:"original_total"`
	DiscountTotal float64   `json:"discount_total"`
	FinalTotal    float64   `json:"final_total"`
}

// OfferSnapshot freezes the offer at rejection time.
type OfferSnapshot struct {
	RolePrices map[string]float64 `json:"role_prices"`
	Total      float64            `json:"total"`
}

// Rejection records why an offer was declined.
type Rejection struct {
	Category     string        `json:"category"`
	Reason       string        `json:"reason"`
	FollowUpDate *time.Time    `json:"follow_up_date,omitempty"`
	Snapshot     OfferSnapshot `json:"snapshot"`
	RejectedAt   time.Time     `json:"rejected_at"`
}

// OfferSection holds per-role prices and the negotiation trail.
type OfferSection struct {
	RolePrices         map[string]float64 `json:"role_prices,omitempty"`
	Total              float64            `json:"total"`
	NegotiationHistory []NegotiationEntry `json:"negotiation_history,omitempty"`
	Rejection          *Rejection         `json:"rejection,omitempty"`
}

// ApprovalSection carries the agreed payment plan.
type ApprovalSection struct {
	PaymentPlan payments.Plan `json:"payment_plan"`
	ApprovedAt  *time.Time    `json:"approved_at,omitempty"`
}

// StockLine is one reserved item of the job.
type StockLine struct {
	ItemID string  `json:"item_id"`
	Qty    float64 `json:"qty"`
	Unit   string  `json:"unit,omitempty"`
}

// StockSection tracks the job's reservation state.
type StockSection struct {
	Lines         []StockLine `json:"lines,omitempty"`
	Ready         bool        `json:"ready"`
	EstimatedDate *time.Time  `json:"estimated_date,omitempty"`
}

// AssemblyEstimate is one externally-communicated delivery promise.
type AssemblyEstimate struct {
	Date  time.Time `json:"date"`
	Note  string    `json:"note,omitempty"`
	SetAt time.Time `json:"set_at"`
}

// EstimatedAssemblySection keeps the current promise and every prior one.
type EstimatedAssemblySection struct {
	Date    *time.Time         `json:"date,omitempty"`
	Note    string             `json:"note,omitempty"`
	History []AssemblyEstimate `json:"history,omitempty"`
}

// AssemblySection is the internally-scheduled assembly.
type AssemblySection struct {
	ScheduledDate *time.Time `json:"scheduled_date,omitempty"`
	Note          string     `json:"note,omitempty"`
	Knockdown     bool       `json:"knockdown"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// CollectionEntry is one recorded payment against the job.
type CollectionEntry struct {
	Amount float64   `json:"amount"`
	Method string    `json:"method"`
	Note   string    `json:"note,omitempty"`
	At     time.Time `json:"at"`
}

// FinanceSection tracks collections and the closing discount.
type FinanceSection struct {
	Collections  []CollectionEntry `json:"collections,omitempty"`
	Discount     float64           `json:"discount"`
	DiscountNote string            `json:"discount_note,omitempty"`
	ClosedAt     *time.Time        `json:"closed_at,omitempty"`
}

// Collected sums every recorded payment.
func (f FinanceSection) Collected() float64 {
	var total float64
	for _, entry := range f.Collections {
		total += entry.Amount
	}
	return total
}

// VisitStatus tracks one service visit.
type VisitStatus string

const (
	VisitScheduled  VisitStatus = "scheduled"
	VisitInProgress VisitStatus = "in_progress"
	VisitCompleted  VisitStatus = "completed"
)

// ServiceVisit is one return to the customer's site.
type ServiceVisit struct {
	ID              string      `json:"id"`
	AppointmentDate *time.Time  `json:"appointment_date,omitempty"`
	WorkNote        string      `json:"work_note,omitempty"`
	Materials       string      `json:"materials,omitempty"`
	ExtraCost       float64     `json:"extra_cost"`
	Status          VisitStatus `json:"status"`
	CompletedAt     *time.Time  `json:"completed_at,omitempty"`
}

// ServiceSection holds the service-call specifics. A service job may need an
// unbounded number of visits before payment.
type ServiceSection struct {
	FixedFee float64        `json:"fixed_fee"`
	Visits   []ServiceVisit `json:"visits,omitempty"`
	Payment  payments.Plan  `json:"payment"`
}

// TotalCost is the fixed fee plus every visit's extra cost.
func (s ServiceSection) TotalCost() float64 {
	total := s.FixedFee
	for _, visit := range s.Visits {
		total += visit.ExtraCost
	}
	return total
}

// OpenVisitIndex returns the index of the unfinished visit, or -1.
func (s ServiceSection) OpenVisitIndex() int {
	for i, visit := range s.Visits {
		if visit.Status != VisitCompleted {
			return i
		}
	}
	return -1
}

// InquirySection records the outcome of a price inquiry.
type InquirySection struct {
	Decision  string     `json:"decision,omitempty"`
	Note      string     `json:"note,omitempty"`
	DecidedAt *time.Time `json:"decided_at,omitempty"`
}

// Cancellation records why a job was cancelled. The label is resolved from
// the code catalog, falling back to a generic label for unknown codes.
type Cancellation struct {
	ReasonCode  string    `json:"reason_code"`
	ReasonLabel string    `json:"reason_label"`
	Note        string    `json:"note,omitempty"`
	CancelledAt time.Time `json:"cancelled_at"`
}

// Job is the central aggregate. It is never deleted, only transitioned to a
// terminal status.
type Job struct {
	ID         string    `json:"id"`
	CustomerID string    `json:"customer_id,omitempty"`
	Title      string    `json:"title,omitempty"`
	Status     Status    `json:"status"`
	StartType  StartType `json:"start_type"`
	Roles      []Role    `json:"roles,omitempty"`

	Measure           MeasureSection           `json:"measure"`
	Offer             OfferSection             `json:"offer"`
	Approval          ApprovalSection          `json:"approval"`
	Stock             StockSection             `json:"stock"`
	EstimatedAssembly EstimatedAssemblySection `json:"estimated_assembly"`
	Assembly          AssemblySection          `json:"assembly"`
	Finance           FinanceSection           `json:"finance"`
	Service           ServiceSection           `json:"service"`
	Inquiry           InquirySection           `json:"inquiry"`

	Cancellation *Cancellation `json:"cancellation,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Terminal reports whether the job reached an end state.
func (j *Job) Terminal() bool {
	switch j.Status {
	case StatusClosed, StatusServiceClosed, StatusInquiryApproved,
		StatusInquiryRejected, StatusCancelled:
		return true
	}
	return false
}

// ReadOnly reports whether the job refuses mutation: archive imports and
// terminal jobs.
func (j *Job) ReadOnly() bool {
	return j.StartType == StartArchive || j.Terminal()
}

// RoleByID returns the selected role, or nil.
func (j *Job) RoleByID(id string) *Role {
	for i := range j.Roles {
		if j.Roles[i].ID == id {
			return &j.Roles[i]
		}
	}
	return nil
}

// PendingMeasureIssues counts unresolved measurement problems.
func (j *Job) PendingMeasureIssues() int {
	var n int
	for _, issue := range j.Measure.Issues {
		if issue.Status == MeasureIssuePending {
			n++
		}
	}
	return n
}

// Filter narrows job listings.
type Filter struct {
	Status    Status
	StartType StartType
	Query     string
}

var (
	// ErrJobNotFound indicates an unknown job id.
	ErrJobNotFound = errors.New("jobs: job not found")
	// ErrVisitNotFound indicates an unknown visit id.
	ErrVisitNotFound = errors.New("jobs: visit not found")
	// ErrIssueNotFound indicates an unknown measurement issue id.
	ErrIssueNotFound = errors.New("jobs: measure issue not found")
	// ErrNoRejection indicates a reactivation without a prior rejection.
	ErrNoRejection = errors.New("jobs: job has no rejection to reactivate from")
)
