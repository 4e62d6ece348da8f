package production

import (
	"errors"
	"time"
)

// OrderType routes a job-role's production.
type OrderType string

const (
	// OrderTypeInternal is produced in the company's own workshop.
	OrderTypeInternal OrderType = "internal"
	// OrderTypeExternal is outsourced to a supplier.
	OrderTypeExternal OrderType = "external"
	// OrderTypeGlass is a glass order, tracked separately because glazing
	// arrives on its own schedule.
	OrderTypeGlass OrderType = "glass"
)

// OrderStatus is derived from received vs ordered quantities.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusInProgress OrderStatus = "in_progress"
	OrderStatusPartial    OrderStatus = "partial"
	OrderStatusCompleted  OrderStatus = "completed"
)

// ProblemType classifies a delivery problem.
type ProblemType string

const (
	ProblemBroken  ProblemType = "broken"
	ProblemMissing ProblemType = "missing"
	ProblemWrong   ProblemType = "wrong"
	ProblemOther   ProblemType = "other"
)

// Resolution classifies how an issue was settled.
type Resolution string

const (
	ResolutionReplaced  Resolution = "replaced"
	ResolutionRefunded  Resolution = "refunded"
	ResolutionCredited  Resolution = "credited"
	ResolutionCancelled Resolution = "cancelled"
)

// IssueStatus tracks an issue's lifecycle.
type IssueStatus string

const (
	IssuePending  IssueStatus = "pending"
	IssuePartial  IssueStatus = "partial"
	IssueResolved IssueStatus = "resolved"
)

// OrderItem is one ordered line. Glass fields are set on glass orders and on
// internal orders that depend on a glass type.
type OrderItem struct {
	Description string `json:"description,omitempty"`
	GlassType   string `json:"glass_type,omitempty"`
	GlassName   string `json:"glass_name,omitempty"`
	Combination string `json:"combination,omitempty"`
	Quantity    int    `json:"quantity"`
	Unit        string `json:"unit"`
	ReceivedQty int    `json:"received_qty"`
	ProblemQty  int    `json:"problem_qty"`
	Notes       string `json:"notes,omitempty"`
}

// ResolutionRecord is one step in an issue's resolution history.
type ResolutionRecord struct {
	At          time.Time  `json:"at"`
	Resolution  Resolution `json:"resolution"`
	ResolvedQty int        `json:"resolved_qty"`
	Note        string     `json:"note,omitempty"`
}

// Issue is a delivery problem awaiting resolution. A replacement that itself
// arrives faulty spawns a chained issue linked via ParentIssueID.
type Issue struct {
	ID            string             `json:"id"`
	LineIndex     int                `json:"line_index"`
	Type          ProblemType        `json:"type"`
	Quantity      int                `json:"quantity"`
	Note          string             `json:"note,omitempty"`
	Status        IssueStatus        `json:"status"`
	ParentIssueID string             `json:"parent_issue_id,omitempty"`
	History       []ResolutionRecord `json:"history,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
}

// DelayRecord documents a postponed delivery date.
type DelayRecord struct {
	ID                  string    `json:"id"`
	OriginalDate        time.Time `json:"original_date"`
	NewDate             time.Time `json:"new_date"`
	DelayDays           int       `json:"delay_days"`
	Reason              string    `json:"reason"`
	ResponsiblePersonID string    `json:"responsible_person_id"`
	Note                string    `json:"note,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
}

// DeliveryLine records received and problem quantities for one order line.
type DeliveryLine struct {
	LineIndex   int         `json:"line_index"`
	ReceivedQty int         `json:"received_qty"`
	ProblemQty  int         `json:"problem_qty"`
	ProblemType ProblemType `json:"problem_type,omitempty"`
	ProblemNote string      `json:"problem_note,omitempty"`
}

// DeliveryRecord is one (possibly partial) delivery against an order.
type DeliveryRecord struct {
	ID    string         `json:"id"`
	Date  time.Time      `json:"date"`
	Note  string         `json:"note,omitempty"`
	Lines []DeliveryLine `json:"lines"`
}

// Order aggregates one job-role's production or supply order.
type Order struct {
	ID           string      `json:"id"`
	JobID        string      `json:"job_id"`
	RoleID       string      `json:"role_id"`
	RoleName     string      `json:"role_name"`
	Type         OrderType   `json:"order_type"`
	SupplierID   string      `json:"supplier_id,omitempty"`
	SupplierName string      `json:"supplier_name,omitempty"`
	Items        []OrderItem `json:"items"`
	Status       OrderStatus `json:"status"`

	EstimatedDelivery *time.Time `json:"estimated_delivery,omitempty"`
	PlannedDate       *time.Time `json:"planned_date,omitempty"`

	ProductionStartedAt   *time.Time `json:"production_started_at,omitempty"`
	ProductionCompletedAt *time.Time `json:"production_completed_at,omitempty"`
	FirstDeliveryAt       *time.Time `json:"first_delivery_at,omitempty"`

	Issues     []Issue          `json:"issues,omitempty"`
	Deliveries []DeliveryRecord `json:"deliveries,omitempty"`

	Delays         []DelayRecord `json:"delays,omitempty"`
	TotalDelayDays int           `json:"total_delay_days"`

	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PendingIssues counts unresolved issues.
func (o *Order) PendingIssues() int {
	var n int
	for _, issue := range o.Issues {
		if issue.Status == IssuePending {
			n++
		}
	}
	return n
}

// DerivedStatus computes the order status from quantities and open issues:
// completed only when every line is fully received and nothing is pending.
func (o *Order) DerivedStatus() OrderStatus {
	if len(o.Items) == 0 {
		return OrderStatusPending
	}
	var ordered, received int
	for _, item := range o.Items {
		ordered += item.Quantity
		received += item.ReceivedQty
	}
	switch {
	case received == 0:
		if o.ProductionStartedAt != nil {
			return OrderStatusInProgress
		}
		return OrderStatusPending
	case received < ordered || o.PendingIssues() > 0:
		return OrderStatusPartial
	default:
		return OrderStatusCompleted
	}
}

// IsOverdue reports whether the estimated delivery day passed without
// completion. Day granularity: the due day itself is not overdue yet.
func (o *Order) IsOverdue(now time.Time) bool {
	if o.EstimatedDelivery == nil || o.Status == OrderStatusCompleted {
		return false
	}
	due := o.EstimatedDelivery
	y1, m1, d1 := due.Date()
	y2, m2, d2 := now.Date()
	if y1 != y2 {
		return y2 > y1
	}
	if m1 != m2 {
		return m2 > m1
	}
	return d2 > d1
}

// Summary aggregates all orders of one job into the readiness signal the
// state machine consults before the assembly stage.
type Summary struct {
	TotalOrders      int  `json:"total_orders"`
	TotalItems       int  `json:"total_items"`
	ReceivedItems    int  `json:"received_items"`
	PendingIssues    int  `json:"pending_issues"`
	AllCompleted     bool `json:"all_completed"`
	ReadyForAssembly bool `json:"ready_for_assembly"`
}

// GlobalSummary aggregates every order in the system for the dashboard.
type GlobalSummary struct {
	TotalOrders   int                 `json:"total_orders"`
	ByStatus      map[OrderStatus]int `json:"by_status"`
	PendingIssues int                 `json:"pending_issues"`
	OverdueOrders int                 `json:"overdue_orders"`
	TotalItems    int                 `json:"total_items"`
	ReceivedItems int                 `json:"received_items"`
}

// Alert is one entry of the attention feed.
type Alert struct {
	Type     string `json:"type"`
	Severity string `json:"severity"`
	OrderID  string `json:"order_id"`
	JobID    string `json:"job_id"`
	RoleName string `json:"role_name"`
	Message  string `json:"message"`
}

// Filter narrows order listings.
type Filter struct {
	JobID      string
	RoleID     string
	Type       OrderType
	Status     OrderStatus
	SupplierID string
	Overdue    bool
}

var (
	// ErrOrderNotFound indicates an unknown order id.
	ErrOrderNotFound = errors.New("production: order not found")
	// ErrIssueNotFound indicates an unknown issue id.
	ErrIssueNotFound = errors.New("production: issue not found")
	// ErrOrderLocked indicates the order can no longer be edited.
	ErrOrderLocked = errors.New("production: completed order cannot be modified")
	// ErrAlreadyStarted indicates production already started.
	ErrAlreadyStarted = errors.New("production: already started")
	// ErrDelayReasonRequired indicates a postponement without a reason.
	ErrDelayReasonRequired = errors.New("production: delay reason and responsible person required when postponing")
	// ErrNoItems indicates an order without lines.
	ErrNoItems = errors.New("production: at least one item is required")
	// ErrBadLineIndex indicates a delivery referencing a missing line.
	ErrBadLineIndex = errors.New("production: delivery references unknown line")
)
