package production

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/fenestra-erp/fenestra-erp/internal/shared"
)

// RepositoryPort is the persistence surface the service depends on.
type RepositoryPort interface {
	Get(ctx context.Context, id string) (*Order, error)
	List(ctx context.Context, filter Filter) ([]*Order, error)
	Insert(ctx context.Context, order *Order) error
	Update(ctx context.Context, order *Order) error
	Delete(ctx context.Context, id string) error
}

// RequiredRole is one role a job's production must cover.
type RequiredRole struct {
	ID            string
	Name          string
	RequiresGlass bool
}

// RolesPort resolves the roles a job requires. Implemented by the jobs
// module so readiness checks do not depend on its package.
type RolesPort interface {
	RequiredRoles(ctx context.Context, jobID string) ([]RequiredRole, error)
}

// ActivitySink receives activity entries; failures must not fail the caller.
type ActivitySink interface {
	Append(ctx context.Context, jobID, action, detail string, meta map[string]any)
}

// Service implements production order aggregation.
type Service struct {
	repo     RepositoryPort
	roles    RolesPort
	activity ActivitySink
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(repo RepositoryPort, roles RolesPort, sink ActivitySink, logger *slog.Logger) *Service {
	return &Service{repo: repo, roles: roles, activity: sink, logger: logger, now: time.Now}
}

// CreateOrderInput carries a new order. SupplierID may be empty for external
// orders, in which case the role's default supplier is used upstream.
type CreateOrderInput struct {
	JobID             string
	RoleID            string
	RoleName          string
	Type              OrderType
	SupplierID        string
	SupplierName      string
	Items             []OrderItem
	EstimatedDelivery *time.Time
	Notes             string
}

func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) (*Order, error) {
	var verr shared.ValidationError
	if in.JobID == "" {
		verr.Add("iş numarası zorunludur")
	}
	if in.RoleID == "" {
		verr.Add("rol zorunludur")
	}
	switch in.Type {
	case OrderTypeInternal, OrderTypeExternal, OrderTypeGlass:
	default:
		verr.Add("geçersiz sipariş tipi: %s", in.Type)
	}
	if len(in.Items) == 0 {
		verr.Add("en az bir kalem gereklidir")
	}
	for i, item := range in.Items {
		if item.Quantity <= 0 {
			verr.Add("kalem %d: miktar pozitif olmalıdır", i+1)
		}
	}
	if in.Type == OrderTypeExternal && in.SupplierID == "" {
		verr.Add("dış sipariş için tedarikçi zorunludur")
	}
	if verr.HasReasons() {
		return nil, &verr
	}

	now := s.now()
	items := make([]OrderItem, len(in.Items))
	copy(items, in.Items)
	order := &Order{
		ID:                shared.NewID("ORD"),
		JobID:             in.JobID,
		RoleID:            in.RoleID,
		RoleName:          in.RoleName,
		Type:              in.Type,
		SupplierID:        in.SupplierID,
		SupplierName:      in.SupplierName,
		Items:             items,
		Status:            OrderStatusPending,
		EstimatedDelivery: in.EstimatedDelivery,
		Notes:             in.Notes,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.repo.Insert(ctx, order); err != nil {
		return nil, fmt.Errorf("insert order: %w", err)
	}
	s.log(ctx, order.JobID, "production.order_created",
		fmt.Sprintf("%s siparişi oluşturuldu (%s)", order.RoleName, order.Type),
		map[string]any{"order_id": order.ID, "items": len(order.Items)})
	return order, nil
}

// UpdateOrderInput mutates an order's editable fields.
type UpdateOrderInput struct {
	Items             []OrderItem
	EstimatedDelivery *time.Time
	SupplierID        *string
	SupplierName      *string
	Notes             *string
}

// UpdateOrder edits an order. Completed orders are immutable; received
// quantities on existing lines are preserved.
func (s *Service) UpdateOrder(ctx context.Context, id string, in UpdateOrderInput) (*Order, error) {
	order, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.Status == OrderStatusCompleted {
		return nil, ErrOrderLocked
	}
	if in.Items != nil {
		if len(in.Items) == 0 {
			return nil, ErrNoItems
		}
		items := make([]OrderItem, len(in.Items))
		copy(items, in.Items)
		for i := range items {
			if i < len(order.Items) {
				items[i].ReceivedQty = order.Items[i].ReceivedQty
				items[i].ProblemQty = order.Items[i].ProblemQty
			}
			if items[i].Quantity < items[i].ReceivedQty {
				return nil, fmt.Errorf("production: line %d quantity below received", i+1)
			}
		}
		order.Items = items
	}
	if in.EstimatedDelivery != nil {
		if err := s.trackDelay(order, *in.EstimatedDelivery, "", "", ""); err != nil {
			return nil, err
		}
	}
	if in.SupplierID != nil {
		order.SupplierID = *in.SupplierID
	}
	if in.SupplierName != nil {
		order.SupplierName = *in.SupplierName
	}
	if in.Notes != nil {
		order.Notes = *in.Notes
	}
	order.Status = order.DerivedStatus()
	order.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, order); err != nil {
		return nil, fmt.Errorf("update order: %w", err)
	}
	return order, nil
}

// DeleteOrder removes an order that has not received anything yet.
func (s *Service) DeleteOrder(ctx context.Context, id string) error {
	order, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if order.Status != OrderStatusPending && order.Status != OrderStatusInProgress {
		return ErrOrderLocked
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	s.log(ctx, order.JobID, "production.order_deleted",
		fmt.Sprintf("%s siparişi silindi", order.RoleName),
		map[string]any{"order_id": order.ID})
	return nil
}

// StartProduction marks an internal order as begun.
func (s *Service) StartProduction(ctx context.Context, id string) (*Order, error) {
	order, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.ProductionStartedAt != nil {
		return nil, ErrAlreadyStarted
	}
	now := s.now()
	order.ProductionStartedAt = &now
	order.Status = order.DerivedStatus()
	order.UpdatedAt = now
	if err := s.repo.Update(ctx, order); err != nil {
		return nil, fmt.Errorf("update order: %w", err)
	}
	s.log(ctx, order.JobID, "production.started",
		fmt.Sprintf("%s üretimi başladı", order.RoleName),
		map[string]any{"order_id": order.ID})
	return order, nil
}

// RecordDelivery applies a (possibly partial) delivery. Problem quantities
// open issues; the order status is re-derived afterwards.
func (s *Service) RecordDelivery(ctx context.Context, id string, rec DeliveryRecord) (*Order, error) {
	order, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.Status == OrderStatusCompleted {
		return nil, ErrOrderLocked
	}
	if len(rec.Lines) == 0 {
		return nil, &shared.ValidationError{Reasons: []string{"teslimat en az bir satır içermelidir"}}
	}
	now := s.now()
	if rec.Date.IsZero() {
		rec.Date = now
	}
	rec.ID = shared.NewID("DLV")

	var verr shared.ValidationError
	for _, line := range rec.Lines {
		if line.LineIndex < 0 || line.LineIndex >= len(order.Items) {
			return nil, ErrBadLineIndex
		}
		item := order.Items[line.LineIndex]
		if line.ReceivedQty < 0 || line.ProblemQty < 0 {
			verr.Add("satır %d: miktarlar negatif olamaz", line.LineIndex+1)
			continue
		}
		if item.ReceivedQty+item.ProblemQty+line.ReceivedQty+line.ProblemQty > item.Quantity {
			verr.Add("satır %d: alınan miktar sipariş miktarını aşıyor", line.LineIndex+1)
		}
		if line.ProblemQty > 0 && line.ProblemType == "" {
			verr.Add("satır %d: problem tipi zorunludur", line.LineIndex+1)
		}
	}
	if verr.HasReasons() {
		return nil, &verr
	}

	for _, line := range rec.Lines {
		item := &order.Items[line.LineIndex]
		item.ReceivedQty += line.ReceivedQty
		if line.ProblemQty > 0 {
			item.ProblemQty += line.ProblemQty
			order.Issues = append(order.Issues, Issue{
				ID:        shared.NewID("ISS"),
				LineIndex: line.LineIndex,
				Type:      line.ProblemType,
				Quantity:  line.ProblemQty,
				Note:      line.ProblemNote,
				Status:    IssuePending,
				CreatedAt: now,
			})
		}
	}
	order.Deliveries = append(order.Deliveries, rec)
	if order.FirstDeliveryAt == nil {
		order.FirstDeliveryAt = &rec.Date
	}
	order.Status = order.DerivedStatus()
	if order.Status == OrderStatusCompleted && order.ProductionCompletedAt == nil {
		order.ProductionCompletedAt = &now
	}
	order.UpdatedAt = now
	if err := s.repo.Update(ctx, order); err != nil {
		return nil, fmt.Errorf("update order: %w", err)
	}
	s.log(ctx, order.JobID, "production.delivery_recorded",
		fmt.Sprintf("%s siparişine teslimat kaydedildi", order.RoleName),
		map[string]any{"order_id": order.ID, "status": order.Status})
	return order, nil
}

// ResolveIssueInput settles all or part of an issue. Replacement goods that
// arrive faulty open a chained follow-up issue.
type ResolveIssueInput struct {
	Resolution   Resolution
	ResolvedQty  int
	Note         string
	FollowUpType ProblemType
	FollowUpQty  int
	FollowUpNote string
}

func (s *Service) ResolveIssue(ctx context.Context, orderID, issueID string, in ResolveIssueInput) (*Order, error) {
	order, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	var issue *Issue
	for i := range order.Issues {
		if order.Issues[i].ID == issueID {
			issue = &order.Issues[i]
			break
		}
	}
	if issue == nil {
		return nil, ErrIssueNotFound
	}
	if issue.Status == IssueResolved {
		return nil, &shared.ValidationError{Reasons: []string{"sorun zaten çözülmüş"}}
	}
	switch in.Resolution {
	case ResolutionReplaced, ResolutionRefunded, ResolutionCredited, ResolutionCancelled:
	default:
		return nil, &shared.ValidationError{Reasons: []string{fmt.Sprintf("geçersiz çözüm: %s", in.Resolution)}}
	}

	var resolvedSoFar int
	for _, step := range issue.History {
		resolvedSoFar += step.ResolvedQty
	}
	qty := in.ResolvedQty
	if qty <= 0 {
		qty = issue.Quantity - resolvedSoFar
	}
	if resolvedSoFar+qty > issue.Quantity {
		return nil, &shared.ValidationError{Reasons: []string{"çözülen miktar sorun miktarını aşıyor"}}
	}

	now := s.now()
	issue.History = append(issue.History, ResolutionRecord{
		At:          now,
		Resolution:  in.Resolution,
		ResolvedQty: qty,
		Note:        in.Note,
	})
	if resolvedSoFar+qty == issue.Quantity {
		issue.Status = IssueResolved
	} else {
		issue.Status = IssuePartial
	}

	item := &order.Items[issue.LineIndex]
	switch in.Resolution {
	case ResolutionReplaced:
		// replacement goods arrived: they count as received
		item.ReceivedQty += qty
		if item.ReceivedQty > item.Quantity {
			item.ReceivedQty = item.Quantity
		}
		item.ProblemQty -= qty
		if item.ProblemQty < 0 {
			item.ProblemQty = 0
		}
	case ResolutionRefunded, ResolutionCredited, ResolutionCancelled:
		// the line is settled without goods: shrink the ordered quantity
		item.Quantity -= qty
		item.ProblemQty -= qty
		if item.Quantity < item.ReceivedQty {
			item.ReceivedQty = item.Quantity
		}
		if item.ProblemQty < 0 {
			item.ProblemQty = 0
		}
	}

	// A replacement that itself arrived faulty chains a new issue.
	if in.FollowUpQty > 0 {
		if in.Resolution != ResolutionReplaced {
			return nil, &shared.ValidationError{Reasons: []string{"zincirleme sorun yalnızca değişimde açılabilir"}}
		}
		item.ProblemQty += in.FollowUpQty
		item.ReceivedQty -= in.FollowUpQty
		if item.ReceivedQty < 0 {
			item.ReceivedQty = 0
		}
		order.Issues = append(order.Issues, Issue{
			ID:            shared.NewID("ISS"),
			LineIndex:     issue.LineIndex,
			Type:          in.FollowUpType,
			Quantity:      in.FollowUpQty,
			Note:          in.FollowUpNote,
			Status:        IssuePending,
			ParentIssueID: issue.ID,
			CreatedAt:     now,
		})
	}

	order.Status = order.DerivedStatus()
	if order.Status == OrderStatusCompleted && order.ProductionCompletedAt == nil {
		order.ProductionCompletedAt = &now
	}
	order.UpdatedAt = now
	if err := s.repo.Update(ctx, order); err != nil {
		return nil, fmt.Errorf("update order: %w", err)
	}
	s.log(ctx, order.JobID, "production.issue_resolved",
		fmt.Sprintf("%s siparişindeki sorun çözüldü (%s)", order.RoleName, in.Resolution),
		map[string]any{"order_id": order.ID, "issue_id": issueID})
	return order, nil
}

// RescheduleInput moves the estimated delivery. Postponements require a
// reason and a responsible person; both are recorded as a delay entry.
type RescheduleInput struct {
	NewDate             time.Time
	Reason              string
	ResponsiblePersonID string
	Note                string
}

func (s *Service) Reschedule(ctx context.Context, id string, in RescheduleInput) (*Order, error) {
	order, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.Status == OrderStatusCompleted {
		return nil, ErrOrderLocked
	}
	if err := s.trackDelay(order, in.NewDate, in.Reason, in.ResponsiblePersonID, in.Note); err != nil {
		return nil, err
	}
	order.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, order); err != nil {
		return nil, fmt.Errorf("update order: %w", err)
	}
	return order, nil
}

// trackDelay applies a new estimated date, recording a DelayRecord whenever
// the date moves later than the current one.
func (s *Service) trackDelay(order *Order, newDate time.Time, reason, person, note string) error {
	if order.EstimatedDelivery != nil && newDate.After(*order.EstimatedDelivery) {
		if reason == "" || person == "" {
			return ErrDelayReasonRequired
		}
		days := int(newDate.Sub(*order.EstimatedDelivery).Hours() / 24)
		order.Delays = append(order.Delays, DelayRecord{
			ID:                  shared.NewID("DLY"),
			OriginalDate:        *order.EstimatedDelivery,
			NewDate:             newDate,
			DelayDays:           days,
			Reason:              reason,
			ResponsiblePersonID: person,
			Note:                note,
			CreatedAt:           s.now(),
		})
		order.TotalDelayDays += days
	}
	order.EstimatedDelivery = &newDate
	return nil
}

// Get returns one order.
func (s *Service) Get(ctx context.Context, id string) (*Order, error) {
	return s.repo.Get(ctx, id)
}

// List returns matching orders.
func (s *Service) List(ctx context.Context, filter Filter) ([]*Order, error) {
	return s.repo.List(ctx, filter)
}

// Summarize aggregates a job's orders into the readiness signal: ready only
// when every required role (and its glass, where flagged) has a completed
// order and no issue is pending.
func (s *Service) Summarize(ctx context.Context, jobID string) (Summary, error) {
	orders, err := s.repo.List(ctx, Filter{JobID: jobID})
	if err != nil {
		return Summary{}, err
	}
	required, err := s.roles.RequiredRoles(ctx, jobID)
	if err != nil {
		return Summary{}, err
	}

	var sum Summary
	completedByRole := map[string]bool{}
	glassCompletedByRole := map[string]bool{}
	sum.AllCompleted = true
	for _, order := range orders {
		sum.TotalOrders++
		for _, item := range order.Items {
			sum.TotalItems += item.Quantity
			sum.ReceivedItems += item.ReceivedQty
		}
		sum.PendingIssues += order.PendingIssues()
		if order.Status != OrderStatusCompleted {
			sum.AllCompleted = false
			continue
		}
		if order.Type == OrderTypeGlass {
			glassCompletedByRole[order.RoleID] = true
		} else {
			completedByRole[order.RoleID] = true
		}
	}
	if len(orders) == 0 {
		sum.AllCompleted = false
	}

	ready := len(required) > 0 && sum.PendingIssues == 0
	for _, role := range required {
		if !completedByRole[role.ID] {
			ready = false
		}
		if role.RequiresGlass && !glassCompletedByRole[role.ID] {
			ready = false
		}
	}
	sum.ReadyForAssembly = ready
	return sum, nil
}

// ReadyForAssembly implements the production gate consulted by the jobs
// state machine.
func (s *Service) ReadyForAssembly(ctx context.Context, jobID string) (bool, error) {
	sum, err := s.Summarize(ctx, jobID)
	if err != nil {
		return false, err
	}
	return sum.ReadyForAssembly, nil
}

// GlobalSummary aggregates every order for the dashboard view.
func (s *Service) GlobalSummary(ctx context.Context) (GlobalSummary, error) {
	orders, err := s.repo.List(ctx, Filter{})
	if err != nil {
		return GlobalSummary{}, err
	}
	now := s.now()
	sum := GlobalSummary{ByStatus: map[OrderStatus]int{}}
	for _, order := range orders {
		sum.TotalOrders++
		sum.ByStatus[order.Status]++
		sum.PendingIssues += order.PendingIssues()
		if order.IsOverdue(now) {
			sum.OverdueOrders++
		}
		for _, item := range order.Items {
			sum.TotalItems += item.Quantity
			sum.ReceivedItems += item.ReceivedQty
		}
	}
	return sum, nil
}

// Alerts builds the attention feed: overdue deliveries and aging issues.
func (s *Service) Alerts(ctx context.Context) ([]Alert, error) {
	orders, err := s.repo.List(ctx, Filter{})
	if err != nil {
		return nil, err
	}
	now := s.now()
	var alerts []Alert
	for _, order := range orders {
		if order.EstimatedDelivery != nil && order.Status != OrderStatusCompleted &&
			sameDay(*order.EstimatedDelivery, now) {
			alerts = append(alerts, Alert{
				Type:     "due_today",
				Severity: "info",
				OrderID:  order.ID,
				JobID:    order.JobID,
				RoleName: order.RoleName,
				Message:  fmt.Sprintf("%s siparişinin teslim tarihi bugün", order.RoleName),
			})
		}
		if order.IsOverdue(now) {
			days := int(now.Sub(*order.EstimatedDelivery).Hours() / 24)
			severity := "warning"
			if days > 7 {
				severity = "critical"
			}
			alerts = append(alerts, Alert{
				Type:     "overdue_delivery",
				Severity: severity,
				OrderID:  order.ID,
				JobID:    order.JobID,
				RoleName: order.RoleName,
				Message:  fmt.Sprintf("%s siparişi %d gün gecikti", order.RoleName, days),
			})
		}
		for _, issue := range order.Issues {
			if issue.Status != IssuePending {
				continue
			}
			age := int(now.Sub(issue.CreatedAt).Hours() / 24)
			if age < 3 {
				continue
			}
			alerts = append(alerts, Alert{
				Type:     "stale_issue",
				Severity: "warning",
				OrderID:  order.ID,
				JobID:    order.JobID,
				RoleName: order.RoleName,
				Message:  fmt.Sprintf("%s siparişinde %d gündür bekleyen sorun var", order.RoleName, age),
			})
		}
	}
	slices.SortStableFunc(alerts, func(a, b Alert) int {
		return severityRank(a.Severity) - severityRank(b.Severity)
	})
	return alerts, nil
}

func severityRank(s string) int {
	switch s {
	case "critical":
		return 0
	case "warning":
		return 1
	default:
		return 2
	}
}

func sameDay(a, b time.Time) bool {
	y1, m1, d1 := a.Date()
	y2, m2, d2 := b.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

// ScanOverdue surfaces overdue orders into the activity log and returns how
// many it found. Wired to the periodic background task.
func (s *Service) ScanOverdue(ctx context.Context) (int, error) {
	orders, err := s.repo.List(ctx, Filter{Overdue: true})
	if err != nil {
		return 0, err
	}
	now := s.now()
	var count int
	for _, order := range orders {
		if !order.IsOverdue(now) {
			continue
		}
		count++
		days := int(now.Sub(*order.EstimatedDelivery).Hours() / 24)
		s.log(ctx, order.JobID, "production.overdue",
			fmt.Sprintf("%s siparişi tahmini teslim tarihini %d gün aştı", order.RoleName, days),
			map[string]any{"order_id": order.ID, "days": days})
	}
	return count, nil
}

func (s *Service) log(ctx context.Context, jobID, action, detail string, meta map[string]any) {
	if s.activity == nil {
		return
	}
	s.activity.Append(ctx, jobID, action, detail, meta)
}
