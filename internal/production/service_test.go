package production

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fenestra-erp/fenestra-erp/internal/shared"
)

type memoryRepo struct {
	orders map[string]*Order
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{orders: map[string]*Order{}}
}

func (m *memoryRepo) Get(_ context.Context, id string) (*Order, error) {
	order, ok := m.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	clone := *order
	return &clone, nil
}

func (m *memoryRepo) List(_ context.Context, filter Filter) ([]*Order, error) {
	var out []*Order
	for _, order := range m.orders {
		if filter.JobID != "" && order.JobID != filter.JobID {
			continue
		}
		if filter.Status != "" && order.Status != filter.Status {
			continue
		}
		clone := *order
		out = append(out, &clone)
	}
	return out, nil
}

func (m *memoryRepo) Insert(_ context.Context, order *Order) error {
	clone := *order
	m.orders[order.ID] = &clone
	return nil
}

func (m *memoryRepo) Update(_ context.Context, order *Order) error {
	if _, ok := m.orders[order.ID]; !ok {
		return ErrOrderNotFound
	}
	clone := *order
	m.orders[order.ID] = &clone
	return nil
}

func (m *memoryRepo) Delete(_ context.Context, id string) error {
	if _, ok := m.orders[id]; !ok {
		return ErrOrderNotFound
	}
	delete(m.orders, id)
	return nil
}

type staticRoles struct {
	roles []RequiredRole
}

func (s staticRoles) RequiredRoles(context.Context, string) ([]RequiredRole, error) {
	return s.roles, nil
}

type nopSink struct{}

func (nopSink) Append(context.Context, string, string, string, map[string]any) {}

func newTestService(repo *memoryRepo, roles []RequiredRole) *Service {
	logger := slog.New(slog.NewTextHandler(testWriter{}, nil))
	return NewService(repo, staticRoles{roles: roles}, nopSink{}, logger)
}

type testWriter struct{}

func (testWriter) Write(p []byte) (int, error) { return len(p), nil }

func mustCreate(t *testing.T, svc *Service, in CreateOrderInput) *Order {
	t.Helper()
	order, err := svc.CreateOrder(context.Background(), in)
	require.NoError(t, err)
	return order
}

func pvcOrder(jobID string, qty int) CreateOrderInput {
	return CreateOrderInput{
		JobID:    jobID,
		RoleID:   "role-pvc",
		RoleName: "PVC",
		Type:     OrderTypeInternal,
		Items:    []OrderItem{{Description: "PVC doğrama", Quantity: qty, Unit: "adet"}},
	}
}

func TestCreateOrderAccumulatesValidationReasons(t *testing.T) {
	svc := newTestService(newMemoryRepo(), nil)

	_, err := svc.CreateOrder(context.Background(), CreateOrderInput{
		Type:  OrderType("bogus"),
		Items: []OrderItem{{Quantity: 0}},
	})
	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Reasons, 4)
}

func TestDeliveryDerivesStatus(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil)
	order := mustCreate(t, svc, pvcOrder("JOB-1", 10))
	require.Equal(t, OrderStatusPending, order.Status)

	order, err := svc.RecordDelivery(context.Background(), order.ID, DeliveryRecord{
		Lines: []DeliveryLine{{LineIndex: 0, ReceivedQty: 4}},
	})
	require.NoError(t, err)
	require.Equal(t, OrderStatusPartial, order.Status)
	require.NotNil(t, order.FirstDeliveryAt)

	order, err = svc.RecordDelivery(context.Background(), order.ID, DeliveryRecord{
		Lines: []DeliveryLine{{LineIndex: 0, ReceivedQty: 6}},
	})
	require.NoError(t, err)
	require.Equal(t, OrderStatusCompleted, order.Status)
	require.NotNil(t, order.ProductionCompletedAt)

	// completed orders are immutable
	_, err = svc.RecordDelivery(context.Background(), order.ID, DeliveryRecord{
		Lines: []DeliveryLine{{LineIndex: 0, ReceivedQty: 1}},
	})
	require.ErrorIs(t, err, ErrOrderLocked)
}

func TestOverDeliveryRejected(t *testing.T) {
	svc := newTestService(newMemoryRepo(), nil)
	order := mustCreate(t, svc, pvcOrder("JOB-1", 5))

	_, err := svc.RecordDelivery(context.Background(), order.ID, DeliveryRecord{
		Lines: []DeliveryLine{{LineIndex: 0, ReceivedQty: 6}},
	})
	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestProblemDeliveryOpensIssueAndBlocksCompletion(t *testing.T) {
	svc := newTestService(newMemoryRepo(), nil)
	order := mustCreate(t, svc, pvcOrder("JOB-1", 10))

	order, err := svc.RecordDelivery(context.Background(), order.ID, DeliveryRecord{
		Lines: []DeliveryLine{{LineIndex: 0, ReceivedQty: 8, ProblemQty: 2, ProblemType: ProblemBroken}},
	})
	require.NoError(t, err)
	require.Equal(t, OrderStatusPartial, order.Status)
	require.Len(t, order.Issues, 1)
	require.Equal(t, IssuePending, order.Issues[0].Status)
	require.Equal(t, 2, order.Issues[0].Quantity)

	// replacement arrives: issue resolves, order completes
	order, err = svc.ResolveIssue(context.Background(), order.ID, order.Issues[0].ID, ResolveIssueInput{
		Resolution: ResolutionReplaced,
	})
	require.NoError(t, err)
	require.Equal(t, IssueResolved, order.Issues[0].Status)
	require.Equal(t, OrderStatusCompleted, order.Status)
	require.Equal(t, 10, order.Items[0].ReceivedQty)
}

func TestRefundShrinksOrderedQuantity(t *testing.T) {
	svc := newTestService(newMemoryRepo(), nil)
	order := mustCreate(t, svc, pvcOrder("JOB-1", 10))

	order, err := svc.RecordDelivery(context.Background(), order.ID, DeliveryRecord{
		Lines: []DeliveryLine{{LineIndex: 0, ReceivedQty: 8, ProblemQty: 2, ProblemType: ProblemBroken}},
	})
	require.NoError(t, err)

	order, err = svc.ResolveIssue(context.Background(), order.ID, order.Issues[0].ID, ResolveIssueInput{
		Resolution: ResolutionRefunded,
	})
	require.NoError(t, err)
	require.Equal(t, 8, order.Items[0].Quantity)
	require.Equal(t, OrderStatusCompleted, order.Status)
}

func TestChainedIssueKeepsOrderPartial(t *testing.T) {
	svc := newTestService(newMemoryRepo(), nil)
	order := mustCreate(t, svc, pvcOrder("JOB-1", 10))

	order, err := svc.RecordDelivery(context.Background(), order.ID, DeliveryRecord{
		Lines: []DeliveryLine{{LineIndex: 0, ReceivedQty: 7, ProblemQty: 3, ProblemType: ProblemBroken}},
	})
	require.NoError(t, err)
	parentID := order.Issues[0].ID

	// three replacements arrive, one of them faulty again
	order, err = svc.ResolveIssue(context.Background(), order.ID, parentID, ResolveIssueInput{
		Resolution:   ResolutionReplaced,
		FollowUpType: ProblemBroken,
		FollowUpQty:  1,
	})
	require.NoError(t, err)
	require.Len(t, order.Issues, 2)
	require.Equal(t, IssueResolved, order.Issues[0].Status)
	require.Equal(t, parentID, order.Issues[1].ParentIssueID)
	require.Equal(t, OrderStatusPartial, order.Status)

	// the chained issue resolves and completes the order
	order, err = svc.ResolveIssue(context.Background(), order.ID, order.Issues[1].ID, ResolveIssueInput{
		Resolution: ResolutionReplaced,
	})
	require.NoError(t, err)
	require.Equal(t, OrderStatusCompleted, order.Status)
}

func TestPartialResolutionKeepsIssueOpen(t *testing.T) {
	svc := newTestService(newMemoryRepo(), nil)
	order := mustCreate(t, svc, pvcOrder("JOB-1", 10))

	order, err := svc.RecordDelivery(context.Background(), order.ID, DeliveryRecord{
		Lines: []DeliveryLine{{LineIndex: 0, ReceivedQty: 6, ProblemQty: 4, ProblemType: ProblemMissing}},
	})
	require.NoError(t, err)

	order, err = svc.ResolveIssue(context.Background(), order.ID, order.Issues[0].ID, ResolveIssueInput{
		Resolution:  ResolutionReplaced,
		ResolvedQty: 2,
	})
	require.NoError(t, err)
	require.Equal(t, IssuePartial, order.Issues[0].Status)
	require.Equal(t, OrderStatusPartial, order.Status)
	require.Len(t, order.Issues[0].History, 1)
}

func TestRescheduleRequiresReasonWhenPostponing(t *testing.T) {
	svc := newTestService(newMemoryRepo(), nil)
	base := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	in := pvcOrder("JOB-1", 5)
	in.EstimatedDelivery = &base
	order := mustCreate(t, svc, in)

	// pulling the date earlier needs no reason
	earlier := base.AddDate(0, 0, -2)
	order, err := svc.Reschedule(context.Background(), order.ID, RescheduleInput{NewDate: earlier})
	require.NoError(t, err)
	require.Empty(t, order.Delays)

	// postponing without a reason is rejected
	later := earlier.AddDate(0, 0, 7)
	_, err = svc.Reschedule(context.Background(), order.ID, RescheduleInput{NewDate: later})
	require.ErrorIs(t, err, ErrDelayReasonRequired)

	order, err = svc.Reschedule(context.Background(), order.ID, RescheduleInput{
		NewDate:             later,
		Reason:              "tedarikçi gecikmesi",
		ResponsiblePersonID: "user-42",
	})
	require.NoError(t, err)
	require.Len(t, order.Delays, 1)
	require.Equal(t, 7, order.Delays[0].DelayDays)
	require.Equal(t, 7, order.TotalDelayDays)
}

func TestUpdateOrderPreservesReceivedQuantities(t *testing.T) {
	svc := newTestService(newMemoryRepo(), nil)
	order := mustCreate(t, svc, pvcOrder("JOB-1", 10))

	_, err := svc.RecordDelivery(context.Background(), order.ID, DeliveryRecord{
		Lines: []DeliveryLine{{LineIndex: 0, ReceivedQty: 4}},
	})
	require.NoError(t, err)

	updated, err := svc.UpdateOrder(context.Background(), order.ID, UpdateOrderInput{
		Items: []OrderItem{{Description: "PVC doğrama", Quantity: 12, Unit: "adet"}},
	})
	require.NoError(t, err)
	require.Equal(t, 12, updated.Items[0].Quantity)
	require.Equal(t, 4, updated.Items[0].ReceivedQty)

	// shrinking below what was already received is rejected
	_, err = svc.UpdateOrder(context.Background(), order.ID, UpdateOrderInput{
		Items: []OrderItem{{Description: "PVC doğrama", Quantity: 3, Unit: "adet"}},
	})
	require.Error(t, err)
}

func TestDeleteOnlyBeforeDeliveries(t *testing.T) {
	svc := newTestService(newMemoryRepo(), nil)
	order := mustCreate(t, svc, pvcOrder("JOB-1", 5))
	require.NoError(t, svc.DeleteOrder(context.Background(), order.ID))

	order = mustCreate(t, svc, pvcOrder("JOB-1", 5))
	_, err := svc.RecordDelivery(context.Background(), order.ID, DeliveryRecord{
		Lines: []DeliveryLine{{LineIndex: 0, ReceivedQty: 2}},
	})
	require.NoError(t, err)
	require.ErrorIs(t, svc.DeleteOrder(context.Background(), order.ID), ErrOrderLocked)
}

func TestReadinessRequiresEveryRoleAndGlass(t *testing.T) {
	repo := newMemoryRepo()
	roles := []RequiredRole{
		{ID: "role-pvc", Name: "PVC", RequiresGlass: true},
		{ID: "role-rail", Name: "Korkuluk"},
	}
	svc := newTestService(repo, roles)
	ctx := context.Background()

	pvc := mustCreate(t, svc, pvcOrder("JOB-1", 4))
	glassIn := CreateOrderInput{
		JobID: "JOB-1", RoleID: "role-pvc", RoleName: "PVC", Type: OrderTypeGlass,
		Items: []OrderItem{{GlassType: "4+16+4", Quantity: 4, Unit: "adet"}},
	}
	glass := mustCreate(t, svc, glassIn)
	railIn := CreateOrderInput{
		JobID: "JOB-1", RoleID: "role-rail", RoleName: "Korkuluk", Type: OrderTypeExternal,
		SupplierID: "sup-1",
		Items:      []OrderItem{{Description: "Korkuluk", Quantity: 2, Unit: "mt"}},
	}
	rail := mustCreate(t, svc, railIn)

	ready, err := svc.ReadyForAssembly(ctx, "JOB-1")
	require.NoError(t, err)
	require.False(t, ready)

	deliverAll := func(o *Order, qty int) {
		t.Helper()
		_, err := svc.RecordDelivery(ctx, o.ID, DeliveryRecord{
			Lines: []DeliveryLine{{LineIndex: 0, ReceivedQty: qty}},
		})
		require.NoError(t, err)
	}

	deliverAll(pvc, 4)
	deliverAll(rail, 2)
	ready, err = svc.ReadyForAssembly(ctx, "JOB-1")
	require.NoError(t, err)
	require.False(t, ready, "glass order still pending")

	deliverAll(glass, 4)
	ready, err = svc.ReadyForAssembly(ctx, "JOB-1")
	require.NoError(t, err)
	require.True(t, ready)

	sum, err := svc.Summarize(ctx, "JOB-1")
	require.NoError(t, err)
	require.Equal(t, 3, sum.TotalOrders)
	require.Equal(t, 10, sum.TotalItems)
	require.Equal(t, 10, sum.ReceivedItems)
	require.True(t, sum.AllCompleted)
}

func TestPendingIssueBlocksReadiness(t *testing.T) {
	repo := newMemoryRepo()
	roles := []RequiredRole{{ID: "role-pvc", Name: "PVC"}}
	svc := newTestService(repo, roles)
	ctx := context.Background()

	order := mustCreate(t, svc, pvcOrder("JOB-1", 4))
	_, err := svc.RecordDelivery(ctx, order.ID, DeliveryRecord{
		Lines: []DeliveryLine{{LineIndex: 0, ReceivedQty: 4, ProblemQty: 1, ProblemType: ProblemWrong}},
	})
	require.Error(t, err) // received cannot exceed ordered

	order, err = svc.RecordDelivery(ctx, order.ID, DeliveryRecord{
		Lines: []DeliveryLine{{LineIndex: 0, ReceivedQty: 3, ProblemQty: 1, ProblemType: ProblemWrong}},
	})
	require.NoError(t, err)

	ready, err := svc.ReadyForAssembly(ctx, "JOB-1")
	require.NoError(t, err)
	require.False(t, ready)

	order, err = svc.ResolveIssue(ctx, order.ID, order.Issues[0].ID, ResolveIssueInput{Resolution: ResolutionReplaced})
	require.NoError(t, err)
	require.Equal(t, OrderStatusCompleted, order.Status)

	ready, err = svc.ReadyForAssembly(ctx, "JOB-1")
	require.NoError(t, err)
	require.True(t, ready)
}

func TestAlertsFlagOverdueOrders(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil)
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	due := now.AddDate(0, 0, -10)
	in := pvcOrder("JOB-1", 5)
	in.EstimatedDelivery = &due
	mustCreate(t, svc, in)

	onTime := pvcOrder("JOB-2", 5)
	future := now.AddDate(0, 0, 3)
	onTime.EstimatedDelivery = &future
	mustCreate(t, svc, onTime)

	alerts, err := svc.Alerts(context.Background())
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	require.Equal(t, "overdue_delivery", alerts[0].Type)
	require.Equal(t, "critical", alerts[0].Severity)
	require.Equal(t, "JOB-1", alerts[0].JobID)
}

func TestStartProductionOnce(t *testing.T) {
	svc := newTestService(newMemoryRepo(), nil)
	order := mustCreate(t, svc, pvcOrder("JOB-1", 5))

	order, err := svc.StartProduction(context.Background(), order.ID)
	require.NoError(t, err)
	require.Equal(t, OrderStatusInProgress, order.Status)

	_, err = svc.StartProduction(context.Background(), order.ID)
	require.True(t, errors.Is(err, ErrAlreadyStarted))
}
