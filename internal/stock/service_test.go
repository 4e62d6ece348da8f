package stock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	mu        sync.Mutex
	items     map[string]Item
	movements []Movement
}

type memoryTx struct {
	repo    *memoryRepo
	pending map[string]Item
	moves   []Movement
}

func newMemoryRepo(items ...Item) *memoryRepo {
	repo := &memoryRepo{items: make(map[string]Item)}
	for _, item := range items {
		repo.items[item.ID] = item
	}
	return repo
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx := &memoryTx{repo: r, pending: make(map[string]Item)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	for id, item := range tx.pending {
		r.items[id] = item
	}
	r.movements = append(r.movements, tx.moves...)
	return nil
}

func (r *memoryRepo) GetItem(ctx context.Context, itemID string) (Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[itemID]
	if !ok {
		return Item{}, ErrItemNotFound
	}
	return item, nil
}

func (r *memoryRepo) ListItems(ctx context.Context) ([]Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	items := make([]Item, 0, len(r.items))
	for _, item := range r.items {
		items = append(items, item)
	}
	return items, nil
}

func (r *memoryRepo) ListMovements(ctx context.Context, itemID string, limit int) ([]Movement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Movement
	for _, m := range r.movements {
		if m.ItemID == itemID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (tx *memoryTx) GetItemForUpdate(ctx context.Context, itemID string) (Item, error) {
	if item, ok := tx.pending[itemID]; ok {
		return item, nil
	}
	item, ok := tx.repo.items[itemID]
	if !ok {
		return Item{}, ErrItemNotFound
	}
	return item, nil
}

func (tx *memoryTx) UpdateItemQuantities(ctx context.Context, itemID string, onHand, reserved float64) error {
	item, err := tx.GetItemForUpdate(ctx, itemID)
	if err != nil {
		return err
	}
	item.OnHand = onHand
	item.Reserved = reserved
	item.UpdatedAt = time.Now()
	tx.pending[itemID] = item
	return nil
}

func (tx *memoryTx) InsertMovement(ctx context.Context, m Movement) error {
	tx.moves = append(tx.moves, m)
	return nil
}

func TestReserveSufficientStock(t *testing.T) {
	repo := newMemoryRepo(Item{ID: "profile-70", OnHand: 10, Reserved: 0})
	svc := NewService(repo, nil)
	ctx := context.Background()

	result, err := svc.Reserve(ctx, BatchRequest{JobID: "JOB-1", Lines: []Line{{ItemID: "profile-70", Qty: 4}}})
	require.NoError(t, err)
	require.True(t, result.Applied)
	require.False(t, result.RequiresConfirmation)
	require.True(t, result.Lines[0].SufficientAvailable)

	item, err := repo.GetItem(ctx, "profile-70")
	require.NoError(t, err)
	require.InDelta(t, 10, item.OnHand, 0.0001)
	require.InDelta(t, 4, item.Reserved, 0.0001)
	require.InDelta(t, 6, item.Available(), 0.0001)
}

func TestReserveShortageIsPreviewedNotApplied(t *testing.T) {
	// onHand=5, reserved=3 -> available=2; requesting 4 must report a
	// shortage of 2 against available while on-hand still covers it.
	repo := newMemoryRepo(Item{ID: "glass-4mm", OnHand: 5, Reserved: 3})
	svc := NewService(repo, nil)
	ctx := context.Background()

	result, err := svc.Reserve(ctx, BatchRequest{JobID: "JOB-Y", Lines: []Line{{ItemID: "glass-4mm", Qty: 4}}})
	require.NoError(t, err)
	require.False(t, result.Applied)
	require.True(t, result.RequiresConfirmation)

	lr := result.Lines[0]
	require.False(t, lr.SufficientAvailable)
	require.True(t, lr.SufficientOnHand)
	require.InDelta(t, 2, lr.Shortage, 0.0001)

	item, err := repo.GetItem(ctx, "glass-4mm")
	require.NoError(t, err)
	require.InDelta(t, 3, item.Reserved, 0.0001)

	// Confirmed retry applies the reservation even though it over-commits.
	result, err = svc.Reserve(ctx, BatchRequest{JobID: "JOB-Y", Lines: []Line{{ItemID: "glass-4mm", Qty: 4}}, Confirmed: true})
	require.NoError(t, err)
	require.True(t, result.Applied)

	item, err = repo.GetItem(ctx, "glass-4mm")
	require.NoError(t, err)
	require.InDelta(t, 7, item.Reserved, 0.0001)
	require.True(t, item.OverReserved())
}

func TestConsumeWorksOffReservation(t *testing.T) {
	repo := newMemoryRepo(Item{ID: "handle-std", OnHand: 20, Reserved: 8})
	svc := NewService(repo, nil)
	ctx := context.Background()

	result, err := svc.Consume(ctx, BatchRequest{JobID: "JOB-2", Lines: []Line{{ItemID: "handle-std", Qty: 5}}})
	require.NoError(t, err)
	require.True(t, result.Applied)

	item, err := repo.GetItem(ctx, "handle-std")
	require.NoError(t, err)
	require.InDelta(t, 15, item.OnHand, 0.0001)
	require.InDelta(t, 3, item.Reserved, 0.0001)
}

func TestConsumeBeyondAvailableNeedsConfirmation(t *testing.T) {
	repo := newMemoryRepo(Item{ID: "profile-58", OnHand: 10, Reserved: 9})
	svc := NewService(repo, nil)
	ctx := context.Background()

	result, err := svc.Consume(ctx, BatchRequest{JobID: "JOB-3", Lines: []Line{{ItemID: "profile-58", Qty: 4}}})
	require.NoError(t, err)
	require.False(t, result.Applied)
	require.True(t, result.RequiresConfirmation)

	shortage := Shortages(result)
	require.NotNil(t, shortage)
	require.True(t, shortage.BorrowResolves)

	result, err = svc.Consume(ctx, BatchRequest{JobID: "JOB-3", Lines: []Line{{ItemID: "profile-58", Qty: 4}}, Confirmed: true})
	require.NoError(t, err)
	require.True(t, result.Applied)

	item, err := repo.GetItem(ctx, "profile-58")
	require.NoError(t, err)
	require.InDelta(t, 6, item.OnHand, 0.0001)
	require.InDelta(t, 5, item.Reserved, 0.0001)
}

func TestBatchIsAtomic(t *testing.T) {
	repo := newMemoryRepo(Item{ID: "a", OnHand: 10}, Item{ID: "b", OnHand: 10})
	svc := NewService(repo, nil)
	ctx := context.Background()

	_, err := svc.Reserve(ctx, BatchRequest{JobID: "JOB-4", Lines: []Line{
		{ItemID: "a", Qty: 3},
		{ItemID: "missing", Qty: 1},
	}})
	require.ErrorIs(t, err, ErrItemNotFound)

	item, err := repo.GetItem(ctx, "a")
	require.NoError(t, err)
	require.InDelta(t, 0, item.Reserved, 0.0001)
}

func TestReleaseClampsAtZero(t *testing.T) {
	repo := newMemoryRepo(Item{ID: "seal-black", OnHand: 10, Reserved: 2})
	svc := NewService(repo, nil)
	ctx := context.Background()

	result, err := svc.Release(ctx, BatchRequest{JobID: "JOB-5", Lines: []Line{{ItemID: "seal-black", Qty: 5}}})
	require.NoError(t, err)
	require.True(t, result.Applied)

	item, err := repo.GetItem(ctx, "seal-black")
	require.NoError(t, err)
	require.InDelta(t, 0, item.Reserved, 0.0001)
	require.InDelta(t, 10, item.OnHand, 0.0001)
}

func TestLedgerConservationUnderConcurrency(t *testing.T) {
	repo := newMemoryRepo(Item{ID: "profile-70", OnHand: 100, Reserved: 0})
	svc := NewService(repo, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Reserve(ctx, BatchRequest{JobID: "JOB-N", Lines: []Line{{ItemID: "profile-70", Qty: 2}}})
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	item, err := repo.GetItem(ctx, "profile-70")
	require.NoError(t, err)
	require.InDelta(t, 20, item.Reserved, 0.0001)
	require.InDelta(t, 100, item.OnHand, 0.0001)

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Consume(ctx, BatchRequest{JobID: "JOB-N", Lines: []Line{{ItemID: "profile-70", Qty: 2}}})
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	item, err = repo.GetItem(ctx, "profile-70")
	require.NoError(t, err)
	require.InDelta(t, 0, item.Reserved, 0.0001)
	require.InDelta(t, 80, item.OnHand, 0.0001)
}

func TestBatchValidation(t *testing.T) {
	repo := newMemoryRepo(Item{ID: "a", OnHand: 10})
	svc := NewService(repo, nil)
	ctx := context.Background()

	_, err := svc.Reserve(ctx, BatchRequest{JobID: "JOB-6"})
	require.ErrorIs(t, err, ErrEmptyBatch)

	_, err = svc.Reserve(ctx, BatchRequest{JobID: "JOB-6", Lines: []Line{{ItemID: "a", Qty: -1}}})
	require.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = svc.Reserve(ctx, BatchRequest{JobID: "JOB-6", Lines: []Line{{ItemID: "a", Qty: 1}, {ItemID: "a", Qty: 2}}})
	require.ErrorIs(t, err, ErrDuplicateLine)
}
