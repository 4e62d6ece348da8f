package stock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/fenestra-erp/fenestra-erp/internal/shared"
)

// RepositoryPort abstracts repository usage for the ledger service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetItem(ctx context.Context, itemID string) (Item, error)
	ListItems(ctx context.Context) ([]Item, error)
	ListMovements(ctx context.Context, itemID string, limit int) ([]Movement, error)
}

// TxRepository exposes the transactional operations one batch uses.
type TxRepository interface {
	GetItemForUpdate(ctx context.Context, itemID string) (Item, error)
	UpdateItemQuantities(ctx context.Context, itemID string, onHand, reserved float64) error
	InsertMovement(ctx context.Context, m Movement) error
}

// BatchRequest is a multi-line reserve/consume/release request. Confirmed
// authorises borrowing against other jobs' reservations; without it a batch
// with shortages is returned as a preview and nothing is written.
type BatchRequest struct {
	JobID     string
	Lines     []Line
	Note      string
	Confirmed bool
}

// Service is the stock ledger. All quantity updates go through it; each
// batch holds the per-item locks for its full duration so the "all lines or
// none" contract survives concurrent callers.
type Service struct {
	repo   RepositoryPort
	locks  *itemLocks
	logger *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, locks: newItemLocks(), logger: logger}
}

// GetItem returns one stock item.
func (s *Service) GetItem(ctx context.Context, itemID string) (Item, error) {
	return s.repo.GetItem(ctx, itemID)
}

// ListItems returns all stock items.
func (s *Service) ListItems(ctx context.Context) ([]Item, error) {
	return s.repo.ListItems(ctx)
}

// ListMovements returns recent ledger entries for one item.
func (s *Service) ListMovements(ctx context.Context, itemID string, limit int) ([]Movement, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.repo.ListMovements(ctx, itemID, limit)
}

// Reserve places soft holds. It never fails on shortage: when a line cannot
// be covered from available stock the result carries the shortage and, if
// the request was not confirmed, nothing is written.
func (s *Service) Reserve(ctx context.Context, req BatchRequest) (BatchResult, error) {
	return s.apply(ctx, req, MovementReserve)
}

// Consume commits previously reserved (or unreserved) stock: on-hand drops
// by the consumed quantity and the job's reservation is worked off down to
// zero. Consuming past available eats into another job's reservation and
// therefore demands a confirmed request.
func (s *Service) Consume(ctx context.Context, req BatchRequest) (BatchResult, error) {
	return s.apply(ctx, req, MovementConsume)
}

// Release returns reservations without consuming. Never requires
// confirmation; releasing more than is reserved clamps at zero.
func (s *Service) Release(ctx context.Context, req BatchRequest) (BatchResult, error) {
	req.Confirmed = true
	return s.apply(ctx, req, MovementRelease)
}

func validateBatch(req BatchRequest) error {
	if len(req.Lines) == 0 {
		return ErrEmptyBatch
	}
	seen := make(map[string]struct{}, len(req.Lines))
	for _, line := range req.Lines {
		if line.Qty <= 0 {
			return fmt.Errorf("%w: item %s", ErrInvalidQuantity, line.ItemID)
		}
		if _, ok := seen[line.ItemID]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateLine, line.ItemID)
		}
		seen[line.ItemID] = struct{}{}
	}
	return nil
}

func (s *Service) apply(ctx context.Context, req BatchRequest, kind MovementKind) (BatchResult, error) {
	if err := validateBatch(req); err != nil {
		return BatchResult{}, err
	}
	itemIDs := make([]string, len(req.Lines))
	for i, line := range req.Lines {
		itemIDs[i] = line.ItemID
	}
	release := s.locks.acquire(itemIDs)
	defer release()

	result, err := s.applyLocked(ctx, req, kind)
	if err != nil && isSerializationFailure(err) {
		// Retried once per contract, then surfaced as a conflict.
		result, err = s.applyLocked(ctx, req, kind)
		if err != nil && isSerializationFailure(err) {
			return BatchResult{}, &shared.ConcurrencyConflict{ItemIDs: itemIDs}
		}
	}
	return result, err
}

func (s *Service) applyLocked(ctx context.Context, req BatchRequest, kind MovementKind) (BatchResult, error) {
	result := BatchResult{JobID: req.JobID}
	now := time.Now().UTC()

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		items := make([]Item, len(req.Lines))
		for i, line := range req.Lines {
			item, err := tx.GetItemForUpdate(ctx, line.ItemID)
			if err != nil {
				return err
			}
			items[i] = item
			result.Lines = append(result.Lines, evaluateLine(item, line.Qty))
		}

		if kind != MovementRelease {
			for _, lr := range result.Lines {
				if !lr.SufficientAvailable {
					result.RequiresConfirmation = true
					break
				}
			}
			if result.RequiresConfirmation && !req.Confirmed {
				// Preview only: the caller has to confirm borrowing.
				return nil
			}
		}

		for i, line := range req.Lines {
			item := items[i]
			onHand, reserved := item.OnHand, item.Reserved
			switch kind {
			case MovementReserve:
				reserved += line.Qty
			case MovementConsume:
				onHand = math.Max(0, onHand-line.Qty)
				reserved = math.Max(0, reserved-line.Qty)
			case MovementRelease:
				reserved = math.Max(0, reserved-line.Qty)
			}
			if err := tx.UpdateItemQuantities(ctx, item.ID, onHand, reserved); err != nil {
				return err
			}
			if err := tx.InsertMovement(ctx, Movement{
				ItemID: item.ID,
				JobID:  req.JobID,
				Kind:   kind,
				Qty:    line.Qty,
				Note:   req.Note,
				At:     now,
			}); err != nil {
				return err
			}
			if reserved > onHand && s.logger != nil {
				s.logger.Warn("reserved exceeds on-hand",
					slog.String("item_id", item.ID),
					slog.Float64("on_hand", onHand),
					slog.Float64("reserved", reserved))
			}
		}
		result.Applied = true
		return nil
	})
	if err != nil {
		return BatchResult{}, err
	}
	return result, nil
}

func evaluateLine(item Item, qty float64) LineResult {
	lr := LineResult{
		ItemID:              item.ID,
		Requested:           qty,
		SufficientAvailable: qty <= item.Available(),
		SufficientOnHand:    qty <= item.OnHand,
	}
	if !lr.SufficientAvailable {
		lr.Shortage = qty - item.Available()
	}
	if !lr.SufficientOnHand {
		lr.OnHandShortage = qty - item.OnHand
	}
	return lr
}

// Shortages converts a preview result into the advisory error the job
// guards surface when entering production.
func Shortages(result BatchResult) *shared.InsufficientStock {
	var out shared.InsufficientStock
	for _, lr := range result.Lines {
		if lr.SufficientAvailable {
			continue
		}
		out.Lines = append(out.Lines, shared.StockShortage{
			ItemID:         lr.ItemID,
			Requested:      lr.Requested,
			Shortage:       lr.Shortage,
			OnHandShortage: lr.OnHandShortage,
		})
	}
	if len(out.Lines) == 0 {
		return nil
	}
	out.BorrowResolves = true
	for _, lr := range result.Lines {
		if !lr.SufficientOnHand {
			out.BorrowResolves = false
			break
		}
	}
	return &out
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// 40001 serialization_failure, 40P01 deadlock_detected
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}
