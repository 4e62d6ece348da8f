package stock

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fenestra-erp/fenestra-erp/internal/platform/db"
)

// Repository persists the ledger in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

const itemColumns = `id, name, product_code, COALESCE(color_code, ''), unit, on_hand, reserved, updated_at`

func scanItem(row pgx.Row) (Item, error) {
	var item Item
	err := row.Scan(&item.ID, &item.Name, &item.ProductCode, &item.ColorCode, &item.Unit, &item.OnHand, &item.Reserved, &item.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Item{}, ErrItemNotFound
	}
	return item, err
}

// GetItem returns one stock item.
func (r *Repository) GetItem(ctx context.Context, itemID string) (Item, error) {
	return scanItem(r.pool.QueryRow(ctx, `SELECT `+itemColumns+` FROM stock_items WHERE id = $1`, itemID))
}

// ListItems returns all stock items ordered by name.
func (r *Repository) ListItems(ctx context.Context) ([]Item, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+itemColumns+` FROM stock_items ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// ListMovements returns the newest ledger entries for one item.
func (r *Repository) ListMovements(ctx context.Context, itemID string, limit int) ([]Movement, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, item_id, job_id, kind, qty, COALESCE(note, ''), occurred_at
		 FROM stock_movements WHERE item_id = $1 ORDER BY occurred_at DESC, id DESC LIMIT $2`,
		itemID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var movements []Movement
	for rows.Next() {
		var m Movement
		if err := rows.Scan(&m.ID, &m.ItemID, &m.JobID, &m.Kind, &m.Qty, &m.Note, &m.At); err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

// GetItemForUpdate locks the item row for the duration of the transaction.
func (r *txRepo) GetItemForUpdate(ctx context.Context, itemID string) (Item, error) {
	return scanItem(r.tx.QueryRow(ctx, `SELECT `+itemColumns+` FROM stock_items WHERE id = $1 FOR UPDATE`, itemID))
}

// UpdateItemQuantities writes the new on-hand/reserved pair.
func (r *txRepo) UpdateItemQuantities(ctx context.Context, itemID string, onHand, reserved float64) error {
	tag, err := r.tx.Exec(ctx,
		`UPDATE stock_items SET on_hand = $2, reserved = $3, updated_at = $4 WHERE id = $1`,
		itemID, onHand, reserved, time.Now().UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

// InsertMovement appends one ledger entry.
func (r *txRepo) InsertMovement(ctx context.Context, m Movement) error {
	_, err := r.tx.Exec(ctx,
		`INSERT INTO stock_movements (item_id, job_id, kind, qty, note, occurred_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		m.ItemID, m.JobID, m.Kind, m.Qty, m.Note, m.At)
	return err
}
