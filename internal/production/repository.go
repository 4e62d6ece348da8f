package production

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgRepository stores the order aggregate as a JSONB document with the
// filterable fields denormalized into columns.
type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func (r *PgRepository) Get(ctx context.Context, id string) (*Order, error) {
	var doc []byte
	err := r.pool.QueryRow(ctx,
		`SELECT doc FROM production_orders WHERE id = $1`, id,
	).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}
	return decodeOrder(doc)
}

func (r *PgRepository) List(ctx context.Context, filter Filter) ([]*Order, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, value any) {
		args = append(args, value)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.JobID != "" {
		add("job_id = $%d", filter.JobID)
	}
	if filter.RoleID != "" {
		add("role_id = $%d", filter.RoleID)
	}
	if filter.Type != "" {
		add("order_type = $%d", string(filter.Type))
	}
	if filter.Status != "" {
		add("status = $%d", string(filter.Status))
	}
	if filter.SupplierID != "" {
		add("supplier_id = $%d", filter.SupplierID)
	}
	if filter.Overdue {
		conds = append(conds, "estimated_delivery IS NOT NULL AND estimated_delivery < now() AND status <> 'completed'")
	}

	query := `SELECT doc FROM production_orders`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var orders []*Order
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		order, err := decodeOrder(doc)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

func (r *PgRepository) Insert(ctx context.Context, order *Order) error {
	doc, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("encode order: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO production_orders
			(id, job_id, role_id, order_type, supplier_id, status, estimated_delivery, doc, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, $9, $10)`,
		order.ID, order.JobID, order.RoleID, string(order.Type), order.SupplierID,
		string(order.Status), order.EstimatedDelivery, doc, order.CreatedAt, order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (r *PgRepository) Update(ctx context.Context, order *Order) error {
	doc, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("encode order: %w", err)
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE production_orders
		SET supplier_id = NULLIF($2, ''), status = $3, estimated_delivery = $4, doc = $5, updated_at = $6
		WHERE id = $1`,
		order.ID, order.SupplierID, string(order.Status), order.EstimatedDelivery, doc, order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (r *PgRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM production_orders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func decodeOrder(doc []byte) (*Order, error) {
	var order Order
	if err := json.Unmarshal(doc, &order); err != nil {
		return nil, fmt.Errorf("decode order: %w", err)
	}
	return &order, nil
}
