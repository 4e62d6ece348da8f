package catalog

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository loads reference data from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Roles returns all work roles with their assembly stages.
func (r *Repository) Roles(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, key, name, requires_glass, COALESCE(default_supplier_id, ''), COALESCE(assembly_stages, '[]') FROM catalog_roles ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []Role
	for rows.Next() {
		var role Role
		var stagesJSON []byte
		if err := rows.Scan(&role.ID, &role.Key, &role.Name, &role.RequiresGlass, &role.DefaultSupplierID, &stagesJSON); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(stagesJSON, &role.AssemblyStages); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// Suppliers returns all suppliers.
func (r *Repository) Suppliers(ctx context.Context) ([]Supplier, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, kind, COALESCE(phone, '') FROM catalog_suppliers ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var suppliers []Supplier
	for rows.Next() {
		var s Supplier
		if err := rows.Scan(&s.ID, &s.Name, &s.Kind, &s.Phone); err != nil {
			return nil, err
		}
		suppliers = append(suppliers, s)
	}
	return suppliers, rows.Err()
}

// Codes returns one coded enumeration set (cancel_reason, issue_type, fault_source).
func (r *Repository) Codes(ctx context.Context, kind string) ([]LabeledCode, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT code, label FROM catalog_codes WHERE kind = $1 ORDER BY label`, kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var codes []LabeledCode
	for rows.Next() {
		var c LabeledCode
		if err := rows.Scan(&c.Code, &c.Label); err != nil {
			return nil, err
		}
		codes = append(codes, c)
	}
	return codes, rows.Err()
}
