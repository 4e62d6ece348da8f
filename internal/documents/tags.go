// Package documents records document type tags per job. The engine never
// touches file bytes; it only checks tag presence for stage guards, e.g.
// "measure_pvc" or "drawing_pvc" before pricing a customer-measured job.
package documents

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MeasureTag returns the tag recorded when a measurement file is uploaded
// for the given role key.
func MeasureTag(roleKey string) string {
	return fmt.Sprintf("measure_%s", roleKey)
}

// DrawingTag returns the tag recorded for a technical drawing.
func DrawingTag(roleKey string) string {
	return fmt.Sprintf("drawing_%s", roleKey)
}

// TagStore persists document type tags in PostgreSQL.
type TagStore struct {
	pool *pgxpool.Pool
}

// NewTagStore constructs TagStore.
func NewTagStore(pool *pgxpool.Pool) *TagStore {
	return &TagStore{pool: pool}
}

// Record registers a tag for a job. Duplicate tags are ignored.
func (s *TagStore) Record(ctx context.Context, jobID, tag string) error {
	if jobID == "" || tag == "" {
		return errors.New("documents: job id and tag required")
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO job_document_tags (job_id, tag, recorded_at) VALUES ($1, $2, $3)`,
		jobID, tag, time.Now().UTC())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil
		}
		return err
	}
	return nil
}

// Remove deletes a tag, used when the underlying document is removed.
func (s *TagStore) Remove(ctx context.Context, jobID, tag string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM job_document_tags WHERE job_id = $1 AND tag = $2`, jobID, tag)
	return err
}

// HasTag reports whether the tag is recorded for the job.
func (s *TagStore) HasTag(ctx context.Context, jobID, tag string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM job_document_tags WHERE job_id = $1 AND tag = $2)`,
		jobID, tag).Scan(&exists)
	return exists, err
}

// ListTags returns all tags recorded for a job.
func (s *TagStore) ListTags(ctx context.Context, jobID string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT tag FROM job_document_tags WHERE job_id = $1 ORDER BY recorded_at`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tags []string
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, err
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}
