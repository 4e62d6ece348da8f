// Package activity persists the append-only job activity log.
package activity

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Entry represents one record in the job activity log.
type Entry struct {
	ID     int64          `json:"id"`
	JobID  string         `json:"job_id"`
	Action string         `json:"action"`
	Detail string         `json:"detail"`
	Meta   map[string]any `json:"meta,omitempty"`
	At     time.Time      `json:"at"`
}

// Logger writes entries into job_activity_log.
type Logger struct {
	pool *pgxpool.Pool
}

// NewLogger returns a new Logger.
func NewLogger(pool *pgxpool.Pool) *Logger {
	return &Logger{pool: pool}
}

// Append persists the log entry. The caller treats failures as non-fatal:
// logging never aborts a job transition.
func (l *Logger) Append(ctx context.Context, entry Entry) error {
	if l == nil || l.pool == nil {
		return errors.New("activity logger not initialised")
	}
	if entry.JobID == "" || entry.Action == "" {
		return errors.New("activity log requires job id and action")
	}
	metaJSON, err := json.Marshal(entry.Meta)
	if err != nil {
		return err
	}
	at := entry.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	_, err = l.pool.Exec(ctx,
		`INSERT INTO job_activity_log (job_id, action, detail, meta, occurred_at) VALUES ($1, $2, $3, $4, $5)`,
		entry.JobID, entry.Action, entry.Detail, metaJSON, at)
	return err
}

// ListByJob returns the ordered log for one job, oldest first.
func (l *Logger) ListByJob(ctx context.Context, jobID string) ([]Entry, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT id, job_id, action, detail, meta, occurred_at FROM job_activity_log WHERE job_id = $1 ORDER BY occurred_at, id`,
		jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var metaJSON []byte
		if err := rows.Scan(&e.ID, &e.JobID, &e.Action, &e.Detail, &metaJSON, &e.At); err != nil {
			return nil, err
		}
		if len(metaJSON) > 0 {
			_ = json.Unmarshal(metaJSON, &e.Meta)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
