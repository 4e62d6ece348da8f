package assembly

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgRepository stores the task aggregate as a JSONB document.
type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func (r *PgRepository) Get(ctx context.Context, id string) (*Task, error) {
	var doc []byte
	err := r.pool.QueryRow(ctx,
		`SELECT doc FROM assembly_tasks WHERE id = $1`, id,
	).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query task: %w", err)
	}
	return decodeTask(doc)
}

func (r *PgRepository) ListByJob(ctx context.Context, jobID string) ([]*Task, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT doc FROM assembly_tasks WHERE job_id = $1 ORDER BY role_id, stage_index`, jobID)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		task, err := decodeTask(doc)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

func (r *PgRepository) InsertBatch(ctx context.Context, tasks []*Task) error {
	batch := &pgx.Batch{}
	for _, task := range tasks {
		doc, err := json.Marshal(task)
		if err != nil {
			return fmt.Errorf("encode task: %w", err)
		}
		batch.Queue(`
			INSERT INTO assembly_tasks
				(id, job_id, role_id, stage_index, status, doc, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			task.ID, task.JobID, task.RoleID, task.StageIndex,
			string(task.Status), doc, task.CreatedAt, task.UpdatedAt)
	}
	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range tasks {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("insert task: %w", err)
		}
	}
	return nil
}

func (r *PgRepository) Update(ctx context.Context, task *Task) error {
	doc, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("encode task: %w", err)
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE assembly_tasks
		SET status = $2, doc = $3, updated_at = $4
		WHERE id = $1`,
		task.ID, string(task.Status), doc, task.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTaskNotFound
	}
	return nil
}

func decodeTask(doc []byte) (*Task, error) {
	var task Task
	if err := json.Unmarshal(doc, &task); err != nil {
		return nil, fmt.Errorf("decode task: %w", err)
	}
	return &task, nil
}
