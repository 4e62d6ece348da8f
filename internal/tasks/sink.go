package tasks

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/fenestra-erp/fenestra-erp/internal/activity"
)

// AsyncSink enqueues activity log entries for the worker instead of writing
// them inline, so a slow or failing log store can never block a transition.
type AsyncSink struct {
	client *asynq.Client
	logger *slog.Logger
}

// NewAsyncSink builds the sink around an Asynq client.
func NewAsyncSink(client *asynq.Client, logger *slog.Logger) *AsyncSink {
	return &AsyncSink{client: client, logger: logger}
}

// Append enqueues the entry. Enqueue failures are logged and swallowed.
func (s *AsyncSink) Append(ctx context.Context, entry activity.Entry) error {
	task, err := NewActivityAppendTask(entry)
	if err != nil {
		s.logger.Warn("activity task marshal failed", slog.Any("error", err))
		return nil
	}
	if _, err := s.client.EnqueueContext(ctx, task); err != nil {
		s.logger.Warn("activity enqueue failed", slog.String("job_id", entry.JobID), slog.Any("error", err))
	}
	return nil
}
