package tasks

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/fenestra-erp/fenestra-erp/internal/activity"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskActivityAppend persists one activity log entry.
	TaskActivityAppend = "activity:append"
	// TaskProductionOverdueScan re-evaluates overdue production orders.
	TaskProductionOverdueScan = "production:overdue_scan"
)

// NewActivityAppendTask constructs an Asynq task carrying one log entry.
func NewActivityAppendTask(entry activity.Entry) (*asynq.Task, error) {
	data, err := json.Marshal(entry)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskActivityAppend, data, asynq.Queue(QueueDefault)), nil
}

// NewProductionOverdueScanTask constructs the periodic overdue scan task.
func NewProductionOverdueScanTask() *asynq.Task {
	return asynq.NewTask(TaskProductionOverdueScan, nil, asynq.Queue(QueueDefault))
}

// ActivityAppendHandler processes TaskActivityAppend tasks.
func ActivityAppendHandler(logger *activity.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var entry activity.Entry
		if err := json.Unmarshal(t.Payload(), &entry); err != nil {
			return asynq.SkipRetry
		}
		return logger.Append(ctx, entry)
	}
}

// OverdueScanner lists orders past their estimated delivery.
type OverdueScanner interface {
	ScanOverdue(ctx context.Context) (int, error)
}

// ProductionOverdueScanHandler processes TaskProductionOverdueScan tasks.
func ProductionOverdueScanHandler(scanner OverdueScanner, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		count, err := scanner.ScanOverdue(ctx)
		if err != nil {
			return err
		}
		if count > 0 {
			logger.Warn("overdue production orders", slog.Int("count", count))
		}
		return nil
	}
}
