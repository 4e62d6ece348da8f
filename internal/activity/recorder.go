package activity

import (
	"context"
	"log/slog"
	"time"
)

// Sink accepts entries for persistence, directly or via the task queue.
type Sink interface {
	Append(ctx context.Context, entry Entry) error
}

// Recorder adapts a Sink to the fire-and-forget signature the business
// services use. Failures are logged and swallowed: logging never aborts a
// job transition.
type Recorder struct {
	sink   Sink
	logger *slog.Logger
}

func NewRecorder(sink Sink, logger *slog.Logger) *Recorder {
	return &Recorder{sink: sink, logger: logger}
}

func (r *Recorder) Append(ctx context.Context, jobID, action, detail string, meta map[string]any) {
	if r == nil || r.sink == nil {
		return
	}
	entry := Entry{
		JobID:  jobID,
		Action: action,
		Detail: detail,
		Meta:   meta,
		At:     time.Now().UTC(),
	}
	if err := r.sink.Append(ctx, entry); err != nil {
		r.logger.Warn("activity log append failed",
			slog.String("job_id", jobID),
			slog.String("action", action),
			slog.Any("error", err))
	}
}
