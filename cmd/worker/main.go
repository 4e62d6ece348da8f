package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/fenestra-erp/fenestra-erp/internal/activity"
	"github.com/fenestra-erp/fenestra-erp/internal/app"
	"github.com/fenestra-erp/fenestra-erp/internal/platform/db"
	"github.com/fenestra-erp/fenestra-erp/internal/production"
	"github.com/fenestra-erp/fenestra-erp/internal/tasks"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	activityLog := activity.NewLogger(pool)

	// The overdue scan only reads and logs; it carries no roles port or sink.
	productionService := production.NewService(production.NewPgRepository(pool), nil, nil, logger)

	worker, err := tasks.NewWorker(tasks.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []tasks.TaskHandler{
			{Type: tasks.TaskActivityAppend, Handler: tasks.ActivityAppendHandler(activityLog)},
			{Type: tasks.TaskProductionOverdueScan, Handler: tasks.ProductionOverdueScanHandler(productionService, logger)},
		},
		Cron: []tasks.CronRegistration{
			{Spec: "0 6 * * *", Task: tasks.NewProductionOverdueScanTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
