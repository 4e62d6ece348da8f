package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/fenestra-erp/fenestra-erp/internal/activity"
	"github.com/fenestra-erp/fenestra-erp/internal/app"
	"github.com/fenestra-erp/fenestra-erp/internal/assembly"
	"github.com/fenestra-erp/fenestra-erp/internal/catalog"
	"github.com/fenestra-erp/fenestra-erp/internal/documents"
	"github.com/fenestra-erp/fenestra-erp/internal/jobs"
	"github.com/fenestra-erp/fenestra-erp/internal/observability"
	"github.com/fenestra-erp/fenestra-erp/internal/platform/cache"
	"github.com/fenestra-erp/fenestra-erp/internal/platform/db"
	"github.com/fenestra-erp/fenestra-erp/internal/production"
	"github.com/fenestra-erp/fenestra-erp/internal/stock"
	"github.com/fenestra-erp/fenestra-erp/internal/tasks"
)

// rolesPort breaks the construction cycle between the job service and the
// production aggregator: production needs the job's role requirements, the
// job service needs production's readiness gate.
type rolesPort struct {
	jobs *jobs.Service
}

func (p *rolesPort) RequiredRoles(ctx context.Context, jobID string) ([]production.RequiredRole, error) {
	return p.jobs.RequiredRoles(ctx, jobID)
}

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := asynqClient.Close(); err != nil {
			logger.Warn("asynq close", slog.Any("error", err))
		}
	}()

	// Transitions enqueue log entries; the worker persists them.
	recorder := activity.NewRecorder(tasks.NewAsyncSink(asynqClient, logger), logger)
	activityLog := activity.NewLogger(pool)

	catalogService := catalog.NewService(catalog.NewRepository(pool), redisClient, cfg.CatalogTTL)
	tagStore := documents.NewTagStore(pool)

	stockService := stock.NewService(stock.NewRepository(pool), logger)

	roles := &rolesPort{}
	productionService := production.NewService(production.NewPgRepository(pool), roles, recorder, logger)
	assemblyService := assembly.NewService(assembly.NewPgRepository(pool), catalogService, recorder, logger)

	jobService := jobs.NewService(
		jobs.NewPgRepository(pool),
		tagStore,
		stockService,
		productionService,
		assemblyService,
		catalogService,
		recorder,
		logger,
	)
	roles.jobs = jobService

	metrics := observability.NewMetrics()

	router := app.NewRouter(app.RouterParams{
		Config:            cfg,
		Logger:            logger,
		JobHandler:        jobs.NewHandler(logger, jobService),
		StockHandler:      stock.NewHandler(logger, stockService),
		ProductionHandler: production.NewHandler(logger, productionService),
		AssemblyHandler:   assembly.NewHandler(logger, assemblyService),
		CatalogHandler:    catalog.NewHandler(logger, catalogService),
		ActivityHandler:   activity.NewHandler(logger, activityLog),
		DocumentHandler:   documents.NewHandler(logger, tagStore),
		Metrics:           metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
