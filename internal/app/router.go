package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/fenestra-erp/fenestra-erp/internal/activity"
	"github.com/fenestra-erp/fenestra-erp/internal/assembly"
	"github.com/fenestra-erp/fenestra-erp/internal/catalog"
	"github.com/fenestra-erp/fenestra-erp/internal/documents"
	"github.com/fenestra-erp/fenestra-erp/internal/jobs"
	"github.com/fenestra-erp/fenestra-erp/internal/observability"
	"github.com/fenestra-erp/fenestra-erp/internal/production"
	"github.com/fenestra-erp/fenestra-erp/internal/stock"
)

// RouterParams groups the handlers mounted on the HTTP router.
type RouterParams struct {
	Config            *Config
	Logger            *slog.Logger
	JobHandler        *jobs.Handler
	StockHandler      *stock.Handler
	ProductionHandler *production.Handler
	AssemblyHandler   *assembly.Handler
	CatalogHandler    *catalog.Handler
	ActivityHandler   *activity.Handler
	DocumentHandler   *documents.Handler
	Metrics           *observability.Metrics
}

// NewRouter constructs the chi.Router with the default middleware stack and
// every module mounted under its own prefix.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}
	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/jobs", params.JobHandler.MountRoutes)
	r.Route("/stock", params.StockHandler.MountRoutes)
	r.Route("/production", params.ProductionHandler.MountRoutes)
	r.Route("/assembly", params.AssemblyHandler.MountRoutes)
	r.Route("/catalog", params.CatalogHandler.MountRoutes)
	r.Route("/activity", params.ActivityHandler.MountRoutes)
	r.Route("/documents", params.DocumentHandler.MountRoutes)

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
