package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tallybooks/tallybooks/internal/observability"
	"github.com/tallybooks/tallybooks/internal/platform/httpx"
	"github.com/tallybooks/tallybooks/internal/rbac"
)

// RouteMounter is implemented by every company-scoped handler.
type RouteMounter interface {
	MountRoutes(r chi.Router)
}

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	RBACMiddleware rbac.Middleware
	Company        []RouteMounter
	Jobs           RouteMounter
	Metrics        *observability.Metrics
	Health         func(r *http.Request) error
}

// NewRouter constructs the chi.Router with the API defaults. Ledger routes
// live under /companies/{companyID} behind the company access check.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if params.Health != nil {
			if err := params.Health(r); err != nil {
				params.Logger.Warn("health check", slog.Any("error", err))
				httpx.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
				return
			}
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/companies/{companyID}", func(r chi.Router) {
		if params.RBACMiddleware.Service != nil {
			r.Use(params.RBACMiddleware.RequireCompanyAccess, params.RBACMiddleware.RequireWriter)
		}
		for _, h := range params.Company {
			if h != nil {
				h.MountRoutes(r)
			}
		}
	})

	if params.Jobs != nil {
		r.Route("/jobs", params.Jobs.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	return r
}
