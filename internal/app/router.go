package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/numera-app/numera/internal/auth"
	"github.com/numera-app/numera/internal/invoicing"
	"github.com/numera-app/numera/internal/numbering/counter"
	"github.com/numera-app/numera/internal/numbering/scheme"
	"github.com/numera-app/numera/internal/observability"
	"github.com/numera-app/numera/internal/sellers"
	"github.com/numera-app/numera/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger          *slog.Logger
	Config          *Config
	KeyAuth         *auth.KeyAuth
	SellersHandler  *sellers.Handler
	SchemeHandler   *scheme.Handler
	InvoiceHandler  *invoicing.Handler
	CountersHandler *counter.Handler
	JobsHandler     *jobs.Handler
	Metrics         *observability.Metrics
}

// NewRouter constructs the chi.Router with Numera defaults.
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
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Group(func(r chi.Router) {
		r.Use(params.KeyAuth.Require(auth.RoleService))
		if params.SellersHandler != nil {
			r.Route("/sellers", params.SellersHandler.MountRoutes)
		}
		if params.SchemeHandler != nil {
			r.Route("/numbering/schemes", params.SchemeHandler.MountRoutes)
		}
		if params.InvoiceHandler != nil {
			r.Route("/invoices", params.InvoiceHandler.MountRoutes)
		}
	})

	r.Group(func(r chi.Router) {
		r.Use(params.KeyAuth.Require(auth.RoleAdmin))
		if params.CountersHandler != nil {
			r.Route("/internal/invoice-counters", params.CountersHandler.MountRoutes)
		}
		if params.JobsHandler != nil {
			r.Route("/internal/jobs", params.JobsHandler.MountRoutes)
		}
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
