package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/lodestar-scm/lodestar/internal/ledger"
	"github.com/lodestar-scm/lodestar/internal/observability"
	"github.com/lodestar-scm/lodestar/internal/payreq"
	"github.com/lodestar-scm/lodestar/internal/recon"
	"github.com/lodestar-scm/lodestar/internal/sourcing"
	"github.com/lodestar-scm/lodestar/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger          *slog.Logger
	Config          *Config
	PaymentHandler  *payreq.Handler
	SourcingHandler *sourcing.Handler
	ReconHandler    *recon.Handler
	LedgerHandler   *ledger.Handler
	JobHandler      *jobs.Handler
	Metrics         *observability.Metrics
}

// NewRouter constructs the chi.Router with Lodestar defaults.
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

	r.Route("/payment-requests", params.PaymentHandler.MountRoutes)
	if params.SourcingHandler != nil {
		r.Route("/sourcing", params.SourcingHandler.MountRoutes)
	}
	if params.ReconHandler != nil {
		r.Route("/recon", params.ReconHandler.MountRoutes)
	}
	if params.LedgerHandler != nil {
		r.Route("/ledger", params.LedgerHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
