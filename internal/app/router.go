package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/stockbackbone/stockbackbone/internal/ledger"
	"github.com/stockbackbone/stockbackbone/internal/reconcile"
	"github.com/stockbackbone/stockbackbone/internal/registry"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	RegistryHandler  *registry.Handler
	ReconcileHandler *reconcile.Handler
	LedgerHandler    *ledger.Handler
}

// NewRouter constructs the chi.Router with application defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	params.RegistryHandler.MountRoutes(r)
	params.ReconcileHandler.MountRoutes(r)
	params.LedgerHandler.MountRoutes(r)

	return r
}
