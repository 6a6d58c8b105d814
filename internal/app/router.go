package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tindahan-erp/tindahan-erp/internal/inventory"
	"github.com/tindahan-erp/tindahan-erp/internal/ledger/accounts"
	"github.com/tindahan-erp/tindahan-erp/internal/ledger/journal"
	"github.com/tindahan-erp/tindahan-erp/internal/postings"
	"github.com/tindahan-erp/tindahan-erp/internal/purchasing"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	AccountsHandler   *accounts.Handler
	JournalHandler    *journal.Handler
	InventoryHandler  *inventory.Handler
	PurchasingHandler *purchasing.Handler
	PostingsHandler   *postings.Handler
}

// NewRouter constructs the chi.Router with the API surface.
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
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/accounts", params.AccountsHandler.MountRoutes)
		r.Route("/journal-entries", params.JournalHandler.MountRoutes)
		r.Route("/products", params.InventoryHandler.MountRoutes)
		r.Route("/purchase-orders", func(r chi.Router) {
			params.PurchasingHandler.MountRoutes(r)
			// Receiving mutates stock and the book; it belongs to the
			// coordinator, not the purchasing service.
			r.Post("/{id}/receive", params.PostingsHandler.Receive)
		})
		r.Route("/sales", params.PostingsHandler.MountSales)
		r.Post("/stock-adjustments", params.PostingsHandler.Adjust)
	})

	return r
}
