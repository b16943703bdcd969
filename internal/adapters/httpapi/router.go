// Package httpapi exposes the marketplace service over JSON/HTTP. The acting
// principal is taken from the X-Principal header; the service performs all
// authorization.
package httpapi

import (
	"io"
	"log/slog"
	"net/http"

	"datamarket/internal/core"

	"github.com/go-chi/chi/v5"
)

// PrincipalHeader carries the caller identity.
const PrincipalHeader = "X-Principal"

// Handler binds HTTP routes to a core.Service.
type Handler struct {
	service *core.Service
	logger  *slog.Logger
}

// Options configures optional router collaborators.
type Options struct {
	Logger  *slog.Logger
	Metrics http.Handler
}

// NewHandler wraps service.
func NewHandler(service *core.Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Handler{service: service, logger: logger}
}

// NewRouter builds the route table.
func NewRouter(service *core.Service, opts Options) http.Handler {
	h := NewHandler(service, opts.Logger)
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(h.recoverMiddleware)
	r.Use(h.loggingMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { writeJSON(w, http.StatusOK, map[string]string{"status": "ok"}) })
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	r.Route("/platform", func(r chi.Router) {
		r.Get("/", h.getPlatform)
		r.Post("/", h.initializePlatform)
		r.Patch("/", h.updatePlatform)
	})

	r.Route("/datasets", func(r chi.Router) {
		r.Get("/", h.listDatasets)
		r.Post("/", h.registerDataset)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.getDataset)
			r.Patch("/", h.updateDataset)
			r.Delete("/", h.closeDataset)
			r.Put("/hash", h.updateHash)
			r.Post("/verification", h.verifyDataset)
			r.Get("/purchases", h.listPurchases)
			r.Post("/purchases", h.purchase)
			r.Get("/access", h.verifyAccess)
			r.Post("/access", h.recordAccess)
		})
	})

	r.Get("/purchases/{id}", h.getPurchase)

	r.Route("/balances/{principal}", func(r chi.Router) {
		r.Get("/", h.getBalance)
		r.Post("/deposits", h.deposit)
		r.Post("/withdrawals", h.withdraw)
	})

	r.Get("/ledger", h.getLedger)
	r.Get("/events", h.listEvents)
	return r
}
