// Package api serves the query HTTP API.
//
// Routes:
//
//	GET  /                                  service banner
//	GET  /health                            liveness plus data/LLM status
//	POST /api/search                        natural-language product search
//	GET  /api/products/{id}                 product details
//	GET  /api/products/{id}/sales?days=90   daily sales history
//	GET  /api/products/{id}/forecast?days=30
//	GET  /api/products/{id}/segments
//	GET  /api/products/{id}/insights
//	GET  /api/dataset                       current generation manifest
//	POST /api/admin/reload                  reload the current generation
//	GET  /metrics                           Prometheus metrics
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/eunmann/shopsight/internal/metrics"
	"github.com/eunmann/shopsight/pkg/llm"
	"github.com/eunmann/shopsight/pkg/query"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// Currency values are emitted as JSON numbers.
func init() {
	decimal.MarshalJSONWithoutQuotes = true
}

// Assistant produces prose insights.
type Assistant interface {
	Summarize(ctx context.Context, in llm.SummaryInput) llm.Insights
	Configured() bool
}

// Options wires the router.
type Options struct {
	Query       *query.Service
	Searcher    *query.Searcher
	Assistant   Assistant
	CORSOrigins []string
	// RateLimit is requests per minute per client IP; 0 disables limiting.
	RateLimit int
	Version   string
}

type handler struct {
	opts     Options
	validate *validator.Validate
}

// NewRouter builds the HTTP handler.
func NewRouter(opts Options) http.Handler {
	h := &handler{opts: opts, validate: validator.New()}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:         86400,
	}))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		respondError(w, http.StatusNotFound, "not_found", "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		respondError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})

	r.Get("/", h.root)
	r.Get("/health", h.health)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		if opts.RateLimit > 0 {
			r.Use(httprate.LimitByIP(opts.RateLimit, time.Minute))
		}
		r.Post("/search", h.search)
		r.Get("/dataset", h.dataset)
		r.Post("/admin/reload", h.reload)
		r.Route("/products/{id}", func(r chi.Router) {
			r.Get("/", h.product)
			r.Get("/sales", h.sales)
			r.Get("/forecast", h.forecast)
			r.Get("/segments", h.segments)
			r.Get("/insights", h.insights)
		})
	})
	return r
}
