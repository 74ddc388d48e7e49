package http

import (
	"net/http"
	"time"

	"github.com/fjod/cheeseshop/internal/identity"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type RouterConfig struct {
	Handler        *StorefrontHandler
	Identity       identity.Generator
	RequestTimeout time.Duration
	MaxBodySize    int64
	// Instrument wraps every request, e.g. with request metrics. Optional.
	Instrument func(http.Handler) http.Handler
	// Metrics serves /metrics when set.
	Metrics http.Handler
}

func NewRouter(cfg RouterConfig) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestIDMiddleware)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	if cfg.MaxBodySize > 0 {
		r.Use(middleware.RequestSize(cfg.MaxBodySize))
	}
	if cfg.Instrument != nil {
		r.Use(cfg.Instrument)
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Compress(5))
		r.Use(SessionMiddleware(cfg.Identity))

		r.Get("/catalog", cfg.Handler.GetCatalog)
		r.Route("/cart", func(r chi.Router) {
			r.Get("/", cfg.Handler.GetCart)
			r.Post("/items", cfg.Handler.AddItem)
			r.Delete("/items/{id}", cfg.Handler.RemoveItem)
		})
		r.Post("/checkout", cfg.Handler.Checkout)
		r.Route("/purchases", func(r chi.Router) {
			r.Get("/", cfg.Handler.ListPurchases)
			r.Get("/{id}", cfg.Handler.GetPurchase)
		})
	})

	return r
}
