package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/fjod/go_cart/cart-service/internal/metrics"
	"github.com/fjod/go_cart/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter wires the cart API. live serves the WebSocket endpoint and is
// kept outside the request timeout.
func NewRouter(h *CartHandler, live http.Handler, requestTimeout time.Duration, log *slog.Logger) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logger.Requests(log))
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", metrics.Handler())
	if live != nil {
		r.Handle("/ws", live)
	}

	r.Route("/api/v1/cart", func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))

		r.Get("/", h.GetCart)
		r.Delete("/", h.ClearCart)
		r.Post("/items", h.AddItem)
		r.Put("/items/{productID}", h.UpdateItem)
		r.Delete("/items/{productID}", h.RemoveItem)
		r.Post("/coupon", h.ApplyCoupon)
		r.Delete("/coupon", h.RemoveCoupon)
		r.Post("/merge", h.Merge)
		r.Post("/validate", h.Validate)
		r.Post("/session", h.NewSession)
	})

	return r
}
