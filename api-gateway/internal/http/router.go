package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/fjod/go_cart/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(cart http.Handler, products *ProductHandler, requestTimeout time.Duration, log *slog.Logger) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(RequestIDMiddleware)
	r.Use(middleware.RealIP)
	r.Use(logger.Requests(log))
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Long-lived; no timeout or compression.
	r.Handle("/ws", cart)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))
		r.Use(middleware.Compress(5))

		r.Handle("/cart", cart)
		r.Handle("/cart/*", cart)
		r.Get("/products/{productID}", products.Get)
	})

	return r
}
