package http

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
)

// RequestIDMiddleware echoes the request id on the response and stamps it on
// the inbound request so the proxied service logs the same id. Mount after
// chi's RequestID.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := middleware.GetReqID(r.Context())
		if requestID != "" {
			r.Header.Set(middleware.RequestIDHeader, requestID)
			w.Header().Set(middleware.RequestIDHeader, requestID)
		}
		next.ServeHTTP(w, r)
	})
}
