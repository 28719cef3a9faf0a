package http

import (
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
)

// NewCartProxy forwards cart API and WebSocket traffic to the cart service.
// Authorization and X-Session-ID headers pass through untouched; the cart
// service owns identity resolution.
func NewCartProxy(target *url.URL, log *slog.Logger) http.Handler {
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			log.ErrorContext(r.Context(), "cart service unreachable",
				slog.String("path", r.URL.Path),
				slog.Any("error", err),
			)
			respondError(w, http.StatusBadGateway, "service_unavailable", "cart service unavailable")
		},
	}
}
