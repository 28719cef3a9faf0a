package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fjod/go_cart/api-gateway/internal/config"
	h "github.com/fjod/go_cart/api-gateway/internal/http"
	"github.com/fjod/go_cart/pkg/catalogapi"
	"github.com/fjod/go_cart/pkg/logger"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}
	log := logger.New(os.Stdout, "api-gateway", cfg.LogLevel, cfg.LogFormat())

	productConn, err := grpc.NewClient(
		cfg.ProductServiceAddr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	)
	if err != nil {
		log.Error("failed to connect to product service", slog.Any("error", err))
		os.Exit(1)
	}
	defer productConn.Close()

	products := h.NewProductHandler(catalogapi.NewCatalogClient(productConn), cfg.RequestTimeout)
	cart := h.NewCartProxy(cfg.CartServiceURL, log)
	router := h.NewRouter(cart, products, cfg.RequestTimeout, log)

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           otelhttp.NewHandler(router, "api-gateway"),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api gateway starting", slog.String("port", cfg.HTTPPort), slog.String("cart_service", cfg.CartServiceURL.String()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("server forced to shutdown", slog.Any("error", err))
		os.Exit(1)
	}

	log.Info("server exited")
}
