package main

import (
	"context"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/fjod/go_cart/pkg/catalogapi"
	"github.com/fjod/go_cart/pkg/logger"
	"github.com/fjod/go_cart/product-service/internal/config"
	grpcHandler "github.com/fjod/go_cart/product-service/internal/grpc"
	"github.com/fjod/go_cart/product-service/internal/repository"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func main() {
	cfg := config.Load()
	log := logger.New(os.Stdout, "product-service", cfg.LogLevel, cfg.LogFormat())

	repo, err := repository.NewRepository(cfg.DBPath)
	if err != nil {
		log.Error("failed to open catalog database", slog.Any("error", err))
		os.Exit(1)
	}
	defer repo.Close()

	if err := repo.RunMigrations(); err != nil {
		log.Error("failed to run migrations", slog.Any("error", err))
		os.Exit(1)
	}
	log.Info("migrations completed", slog.String("db_path", cfg.DBPath))

	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	catalogapi.RegisterCatalogServer(grpcServer, grpcHandler.NewCatalogServer(repo, log))

	healthServer := health.NewServer()
	healthServer.SetServingStatus(catalogapi.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	listener, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		log.Error("failed to listen", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		log.Info("shutting down product service")
		healthServer.Shutdown()
		grpcServer.GracefulStop()
	}()

	log.Info("product service listening", slog.String("port", cfg.GRPCPort))
	if err := grpcServer.Serve(listener); err != nil {
		log.Error("failed to serve", slog.Any("error", err))
		os.Exit(1)
	}
}
