package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fjod/go_cart/cart-service/internal/broadcast"
	"github.com/fjod/go_cart/cart-service/internal/cache"
	"github.com/fjod/go_cart/cart-service/internal/catalog"
	"github.com/fjod/go_cart/cart-service/internal/config"
	carthttp "github.com/fjod/go_cart/cart-service/internal/http"
	"github.com/fjod/go_cart/cart-service/internal/poller"
	"github.com/fjod/go_cart/cart-service/internal/repository"
	"github.com/fjod/go_cart/cart-service/internal/service"
	"github.com/fjod/go_cart/cart-service/internal/session"
	"github.com/fjod/go_cart/cart-service/internal/ws"
	"github.com/fjod/go_cart/pkg/catalogapi"
	"github.com/fjod/go_cart/pkg/logger"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	if err := run(); err != nil {
		slog.Error("cart service failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(os.Stdout, "cart-service", cfg.LogLevel, cfg.LogFormat())
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Storage
	var repo repository.CartRepository
	if cfg.MongoURI != "" {
		mongoRepo, disconnect, err := repository.OpenMongoRepository(ctx, cfg.MongoURI, cfg.MongoDBName)
		if err != nil {
			return fmt.Errorf("connect to MongoDB: %w", err)
		}
		defer func() {
			dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = disconnect(dctx)
		}()
		repo = mongoRepo
		log.Info("connected to MongoDB", slog.String("database", cfg.MongoDBName))
	} else {
		memRepo := repository.NewMemoryRepository()
		defer memRepo.Close()
		repo = memRepo
		log.Warn("MONGO_URI not set, carts are kept in memory")
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	defer redisClient.Close()

	var cartCache cache.CartCache = cache.NewRedisCache(redisClient)
	redisUp := true
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Warn("redis unavailable, running without cache", slog.Any("error", err))
		cartCache = cache.Noop{}
		redisUp = false
	}

	// Catalog
	productConn, err := catalog.Dial(cfg.ProductServiceAddr)
	if err != nil {
		return fmt.Errorf("dial product service: %w", err)
	}
	defer productConn.Close()
	catalogClient := catalog.NewClient(catalogapi.NewCatalogClient(productConn), cfg.CatalogTimeout, log)

	// Real-time delivery
	hub := broadcast.NewHub(broadcast.DefaultSendBuffer)
	backplane := openBackplane(ctx, cfg, redisClient, redisUp, log)
	if backplane != nil {
		defer backplane.Close()
	}
	broadcaster := broadcast.New(hub, backplane, log)
	go func() {
		if err := broadcaster.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("backplane subscription stopped", slog.Any("error", err))
		}
	}()

	svc := service.NewCartService(repo, cartCache, catalogClient, cfg.Coupons, broadcaster, log, service.Options{
		GuestTTL:    cfg.GuestTTL,
		MergePolicy: cfg.MergePolicy,
	})

	resolver := session.NewResolver(session.NewTokenVerifier(cfg.JWTSecret))
	handler := carthttp.NewCartHandler(svc, resolver, cfg.RequestTimeout, log)
	live := ws.NewHandler(hub, resolver, svc, log)
	router := carthttp.NewRouter(handler, live, cfg.RequestTimeout, log)

	// Checkout consumer
	if len(cfg.KafkaBrokers) > 0 {
		p := poller.NewPoller(svc, poller.NewKafkaReader(cfg.KafkaBrokers), log)
		defer p.Close()
		go p.Run(ctx)
		log.Info("checkout consumer started", slog.Any("brokers", cfg.KafkaBrokers))
	}

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           otelhttp.NewHandler(router, "cart-service"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("cart service listening", slog.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down cart service")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info("cart service stopped")
	return nil
}

// openBackplane returns nil when fan-out stays local to this instance.
func openBackplane(ctx context.Context, cfg *config.Config, client redis.UniversalClient, redisUp bool, log *slog.Logger) broadcast.Backplane {
	switch cfg.Backplane {
	case config.BackplaneRedis:
		if !redisUp {
			log.Warn("redis backplane unavailable, broadcasting locally only")
			return nil
		}
		bp, err := broadcast.NewRedisBackplane(ctx, client, broadcast.DefaultChannel)
		if err != nil {
			log.Warn("redis backplane unavailable, broadcasting locally only", slog.Any("error", err))
			return nil
		}
		return bp
	case config.BackplaneNATS:
		bp, err := broadcast.NewNatsBackplane(cfg.NatsURL, broadcast.DefaultChannel)
		if err != nil {
			log.Warn("nats backplane unavailable, broadcasting locally only", slog.Any("error", err))
			return nil
		}
		return bp
	default:
		return nil
	}
}
