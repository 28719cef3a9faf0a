package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fjod/go_cart/cart-service/internal/coupon"
	"github.com/fjod/go_cart/cart-service/internal/service"
	"github.com/joho/godotenv"
)

type Backplane string

const (
	BackplaneNone  Backplane = "none"
	BackplaneRedis Backplane = "redis"
	BackplaneNATS  Backplane = "nats"
)

type Config struct {
	Env      string
	LogLevel string
	HTTPPort string

	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration

	// MongoURI empty selects the in-memory repository.
	MongoURI    string
	MongoDBName string

	RedisAddr     string
	RedisPassword string

	ProductServiceAddr string
	CatalogTimeout     time.Duration

	Backplane Backplane
	NatsURL   string

	// KafkaBrokers empty disables the checkout consumer.
	KafkaBrokers []string

	JWTSecret   string
	GuestTTL    time.Duration
	MergePolicy service.MergePolicy
	Coupons     *coupon.Book
}

// Load reads the environment, after loading a .env file when one exists.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Default().Warn("failed to read .env file", slog.Any("error", err))
	}

	cfg := &Config{
		Env:                getEnv("ENV", "dev"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		HTTPPort:           getEnv("HTTP_PORT", "8081"),
		MongoURI:           getEnv("MONGO_URI", ""),
		MongoDBName:        getEnv("MONGO_DB_NAME", "cartdb"),
		RedisAddr:          getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:      getEnv("REDIS_PASSWORD", ""),
		ProductServiceAddr: getEnv("PRODUCT_SERVICE_ADDR", "localhost:50051"),
		Backplane:          Backplane(strings.ToLower(getEnv("BACKPLANE", string(BackplaneRedis)))),
		NatsURL:            getEnv("NATS_URL", "nats://localhost:4222"),
		KafkaBrokers:       getEnvList("KAFKA_BROKERS"),
		JWTSecret:          getEnv("JWT_SECRET", ""),
	}

	var err error
	if cfg.RequestTimeout, err = getEnvDuration("REQUEST_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.ShutdownTimeout, err = getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.CatalogTimeout, err = getEnvDuration("CATALOG_TIMEOUT", 2*time.Second); err != nil {
		return nil, err
	}
	if cfg.GuestTTL, err = getEnvDuration("GUEST_CART_TTL", service.DefaultGuestTTL); err != nil {
		return nil, err
	}
	if cfg.MergePolicy, err = service.ParseMergePolicy(getEnv("MERGE_POLICY", "sum")); err != nil {
		return nil, fmt.Errorf("MERGE_POLICY: %w", err)
	}
	if cfg.Coupons, err = coupon.Parse(getEnv("COUPONS", "")); err != nil {
		return nil, fmt.Errorf("COUPONS: %w", err)
	}

	switch cfg.Backplane {
	case BackplaneNone, BackplaneRedis, BackplaneNATS:
	default:
		return nil, fmt.Errorf("BACKPLANE: unknown value %q", cfg.Backplane)
	}

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		slog.Default().Warn("invalid log level, using info", slog.String("value", cfg.LogLevel))
		cfg.LogLevel = "info"
	}

	if cfg.Env == "prod" && cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET must be set in production")
	}

	return cfg, nil
}

func (c *Config) LogFormat() string {
	if c.Env == "prod" {
		return "json"
	}
	return "text"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvList(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// getEnvDuration accepts Go durations ("90s") or a bare number of seconds.
func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
