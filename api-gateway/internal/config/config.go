package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env                string
	LogLevel           string
	HTTPPort           string
	CartServiceURL     *url.URL
	ProductServiceAddr string
	RequestTimeout     time.Duration
	ShutdownTimeout    time.Duration
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Default().Warn("failed to read .env file", slog.Any("error", err))
	}

	raw := getEnv("CART_SERVICE_URL", "http://localhost:8081")
	target, err := url.Parse(raw)
	if err != nil || target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("CART_SERVICE_URL: invalid url %q", raw)
	}

	return &Config{
		Env:                getEnv("ENV", "dev"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		HTTPPort:           getEnv("HTTP_PORT", "8080"),
		CartServiceURL:     target,
		ProductServiceAddr: getEnv("PRODUCT_SERVICE_ADDR", "localhost:50051"),
		RequestTimeout:     30 * time.Second,
		ShutdownTimeout:    10 * time.Second,
	}, nil
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
