package config

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
)

type Config struct {
	Env      string
	LogLevel string
	GRPCPort string
	DBPath   string
}

func Load() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Default().Warn("failed to read .env file", slog.Any("error", err))
	}

	return &Config{
		Env:      getEnv("ENV", "dev"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		GRPCPort: getEnv("GRPC_PORT", "50051"),
		DBPath:   getEnv("DB_PATH", "./products.db"),
	}
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
