package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoad(t *testing.T) {
	t.Setenv("ENV", "prod")
	t.Setenv("GRPC_PORT", "6000")
	t.Setenv("DB_PATH", "")

	cfg := Load()
	assert.Equal(t, "6000", cfg.GRPCPort)
	assert.Equal(t, "./products.db", cfg.DBPath)
	assert.Equal(t, "json", cfg.LogFormat())
}
