package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("SERVICE_NAME", "arena-service")
	t.Setenv("CONFIG_FILE", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, "9095", cfg.MetricsPort)
	assert.Equal(t, uint64(500), cfg.FeeBps)
	assert.Equal(t, cfg.Authority, cfg.FeeRecipient, "fee recipient defaults to the authority")
	assert.Equal(t, time.Hour, cfg.RoundDuration)
	assert.Equal(t, "arena_round_updates", cfg.RedisPubSubChannel)
}

func TestLoad_ZeroFeeDisablesFee(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("ARENA_FEE_BPS", "0")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), cfg.FeeBps)
}

func TestLoad_YAMLOverlayAndEnvPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arena.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
STORE_DRIVER: sqlite
SQLITE_PATH: /tmp/arena.db
ARENA_AUTHORITY: boss
ARENA_FEE_BPS: 250
KEEPER_AUTO_OPEN: true
ROUND_DURATION: 3600
`), 0o600))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("SERVICE_NAME", "settlement-keeper")
	t.Setenv("KEEPER_INTERVAL", "2s")
	t.Setenv("ARENA_FEE_BPS", "300")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.StoreDriver)
	assert.Equal(t, "/tmp/arena.db", cfg.StoreDSN())
	assert.Equal(t, "boss", cfg.Authority)
	assert.Equal(t, uint64(300), cfg.FeeBps, "environment wins over the file")
	assert.True(t, cfg.KeeperAutoOpen)
	assert.Equal(t, time.Hour, cfg.RoundDuration)
	assert.Equal(t, 2*time.Second, cfg.KeeperInterval)
	assert.Empty(t, cfg.HTTPPort)
	assert.Equal(t, "9096", cfg.MetricsPort)
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("STORE_DRIVER", "mysql")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("STORE_DRIVER", "sqlite")
	t.Setenv("ARENA_FEE_BPS", "10001")
	_, err = Load()
	assert.Error(t, err)

	t.Setenv("ARENA_FEE_BPS", "")
	t.Setenv("KEEPER_INTERVAL", "soon")
	_, err = Load()
	assert.Error(t, err)
}

func TestBrokers(t *testing.T) {
	assert.Equal(t, []string{"a:9092", "b:9092"}, Config{KafkaBrokers: " a:9092, ,b:9092"}.Brokers())
	assert.Nil(t, Config{}.Brokers())
}
