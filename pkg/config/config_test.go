package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/echa/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blockwatch.cc/oracle-market/pkg/ledger"
)

func TestNodeDefaults(t *testing.T) {
	t.Setenv("MARKET_ADMIN", "admin.near")
	cfg, err := LoadNode(nil)
	require.NoError(t, err)
	assert.Equal(t, ":8000", cfg.Listen)
	assert.Equal(t, StoreMemory, cfg.Store)
	assert.Equal(t, ledger.AccountID("admin.near"), cfg.Admin)
	assert.False(t, cfg.Demo)
	assert.Equal(t, ledger.Money(ledger.SubunitsPerUnit), cfg.Faucet)
	assert.Equal(t, log.LevelInfo, cfg.LogLevel)
}

func TestNodeFlagsOverrideEnv(t *testing.T) {
	t.Setenv("MARKET_STORE", "redis")
	t.Setenv("MARKET_DEMO", "true")
	cfg, err := LoadNode([]string{"-store", "miniredis", "-v", "debug", "-faucet", "0.5"})
	require.NoError(t, err)
	assert.Equal(t, StoreMiniredis, cfg.Store)
	assert.True(t, cfg.Demo)
	assert.Equal(t, log.LevelDebug, cfg.LogLevel)
	assert.Equal(t, ledger.Money(500_000_000), cfg.Faucet)
}

func TestNodeInvalid(t *testing.T) {
	_, err := LoadNode([]string{"-store", "postgres"})
	assert.Error(t, err)
	_, err = LoadNode([]string{"-v", "loud"})
	assert.Error(t, err)
	_, err = LoadNode([]string{"-admin", ""})
	assert.Error(t, err)
}

func TestDotEnv(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(file, []byte("MARKET_TEST_DOTENV=from-file\n"), 0o600))
	t.Setenv("MARKET_TEST_DOTENV", "")
	os.Unsetenv("MARKET_TEST_DOTENV")
	require.NoError(t, LoadEnv(file))
	assert.Equal(t, "from-file", os.Getenv("MARKET_TEST_DOTENV"))

	assert.NoError(t, LoadEnv(filepath.Join(dir, "missing.env")))
}

func TestSim(t *testing.T) {
	cfg, err := LoadSim([]string{"-node", "http://node:9000", "-price", "0.000001"})
	require.NoError(t, err)
	assert.Equal(t, "http://node:9000", cfg.Node)
	assert.Equal(t, ledger.Money(1000), cfg.Price)
	assert.Equal(t, "http://localhost:31415", cfg.BlobStore)

	t.Setenv("MARKET_BLOB_STORE", "https://aggregator.example")
	cfg, err = LoadSim(nil)
	require.NoError(t, err)
	assert.Equal(t, "https://aggregator.example", cfg.BlobStore)
}
