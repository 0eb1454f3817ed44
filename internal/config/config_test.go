package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantlab-io/tradecost/internal/fees"
	"github.com/quantlab-io/tradecost/internal/impact"
)

func TestDefault_Validates(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 4, cfg.Simulator.Workers)
	assert.Equal(t, []int{10, 30, 60, 120}, cfg.Volatility.Windows)
	assert.Len(t, cfg.FeeTiers, 5)
}

func TestLoad_EmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_OverridesSurvive(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	doc := `
simulator:
  workers: 2
  batch_queue_size: 16
volatility:
  ewma_lambda: 0.9
fee_tiers:
  TIER1:
    maker: 0.0005
    taker: 0.0007
market_data:
  symbol: ETH-USDT-SWAP
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Simulator.Workers)
	assert.Equal(t, 16, cfg.Simulator.BatchQueueSize)
	assert.Equal(t, 0.9, cfg.Volatility.EWMALambda)
	assert.Equal(t, "ETH-USDT-SWAP", cfg.MarketData.Symbol)
	// Untouched sections keep their defaults.
	assert.Equal(t, 100, cfg.Simulator.CacheSize)

	schedule := cfg.FeeSchedule()
	assert.Equal(t, 0.0005, schedule[fees.Tier1].Maker)
}

func TestLoad_RejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("simulator:\n  workers: -1\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/does/not/exist.yaml")
	assert.Error(t, err)
}

func TestImpactParameters_FallsBackToDefaults(t *testing.T) {
	cfg := Default()
	params := cfg.ImpactParameters(impact.Kind("unconfigured"))
	assert.Equal(t, impact.DefaultParameters(), params)
}
