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
	t.Setenv("ALCHEMY_API_KEY", "k")
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 50000.0, cfg.WhaleThresholdUSD)
	assert.Equal(t, 30*time.Second, cfg.PollInterval)
	assert.Equal(t, 500*time.Millisecond, cfg.DispatchDelay)
	assert.Equal(t, 3300.0, cfg.NativeReferencePriceUSD)
	assert.Equal(t, time.Hour, cfg.AnalysisCacheTTL)
	assert.Equal(t, 100, cfg.AnalysisCacheMax)
	assert.Equal(t, 50, cfg.AnalysisCacheEvict)
	assert.Equal(t, 5*time.Minute, cfg.PriceCacheTTL)
	assert.Equal(t, "https://base-mainnet.g.alchemy.com/v2/k", cfg.RPCURL)
	assert.Equal(t, "ethereum", cfg.CoinIDs["WETH"])
	assert.NoError(t, cfg.Validate())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("RPC_URL", "http://localhost:8545")
	t.Setenv("WHALE_THRESHOLD_USD", "100000")
	t.Setenv("POLL_INTERVAL", "5")
	t.Setenv("DISPATCH_DELAY", "250ms")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8545", cfg.RPCURL)
	assert.Equal(t, 100000.0, cfg.WhaleThresholdUSD)
	assert.Equal(t, 5*time.Second, cfg.PollInterval)
	assert.Equal(t, 250*time.Millisecond, cfg.DispatchDelay)
}

func TestValidate(t *testing.T) {
	cfg := &Config{RPCURL: "x", WhaleThresholdUSD: 1, PollInterval: time.Second, AnalysisCacheMax: 100, AnalysisCacheEvict: 50, ValuationMode: "heuristic"}
	assert.NoError(t, cfg.Validate())

	noRPC := *cfg
	noRPC.RPCURL = ""
	assert.Error(t, noRPC.Validate())

	badMode := *cfg
	badMode.ValuationMode = "spot"
	assert.Error(t, badMode.Validate())

	badEvict := *cfg
	badEvict.AnalysisCacheEvict = 200
	assert.Error(t, badEvict.Validate())
}

func TestLoadValuationFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "valuation.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
reference_price_usd: 3500
valuation:
  native_aliases: [ETH, WETH]
  stablecoins: [USDC]
  fixed:
    AERO: 1.5
  fallback: 0.25
coin_ids:
  aero: aerodrome-finance
`), 0o644))

	cfg := &Config{CoinIDs: DefaultCoinIDs(), Valuation: DefaultValuationTable()}
	require.NoError(t, cfg.LoadValuationFile(path))

	assert.Equal(t, 3500.0, cfg.NativeReferencePriceUSD)
	assert.Equal(t, []string{"ETH", "WETH"}, cfg.Valuation.NativeAliases)
	assert.Equal(t, 1.5, cfg.Valuation.Fixed["AERO"])
	assert.Equal(t, 0.25, cfg.Valuation.Fallback)
	assert.Equal(t, "aerodrome-finance", cfg.CoinIDs["AERO"])
	assert.Equal(t, "ethereum", cfg.CoinIDs["ETH"])
}
