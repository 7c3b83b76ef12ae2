package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Chain string

const (
	ChainEthereum Chain = "ethereum"
	ChainBase     Chain = "base"
)

// ValuationTable is the heuristic asset→USD multiplier table used by the poller.
// Native aliases are priced at NativeReferencePriceUSD, stables at 1:1.
type ValuationTable struct {
	NativeAliases []string           `yaml:"native_aliases"`
	Stablecoins   []string           `yaml:"stablecoins"`
	Fixed         map[string]float64 `yaml:"fixed"`
	Fallback      float64            `yaml:"fallback"`
}

func DefaultValuationTable() ValuationTable {
	return ValuationTable{
		NativeAliases: []string{"ETH", "WETH", "CBETH"},
		Stablecoins:   []string{"USDC", "USDT", "DAI"},
		Fixed:         map[string]float64{"AERO": 1.2},
		Fallback:      0.5,
	}
}

type Config struct {
	// Chain
	AlchemyAPIKey string
	RPCURL        string
	Chain         Chain
	AvgBlockTime  time.Duration

	// DB
	DBDSN string

	// Whale ingestion
	WhaleThresholdUSD       float64
	PollInterval            time.Duration
	DispatchDelay           time.Duration
	NativeReferencePriceUSD float64
	ValuationMode           string // "heuristic" | "oracle"
	ValuationFile           string
	Valuation               ValuationTable

	// Smart-money analysis
	AnalysisWindowDays int
	AnalysisCacheTTL   time.Duration
	AnalysisCacheMax   int
	AnalysisCacheEvict int
	CachePurgeSchedule string

	// Prices
	CoinGeckoURL  string
	PriceCacheTTL time.Duration
	CoinIDs       map[string]string

	// Alert sinks (all optional)
	RedisURL      string
	RedisStream   string
	NATSURL       string
	NATSSubject   string
	WebhookURL    string
	WebhookChatID string

	// API
	APIPort int

	LogLevel string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		AlchemyAPIKey: os.Getenv("ALCHEMY_API_KEY"),
		RPCURL:        os.Getenv("RPC_URL"),
		Chain:         Chain(envOr("CHAIN_NAME", string(ChainBase))),
		AvgBlockTime:  envDuration("AVG_BLOCK_TIME", 12*time.Second),

		DBDSN: envOr("DB_DSN", "whale_tracker.db"),

		WhaleThresholdUSD:       envFloat("WHALE_THRESHOLD_USD", 50000),
		PollInterval:            envDuration("POLL_INTERVAL", 30*time.Second),
		DispatchDelay:           envDuration("DISPATCH_DELAY", 500*time.Millisecond),
		NativeReferencePriceUSD: envFloat("NATIVE_REFERENCE_PRICE_USD", 3300),
		ValuationMode:           envOr("VALUATION_MODE", "heuristic"),
		ValuationFile:           os.Getenv("VALUATION_FILE"),
		Valuation:               DefaultValuationTable(),

		AnalysisWindowDays: envInt("ANALYSIS_WINDOW_DAYS", 90),
		AnalysisCacheTTL:   envDuration("ANALYSIS_CACHE_TTL", time.Hour),
		AnalysisCacheMax:   envInt("ANALYSIS_CACHE_MAX", 100),
		AnalysisCacheEvict: envInt("ANALYSIS_CACHE_EVICT", 50),
		CachePurgeSchedule: envOr("CACHE_PURGE_SCHEDULE", "@every 10m"),

		CoinGeckoURL:  envOr("COINGECKO_URL", "https://api.coingecko.com"),
		PriceCacheTTL: envDuration("PRICE_CACHE_TTL", 5*time.Minute),
		CoinIDs:       DefaultCoinIDs(),

		RedisURL:      os.Getenv("REDIS_URL"),
		RedisStream:   envOr("REDIS_STREAM", "whale_alerts"),
		NATSURL:       os.Getenv("NATS_URL"),
		NATSSubject:   envOr("NATS_SUBJECT", "whales.alerts"),
		WebhookURL:    os.Getenv("WEBHOOK_URL"),
		WebhookChatID: os.Getenv("WEBHOOK_CHAT_ID"),

		APIPort:  envInt("API_PORT", 8080),
		LogLevel: envOr("LOG_LEVEL", "info"),
	}

	if cfg.RPCURL == "" && cfg.AlchemyAPIKey != "" {
		cfg.RPCURL = cfg.AlchemyURL()
	}

	if cfg.ValuationFile != "" {
		if err := cfg.LoadValuationFile(cfg.ValuationFile); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// AlchemyURL builds the hosted endpoint for the configured chain.
func (c *Config) AlchemyURL() string {
	switch c.Chain {
	case ChainEthereum:
		return "https://eth-mainnet.g.alchemy.com/v2/" + c.AlchemyAPIKey
	default:
		return "https://base-mainnet.g.alchemy.com/v2/" + c.AlchemyAPIKey
	}
}

// LoadValuationFile overlays the valuation table and coin id map from YAML.
func (c *Config) LoadValuationFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read valuation file: %w", err)
	}

	var file struct {
		ReferencePriceUSD float64           `yaml:"reference_price_usd"`
		Valuation         *ValuationTable   `yaml:"valuation"`
		CoinIDs           map[string]string `yaml:"coin_ids"`
	}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &file); err != nil {
		return fmt.Errorf("parse valuation file %s: %w", path, err)
	}

	if file.ReferencePriceUSD > 0 {
		c.NativeReferencePriceUSD = file.ReferencePriceUSD
	}
	if file.Valuation != nil {
		c.Valuation = *file.Valuation
	}
	for sym, id := range file.CoinIDs {
		c.CoinIDs[strings.ToUpper(sym)] = id
	}
	return nil
}

func (c *Config) Validate() error {
	if c.RPCURL == "" {
		return fmt.Errorf("no chain endpoint configured; set ALCHEMY_API_KEY or RPC_URL")
	}
	if c.WhaleThresholdUSD <= 0 {
		return fmt.Errorf("WHALE_THRESHOLD_USD must be positive, got %v", c.WhaleThresholdUSD)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be positive")
	}
	if c.AnalysisCacheEvict > c.AnalysisCacheMax {
		return fmt.Errorf("ANALYSIS_CACHE_EVICT (%d) exceeds ANALYSIS_CACHE_MAX (%d)", c.AnalysisCacheEvict, c.AnalysisCacheMax)
	}
	switch c.ValuationMode {
	case "heuristic", "oracle":
	default:
		return fmt.Errorf("unknown VALUATION_MODE %q", c.ValuationMode)
	}
	return nil
}

// DefaultCoinIDs maps ticker symbols to CoinGecko ids.
func DefaultCoinIDs() map[string]string {
	return map[string]string{
		"ETH":   "ethereum",
		"WETH":  "ethereum",
		"BTC":   "bitcoin",
		"MATIC": "matic-network",
		"POL":   "matic-network",
		"ARB":   "arbitrum",
		"OP":    "optimism",
		"USDC":  "usd-coin",
		"USDT":  "tether",
		"DAI":   "dai",
	}
}

// helpers
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

// envDuration accepts Go durations ("30s") or bare seconds ("30").
func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if i, err := strconv.Atoi(v); err == nil {
		return time.Duration(i) * time.Second
	}
	return fallback
}
