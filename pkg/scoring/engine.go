package scoring

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/whale-tracker/pkg/chain"
)

type Breakdown struct {
	TransactionFrequency     int `json:"transactionFrequency"`
	PortfolioDiversification int `json:"portfolioDiversification"`
	AverageTradeSize         int `json:"averageTradeSize"`
	EstimatedWinRate         int `json:"estimatedWinRate"`
	WalletAge                int `json:"walletAge"`
}

func (b Breakdown) Sum() int {
	return b.TransactionFrequency + b.PortfolioDiversification + b.AverageTradeSize + b.EstimatedWinRate + b.WalletAge
}

type Metadata struct {
	TotalTransactions       int     `json:"totalTransactions"`
	UniqueTokens            int     `json:"uniqueTokens"`
	AvgTradeUSD             float64 `json:"avgTradeUSD"`
	WalletAgeInDays         int     `json:"walletAgeInDays"`
	ProfitableTradesPercent int     `json:"profitableTradesPercent"`
}

// Metrics is the smart-money profile of one wallet at analysis time.
type Metrics struct {
	Score      int        `json:"score"`
	Breakdown  Breakdown  `json:"breakdown"`
	Insights   []string   `json:"insights"`
	Confidence Confidence `json:"confidence"`
	Category   Category   `json:"category"`
	Metadata   Metadata   `json:"metadata"`
}

// Fallback is the zero-score result returned when chain state cannot be read.
func Fallback() Metrics {
	return Metrics{
		Insights:   []string{fallbackInsight},
		Confidence: ConfidenceLow,
		Category:   CategoryBeginner,
	}
}

// ReferencePricer supplies the native-asset USD price; valuation.Valuator satisfies it.
type ReferencePricer interface {
	ReferencePrice(ctx context.Context) decimal.Decimal
}

type Config struct {
	WindowDays   int
	AvgBlockTime time.Duration
	MaxTransfers int
	TradeSample  int
}

func DefaultConfig() Config {
	return Config{WindowDays: 90, AvgBlockTime: 12 * time.Second, MaxTransfers: 1000, TradeSample: 50}
}

type Engine struct {
	provider chain.Provider
	pricer   ReferencePricer
	cfg      Config
	now      func() time.Time
}

func NewEngine(provider chain.Provider, pricer ReferencePricer, cfg Config) *Engine {
	def := DefaultConfig()
	if cfg.WindowDays <= 0 {
		cfg.WindowDays = def.WindowDays
	}
	if cfg.AvgBlockTime <= 0 {
		cfg.AvgBlockTime = def.AvgBlockTime
	}
	if cfg.MaxTransfers <= 0 {
		cfg.MaxTransfers = def.MaxTransfers
	}
	if cfg.TradeSample <= 0 {
		cfg.TradeSample = def.TradeSample
	}
	return &Engine{provider: provider, pricer: pricer, cfg: cfg, now: time.Now}
}

// WindowBlocks is the trailing analysis window expressed in blocks.
func (e *Engine) WindowBlocks() uint64 {
	window := time.Duration(e.cfg.WindowDays) * 24 * time.Hour
	return uint64(window / e.cfg.AvgBlockTime)
}

var historyCategories = []chain.Category{chain.CategoryExternal, chain.CategoryERC20, chain.CategoryERC721, chain.CategoryERC1155}

// Analyze never fails: if the transfer history cannot be read it returns Fallback().
// Token balances and wallet age degrade to a zero factor on their own.
func (e *Engine) Analyze(ctx context.Context, address string) Metrics {
	m, err := e.analyze(ctx, address)
	if err != nil {
		log.Warn().Err(err).Str("addr", address).Msg("smart money analysis failed, returning fallback")
		return Fallback()
	}
	return m
}

func (e *Engine) analyze(ctx context.Context, address string) (Metrics, error) {
	head, err := e.provider.BlockNumber(ctx)
	if err != nil {
		return Metrics{}, fmt.Errorf("block number: %w", err)
	}
	var from uint64
	if w := e.WindowBlocks(); head > w {
		from = head - w
	}

	outgoing, err := e.provider.AssetTransfers(ctx, chain.TransferQuery{
		FromBlock:   from,
		FromAddress: address,
		Categories:  historyCategories,
		MaxCount:    e.cfg.MaxTransfers,
	})
	if err != nil {
		return Metrics{}, fmt.Errorf("outgoing transfers: %w", err)
	}
	incoming, err := e.provider.AssetTransfers(ctx, chain.TransferQuery{
		FromBlock:  from,
		ToAddress:  address,
		Categories: historyCategories,
		MaxCount:   e.cfg.MaxTransfers,
	})
	if err != nil {
		return Metrics{}, fmt.Errorf("incoming transfers: %w", err)
	}

	tokens := e.uniqueTokens(ctx, address)
	avgUSD := e.averageTradeUSD(ctx, outgoing)
	days := e.walletAgeDays(ctx, address)

	total := len(outgoing) + len(incoming)
	winScore, winPct := WinRate(len(incoming), len(outgoing))

	b := Breakdown{
		TransactionFrequency:     FrequencyScore(total),
		PortfolioDiversification: DiversificationScore(tokens),
		AverageTradeSize:         TradeSizeScore(avgUSD),
		EstimatedWinRate:         winScore,
		WalletAge:                AgeScore(days),
	}
	md := Metadata{
		TotalTransactions:       total,
		UniqueTokens:            tokens,
		AvgTradeUSD:             avgUSD,
		WalletAgeInDays:         days,
		ProfitableTradesPercent: winPct,
	}
	score := b.Sum()

	return Metrics{
		Score:      score,
		Breakdown:  b,
		Insights:   Insights(md),
		Confidence: ConfidenceFor(total, tokens),
		Category:   CategoryFor(score),
		Metadata:   md,
	}, nil
}

func (e *Engine) uniqueTokens(ctx context.Context, address string) int {
	balances, err := e.provider.TokenBalances(ctx, address)
	if err != nil {
		log.Warn().Err(err).Str("addr", address).Msg("token balances unavailable")
		return 0
	}
	seen := map[string]bool{}
	for _, b := range balances {
		if !b.IsZero() {
			seen[b.ContractAddress] = true
		}
	}
	return len(seen)
}

// averageTradeUSD averages the valued transfers among the first TradeSample
// outgoing ones and prices them at the native reference price.
func (e *Engine) averageTradeUSD(ctx context.Context, outgoing []chain.Transfer) float64 {
	sample := outgoing
	if len(sample) > e.cfg.TradeSample {
		sample = sample[:e.cfg.TradeSample]
	}

	sum := decimal.Zero
	n := 0
	for _, t := range sample {
		if t.HasValue() {
			sum = sum.Add(t.Value.Decimal)
			n++
		}
	}
	if n == 0 {
		return 0
	}
	avg := sum.Div(decimal.NewFromInt(int64(n)))
	return math.Round(avg.Mul(e.pricer.ReferencePrice(ctx)).InexactFloat64())
}

func (e *Engine) walletAgeDays(ctx context.Context, address string) int {
	first, err := e.provider.AssetTransfers(ctx, chain.TransferQuery{
		FromBlock:   0,
		FromAddress: address,
		Categories:  []chain.Category{chain.CategoryExternal, chain.CategoryERC20},
		Order:       chain.OrderAsc,
		MaxCount:    1,
	})
	if err != nil {
		log.Warn().Err(err).Str("addr", address).Msg("first transfer lookup failed")
		return 0
	}
	if len(first) == 0 {
		return 0
	}

	ts, err := e.provider.BlockTimestamp(ctx, first[0].BlockNum)
	if err != nil {
		log.Warn().Err(err).Uint64("block", first[0].BlockNum).Msg("block timestamp unavailable")
		return 0
	}
	age := e.now().Sub(ts)
	if age < 0 {
		return 0
	}
	return int(age / (24 * time.Hour))
}
