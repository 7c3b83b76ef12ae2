package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/whale-tracker/pkg/analysis"
	"github.com/whale-tracker/pkg/api"
	"github.com/whale-tracker/pkg/chain"
	"github.com/whale-tracker/pkg/config"
	"github.com/whale-tracker/pkg/db"
	"github.com/whale-tracker/pkg/metrics"
	"github.com/whale-tracker/pkg/notify"
	"github.com/whale-tracker/pkg/poller"
	"github.com/whale-tracker/pkg/price"
	"github.com/whale-tracker/pkg/scoring"
	"github.com/whale-tracker/pkg/valuation"
)

func main() {
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).With().Timestamp().Logger()
	log.Info().Msg("🐋 Whale Tracker starting...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() { <-sigCh; log.Info().Msg("shutting down..."); cancel() }()

	store, err := db.NewStore(cfg.DBDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("database init failed")
	}
	defer store.Close()

	client, err := chain.Dial(ctx, cfg.RPCURL)
	if err != nil {
		log.Fatal().Err(err).Msg("chain client init failed")
	}
	defer client.Close()

	m := metrics.New()
	oracle := price.NewOracle(price.NewCoinGecko(cfg.CoinGeckoURL), cfg.CoinIDs, cfg.PriceCacheTTL)
	valuator := newValuator(cfg, oracle)
	dispatcher, sinks := newDispatcher(ctx, cfg)

	p := poller.New(client, valuator, store, dispatcher, m, poller.Config{
		ThresholdUSD:  decimal.NewFromFloat(cfg.WhaleThresholdUSD),
		PollInterval:  cfg.PollInterval,
		DispatchDelay: cfg.DispatchDelay,
	})
	if err := p.Init(ctx); err != nil {
		log.Fatal().Err(err).Msg("cannot establish starting block")
	}

	engine := scoring.NewEngine(client, valuator, scoring.Config{
		WindowDays:   cfg.AnalysisWindowDays,
		AvgBlockTime: cfg.AvgBlockTime,
	})
	cache := analysis.NewCache(engine, m, analysis.Options{
		TTL:        cfg.AnalysisCacheTTL,
		MaxEntries: cfg.AnalysisCacheMax,
		EvictCount: cfg.AnalysisCacheEvict,
	})

	sched := cron.New()
	if _, err := sched.AddFunc(cfg.CachePurgeSchedule, func() {
		if n := cache.Purge(); n > 0 {
			log.Debug().Int("purged", n).Int("remaining", cache.Len()).Msg("analysis cache purge")
		}
	}); err != nil {
		log.Fatal().Err(err).Str("schedule", cfg.CachePurgeSchedule).Msg("bad CACHE_PURGE_SCHEDULE")
	}
	sched.Start()
	defer sched.Stop()

	server := api.New(store, cache, oracle, p, m.Handler(), cfg.APIPort)

	errCh := make(chan error, 2)
	go func() { errCh <- p.Run(ctx) }()
	go func() { errCh <- server.Run(ctx) }()

	printSummary(ctx, cfg, store, p, sinks)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("error")
		}
	}
	cancel()
	log.Info().Uint64("cursor", p.Cursor()).Msg("goodbye 👋")
}

func newValuator(cfg *config.Config, oracle *price.Oracle) valuation.Valuator {
	h := valuation.NewHeuristic(cfg.NativeReferencePriceUSD, cfg.Valuation)
	if cfg.ValuationMode == "oracle" {
		return valuation.NewOracleBacked(oracle, h, "ETH")
	}
	return h
}

// newDispatcher always logs, and fans out to every configured sink.
func newDispatcher(ctx context.Context, cfg *config.Config) (notify.Dispatcher, []string) {
	d := notify.Multi{notify.LogDispatcher{}}
	sinks := []string{"log"}

	if cfg.RedisURL != "" {
		if rc, err := notify.DialRedis(ctx, cfg.RedisURL); err != nil {
			log.Warn().Err(err).Msg("redis sink disabled")
		} else {
			d = append(d, notify.NewRedisDispatcher(rc, cfg.RedisStream))
			sinks = append(sinks, "redis:"+cfg.RedisStream)
		}
	}
	if cfg.NATSURL != "" {
		if nc, err := notify.DialNATS(cfg.NATSURL); err != nil {
			log.Warn().Err(err).Msg("nats sink disabled")
		} else {
			d = append(d, notify.NewNATSDispatcher(nc, cfg.NATSSubject))
			sinks = append(sinks, "nats:"+cfg.NATSSubject)
		}
	}
	if cfg.WebhookURL != "" {
		d = append(d, notify.NewWebhookDispatcher(cfg.WebhookURL, cfg.WebhookChatID))
		sinks = append(sinks, "webhook")
	}
	return d, sinks
}

func printSummary(ctx context.Context, cfg *config.Config, store *db.Store, p *poller.Poller, sinks []string) {
	stats, _ := store.Stats(ctx)
	bold := color.New(color.FgCyan, color.Bold).SprintFunc()

	fmt.Println("\n" + strings.Repeat("═", 60))
	fmt.Println("  " + bold("🐋 WHALE TRACKER - RUNNING"))
	fmt.Println(strings.Repeat("═", 60))

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Setting", "Value"})
	table.SetBorder(false)
	table.Append([]string{"Chain", string(cfg.Chain)})
	table.Append([]string{"Start block", fmt.Sprintf("%d", p.Cursor())})
	table.Append([]string{"Threshold", fmt.Sprintf("$%.0f", cfg.WhaleThresholdUSD)})
	table.Append([]string{"Poll interval", cfg.PollInterval.String()})
	table.Append([]string{"Valuation", cfg.ValuationMode})
	table.Append([]string{"Alert sinks", strings.Join(sinks, ", ")})
	table.Append([]string{"API", fmt.Sprintf("http://localhost:%d", cfg.APIPort)})
	if stats != nil {
		table.Append([]string{"Stored whales", fmt.Sprintf("%d", stats["whale_events"])})
	}
	table.Render()

	fmt.Println(strings.Repeat("═", 60) + "\n")
}
