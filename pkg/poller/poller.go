package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/whale-tracker/pkg/chain"
	"github.com/whale-tracker/pkg/db"
	"github.com/whale-tracker/pkg/metrics"
	"github.com/whale-tracker/pkg/notify"
	"github.com/whale-tracker/pkg/valuation"
)

var ErrNotInitialized = errors.New("poller: cursor not initialized")

type State int32

const (
	StateInitializing State = iota
	StatePolling
	StateProcessing
	StateBackoff
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "INITIALIZING"
	case StatePolling:
		return "POLLING"
	case StateProcessing:
		return "PROCESSING"
	case StateBackoff:
		return "BACKOFF"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// EventStore is the slice of *db.Store the poller writes to.
type EventStore interface {
	UpsertWhaleEvent(ctx context.Context, ev db.WhaleEvent) (inserted bool, err error)
}

type Config struct {
	ThresholdUSD  decimal.Decimal
	PollInterval  time.Duration
	DispatchDelay time.Duration
}

// Poller scans block ranges for whale transfers. One instance per store;
// nothing coordinates multiple pollers against the same database.
type Poller struct {
	provider   chain.Provider
	valuator   valuation.Valuator
	store      EventStore
	dispatcher notify.Dispatcher
	metrics    *metrics.Metrics
	cfg        Config

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time

	mu          sync.RWMutex
	state       State
	cursor      uint64
	initialized bool
}

func New(provider chain.Provider, valuator valuation.Valuator, store EventStore, dispatcher notify.Dispatcher, m *metrics.Metrics, cfg Config) *Poller {
	if m == nil {
		m = metrics.New()
	}
	if dispatcher == nil {
		dispatcher = notify.LogDispatcher{}
	}
	return &Poller{
		provider:   provider,
		valuator:   valuator,
		store:      store,
		dispatcher: dispatcher,
		metrics:    m,
		cfg:        cfg,
		sleep:      sleepCtx,
		now:        time.Now,
		state:      StateInitializing,
	}
}

func (p *Poller) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

func (p *Poller) Cursor() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cursor
}

func (p *Poller) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

// advance moves the cursor forward; it never moves backwards.
func (p *Poller) advance(height uint64) {
	p.mu.Lock()
	if height > p.cursor {
		p.cursor = height
	}
	p.mu.Unlock()
	p.metrics.CursorBlock.Set(float64(p.Cursor()))
}

// Init reads the chain head as the starting cursor. Earlier blocks are not backfilled.
func (p *Poller) Init(ctx context.Context) error {
	p.setState(StateInitializing)
	height, err := p.provider.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("read initial block height: %w", err)
	}

	p.mu.Lock()
	p.cursor = height
	p.initialized = true
	p.state = StatePolling
	p.mu.Unlock()
	p.metrics.CursorBlock.Set(float64(height))

	log.Info().Uint64("block", height).Msg("🚀 whale poller initialized")
	return nil
}

// Step runs one poll cycle. The cursor advances only after the whole
// range was fetched and every transfer in it was handled.
func (p *Poller) Step(ctx context.Context) (BatchResult, error) {
	p.mu.RLock()
	ready, cursor := p.initialized, p.cursor
	p.mu.RUnlock()
	if !ready {
		return BatchResult{}, ErrNotInitialized
	}

	p.setState(StatePolling)
	height, err := p.provider.BlockNumber(ctx)
	if err != nil {
		p.setState(StateBackoff)
		return BatchResult{}, fmt.Errorf("block number: %w", err)
	}
	if height <= cursor {
		return BatchResult{}, nil
	}

	p.setState(StateProcessing)
	from, to := cursor+1, height
	transfers, err := p.provider.AssetTransfers(ctx, chain.TransferQuery{
		FromBlock:        from,
		ToBlock:          &to,
		Categories:       []chain.Category{chain.CategoryExternal, chain.CategoryERC20},
		Order:            chain.OrderAsc,
		ExcludeZeroValue: true,
	})
	if err != nil {
		p.setState(StateBackoff)
		return BatchResult{}, fmt.Errorf("asset transfers %d..%d: %w", from, to, err)
	}

	res := p.ProcessBatch(ctx, transfers)
	if err := ctx.Err(); err != nil {
		return res, err
	}

	p.advance(height)
	p.setState(StatePolling)
	p.metrics.BatchTransfers.Observe(float64(len(transfers)))

	log.Debug().
		Uint64("from", from).
		Uint64("to", to).
		Int("transfers", res.Scanned).
		Int("whales", res.Whales).
		Int("new", res.Persisted).
		Msg("range processed")
	return res, nil
}

// Run initializes the cursor if needed and polls until ctx is cancelled.
// Provider failures are logged and retried after the poll interval.
func (p *Poller) Run(ctx context.Context) error {
	p.mu.RLock()
	ready := p.initialized
	p.mu.RUnlock()
	if !ready {
		if err := p.Init(ctx); err != nil {
			return err
		}
	}

	for {
		if _, err := p.Step(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.setState(StateBackoff)
			p.metrics.PollErrors.Inc()
			log.Error().Err(err).Uint64("cursor", p.Cursor()).Dur("retry_in", p.cfg.PollInterval).Msg("poll cycle failed")
		}
		if err := p.sleep(ctx, p.cfg.PollInterval); err != nil {
			log.Info().Uint64("cursor", p.Cursor()).Msg("whale poller stopped")
			return err
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
