package price

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const currencyUSD = "usd"

type entry struct {
	price     float64
	fetchedAt time.Time
}

// Oracle caches per-symbol USD prices in front of a Source.
// A failed refresh serves the last known price, however old, else 0.
type Oracle struct {
	source Source
	ids    map[string]string
	ttl    time.Duration
	now    func() time.Time

	mu    sync.RWMutex
	cache map[string]entry
}

const DefaultTTL = 5 * time.Minute

// NewOracle builds a price cache; a non-positive ttl means DefaultTTL.
func NewOracle(source Source, ids map[string]string, ttl time.Duration) *Oracle {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	norm := make(map[string]string, len(ids))
	for sym, id := range ids {
		norm[strings.ToUpper(sym)] = id
	}
	return &Oracle{
		source: source,
		ids:    norm,
		ttl:    ttl,
		now:    time.Now,
		cache:  map[string]entry{},
	}
}

// Supports reports whether symbol has a coin id mapping.
func (o *Oracle) Supports(symbol string) bool {
	_, ok := o.ids[strings.ToUpper(symbol)]
	return ok
}

func (o *Oracle) GetPrice(ctx context.Context, symbol string) float64 {
	sym := strings.ToUpper(symbol)
	coinID, ok := o.ids[sym]
	if !ok {
		log.Debug().Str("symbol", sym).Msg("no coin id mapping, price is 0")
		return 0
	}

	o.mu.RLock()
	cached, have := o.cache[sym]
	o.mu.RUnlock()

	if have && o.now().Sub(cached.fetchedAt) < o.ttl {
		return cached.price
	}

	p, err := o.source.Price(ctx, coinID, currencyUSD)
	if err != nil {
		if have {
			log.Warn().Err(err).Str("symbol", sym).Float64("stale", cached.price).Msg("price refresh failed, serving stale")
			return cached.price
		}
		log.Warn().Err(err).Str("symbol", sym).Msg("price refresh failed, no cached value")
		return 0
	}

	o.mu.Lock()
	o.cache[sym] = entry{price: p, fetchedAt: o.now()}
	o.mu.Unlock()
	return p
}

// GetBulkPrices looks up every symbol concurrently. Keys are uppercased.
func (o *Oracle) GetBulkPrices(ctx context.Context, symbols []string) map[string]float64 {
	out := make(map[string]float64, len(symbols))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, s := range symbols {
		sym := strings.ToUpper(s)
		g.Go(func() error {
			p := o.GetPrice(gctx, sym)
			mu.Lock()
			out[sym] = p
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}
