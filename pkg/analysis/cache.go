package analysis

import (
	"context"
	"errors"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/whale-tracker/pkg/metrics"
	"github.com/whale-tracker/pkg/scoring"
)

var ErrInvalidAddress = errors.New("invalid EVM address: expected 0x followed by 40 hex characters")

var addressRe = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

func ValidateAddress(address string) error {
	if !addressRe.MatchString(address) {
		return ErrInvalidAddress
	}
	return nil
}

// Analyzer is satisfied by *scoring.Engine.
type Analyzer interface {
	Analyze(ctx context.Context, address string) scoring.Metrics
}

// Result is a scoring result tagged with its cache provenance.
type Result struct {
	scoring.Metrics
	Address    string    `json:"address"`
	Cached     bool      `json:"cached"`
	CacheAge   *int64    `json:"cacheAge,omitempty"` // seconds, hits only
	AnalyzedAt time.Time `json:"analyzedAt"`
}

type entry struct {
	metrics    scoring.Metrics
	computedAt time.Time
}

type Options struct {
	TTL        time.Duration
	MaxEntries int
	EvictCount int
}

// Cache memoizes wallet analyses by lowercased address. When it grows past
// MaxEntries it drops the EvictCount entries with the oldest computedAt.
type Cache struct {
	engine  Analyzer
	opts    Options
	metrics *metrics.Metrics
	now     func() time.Time

	mu      sync.RWMutex
	entries map[string]entry
	flight  singleflight.Group
}

func NewCache(engine Analyzer, m *metrics.Metrics, opts Options) *Cache {
	if opts.TTL <= 0 {
		opts.TTL = time.Hour
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = 100
	}
	if opts.EvictCount <= 0 || opts.EvictCount > opts.MaxEntries {
		opts.EvictCount = opts.MaxEntries / 2
	}
	if m == nil {
		m = metrics.New()
	}
	return &Cache{
		engine:  engine,
		opts:    opts,
		metrics: m,
		now:     time.Now,
		entries: map[string]entry{},
	}
}

func (c *Cache) GetOrCompute(ctx context.Context, address string) (Result, error) {
	if err := ValidateAddress(address); err != nil {
		return Result{}, err
	}
	key := strings.ToLower(address)

	if res, ok := c.lookup(key); ok {
		c.metrics.AnalysisCacheHits.Inc()
		return res, nil
	}
	c.metrics.AnalysisCacheMisses.Inc()

	// Computation ignores caller cancellation; a cancelled caller only stops waiting.
	detached := context.WithoutCancel(ctx)
	ch := c.flight.DoChan(key, func() (interface{}, error) {
		start := time.Now()
		m := c.engine.Analyze(detached, key)
		c.metrics.AnalysisDuration.Observe(time.Since(start).Seconds())

		computedAt := c.now()
		c.store(key, entry{metrics: m, computedAt: computedAt})
		return Result{Metrics: m, Address: key, AnalyzedAt: computedAt.UTC()}, nil
	})

	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case r := <-ch:
		return r.Val.(Result), nil
	}
}

func (c *Cache) lookup(key string) (Result, bool) {
	now := c.now()

	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return Result{}, false
	}

	age := now.Sub(e.computedAt)
	if age > c.opts.TTL {
		c.mu.Lock()
		if cur, still := c.entries[key]; still && cur.computedAt.Equal(e.computedAt) {
			delete(c.entries, key)
		}
		c.metrics.AnalysisCacheEntries.Set(float64(len(c.entries)))
		c.mu.Unlock()
		return Result{}, false
	}

	secs := int64(age / time.Second)
	return Result{
		Metrics:    e.metrics,
		Address:    key,
		Cached:     true,
		CacheAge:   &secs,
		AnalyzedAt: e.computedAt.UTC(),
	}, true
}

func (c *Cache) store(key string, e entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = e
	if len(c.entries) > c.opts.MaxEntries {
		c.evictOldestLocked(key)
	}
	c.metrics.AnalysisCacheEntries.Set(float64(len(c.entries)))
}

// evictOldestLocked removes EvictCount entries by computedAt, never keep.
func (c *Cache) evictOldestLocked(keep string) {
	type aged struct {
		key string
		at  time.Time
	}
	candidates := make([]aged, 0, len(c.entries))
	for k, e := range c.entries {
		if k != keep {
			candidates = append(candidates, aged{k, e.computedAt})
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].at.Equal(candidates[j].at) {
			return candidates[i].key < candidates[j].key
		}
		return candidates[i].at.Before(candidates[j].at)
	})

	n := c.opts.EvictCount
	if n > len(candidates) {
		n = len(candidates)
	}
	for _, a := range candidates[:n] {
		delete(c.entries, a.key)
	}
	log.Debug().Int("evicted", n).Int("remaining", len(c.entries)).Msg("analysis cache trimmed")
}

// Purge drops every expired entry and returns how many were removed.
func (c *Cache) Purge() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for k, e := range c.entries {
		if now.Sub(e.computedAt) > c.opts.TTL {
			delete(c.entries, k)
			removed++
		}
	}
	c.metrics.AnalysisCacheEntries.Set(float64(len(c.entries)))
	return removed
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
