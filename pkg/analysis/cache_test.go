package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whale-tracker/pkg/metrics"
	"github.com/whale-tracker/pkg/scoring"
)

type countingEngine struct {
	calls int32
	seen  sync.Map
}

func (e *countingEngine) Analyze(_ context.Context, address string) scoring.Metrics {
	n := atomic.AddInt32(&e.calls, 1)
	e.seen.Store(address, true)
	return scoring.Metrics{Score: int(n), Confidence: scoring.ConfidenceLow, Category: scoring.CategoryBeginner}
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestCache() (*Cache, *countingEngine, *clock, *metrics.Metrics) {
	eng := &countingEngine{}
	clk := &clock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	m := metrics.New()
	c := NewCache(eng, m, Options{TTL: time.Hour, MaxEntries: 100, EvictCount: 50})
	c.now = clk.now
	return c, eng, clk, m
}

func addr(i int) string { return fmt.Sprintf("0x%040x", i) }

func TestValidateAddress(t *testing.T) {
	assert.NoError(t, ValidateAddress("0xAbCdEf0123456789abcdef0123456789ABCDEF01"))
	assert.ErrorIs(t, ValidateAddress(""), ErrInvalidAddress)
	assert.ErrorIs(t, ValidateAddress("0x123"), ErrInvalidAddress)
	assert.ErrorIs(t, ValidateAddress("abcdef0123456789abcdef0123456789abcdef0123"), ErrInvalidAddress)
	assert.ErrorIs(t, ValidateAddress("0xzzzdef0123456789abcdef0123456789abcdef01"), ErrInvalidAddress)
	assert.ErrorIs(t, ValidateAddress("0xabcdef0123456789abcdef0123456789abcdef012"), ErrInvalidAddress)
}

func TestCache_InvalidAddressNeverReachesEngine(t *testing.T) {
	c, eng, _, _ := newTestCache()
	_, err := c.GetOrCompute(context.Background(), "not-an-address")
	assert.ErrorIs(t, err, ErrInvalidAddress)
	assert.Equal(t, int32(0), eng.calls)
	assert.Equal(t, 0, c.Len())
}

func TestCache_HitWithinTTL(t *testing.T) {
	c, eng, clk, m := newTestCache()
	ctx := context.Background()
	a := "0xABCDEF0123456789ABCDEF0123456789ABCDEF01"

	fresh, err := c.GetOrCompute(ctx, a)
	require.NoError(t, err)
	assert.False(t, fresh.Cached)
	assert.Equal(t, strings.ToLower(a), fresh.Address)
	_, lowered := eng.seen.Load(strings.ToLower(a))
	assert.True(t, lowered)

	clk.advance(90 * time.Second)
	hit, err := c.GetOrCompute(ctx, strings.ToLower(a))
	require.NoError(t, err)
	assert.True(t, hit.Cached)
	require.NotNil(t, hit.CacheAge)
	assert.Equal(t, int64(90), *hit.CacheAge)
	assert.Nil(t, fresh.CacheAge)
	assert.Equal(t, fresh.Score, hit.Score)
	assert.Equal(t, int32(1), eng.calls)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.AnalysisCacheHits))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AnalysisCacheMisses))
}

func TestCache_ImmediateHitReportsZeroAge(t *testing.T) {
	c, _, _, _ := newTestCache()
	ctx := context.Background()

	_, err := c.GetOrCompute(ctx, addr(7))
	require.NoError(t, err)
	hit, err := c.GetOrCompute(ctx, addr(7))
	require.NoError(t, err)

	raw, err := json.Marshal(hit)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"cacheAge":0`)
}

// ctxEngine degrades to the fallback record when its context is done, the
// way scoring.Engine does when provider calls fail.
type ctxEngine struct{ calls int32 }

func (e *ctxEngine) Analyze(ctx context.Context, _ string) scoring.Metrics {
	atomic.AddInt32(&e.calls, 1)
	if ctx.Err() != nil {
		return scoring.Fallback()
	}
	return scoring.Metrics{Score: 64, Category: scoring.CategoryActive, Confidence: scoring.ConfidenceMedium}
}

func TestCache_CancelledCallerDoesNotCacheFallback(t *testing.T) {
	eng := &ctxEngine{}
	c := NewCache(eng, metrics.New(), Options{TTL: time.Hour, MaxEntries: 100, EvictCount: 50})
	a := addr(42)

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	if res, err := c.GetOrCompute(cancelled, a); err != nil {
		assert.ErrorIs(t, err, context.Canceled)
	} else {
		assert.Equal(t, 64, res.Score)
	}

	res, err := c.GetOrCompute(context.Background(), a)
	require.NoError(t, err)
	assert.Equal(t, 64, res.Score)
	assert.Equal(t, scoring.ConfidenceMedium, res.Confidence)
	assert.NotEqual(t, scoring.Fallback().Insights, res.Insights)
}

func TestCache_ExpiredEntryIsRecomputed(t *testing.T) {
	c, eng, clk, _ := newTestCache()
	ctx := context.Background()
	a := addr(1)

	_, err := c.GetOrCompute(ctx, a)
	require.NoError(t, err)

	clk.advance(time.Hour)
	res, _ := c.GetOrCompute(ctx, a)
	assert.True(t, res.Cached, "exactly one hour old is still live")

	clk.advance(time.Second)
	res, _ = c.GetOrCompute(ctx, a)
	assert.False(t, res.Cached)
	assert.Equal(t, 2, res.Score)
	assert.Equal(t, int32(2), eng.calls)
	assert.Equal(t, 1, c.Len())
}

func TestCache_EvictsOldestHalfPastCapacity(t *testing.T) {
	c, _, clk, m := newTestCache()
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		_, err := c.GetOrCompute(ctx, addr(i))
		require.NoError(t, err)
		clk.advance(time.Second)
	}
	require.Equal(t, 100, c.Len())

	_, err := c.GetOrCompute(ctx, addr(100))
	require.NoError(t, err)
	assert.Equal(t, 51, c.Len())
	assert.Equal(t, 51.0, testutil.ToFloat64(m.AnalysisCacheEntries))

	// the 50 oldest are gone; the 50 newest and the new one remain
	for i := 0; i < 50; i++ {
		_, ok := c.entries[addr(i)]
		assert.False(t, ok, "addr %d should be evicted", i)
	}
	for i := 50; i <= 100; i++ {
		_, ok := c.entries[addr(i)]
		assert.True(t, ok, "addr %d should remain", i)
	}
}

func TestCache_Purge(t *testing.T) {
	c, _, clk, _ := newTestCache()
	ctx := context.Background()

	c.GetOrCompute(ctx, addr(1))
	c.GetOrCompute(ctx, addr(2))
	clk.advance(45 * time.Minute)
	c.GetOrCompute(ctx, addr(3))
	clk.advance(30 * time.Minute)

	assert.Equal(t, 2, c.Purge())
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, 0, c.Purge())
}

func TestCache_ConcurrentRequests(t *testing.T) {
	c, eng, _, _ := newTestCache()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := c.GetOrCompute(ctx, addr(i%5))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 5, c.Len())
	assert.LessOrEqual(t, atomic.LoadInt32(&eng.calls), int32(20))
}
