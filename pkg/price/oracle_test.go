package price

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	mu     sync.Mutex
	prices map[string]float64
	fail   map[string]bool
	calls  int32
}

func (f *fakeSource) Price(_ context.Context, coinID, _ string) (float64, error) {
	atomic.AddInt32(&f.calls, 1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[coinID] {
		return 0, errors.New("upstream down")
	}
	return f.prices[coinID], nil
}

func (f *fakeSource) setFail(id string, v bool) {
	f.mu.Lock()
	f.fail[id] = v
	f.mu.Unlock()
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestOracle(src Source) (*Oracle, *clock) {
	clk := &clock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	o := NewOracle(src, map[string]string{"eth": "ethereum", "USDC": "usd-coin", "ARB": "arbitrum"}, 5*time.Minute)
	o.now = clk.now
	return o, clk
}

func TestOracle_UnmappedSymbolIsZero(t *testing.T) {
	src := &fakeSource{prices: map[string]float64{}, fail: map[string]bool{}}
	o, _ := newTestOracle(src)

	assert.Equal(t, 0.0, o.GetPrice(context.Background(), "PEPE"))
	assert.Equal(t, int32(0), src.calls)
	assert.False(t, o.Supports("PEPE"))
	assert.True(t, o.Supports("Eth"))
}

func TestOracle_CachesWithinTTL(t *testing.T) {
	src := &fakeSource{prices: map[string]float64{"ethereum": 3300}, fail: map[string]bool{}}
	o, clk := newTestOracle(src)

	assert.Equal(t, 3300.0, o.GetPrice(context.Background(), "eth"))
	src.prices["ethereum"] = 3400
	clk.advance(4 * time.Minute)
	assert.Equal(t, 3300.0, o.GetPrice(context.Background(), "ETH"))
	assert.Equal(t, int32(1), src.calls)

	clk.advance(2 * time.Minute)
	assert.Equal(t, 3400.0, o.GetPrice(context.Background(), "ETH"))
	assert.Equal(t, int32(2), src.calls)
}

func TestOracle_NonPositiveTTLUsesDefault(t *testing.T) {
	src := &fakeSource{prices: map[string]float64{"ethereum": 3300}, fail: map[string]bool{}}
	clk := &clock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	o := NewOracle(src, map[string]string{"ETH": "ethereum"}, 0)
	o.now = clk.now

	o.GetPrice(context.Background(), "ETH")
	clk.advance(DefaultTTL - time.Second)
	o.GetPrice(context.Background(), "ETH")
	assert.Equal(t, int32(1), src.calls)
	assert.Equal(t, DefaultTTL, NewOracle(src, nil, -time.Second).ttl)
}

func TestOracle_FailureServesStale(t *testing.T) {
	src := &fakeSource{prices: map[string]float64{"ethereum": 3300}, fail: map[string]bool{}}
	o, clk := newTestOracle(src)

	require.Equal(t, 3300.0, o.GetPrice(context.Background(), "ETH"))
	clk.advance(time.Hour)
	src.setFail("ethereum", true)
	assert.Equal(t, 3300.0, o.GetPrice(context.Background(), "ETH"))
}

func TestOracle_FailureWithoutCacheIsZero(t *testing.T) {
	src := &fakeSource{prices: map[string]float64{}, fail: map[string]bool{"arbitrum": true}}
	o, _ := newTestOracle(src)

	assert.Equal(t, 0.0, o.GetPrice(context.Background(), "ARB"))
}

func TestOracle_GetBulkPrices_PartialFailure(t *testing.T) {
	src := &fakeSource{
		prices: map[string]float64{"ethereum": 3300, "usd-coin": 1},
		fail:   map[string]bool{"arbitrum": true},
	}
	o, _ := newTestOracle(src)

	got := o.GetBulkPrices(context.Background(), []string{"eth", "USDC", "ARB", "DOGE"})
	assert.Equal(t, map[string]float64{"ETH": 3300, "USDC": 1, "ARB": 0, "DOGE": 0}, got)
}

func TestCoinGecko_Price(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/simple/price", r.URL.Path)
		assert.Equal(t, "ethereum", r.URL.Query().Get("ids"))
		assert.Equal(t, "usd", r.URL.Query().Get("vs_currencies"))
		w.Write([]byte(`{"ethereum":{"usd":3312.5}}`))
	}))
	defer srv.Close()

	p, err := NewCoinGecko(srv.URL + "/").Price(context.Background(), "ethereum", "usd")
	require.NoError(t, err)
	assert.Equal(t, 3312.5, p)
}

func TestCoinGecko_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("ids") == "missing" {
			w.Write([]byte(`{}`))
			return
		}
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	cg := NewCoinGecko(srv.URL)
	_, err := cg.Price(context.Background(), "ethereum", "usd")
	assert.Error(t, err)
	_, err = cg.Price(context.Background(), "missing", "usd")
	assert.Error(t, err)
}
