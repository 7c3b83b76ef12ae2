package price

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Source looks up a single spot price for a provider-specific coin id.
type Source interface {
	Price(ctx context.Context, coinID, currency string) (float64, error)
}

// CoinGecko is a Source backed by the public /simple/price endpoint.
type CoinGecko struct {
	baseURL string
	client  *http.Client
}

func NewCoinGecko(baseURL string) *CoinGecko {
	return &CoinGecko{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *CoinGecko) Price(ctx context.Context, coinID, currency string) (float64, error) {
	q := url.Values{}
	q.Set("ids", coinID)
	q.Set("vs_currencies", currency)
	u := c.baseURL + "/api/v3/simple/price?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return 0, fmt.Errorf("HTTP %d from coingecko", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, err
	}

	var result map[string]map[string]float64
	if err := json.Unmarshal(body, &result); err != nil {
		return 0, fmt.Errorf("coingecko unmarshal: %w", err)
	}
	p, ok := result[coinID][currency]
	if !ok {
		return 0, fmt.Errorf("no %s price for %s", currency, coinID)
	}
	return p, nil
}
