package valuation

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/whale-tracker/pkg/config"
)

// Valuator turns a raw asset amount into an estimated USD value.
// Estimates are approximate; nothing here is a guaranteed market price.
type Valuator interface {
	Estimate(ctx context.Context, asset string, amount decimal.Decimal) decimal.Decimal
	// ReferencePrice is the USD price of the chain's native asset.
	ReferencePrice(ctx context.Context) decimal.Decimal
}

// ── Heuristic multiplier table ──────────────────────────────

type Heuristic struct {
	reference decimal.Decimal
	native    map[string]bool
	stable    map[string]bool
	fixed     map[string]decimal.Decimal
	fallback  decimal.Decimal
}

func NewHeuristic(referencePriceUSD float64, table config.ValuationTable) *Heuristic {
	h := &Heuristic{
		reference: decimal.NewFromFloat(referencePriceUSD),
		native:    map[string]bool{},
		stable:    map[string]bool{},
		fixed:     map[string]decimal.Decimal{},
		fallback:  decimal.NewFromFloat(table.Fallback),
	}
	for _, s := range table.NativeAliases {
		h.native[strings.ToUpper(s)] = true
	}
	for _, s := range table.Stablecoins {
		h.stable[strings.ToUpper(s)] = true
	}
	for s, m := range table.Fixed {
		h.fixed[strings.ToUpper(s)] = decimal.NewFromFloat(m)
	}
	return h
}

// Multiplier is the USD per unit applied to asset.
func (h *Heuristic) Multiplier(asset string) decimal.Decimal {
	sym := strings.ToUpper(asset)
	switch {
	case h.native[sym]:
		return h.reference
	case h.stable[sym]:
		return decimal.NewFromInt(1)
	}
	if m, ok := h.fixed[sym]; ok {
		return m
	}
	return h.fallback
}

func (h *Heuristic) Estimate(_ context.Context, asset string, amount decimal.Decimal) decimal.Decimal {
	return amount.Mul(h.Multiplier(asset))
}

func (h *Heuristic) ReferencePrice(context.Context) decimal.Decimal {
	return h.reference
}

// ── Oracle-backed ───────────────────────────────────────────

// PriceLookup is satisfied by *price.Oracle.
type PriceLookup interface {
	GetPrice(ctx context.Context, symbol string) float64
}

// OracleBacked prices assets through the oracle and falls back to the
// heuristic table whenever the oracle has no price (unmapped or down).
type OracleBacked struct {
	prices       PriceLookup
	heuristic    *Heuristic
	nativeSymbol string
}

func NewOracleBacked(prices PriceLookup, fallback *Heuristic, nativeSymbol string) *OracleBacked {
	return &OracleBacked{prices: prices, heuristic: fallback, nativeSymbol: nativeSymbol}
}

func (o *OracleBacked) Estimate(ctx context.Context, asset string, amount decimal.Decimal) decimal.Decimal {
	if p := o.prices.GetPrice(ctx, asset); p > 0 {
		return amount.Mul(decimal.NewFromFloat(p))
	}
	return o.heuristic.Estimate(ctx, asset, amount)
}

func (o *OracleBacked) ReferencePrice(ctx context.Context) decimal.Decimal {
	if p := o.prices.GetPrice(ctx, o.nativeSymbol); p > 0 {
		return decimal.NewFromFloat(p)
	}
	return o.heuristic.ReferencePrice(ctx)
}
