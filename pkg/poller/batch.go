package poller

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/whale-tracker/pkg/chain"
	"github.com/whale-tracker/pkg/db"
	"github.com/whale-tracker/pkg/notify"
)

type BatchResult struct {
	Scanned        int
	Whales         int
	Persisted      int
	Duplicates     int
	PersistErrors  int
	Dispatched     int
	DispatchErrors int
}

// Classify returns the USD estimate of t and whether it reaches the threshold.
func (p *Poller) Classify(ctx context.Context, t chain.Transfer) (decimal.Decimal, bool) {
	amount := decimal.Zero
	if t.Value.Valid {
		amount = t.Value.Decimal
	}
	usd := p.valuator.Estimate(ctx, t.Asset, amount)
	return usd, usd.GreaterThanOrEqual(p.cfg.ThresholdUSD)
}

// ProcessBatch values, classifies, persists and dispatches transfers in
// order. Per-item failures are counted and logged, never returned.
// Rows the store already had are not re-alerted.
func (p *Poller) ProcessBatch(ctx context.Context, transfers []chain.Transfer) BatchResult {
	var res BatchResult

	for _, t := range transfers {
		if ctx.Err() != nil {
			break
		}
		res.Scanned++
		if t.Hash == "" {
			continue
		}

		usd, whale := p.Classify(ctx, t)
		if !whale {
			continue
		}
		res.Whales++
		p.metrics.WhalesDetected.Inc()

		ev := db.WhaleEvent{
			TxHash:      t.Hash,
			FromAddress: t.From,
			ToAddress:   t.To,
			Asset:       t.Asset,
			RawAmount:   t.Value.Decimal,
			USDValue:    usd,
			BlockNumber: t.BlockNum,
			ObservedAt:  p.now().UTC(),
		}

		inserted, err := p.store.UpsertWhaleEvent(ctx, ev)
		switch {
		case err != nil:
			res.PersistErrors++
			p.metrics.PersistErrors.Inc()
			log.Error().Err(err).Str("tx", t.Hash).Msg("persist whale event failed")
		case !inserted:
			res.Duplicates++
			log.Debug().Str("tx", t.Hash).Msg("whale event already stored")
			continue
		default:
			res.Persisted++
			p.metrics.WhalesPersisted.Inc()
		}

		log.Info().
			Str("tx", t.Hash).
			Str("from", abbrev(ev.FromAddress)).
			Str("to", abbrev(ev.Recipient())).
			Str("asset", ev.Asset).
			Str("usd", usd.StringFixed(2)).
			Uint64("block", ev.BlockNumber).
			Msg("🐋 whale detected")

		if res.Dispatched+res.DispatchErrors > 0 {
			if err := p.sleep(ctx, p.cfg.DispatchDelay); err != nil {
				break
			}
		}
		if err := p.dispatcher.Dispatch(ctx, notify.NewWhaleAlert(ev)); err != nil {
			res.DispatchErrors++
			p.metrics.DispatchErrors.Inc()
			log.Warn().Err(err).Str("tx", t.Hash).Msg("alert dispatch failed")
			continue
		}
		res.Dispatched++
	}

	return res
}

func abbrev(addr string) string {
	if len(addr) <= 12 {
		return addr
	}
	return addr[:6] + "..." + addr[len(addr)-4:]
}
