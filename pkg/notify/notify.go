package notify

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/whale-tracker/pkg/db"
)

const KindWhaleAlert = "whale_alert"

// Alert is the payload handed to downstream delivery. Amount is USD.
type Alert struct {
	ID          string          `json:"id"`
	Kind        string          `json:"kind"`
	Address     string          `json:"address"`
	Type        string          `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
	Token       string          `json:"token"`
	TxHash      string          `json:"txHash"`
	TokenAmount decimal.Decimal `json:"tokenAmount"`
	To          string          `json:"to"`
	BlockNumber uint64          `json:"blockNumber"`
	CreatedAt   time.Time       `json:"createdAt"`
}

func NewWhaleAlert(ev db.WhaleEvent) Alert {
	return Alert{
		ID:          uuid.NewString(),
		Kind:        KindWhaleAlert,
		Address:     ev.FromAddress,
		Type:        ev.Kind(),
		Amount:      ev.USDValue,
		Token:       ev.Asset,
		TxHash:      ev.TxHash,
		TokenAmount: ev.RawAmount,
		To:          ev.Recipient(),
		BlockNumber: ev.BlockNumber,
		CreatedAt:   time.Now().UTC(),
	}
}

// Dispatcher delivers one alert. No retries; callers log failures and move on.
type Dispatcher interface {
	Dispatch(ctx context.Context, a Alert) error
}

// ── Log ─────────────────────────────────────────────────────

type LogDispatcher struct{}

func (LogDispatcher) Dispatch(_ context.Context, a Alert) error {
	log.Info().
		Str("tx", a.TxHash).
		Str("from", a.Address).
		Str("to", a.To).
		Str("token", a.Token).
		Str("usd", a.Amount.StringFixed(2)).
		Msg("🐋 whale alert")
	return nil
}

// ── Fan-out ─────────────────────────────────────────────────

// Multi sends to every sink and joins their errors.
type Multi []Dispatcher

func (m Multi) Dispatch(ctx context.Context, a Alert) error {
	var errs []error
	for _, d := range m {
		if err := d.Dispatch(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
