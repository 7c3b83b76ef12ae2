package db

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	KindTransfer = "TRANSFER"
	KindContract = "CONTRACT"

	// ContractRecipient labels events whose transfer had no recipient.
	ContractRecipient = "Contract"
)

// WhaleEvent is one qualifying transfer. Immutable once written; TxHash is unique.
type WhaleEvent struct {
	TxHash      string          `json:"tx_hash"`
	FromAddress string          `json:"from_address"`
	ToAddress   *string         `json:"to_address"` // nil → contract creation
	Asset       string          `json:"asset"`
	RawAmount   decimal.Decimal `json:"raw_amount"`
	USDValue    decimal.Decimal `json:"usd_value"`
	BlockNumber uint64          `json:"block_number"`
	ObservedAt  time.Time       `json:"observed_at"`
}

func (e WhaleEvent) Kind() string {
	if e.ToAddress == nil {
		return KindContract
	}
	return KindTransfer
}

// Recipient is the display form of ToAddress.
func (e WhaleEvent) Recipient() string {
	if e.ToAddress == nil {
		return ContractRecipient
	}
	return *e.ToAddress
}
