package chain

import (
	"context"
	"math/big"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Category string

const (
	CategoryExternal Category = "external"
	CategoryERC20    Category = "erc20"
	CategoryERC721   Category = "erc721"
	CategoryERC1155  Category = "erc1155"
)

type Order string

const (
	OrderAsc  Order = "asc"
	OrderDesc Order = "desc"
)

// Transfer is one asset movement as reported by the provider.
// To is nil for contract creations. Value is null for NFT transfers.
type Transfer struct {
	Hash     string              `json:"hash"`
	From     string              `json:"from"`
	To       *string             `json:"to"`
	Asset    string              `json:"asset"`
	Value    decimal.NullDecimal `json:"value"`
	BlockNum uint64              `json:"blockNum"`
	Category Category            `json:"category"`
}

// HasValue reports whether the transfer carries a non-null, non-zero amount.
func (t Transfer) HasValue() bool {
	return t.Value.Valid && !t.Value.Decimal.IsZero()
}

// TransferQuery filters an asset-transfer lookup. A nil ToBlock means "latest".
type TransferQuery struct {
	FromBlock        uint64
	ToBlock          *uint64
	FromAddress      string
	ToAddress        string
	Categories       []Category
	Order            Order
	ExcludeZeroValue bool
	MaxCount         int
}

type TokenBalance struct {
	ContractAddress string `json:"contractAddress"`
	TokenBalance    string `json:"tokenBalance"`
}

// IsZero treats empty, "0x" and unparsable balances as zero.
func (b TokenBalance) IsZero() bool {
	raw := strings.TrimPrefix(strings.ToLower(b.TokenBalance), "0x")
	if raw == "" {
		return true
	}
	v, ok := new(big.Int).SetString(raw, 16)
	return !ok || v.Sign() == 0
}

// Provider is the read-only view of chain state the poller and scorer need.
type Provider interface {
	BlockNumber(ctx context.Context) (uint64, error)
	AssetTransfers(ctx context.Context, q TransferQuery) ([]Transfer, error)
	TokenBalances(ctx context.Context, address string) ([]TokenBalance, error)
	BlockTimestamp(ctx context.Context, block uint64) (time.Time, error)
}
