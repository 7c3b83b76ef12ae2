package chain

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/shopspring/decimal"
)

// ── Alchemy-flavoured EVM JSON-RPC client ───────────────────
// Standard calls go through ethclient; the alchemy_* enhanced
// methods go through the raw rpc.Client on the same connection.

type Client struct {
	rc *rpc.Client
	ec *ethclient.Client
}

var _ Provider = (*Client)(nil)

func Dial(ctx context.Context, url string) (*Client, error) {
	rc, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return &Client{rc: rc, ec: ethclient.NewClient(rc)}, nil
}

func (c *Client) Close() {
	c.rc.Close()
}

// ── eth_blockNumber ─────────────────────────────────────────

func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	n, err := c.ec.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("eth_blockNumber: %w", err)
	}
	return n, nil
}

// ── alchemy_getAssetTransfers ───────────────────────────────

type transferParams struct {
	FromBlock        string     `json:"fromBlock"`
	ToBlock          string     `json:"toBlock"`
	FromAddress      string     `json:"fromAddress,omitempty"`
	ToAddress        string     `json:"toAddress,omitempty"`
	Category         []Category `json:"category"`
	Order            Order      `json:"order,omitempty"`
	ExcludeZeroValue bool       `json:"excludeZeroValue"`
	MaxCount         string     `json:"maxCount,omitempty"`
	PageKey          string     `json:"pageKey,omitempty"`
}

type rawTransfer struct {
	Hash     string              `json:"hash"`
	From     string              `json:"from"`
	To       *string             `json:"to"`
	Asset    *string             `json:"asset"`
	Value    decimal.NullDecimal `json:"value"`
	BlockNum hexutil.Uint64      `json:"blockNum"`
	Category Category            `json:"category"`
}

type transfersResult struct {
	Transfers []rawTransfer `json:"transfers"`
	PageKey   string        `json:"pageKey"`
}

// AssetTransfers follows pageKey until the provider runs out of pages
// or MaxCount transfers have been collected.
func (c *Client) AssetTransfers(ctx context.Context, q TransferQuery) ([]Transfer, error) {
	params := transferParams{
		FromBlock:        hexutil.EncodeUint64(q.FromBlock),
		ToBlock:          "latest",
		FromAddress:      q.FromAddress,
		ToAddress:        q.ToAddress,
		Category:         q.Categories,
		Order:            q.Order,
		ExcludeZeroValue: q.ExcludeZeroValue,
	}
	if q.ToBlock != nil {
		params.ToBlock = hexutil.EncodeUint64(*q.ToBlock)
	}
	if len(params.Category) == 0 {
		params.Category = []Category{CategoryExternal, CategoryERC20}
	}
	if q.MaxCount > 0 {
		params.MaxCount = hexutil.EncodeUint64(uint64(q.MaxCount))
	}

	var out []Transfer
	for {
		var res transfersResult
		if err := c.rc.CallContext(ctx, &res, "alchemy_getAssetTransfers", params); err != nil {
			return nil, fmt.Errorf("alchemy_getAssetTransfers: %w", err)
		}
		for _, rt := range res.Transfers {
			t := Transfer{
				Hash:     rt.Hash,
				From:     rt.From,
				To:       rt.To,
				Value:    rt.Value,
				BlockNum: uint64(rt.BlockNum),
				Category: rt.Category,
			}
			if rt.Asset != nil {
				t.Asset = *rt.Asset
			}
			out = append(out, t)
		}

		if q.MaxCount > 0 && len(out) >= q.MaxCount {
			return out[:q.MaxCount], nil
		}
		if res.PageKey == "" {
			return out, nil
		}
		params.PageKey = res.PageKey
	}
}

// ── alchemy_getTokenBalances ────────────────────────────────

func (c *Client) TokenBalances(ctx context.Context, address string) ([]TokenBalance, error) {
	var res struct {
		Address       string         `json:"address"`
		TokenBalances []TokenBalance `json:"tokenBalances"`
	}
	if err := c.rc.CallContext(ctx, &res, "alchemy_getTokenBalances", address, "erc20"); err != nil {
		return nil, fmt.Errorf("alchemy_getTokenBalances: %w", err)
	}
	return res.TokenBalances, nil
}

// ── eth_getBlockByNumber: timestamp only ────────────────────

func (c *Client) BlockTimestamp(ctx context.Context, block uint64) (time.Time, error) {
	var head *struct {
		Timestamp hexutil.Uint64 `json:"timestamp"`
	}
	if err := c.rc.CallContext(ctx, &head, "eth_getBlockByNumber", hexutil.EncodeUint64(block), false); err != nil {
		return time.Time{}, fmt.Errorf("eth_getBlockByNumber: %w", err)
	}
	if head == nil {
		return time.Time{}, fmt.Errorf("block %d not found", block)
	}
	return time.Unix(int64(head.Timestamp), 0).UTC(), nil
}
