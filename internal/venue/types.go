// Package venue defines the uniform VenueClient capability surface that
// both the KRW-quoted exchange (EX-K) and the USDT-quoted exchange (EX-U)
// satisfy, plus the live, paper-trading, and test-double implementations
// of it.
package venue

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// DepositState is the lifecycle state of a single deposit ledger entry.
type DepositState string

const (
	DepositPending   DepositState = "pending"
	DepositConfirmed DepositState = "confirmed"
	DepositFailed    DepositState = "failed"
)

// Level is one price/quantity rung of an order book.
type Level struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// Book is a snapshot of the top of book. Bids are sorted descending by
// price, asks ascending.
type Book struct {
	Symbol    string
	Bids      []Level
	Asks      []Level
	Timestamp time.Time
}

// Balance reports free/locked/total for a single asset on a single venue.
type Balance struct {
	Asset  string
	Free   decimal.Decimal
	Locked decimal.Decimal
	Total  decimal.Decimal
}

// ExecutedOrder is the result of a market buy or sell.
type ExecutedOrder struct {
	OrderID       string
	ExecutedQty   decimal.Decimal
	ExecutedQuote decimal.Decimal
	Fee           decimal.Decimal
	FeeAsset      string
}

// DepositEntry is one row of deposit history, used by the strategy's
// await_xfer_* states to detect confirmation.
type DepositEntry struct {
	Amount      decimal.Decimal
	State       DepositState
	TxID        string
	CompletedAt *time.Time
}

// Quote is a single priced observation of an asset against a venue's quote
// currency.
type Quote struct {
	Symbol    string
	Price     decimal.Decimal
	Timestamp time.Time
}

// Client is the uniform capability contract every venue satisfies,
// regardless of its REST idioms. Implementations: ExkLive and BinanceLive
// (real HTTPS clients), Paper (decorator intercepting order/withdraw/balance into an
// in-memory ledger), Mock (deterministic test double).
type Client interface {
	// Name identifies the venue for logging ("exk", "exu").
	Name() string

	// QuoteCurrency is the currency markets on this venue are quoted
	// against ("KRW" or "USDT").
	QuoteCurrency() string

	// Ticker returns the last trade price of symbol in the venue's quote
	// currency.
	Ticker(ctx context.Context, symbol string) (decimal.Decimal, error)

	// OrderBook returns up to depth levels per side.
	OrderBook(ctx context.Context, symbol string, depth int) (*Book, error)

	// Balance returns free/locked/total for asset.
	Balance(ctx context.Context, asset string) (Balance, error)

	// MarketBuy executes a market buy. Exactly one of quoteAmount (spend
	// this much quote currency) or baseQuantity (buy this much base asset)
	// must be non-nil.
	MarketBuy(ctx context.Context, symbol string, quoteAmount, baseQuantity *decimal.Decimal) (ExecutedOrder, error)

	// MarketSell executes a market sell of baseQuantity units of the base
	// asset.
	MarketSell(ctx context.Context, symbol string, baseQuantity decimal.Decimal) (ExecutedOrder, error)

	// DepositAddress returns the deposit address (and tag/memo, if the
	// network requires one) for asset on the given network.
	DepositAddress(ctx context.Context, asset, network string) (address, tag string, err error)

	// Withdraw initiates an on-chain withdrawal.
	Withdraw(ctx context.Context, asset, address string, amount decimal.Decimal, network, tag string) (withdrawalID string, err error)

	// DepositHistory lists deposits of asset since the given time (nil for
	// no lower bound).
	DepositHistory(ctx context.Context, asset string, since *time.Time) ([]DepositEntry, error)

	// ListMarkets returns every symbol traded against quote on this venue.
	ListMarkets(ctx context.Context, quote string) ([]string, error)

	// VerifyAccess is the authenticated liveness probe run at startup.
	VerifyAccess(ctx context.Context) (ok bool, message string)

	// Quantize snaps qty to the venue's lot/tick grid for symbol, returning
	// venueerr.VenuePermanent if the resulting quantity is below the
	// venue's minimum order size.
	Quantize(symbol string, qty decimal.Decimal) (decimal.Decimal, error)

	// WithdrawFee returns the fixed on-chain fee charged for withdrawing
	// asset over network, in units of asset.
	WithdrawFee(asset, network string) decimal.Decimal
}
