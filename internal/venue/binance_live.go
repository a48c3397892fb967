package venue

import (
	"context"
	"fmt"
	"strconv"
	"time"

	binance "github.com/adshao/go-binance/v2"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"

	"github.com/ajitpratap0/cryptofunk/internal/exchange"
	"github.com/ajitpratap0/cryptofunk/internal/venueerr"
)

// BinanceLive is the EX-U (USDT-quoted) live VenueClient adapter. It wraps
// go-binance/v2 with a retry budget and a per-venue circuit breaker, maps
// every amount through shopspring/decimal, and exposes the VenueClient
// shape rather than a single-exchange interface.
type BinanceLive struct {
	client  *binance.Client
	breaker *gobreaker.CircuitBreaker
	retry   exchange.RetryConfig
}

// NewBinanceLive constructs a live EX-U client. testnet switches the
// process-wide binance.UseTestnet flag.
func NewBinanceLive(apiKey, secretKey string, testnet bool) *BinanceLive {
	if testnet {
		binance.UseTestnet = true
	}
	return &BinanceLive{
		client:  binance.NewClient(apiKey, secretKey),
		breaker: newBreaker("exu"),
		retry:   exchange.DefaultRetryConfig(),
	}
}

func (b *BinanceLive) Name() string          { return "exu" }
func (b *BinanceLive) QuoteCurrency() string { return "USDT" }

func (b *BinanceLive) call(ctx context.Context, op string, fn func() error) error {
	_, err := b.breaker.Execute(func() (interface{}, error) {
		return nil, exchange.WithRetry(ctx, b.retry, exchange.RetryableOperation(fn))
	})
	if err != nil {
		return classifyBinanceErr(op, err)
	}
	return nil
}

func classifyBinanceErr(op string, err error) error {
	if exchange.IsRetryable(err) {
		return venueerr.Wrap(venueerr.VenueTransient, op, "transient Binance failure", err)
	}
	return venueerr.Wrap(venueerr.VenuePermanent, op, "Binance call failed", err)
}

func (b *BinanceLive) Ticker(ctx context.Context, symbol string) (decimal.Decimal, error) {
	var price decimal.Decimal
	err := b.call(ctx, "exu.Ticker", func() error {
		prices, err := b.client.NewListPricesService().Symbol(symbol).Do(ctx)
		if err != nil {
			return err
		}
		if len(prices) == 0 {
			return fmt.Errorf("no price for %s", symbol)
		}
		price, err = decimal.NewFromString(prices[0].Price)
		return err
	})
	return price, err
}

func (b *BinanceLive) OrderBook(ctx context.Context, symbol string, depth int) (*Book, error) {
	if depth <= 0 || depth > 100 {
		depth = 20
	}
	var book Book
	book.Symbol = symbol
	err := b.call(ctx, "exu.OrderBook", func() error {
		res, err := b.client.NewDepthService().Symbol(symbol).Limit(depth).Do(ctx)
		if err != nil {
			return err
		}
		book.Timestamp = time.Now()
		for _, bid := range res.Bids {
			p, err := decimal.NewFromString(bid.Price)
			if err != nil {
				return err
			}
			q, err := decimal.NewFromString(bid.Quantity)
			if err != nil {
				return err
			}
			book.Bids = append(book.Bids, Level{Price: p, Quantity: q})
		}
		for _, ask := range res.Asks {
			p, err := decimal.NewFromString(ask.Price)
			if err != nil {
				return err
			}
			q, err := decimal.NewFromString(ask.Quantity)
			if err != nil {
				return err
			}
			book.Asks = append(book.Asks, Level{Price: p, Quantity: q})
		}
		return nil
	})
	return &book, err
}

func (b *BinanceLive) Balance(ctx context.Context, asset string) (Balance, error) {
	var bal Balance
	bal.Asset = asset
	err := b.call(ctx, "exu.Balance", func() error {
		acct, err := b.client.NewGetAccountService().Do(ctx)
		if err != nil {
			return err
		}
		for _, a := range acct.Balances {
			if a.Asset != asset {
				continue
			}
			free, err := decimal.NewFromString(a.Free)
			if err != nil {
				return err
			}
			locked, err := decimal.NewFromString(a.Locked)
			if err != nil {
				return err
			}
			bal.Free, bal.Locked = free, locked
			bal.Total = free.Add(locked)
			return nil
		}
		return nil
	})
	return bal, err
}

func (b *BinanceLive) MarketBuy(ctx context.Context, symbol string, quoteAmount, baseQuantity *decimal.Decimal) (ExecutedOrder, error) {
	return b.marketOrder(ctx, symbol, binance.SideTypeBuy, quoteAmount, baseQuantity)
}

func (b *BinanceLive) MarketSell(ctx context.Context, symbol string, baseQuantity decimal.Decimal) (ExecutedOrder, error) {
	return b.marketOrder(ctx, symbol, binance.SideTypeSell, nil, &baseQuantity)
}

func (b *BinanceLive) marketOrder(ctx context.Context, symbol string, side binance.SideType, quoteAmount, baseQuantity *decimal.Decimal) (ExecutedOrder, error) {
	var result ExecutedOrder
	err := b.call(ctx, "exu.MarketOrder", func() error {
		svc := b.client.NewCreateOrderService().Symbol(symbol).Side(side).Type(binance.OrderTypeMarket)
		if quoteAmount != nil {
			svc = svc.QuoteOrderQty(quoteAmount.String())
		} else if baseQuantity != nil {
			svc = svc.Quantity(baseQuantity.String())
		} else {
			return fmt.Errorf("neither quoteAmount nor baseQuantity set")
		}
		res, err := svc.Do(ctx)
		if err != nil {
			return err
		}
		executedQty, err := decimal.NewFromString(res.ExecutedQuantity)
		if err != nil {
			return err
		}
		executedQuote, err := decimal.NewFromString(res.CummulativeQuoteQuantity)
		if err != nil {
			return err
		}
		var fee decimal.Decimal
		feeAsset := ""
		for _, fill := range res.Fills {
			f, err := decimal.NewFromString(fill.Commission)
			if err == nil {
				fee = fee.Add(f)
				feeAsset = fill.CommissionAsset
			}
		}
		result = ExecutedOrder{
			OrderID:       strconv.FormatInt(res.OrderID, 10),
			ExecutedQty:   executedQty,
			ExecutedQuote: executedQuote,
			Fee:           fee,
			FeeAsset:      feeAsset,
		}
		return nil
	})
	return result, err
}

func (b *BinanceLive) DepositAddress(ctx context.Context, asset, network string) (string, string, error) {
	var address, tag string
	err := b.call(ctx, "exu.DepositAddress", func() error {
		res, err := b.client.NewGetDepositAddressService().Coin(asset).Network(network).Do(ctx)
		if err != nil {
			return err
		}
		address, tag = res.Address, res.Tag
		return nil
	})
	return address, tag, err
}

func (b *BinanceLive) Withdraw(ctx context.Context, asset, address string, amount decimal.Decimal, network, tag string) (string, error) {
	var id string
	err := b.call(ctx, "exu.Withdraw", func() error {
		svc := b.client.NewCreateWithdrawService().Coin(asset).Address(address).Amount(amount.String()).Network(network)
		if tag != "" {
			svc = svc.AddressTag(tag)
		}
		res, err := svc.Do(ctx)
		if err != nil {
			return err
		}
		id = res.ID
		return nil
	})
	return id, err
}

func (b *BinanceLive) DepositHistory(ctx context.Context, asset string, since *time.Time) ([]DepositEntry, error) {
	var out []DepositEntry
	err := b.call(ctx, "exu.DepositHistory", func() error {
		svc := b.client.NewListDepositsService().Coin(asset)
		if since != nil {
			svc = svc.StartTime(since.UnixMilli())
		}
		deposits, err := svc.Do(ctx)
		if err != nil {
			return err
		}
		for _, d := range deposits {
			amt, err := decimal.NewFromString(d.Amount)
			if err != nil {
				continue
			}
			state := DepositPending
			if d.Status == 1 {
				state = DepositConfirmed
			}
			entry := DepositEntry{Amount: amt, State: state, TxID: d.TxID}
			if d.InsertTime > 0 {
				t := time.UnixMilli(d.InsertTime)
				entry.CompletedAt = &t
			}
			out = append(out, entry)
		}
		return nil
	})
	return out, err
}

func (b *BinanceLive) ListMarkets(ctx context.Context, quote string) ([]string, error) {
	var symbols []string
	err := b.call(ctx, "exu.ListMarkets", func() error {
		info, err := b.client.NewExchangeInfoService().Do(ctx)
		if err != nil {
			return err
		}
		for _, s := range info.Symbols {
			if s.QuoteAsset != quote || s.Status != "TRADING" {
				continue
			}
			symbols = append(symbols, s.BaseAsset)
		}
		return nil
	})
	return symbols, err
}

func (b *BinanceLive) VerifyAccess(ctx context.Context) (bool, string) {
	_, err := b.client.NewGetAccountService().Do(ctx)
	if err != nil {
		log.Error().Err(err).Msg("exu VerifyAccess failed")
		return false, err.Error()
	}
	return true, "ok"
}

func (b *BinanceLive) Quantize(symbol string, qty decimal.Decimal) (decimal.Decimal, error) {
	return quantizeDefault("exu", symbol, qty)
}

func (b *BinanceLive) WithdrawFee(asset, network string) decimal.Decimal {
	return StaticWithdrawFee(asset, network)
}

var _ Client = (*BinanceLive)(nil)
