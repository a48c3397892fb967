// Package premium fuses EX-K and EX-U ticker/order-book data with the
// fiat rate into a signed premium, nets fees, and sizes a trade against
// book liquidity. The calculator is pure: it reads venue and fiat-rate
// state, never mutates it.
package premium

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/cryptofunk/internal/fiatrate"
	"github.com/ajitpratap0/cryptofunk/internal/venue"
)

// Direction classifies which way an Opportunity's cycle runs.
type Direction string

const (
	Forward Direction = "forward" // EX-K undervalued: buy EX-K, sell EX-U
	Reverse Direction = "reverse" // EX-K overvalued: buy EX-U, sell EX-K
)

// Snapshot is a transient, computed-on-demand fusion of both venues'
// prices and the fiat rate.
type Snapshot struct {
	Symbol      string
	PriceKKrw   decimal.Decimal
	PriceUUsdt  decimal.Decimal
	PriceUKrw   decimal.Decimal // priceU_usdt * fiatRate
	PremiumPct  decimal.Decimal // (priceK_krw - priceU_krw) / priceU_krw * 100
	FiatRate    decimal.Decimal
	FiatStale   bool
	Timestamp   time.Time
}

// Opportunity is a value object: created once, consumed once, never
// mutated.
type Opportunity struct {
	Symbol           string
	Direction        Direction
	PremiumPct       decimal.Decimal
	TetherPremiumPct decimal.Decimal
	EstFeesPct       decimal.Decimal
	SafetyMarginPct  decimal.Decimal
	NetProfitPct     decimal.Decimal
	SizedAmountKrw   decimal.Decimal
	Timestamp        time.Time
}

// FeeSchedule carries the taker fee rate each venue charges, used to net
// expected profit against the four trading legs a cycle crosses (two
// fees per venue).
type FeeSchedule struct {
	ExkTakerFeePct decimal.Decimal
	ExuTakerFeePct decimal.Decimal
}

// DefaultFeeSchedule mirrors common spot taker fees (0.1% per leg), used
// when no explicit configuration is supplied.
func DefaultFeeSchedule() FeeSchedule {
	tenthPct := decimal.NewFromFloat(0.1)
	return FeeSchedule{ExkTakerFeePct: tenthPct, ExuTakerFeePct: tenthPct}
}

// Calculator fuses venue and fiat-rate data into premiums and sized
// opportunities.
type Calculator struct {
	exk, exu venue.Client
	fiat     *fiatrate.Service
	fees     FeeSchedule

	// DepthLevels is how many top-of-book levels are summed on each side
	// when sizing a trade (typically the best five levels).
	DepthLevels int
	// DepthUtilizationPct is the fraction of summed top-of-book notional a
	// trade is willing to consume (defaults to 30%).
	DepthUtilizationPct decimal.Decimal
}

// New constructs a Calculator. exk quotes in KRW, exu in USDT.
func New(exk, exu venue.Client, fiat *fiatrate.Service, fees FeeSchedule) *Calculator {
	return &Calculator{
		exk:                 exk,
		exu:                 exu,
		fiat:                fiat,
		fees:                fees,
		DepthLevels:         5,
		DepthUtilizationPct: decimal.NewFromInt(30),
	}
}

const hundred = "100"

var hundredDec = decimal.RequireFromString(hundred)

// Premium computes the signed premium for symbol: EX-K price
// (symbol/KRW), EX-U price (symbol/USDT), and the fiat rate, fetched
// concurrently. No snapshot is produced if the fiat rate is unavailable
// or either venue fails.
func (c *Calculator) Premium(ctx context.Context, symbol string) (*Snapshot, error) {
	var priceK, priceU decimal.Decimal
	var rate fiatrate.Rate

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		priceK, err = c.exk.Ticker(gctx, symbol)
		return err
	})
	g.Go(func() error {
		var err error
		priceU, err = c.exu.Ticker(gctx, symbol)
		return err
	})
	g.Go(func() error {
		var err error
		rate, err = c.fiat.Rate(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return buildSnapshot(symbol, priceK, priceU, rate, time.Now()), nil
}

func buildSnapshot(symbol string, priceK, priceU decimal.Decimal, rate fiatrate.Rate, now time.Time) *Snapshot {
	priceUKrw := priceU.Mul(rate.Value)
	if priceUKrw.LessThanOrEqual(decimal.Zero) {
		return nil
	}
	premiumPct := priceK.Sub(priceUKrw).Div(priceUKrw).Mul(hundredDec)
	return &Snapshot{
		Symbol:     symbol,
		PriceKKrw:  priceK,
		PriceUUsdt: priceU,
		PriceUKrw:  priceUKrw,
		PremiumPct: premiumPct,
		FiatRate:   rate.Value,
		FiatStale:  rate.Stale,
		Timestamp:  now,
	}
}

// tetherSymbol is the asset whose KRW-quoted price on EX-K is compared
// against the theoretical fiat-rate-implied KRW-per-USDT.
const tetherSymbol = "USDT"

// TetherPremium computes the special-case premium: EX-K price of USDT
// vs KRW minus the theoretical KRW-per-USDT equal to fiatRate.
func (c *Calculator) TetherPremium(ctx context.Context) (*Snapshot, error) {
	priceK, err := c.exk.Ticker(ctx, tetherSymbol)
	if err != nil {
		return nil, err
	}
	rate, err := c.fiat.Rate(ctx)
	if err != nil {
		return nil, err
	}
	// USDT's own "EX-U price" is definitionally 1 USDT = 1 USDT.
	return buildSnapshot(tetherSymbol, priceK, decimal.NewFromInt(1), rate, time.Now()), nil
}

// CheckOpportunity combines coin premium with tether premium to classify
// direction and size, returning nil when no opportunity clears fees plus
// safety margin.
func (c *Calculator) CheckOpportunity(ctx context.Context, symbol string, safetyMarginPct, minKrw, maxKrw decimal.Decimal) (*Opportunity, error) {
	coin, err := c.Premium(ctx, symbol)
	if err != nil || coin == nil {
		return nil, err
	}
	tether, err := c.TetherPremium(ctx)
	if err != nil || tether == nil {
		return nil, err
	}

	sized, err := c.sizeTrade(ctx, symbol, minKrw, maxKrw)
	if err != nil {
		return nil, err
	}

	direction := Forward
	var expectedProfit decimal.Decimal
	if coin.PremiumPct.IsNegative() {
		direction = Forward
		expectedProfit = coin.PremiumPct.Abs().Sub(tether.PremiumPct)
	} else {
		direction = Reverse
		expectedProfit = coin.PremiumPct.Sub(tether.PremiumPct)
	}

	estFeesPct := c.estimateFeesPct(symbol, sized, direction)
	netProfit := expectedProfit.Sub(estFeesPct).Sub(safetyMarginPct)
	if !netProfit.IsPositive() {
		return nil, nil
	}

	return &Opportunity{
		Symbol:           symbol,
		Direction:        direction,
		PremiumPct:       coin.PremiumPct,
		TetherPremiumPct: tether.PremiumPct,
		EstFeesPct:       estFeesPct,
		SafetyMarginPct:  safetyMarginPct,
		NetProfitPct:     netProfit,
		SizedAmountKrw:   sized,
		Timestamp:        time.Now(),
	}, nil
}

// estimateFeesPct sums the four trading-fee legs plus the two on-chain
// withdraw fees (coin leg + USDT leg) converted to a percent of the
// sized trade.
func (c *Calculator) estimateFeesPct(symbol string, sizedKrw decimal.Decimal, direction Direction) decimal.Decimal {
	tradingFeesPct := c.fees.ExkTakerFeePct.Mul(decimal.NewFromInt(2)).Add(c.fees.ExuTakerFeePct.Mul(decimal.NewFromInt(2)))

	coinNetwork := venue.NetworkFor(symbol)
	coinWithdrawFeeUnits := venue.StaticWithdrawFee(symbol, coinNetwork)
	usdtNetwork := venue.NetworkFor(tetherSymbol)
	usdtWithdrawFeeUnits := venue.StaticWithdrawFee(tetherSymbol, usdtNetwork)

	// Converting a fixed on-chain fee (in units of the withdrawn asset) to
	// a percent of the KRW-denominated trade requires an approximate price
	// for that asset; sizedKrw itself is the best available proxy absent a
	// fresh quote round-trip.
	if sizedKrw.IsZero() {
		return tradingFeesPct
	}
	coinFeePct := coinWithdrawFeeUnits.Div(sizedKrw).Mul(hundredDec)
	usdtFeePct := usdtWithdrawFeeUnits.Div(sizedKrw).Mul(hundredDec)

	return tradingFeesPct.Add(coinFeePct).Add(usdtFeePct)
}

// sizeTrade takes the top DepthLevels of each of the four sides (EX-K bid,
// EX-K ask, EX-U bid, EX-U ask — EX-U converted to KRW via fiat rate) and
// sizes off the thinnest one, not the thinnest venue total: a trade crosses
// exactly one side per venue, so summing both sides together understates
// the liquidity constraint the trade actually faces and loosens the
// implicit slippage bound this sizing is meant to provide.
func (c *Calculator) sizeTrade(ctx context.Context, symbol string, minKrw, maxKrw decimal.Decimal) (decimal.Decimal, error) {
	bookK, err := c.exk.OrderBook(ctx, symbol, c.DepthLevels)
	if err != nil {
		return decimal.Zero, err
	}
	bookU, err := c.exu.OrderBook(ctx, symbol, c.DepthLevels)
	if err != nil {
		return decimal.Zero, err
	}
	rate, err := c.fiat.Rate(ctx)
	if err != nil {
		return decimal.Zero, err
	}

	kBid := sideNotional(bookK.Bids, decimal.NewFromInt(1))
	kAsk := sideNotional(bookK.Asks, decimal.NewFromInt(1))
	uBid := sideNotional(bookU.Bids, rate.Value)
	uAsk := sideNotional(bookU.Asks, rate.Value)

	min := kBid
	for _, side := range []decimal.Decimal{kAsk, uBid, uAsk} {
		if side.LessThan(min) {
			min = side
		}
	}

	sized := min.Mul(c.DepthUtilizationPct).Div(hundredDec)
	return clamp(sized, minKrw, maxKrw), nil
}

func sideNotional(levels []venue.Level, toKrw decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, l := range levels {
		total = total.Add(l.Price.Mul(l.Quantity))
	}
	return total.Mul(toKrw)
}

func clamp(v, min, max decimal.Decimal) decimal.Decimal {
	if v.LessThan(min) {
		return min
	}
	if v.GreaterThan(max) {
		return max
	}
	return v
}
