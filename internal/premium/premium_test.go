package premium_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/cryptofunk/internal/fiatrate"
	"github.com/ajitpratap0/cryptofunk/internal/premium"
	"github.com/ajitpratap0/cryptofunk/internal/venue"
)

type fixedRateProvider struct{ rate decimal.Decimal }

func (f fixedRateProvider) Name() string { return "fixed" }
func (f fixedRateProvider) FetchUSDKRW(ctx context.Context) (decimal.Decimal, error) {
	return f.rate, nil
}

func newHarness(t *testing.T, fiatRate decimal.Decimal) (*premium.Calculator, *venue.Mock, *venue.Mock) {
	t.Helper()
	exk := venue.NewMock("exk", "KRW")
	exu := venue.NewMock("exu", "USDT")
	fiat := fiatrate.New([]fiatrate.Provider{fixedRateProvider{rate: fiatRate}}, time.Minute, time.Hour, nil)

	calc := premium.New(exk, exu, fiat, premium.FeeSchedule{
		ExkTakerFeePct: decimal.NewFromFloat(0.1),
		ExuTakerFeePct: decimal.NewFromFloat(0.1),
	})
	return calc, exk, exu
}

func wideBook(symbol string, mid decimal.Decimal) *venue.Book {
	levels := func(base decimal.Decimal, sign int) []venue.Level {
		out := make([]venue.Level, 5)
		for i := 0; i < 5; i++ {
			delta := decimal.NewFromInt(int64(sign * (i + 1)))
			out[i] = venue.Level{Price: base.Add(delta), Quantity: decimal.NewFromInt(100)}
		}
		return out
	}
	return &venue.Book{Symbol: symbol, Bids: levels(mid, -1), Asks: levels(mid, 1), Timestamp: time.Now()}
}

// Forward arbitrage happy path.
func TestCheckOpportunity_ForwardHappyPath(t *testing.T) {
	calc, exk, exu := newHarness(t, decimal.NewFromInt(1300))

	exk.SetPrice("BTC", decimal.NewFromInt(130_000_000))
	exu.SetPrice("BTC", decimal.NewFromInt(101_000))
	exk.SetBook("BTC", wideBook("BTC", decimal.NewFromInt(130_000_000)))
	exu.SetBook("BTC", wideBook("BTC", decimal.NewFromInt(101_000)))

	// Tether premium ~0.3%: priceK_USDT = 1300 * 1.003
	exk.SetPrice("USDT", decimal.NewFromInt(1300).Mul(decimal.NewFromFloat(1.003)))

	opp, err := calc.CheckOpportunity(context.Background(), "BTC",
		decimal.NewFromFloat(0.1), decimal.NewFromInt(100_000), decimal.NewFromInt(5_000_000))
	require.NoError(t, err)
	require.NotNil(t, opp)

	assert.Equal(t, premium.Forward, opp.Direction)
	assert.True(t, opp.PremiumPct.IsNegative())
	assert.InDelta(t, -0.99, opp.PremiumPct.InexactFloat64(), 0.02)
	assert.InDelta(t, 0.3, opp.TetherPremiumPct.InexactFloat64(), 0.01)
	assert.True(t, opp.NetProfitPct.IsPositive())
}

// Scenario B's premium-reversal half (risk admission is tested in the risk
// package): reversed price gap should flip the classifier to Reverse.
func TestCheckOpportunity_ReverseDirection(t *testing.T) {
	calc, exk, exu := newHarness(t, decimal.NewFromInt(1300))

	exk.SetPrice("BTC", decimal.NewFromInt(130_000_000))
	exu.SetPrice("BTC", decimal.NewFromInt(99_000))
	exk.SetBook("BTC", wideBook("BTC", decimal.NewFromInt(130_000_000)))
	exu.SetBook("BTC", wideBook("BTC", decimal.NewFromInt(99_000)))
	exk.SetPrice("USDT", decimal.NewFromInt(1300).Mul(decimal.NewFromFloat(1.003)))

	opp, err := calc.CheckOpportunity(context.Background(), "BTC",
		decimal.NewFromFloat(0.1), decimal.NewFromInt(100_000), decimal.NewFromInt(5_000_000))
	require.NoError(t, err)
	require.NotNil(t, opp)
	assert.Equal(t, premium.Reverse, opp.Direction)
	assert.True(t, opp.PremiumPct.IsPositive())
}

// Property 2: Opportunity necessity.
func TestCheckOpportunity_NecessityInvariant(t *testing.T) {
	calc, exk, exu := newHarness(t, decimal.NewFromInt(1300))
	exk.SetPrice("ETH", decimal.NewFromInt(4_200_000))
	exu.SetPrice("ETH", decimal.NewFromInt(3_000))
	exk.SetBook("ETH", wideBook("ETH", decimal.NewFromInt(4_200_000)))
	exu.SetBook("ETH", wideBook("ETH", decimal.NewFromInt(3_000)))
	exk.SetPrice("USDT", decimal.NewFromInt(1300))

	opp, err := calc.CheckOpportunity(context.Background(), "ETH",
		decimal.NewFromFloat(0.1), decimal.NewFromInt(100_000), decimal.NewFromInt(5_000_000))
	require.NoError(t, err)
	if opp == nil {
		return
	}
	lhs := opp.PremiumPct.Abs()
	if opp.Direction == premium.Reverse {
		lhs = opp.PremiumPct
	}
	net := lhs.Sub(opp.TetherPremiumPct).Sub(opp.EstFeesPct).Sub(opp.SafetyMarginPct)
	assert.True(t, net.IsPositive())
}

// Property 3: Opportunity sizing stays within [minKrw, maxKrw].
func TestCheckOpportunity_SizingWithinBounds(t *testing.T) {
	calc, exk, exu := newHarness(t, decimal.NewFromInt(1300))
	exk.SetPrice("XRP", decimal.NewFromInt(900))
	exu.SetPrice("XRP", decimal.NewFromFloat(0.6))
	exk.SetBook("XRP", wideBook("XRP", decimal.NewFromInt(900)))
	exu.SetBook("XRP", wideBook("XRP", decimal.NewFromFloat(0.6)))
	exk.SetPrice("USDT", decimal.NewFromInt(1300))

	minKrw := decimal.NewFromInt(100_000)
	maxKrw := decimal.NewFromInt(200_000)
	opp, err := calc.CheckOpportunity(context.Background(), "XRP",
		decimal.NewFromFloat(0.01), minKrw, maxKrw)
	require.NoError(t, err)
	if opp == nil {
		return
	}
	assert.True(t, opp.SizedAmountKrw.GreaterThanOrEqual(minKrw))
	assert.True(t, opp.SizedAmountKrw.LessThanOrEqual(maxKrw))
}

// Property 9 / Boundary: fiat rate unavailable blocks Premium() entirely.
func TestPremium_FiatUnavailableBlocksSnapshot(t *testing.T) {
	exk := venue.NewMock("exk", "KRW")
	exu := venue.NewMock("exu", "USDT")
	fiat := fiatrate.New(nil, time.Minute, time.Hour, nil)

	calc := premium.New(exk, exu, fiat, premium.DefaultFeeSchedule())
	exk.SetPrice("BTC", decimal.NewFromInt(1))
	exu.SetPrice("BTC", decimal.NewFromInt(1))

	snap, err := calc.Premium(context.Background(), "BTC")
	require.Error(t, err)
	assert.Nil(t, snap)
}
