package analytics

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/cryptofunk/internal/premium"
	"github.com/ajitpratap0/cryptofunk/internal/strategy"
)

func completedTrade(symbol string, profit float64) *strategy.Trade {
	opp := premium.Opportunity{Symbol: symbol, Direction: premium.Forward}
	t := strategy.NewTrade("t-"+symbol, opp, decimal.NewFromInt(1300))
	t.Outcome = strategy.OutcomeCompleted
	t.RealizedProfitKrw = decimal.NewFromFloat(profit)
	return t
}

func TestAnalyzerAggregatesWinRateAndAverages(t *testing.T) {
	a := New()
	a.Record(completedTrade("BTC", 10000))
	a.Record(completedTrade("BTC", -5000))
	a.Record(completedTrade("ETH", 20000))

	snap := a.Snapshot()
	require.Equal(t, 3, snap.TotalTrades)
	assert.Equal(t, 2, snap.WinCount)
	assert.Equal(t, 1, snap.LossCount)
	assert.True(t, snap.TotalProfitKrw.Equal(decimal.NewFromInt(25000)))
	assert.True(t, snap.WinRatePct.Equal(decimal.NewFromFloat(200).Div(decimal.NewFromInt(3))))

	btc := snap.BySymbol["BTC"]
	assert.Equal(t, 2, btc.CycleCount)
	assert.Equal(t, 1, btc.SuccessCount)
}

func TestAnalyzerEmptySnapshotHasZeroRates(t *testing.T) {
	a := New()
	snap := a.Snapshot()
	assert.Equal(t, 0, snap.TotalTrades)
	assert.True(t, snap.WinRatePct.IsZero())
	assert.True(t, snap.AvgProfitKrw.IsZero())
}

func TestAnalyzerTracksPartialAndFailedOutcomes(t *testing.T) {
	a := New()
	failed := completedTrade("XRP", 0)
	failed.Outcome = strategy.OutcomeFailed
	a.Record(failed)

	partial := completedTrade("XRP", 0)
	partial.Outcome = strategy.OutcomePartial
	a.Record(partial)

	snap := a.Snapshot()
	xrp := snap.BySymbol["XRP"]
	assert.Equal(t, 1, xrp.FailCount)
	assert.Equal(t, 1, xrp.PartialCount)
}
