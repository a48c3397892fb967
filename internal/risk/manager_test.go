package risk_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/cryptofunk/internal/premium"
	"github.com/ajitpratap0/cryptofunk/internal/risk"
)

func testLimits() risk.Limits {
	return risk.Limits{
		MaxSingleTradeKrw: decimal.NewFromInt(1_000_000),
		MaxDailyVolumeKrw: decimal.NewFromInt(10_000_000),
		MaxConcurrent:     2,
		MaxSlippagePct:    decimal.NewFromFloat(0.5),
		EmergencyLossPct:  decimal.NewFromInt(5),
		MaxExposurePct:    decimal.NewFromInt(50),
	}
}

func oppSized(krw int64) premium.Opportunity {
	return premium.Opportunity{
		Symbol:       "BTC",
		SizedAmountKrw: decimal.NewFromInt(krw),
		NetProfitPct: decimal.NewFromFloat(0.5),
	}
}

// Property 6 / boundary: a trade exactly at the single-trade ceiling is
// admitted; one unit over is rejected.
func TestCanExecute_SingleTradeBoundary(t *testing.T) {
	m := risk.NewManager(testLimits(), nil)
	defer m.Close()
	ctx := context.Background()

	ok, reason, err := m.CanExecute(ctx, oppSized(1_000_000))
	require.NoError(t, err)
	assert.True(t, ok, reason)

	ok, reason, err = m.CanExecute(ctx, oppSized(1_000_001))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Contains(t, reason, "single trade limit")
}

// Property 6: admission rejects once MaxConcurrent active trades are open.
func TestCanExecute_ConcurrencyLimit(t *testing.T) {
	m := risk.NewManager(testLimits(), nil)
	defer m.Close()
	ctx := context.Background()

	require.NoError(t, m.RegisterStart(ctx, "t1", oppSized(100_000)))
	require.NoError(t, m.RegisterStart(ctx, "t2", oppSized(100_000)))

	ok, reason, err := m.CanExecute(ctx, oppSized(100_000))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Contains(t, reason, "concurrent")
}

// Property 6: rejects once admitting the trade would exceed the exposure
// ceiling (maxDailyVolumeKrw * maxExposurePct / 100).
func TestCanExecute_ExposureCeiling(t *testing.T) {
	limits := testLimits()
	limits.MaxConcurrent = 10
	limits.MaxSingleTradeKrw = decimal.NewFromInt(5_000_000)
	m := risk.NewManager(limits, nil)
	defer m.Close()
	ctx := context.Background()

	// Ceiling is 50% of 10,000,000 = 5,000,000.
	require.NoError(t, m.RegisterStart(ctx, "t1", oppSized(1_000_000)))
	require.NoError(t, m.RegisterStart(ctx, "t2", oppSized(1_000_000)))

	ok, _, err := m.CanExecute(ctx, oppSized(1_000_000))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, reason, err := m.CanExecute(ctx, oppSized(3_000_001))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Contains(t, reason, "exposure")
}

// Opportunities with non-positive net profit are never admitted, regardless
// of sizing.
func TestCanExecute_RejectsNonProfitable(t *testing.T) {
	m := risk.NewManager(testLimits(), nil)
	defer m.Close()

	opp := oppSized(100_000)
	opp.NetProfitPct = decimal.Zero

	ok, reason, err := m.CanExecute(context.Background(), opp)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Contains(t, reason, "profit")
}

// Property 5: exposure ledger conservation. Sum of ActiveSizes() must equal
// the tracked ExposureKrw at every point in the lifecycle.
func TestExposureConservation(t *testing.T) {
	m := risk.NewManager(testLimits(), nil)
	defer m.Close()
	ctx := context.Background()

	require.NoError(t, m.RegisterStart(ctx, "t1", oppSized(500_000)))
	require.NoError(t, m.RegisterStart(ctx, "t2", oppSized(300_000)))

	snap, err := m.Snapshot(ctx)
	require.NoError(t, err)
	active, err := m.ActiveSizes(ctx)
	require.NoError(t, err)

	sum := decimal.Zero
	for _, v := range active {
		sum = sum.Add(v)
	}
	assert.True(t, snap.ExposureKrw.Equal(sum))

	require.NoError(t, m.RegisterEnd(ctx, "t1", decimal.NewFromInt(5_000), true))

	snap, err = m.Snapshot(ctx)
	require.NoError(t, err)
	active, err = m.ActiveSizes(ctx)
	require.NoError(t, err)
	sum = decimal.Zero
	for _, v := range active {
		sum = sum.Add(v)
	}
	assert.True(t, snap.ExposureKrw.Equal(sum))
	assert.True(t, snap.ExposureKrw.Equal(decimal.NewFromInt(300_000)))
}

// Repeated losses push the daily loss ratio over emergencyLossPct,
// tripping the stop, after which CanExecute always rejects until Reset.
func TestEmergencyStop_LossRatio(t *testing.T) {
	m := risk.NewManager(testLimits(), nil)
	defer m.Close()
	ctx := context.Background()

	require.NoError(t, m.RegisterStart(ctx, "t1", oppSized(1_000_000)))
	require.NoError(t, m.RegisterEnd(ctx, "t1", decimal.NewFromInt(-100_000), false))

	tripped, reason, err := m.CheckEmergencyStop(ctx)
	require.NoError(t, err)
	assert.True(t, tripped, reason)

	ok, reason, err := m.CanExecute(ctx, oppSized(1))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Contains(t, reason, "Emergency stop")

	require.NoError(t, m.Reset(ctx))
	tripped, _, err = m.CheckEmergencyStop(ctx)
	require.NoError(t, err)
	assert.False(t, tripped)
}

// Property 7: a profitable day never trips the emergency stop.
func TestEmergencyStop_NotTrippedByProfit(t *testing.T) {
	m := risk.NewManager(testLimits(), nil)
	defer m.Close()
	ctx := context.Background()

	require.NoError(t, m.RegisterStart(ctx, "t1", oppSized(1_000_000)))
	require.NoError(t, m.RegisterEnd(ctx, "t1", decimal.NewFromInt(10_000), true))

	tripped, _, err := m.CheckEmergencyStop(ctx)
	require.NoError(t, err)
	assert.False(t, tripped)
}

// Property 8: daily counters roll over at the local-date boundary, but
// open exposure is preserved across the roll.
func TestDailyRoll_PreservesExposure(t *testing.T) {
	base := time.Date(2026, 7, 31, 23, 0, 0, 0, time.UTC)
	clock := base
	m := risk.NewManager(testLimits(), func() time.Time { return clock })
	defer m.Close()
	ctx := context.Background()

	require.NoError(t, m.RegisterStart(ctx, "t1", oppSized(200_000)))
	require.NoError(t, m.RegisterEnd(ctx, "t1", decimal.NewFromInt(5_000), true))

	before, err := m.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, before.TradeCount)

	require.NoError(t, m.RegisterStart(ctx, "t2", oppSized(150_000)))

	clock = base.Add(2 * time.Hour) // crosses into 2026-08-01

	after, err := m.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, after.TradeCount)
	assert.True(t, after.VolumeKrw.IsZero())
	assert.True(t, after.ExposureKrw.Equal(decimal.NewFromInt(150_000)))
}

func TestCheckSlippage_BuyAndSellBounds(t *testing.T) {
	m := risk.NewManager(testLimits(), nil)
	defer m.Close()
	ctx := context.Background()

	expected := decimal.NewFromInt(100_000)

	ok, _, err := m.CheckSlippage(ctx, expected, decimal.NewFromInt(100_400), risk.SideBuy)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _, err = m.CheckSlippage(ctx, expected, decimal.NewFromInt(100_600), risk.SideBuy)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, _, err = m.CheckSlippage(ctx, expected, decimal.NewFromInt(99_600), risk.SideSell)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _, err = m.CheckSlippage(ctx, expected, decimal.NewFromInt(99_400), risk.SideSell)
	require.NoError(t, err)
	assert.False(t, ok)
}
