package strategy_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/cryptofunk/internal/alerts"
	"github.com/ajitpratap0/cryptofunk/internal/premium"
	"github.com/ajitpratap0/cryptofunk/internal/risk"
	"github.com/ajitpratap0/cryptofunk/internal/strategy"
	"github.com/ajitpratap0/cryptofunk/internal/venue"
)

// fakeClock advances instantly on Sleep so await_xfer_* polling loops don't
// block real test time.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(start time.Time) *fakeClock { return &fakeClock{now: start} }

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
	return ctx.Err()
}

// linkedVenue wraps a Mock so that a successful Withdraw immediately
// credits the counterpart venue's deposit ledger, simulating network
// settlement without a real wait.
type linkedVenue struct {
	*venue.Mock
	counterpart *venue.Mock
}

func (l *linkedVenue) Withdraw(ctx context.Context, asset, address string, amount decimal.Decimal, network, tag string) (string, error) {
	id, err := l.Mock.Withdraw(ctx, asset, address, amount, network, tag)
	if err == nil {
		l.counterpart.CreditDeposit(asset, amount)
	}
	return id, err
}

var _ venue.Client = (*linkedVenue)(nil)

func testLimits() risk.Limits {
	return risk.Limits{
		MaxSingleTradeKrw: decimal.NewFromInt(10_000_000),
		MaxDailyVolumeKrw: decimal.NewFromInt(100_000_000),
		MaxConcurrent:     5,
		MaxSlippagePct:    decimal.NewFromInt(1),
		EmergencyLossPct:  decimal.NewFromInt(10),
		MaxExposurePct:    decimal.NewFromInt(90),
	}
}

// Trade state monotonicity: the happy-path forward cycle visits states in
// exactly the order the transition table allows, with no repeats or
// skips, and terminates `completed`.
func TestForward_FullCycle_StateMonotonicity(t *testing.T) {
	exkMock := venue.NewMock("exk", "KRW")
	exuMock := venue.NewMock("exu", "USDT")
	exk := &linkedVenue{Mock: exkMock, counterpart: exuMock}
	exu := &linkedVenue{Mock: exuMock, counterpart: exkMock}

	exkMock.SetBalance("KRW", decimal.NewFromInt(10_000_000), decimal.Zero)
	exkMock.SetPrice("BTCKRW", decimal.NewFromInt(130_000_000))
	exkMock.SetPrice("USDTKRW", decimal.NewFromInt(1300))
	exuMock.SetPrice("BTCUSDT", decimal.NewFromInt(100_000))

	riskMgr := risk.NewManager(testLimits(), nil)
	defer riskMgr.Close()
	alertMgr := alerts.NewManager()

	clock := newFakeClock(time.Now())
	d := strategy.NewDriver(exk, exu, riskMgr, alertMgr, clock)
	d.PollInterval = time.Millisecond

	opp := premium.Opportunity{
		Symbol:         "BTC",
		Direction:      premium.Forward,
		SizedAmountKrw: decimal.NewFromInt(1_000_000),
		NetProfitPct:   decimal.NewFromFloat(0.2),
	}
	trade := strategy.NewTrade("t-forward-1", opp, decimal.NewFromInt(1300))

	require.NoError(t, riskMgr.RegisterStart(context.Background(), trade.ID, opp))
	d.Run(context.Background(), trade)

	require.Equal(t, strategy.OutcomeCompleted, trade.Outcome)
	require.Equal(t, strategy.StateComplete, trade.State)

	expected := []strategy.State{
		strategy.StateStart,
		strategy.StateBuyingKrw,
		strategy.StateXferOut,
		strategy.StateAwaitXferOut,
		strategy.StateSellingUsdtSide,
		strategy.StateXferHome,
		strategy.StateAwaitXferHome,
		strategy.StateConvertingHome,
	}
	require.Len(t, trade.Steps, len(expected))
	for i, step := range trade.Steps {
		assert.Equal(t, expected[i], step.State, "step %d", i)
		assert.True(t, step.Success, "step %d (%s) should have succeeded: %s", i, step.State, step.Err)
	}

	snap, err := riskMgr.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, snap.SuccessCount)
	assert.True(t, snap.ExposureKrw.IsZero())
}

// A forward trade stuck in await_xfer_out with a deposit that never
// arrives terminates failed with the timeout recorded at that step, and
// RiskManager.RegisterEnd(success=false) is called exactly once.
func TestForward_TransferTimeout_EntersRecovery(t *testing.T) {
	exk := venue.NewMock("exk", "KRW")
	exu := venue.NewMock("exu", "USDT") // not linked: deposit never arrives

	exk.SetBalance("KRW", decimal.NewFromInt(10_000_000), decimal.Zero)
	exk.SetPrice("BTCKRW", decimal.NewFromInt(130_000_000))
	exuMock := exu

	riskMgr := risk.NewManager(testLimits(), nil)
	defer riskMgr.Close()
	alertMgr := alerts.NewManager()

	clock := newFakeClock(time.Now())
	d := strategy.NewDriver(exk, exuMock, riskMgr, alertMgr, clock)
	d.PollInterval = time.Second
	d.TransferTimeout = 3 * time.Second

	opp := premium.Opportunity{
		Symbol:         "BTC",
		Direction:      premium.Forward,
		SizedAmountKrw: decimal.NewFromInt(1_000_000),
		NetProfitPct:   decimal.NewFromFloat(0.2),
	}
	trade := strategy.NewTrade("t-timeout-1", opp, decimal.NewFromInt(1300))

	require.NoError(t, riskMgr.RegisterStart(context.Background(), trade.ID, opp))
	d.Run(context.Background(), trade)

	require.Equal(t, strategy.OutcomeFailed, trade.Outcome)
	require.Equal(t, strategy.StateRecovery, trade.State)

	var lastXfer *strategy.StepRecord
	for i := range trade.Steps {
		if trade.Steps[i].State == strategy.StateAwaitXferOut {
			lastXfer = &trade.Steps[i]
		}
	}
	require.NotNil(t, lastXfer)
	assert.False(t, lastXfer.Success)

	snap, err := riskMgr.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, snap.FailCount)
	assert.Equal(t, 0, snap.SuccessCount)
	assert.True(t, snap.ExposureKrw.IsZero())

	active, err := riskMgr.ActiveSizes(context.Background())
	require.NoError(t, err)
	assert.Len(t, active, 0)
}
