package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/cryptofunk/internal/alerts"
	"github.com/ajitpratap0/cryptofunk/internal/analytics"
	"github.com/ajitpratap0/cryptofunk/internal/fiatrate"
	"github.com/ajitpratap0/cryptofunk/internal/observer"
	"github.com/ajitpratap0/cryptofunk/internal/premium"
	"github.com/ajitpratap0/cryptofunk/internal/risk"
	"github.com/ajitpratap0/cryptofunk/internal/strategy"
	"github.com/ajitpratap0/cryptofunk/internal/venue"
)

type stubFiatProvider struct {
	rate decimal.Decimal
}

func (s *stubFiatProvider) Name() string { return "stub" }
func (s *stubFiatProvider) FetchUSDKRW(ctx context.Context) (decimal.Decimal, error) {
	return s.rate, nil
}

func newTestOrchestrator(t *testing.T, exk, exu *venue.Mock, cfg Config) *Orchestrator {
	t.Helper()
	fiat := fiatrate.New([]fiatrate.Provider{&stubFiatProvider{rate: decimal.NewFromInt(1300)}}, time.Minute, time.Hour, nil)
	calc := premium.New(exk, exu, fiat, premium.DefaultFeeSchedule())
	riskMgr := risk.NewManager(risk.Limits{
		MaxSingleTradeKrw:  decimal.NewFromInt(10_000_000),
		MaxDailyVolumeKrw:  decimal.NewFromInt(100_000_000),
		MaxConcurrent:      5,
		MaxSlippagePct:     decimal.NewFromFloat(1),
		EmergencyLossPct:   decimal.NewFromInt(50),
		MinVenueBalanceKrw: decimal.Zero,
		MaxExposurePct:     decimal.NewFromInt(100),
	}, time.Now)
	t.Cleanup(riskMgr.Close)

	clock := strategy.NewRealClock()
	alertMgr := alerts.NewManager()
	driver := strategy.NewDriver(exk, exu, riskMgr, alertMgr, clock)
	an := analytics.New()
	obs := observer.NewBus(zerolog.Nop())

	if cfg.PriceUpdateInterval == 0 {
		cfg = DefaultConfig()
	}
	return New(exk, exu, fiat, calc, riskMgr, driver, an, obs, nil, alertMgr, cfg, zerolog.Nop())
}

func newMockPair(t *testing.T) (*venue.Mock, *venue.Mock) {
	t.Helper()
	exk := venue.NewMock("exk", "KRW")
	exu := venue.NewMock("exu", "USDT")
	exk.SetMarkets([]string{"BTC", "ETH", "XRP"})
	exu.SetMarkets([]string{"BTC", "ETH"})
	return exk, exu
}

func TestRefreshUniverseIntersectsVenueMarkets(t *testing.T) {
	exk, exu := newMockPair(t)
	o := newTestOrchestrator(t, exk, exu, DefaultConfig())

	require.NoError(t, o.refreshUniverse(context.Background()))
	universe := o.Universe()

	assert.ElementsMatch(t, []string{"BTC", "ETH"}, universe)
}

func TestRefreshUniverseRestrictsToMonitorCoins(t *testing.T) {
	exk, exu := newMockPair(t)
	cfg := DefaultConfig()
	cfg.MonitorCoins = []string{"BTC"}
	o := newTestOrchestrator(t, exk, exu, cfg)

	require.NoError(t, o.refreshUniverse(context.Background()))
	assert.Equal(t, []string{"BTC"}, o.Universe())
}

func TestRefreshUniverseTracksAdditionsAndRemovals(t *testing.T) {
	exk, exu := newMockPair(t)
	o := newTestOrchestrator(t, exk, exu, DefaultConfig())

	require.NoError(t, o.refreshUniverse(context.Background()))
	assert.ElementsMatch(t, []string{"BTC", "ETH"}, o.Universe())

	exu.SetMarkets([]string{"BTC"})
	require.NoError(t, o.refreshUniverse(context.Background()))
	assert.ElementsMatch(t, []string{"BTC"}, o.Universe())
}

func TestRecordSymbolFailureDisablesAfterThreshold(t *testing.T) {
	exk, exu := newMockPair(t)
	o := newTestOrchestrator(t, exk, exu, DefaultConfig())
	require.NoError(t, o.refreshUniverse(context.Background()))

	ctx := context.Background()
	for i := 0; i < consecutiveFailureThreshold-1; i++ {
		o.recordSymbolFailure(ctx, "BTC", assert.AnError)
	}
	assert.False(t, o.IsDisabled("BTC"))

	o.recordSymbolFailure(ctx, "BTC", assert.AnError)
	assert.True(t, o.IsDisabled("BTC"))

	active := o.activeUniverse()
	assert.NotContains(t, active, "BTC")
	assert.Contains(t, active, "ETH")
}

func TestRecordSymbolFailureResetsOnSuccess(t *testing.T) {
	exk, exu := newMockPair(t)
	o := newTestOrchestrator(t, exk, exu, DefaultConfig())
	require.NoError(t, o.refreshUniverse(context.Background()))

	ctx := context.Background()
	o.recordSymbolFailure(ctx, "BTC", assert.AnError)
	o.recordSymbolFailure(ctx, "BTC", assert.AnError)
	o.resetSymbolFailure("BTC")

	for i := 0; i < consecutiveFailureThreshold-1; i++ {
		o.recordSymbolFailure(ctx, "BTC", assert.AnError)
	}
	assert.False(t, o.IsDisabled("BTC"))
}

func TestCheckVenueBalanceWarnsBelowMinimum(t *testing.T) {
	exk, exu := newMockPair(t)
	cfg := DefaultConfig()
	cfg.MinVenueBalanceKrw = decimal.NewFromInt(1_000_000)
	o := newTestOrchestrator(t, exk, exu, cfg)

	exk.SetBalance("KRW", decimal.NewFromInt(500_000), decimal.Zero)

	assert.NotPanics(t, func() {
		o.checkVenueBalance(context.Background(), exk, "KRW")
	})
}

func TestRunShutsDownCleanlyOnCancel(t *testing.T) {
	exk, exu := newMockPair(t)
	cfg := DefaultConfig()
	cfg.PriceUpdateInterval = time.Millisecond
	cfg.UniverseRefreshInterval = time.Millisecond
	cfg.MetricsInterval = time.Millisecond
	cfg.HealthInterval = time.Millisecond
	o := newTestOrchestrator(t, exk, exu, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- o.Run(ctx) }()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("orchestrator did not shut down after cancel")
	}
}
