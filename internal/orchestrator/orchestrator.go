// Package orchestrator implements the dynamic coin universe and the four
// concurrent loops (premium monitor, opportunity, metrics, health) that
// drive the rest of the core. It follows a New/Run lifecycle with
// a ticker-driven Run loop, context-based shutdown, and a health-check
// goroutine. No message bus is involved: Orchestrator talks to its own
// VenueClients and RiskManager directly.
package orchestrator

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/ajitpratap0/cryptofunk/internal/alerts"
	"github.com/ajitpratap0/cryptofunk/internal/analytics"
	"github.com/ajitpratap0/cryptofunk/internal/audit"
	"github.com/ajitpratap0/cryptofunk/internal/fiatrate"
	"github.com/ajitpratap0/cryptofunk/internal/metrics"
	"github.com/ajitpratap0/cryptofunk/internal/observer"
	"github.com/ajitpratap0/cryptofunk/internal/premium"
	"github.com/ajitpratap0/cryptofunk/internal/risk"
	"github.com/ajitpratap0/cryptofunk/internal/strategy"
	"github.com/ajitpratap0/cryptofunk/internal/venue"
)

// consecutiveFailureThreshold is the number of consecutive order-book
// failures that disables a symbol.
const consecutiveFailureThreshold = 5

// Config holds the Orchestrator's tunables, sourced from
// internal/config.TradingConfig/RiskConfig at construction time.
type Config struct {
	// MonitorCoins restricts the universe when non-empty; empty means the
	// full EX-K/EX-U intersection.
	MonitorCoins []string

	PriceUpdateInterval     time.Duration
	UniverseRefreshInterval time.Duration
	MetricsInterval         time.Duration
	HealthInterval          time.Duration

	SafetyMarginPct    decimal.Decimal
	MinTradeAmountKrw  decimal.Decimal
	MaxTradeAmountKrw  decimal.Decimal
	MinVenueBalanceKrw decimal.Decimal
}

// DefaultConfig returns the documented defaults for every interval not
// otherwise configured.
func DefaultConfig() Config {
	return Config{
		PriceUpdateInterval:     time.Second,
		UniverseRefreshInterval: 30 * time.Minute,
		MetricsInterval:         30 * time.Second,
		HealthInterval:          60 * time.Second,
	}
}

// Orchestrator owns the coin universe and drives the monitor loops.
type Orchestrator struct {
	Exk, Exu  venue.Client
	Fiat      *fiatrate.Service
	Calc      *premium.Calculator
	Risk      *risk.Manager
	Driver    *strategy.Driver
	Analytics *analytics.Analyzer
	Observer  *observer.Bus
	Audit     *audit.Logger
	Alerts    *alerts.Manager

	cfg Config
	log zerolog.Logger

	mu       sync.RWMutex
	universe []string
	disabled map[string]bool
	failures map[string]int

	trades sync.WaitGroup
}

// New constructs an Orchestrator. Any of Audit, Alerts, Observer may be
// nil; every call site below tolerates a nil receiver.
func New(exk, exu venue.Client, fiat *fiatrate.Service, calc *premium.Calculator, riskMgr *risk.Manager, driver *strategy.Driver, an *analytics.Analyzer, obs *observer.Bus, auditLog *audit.Logger, alertMgr *alerts.Manager, cfg Config, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		Exk:       exk,
		Exu:       exu,
		Fiat:      fiat,
		Calc:      calc,
		Risk:      riskMgr,
		Driver:    driver,
		Analytics: an,
		Observer:  obs,
		Audit:     auditLog,
		Alerts:    alertMgr,
		cfg:       cfg,
		log:       log.With().Str("component", "orchestrator").Logger(),
		disabled:  make(map[string]bool),
		failures:  make(map[string]int),
	}
}

// Run performs an initial universe refresh, starts the four concurrent
// loops plus the universe-refresh loop, and blocks until ctx is
// cancelled. A shutdown signal lets each loop finish at its next
// suspension point, but in-flight trades are never aborted mid-transfer:
// Run waits for every launched trade goroutine to reach its terminal
// state before returning, so shutdown is always clean. A second
// cancellation of an already-cancelled ctx is a no-op (idempotent
// shutdown), since ctx.Done only ever fires once.
func (o *Orchestrator) Run(ctx context.Context) error {
	if err := o.refreshUniverse(ctx); err != nil {
		return err
	}

	var loops sync.WaitGroup
	for _, fn := range []func(context.Context){
		o.universeRefreshLoop,
		o.premiumMonitorLoop,
		o.opportunityLoop,
		o.metricsLoop,
		o.healthLoop,
	} {
		loops.Add(1)
		go func(f func(context.Context)) {
			defer loops.Done()
			f(ctx)
		}(fn)
	}

	<-ctx.Done()
	o.log.Info().Msg("shutdown signal received, draining loops")
	loops.Wait()

	o.log.Info().Msg("waiting for in-flight trades to reach a terminal state")
	o.trades.Wait()
	o.log.Info().Msg("orchestrator shut down cleanly")
	return nil
}

// activeUniverse returns a snapshot of the universe excluding any symbol
// disabled by the per-symbol failure counter.
func (o *Orchestrator) activeUniverse() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]string, 0, len(o.universe))
	for _, s := range o.universe {
		if !o.disabled[s] {
			out = append(out, s)
		}
	}
	return out
}

// refreshUniverse maintains the universe: the intersection of EX-U's
// USDT markets and EX-K's KRW markets, restricted to MonitorCoins when
// configured, logging additions and removals against the previous
// snapshot.
func (o *Orchestrator) refreshUniverse(ctx context.Context) error {
	kMarkets, err := o.Exk.ListMarkets(ctx, "KRW")
	if err != nil {
		return err
	}
	uMarkets, err := o.Exu.ListMarkets(ctx, "USDT")
	if err != nil {
		return err
	}

	uSet := make(map[string]bool, len(uMarkets))
	for _, s := range uMarkets {
		uSet[s] = true
	}

	var restrict map[string]bool
	if len(o.cfg.MonitorCoins) > 0 {
		restrict = make(map[string]bool, len(o.cfg.MonitorCoins))
		for _, s := range o.cfg.MonitorCoins {
			restrict[s] = true
		}
	}

	next := make([]string, 0, len(kMarkets))
	nextSet := make(map[string]bool, len(kMarkets))
	for _, s := range kMarkets {
		if !uSet[s] {
			continue
		}
		if restrict != nil && !restrict[s] {
			continue
		}
		next = append(next, s)
		nextSet[s] = true
	}

	o.mu.Lock()
	prev := o.universe
	o.universe = next
	o.mu.Unlock()

	prevSet := make(map[string]bool, len(prev))
	for _, s := range prev {
		prevSet[s] = true
	}
	for _, s := range next {
		if !prevSet[s] {
			o.log.Info().Str("symbol", s).Msg("coin added to universe")
		}
	}
	for _, s := range prev {
		if !nextSet[s] {
			o.log.Info().Str("symbol", s).Msg("coin removed from universe")
			if o.Audit != nil {
				_ = o.Audit.LogUniverseChange(ctx, audit.EventTypeSymbolDisabled, s, "removed from venue intersection on universe refresh")
			}
		}
	}

	o.log.Info().Int("universe_size", len(next)).Msg("universe refreshed")
	metrics.UpdateUniverse(len(next), o.disabledCount())
	return nil
}

func (o *Orchestrator) disabledCount() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	n := 0
	for _, d := range o.disabled {
		if d {
			n++
		}
	}
	return n
}

func (o *Orchestrator) universeRefreshLoop(ctx context.Context) {
	ticker := time.NewTicker(o.cfg.UniverseRefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := o.refreshUniverse(ctx); err != nil {
				o.log.Error().Err(err).Msg("universe refresh failed, keeping previous universe")
			}
		}
	}
}

// premiumMonitorLoop runs every PriceUpdateInterval, computing and
// publishing a premium snapshot for each active symbol.
func (o *Orchestrator) premiumMonitorLoop(ctx context.Context) {
	ticker := time.NewTicker(o.cfg.PriceUpdateInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, symbol := range o.activeUniverse() {
				snap, err := o.Calc.Premium(ctx, symbol)
				if err != nil {
					o.recordSymbolFailure(ctx, symbol, err)
					continue
				}
				o.resetSymbolFailure(symbol)
				if snap == nil {
					continue
				}
				o.log.Info().
					Str("symbol", symbol).
					Str("premium_pct", snap.PremiumPct.String()).
					Bool("fiat_stale", snap.FiatStale).
					Msg("premium tick")
				if pct, ok := snap.PremiumPct.Float64(); ok {
					metrics.RecordPremium(symbol, pct)
				}
				if o.Observer != nil {
					o.Observer.PremiumSnapshot(ctx, snap)
				}
			}
		}
	}
}

// opportunityLoop runs on the same cadence, classifying each active
// symbol's opportunity, gating it through RiskManager, and launching a
// Strategy on approval.
func (o *Orchestrator) opportunityLoop(ctx context.Context) {
	ticker := time.NewTicker(o.cfg.PriceUpdateInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, symbol := range o.activeUniverse() {
				opp, err := o.Calc.CheckOpportunity(ctx, symbol, o.cfg.SafetyMarginPct, o.cfg.MinTradeAmountKrw, o.cfg.MaxTradeAmountKrw)
				if err != nil {
					o.recordSymbolFailure(ctx, symbol, err)
					continue
				}
				o.resetSymbolFailure(symbol)
				if opp == nil {
					continue
				}
				o.dispatch(ctx, *opp)
			}
		}
	}
}

// dispatch validates a positive Opportunity through the RiskManager; on
// approval, it hands the opportunity to the matching Strategy.
func (o *Orchestrator) dispatch(ctx context.Context, opp premium.Opportunity) {
	ok, reason, err := o.Risk.CanExecute(ctx, opp)
	if err != nil {
		o.log.Error().Err(err).Str("symbol", opp.Symbol).Msg("risk admission check failed")
		return
	}
	if !ok {
		o.log.Debug().Str("symbol", opp.Symbol).Str("reason", reason).Msg("opportunity dropped by risk manager")
		if o.Audit != nil {
			_ = o.Audit.LogRiskEvent(ctx, audit.EventTypeRiskRejected, reason, map[string]interface{}{"symbol": opp.Symbol, "direction": string(opp.Direction)})
		}
		return
	}

	rate, err := o.Fiat.Rate(ctx)
	if err != nil {
		o.log.Error().Err(err).Str("symbol", opp.Symbol).Msg("fiat rate unavailable at dispatch, dropping opportunity")
		return
	}

	tradeID := uuid.NewString()
	if err := o.Risk.RegisterStart(ctx, tradeID, opp); err != nil {
		o.log.Error().Err(err).Str("trade_id", tradeID).Msg("failed to register trade start")
		return
	}

	t := strategy.NewTrade(tradeID, opp, rate.Value)
	o.log.Info().
		Str("trade_id", tradeID).
		Str("symbol", opp.Symbol).
		Str("direction", string(opp.Direction)).
		Str("sized_amount_krw", opp.SizedAmountKrw.String()).
		Str("net_profit_pct", opp.NetProfitPct.String()).
		Msg("opportunity admitted, launching strategy")

	if o.Audit != nil {
		_ = o.Audit.LogTradeOutcome(ctx, audit.EventTypeTradeOpened, tradeID, opp.Symbol, "0", "")
	}

	o.trades.Add(1)
	go o.runTrade(t)
}

// runTrade drives t to completion on a context detached from the
// Orchestrator's shutdown signal: an in-flight trade is not aborted
// mid-transfer, it continues to terminal state, then reports.
func (o *Orchestrator) runTrade(t *strategy.Trade) {
	defer o.trades.Done()

	tradeCtx := context.Background()
	o.Driver.Run(tradeCtx, t)

	if o.Analytics != nil {
		o.Analytics.Record(t)
	}
	if o.Observer != nil {
		o.Observer.TradeTerminal(tradeCtx, t)
	}
	if o.Audit != nil {
		eventType := audit.EventTypeTradeCompleted
		switch {
		case t.State == strategy.StateRecovery:
			eventType = audit.EventTypeTradeRecovery
		case t.Outcome == strategy.OutcomeFailed:
			eventType = audit.EventTypeTradeFailed
		}
		_ = o.Audit.LogTradeOutcome(tradeCtx, eventType, t.ID, t.Opportunity.Symbol, t.RealizedProfitKrw.String(), "")
	}

	o.log.Info().
		Str("trade_id", t.ID).
		Str("symbol", t.Opportunity.Symbol).
		Str("outcome", string(t.Outcome)).
		Str("realized_profit_krw", t.RealizedProfitKrw.String()).
		Msg("trade reached terminal state")
}

// metricsLoop runs every MetricsInterval, surfacing the RiskManager's
// counters.
func (o *Orchestrator) metricsLoop(ctx context.Context) {
	ticker := time.NewTicker(o.cfg.MetricsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			counters, err := o.Risk.Snapshot(ctx)
			if err != nil {
				o.log.Error().Err(err).Msg("failed to read risk snapshot")
				continue
			}
			o.log.Info().
				Str("volume_krw", counters.VolumeKrw.String()).
				Str("profit_krw", counters.ProfitKrw.String()).
				Str("loss_krw", counters.LossKrw.String()).
				Str("exposure_krw", counters.ExposureKrw.String()).
				Int("trade_count", counters.TradeCount).
				Int("success_count", counters.SuccessCount).
				Int("fail_count", counters.FailCount).
				Msg("risk snapshot")
			if o.Observer != nil {
				o.Observer.RiskSnapshot(ctx, counters)
			}

			tripped, reason, err := o.Risk.CheckEmergencyStop(ctx)
			if err == nil && tripped {
				o.log.Warn().Str("reason", reason).Msg("emergency stop is active")
				o.raiseAlert(ctx, alerts.SeverityCritical, "Emergency stop active", reason)
			}
			exposure, _ := counters.ExposureKrw.Float64()
			volume, _ := counters.VolumeKrw.Float64()
			metrics.UpdateRiskSnapshot(exposure, volume, tripped)

			if o.Analytics != nil {
				snap := o.Analytics.Snapshot()
				o.log.Info().
					Int("total_trades", snap.TotalTrades).
					Str("win_rate_pct", snap.WinRatePct.String()).
					Str("avg_profit_krw", snap.AvgProfitKrw.String()).
					Msg("performance snapshot")
			}
		}
	}
}

// healthLoop runs every HealthInterval, validating venue balances
// against the configured floor and confirming fiat-rate availability.
func (o *Orchestrator) healthLoop(ctx context.Context) {
	ticker := time.NewTicker(o.cfg.HealthInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.checkVenueBalance(ctx, o.Exk, "KRW")
			o.checkVenueBalance(ctx, o.Exu, "USDT")

			if _, err := o.Fiat.Rate(ctx); err != nil {
				o.log.Error().Err(err).Msg("fiat rate unavailable")
				o.raiseAlert(ctx, alerts.SeverityWarning, "Fiat rate unavailable", err.Error())
			}
		}
	}
}

func (o *Orchestrator) checkVenueBalance(ctx context.Context, v venue.Client, asset string) {
	bal, err := v.Balance(ctx, asset)
	if err != nil {
		o.log.Error().Err(err).Str("venue", v.Name()).Str("asset", asset).Msg("failed to read venue balance for health check")
		return
	}
	below := bal.Free.LessThan(o.cfg.MinVenueBalanceKrw)
	if below {
		o.log.Warn().
			Str("venue", v.Name()).
			Str("asset", asset).
			Str("free", bal.Free.String()).
			Str("min_required", o.cfg.MinVenueBalanceKrw.String()).
			Msg("venue balance below minimum")
		o.raiseAlert(ctx, alerts.SeverityWarning, "Venue balance below minimum", v.Name()+" "+asset+" balance "+bal.Free.String()+" below floor "+o.cfg.MinVenueBalanceKrw.String())
	}
	free, _ := bal.Free.Float64()
	metrics.UpdateVenueBalance(v.Name(), asset, free, below)
	if o.Observer != nil {
		o.Observer.Balances(ctx, observer.BalancesEvent{
			Venue:          v.Name(),
			Asset:          asset,
			FreeKrw:        bal.Free,
			MinVenueKrw:    o.cfg.MinVenueBalanceKrw,
			BelowThreshold: below,
		})
	}
}

func (o *Orchestrator) raiseAlert(ctx context.Context, sev alerts.Severity, title, message string) {
	if o.Alerts == nil {
		return
	}
	alert := alerts.Alert{Title: title, Message: message, Severity: sev, Timestamp: time.Now()}
	if err := o.Alerts.Send(ctx, alert); err != nil {
		o.log.Error().Err(err).Msg("failed to send alert")
		return
	}
	if o.Observer != nil {
		o.Observer.AlertRaised(ctx, alert)
	}
}

// recordSymbolFailure increments symbol's consecutive-failure counter
// and, once it reaches consecutiveFailureThreshold, disables the symbol
// for the remainder of the process (typically indicating
// access-control issues).
func (o *Orchestrator) recordSymbolFailure(ctx context.Context, symbol string, err error) {
	o.mu.Lock()
	o.failures[symbol]++
	count := o.failures[symbol]
	alreadyDisabled := o.disabled[symbol]
	if count >= consecutiveFailureThreshold {
		o.disabled[symbol] = true
	}
	o.mu.Unlock()

	o.log.Warn().Err(err).Str("symbol", symbol).Int("consecutive_failures", count).Msg("order-book/price fetch failed")

	if count >= consecutiveFailureThreshold && !alreadyDisabled {
		o.log.Error().Str("symbol", symbol).Msg("symbol disabled after repeated failures, excluded until process restart")
		if o.Audit != nil {
			_ = o.Audit.LogUniverseChange(ctx, audit.EventTypeSymbolDisabled, symbol, err.Error())
		}
		o.raiseAlert(ctx, alerts.SeverityWarning, "Symbol disabled", symbol+" disabled after "+strconv.Itoa(count)+" consecutive failures")
	}
}

func (o *Orchestrator) resetSymbolFailure(symbol string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failures[symbol] = 0
}

// Universe returns a snapshot of the current full universe, including
// disabled symbols, for status/debug surfaces.
func (o *Orchestrator) Universe() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]string, len(o.universe))
	copy(out, o.universe)
	return out
}

// IsDisabled reports whether symbol has been excluded by the per-symbol
// failure counter.
func (o *Orchestrator) IsDisabled(symbol string) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.disabled[symbol]
}
