// Package risk implements a concurrency-safe gatekeeper enforcing
// per-trade, per-day, and per-exposure limits. It is implemented as a
// single-owner actor goroutine that serializes every admission and
// lifecycle call through one request channel, rather than a mutex-guarded
// struct: strategies communicate outcomes via typed messages and no
// shared mutable state leaks between them.
package risk

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ajitpratap0/cryptofunk/internal/premium"
)

// Limits holds the risk thresholds enforced by Manager; immutable after
// construction.
type Limits struct {
	MaxSingleTradeKrw  decimal.Decimal
	MaxDailyVolumeKrw  decimal.Decimal
	MaxConcurrent      int
	MaxSlippagePct     decimal.Decimal
	EmergencyLossPct   decimal.Decimal
	MinVenueBalanceKrw decimal.Decimal
	MaxExposurePct     decimal.Decimal
}

// Counters tracks daily trade volume and outcomes, reset atomically at
// the local-day boundary (ExposureKrw is preserved across the roll: open
// trades keep counting).
type Counters struct {
	DayKey       string
	VolumeKrw    decimal.Decimal
	ProfitKrw    decimal.Decimal
	LossKrw      decimal.Decimal
	TradeCount   int
	SuccessCount int
	FailCount    int
	ExposureKrw  decimal.Decimal
}

// Side distinguishes buy/sell for the slippage check.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Clock abstracts time.Now so the daily-roll and emergency-stop tests can
// drive a synthetic clock.
type Clock func() time.Time

type request struct {
	fn func(*state)
}

// state is the actor's private, single-owner working set. It is only ever
// touched from the Manager's run loop goroutine.
type state struct {
	limits   Limits
	counters Counters
	active   map[string]decimal.Decimal // tradeID -> sizedAmountKrw, for the exposure conservation invariant
	tripped  bool
	tripMsg  string
	clock    Clock
}

// Manager is the actor-based risk gatekeeper.
type Manager struct {
	reqs chan request
	done chan struct{}
}

// NewManager constructs and starts the actor goroutine, so the returned
// Manager accepts requests immediately; Close stops it.
func NewManager(limits Limits, clock Clock) *Manager {
	if clock == nil {
		clock = time.Now
	}
	m := &Manager{
		reqs: make(chan request),
		done: make(chan struct{}),
	}
	st := &state{
		limits: limits,
		active: make(map[string]decimal.Decimal),
		clock:  clock,
	}
	st.counters.DayKey = dayKey(clock())
	go m.run(st)
	return m
}

func (m *Manager) run(st *state) {
	defer close(m.done)
	for req := range m.reqs {
		req.fn(st)
	}
}

// Close stops the actor goroutine. Safe to call once.
func (m *Manager) Close() {
	close(m.reqs)
	<-m.done
}

func dayKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// rollIfNeeded resets daily counters when the local date has changed
// since the last check, preserving ExposureKrw.
func (st *state) rollIfNeeded() {
	today := dayKey(st.clock())
	if today == st.counters.DayKey {
		return
	}
	st.counters = Counters{
		DayKey:      today,
		ExposureKrw: st.counters.ExposureKrw,
	}
}

// do submits fn to the actor and blocks until it has run, respecting ctx
// cancellation.
func (m *Manager) do(ctx context.Context, fn func(*state)) error {
	done := make(chan struct{})
	select {
	case m.reqs <- request{fn: func(st *state) {
		fn(st)
		close(done)
	}}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CanExecute is the admission predicate. It evaluates, in order: the
// emergency-stop latch, active-trade concurrency, single-trade ceiling,
// daily-volume ceiling,
// exposure ceiling, and opportunity profitability, returning the first
// failing reason verbatim.
func (m *Manager) CanExecute(ctx context.Context, opp premium.Opportunity) (bool, string, error) {
	var ok bool
	var reason string
	err := m.do(ctx, func(st *state) {
		st.rollIfNeeded()

		if st.tripped {
			ok, reason = false, "Emergency stop is active: "+st.tripMsg
			return
		}
		if len(st.active) >= st.limits.MaxConcurrent {
			ok, reason = false, "Maximum concurrent trades reached"
			return
		}
		if opp.SizedAmountKrw.GreaterThan(st.limits.MaxSingleTradeKrw) {
			ok, reason = false, "Trade amount exceeds single trade limit"
			return
		}
		if st.counters.VolumeKrw.Add(opp.SizedAmountKrw).GreaterThan(st.limits.MaxDailyVolumeKrw) {
			ok, reason = false, "Trade would exceed daily volume limit"
			return
		}
		exposureCeiling := st.limits.MaxDailyVolumeKrw.Mul(st.limits.MaxExposurePct).Div(decimal.NewFromInt(100))
		if st.counters.ExposureKrw.Add(opp.SizedAmountKrw).GreaterThan(exposureCeiling) {
			ok, reason = false, "Trade would exceed maximum exposure"
			return
		}
		if !opp.NetProfitPct.IsPositive() {
			ok, reason = false, "Opportunity net profit is not positive"
			return
		}
		ok, reason = true, ""
	})
	return ok, reason, err
}

// RegisterStart adds opp's sized amount to exposure and increments
// tradeCount.
func (m *Manager) RegisterStart(ctx context.Context, tradeID string, opp premium.Opportunity) error {
	return m.do(ctx, func(st *state) {
		st.rollIfNeeded()
		st.active[tradeID] = opp.SizedAmountKrw
		st.counters.ExposureKrw = st.counters.ExposureKrw.Add(opp.SizedAmountKrw)
		st.counters.TradeCount++
	})
}

// RegisterEnd removes tradeID's exposure, adds the realized amount to
// dailyVolumeKrw, updates profit/loss counters, and updates success/fail
// counters.
func (m *Manager) RegisterEnd(ctx context.Context, tradeID string, realizedProfitKrw decimal.Decimal, success bool) error {
	return m.do(ctx, func(st *state) {
		st.rollIfNeeded()
		sized, ok := st.active[tradeID]
		if ok {
			st.counters.ExposureKrw = st.counters.ExposureKrw.Sub(sized)
			if st.counters.ExposureKrw.IsNegative() {
				st.counters.ExposureKrw = decimal.Zero
			}
			delete(st.active, tradeID)
			st.counters.VolumeKrw = st.counters.VolumeKrw.Add(sized)
		}
		if realizedProfitKrw.IsPositive() {
			st.counters.ProfitKrw = st.counters.ProfitKrw.Add(realizedProfitKrw)
		} else if realizedProfitKrw.IsNegative() {
			st.counters.LossKrw = st.counters.LossKrw.Add(realizedProfitKrw.Abs())
		}
		if success {
			st.counters.SuccessCount++
		} else {
			st.counters.FailCount++
		}
		st.evaluateEmergencyStop()
	})
}

// evaluateEmergencyStop evaluates the trip predicates. Called with the
// actor's exclusive lock already held (it always runs inside m.do). Once
// tripped, it is sticky until Reset.
func (st *state) evaluateEmergencyStop() {
	if st.tripped {
		return
	}
	if st.counters.VolumeKrw.IsPositive() {
		lossRatio := st.counters.LossKrw.Div(st.counters.VolumeKrw).Mul(decimal.NewFromInt(100))
		if lossRatio.GreaterThan(st.limits.EmergencyLossPct) {
			st.tripped = true
			st.tripMsg = fmt.Sprintf("Daily loss %.2f%% exceeds limit %.2f%%", lossRatio.InexactFloat64(), st.limits.EmergencyLossPct.InexactFloat64())
			return
		}
	}
	if st.counters.TradeCount > 10 {
		failRatio := decimal.NewFromInt(int64(st.counters.FailCount)).Div(decimal.NewFromInt(int64(st.counters.TradeCount)))
		if failRatio.GreaterThan(decimal.NewFromFloat(0.5)) {
			st.tripped = true
			st.tripMsg = fmt.Sprintf("Failure rate %.2f exceeds 0.5 over %d trades", failRatio.InexactFloat64(), st.counters.TradeCount)
		}
	}
}

// CheckEmergencyStop reports whether the manager is currently tripped.
func (m *Manager) CheckEmergencyStop(ctx context.Context) (bool, string, error) {
	var tripped bool
	var reason string
	err := m.do(ctx, func(st *state) {
		st.rollIfNeeded()
		st.evaluateEmergencyStop()
		tripped, reason = st.tripped, st.tripMsg
	})
	return tripped, reason, err
}

// Reset clears the emergency-stop latch. There is no auto-reset; this is
// the only way to clear it, and it must be called deliberately by an
// operator.
func (m *Manager) Reset(ctx context.Context) error {
	return m.do(ctx, func(st *state) {
		st.tripped = false
		st.tripMsg = ""
	})
}

// CheckSlippage fails the buy side if actual exceeds expected by more
// than maxSlippagePct; the sell side is symmetric (actual below expected
// by more than maxSlippagePct fails).
func (m *Manager) CheckSlippage(ctx context.Context, expected, actual decimal.Decimal, side Side) (bool, decimal.Decimal, error) {
	var ok bool
	var pct decimal.Decimal
	err := m.do(ctx, func(st *state) {
		limit := st.limits.MaxSlippagePct
		switch side {
		case SideBuy:
			ceiling := expected.Mul(decimal.NewFromInt(1).Add(limit.Div(decimal.NewFromInt(100))))
			ok = !actual.GreaterThan(ceiling)
		case SideSell:
			floor := expected.Mul(decimal.NewFromInt(1).Sub(limit.Div(decimal.NewFromInt(100))))
			ok = !actual.LessThan(floor)
		}
		if expected.IsZero() {
			pct = decimal.Zero
		} else {
			pct = actual.Sub(expected).Div(expected).Mul(decimal.NewFromInt(100))
		}
	})
	return ok, pct, err
}

// Snapshot returns a copy of the current counters, for the metrics loop and
// tests. Exposure conservation (property #5) can be checked by comparing
// ExposureKrw against the sum of ActiveSizes().
func (m *Manager) Snapshot(ctx context.Context) (Counters, error) {
	var c Counters
	err := m.do(ctx, func(st *state) {
		st.rollIfNeeded()
		c = st.counters
	})
	return c, err
}

// ActiveSizes returns a copy of the active-trade ledger (tradeID -> sized
// amount), for the exposure conservation test.
func (m *Manager) ActiveSizes(ctx context.Context) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal)
	err := m.do(ctx, func(st *state) {
		for k, v := range st.active {
			out[k] = v
		}
	})
	return out, err
}
