package strategy

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/ajitpratap0/cryptofunk/internal/alerts"
	"github.com/ajitpratap0/cryptofunk/internal/metrics"
	"github.com/ajitpratap0/cryptofunk/internal/premium"
	"github.com/ajitpratap0/cryptofunk/internal/risk"
	"github.com/ajitpratap0/cryptofunk/internal/venue"
	"github.com/ajitpratap0/cryptofunk/internal/venueerr"
)

// policy governs what the driver does when a state's step function
// returns an error.
type policy int

const (
	policyAbort    policy = iota // pre-flight / no funds committed: fail the trade directly
	policyRecovery               // funds are mid-flight: enter the recovery inspection state
)

// stepFn executes one state's action and returns the next state plus a
// human-readable detail string for the step record. A non-nil error is
// interpreted through the state's policy in the direction's table.
type stepFn func(ctx context.Context, d *Driver, t *Trade) (next State, detail string, err error)

type tableEntry struct {
	fn     stepFn
	policy policy
}

// Driver executes a Trade's state machine against live (or paper) venue
// clients. One Driver instance is shared across concurrently running
// trades; it holds no per-trade mutable state.
type Driver struct {
	Exk, Exu venue.Client
	Risk     *risk.Manager
	Alerts   *alerts.Manager
	Clock    Clock

	PollInterval    time.Duration
	TransferTimeout time.Duration
	DustPct         decimal.Decimal // fraction of balance left behind on withdraw, e.g. 0.001

	forwardTable map[State]tableEntry
	reverseTable map[State]tableEntry
}

// NewDriver constructs a Driver with the forward/reverse transition tables
// wired. Clock defaults to the real clock if nil.
func NewDriver(exk, exu venue.Client, riskMgr *risk.Manager, alertMgr *alerts.Manager, clock Clock) *Driver {
	if clock == nil {
		clock = NewRealClock()
	}
	d := &Driver{
		Exk:             exk,
		Exu:             exu,
		Risk:            riskMgr,
		Alerts:          alertMgr,
		Clock:           clock,
		PollInterval:    30 * time.Second,
		TransferTimeout: 30 * time.Minute,
		DustPct:         decimal.NewFromFloat(0.001),
	}
	d.forwardTable = forwardTable()
	d.reverseTable = reverseTable()
	return d
}

// Run drives t from its current state to a terminal state, recording each
// step. RegisterEnd is called on the risk manager exactly once, on
// terminal transition.
func (d *Driver) Run(ctx context.Context, t *Trade) {
	table := d.forwardTable
	if t.Direction == premium.Reverse {
		table = d.reverseTable
	}

	for !IsTerminal(t.State) {
		entry, ok := table[t.State]
		if !ok {
			log.Error().Str("trade_id", t.ID).Str("state", string(t.State)).Msg("no transition defined for state")
			t.enterRecovery(ctx, d, "no transition defined for state "+string(t.State))
			break
		}

		next, detail, err := entry.fn(ctx, d, t)

		if err != nil {
			t.record(t.State, false, detail, err)
			metrics.RecordStrategyOperation(string(t.State), false)
			if ctx.Err() != nil && partialEligible(t.State) {
				t.finish(OutcomePartial)
				break
			}
			switch entry.policy {
			case policyAbort:
				t.finish(OutcomeFailed)
			case policyRecovery:
				t.enterRecovery(ctx, d, err.Error())
			}
			break
		}

		t.record(t.State, true, detail, nil)
		metrics.RecordStrategyOperation(string(t.State), true)
		t.State = next

		if t.State == StateComplete {
			t.finish(OutcomeCompleted)
			break
		}
	}

	if t.Outcome == OutcomeCompleted {
		profit, _ := t.RealizedProfitKrw.Float64()
		metrics.RecordTrade(profit)
	}

	if d.Risk != nil {
		success := t.Outcome == OutcomeCompleted
		_ = d.Risk.RegisterEnd(context.Background(), t.ID, t.RealizedProfitKrw, success)
	}
}

// partialEligible reports whether cancellation while in this state should
// surface a Partial outcome (post-trade, pre-transfer-completion states
// where funds exist on a venue but the cycle is incomplete) rather than
// Failed.
func partialEligible(s State) bool {
	switch s {
	case StateAwaitXferOut, StateAwaitXferHome, StateAwaitXferCoinHome, StateAwaitXferUsdtOut:
		return true
	default:
		return false
	}
}

func (t *Trade) finish(outcome Outcome) {
	now := time.Now()
	t.EndedAt = &now
	t.Outcome = outcome
	if outcome != OutcomeCompleted && t.State != StateRecovery {
		t.State = StateRecovery
	}
}

// enterRecovery is the recovery state: an inspection-only terminal state
// that records each venue's free KRW, USDT and coin balances in the alert
// metadata, emits an operator alert, and marks the trade failed. No
// automatic unwinding is attempted.
func (t *Trade) enterRecovery(ctx context.Context, d *Driver, reason string) {
	t.State = StateRecovery
	t.record(StateRecovery, false, reason, nil)

	meta := map[string]interface{}{
		"trade_id": t.ID,
		"symbol":   t.Opportunity.Symbol,
		"reason":   reason,
	}
	for _, v := range []venue.Client{d.Exk, d.Exu} {
		if v == nil {
			continue
		}
		for _, asset := range []string{"KRW", "USDT", t.Opportunity.Symbol} {
			if bal, err := v.Balance(ctx, asset); err == nil {
				meta["balance_"+v.Name()+"_"+asset] = bal.Free.String()
			}
		}
	}
	if d.Alerts != nil {
		if err := d.Alerts.SendCritical(ctx, "Trade entered recovery", fmt.Sprintf(
			"Trade %s (%s) requires manual inspection: %s", t.ID, t.Opportunity.Symbol, reason,
		), meta); err != nil {
			log.Error().Err(err).Str("trade_id", t.ID).Msg("failed to send recovery alert")
		}
	}
	t.finish(OutcomeFailed)
}

// withdrawLessDust withdraws amount minus the venue's fixed on-chain fee
// and a small residual (DustPct), never the full balance.
func (d *Driver) withdrawLessDust(ctx context.Context, from venue.Client, asset, network, address, tag string, balance decimal.Decimal) (string, decimal.Decimal, error) {
	fee := from.WithdrawFee(asset, network)
	residual := balance.Mul(d.DustPct)
	transferable := balance.Sub(fee).Sub(residual)
	if !transferable.IsPositive() {
		return "", decimal.Zero, venueerr.New(venueerr.VenuePermanent, from.Name()+".Withdraw", "balance too small to cover fee and dust residual")
	}
	id, err := from.Withdraw(ctx, asset, address, transferable, network, tag)
	if err != nil {
		return "", decimal.Zero, err
	}
	return id, transferable, nil
}

// awaitDeposit polls dest for either a balance increase of at least 99% of
// expectedQty, or a confirmed deposit-history entry, up to d.TransferTimeout.
// It respects ctx cancellation between polls.
func (d *Driver) awaitDeposit(ctx context.Context, dest venue.Client, asset string, baselineFree, expectedQty decimal.Decimal) error {
	deadline := d.Clock.Now().Add(d.TransferTimeout)
	threshold := expectedQty.Mul(decimal.NewFromFloat(0.99))

	for {
		bal, err := dest.Balance(ctx, asset)
		if err == nil {
			delta := bal.Free.Sub(baselineFree)
			if delta.GreaterThanOrEqual(threshold) {
				return nil
			}
		}

		entries, err := dest.DepositHistory(ctx, asset, nil)
		if err == nil {
			for _, e := range entries {
				if e.State == venue.DepositConfirmed && e.Amount.GreaterThanOrEqual(threshold) {
					return nil
				}
			}
		}

		if !d.Clock.Now().Before(deadline) {
			return venueerr.New(venueerr.TransferTimeout, dest.Name()+".awaitDeposit", "deposit not observed before transfer timeout")
		}

		if err := d.Clock.Sleep(ctx, d.PollInterval); err != nil {
			return err
		}
	}
}

// checkFill surfaces a partial fill: executedQty < requested * 0.995
// becomes a distinct PartialFill error.
func checkFill(op string, requested, executed decimal.Decimal) error {
	if executed.LessThan(requested.Mul(decimal.NewFromFloat(0.995))) {
		return venueerr.New(venueerr.PartialFill, op, fmt.Sprintf("executed %s below 99.5%% of requested %s", executed.String(), requested.String()))
	}
	return nil
}

func newStepID() string { return uuid.NewString() }
