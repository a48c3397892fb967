// Package strategy implements the forward and reverse state machines that
// carry a sized Opportunity through the full buy/transfer/sell/transfer/
// convert cycle across both venues. The state machine is expressed as an
// explicit enum plus a transition table per direction, not sequential
// awaits with exception handling, so a Trade can be stepped with synthetic
// venue responses in tests and (eventually) resumed from persisted state.
package strategy

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/ajitpratap0/cryptofunk/internal/premium"
)

// State is one node of the directed state graph.
type State string

const (
	StateStart    State = "start"
	StateComplete State = "completed"
	StateRecovery State = "recovery"

	// Forward-only states.
	StateBuyingKrw       State = "buying_krw"
	StateXferOut         State = "xfer_out"
	StateAwaitXferOut    State = "await_xfer_out"
	StateSellingUsdtSide State = "selling_usdt_side"
	StateXferHome        State = "xfer_home"
	StateAwaitXferHome   State = "await_xfer_home"
	StateConvertingHome  State = "converting_home"

	// Reverse-only states (mirror structure: USDT on EX-U -> coin -> EX-K ->
	// KRW -> USDT -> EX-U).
	StateBuyingUsdtSide    State = "buying_usdt_side"
	StateXferCoinHome      State = "xfer_coin_home"
	StateAwaitXferCoinHome State = "await_xfer_coin_home"
	StateSellingKrwSide    State = "selling_krw_side"
	StateBuyingUsdtHome    State = "buying_usdt_home"
	StateXferUsdtOut       State = "xfer_usdt_out"
	StateAwaitXferUsdtOut  State = "await_xfer_usdt_out"
)

// Outcome is a Trade's terminal classification.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	OutcomePartial   Outcome = "partial"
)

// StepRecord is one append-only entry of a Trade's step history.
type StepRecord struct {
	State   State
	At      time.Time
	Success bool
	Detail  string
	Err     string
}

// Trade is created on strategy entry, terminal on completion or failure.
// Steps is append-only; callers must not mutate or reorder past entries.
type Trade struct {
	ID                string
	Opportunity       premium.Opportunity
	Direction         premium.Direction
	State             State
	Steps             []StepRecord
	StartedAt         time.Time
	EndedAt           *time.Time
	Outcome           Outcome
	RealizedProfitKrw decimal.Decimal

	// initialKrw/coinAcquired/usdtAcquired/finalKrw carry cross-step
	// working values that are not part of the public record but are needed
	// to compute RealizedProfitKrw on completion.
	initialKrw   decimal.Decimal
	coinAcquired decimal.Decimal
	usdtAcquired decimal.Decimal
	finalKrw     decimal.Decimal

	// fiatRateAtStart is the USD/KRW rate observed when the trade was
	// created, used only by the reverse variant's pre-flight sizing check
	// (sized at sizedAmountKrw / fiatRate * 1.01).
	fiatRateAtStart decimal.Decimal

	// xferBaseline/xferExpected are the receiving-side balance snapshot and
	// expected delta for the in-flight transfer step; consumed by the
	// matching await_xfer_* state.
	xferBaseline decimal.Decimal
	xferExpected decimal.Decimal
}

// record appends a step to the trade's history. success=false does not by
// itself end the trade; the driver decides the next state.
func (t *Trade) record(state State, success bool, detail string, err error) {
	sr := StepRecord{State: state, At: time.Now(), Success: success, Detail: detail}
	if err != nil {
		sr.Err = err.Error()
	}
	t.Steps = append(t.Steps, sr)
}

// IsTerminal reports whether state ends the trade's lifecycle.
func IsTerminal(s State) bool {
	return s == StateComplete || s == StateRecovery
}

// NewTrade constructs a Trade ready for the driver. fiatRate is the
// USD/KRW rate observed at opportunity time, used only by the reverse
// direction's pre-flight balance check.
func NewTrade(id string, opp premium.Opportunity, fiatRate decimal.Decimal) *Trade {
	return &Trade{
		ID:              id,
		Opportunity:     opp,
		Direction:       opp.Direction,
		State:           StateStart,
		StartedAt:       time.Now(),
		fiatRateAtStart: fiatRate,
	}
}
