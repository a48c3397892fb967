// Package analytics implements the performance analyzer: aggregate win
// rate, average profit/loss, and per-symbol cycle counts over completed
// Trades. Sharpe ratio, Value-at-Risk, and drawdown are not computed here:
// those assume a continuously-marked position book and have no equivalent
// input in a cycle-based arbitrage book (see DESIGN.md).
package analytics

import (
	"sync"

	"github.com/shopspring/decimal"

	"github.com/ajitpratap0/cryptofunk/internal/strategy"
)

// SymbolStats is the running tally for one symbol's arbitrage cycles.
type SymbolStats struct {
	Symbol        string
	CycleCount    int
	SuccessCount  int
	FailCount     int
	PartialCount  int
	TotalProfitKrw decimal.Decimal
}

// Snapshot is the analyzer's point-in-time report, surfaced by the
// Orchestrator's metrics loop.
type Snapshot struct {
	TotalTrades      int
	WinCount         int
	LossCount        int
	WinRatePct       decimal.Decimal
	AvgProfitKrw     decimal.Decimal
	TotalProfitKrw   decimal.Decimal
	BySymbol         map[string]SymbolStats
}

// Analyzer accumulates completed-Trade outcomes. It is concurrency-safe:
// the Orchestrator records a terminal Trade from whichever goroutine drove
// it, and the metrics loop reads a Snapshot from its own goroutine.
type Analyzer struct {
	mu       sync.Mutex
	total    int
	wins     int
	losses   int
	profit   decimal.Decimal
	bySymbol map[string]SymbolStats
}

// New constructs an empty Analyzer.
func New() *Analyzer {
	return &Analyzer{bySymbol: make(map[string]SymbolStats)}
}

// Record folds one terminal Trade into the running aggregates. Only
// terminal trades (Outcome set) should be passed; the driver guarantees
// this by construction: outcome is set exactly once, at the terminal
// transition.
func (a *Analyzer) Record(t *strategy.Trade) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.total++
	a.profit = a.profit.Add(t.RealizedProfitKrw)
	if t.RealizedProfitKrw.IsPositive() {
		a.wins++
	} else if t.RealizedProfitKrw.IsNegative() {
		a.losses++
	}

	symbol := t.Opportunity.Symbol
	s := a.bySymbol[symbol]
	s.Symbol = symbol
	s.CycleCount++
	s.TotalProfitKrw = s.TotalProfitKrw.Add(t.RealizedProfitKrw)
	switch t.Outcome {
	case strategy.OutcomeCompleted:
		s.SuccessCount++
	case strategy.OutcomeFailed:
		s.FailCount++
	case strategy.OutcomePartial:
		s.PartialCount++
	}
	a.bySymbol[symbol] = s
}

// Snapshot returns a copy of the current aggregates.
func (a *Analyzer) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := Snapshot{
		TotalTrades:    a.total,
		WinCount:       a.wins,
		LossCount:      a.losses,
		TotalProfitKrw: a.profit,
		BySymbol:       make(map[string]SymbolStats, len(a.bySymbol)),
	}
	for k, v := range a.bySymbol {
		out.BySymbol[k] = v
	}
	if a.total > 0 {
		out.WinRatePct = decimal.NewFromInt(int64(a.wins)).Mul(decimal.NewFromInt(100)).Div(decimal.NewFromInt(int64(a.total)))
		out.AvgProfitKrw = a.profit.Div(decimal.NewFromInt(int64(a.total)))
	}
	return out
}
