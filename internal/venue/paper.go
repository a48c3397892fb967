package venue

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/ajitpratap0/cryptofunk/internal/venueerr"
)

// Paper decorates an underlying live Client: ticker, order-book, and market
// listing reads pass straight through (they need real prices to be useful),
// while balance, order, withdraw, and deposit-history calls are intercepted
// into an in-memory virtual ledger backing the dry-run/paper-trading mode.
type Paper struct {
	underlying Client

	mu          sync.Mutex
	ledger      ledgerState
	path        string
	transfer    time.Duration // simulated on-chain transfer delay
	now         func() time.Time
	counterpart *Paper // receiving venue's ledger, credited by Withdraw
}

type ledgerState struct {
	Balances map[string]*Balance       `json:"balances"`
	Deposits map[string][]DepositEntry `json:"deposits"`
	Withdraws []withdrawRecord         `json:"withdraws"`
	Orders    []orderRecord            `json:"orders"`
}

type withdrawRecord struct {
	ID        string          `json:"id"`
	Asset     string          `json:"asset"`
	Address   string          `json:"address"`
	Amount    decimal.Decimal `json:"amount"`
	Network   string          `json:"network"`
	CreatedAt time.Time       `json:"created_at"`
}

type orderRecord struct {
	OrderID string          `json:"order_id"`
	Symbol  string          `json:"symbol"`
	Side    string          `json:"side"`
	Qty     decimal.Decimal `json:"qty"`
	Quote   decimal.Decimal `json:"quote"`
	At      time.Time       `json:"at"`
}

// NewPaper constructs a paper-trading decorator. path, if non-empty, is the
// JSON document the ledger is persisted to on every mutation and loaded
// from at startup if present; an empty path keeps the ledger in memory
// only. transferDelay is how long a simulated on-chain transfer takes to
// post to the receiving venue's deposit history (see SetCounterpart).
func NewPaper(underlying Client, path string, transferDelay time.Duration) *Paper {
	p := &Paper{
		underlying: underlying,
		path:       path,
		transfer:   transferDelay,
		now:        time.Now,
		ledger: ledgerState{
			Balances: make(map[string]*Balance),
			Deposits: make(map[string][]DepositEntry),
		},
	}
	p.load()
	return p
}

func (p *Paper) Name() string          { return p.underlying.Name() + "-paper" }
func (p *Paper) QuoteCurrency() string { return p.underlying.QuoteCurrency() }

// SetClock overrides the clock, for deterministic tests.
func (p *Paper) SetClock(now func() time.Time) { p.now = now }

// SetCounterpart links this Paper to the other venue's Paper ledger, so a
// Withdraw on one posts its matching deposit to the other rather than back
// to itself. Both EX-K and EX-U run independent Paper decorators
// (cmd/arbengine/wiring.go); without this link a dry-run transfer never
// becomes visible to the receiving venue's DepositHistory poll and every
// cycle times out into recovery.
func (p *Paper) SetCounterpart(other *Paper) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.counterpart = other
}

// SeedBalance sets a starting virtual balance for asset.
func (p *Paper) SeedBalance(asset string, free decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ledger.Balances[asset] = &Balance{Asset: asset, Free: free, Total: free}
	p.persistLocked()
}

func (p *Paper) load() {
	if p.path == "" {
		return
	}
	data, err := os.ReadFile(p.path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", p.path).Msg("failed to load paper ledger, starting empty")
		}
		return
	}
	var st ledgerState
	if err := json.Unmarshal(data, &st); err != nil {
		log.Warn().Err(err).Str("path", p.path).Msg("paper ledger file corrupt, starting empty")
		return
	}
	if st.Balances == nil {
		st.Balances = make(map[string]*Balance)
	}
	if st.Deposits == nil {
		st.Deposits = make(map[string][]DepositEntry)
	}
	p.ledger = st
}

// persistLocked writes the ledger to a temp file and renames it over the
// destination, so a reader never observes a partial write. Caller must
// hold p.mu.
func (p *Paper) persistLocked() {
	if p.path == "" {
		return
	}
	data, err := json.MarshalIndent(p.ledger, "", "  ")
	if err != nil {
		log.Warn().Err(err).Msg("failed to marshal paper ledger")
		return
	}
	tmp := p.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		log.Warn().Err(err).Str("path", p.path).Msg("failed to write paper ledger, continuing without persistence")
		return
	}
	if err := os.Rename(tmp, p.path); err != nil {
		log.Warn().Err(err).Str("path", p.path).Msg("failed to finalize paper ledger write")
	}
}

func (p *Paper) ensureLocked(asset string) *Balance {
	b, ok := p.ledger.Balances[asset]
	if !ok {
		b = &Balance{Asset: asset}
		p.ledger.Balances[asset] = b
	}
	return b
}

func (p *Paper) Ticker(ctx context.Context, symbol string) (decimal.Decimal, error) {
	return p.underlying.Ticker(ctx, symbol)
}

func (p *Paper) OrderBook(ctx context.Context, symbol string, depth int) (*Book, error) {
	return p.underlying.OrderBook(ctx, symbol, depth)
}

func (p *Paper) ListMarkets(ctx context.Context, quote string) ([]string, error) {
	return p.underlying.ListMarkets(ctx, quote)
}

func (p *Paper) VerifyAccess(ctx context.Context) (bool, string) {
	return true, "paper trading mode"
}

func (p *Paper) Quantize(symbol string, qty decimal.Decimal) (decimal.Decimal, error) {
	return p.underlying.Quantize(symbol, qty)
}

func (p *Paper) WithdrawFee(asset, network string) decimal.Decimal {
	return p.underlying.WithdrawFee(asset, network)
}

func (p *Paper) Balance(ctx context.Context, asset string) (Balance, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	b := p.ensureLocked(asset)
	return *b, nil
}

func (p *Paper) MarketBuy(ctx context.Context, symbol string, quoteAmount, baseQuantity *decimal.Decimal) (ExecutedOrder, error) {
	price, err := p.underlying.Ticker(ctx, symbol)
	if err != nil {
		return ExecutedOrder{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	var qty, quote decimal.Decimal
	switch {
	case quoteAmount != nil:
		quote = *quoteAmount
		qty = quote.Div(price)
	case baseQuantity != nil:
		qty = *baseQuantity
		quote = qty.Mul(price)
	default:
		return ExecutedOrder{}, venueerr.New(venueerr.VenuePermanent, p.Name()+".MarketBuy", "neither quoteAmount nor baseQuantity set")
	}

	base, quoteAsset := splitSymbol(symbol)
	quoteBal := p.ensureLocked(quoteAsset)
	if quote.GreaterThan(quoteBal.Free) {
		return ExecutedOrder{}, venueerr.New(venueerr.VenuePermanent, p.Name()+".MarketBuy", "insufficient virtual balance")
	}
	quoteBal.Free = quoteBal.Free.Sub(quote)
	quoteBal.Total = quoteBal.Free.Add(quoteBal.Locked)

	baseBal := p.ensureLocked(base)
	baseBal.Free = baseBal.Free.Add(qty)
	baseBal.Total = baseBal.Free.Add(baseBal.Locked)

	fee := quote.Mul(decimal.NewFromFloat(0.001))
	id := uuid.NewString()
	p.ledger.Orders = append(p.ledger.Orders, orderRecord{OrderID: id, Symbol: symbol, Side: "buy", Qty: qty, Quote: quote, At: p.now()})
	p.persistLocked()
	return ExecutedOrder{OrderID: id, ExecutedQty: qty, ExecutedQuote: quote, Fee: fee, FeeAsset: quoteAsset}, nil
}

func (p *Paper) MarketSell(ctx context.Context, symbol string, baseQuantity decimal.Decimal) (ExecutedOrder, error) {
	price, err := p.underlying.Ticker(ctx, symbol)
	if err != nil {
		return ExecutedOrder{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	base, quoteAsset := splitSymbol(symbol)
	baseBal := p.ensureLocked(base)
	if baseQuantity.GreaterThan(baseBal.Free) {
		return ExecutedOrder{}, venueerr.New(venueerr.VenuePermanent, p.Name()+".MarketSell", "insufficient virtual balance")
	}
	baseBal.Free = baseBal.Free.Sub(baseQuantity)
	baseBal.Total = baseBal.Free.Add(baseBal.Locked)

	quote := baseQuantity.Mul(price)
	quoteBal := p.ensureLocked(quoteAsset)
	quoteBal.Free = quoteBal.Free.Add(quote)
	quoteBal.Total = quoteBal.Free.Add(quoteBal.Locked)

	fee := quote.Mul(decimal.NewFromFloat(0.001))
	id := uuid.NewString()
	p.ledger.Orders = append(p.ledger.Orders, orderRecord{OrderID: id, Symbol: symbol, Side: "sell", Qty: baseQuantity, Quote: quote, At: p.now()})
	p.persistLocked()
	return ExecutedOrder{OrderID: id, ExecutedQty: baseQuantity, ExecutedQuote: quote, Fee: fee, FeeAsset: quoteAsset}, nil
}

func (p *Paper) DepositAddress(ctx context.Context, asset, network string) (string, string, error) {
	return "paper-" + asset + "-" + network, "", nil
}

// Withdraw debits the virtual balance immediately and schedules a matching
// deposit-history entry p.transfer from now, simulating on-chain latency.
// The entry is posted to the counterpart's ledger (see SetCounterpart) if
// one is linked, otherwise to this ledger's own deposit history. DepositHistory
// lists it as pending at once and reports it confirmed only once its
// CompletedAt has elapsed (checked against the receiving ledger's now()).
func (p *Paper) Withdraw(ctx context.Context, asset, address string, amount decimal.Decimal, network, tag string) (string, error) {
	p.mu.Lock()
	bal := p.ensureLocked(asset)
	if amount.GreaterThan(bal.Free) {
		p.mu.Unlock()
		return "", venueerr.New(venueerr.VenuePermanent, p.Name()+".Withdraw", "insufficient virtual balance")
	}
	bal.Free = bal.Free.Sub(amount)
	bal.Total = bal.Free.Add(bal.Locked)

	id := uuid.NewString()
	receiver := p.counterpart
	transfer := p.transfer
	p.ledger.Withdraws = append(p.ledger.Withdraws, withdrawRecord{
		ID: id, Asset: asset, Address: address, Amount: amount, Network: network, CreatedAt: p.now(),
	})
	p.persistLocked()
	p.mu.Unlock()

	if receiver == nil {
		receiver = p
	}
	receiver.scheduleDeposit(asset, amount, id, transfer)
	return id, nil
}

// scheduleDeposit appends a pending deposit entry, completing transfer after
// the receiving ledger's own clock. Locks this Paper's own mutex only, so
// it's safe to call on a counterpart without nested locking.
func (p *Paper) scheduleDeposit(asset string, amount decimal.Decimal, txID string, transfer time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	completedAt := p.now().Add(transfer)
	p.ledger.Deposits[asset] = append(p.ledger.Deposits[asset], DepositEntry{
		Amount:      amount,
		State:       DepositPending,
		TxID:        txID,
		CompletedAt: &completedAt,
	})
	p.persistLocked()
}

// DepositHistory reports entries as confirmed once their scheduled
// CompletedAt has elapsed, and credits the receiving balance the first time
// that happens (lazy settlement, evaluated on read).
func (p *Paper) DepositHistory(ctx context.Context, asset string, since *time.Time) ([]DepositEntry, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	entries := p.ledger.Deposits[asset]
	for i := range entries {
		e := &entries[i]
		if e.State == DepositPending && e.CompletedAt != nil && !now.Before(*e.CompletedAt) {
			e.State = DepositConfirmed
			bal := p.ensureLocked(asset)
			bal.Free = bal.Free.Add(e.Amount)
			bal.Total = bal.Free.Add(bal.Locked)
		}
	}
	p.persistLocked()

	if since == nil {
		out := make([]DepositEntry, len(entries))
		copy(out, entries)
		return out, nil
	}
	var out []DepositEntry
	for _, e := range entries {
		if e.CompletedAt != nil && e.CompletedAt.After(*since) {
			out = append(out, e)
		}
	}
	return out, nil
}

var _ Client = (*Paper)(nil)
