package venue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ajitpratap0/cryptofunk/internal/venueerr"
)

// Mock is a deterministic in-memory Client test double. It is the
// foundation both unit tests and Paper build on, built around decimal
// money and the two-venue VenueClient shape.
type Mock struct {
	mu sync.Mutex

	name     string
	quote    string
	prices   map[string]decimal.Decimal
	books    map[string]*Book
	balances map[string]*Balance
	markets  []string

	minOrderQuote decimal.Decimal
	lotStep       decimal.Decimal

	deposits map[string][]DepositEntry

	// withdrawDelay is stored by SetWithdrawDelay but not applied: deposits
	// recorded by CreditDeposit are confirmed immediately. now stamps their
	// CompletedAt (time.Now by default).
	withdrawDelay time.Duration
	now           func() time.Time

	verifyOK      bool
	verifyMessage string
}

// NewMock constructs a Mock venue client quoted against quoteCurrency
// ("KRW" or "USDT").
func NewMock(name, quoteCurrency string) *Mock {
	return &Mock{
		name:          name,
		quote:         quoteCurrency,
		prices:        make(map[string]decimal.Decimal),
		books:         make(map[string]*Book),
		balances:      make(map[string]*Balance),
		deposits:      make(map[string][]DepositEntry),
		minOrderQuote: decimal.NewFromInt(5000),
		lotStep:       decimal.NewFromFloat(0.00000001),
		withdrawDelay: 0,
		now:           time.Now,
		verifyOK:      true,
	}
}

func (m *Mock) Name() string          { return m.name }
func (m *Mock) QuoteCurrency() string { return m.quote }

// SetClock overrides the clock used to evaluate deposit confirmation delay;
// used by tests that need to fast-forward.
func (m *Mock) SetClock(now func() time.Time) { m.now = now }

// SetPrice sets the last-trade price used by Ticker and market orders.
func (m *Mock) SetPrice(symbol string, price decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices[symbol] = price
}

// SetBook sets the order book snapshot returned by OrderBook.
func (m *Mock) SetBook(symbol string, book *Book) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.books[symbol] = book
}

// SetBalance seeds a balance for asset.
func (m *Mock) SetBalance(asset string, free, locked decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[asset] = &Balance{Asset: asset, Free: free, Locked: locked, Total: free.Add(locked)}
}

// SetMarkets sets the symbol universe returned by ListMarkets.
func (m *Mock) SetMarkets(symbols []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.markets = symbols
}

// SetWithdrawDelay stores a withdrawal confirmation delay. No Mock method
// reads it; CreditDeposit still credits and confirms immediately.
func (m *Mock) SetWithdrawDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.withdrawDelay = d
}

// SetVerifyAccess overrides the VerifyAccess response.
func (m *Mock) SetVerifyAccess(ok bool, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verifyOK, m.verifyMessage = ok, message
}

// CreditDeposit simulates an inbound transfer arriving on this venue: it
// immediately raises the free balance and appends a confirmed
// deposit-history row.
func (m *Mock) CreditDeposit(asset string, amount decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bal, ok := m.balances[asset]
	if !ok {
		bal = &Balance{Asset: asset}
		m.balances[asset] = bal
	}
	bal.Free = bal.Free.Add(amount)
	bal.Total = bal.Free.Add(bal.Locked)
	m.deposits[asset] = append(m.deposits[asset], DepositEntry{
		Amount:      amount,
		State:       DepositConfirmed,
		TxID:        uuid.NewString(),
		CompletedAt: ptrTime(m.now()),
	})
}

func ptrTime(t time.Time) *time.Time { return &t }

func (m *Mock) Ticker(ctx context.Context, symbol string) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.prices[symbol]
	if !ok {
		return decimal.Zero, venueerr.New(venueerr.VenuePermanent, m.name+".Ticker", "unknown symbol "+symbol)
	}
	return p, nil
}

func (m *Mock) OrderBook(ctx context.Context, symbol string, depth int) (*Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.books[symbol]
	if !ok {
		return nil, venueerr.New(venueerr.VenuePermanent, m.name+".OrderBook", "unknown symbol "+symbol)
	}
	out := &Book{Symbol: b.Symbol, Timestamp: b.Timestamp}
	out.Bids = limitLevels(b.Bids, depth)
	out.Asks = limitLevels(b.Asks, depth)
	return out, nil
}

func limitLevels(levels []Level, depth int) []Level {
	if depth <= 0 || depth >= len(levels) {
		out := make([]Level, len(levels))
		copy(out, levels)
		return out
	}
	out := make([]Level, depth)
	copy(out, levels[:depth])
	return out
}

func (m *Mock) Balance(ctx context.Context, asset string) (Balance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.balances[asset]
	if !ok {
		return Balance{Asset: asset}, nil
	}
	return *b, nil
}

func (m *Mock) MarketBuy(ctx context.Context, symbol string, quoteAmount, baseQuantity *decimal.Decimal) (ExecutedOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	price, ok := m.prices[symbol]
	if !ok {
		return ExecutedOrder{}, venueerr.New(venueerr.VenuePermanent, m.name+".MarketBuy", "unknown symbol "+symbol)
	}

	var qty, quote decimal.Decimal
	switch {
	case quoteAmount != nil:
		quote = *quoteAmount
		qty = quote.Div(price)
	case baseQuantity != nil:
		qty = *baseQuantity
		quote = qty.Mul(price)
	default:
		return ExecutedOrder{}, venueerr.New(venueerr.VenuePermanent, m.name+".MarketBuy", "neither quoteAmount nor baseQuantity set")
	}

	if quote.LessThan(m.minOrderQuote) {
		return ExecutedOrder{}, venueerr.New(venueerr.VenuePermanent, m.name+".MarketBuy", "order below minimum notional")
	}

	base, quoteAsset := splitSymbol(symbol)
	bBal := m.ensure(base)
	bBal.Free = bBal.Free.Add(qty)
	bBal.Total = bBal.Free.Add(bBal.Locked)

	qBal := m.ensure(quoteAsset)
	qBal.Free = qBal.Free.Sub(quote)
	qBal.Total = qBal.Free.Add(qBal.Locked)

	fee := quote.Mul(decimal.NewFromFloat(0.001))
	return ExecutedOrder{OrderID: uuid.NewString(), ExecutedQty: qty, ExecutedQuote: quote, Fee: fee, FeeAsset: quoteAsset}, nil
}

func (m *Mock) MarketSell(ctx context.Context, symbol string, baseQuantity decimal.Decimal) (ExecutedOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	price, ok := m.prices[symbol]
	if !ok {
		return ExecutedOrder{}, venueerr.New(venueerr.VenuePermanent, m.name+".MarketSell", "unknown symbol "+symbol)
	}

	base, quoteAsset := splitSymbol(symbol)
	bBal := m.ensure(base)
	if baseQuantity.GreaterThan(bBal.Free) {
		return ExecutedOrder{}, venueerr.New(venueerr.VenuePermanent, m.name+".MarketSell", "insufficient balance")
	}

	quote := baseQuantity.Mul(price)
	bBal.Free = bBal.Free.Sub(baseQuantity)
	bBal.Total = bBal.Free.Add(bBal.Locked)

	qBal := m.ensure(quoteAsset)
	qBal.Free = qBal.Free.Add(quote)
	qBal.Total = qBal.Free.Add(qBal.Locked)

	fee := quote.Mul(decimal.NewFromFloat(0.001))
	return ExecutedOrder{OrderID: uuid.NewString(), ExecutedQty: baseQuantity, ExecutedQuote: quote, Fee: fee, FeeAsset: quoteAsset}, nil
}

func (m *Mock) ensure(asset string) *Balance {
	b, ok := m.balances[asset]
	if !ok {
		b = &Balance{Asset: asset}
		m.balances[asset] = b
	}
	return b
}

func splitSymbol(symbol string) (base, quote string) {
	// Mock symbols are "BASEQUOTE" (e.g. "BTCUSDT", "BTCKRW"); venue
	// package callers always pass symbols already joined this way.
	for _, q := range []string{"USDT", "KRW"} {
		if len(symbol) > len(q) && symbol[len(symbol)-len(q):] == q {
			return symbol[:len(symbol)-len(q)], q
		}
	}
	return symbol, ""
}

func (m *Mock) DepositAddress(ctx context.Context, asset, network string) (string, string, error) {
	return fmt.Sprintf("mock-%s-%s-address", m.name, asset), "", nil
}

func (m *Mock) Withdraw(ctx context.Context, asset, address string, amount decimal.Decimal, network, tag string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bal := m.ensure(asset)
	if amount.GreaterThan(bal.Free) {
		return "", venueerr.New(venueerr.VenuePermanent, m.name+".Withdraw", "insufficient balance")
	}
	bal.Free = bal.Free.Sub(amount)
	bal.Total = bal.Free.Add(bal.Locked)
	return uuid.NewString(), nil
}

func (m *Mock) DepositHistory(ctx context.Context, asset string, since *time.Time) ([]DepositEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := m.deposits[asset]
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

func (m *Mock) ListMarkets(ctx context.Context, quote string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.markets))
	copy(out, m.markets)
	return out, nil
}

func (m *Mock) VerifyAccess(ctx context.Context) (bool, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.verifyOK, m.verifyMessage
}

func (m *Mock) Quantize(symbol string, qty decimal.Decimal) (decimal.Decimal, error) {
	if qty.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, venueerr.New(venueerr.VenuePermanent, m.name+".Quantize", "quantity below minimum")
	}
	q := qty.DivRound(m.lotStep, 0).Mul(m.lotStep)
	if q.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, venueerr.New(venueerr.VenuePermanent, m.name+".Quantize", "quantity below minimum lot size")
	}
	return q, nil
}

func (m *Mock) WithdrawFee(asset, network string) decimal.Decimal {
	return StaticWithdrawFee(asset, network)
}

var _ Client = (*Mock)(nil)
