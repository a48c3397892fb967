package venue

import (
	"bytes"
	"context"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"

	"github.com/ajitpratap0/cryptofunk/internal/exchange"
	"github.com/ajitpratap0/cryptofunk/internal/venueerr"
)

// ExkLive is the EX-K (KRW-quoted) live VenueClient adapter: JWT bearer
// auth with an access_key/nonce payload, a SHA-512 query hash attached for
// requests that carry query parameters, and REST endpoints under /v1/*.
type ExkLive struct {
	baseURL    string
	accessKey  string
	secretKey  string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	retry      exchange.RetryConfig
}

// NewExkLive constructs a live EX-K client.
func NewExkLive(accessKey, secretKey string) *ExkLive {
	return &ExkLive{
		baseURL:    "https://api.exk.example",
		accessKey:  accessKey,
		secretKey:  secretKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		breaker:    newBreaker("exk"),
		retry:      exchange.DefaultRetryConfig(),
	}
}

func (e *ExkLive) Name() string          { return "exk" }
func (e *ExkLive) QuoteCurrency() string { return "KRW" }

func (e *ExkLive) token(params url.Values) (string, error) {
	claims := jwt.MapClaims{
		"access_key": e.accessKey,
		"nonce":      uuid.NewString(),
	}
	if len(params) > 0 {
		h := sha512.New()
		h.Write([]byte(params.Encode()))
		claims["query_hash"] = hex.EncodeToString(h.Sum(nil))
		claims["query_hash_alg"] = "SHA512"
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString([]byte(e.secretKey))
}

func (e *ExkLive) doRequest(ctx context.Context, op, method, path string, params url.Values, body interface{}, out interface{}) error {
	call := func() error {
		u := e.baseURL + path
		if method == http.MethodGet && len(params) > 0 {
			u += "?" + params.Encode()
		}

		var reader io.Reader
		if body != nil {
			data, err := json.Marshal(body)
			if err != nil {
				return err
			}
			reader = bytes.NewReader(data)
		}

		req, err := http.NewRequestWithContext(ctx, method, u, reader)
		if err != nil {
			return err
		}
		tok, err := e.token(params)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+tok)
		req.Header.Set("Content-Type", "application/json")

		resp, err := e.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}

		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return venueerr.New(venueerr.VenueAuth, op, "authentication rejected: "+string(data))
		}
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("transient upstream error (%d): %s", resp.StatusCode, string(data))
		}
		if resp.StatusCode >= 400 {
			return venueerr.New(venueerr.VenuePermanent, op, fmt.Sprintf("request rejected (%d): %s", resp.StatusCode, string(data)))
		}

		if out != nil {
			return json.Unmarshal(data, out)
		}
		return nil
	}

	_, err := e.breaker.Execute(func() (interface{}, error) {
		return nil, exchange.WithRetry(ctx, e.retry, exchange.RetryableOperation(call))
	})
	if err == nil {
		return nil
	}
	var verr *venueerr.Error
	if errorsAs(err, &verr) {
		return err
	}
	if exchange.IsRetryable(err) {
		return venueerr.Wrap(venueerr.VenueTransient, op, "transient EX-K failure", err)
	}
	return venueerr.Wrap(venueerr.VenuePermanent, op, "EX-K call failed", err)
}

// errorsAs walks the Unwrap chain by hand looking for a *venueerr.Error, so
// this file needs no "errors" import.
func errorsAs(err error, target **venueerr.Error) bool {
	for err != nil {
		if e, ok := err.(*venueerr.Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

type tickerResp struct {
	TradePrice float64 `json:"trade_price"`
}

func (e *ExkLive) Ticker(ctx context.Context, symbol string) (decimal.Decimal, error) {
	var out []tickerResp
	params := url.Values{"markets": {"KRW-" + symbol}}
	if err := e.doRequest(ctx, "exk.Ticker", http.MethodGet, "/v1/ticker", params, nil, &out); err != nil {
		return decimal.Zero, err
	}
	if len(out) == 0 {
		return decimal.Zero, venueerr.New(venueerr.VenuePermanent, "exk.Ticker", "no price for "+symbol)
	}
	return decimal.NewFromFloat(out[0].TradePrice), nil
}

type orderbookResp struct {
	OrderbookUnits []struct {
		AskPrice float64 `json:"ask_price"`
		BidPrice float64 `json:"bid_price"`
		AskSize  float64 `json:"ask_size"`
		BidSize  float64 `json:"bid_size"`
	} `json:"orderbook_units"`
}

func (e *ExkLive) OrderBook(ctx context.Context, symbol string, depth int) (*Book, error) {
	var out []orderbookResp
	params := url.Values{"markets": {"KRW-" + symbol}}
	if err := e.doRequest(ctx, "exk.OrderBook", http.MethodGet, "/v1/orderbook", params, nil, &out); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, venueerr.New(venueerr.VenuePermanent, "exk.OrderBook", "no book for "+symbol)
	}
	book := &Book{Symbol: symbol, Timestamp: time.Now()}
	for i, u := range out[0].OrderbookUnits {
		if depth > 0 && i >= depth {
			break
		}
		book.Bids = append(book.Bids, Level{Price: decimal.NewFromFloat(u.BidPrice), Quantity: decimal.NewFromFloat(u.BidSize)})
		book.Asks = append(book.Asks, Level{Price: decimal.NewFromFloat(u.AskPrice), Quantity: decimal.NewFromFloat(u.AskSize)})
	}
	return book, nil
}

type accountResp struct {
	Currency string `json:"currency"`
	Balance  string `json:"balance"`
	Locked   string `json:"locked"`
}

func (e *ExkLive) Balance(ctx context.Context, asset string) (Balance, error) {
	var out []accountResp
	if err := e.doRequest(ctx, "exk.Balance", http.MethodGet, "/v1/accounts", nil, nil, &out); err != nil {
		return Balance{}, err
	}
	bal := Balance{Asset: asset}
	for _, a := range out {
		if a.Currency != asset {
			continue
		}
		free, _ := decimal.NewFromString(a.Balance)
		locked, _ := decimal.NewFromString(a.Locked)
		bal.Free, bal.Locked = free, locked
		bal.Total = free.Add(locked)
	}
	return bal, nil
}

type orderResp struct {
	UUID            string `json:"uuid"`
	ExecutedVolume  string `json:"executed_volume"`
	ExecutedFunds   string `json:"executed_funds"`
	PaidFee         string `json:"paid_fee"`
}

func (e *ExkLive) MarketBuy(ctx context.Context, symbol string, quoteAmount, baseQuantity *decimal.Decimal) (ExecutedOrder, error) {
	body := map[string]string{
		"market": "KRW-" + symbol,
		"side":   "bid",
		"ord_type": "price",
	}
	if quoteAmount != nil {
		body["price"] = quoteAmount.String()
	} else if baseQuantity != nil {
		body["ord_type"] = "market"
		body["volume"] = baseQuantity.String()
	} else {
		return ExecutedOrder{}, venueerr.New(venueerr.VenuePermanent, "exk.MarketBuy", "neither quoteAmount nor baseQuantity set")
	}
	return e.placeOrder(ctx, "exk.MarketBuy", body)
}

func (e *ExkLive) MarketSell(ctx context.Context, symbol string, baseQuantity decimal.Decimal) (ExecutedOrder, error) {
	body := map[string]string{
		"market":   "KRW-" + symbol,
		"side":     "ask",
		"ord_type": "market",
		"volume":   baseQuantity.String(),
	}
	return e.placeOrder(ctx, "exk.MarketSell", body)
}

func (e *ExkLive) placeOrder(ctx context.Context, op string, body map[string]string) (ExecutedOrder, error) {
	var out orderResp
	params := url.Values{}
	for k, v := range body {
		params.Set(k, v)
	}
	if err := e.doRequest(ctx, op, http.MethodPost, "/v1/orders", params, body, &out); err != nil {
		return ExecutedOrder{}, err
	}
	qty, _ := decimal.NewFromString(out.ExecutedVolume)
	quote, _ := decimal.NewFromString(out.ExecutedFunds)
	fee, _ := decimal.NewFromString(out.PaidFee)
	return ExecutedOrder{OrderID: out.UUID, ExecutedQty: qty, ExecutedQuote: quote, Fee: fee, FeeAsset: "KRW"}, nil
}

type depositAddressResp struct {
	DepositAddress string `json:"deposit_address"`
	SecondaryAddress string `json:"secondary_address"`
}

func (e *ExkLive) DepositAddress(ctx context.Context, asset, network string) (string, string, error) {
	var out depositAddressResp
	params := url.Values{"currency": {asset}, "net_type": {network}}
	if err := e.doRequest(ctx, "exk.DepositAddress", http.MethodGet, "/v1/deposits/coin_address", params, nil, &out); err != nil {
		return "", "", err
	}
	return out.DepositAddress, out.SecondaryAddress, nil
}

type withdrawResp struct {
	UUID string `json:"uuid"`
}

func (e *ExkLive) Withdraw(ctx context.Context, asset, address string, amount decimal.Decimal, network, tag string) (string, error) {
	body := map[string]string{
		"currency": asset,
		"amount":   amount.String(),
		"address":  address,
		"net_type": network,
	}
	if tag != "" {
		body["secondary_address"] = tag
	}
	params := url.Values{}
	for k, v := range body {
		params.Set(k, v)
	}
	var out withdrawResp
	if err := e.doRequest(ctx, "exk.Withdraw", http.MethodPost, "/v1/withdraws/coin", params, body, &out); err != nil {
		return "", err
	}
	return out.UUID, nil
}

type depositHistoryResp struct {
	Amount    string `json:"amount"`
	State     string `json:"state"`
	TxID      string `json:"txid"`
	DoneAt    string `json:"done_at"`
}

func (e *ExkLive) DepositHistory(ctx context.Context, asset string, since *time.Time) ([]DepositEntry, error) {
	var out []depositHistoryResp
	params := url.Values{"currency": {asset}}
	if err := e.doRequest(ctx, "exk.DepositHistory", http.MethodGet, "/v1/deposits", params, nil, &out); err != nil {
		return nil, err
	}
	var entries []DepositEntry
	for _, d := range out {
		amt, _ := decimal.NewFromString(d.Amount)
		state := DepositPending
		switch strings.ToLower(d.State) {
		case "accepted", "done":
			state = DepositConfirmed
		case "rejected", "canceled":
			state = DepositFailed
		}
		entry := DepositEntry{Amount: amt, State: state, TxID: d.TxID}
		if t, err := time.Parse(time.RFC3339, d.DoneAt); err == nil {
			entry.CompletedAt = &t
		}
		if since != nil && entry.CompletedAt != nil && !entry.CompletedAt.After(*since) {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

type marketResp struct {
	Market string `json:"market"`
}

func (e *ExkLive) ListMarkets(ctx context.Context, quote string) ([]string, error) {
	var out []marketResp
	if err := e.doRequest(ctx, "exk.ListMarkets", http.MethodGet, "/v1/market/all", nil, nil, &out); err != nil {
		return nil, err
	}
	prefix := quote + "-"
	var symbols []string
	for _, m := range out {
		if strings.HasPrefix(m.Market, prefix) {
			symbols = append(symbols, strings.TrimPrefix(m.Market, prefix))
		}
	}
	return symbols, nil
}

func (e *ExkLive) VerifyAccess(ctx context.Context) (bool, string) {
	var out []accountResp
	if err := e.doRequest(ctx, "exk.VerifyAccess", http.MethodGet, "/v1/accounts", nil, nil, &out); err != nil {
		return false, err.Error()
	}
	return true, "ok"
}

func (e *ExkLive) Quantize(symbol string, qty decimal.Decimal) (decimal.Decimal, error) {
	return quantizeDefault("exk", symbol, qty)
}

func (e *ExkLive) WithdrawFee(asset, network string) decimal.Decimal {
	return StaticWithdrawFee(asset, network)
}

var _ Client = (*ExkLive)(nil)
