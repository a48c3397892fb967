package fiatrate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

const (
	coinGeckoAPIBase  = "https://api.coingecko.com/api/v3"
	coinGeckoTimeout  = 10 * time.Second
	coinGeckoTetherID = "tether" // USDT, used as a USD proxy: any stable USD-pegged source qualifies
)

// CoinGeckoProvider is a Provider backed by CoinGecko's public simple/price
// endpoint, reading USDT's KRW price as a USD->KRW proxy. Chart and
// coin-metadata endpoints are intentionally not wrapped here since nothing
// in this system needs historical price data.
type CoinGeckoProvider struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewCoinGeckoProvider builds a Provider. apiKey may be empty for the free tier.
func NewCoinGeckoProvider(apiKey string) *CoinGeckoProvider {
	return &CoinGeckoProvider{
		baseURL:    coinGeckoAPIBase,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: coinGeckoTimeout},
	}
}

func (c *CoinGeckoProvider) Name() string { return "coingecko" }

// FetchUSDKRW fetches tether's KRW price and reports it as the USD->KRW rate.
func (c *CoinGeckoProvider) FetchUSDKRW(ctx context.Context) (decimal.Decimal, error) {
	params := url.Values{}
	params.Add("ids", coinGeckoTetherID)
	params.Add("vs_currencies", "krw")
	if c.apiKey != "" {
		params.Add("x_cg_pro_api_key", c.apiKey)
	}

	reqURL := fmt.Sprintf("%s/simple/price?%s", c.baseURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("building coingecko request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("coingecko request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return decimal.Zero, fmt.Errorf("coingecko returned status %d: %s", resp.StatusCode, string(body))
	}

	var result map[string]map[string]float64
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return decimal.Zero, fmt.Errorf("decoding coingecko response: %w", err)
	}

	krw, ok := result[coinGeckoTetherID]["krw"]
	if !ok {
		return decimal.Zero, fmt.Errorf("krw price missing from coingecko response")
	}

	log.Debug().Float64("usdkrw", krw).Msg("fetched USD/KRW rate from coingecko")
	return decimal.NewFromFloat(krw), nil
}
