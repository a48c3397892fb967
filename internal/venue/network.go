package venue

import "github.com/shopspring/decimal"

// PreferredNetwork maps an asset symbol to the on-chain network the
// strategy requests when withdrawing it, favoring low fees over raw speed.
var PreferredNetwork = map[string]string{
	"BTC":  "BTC",
	"ETH":  "ETH",
	"USDT": "TRC20",
	"XRP":  "XRP",
	"ADA":  "ADA",
	"SOL":  "SOL",
	"DOT":  "DOT",
	"AVAX": "AVAX-C",
}

// NetworkFor returns the preferred network for asset, falling back to the
// asset symbol itself (single-network coins) when no explicit entry exists.
func NetworkFor(asset string) string {
	if n, ok := PreferredNetwork[asset]; ok {
		return n
	}
	return asset
}

// withdrawalFees is the static fixed on-chain fee table (in units of the
// withdrawn asset), keyed by asset then network.
var withdrawalFees = map[string]map[string]decimal.Decimal{
	"BTC":  {"BTC": decimal.NewFromFloat(0.0005)},
	"ETH":  {"ETH": decimal.NewFromFloat(0.005)},
	"USDT": {"TRC20": decimal.NewFromInt(1), "ERC20": decimal.NewFromInt(10)},
	"XRP":  {"XRP": decimal.NewFromFloat(0.25)},
	"ADA":  {"ADA": decimal.NewFromInt(1)},
	"SOL":  {"SOL": decimal.NewFromFloat(0.01)},
	"DOT":  {"DOT": decimal.NewFromFloat(0.1)},
	"AVAX": {"AVAX-C": decimal.NewFromFloat(0.01)},
}

// defaultWithdrawalFee is used for assets absent from withdrawalFees.
var defaultWithdrawalFee = decimal.NewFromFloat(0.001)

// StaticWithdrawFee looks up the fixed on-chain withdrawal fee for asset on
// network from the static table, independent of any particular venue.
func StaticWithdrawFee(asset, network string) decimal.Decimal {
	byNetwork, ok := withdrawalFees[asset]
	if !ok {
		return defaultWithdrawalFee
	}
	if fee, ok := byNetwork[network]; ok {
		return fee
	}
	// Unknown network for a known asset: fall back to the cheapest entry.
	min := defaultWithdrawalFee
	first := true
	for _, fee := range byNetwork {
		if first || fee.LessThan(min) {
			min = fee
			first = false
		}
	}
	return min
}
