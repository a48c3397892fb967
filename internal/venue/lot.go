package venue

import (
	"github.com/shopspring/decimal"

	"github.com/ajitpratap0/cryptofunk/internal/venueerr"
)

// defaultLotStep and defaultMinQty are used by live adapters when a symbol
// has no venue-published lot filter available. Real deployments should
// source these per-symbol from each venue's exchange-info/market endpoint;
// the quantization discipline (snap-then-reject-below-minimum) matters,
// not the concrete grid.
var (
	defaultLotStep = decimal.NewFromFloat(0.00000001)
	defaultMinQty  = decimal.NewFromFloat(0.0001)
)

// quantizeDefault snaps qty down to defaultLotStep and rejects the result if
// it falls below defaultMinQty, returning a venueerr.VenuePermanent error
// so callers can distinguish it from a transient failure.
func quantizeDefault(venueName, symbol string, qty decimal.Decimal) (decimal.Decimal, error) {
	if qty.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, venueerr.New(venueerr.VenuePermanent, venueName+".Quantize", "quantity below minimum")
	}
	snapped := qty.Div(defaultLotStep).Floor().Mul(defaultLotStep)
	if snapped.LessThan(defaultMinQty) {
		return decimal.Zero, venueerr.New(venueerr.VenuePermanent, venueName+".Quantize", "quantity below venue minimum lot size")
	}
	return snapped, nil
}
