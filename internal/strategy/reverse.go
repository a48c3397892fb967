package strategy

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/ajitpratap0/cryptofunk/internal/venue"
	"github.com/ajitpratap0/cryptofunk/internal/venueerr"
)

// reverseTable is the reverse (KRW-side overvalued) transition table,
// mirroring forwardTable: buy coin on EX-U with USDT, move it to EX-K,
// sell for KRW, buy USDT back on EX-K, bring USDT home to EX-U.
func reverseTable() map[State]tableEntry {
	return map[State]tableEntry{
		StateStart:             {fn: revStart, policy: policyAbort},
		StateBuyingUsdtSide:    {fn: revBuyingUsdtSide, policy: policyAbort},
		StateXferCoinHome:      {fn: revXferCoinHome, policy: policyRecovery},
		StateAwaitXferCoinHome: {fn: revAwaitXferCoinHome, policy: policyRecovery},
		StateSellingKrwSide:    {fn: revSellingKrwSide, policy: policyRecovery},
		StateBuyingUsdtHome:    {fn: revBuyingUsdtHome, policy: policyRecovery},
		StateXferUsdtOut:       {fn: revXferUsdtOut, policy: policyRecovery},
		StateAwaitXferUsdtOut:  {fn: revAwaitXferUsdtOut, policy: policyRecovery},
	}
}

// requiredUsdt is the reverse pre-flight sizing check: sizedAmountKrw /
// fiatRate * 1.01 (1% buffer).
func requiredUsdt(sizedAmountKrw, fiatRate decimal.Decimal) decimal.Decimal {
	if fiatRate.IsZero() {
		return decimal.Zero
	}
	return sizedAmountKrw.Div(fiatRate).Mul(decimal.NewFromFloat(1.01))
}

func revStart(ctx context.Context, d *Driver, t *Trade) (State, string, error) {
	bal, err := d.Exu.Balance(ctx, "USDT")
	if err != nil {
		return "", "checking EX-U USDT balance", err
	}
	needed := requiredUsdt(t.Opportunity.SizedAmountKrw, t.fiatRateAtStart)
	if bal.Free.LessThan(needed) {
		return "", "EX-U USDT balance insufficient", venueerr.New(venueerr.VenuePermanent, "exu.Balance", "insufficient USDT balance for sized trade")
	}
	t.initialKrw = t.Opportunity.SizedAmountKrw
	return StateBuyingUsdtSide, fmt.Sprintf("verified USDT balance %s (needed %s)", bal.Free.String(), needed.String()), nil
}

func revBuyingUsdtSide(ctx context.Context, d *Driver, t *Trade) (State, string, error) {
	asset := t.Opportunity.Symbol
	quoteAmount := requiredUsdt(t.Opportunity.SizedAmountKrw, t.fiatRateAtStart)
	exec, err := d.Exu.MarketBuy(ctx, symbolUsdt(asset), &quoteAmount, nil)
	if err != nil {
		return "", "buying " + asset + " on EX-U", err
	}
	if err := checkFill("exu.MarketBuy", quoteAmount, exec.ExecutedQuote); err != nil {
		return "", "partial fill buying " + asset + " on EX-U", err
	}
	t.coinAcquired = exec.ExecutedQty
	return StateXferCoinHome, fmt.Sprintf("bought %s %s for %s USDT", exec.ExecutedQty.String(), asset, exec.ExecutedQuote.String()), nil
}

func revXferCoinHome(ctx context.Context, d *Driver, t *Trade) (State, string, error) {
	asset := t.Opportunity.Symbol
	network := venue.NetworkFor(asset)

	addr, tag, err := d.Exk.DepositAddress(ctx, asset, network)
	if err != nil {
		return "", "fetching EX-K deposit address for " + asset, err
	}

	baseline, err := d.Exk.Balance(ctx, asset)
	if err != nil {
		return "", "snapshotting EX-K balance before transfer", err
	}

	bal, err := d.Exu.Balance(ctx, asset)
	if err != nil {
		return "", "reading EX-U coin balance to withdraw", err
	}

	id, transferable, err := d.withdrawLessDust(ctx, d.Exu, asset, network, addr, tag, bal.Free)
	if err != nil {
		return "", "withdrawing " + asset + " from EX-U", err
	}

	t.xferBaseline = baseline.Free
	t.xferExpected = transferable
	return StateAwaitXferCoinHome, fmt.Sprintf("withdrew %s %s from EX-U (id=%s)", transferable.String(), asset, id), nil
}

func revAwaitXferCoinHome(ctx context.Context, d *Driver, t *Trade) (State, string, error) {
	asset := t.Opportunity.Symbol
	if err := d.awaitDeposit(ctx, d.Exk, asset, t.xferBaseline, t.xferExpected); err != nil {
		return "", "awaiting " + asset + " deposit on EX-K", err
	}
	return StateSellingKrwSide, "confirmed " + asset + " deposit on EX-K", nil
}

func revSellingKrwSide(ctx context.Context, d *Driver, t *Trade) (State, string, error) {
	asset := t.Opportunity.Symbol
	bal, err := d.Exk.Balance(ctx, asset)
	if err != nil {
		return "", "reading EX-K coin balance to sell", err
	}
	qty, err := d.Exk.Quantize(symbolKrw(asset), bal.Free)
	if err != nil {
		return "", "quantizing sell quantity on EX-K", err
	}
	exec, err := d.Exk.MarketSell(ctx, symbolKrw(asset), qty)
	if err != nil {
		return "", "selling " + asset + " on EX-K", err
	}
	if err := checkFill("exk.MarketSell", bal.Free, exec.ExecutedQty); err != nil {
		return "", "partial fill selling " + asset + " on EX-K", err
	}
	t.usdtAcquired = exec.ExecutedQuote // KRW proceeds, reused field name for "home-leg proceeds"
	return StateBuyingUsdtHome, fmt.Sprintf("sold %s %s for %s KRW", exec.ExecutedQty.String(), asset, exec.ExecutedQuote.String()), nil
}

func revBuyingUsdtHome(ctx context.Context, d *Driver, t *Trade) (State, string, error) {
	bal, err := d.Exk.Balance(ctx, "KRW")
	if err != nil {
		return "", "reading EX-K KRW balance to buy USDT", err
	}
	exec, err := d.Exk.MarketBuy(ctx, symbolKrw("USDT"), &bal.Free, nil)
	if err != nil {
		return "", "buying USDT on EX-K", err
	}
	if err := checkFill("exk.MarketBuy", bal.Free, exec.ExecutedQuote); err != nil {
		return "", "partial fill buying USDT on EX-K", err
	}
	return StateXferUsdtOut, fmt.Sprintf("bought %s USDT for %s KRW", exec.ExecutedQty.String(), exec.ExecutedQuote.String()), nil
}

func revXferUsdtOut(ctx context.Context, d *Driver, t *Trade) (State, string, error) {
	network := venue.NetworkFor("USDT")

	addr, tag, err := d.Exu.DepositAddress(ctx, "USDT", network)
	if err != nil {
		return "", "fetching EX-U deposit address for USDT", err
	}

	baseline, err := d.Exu.Balance(ctx, "USDT")
	if err != nil {
		return "", "snapshotting EX-U USDT balance before transfer", err
	}

	bal, err := d.Exk.Balance(ctx, "USDT")
	if err != nil {
		return "", "reading EX-K USDT balance to withdraw", err
	}

	id, transferable, err := d.withdrawLessDust(ctx, d.Exk, "USDT", network, addr, tag, bal.Free)
	if err != nil {
		return "", "withdrawing USDT from EX-K", err
	}

	t.xferBaseline = baseline.Free
	t.xferExpected = transferable
	return StateAwaitXferUsdtOut, fmt.Sprintf("withdrew %s USDT from EX-K (id=%s)", transferable.String(), id), nil
}

func revAwaitXferUsdtOut(ctx context.Context, d *Driver, t *Trade) (State, string, error) {
	if err := d.awaitDeposit(ctx, d.Exu, "USDT", t.xferBaseline, t.xferExpected); err != nil {
		return "", "awaiting USDT deposit on EX-U", err
	}

	bal, err := d.Exu.Balance(ctx, "USDT")
	if err != nil {
		return "", "reading final EX-U USDT balance", err
	}
	t.finalKrw = bal.Free.Mul(t.fiatRateAtStart)
	t.RealizedProfitKrw = t.finalKrw.Sub(t.initialKrw)
	return StateComplete, fmt.Sprintf("confirmed USDT deposit on EX-U, realized profit %s KRW", t.RealizedProfitKrw.String()), nil
}
