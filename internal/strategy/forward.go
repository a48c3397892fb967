package strategy

import (
	"context"
	"fmt"

	"github.com/ajitpratap0/cryptofunk/internal/venue"
	"github.com/ajitpratap0/cryptofunk/internal/venueerr"
)

// forwardTable is the forward (KRW-side undervalued) transition table:
// buy coin on EX-K, move it to EX-U, sell for USDT, bring USDT home,
// convert to KRW.
func forwardTable() map[State]tableEntry {
	return map[State]tableEntry{
		StateStart:           {fn: fwdStart, policy: policyAbort},
		StateBuyingKrw:       {fn: fwdBuyingKrw, policy: policyAbort},
		StateXferOut:         {fn: fwdXferOut, policy: policyRecovery},
		StateAwaitXferOut:    {fn: fwdAwaitXferOut, policy: policyRecovery},
		StateSellingUsdtSide: {fn: fwdSellingUsdtSide, policy: policyRecovery},
		StateXferHome:        {fn: fwdXferHome, policy: policyRecovery},
		StateAwaitXferHome:   {fn: fwdAwaitXferHome, policy: policyRecovery},
		StateConvertingHome:  {fn: fwdConvertingHome, policy: policyRecovery},
	}
}

func symbolKrw(asset string) string { return asset + "KRW" }
func symbolUsdt(asset string) string { return asset + "USDT" }

func fwdStart(ctx context.Context, d *Driver, t *Trade) (State, string, error) {
	bal, err := d.Exk.Balance(ctx, "KRW")
	if err != nil {
		return "", "checking EX-K KRW balance", err
	}
	if bal.Free.LessThan(t.Opportunity.SizedAmountKrw) {
		return "", "EX-K KRW balance insufficient", venueerr.New(venueerr.VenuePermanent, "exk.Balance", "insufficient KRW balance for sized trade")
	}
	t.initialKrw = t.Opportunity.SizedAmountKrw
	return StateBuyingKrw, fmt.Sprintf("verified KRW balance %s", bal.Free.String()), nil
}

func fwdBuyingKrw(ctx context.Context, d *Driver, t *Trade) (State, string, error) {
	asset := t.Opportunity.Symbol
	quoteAmount := t.Opportunity.SizedAmountKrw
	exec, err := d.Exk.MarketBuy(ctx, symbolKrw(asset), &quoteAmount, nil)
	if err != nil {
		return "", "buying " + asset + " on EX-K", err
	}
	if err := checkFill("exk.MarketBuy", quoteAmount, exec.ExecutedQuote); err != nil {
		return "", "partial fill buying " + asset, err
	}
	t.coinAcquired = exec.ExecutedQty
	return StateXferOut, fmt.Sprintf("bought %s %s for %s KRW", exec.ExecutedQty.String(), asset, exec.ExecutedQuote.String()), nil
}

func fwdXferOut(ctx context.Context, d *Driver, t *Trade) (State, string, error) {
	asset := t.Opportunity.Symbol
	network := venue.NetworkFor(asset)

	addr, tag, err := d.Exu.DepositAddress(ctx, asset, network)
	if err != nil {
		return "", "fetching EX-U deposit address for " + asset, err
	}

	baseline, err := d.Exu.Balance(ctx, asset)
	if err != nil {
		return "", "snapshotting EX-U balance before transfer", err
	}

	bal, err := d.Exk.Balance(ctx, asset)
	if err != nil {
		return "", "reading EX-K coin balance to withdraw", err
	}

	id, transferable, err := d.withdrawLessDust(ctx, d.Exk, asset, network, addr, tag, bal.Free)
	if err != nil {
		return "", "withdrawing " + asset + " from EX-K", err
	}

	t.xferBaseline = baseline.Free
	t.xferExpected = transferable
	return StateAwaitXferOut, fmt.Sprintf("withdrew %s %s from EX-K (id=%s)", transferable.String(), asset, id), nil
}

func fwdAwaitXferOut(ctx context.Context, d *Driver, t *Trade) (State, string, error) {
	asset := t.Opportunity.Symbol
	if err := d.awaitDeposit(ctx, d.Exu, asset, t.xferBaseline, t.xferExpected); err != nil {
		return "", "awaiting " + asset + " deposit on EX-U", err
	}
	return StateSellingUsdtSide, "confirmed " + asset + " deposit on EX-U", nil
}

func fwdSellingUsdtSide(ctx context.Context, d *Driver, t *Trade) (State, string, error) {
	asset := t.Opportunity.Symbol
	bal, err := d.Exu.Balance(ctx, asset)
	if err != nil {
		return "", "reading EX-U coin balance to sell", err
	}
	qty, err := d.Exu.Quantize(symbolUsdt(asset), bal.Free)
	if err != nil {
		return "", "quantizing sell quantity on EX-U", err
	}
	exec, err := d.Exu.MarketSell(ctx, symbolUsdt(asset), qty)
	if err != nil {
		return "", "selling " + asset + " on EX-U", err
	}
	if err := checkFill("exu.MarketSell", bal.Free, exec.ExecutedQty); err != nil {
		return "", "partial fill selling " + asset + " on EX-U", err
	}
	t.usdtAcquired = exec.ExecutedQuote
	return StateXferHome, fmt.Sprintf("sold %s %s for %s USDT", exec.ExecutedQty.String(), asset, exec.ExecutedQuote.String()), nil
}

func fwdXferHome(ctx context.Context, d *Driver, t *Trade) (State, string, error) {
	network := venue.NetworkFor("USDT")

	addr, tag, err := d.Exk.DepositAddress(ctx, "USDT", network)
	if err != nil {
		return "", "fetching EX-K deposit address for USDT", err
	}

	baseline, err := d.Exk.Balance(ctx, "USDT")
	if err != nil {
		return "", "snapshotting EX-K USDT balance before transfer", err
	}

	bal, err := d.Exu.Balance(ctx, "USDT")
	if err != nil {
		return "", "reading EX-U USDT balance to withdraw", err
	}

	id, transferable, err := d.withdrawLessDust(ctx, d.Exu, "USDT", network, addr, tag, bal.Free)
	if err != nil {
		return "", "withdrawing USDT from EX-U", err
	}

	t.xferBaseline = baseline.Free
	t.xferExpected = transferable
	return StateAwaitXferHome, fmt.Sprintf("withdrew %s USDT from EX-U (id=%s)", transferable.String(), id), nil
}

func fwdAwaitXferHome(ctx context.Context, d *Driver, t *Trade) (State, string, error) {
	if err := d.awaitDeposit(ctx, d.Exk, "USDT", t.xferBaseline, t.xferExpected); err != nil {
		return "", "awaiting USDT deposit on EX-K", err
	}
	return StateConvertingHome, "confirmed USDT deposit on EX-K", nil
}

func fwdConvertingHome(ctx context.Context, d *Driver, t *Trade) (State, string, error) {
	bal, err := d.Exk.Balance(ctx, "USDT")
	if err != nil {
		return "", "reading EX-K USDT balance to convert", err
	}
	qty, err := d.Exk.Quantize(symbolKrw("USDT"), bal.Free)
	if err != nil {
		return "", "quantizing USDT conversion quantity on EX-K", err
	}
	exec, err := d.Exk.MarketSell(ctx, symbolKrw("USDT"), qty)
	if err != nil {
		return "", "converting USDT to KRW on EX-K", err
	}
	if err := checkFill("exk.MarketSell", bal.Free, exec.ExecutedQty); err != nil {
		return "", "partial fill converting USDT to KRW", err
	}
	t.finalKrw = exec.ExecutedQuote
	t.RealizedProfitKrw = t.finalKrw.Sub(t.initialKrw)
	return StateComplete, fmt.Sprintf("converted USDT to %s KRW, realized profit %s KRW", t.finalKrw.String(), t.RealizedProfitKrw.String()), nil
}
