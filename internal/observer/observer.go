// Package observer implements an optional dashboard sink as a
// push-style interface: typed events {premium, trade, metrics, balances,
// alert} fanned out to zero or more Sinks. The core functions identically
// whether no sink is registered or every sink is absent.
package observer

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/ajitpratap0/cryptofunk/internal/alerts"
	"github.com/ajitpratap0/cryptofunk/internal/premium"
	"github.com/ajitpratap0/cryptofunk/internal/risk"
	"github.com/ajitpratap0/cryptofunk/internal/strategy"
)

// EventKind tags which of the five push-event shapes a given Event carries.
type EventKind string

const (
	KindPremium  EventKind = "premium"
	KindTrade    EventKind = "trade"
	KindMetrics  EventKind = "metrics"
	KindBalances EventKind = "balances"
	KindAlert    EventKind = "alert"
)

// BalancesEvent reports the health loop's per-venue balance reading for one
// asset, alongside the configured minimum.
type BalancesEvent struct {
	Venue          string
	Asset          string
	FreeKrw        decimal.Decimal
	MinVenueKrw    decimal.Decimal
	BelowThreshold bool
	Timestamp      time.Time
}

// Event is the single push-event envelope; exactly one of the typed fields
// matching Kind is populated.
type Event struct {
	Kind      EventKind
	Premium   *premium.Snapshot
	Trade     *strategy.Trade
	Metrics   *risk.Counters
	Balances  *BalancesEvent
	Alert     *alerts.Alert
	Timestamp time.Time
}

// Sink is the dashboard push interface. A Sink must not block the caller
// indefinitely; Publish implementations should treat Sink failures as
// non-fatal and merely log them.
type Sink interface {
	Publish(ctx context.Context, ev Event) error
}

// Bus fans a single Publish call out to every registered Sink, continuing
// past individual Sink failures so one broken dashboard integration can
// never stall the monitor loops that feed it.
type Bus struct {
	sinks []Sink
	log   zerolog.Logger
}

// NewBus constructs a Bus over zero or more Sinks.
func NewBus(log zerolog.Logger, sinks ...Sink) *Bus {
	return &Bus{sinks: sinks, log: log.With().Str("component", "observer").Logger()}
}

// Publish sends ev to every registered sink. A nil or empty Bus is a valid
// no-op receiver (call sites may hold a *Bus obtained from an optional
// field without nil-checking it first) as long as the zero value is used
// through NewBus(log) with no sinks.
func (b *Bus) Publish(ctx context.Context, ev Event) {
	if b == nil {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	for _, s := range b.sinks {
		if err := s.Publish(ctx, ev); err != nil {
			b.log.Warn().Err(err).Str("kind", string(ev.Kind)).Msg("sink publish failed")
		}
	}
}

// PremiumSnapshot is a convenience wrapper building and publishing a
// KindPremium event.
func (b *Bus) PremiumSnapshot(ctx context.Context, s *premium.Snapshot) {
	b.Publish(ctx, Event{Kind: KindPremium, Premium: s})
}

// TradeTerminal is a convenience wrapper building and publishing a
// KindTrade event for a terminal Trade.
func (b *Bus) TradeTerminal(ctx context.Context, t *strategy.Trade) {
	b.Publish(ctx, Event{Kind: KindTrade, Trade: t})
}

// RiskSnapshot is a convenience wrapper building and publishing a
// KindMetrics event from the risk manager's counters.
func (b *Bus) RiskSnapshot(ctx context.Context, c risk.Counters) {
	b.Publish(ctx, Event{Kind: KindMetrics, Metrics: &c})
}

// Balances is a convenience wrapper building and publishing a
// KindBalances event.
func (b *Bus) Balances(ctx context.Context, be BalancesEvent) {
	b.Publish(ctx, Event{Kind: KindBalances, Balances: &be})
}

// AlertRaised is a convenience wrapper building and publishing a
// KindAlert event.
func (b *Bus) AlertRaised(ctx context.Context, a alerts.Alert) {
	b.Publish(ctx, Event{Kind: KindAlert, Alert: &a})
}

// LogSink is the always-on Sink: it renders every event as a structured
// zerolog line, covering the push-event mirror of whatever is wired
// through the Bus (startup banner, per-tick premium line,
// opportunity/trade records, risk snapshots, alerts).
type LogSink struct {
	log zerolog.Logger
}

// NewLogSink constructs a LogSink.
func NewLogSink(log zerolog.Logger) *LogSink {
	return &LogSink{log: log.With().Str("component", "observer.log").Logger()}
}

func (s *LogSink) Publish(_ context.Context, ev Event) error {
	switch ev.Kind {
	case KindPremium:
		if ev.Premium == nil {
			return nil
		}
		s.log.Info().
			Str("symbol", ev.Premium.Symbol).
			Str("premium_pct", ev.Premium.PremiumPct.String()).
			Bool("fiat_stale", ev.Premium.FiatStale).
			Msg("premium tick")
	case KindTrade:
		if ev.Trade == nil {
			return nil
		}
		s.log.Info().
			Str("trade_id", ev.Trade.ID).
			Str("symbol", ev.Trade.Opportunity.Symbol).
			Str("outcome", string(ev.Trade.Outcome)).
			Str("realized_profit_krw", ev.Trade.RealizedProfitKrw.String()).
			Msg("trade terminal")
	case KindMetrics:
		if ev.Metrics == nil {
			return nil
		}
		s.log.Info().
			Str("volume_krw", ev.Metrics.VolumeKrw.String()).
			Str("exposure_krw", ev.Metrics.ExposureKrw.String()).
			Int("trade_count", ev.Metrics.TradeCount).
			Int("success_count", ev.Metrics.SuccessCount).
			Int("fail_count", ev.Metrics.FailCount).
			Msg("risk snapshot")
	case KindBalances:
		if ev.Balances == nil {
			return nil
		}
		l := s.log.Info().
			Str("venue", ev.Balances.Venue).
			Str("asset", ev.Balances.Asset).
			Str("free_krw", ev.Balances.FreeKrw.String())
		if ev.Balances.BelowThreshold {
			l = s.log.Warn().
				Str("venue", ev.Balances.Venue).
				Str("asset", ev.Balances.Asset).
				Str("free_krw", ev.Balances.FreeKrw.String())
		}
		l.Msg("venue balance")
	case KindAlert:
		if ev.Alert == nil {
			return nil
		}
		s.log.Warn().
			Str("severity", string(ev.Alert.Severity)).
			Str("title", ev.Alert.Title).
			Msg(ev.Alert.Message)
	}
	return nil
}

var _ Sink = (*LogSink)(nil)

// TelegramSink adapts an *alerts.Manager (which already knows how to
// reach the configured Telegram chats) into a Sink, but only forwards
// KindAlert events: premium ticks and risk snapshots are far too
// high-frequency for a chat channel.
type TelegramSink struct {
	alerts *alerts.Manager
}

// NewTelegramSink constructs a TelegramSink over an existing alert manager.
func NewTelegramSink(mgr *alerts.Manager) *TelegramSink {
	return &TelegramSink{alerts: mgr}
}

func (s *TelegramSink) Publish(ctx context.Context, ev Event) error {
	if ev.Kind != KindAlert || ev.Alert == nil || s.alerts == nil {
		return nil
	}
	return s.alerts.Send(ctx, *ev.Alert)
}

var _ Sink = (*TelegramSink)(nil)
