package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Bounded cardinality constants for metric labels.
// These ensure metrics don't have unbounded label values which can cause memory issues.
const (
	// Circuit breaker reasons (bounded set)
	ReasonMaxDrawdown    = "max_drawdown"
	ReasonHighVolatility = "high_volatility"
	ReasonRateLimit      = "rate_limit"
	ReasonManualHalt     = "manual_halt"
	ReasonOther          = "other"

	// Strategy validation failure reasons (bounded set)
	ValidationReasonSchemaInvalid   = "schema_invalid"
	ValidationReasonFieldMissing    = "field_missing"
	ValidationReasonValueOutOfRange = "value_out_of_range"
	ValidationReasonIncompatible    = "incompatible"
	ValidationReasonOther           = "other"

	// Exchange API error categories (bounded set)
	ExchangeErrorTimeout     = "timeout"
	ExchangeErrorRateLimit   = "rate_limit"
	ExchangeErrorAuth        = "authentication"
	ExchangeErrorNetwork     = "network"
	ExchangeErrorInvalidReq  = "invalid_request"
	ExchangeErrorServerError = "server_error"
	ExchangeErrorOther       = "other"
)

// NormalizeCircuitBreakerReason maps arbitrary reasons to bounded set
func NormalizeCircuitBreakerReason(reason string) string {
	lower := strings.ToLower(reason)
	switch {
	case strings.Contains(lower, "drawdown"):
		return ReasonMaxDrawdown
	case strings.Contains(lower, "volatility"):
		return ReasonHighVolatility
	case strings.Contains(lower, "rate") || strings.Contains(lower, "limit"):
		return ReasonRateLimit
	case strings.Contains(lower, "manual") || strings.Contains(lower, "halt"):
		return ReasonManualHalt
	default:
		return ReasonOther
	}
}

// NormalizeValidationReason maps arbitrary validation failures to bounded set
func NormalizeValidationReason(reason string) string {
	lower := strings.ToLower(reason)
	switch {
	case strings.Contains(lower, "schema") || strings.Contains(lower, "version"):
		return ValidationReasonSchemaInvalid
	case strings.Contains(lower, "missing") || strings.Contains(lower, "required"):
		return ValidationReasonFieldMissing
	case strings.Contains(lower, "range") || strings.Contains(lower, "value") || strings.Contains(lower, "invalid"):
		return ValidationReasonValueOutOfRange
	case strings.Contains(lower, "compatible") || strings.Contains(lower, "migration"):
		return ValidationReasonIncompatible
	default:
		return ValidationReasonOther
	}
}

// NormalizeExchangeError maps arbitrary error messages to bounded set
func NormalizeExchangeError(err error) string {
	if err == nil {
		return ""
	}
	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline"):
		return ExchangeErrorTimeout
	case strings.Contains(errStr, "rate") || strings.Contains(errStr, "429"):
		return ExchangeErrorRateLimit
	case strings.Contains(errStr, "auth") || strings.Contains(errStr, "401") || strings.Contains(errStr, "403"):
		return ExchangeErrorAuth
	case strings.Contains(errStr, "network") || strings.Contains(errStr, "connection"):
		return ExchangeErrorNetwork
	case strings.Contains(errStr, "400") || strings.Contains(errStr, "invalid"):
		return ExchangeErrorInvalidReq
	case strings.Contains(errStr, "500") || strings.Contains(errStr, "502") || strings.Contains(errStr, "503"):
		return ExchangeErrorServerError
	default:
		return ExchangeErrorOther
	}
}

// Arbitrage Performance Metrics
var (
	// Total realized P&L across all completed cycles
	TotalPnL = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cryptofunk_total_pnl",
		Help: "Total realized profit and loss in KRW",
	})

	// Win rate (0.0 to 1.0)
	WinRate = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cryptofunk_win_rate",
		Help: "Win rate as a ratio (0.0 to 1.0)",
	})

	// Total cycles driven to a terminal state
	TotalTrades = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cryptofunk_total_trades",
		Help: "Total number of arbitrage cycles executed",
	})

	// Winning cycles value
	WinningTradesValue = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cryptofunk_winning_trades_value",
		Help: "Total value of winning cycles in KRW",
	})

	// Losing cycles value
	LosingTradesValue = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cryptofunk_losing_trades_value",
		Help: "Total value (absolute) of losing cycles in KRW",
	})

	// Premium percentage by symbol, as last observed by the premium loop
	PremiumPctBySymbol = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "cryptofunk_premium_pct",
		Help: "Last observed coin premium percentage by symbol",
	}, []string{"symbol"})

	// Tether premium percentage
	TetherPremiumPct = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cryptofunk_tether_premium_pct",
		Help: "Last observed USDT/KRW tether premium percentage",
	})

	// Risk manager exposure and volume gauges
	RiskExposureKrw = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cryptofunk_risk_exposure_krw",
		Help: "Currently committed exposure across in-flight cycles, in KRW",
	})

	RiskDailyVolumeKrw = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cryptofunk_risk_daily_volume_krw",
		Help: "Cumulative traded volume for the current local day, in KRW",
	})

	EmergencyStopActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cryptofunk_emergency_stop_active",
		Help: "1 when the risk manager's emergency stop is tripped, else 0",
	})
)

// System Health Metrics
var (
	// Database connections
	DatabaseConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cryptofunk_database_connections_active",
		Help: "Number of active database connections",
	})

	DatabaseConnectionsIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cryptofunk_database_connections_idle",
		Help: "Number of idle database connections",
	})

	// Errors
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cryptofunk_errors_total",
		Help: "Total number of errors by type",
	}, []string{"type", "component"})

	// Database query duration
	DatabaseQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cryptofunk_database_query_duration_ms",
		Help:    "Database query duration in milliseconds",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
	}, []string{"query_type"})

	// Venue balance floor checks (health loop)
	VenueBalanceKrw = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "cryptofunk_venue_balance_krw",
		Help: "Last observed free balance by venue and asset, in KRW terms",
	}, []string{"venue", "asset"})

	VenueBalanceBelowMinimum = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "cryptofunk_venue_balance_below_minimum",
		Help: "1 when a venue balance is below its configured floor, else 0",
	}, []string{"venue", "asset"})

	// Universe size and symbol disablement
	UniverseSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cryptofunk_universe_size",
		Help: "Number of symbols currently in the active trading universe",
	})

	SymbolsDisabled = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cryptofunk_symbols_disabled",
		Help: "Number of symbols disabled after repeated order-book/price failures",
	})
)

// Circuit Breaker Metrics
var (
	// Circuit breaker status (1 = active, 0 = inactive)
	CircuitBreakerStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "cryptofunk_circuit_breaker_status",
		Help: "Circuit breaker status (1 = active/tripped, 0 = inactive)",
	}, []string{"breaker_type"})

	// Circuit breaker trips
	CircuitBreakerTrips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cryptofunk_circuit_breaker_trips_total",
		Help: "Total number of circuit breaker trips",
	}, []string{"breaker_type", "reason"})
)

// Audit Metrics
var (
	// Audit log operations
	AuditLogOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cryptofunk_audit_log_operations_total",
		Help: "Total number of audit log operations by event type and status",
	}, []string{"event_type", "status"})

	// Audit log failures
	AuditLogFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cryptofunk_audit_log_failures_total",
		Help: "Total number of audit log failures by error type",
	}, []string{"error_type", "event_type"})

	// Audit log latency
	AuditLogLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cryptofunk_audit_log_latency_ms",
		Help:    "Audit log operation latency in milliseconds",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
	})

	// Strategy operations metrics
	StrategyOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cryptofunk_strategy_operations_total",
		Help: "Total number of strategy operations by type and status",
	}, []string{"operation", "status"})

	// Strategy validation failures
	StrategyValidationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cryptofunk_strategy_validation_failures_total",
		Help: "Total number of strategy validation failures by reason",
	}, []string{"reason"})
)

// Vault Metrics
var (
	VaultCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cryptofunk_vault_cache_hits_total",
		Help: "Total number of Vault secret cache hits",
	})

	VaultCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cryptofunk_vault_cache_misses_total",
		Help: "Total number of Vault secret cache misses",
	})

	VaultCacheSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cryptofunk_vault_cache_size",
		Help: "Number of secrets currently cached from Vault",
	})

	VaultRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cryptofunk_vault_request_duration_ms",
		Help:    "Vault API request duration in milliseconds",
		Buckets: []float64{10, 25, 50, 100, 250, 500, 1000, 2500},
	})

	VaultRequestErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cryptofunk_vault_request_errors_total",
		Help: "Total number of failed Vault API requests",
	})
)

// RecordVaultCacheHit records a Vault secret cache hit.
func RecordVaultCacheHit() {
	VaultCacheHits.Inc()
}

// RecordVaultCacheMiss records a Vault secret cache miss.
func RecordVaultCacheMiss() {
	VaultCacheMisses.Inc()
}

// UpdateVaultCacheSize records the current number of cached Vault secrets.
func UpdateVaultCacheSize(size int) {
	VaultCacheSize.Set(float64(size))
}

// RecordVaultRequest records a Vault API request's latency and outcome.
func RecordVaultRequest(durationMs float64, err error) {
	VaultRequestDuration.Observe(durationMs)
	if err != nil {
		VaultRequestErrors.Inc()
	}
}

// Exchange Metrics
var (
	// Exchange API latency
	ExchangeAPILatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cryptofunk_exchange_api_latency_ms",
		Help:    "Exchange API latency in milliseconds",
		Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000},
	}, []string{"exchange", "endpoint"})

	// Exchange API errors
	ExchangeAPIErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cryptofunk_exchange_api_errors_total",
		Help: "Total exchange API errors",
	}, []string{"exchange", "error_type"})

	// Order execution latency
	OrderExecutionLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cryptofunk_order_execution_latency_ms",
		Help:    "Order execution latency in milliseconds",
		Buckets: []float64{100, 250, 500, 1000, 2500, 5000},
	})
)

// Helper functions to update metrics

// UpdateDatabaseConnections updates database connection metrics
func UpdateDatabaseConnections(active, idle int32) {
	DatabaseConnectionsActive.Set(float64(active))
	DatabaseConnectionsIdle.Set(float64(idle))
}

// RecordError records an error
func RecordError(errorType, component string) {
	Errors.WithLabelValues(errorType, component).Inc()
}

// RecordDatabaseQuery records a database query
func RecordDatabaseQuery(queryType string, durationMs float64) {
	DatabaseQueryDuration.WithLabelValues(queryType).Observe(durationMs)
}

// RecordTrade records a completed arbitrage cycle
func RecordTrade(profitLoss float64) {
	TotalTrades.Inc()
	TotalPnL.Add(profitLoss)
	if profitLoss > 0 {
		WinningTradesValue.Add(profitLoss)
	} else {
		LosingTradesValue.Add(-profitLoss) // Store absolute value
	}
}

// RecordPremium records the last observed premium for a symbol
func RecordPremium(symbol string, premiumPct float64) {
	PremiumPctBySymbol.WithLabelValues(symbol).Set(premiumPct)
}

// UpdateRiskSnapshot mirrors the risk manager's counters onto gauges
func UpdateRiskSnapshot(exposureKrw, volumeKrw float64, emergencyStop bool) {
	RiskExposureKrw.Set(exposureKrw)
	RiskDailyVolumeKrw.Set(volumeKrw)
	stop := 0.0
	if emergencyStop {
		stop = 1.0
	}
	EmergencyStopActive.Set(stop)
}

// UpdateVenueBalance records a health-loop balance reading
func UpdateVenueBalance(venue, asset string, freeKrw float64, belowMinimum bool) {
	VenueBalanceKrw.WithLabelValues(venue, asset).Set(freeKrw)
	below := 0.0
	if belowMinimum {
		below = 1.0
	}
	VenueBalanceBelowMinimum.WithLabelValues(venue, asset).Set(below)
}

// UpdateUniverse records the current universe size and disabled-symbol count
func UpdateUniverse(size, disabled int) {
	UniverseSize.Set(float64(size))
	SymbolsDisabled.Set(float64(disabled))
}

// UpdateCircuitBreaker updates circuit breaker status
func UpdateCircuitBreaker(breakerType string, active bool) {
	status := 0.0
	if active {
		status = 1.0
	}
	CircuitBreakerStatus.WithLabelValues(breakerType).Set(status)
}

// RecordCircuitBreakerTrip records a circuit breaker trip with normalized reason
func RecordCircuitBreakerTrip(breakerType, reason string) {
	normalizedReason := NormalizeCircuitBreakerReason(reason)
	CircuitBreakerTrips.WithLabelValues(breakerType, normalizedReason).Inc()
}

// RecordExchangeAPICall records an exchange API call with normalized error category
func RecordExchangeAPICall(exchange, endpoint string, durationMs float64, err error) {
	ExchangeAPILatency.WithLabelValues(exchange, endpoint).Observe(durationMs)
	if err != nil {
		errorCategory := NormalizeExchangeError(err)
		ExchangeAPIErrors.WithLabelValues(exchange, errorCategory).Inc()
	}
}

// RecordOrderExecution records order execution latency
func RecordOrderExecution(durationMs float64) {
	OrderExecutionLatency.Observe(durationMs)
}

// RecordAuditLog records an audit log operation
func RecordAuditLog(eventType string, success bool, durationMs float64) {
	status := "success"
	if !success {
		status = "failure"
	}
	AuditLogOperations.WithLabelValues(eventType, status).Inc()
	AuditLogLatency.Observe(durationMs)
}

// RecordAuditLogFailure records an audit log failure with error type
func RecordAuditLogFailure(errorType, eventType string) {
	AuditLogFailures.WithLabelValues(errorType, eventType).Inc()
}

// RecordStrategyOperation records a strategy operation
func RecordStrategyOperation(operation string, success bool) {
	status := "success"
	if !success {
		status = "failure"
	}
	StrategyOperations.WithLabelValues(operation, status).Inc()
}

// RecordStrategyValidationFailure records a strategy validation failure with normalized reason
func RecordStrategyValidationFailure(reason string) {
	normalizedReason := NormalizeValidationReason(reason)
	StrategyValidationFailures.WithLabelValues(normalizedReason).Inc()
}
