package venue

import (
	"time"

	"github.com/sony/gobreaker"
)

// breakerSettings mirrors the thresholds risk.CircuitBreakerManager applies
// to its "exchange" breaker (risk/circuit_breaker.go), duplicated here as
// venue-local constants rather than imported so that venue does not take a
// dependency on the risk package (risk depends on venue conceptually, via
// Opportunity sizing, not the other way around).
const (
	breakerMinRequests     = 5
	breakerFailureRatio    = 0.6
	breakerOpenTimeout     = 30 * time.Second
	breakerHalfOpenMaxReqs = 3
	breakerCountInterval   = 10 * time.Second
)

// newBreaker builds a per-venue circuit breaker. When it trips, the
// orchestrator's per-symbol failure counter is the mechanical consumer:
// five consecutive order-book failures open the breaker and the symbol is
// excluded from both monitor loops until restart.
func newBreaker(venueName string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        venueName,
		MaxRequests: breakerHalfOpenMaxReqs,
		Interval:    breakerCountInterval,
		Timeout:     breakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= breakerMinRequests && ratio >= breakerFailureRatio
		},
	})
}
