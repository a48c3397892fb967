// Package fiatrate implements a USD->KRW rate cache backed by 1..N
// providers tried in order, with a soft cache duration and a hard
// staleness ceiling beyond which the rate is unavailable.
package fiatrate

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"

	"github.com/ajitpratap0/cryptofunk/internal/venueerr"
)

// providerBreaker settings mirror risk.CircuitBreakerManager's fiat-rate
// lane (internal/risk/circuit_breaker.go), duplicated as local constants so
// fiatrate does not take a dependency on risk (risk depends on fiatrate
// conceptually, via premium calculation, not the other way around).
const (
	breakerMinRequests     = 3
	breakerFailureRatio    = 0.6
	breakerOpenTimeout     = 60 * time.Second
	breakerHalfOpenMaxReqs = 2
	breakerCountInterval   = 10 * time.Second
)

func newProviderBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: breakerHalfOpenMaxReqs,
		Interval:    breakerCountInterval,
		Timeout:     breakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= breakerMinRequests && ratio >= breakerFailureRatio
		},
	})
}

// Provider fetches a single USD->KRW rate sample. Tests and the
// orchestrator wire in whatever Provider implementations are available.
type Provider interface {
	Name() string
	FetchUSDKRW(ctx context.Context) (decimal.Decimal, error)
}

// Rate is a USD->KRW sample with its own freshness metadata.
type Rate struct {
	Value     decimal.Decimal
	Timestamp time.Time
	Stale     bool
}

// Clock abstracts time.Now so poll-loop and staleness tests can inject a
// synthetic clock.
type Clock func() time.Time

// Service is the concurrency-safe FiatRateProvider. Providers are tried in
// order on every refresh; the last good value is cached for cacheDuration,
// and served stale (flagged) for up to staleCeiling beyond that before the
// rate is reported unavailable.
type Service struct {
	providers     []Provider
	breakers      map[string]*gobreaker.CircuitBreaker
	cacheDuration time.Duration
	staleCeiling  time.Duration
	clock         Clock
	timeout       time.Duration

	mu       sync.Mutex
	lastGood *Rate
	redis    *RedisCache
}

// New constructs a fiat-rate Service. cacheDuration defaults to 5
// minutes, staleCeiling to 1 hour. redisCache may be nil (in-memory
// caching only). Each provider gets its own circuit breaker so one
// chronically failing provider doesn't eat every refresh's timeout budget
// before the fallback providers get a turn.
func New(providers []Provider, cacheDuration, staleCeiling time.Duration, redisCache *RedisCache) *Service {
	if cacheDuration <= 0 {
		cacheDuration = 5 * time.Minute
	}
	if staleCeiling <= 0 {
		staleCeiling = time.Hour
	}
	breakers := make(map[string]*gobreaker.CircuitBreaker, len(providers))
	for _, p := range providers {
		breakers[p.Name()] = newProviderBreaker(p.Name())
	}
	return &Service{
		providers:     providers,
		breakers:      breakers,
		cacheDuration: cacheDuration,
		staleCeiling:  staleCeiling,
		clock:         time.Now,
		timeout:       5 * time.Second,
		redis:         redisCache,
	}
}

// SetClock overrides the clock used for cache-age comparisons (tests only).
func (s *Service) SetClock(c Clock) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = c
}

// Rate returns the current USD->KRW rate. It first checks whether the
// cached value is still within cacheDuration; if so it's returned fresh. If
// every provider fails, a cache no older than cacheDuration+staleCeiling is
// returned flagged Stale=true. If no such cache exists, it returns
// venueerr.FiatUnavailable.
func (s *Service) Rate(ctx context.Context) (Rate, error) {
	s.mu.Lock()
	now := s.clock()
	cached := s.lastGood
	s.mu.Unlock()

	if cached != nil && now.Sub(cached.Timestamp) <= s.cacheDuration {
		return Rate{Value: cached.Value, Timestamp: cached.Timestamp, Stale: false}, nil
	}

	if cached == nil {
		if rate, ok := s.redis.Get(ctx); ok && now.Sub(rate.Timestamp) <= s.cacheDuration {
			s.mu.Lock()
			s.lastGood = &rate
			s.mu.Unlock()
			return rate, nil
		}
	}

	for _, p := range s.providers {
		breaker := s.breakers[p.Name()]
		fetchCtx, cancel := context.WithTimeout(ctx, s.timeout)
		result, err := breaker.Execute(func() (interface{}, error) {
			return p.FetchUSDKRW(fetchCtx)
		})
		cancel()
		if err != nil {
			if err == gobreaker.ErrOpenState {
				log.Warn().Str("provider", p.Name()).Msg("fiat rate provider circuit open, skipping")
			} else {
				log.Warn().Err(err).Str("provider", p.Name()).Msg("fiat rate provider failed")
			}
			continue
		}
		value := result.(decimal.Decimal)

		fresh := Rate{Value: value, Timestamp: now, Stale: false}
		s.mu.Lock()
		s.lastGood = &fresh
		s.mu.Unlock()
		s.redis.Set(fresh)
		return fresh, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastGood != nil && now.Sub(s.lastGood.Timestamp) <= s.cacheDuration+s.staleCeiling {
		return Rate{Value: s.lastGood.Value, Timestamp: s.lastGood.Timestamp, Stale: true}, nil
	}

	return Rate{}, venueerr.New(venueerr.FiatUnavailable, "fiatrate.Rate", "all providers failed and no fresh cache")
}
