package provider

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// ErrCircuitOpen is returned when the circuit breaker rejects requests to
// prevent cascading failures against an unhealthy provider.
var ErrCircuitOpen = errors.New("nlu provider circuit breaker is open")

// guard combines a circuit breaker and a client-side rate limit in front of
// every outbound provider call.
type guard struct {
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

// newGuard creates a guard tripping after maxFailures consecutive failures,
// staying open for openTimeout, and limiting calls to rps per second with a
// burst of the same size.
func newGuard(name string, maxFailures uint32, openTimeout time.Duration, rps float64) *guard {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 2,
		Interval:    0,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
	}

	burst := int(rps)
	if burst < 1 {
		burst = 1
	}

	return &guard{
		breaker: gobreaker.NewCircuitBreaker(settings),
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// do waits for a rate-limit token and runs fn through the circuit breaker.
func (g *guard) do(ctx context.Context, fn func() (interface{}, error)) (interface{}, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	result, err := g.breaker.Execute(func() (interface{}, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		return fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, ErrCircuitOpen
	}
	return result, err
}
