// Package ratelimit paces outbound calls with golang.org/x/time/rate.
package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter wraps rate.Limiter with convenience methods.
type Limiter struct {
	limiter *rate.Limiter
}

// New creates a limiter allowing requestsPerSecond with the given burst.
// A non-positive rate disables limiting.
func New(requestsPerSecond float64, burst int) *Limiter {
	if burst < 1 {
		burst = 1
	}
	limit := rate.Limit(requestsPerSecond)
	if requestsPerSecond <= 0 {
		limit = rate.Inf
	}
	return &Limiter{limiter: rate.NewLimiter(limit, burst)}
}

// Wait blocks until a token is available or the context is cancelled.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

// Set holds one limiter per key, created on first use with shared settings.
type Set struct {
	rps   float64
	burst int

	mu       sync.Mutex
	limiters map[string]*Limiter
}

// NewSet creates a keyed limiter set.
func NewSet(requestsPerSecond float64, burst int) *Set {
	return &Set{
		rps:      requestsPerSecond,
		burst:    burst,
		limiters: make(map[string]*Limiter),
	}
}

// For returns the limiter for key.
func (s *Set) For(key string) *Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.limiters[key]
	if !ok {
		l = New(s.rps, s.burst)
		s.limiters[key] = l
	}
	return l
}

// Wait blocks on the limiter for key.
func (s *Set) Wait(ctx context.Context, key string) error {
	return s.For(key).Wait(ctx)
}
