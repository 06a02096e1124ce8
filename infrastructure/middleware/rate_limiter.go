package middleware

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/ahrav/go-tally/internal/domain"
	"github.com/ahrav/go-tally/internal/ports"
)

var _ ports.Apportioner = (*RateLimiter)(nil)

// RateLimiter paces counts with a token bucket. One RateLimiter shared by a
// batch of elections bounds how quickly counts start, independent of how
// many run at once.
type RateLimiter struct {
	next    ports.Apportioner
	limiter *rate.Limiter
}

// NewRateLimiter wraps next so that at most limit counts start per second,
// with bursts of up to burst counts.
func NewRateLimiter(next ports.Apportioner, limit rate.Limit, burst int) (*RateLimiter, error) {
	if next == nil {
		return nil, fmt.Errorf("rate limiter: next apportioner is required")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("rate limiter: limit must be positive, got %v", limit)
	}
	if burst < 1 {
		return nil, fmt.Errorf("rate limiter: burst must be at least 1, got %d", burst)
	}
	return &RateLimiter{next: next, limiter: rate.NewLimiter(limit, burst)}, nil
}

// Name returns the wrapped apportioner's name.
func (r *RateLimiter) Name() string { return r.next.Name() }

// Apportion waits for a token before delegating. It blocks until a token is
// available or ctx is done.
func (r *RateLimiter) Apportion(
	ctx context.Context,
	tree *domain.PreferenceTree[domain.Party],
	seats int,
) (*domain.FrequencyTable[domain.Party], error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}
	return r.next.Apportion(ctx, tree, seats)
}

// Validate validates the wrapped apportioner.
func (r *RateLimiter) Validate() error { return r.next.Validate() }
