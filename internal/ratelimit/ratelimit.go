package ratelimit

import (
	"context"
	"math/rand"
	"time"

	"golang.org/x/time/rate"
)

type RateLimiter interface {
	Wait(ctx context.Context) error
}

// Pacer sleeps a fixed base delay plus a uniform jitter in [0, jitter)
// before every request attempt. The delay does not grow with failures.
type Pacer struct {
	baseDelay time.Duration
	jitter    time.Duration
	randInt63 func(n int64) int64
	after     func(d time.Duration) <-chan time.Time
}

func NewPacer(baseDelay, jitter time.Duration) *Pacer {
	return &Pacer{
		baseDelay: baseDelay,
		jitter:    jitter,
		randInt63: rand.Int63n,
		after:     time.After,
	}
}

func (p *Pacer) Wait(ctx context.Context) error {
	delay := p.Delay()
	if delay <= 0 {
		return ctx.Err()
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.after(delay):
		return nil
	}
}

// Delay returns the next pause length.
func (p *Pacer) Delay() time.Duration {
	if p.jitter <= 0 {
		return p.baseDelay
	}
	return p.baseDelay + time.Duration(p.randInt63(int64(p.jitter)))
}

// Budget caps the request rate shared by every fetcher holding it.
type Budget struct {
	limiter *rate.Limiter
}

// NewBudget returns nil when perSecond is not positive, which disables the cap.
func NewBudget(perSecond float64) *Budget {
	if perSecond <= 0 {
		return nil
	}
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	return &Budget{limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (b *Budget) Wait(ctx context.Context) error {
	if b == nil {
		return nil
	}
	return b.limiter.Wait(ctx)
}

// Chain runs limiters in order and stops at the first error.
type Chain []RateLimiter

func (c Chain) Wait(ctx context.Context) error {
	for _, l := range c {
		if l == nil {
			continue
		}
		if err := l.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}
