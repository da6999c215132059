package fetch

import (
	"context"
	"sync"
	"time"
)

// Pacer is a token bucket that blocks callers until a request slot is free.
// Tokens refill at rate per second and the bucket holds a single token, so
// requests are spread evenly instead of bursting.
type Pacer struct {
	capacity   int        // Maximum tokens (burst capacity)
	refillRate float64    // Tokens per second
	tokens     float64    // Current tokens available
	lastRefill time.Time  // Last time tokens were refilled
	mu         sync.Mutex // Mutex for thread safety
}

// NewPacer creates a pacer allowing rate requests per second.
func NewPacer(rate int) *Pacer {
	if rate <= 0 {
		rate = DefaultRate
	}
	return &Pacer{
		capacity:   1,
		refillRate: float64(rate),
		tokens:     1, // first request goes out immediately
		lastRefill: time.Now(),
	}
}

// reserve consumes a token if one is available. Otherwise it returns how
// long the caller has to wait for the next one.
func (p *Pacer) reserve() (time.Duration, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(p.lastRefill)
	p.tokens = min(float64(p.capacity), p.tokens+elapsed.Seconds()*p.refillRate)
	p.lastRefill = now

	if p.tokens >= 1.0 {
		p.tokens -= 1.0
		return 0, true
	}

	missing := 1.0 - p.tokens
	return time.Duration(missing / p.refillRate * float64(time.Second)), false
}

// Wait blocks until a token is available or ctx is done.
func (p *Pacer) Wait(ctx context.Context) error {
	for {
		wait, ok := p.reserve()
		if ok {
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
