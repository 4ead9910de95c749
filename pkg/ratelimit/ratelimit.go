package ratelimit

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"
)

// Pacer enforces a minimum, optionally jittered, gap between successive
// operations. The first Wait never blocks. A zero interval disables pacing.
type Pacer struct {
	mu       sync.Mutex
	interval time.Duration
	jitter   float64 // 0.0 to 1.0
	last     time.Time
	now      func() time.Time
}

// NewPacer creates a pacer with the given interval and jitter factor.
// Jitter is clamped to [0, 1] and widens each gap by up to jitter*interval.
func NewPacer(interval time.Duration, jitter float64) *Pacer {
	if jitter < 0 {
		jitter = 0
	} else if jitter > 1 {
		jitter = 1
	}
	if interval < 0 {
		interval = 0
	}
	return &Pacer{
		interval: interval,
		jitter:   jitter,
		now:      time.Now,
	}
}

// Wait blocks until the gap since the previous Wait has elapsed or ctx is
// done.
func (p *Pacer) Wait(ctx context.Context) error {
	if p == nil || p.interval == 0 {
		return ctx.Err()
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.last.IsZero() {
		gap := p.interval
		if p.jitter > 0 {
			gap += time.Duration(float64(p.interval) * p.jitter * rand.Float64())
		}
		if remaining := gap - p.now().Sub(p.last); remaining > 0 {
			timer := time.NewTimer(remaining)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}

	p.last = p.now()
	return nil
}

// Interval returns the configured base gap.
func (p *Pacer) Interval() time.Duration {
	if p == nil {
		return 0
	}
	return p.interval
}
