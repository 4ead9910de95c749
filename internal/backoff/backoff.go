// Package backoff spaces queries out to stay under upstream rate limits.
package backoff

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"
)

// Outcome is the result of the query that just finished.
type Outcome int

const (
	Success Outcome = iota
	Failure
)

func (o Outcome) String() string {
	if o == Failure {
		return "failure"
	}
	return "success"
}

// Config tunes the delays. The zero value never sleeps.
type Config struct {
	// MinDelay and MaxDelay bound the uniform pause after a successful
	// query when another query follows.
	MinDelay time.Duration
	MaxDelay time.Duration
	// After a failure the pause is k*k*FailureUnit, with k drawn uniformly
	// from [0, FailureSpread*n] and n the number of consecutive failures.
	FailureUnit   time.Duration
	FailureSpread int
	// FailureCap bounds the failure pause; zero leaves it unbounded.
	FailureCap time.Duration
}

// DefaultConfig returns the delays used by the CLI.
func DefaultConfig() Config {
	return Config{
		MinDelay:      10 * time.Second,
		MaxDelay:      50 * time.Second,
		FailureUnit:   time.Second,
		FailureSpread: 15,
		FailureCap:    15 * time.Minute,
	}
}

// Controller holds the consecutive failure count between queries.
type Controller struct {
	mu       sync.Mutex
	cfg      Config
	failures int

	int64n func(n int64) int64
	sleep  func(ctx context.Context, d time.Duration) error
}

// New returns a Controller for cfg. Negative durations are treated as zero.
func New(cfg Config) *Controller {
	cfg.MinDelay = max(cfg.MinDelay, 0)
	cfg.MaxDelay = max(cfg.MaxDelay, cfg.MinDelay)
	cfg.FailureUnit = max(cfg.FailureUnit, 0)
	cfg.FailureSpread = max(cfg.FailureSpread, 0)
	cfg.FailureCap = max(cfg.FailureCap, 0)

	return &Controller{
		cfg:    cfg,
		int64n: rand.Int64N,
		sleep:  sleepContext,
	}
}

// Failures returns the current consecutive failure count.
func (c *Controller) Failures() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failures
}

// Delay records outcome and returns the pause that should follow it without
// sleeping. hasNext reports whether another query is queued; a success with
// nothing queued needs no pause, a failure always gets one.
func (c *Controller) Delay(outcome Outcome, hasNext bool) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	if outcome == Success {
		c.failures = 0
		if !hasNext {
			return 0
		}
		span := c.cfg.MaxDelay - c.cfg.MinDelay
		if span <= 0 {
			return c.cfg.MinDelay
		}
		return c.cfg.MinDelay + time.Duration(c.int64n(int64(span)+1))
	}

	c.failures++
	k := c.int64n(int64(c.cfg.FailureSpread*c.failures) + 1)
	d := time.Duration(k*k) * c.cfg.FailureUnit
	if c.cfg.FailureCap > 0 && (d > c.cfg.FailureCap || d < 0) {
		d = c.cfg.FailureCap
	}
	return d
}

// Wait records outcome and sleeps for the resulting pause. It returns the
// pause and ctx.Err() if ctx ends first.
func (c *Controller) Wait(ctx context.Context, outcome Outcome, hasNext bool) (time.Duration, error) {
	d := c.Delay(outcome, hasNext)
	return d, c.Sleep(ctx, d)
}

// Sleep pauses for d or until ctx is done.
func (c *Controller) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	return c.sleep(ctx, d)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
