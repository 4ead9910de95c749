package proxy

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"
)

// ErrUnknownProxy is returned when marking a proxy that the pool does not hold.
var ErrUnknownProxy = errors.New("proxy: not found in pool")

type ctxKey struct{}

// WithURL returns a context that routes requests made with it through u.
func WithURL(ctx context.Context, u *url.URL) context.Context {
	if u == nil {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, u)
}

// FromRequest is an http.Transport.Proxy function. It prefers the proxy
// attached to the request context and otherwise honours the environment.
func FromRequest(req *http.Request) (*url.URL, error) {
	if u, ok := req.Context().Value(ctxKey{}).(*url.URL); ok && u != nil {
		return u, nil
	}
	return http.ProxyFromEnvironment(req)
}

type entry struct {
	url           *url.URL
	failures      int
	disabledUntil time.Time
}

// Pool rotates outbound search requests over a list of proxies and rests a
// proxy for a cooldown once it has failed MaxFailures times in a row.
type Pool struct {
	mu          sync.Mutex
	entries     []*entry
	next        int
	maxFailures int
	cooldown    time.Duration
	now         func() time.Time
}

// Config defines settings for the Proxy Pool.
type Config struct {
	// MaxFailures before a proxy is rested.
	MaxFailures int
	// Cooldown is how long a rested proxy stays out of rotation.
	Cooldown time.Duration
}

// NewPool creates a new proxy pool. Zero config values get defaults.
func NewPool(cfg Config) *Pool {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 5 * time.Minute
	}
	return &Pool{
		maxFailures: cfg.MaxFailures,
		cooldown:    cfg.Cooldown,
		now:         time.Now,
	}
}

// LoadFile reads proxies from a file, one URL per line. Empty lines and
// lines starting with '#' are ignored.
func (p *Pool) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("proxy: %w", err)
	}
	defer f.Close()

	var urls []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("proxy: read %s: %w", path, err)
	}

	return p.Add(urls...)
}

// Add parses raw proxy URLs and appends them to the rotation. A missing
// scheme defaults to http.
func (p *Pool) Add(rawURLs ...string) error {
	parsed := make([]*entry, 0, len(rawURLs))
	for _, raw := range rawURLs {
		if !strings.Contains(raw, "://") {
			raw = "http://" + raw
		}
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("proxy: parse %q: %w", raw, err)
		}
		if u.Host == "" {
			return fmt.Errorf("proxy: %q has no host", raw)
		}
		parsed = append(parsed, &entry{url: u})
	}

	p.mu.Lock()
	p.entries = append(p.entries, parsed...)
	p.mu.Unlock()
	return nil
}

// Len reports the number of proxies in the pool, rested or not.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Next returns the next proxy in rotation that is not resting, or nil when
// the pool is empty or every proxy is resting.
func (p *Pool) Next() *url.URL {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	for range p.entries {
		e := p.entries[p.next]
		p.next = (p.next + 1) % len(p.entries)

		if !e.disabledUntil.IsZero() {
			if now.Before(e.disabledUntil) {
				continue
			}
			e.disabledUntil = time.Time{}
			e.failures = 0
		}
		return e.url
	}
	return nil
}

// MarkSuccess clears the failure streak of u.
func (p *Pool) MarkSuccess(u *url.URL) error {
	return p.update(u, func(e *entry) {
		e.failures = 0
	})
}

// MarkFailure extends the failure streak of u and rests it once the streak
// reaches the configured maximum.
func (p *Pool) MarkFailure(u *url.URL) error {
	return p.update(u, func(e *entry) {
		e.failures++
		if e.failures >= p.maxFailures {
			e.disabledUntil = p.now().Add(p.cooldown)
		}
	})
}

func (p *Pool) update(u *url.URL, fn func(*entry)) error {
	if u == nil {
		return errors.New("proxy: url cannot be nil")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	target := u.String()
	for _, e := range p.entries {
		if e.url.String() == target {
			fn(e)
			return nil
		}
	}
	return ErrUnknownProxy
}
