package useragent

import (
	"crypto/rand"
	"math/big"
	"strings"
	"sync/atomic"
)

// Default is the desktop browser string sent to search engines when no
// override is configured.
const Default = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// DefaultPool provides a realistic set of modern desktop User-Agents used when
// rotation is enabled.
var DefaultPool = []string{
	Default,
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36 Edg/124.0.0.0",
}

// Picker yields the User-Agent for the next outbound request.
type Picker interface {
	Next() string
}

// Fixed always returns the same User-Agent.
type Fixed string

// Next implements Picker.
func (f Fixed) Next() string { return string(f) }

// Resolve returns the Picker for a configured override. A non-blank override
// replaces the default entirely; it is never merged with it. When rotate is
// set and there is no override, a random pick from DefaultPool is used per
// request.
func Resolve(override string, rotate bool) Picker {
	if o := strings.TrimSpace(override); o != "" {
		return Fixed(o)
	}
	if rotate {
		return NewPool(nil)
	}
	return Fixed(Default)
}

// Pool is a rotating collection of User-Agents.
type Pool struct {
	uas     []string
	counter atomic.Uint64
}

// NewPool creates a new User-Agent pool. If the provided slice is empty,
// it falls back to DefaultPool.
func NewPool(uas []string) *Pool {
	if len(uas) == 0 {
		uas = DefaultPool
	}
	copied := make([]string, len(uas))
	copy(copied, uas)
	return &Pool{uas: copied}
}

// Next implements Picker with a random pick.
func (p *Pool) Next() string {
	return p.GetRandom()
}

// GetSequential returns the next User-Agent in round-robin order.
func (p *Pool) GetSequential() string {
	if len(p.uas) == 0 {
		return ""
	}
	idx := p.counter.Add(1) - 1
	return p.uas[idx%uint64(len(p.uas))]
}

// GetRandom returns a random User-Agent from the pool using crypto/rand.
func (p *Pool) GetRandom() string {
	if len(p.uas) == 0 {
		return ""
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(p.uas))))
	if err != nil {
		return p.GetSequential()
	}
	return p.uas[n.Int64()]
}

// Len reports how many User-Agents the pool holds.
func (p *Pool) Len() int {
	return len(p.uas)
}
