package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"github.com/FranksOps/dorker/pkg/useragent"
)

// DefaultTimeout bounds every outbound call when Config.Timeout is zero.
const DefaultTimeout = 20 * time.Second

// ErrNilContext is returned by Do when called without a context.
var ErrNilContext = errors.New("httpclient: context cannot be nil")

// Config defines the setup for the HTTP Client.
type Config struct {
	Timeout      time.Duration
	MaxRedirects int
	UseCookieJar bool
	// Transport may be swapped for proxies or uTLS fingerprinting.
	Transport http.RoundTripper
	// UserAgent picks the User-Agent header per request. Nil sends the
	// default desktop string.
	UserAgent useragent.Picker
	// Header is applied to every request unless the request already sets
	// the same key.
	Header http.Header
}

// Client wraps a standard http.Client with bounded timeouts, a redirect
// policy and request-level default headers.
type Client struct {
	*http.Client
	ua     useragent.Picker
	header http.Header
}

// New creates a new HTTP client based on the provided configuration.
func New(cfg Config) (*Client, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.UserAgent == nil {
		cfg.UserAgent = useragent.Fixed(useragent.Default)
	}

	c := &http.Client{
		Timeout: cfg.Timeout,
	}

	if cfg.MaxRedirects > 0 {
		c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			if len(via) >= cfg.MaxRedirects {
				return fmt.Errorf("httpclient: stopped after %d redirects", cfg.MaxRedirects)
			}
			return nil
		}
	} else if cfg.MaxRedirects < 0 {
		c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	if cfg.UseCookieJar {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("httpclient: cookie jar: %w", err)
		}
		c.Jar = jar
	}

	if cfg.Transport != nil {
		c.Transport = cfg.Transport
	}

	return &Client{Client: c, ua: cfg.UserAgent, header: cfg.Header.Clone()}, nil
}

// Do executes an HTTP request bound to ctx. The client timeout still applies
// when ctx has no deadline of its own.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}

	r := req.Clone(ctx)
	for k, vals := range c.header {
		if r.Header.Get(k) == "" {
			for _, v := range vals {
				r.Header.Add(k, v)
			}
		}
	}
	if r.Header.Get("User-Agent") == "" {
		r.Header.Set("User-Agent", c.ua.Next())
	}

	resp, err := c.Client.Do(r)
	if err != nil {
		var uerr *url.Error
		if errors.As(err, &uerr) {
			uerr.URL = Redact(r.URL)
		}
		return nil, fmt.Errorf("httpclient: %w", err)
	}
	return resp, nil
}

// secretParams are query parameters never written to logs or errors.
var secretParams = []string{"key", "api_key", "apikey"}

// Redact renders u with credentials and secret query parameters masked.
func Redact(u *url.URL) string {
	if u == nil {
		return ""
	}
	cp := *u
	q := cp.Query()
	changed := false
	for _, p := range secretParams {
		if q.Has(p) {
			q.Set(p, "REDACTED")
			changed = true
		}
	}
	if changed {
		cp.RawQuery = q.Encode()
	}
	return cp.Redacted()
}

// Get issues a GET request to rawURL.
func (c *Client) Get(ctx context.Context, rawURL string) (*http.Response, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("httpclient: build request: %w", err)
	}
	return c.Do(ctx, req)
}

// IsSuccess reports whether code is a 2xx status.
func IsSuccess(code int) bool {
	return code >= 200 && code < 300
}
