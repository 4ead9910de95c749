package serp

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/FranksOps/dorker/internal/bypass"
	"github.com/FranksOps/dorker/pkg/httpclient"
	"github.com/FranksOps/dorker/pkg/proxy"
)

// DefaultScrapeURL is the results page queried by ScrapeSource.
const DefaultScrapeURL = "https://www.google.com/search"

// maxPageBytes caps how much of a results page is read.
const maxPageBytes = 5 << 20

// ScrapeConfig configures a ScrapeSource.
type ScrapeConfig struct {
	BaseURL   string
	Client    *httpclient.Client
	Selectors Selectors
	// Proxies is optional; when set every request goes through the next
	// healthy proxy and blocks count against it.
	Proxies   *proxy.Pool
	Detectors []bypass.Detector
	Logger    *slog.Logger
}

// ScrapeSource fetches one results page per query and parses it with a
// versioned Selectors set.
type ScrapeSource struct {
	cfg  ScrapeConfig
	base *url.URL
}

// NewScrapeSource validates cfg and builds the source.
func NewScrapeSource(cfg ScrapeConfig) (*ScrapeSource, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultScrapeURL
	}
	if cfg.Client == nil {
		return nil, fmt.Errorf("serp: scrape source requires an http client")
	}
	if cfg.Selectors.Container == "" && cfg.Selectors.Link == "" {
		sel, err := LookupSelectors(DefaultSelectors)
		if err != nil {
			return nil, err
		}
		cfg.Selectors = sel
	}
	if err := cfg.Selectors.Validate(); err != nil {
		return nil, err
	}
	if cfg.Detectors == nil {
		cfg.Detectors = bypass.DefaultDetectors()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("serp: scrape url: %w", err)
	}

	return &ScrapeSource{cfg: cfg, base: base}, nil
}

// Name implements Source.
func (s *ScrapeSource) Name() Backend { return BackendScrape }

// Search implements Source. The limit is forwarded as the page-size
// parameter; the page may hold more or fewer results and is not truncated.
func (s *ScrapeSource) Search(ctx context.Context, query string, opts Options) ([]Record, error) {
	u := *s.base
	params := u.Query()
	params.Set("q", query)
	params.Set("num", strconv.Itoa(opts.Limit))
	params.Set("hl", "en")
	u.RawQuery = params.Encode()

	fail := func(status int, detector string, err error) *SourceError {
		return &SourceError{Backend: BackendScrape, Query: query, StatusCode: status, Detector: detector, Err: err}
	}

	var via *url.URL
	if s.cfg.Proxies != nil {
		via = s.cfg.Proxies.Next()
		ctx = proxy.WithURL(ctx, via)
	}

	s.cfg.Logger.Debug("requesting results page", "query", query, "num", opts.Limit, "proxy", via != nil)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fail(0, "", err)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := s.cfg.Client.Do(ctx, req)
	if err != nil {
		s.markProxy(via, false)
		return nil, fail(0, "", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, fail(resp.StatusCode, "", fmt.Errorf("read body: %w", err))
	}

	if detector, blocked := bypass.Analyze(&bypass.Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
		FinalURL:   resp.Request.URL.String(),
	}, s.cfg.Detectors); blocked {
		s.markProxy(via, false)
		return nil, fail(resp.StatusCode, detector, ErrBlocked)
	}

	if !httpclient.IsSuccess(resp.StatusCode) {
		s.markProxy(via, false)
		return nil, fail(resp.StatusCode, "", ErrUpstreamStatus)
	}
	s.markProxy(via, true)

	records, err := ParseResults(bytes.NewReader(body), s.base, s.cfg.Selectors, opts.Advanced)
	if err != nil {
		return nil, fail(resp.StatusCode, "", fmt.Errorf("%w: %w", ErrMalformedResponse, err))
	}

	s.cfg.Logger.Debug("parsed results page", "query", query, "records", len(records), "selectors", s.cfg.Selectors.Version)
	return records, nil
}

func (s *ScrapeSource) markProxy(u *url.URL, ok bool) {
	if u == nil || s.cfg.Proxies == nil {
		return
	}
	var err error
	if ok {
		err = s.cfg.Proxies.MarkSuccess(u)
	} else {
		err = s.cfg.Proxies.MarkFailure(u)
	}
	if err != nil {
		s.cfg.Logger.Debug("proxy bookkeeping failed", "proxy", u.Host, "err", err)
	}
}
