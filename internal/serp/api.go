package serp

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/tidwall/gjson"

	"github.com/FranksOps/dorker/pkg/httpclient"
	"github.com/FranksOps/dorker/pkg/ratelimit"
)

// DefaultAPIURL is the JSON search API endpoint.
const DefaultAPIURL = "https://www.googleapis.com/customsearch/v1"

// APIPageSize is the number of items the API returns per page.
const APIPageSize = 10

// APIConfig configures an APISource.
type APIConfig struct {
	BaseURL  string
	Key      string
	EngineID string
	Client   *httpclient.Client
	// Pacer spaces page requests; nil means no pacing.
	Pacer  *ratelimit.Pacer
	Logger *slog.Logger
}

// APISource pages through the official JSON search API.
type APISource struct {
	cfg  APIConfig
	base *url.URL
}

// NewAPISource validates cfg and builds the source.
func NewAPISource(cfg APIConfig) (*APISource, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultAPIURL
	}
	if cfg.Key == "" || cfg.EngineID == "" {
		return nil, fmt.Errorf("serp: api source requires both an api key and a search engine id")
	}
	if cfg.Client == nil {
		return nil, fmt.Errorf("serp: api source requires an http client")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("serp: api url: %w", err)
	}
	return &APISource{cfg: cfg, base: base}, nil
}

// Name implements Source.
func (s *APISource) Name() Backend { return BackendAPI }

// PagesFor returns how many pages are needed for limit results.
func PagesFor(limit int) int {
	if limit <= 0 {
		return 0
	}
	return (limit + APIPageSize - 1) / APIPageSize
}

// Search implements Source. Pagination stops when limit records are
// collected, when a page comes back empty, or after PagesFor(limit) pages.
// A failing page ends pagination and the records gathered so far are
// returned with the error.
func (s *APISource) Search(ctx context.Context, query string, opts Options) ([]Record, error) {
	var records []Record

	for page := 0; page < PagesFor(opts.Limit) && len(records) < opts.Limit; page++ {
		start := 1 + page*APIPageSize

		if err := s.cfg.Pacer.Wait(ctx); err != nil {
			return records, &SourceError{Backend: BackendAPI, Query: query, Err: err}
		}

		items, status, err := s.fetchPage(ctx, query, start)
		if err != nil {
			return records, &SourceError{Backend: BackendAPI, Query: query, StatusCode: status, Err: err}
		}
		if len(items) == 0 {
			s.cfg.Logger.Debug("api result set exhausted", "query", query, "start", start)
			break
		}

		for _, item := range items {
			if len(records) >= opts.Limit {
				break
			}
			link := item.Get("link").String()
			if link == "" {
				continue
			}
			rec := Record{Shape: ShapeSimple, Rank: len(records) + 1, URL: link}
			if opts.Advanced {
				rec.Shape = ShapeExtended
				rec.Title = collapse(item.Get("title").String())
				rec.Description = collapse(item.Get("snippet").String())
				rec.HTMLSnippet = collapse(item.Get("htmlSnippet").String())
				rec.LongDescription = collapse(ogDescription(item))
			}
			records = append(records, rec)
		}
	}

	return records, nil
}

func (s *APISource) fetchPage(ctx context.Context, query string, start int) ([]gjson.Result, int, error) {
	u := *s.base
	params := u.Query()
	params.Set("key", s.cfg.Key)
	params.Set("cx", s.cfg.EngineID)
	params.Set("q", query)
	params.Set("start", strconv.Itoa(start))
	u.RawQuery = params.Encode()

	s.cfg.Logger.Debug("requesting api page", "query", query, "start", start)

	resp, err := s.cfg.Client.Get(ctx, u.String())
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read body: %w", err)
	}

	if !httpclient.IsSuccess(resp.StatusCode) {
		if msg := gjson.GetBytes(body, "error.message").String(); msg != "" {
			return nil, resp.StatusCode, fmt.Errorf("%w: %s", ErrUpstreamStatus, msg)
		}
		return nil, resp.StatusCode, ErrUpstreamStatus
	}

	if !gjson.ValidBytes(body) {
		return nil, resp.StatusCode, ErrMalformedResponse
	}
	return gjson.GetBytes(body, "items").Array(), resp.StatusCode, nil
}

// ogDescription pulls og:description from the first metatags block of the
// item's page map.
func ogDescription(item gjson.Result) string {
	desc := NotAvailable
	item.Get("pagemap.metatags.0").ForEach(func(key, value gjson.Result) bool {
		if key.String() == "og:description" && value.String() != "" {
			desc = value.String()
			return false
		}
		return true
	})
	return desc
}
