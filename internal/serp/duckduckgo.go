package serp

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"iter"
	"net/url"
	"strconv"

	"github.com/FranksOps/dorker/pkg/httpclient"
)

// DefaultDuckDuckGoURL is the script-free DuckDuckGo endpoint.
const DefaultDuckDuckGoURL = "https://html.duckduckgo.com/html/"

const (
	ddgPageSize = 30
	ddgMaxPages = 5
)

// DuckDuckGo is a ResultIterator over DuckDuckGo's HTML results, fetched
// one page at a time as the consumer pulls records.
type DuckDuckGo struct {
	BaseURL  string
	Client   *httpclient.Client
	MaxPages int
}

// Results implements ResultIterator.
func (d *DuckDuckGo) Results(ctx context.Context, query string, advanced bool) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		base, err := url.Parse(d.baseURL())
		if err != nil {
			yield(Record{}, fmt.Errorf("duckduckgo: base url: %w", err))
			return
		}
		sel := builtinSelectors["duckduckgo-html"]

		for page := 0; page < d.maxPages(); page++ {
			u := *base
			params := u.Query()
			params.Set("q", query)
			if page > 0 {
				params.Set("s", strconv.Itoa(page*ddgPageSize))
			}
			u.RawQuery = params.Encode()

			records, err := d.fetch(ctx, &u, base, sel, advanced)
			if err != nil {
				yield(Record{}, err)
				return
			}
			if len(records) == 0 {
				return
			}
			for _, rec := range records {
				if !yield(rec, nil) {
					return
				}
			}
		}
	}
}

func (d *DuckDuckGo) fetch(ctx context.Context, u, base *url.URL, sel Selectors, advanced bool) ([]Record, error) {
	resp, err := d.Client.Get(ctx, u.String())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("duckduckgo: read body: %w", err)
	}
	if !httpclient.IsSuccess(resp.StatusCode) {
		return nil, fmt.Errorf("duckduckgo: status %d: %w", resp.StatusCode, ErrUpstreamStatus)
	}
	return ParseResults(bytes.NewReader(body), base, sel, advanced)
}

func (d *DuckDuckGo) baseURL() string {
	if d.BaseURL == "" {
		return DefaultDuckDuckGoURL
	}
	return d.BaseURL
}

func (d *DuckDuckGo) maxPages() int {
	if d.MaxPages <= 0 {
		return ddgMaxPages
	}
	return d.MaxPages
}
