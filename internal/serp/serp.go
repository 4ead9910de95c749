package serp

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Backend names a Source variant.
type Backend string

const (
	BackendScrape  Backend = "scrape"
	BackendAPI     Backend = "api"
	BackendLibrary Backend = "library"
)

// NotAvailable marks a long description the API did not provide.
const NotAvailable = "N/A"

// Shape selects how a Record is rendered by the sinks.
type Shape int

const (
	// ShapeSimple carries only the URL.
	ShapeSimple Shape = iota
	// ShapeAdvanced adds title and short description.
	ShapeAdvanced
	// ShapeExtended is the API's advanced shape: it also carries the long
	// description and the raw HTML snippet.
	ShapeExtended
)

func (s Shape) String() string {
	switch s {
	case ShapeSimple:
		return "simple"
	case ShapeAdvanced:
		return "advanced"
	case ShapeExtended:
		return "extended"
	default:
		return fmt.Sprintf("shape(%d)", int(s))
	}
}

// Record is one search result.
type Record struct {
	Shape           Shape  `json:"shape"`
	Rank            int    `json:"rank"`
	URL             string `json:"url"`
	Title           string `json:"title,omitempty"`
	Description     string `json:"description,omitempty"`
	LongDescription string `json:"long_description,omitempty"`
	HTMLSnippet     string `json:"html_snippet,omitempty"`
}

// Options are the per-call knobs shared by every Source.
type Options struct {
	// Limit caps the number of records requested.
	Limit int
	// Advanced asks for titles and descriptions in addition to URLs.
	Advanced bool
}

// Source turns a query into result records. Implementations fail soft: they
// return the records collected so far together with a *SourceError.
type Source interface {
	Name() Backend
	Search(ctx context.Context, query string, opts Options) ([]Record, error)
}

var (
	// ErrUpstreamStatus marks a non-2xx reply from the search upstream.
	ErrUpstreamStatus = errors.New("upstream returned non-success status")
	// ErrBlocked marks a captcha or rate-limit page served instead of results.
	ErrBlocked = errors.New("request blocked by upstream")
	// ErrMalformedResponse marks a body that could not be decoded.
	ErrMalformedResponse = errors.New("malformed upstream response")
)

// SourceError describes a failed or partially failed Search call.
type SourceError struct {
	Backend    Backend
	Query      string
	StatusCode int
	// Detector names the block mechanism when Err is ErrBlocked.
	Detector string
	Err      error
}

func (e *SourceError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "serp: %s search %q", e.Backend, e.Query)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Detector != "" {
		fmt.Fprintf(&b, " [%s]", e.Detector)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *SourceError) Unwrap() error { return e.Err }
