package serp

import (
	"context"
	"iter"
	"log/slog"
)

// ResultIterator is a lazy results facility: it yields records until the
// upstream is exhausted, an error occurs, or the consumer stops.
type ResultIterator interface {
	Results(ctx context.Context, query string, advanced bool) iter.Seq2[Record, error]
}

// LibrarySource consumes a ResultIterator.
//
// Deprecated: kept for parity with the earliest releases; ScrapeSource and
// APISource are the supported variants.
type LibrarySource struct {
	it     ResultIterator
	logger *slog.Logger
}

// NewLibrarySource wraps it.
func NewLibrarySource(it ResultIterator, logger *slog.Logger) *LibrarySource {
	if logger == nil {
		logger = slog.Default()
	}
	return &LibrarySource{it: it, logger: logger}
}

// Name implements Source.
func (s *LibrarySource) Name() Backend { return BackendLibrary }

// Search implements Source. It stops after opts.Limit records or when the
// iterator is exhausted; the first upstream error aborts the call.
func (s *LibrarySource) Search(ctx context.Context, query string, opts Options) ([]Record, error) {
	var records []Record
	if opts.Limit <= 0 {
		return records, nil
	}

	for rec, err := range s.it.Results(ctx, query, opts.Advanced) {
		if err != nil {
			return records, &SourceError{Backend: BackendLibrary, Query: query, Err: err}
		}
		rec.Rank = len(records) + 1
		records = append(records, rec)
		if len(records) >= opts.Limit {
			break
		}
	}

	s.logger.Debug("library iteration finished", "query", query, "records", len(records))
	return records, nil
}
