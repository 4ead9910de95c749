// Package pipeline drives queries through a source, the output sink and the
// backoff controller, one query at a time.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/FranksOps/dorker/internal/backoff"
	"github.com/FranksOps/dorker/internal/console"
	"github.com/FranksOps/dorker/internal/metrics"
	"github.com/FranksOps/dorker/internal/query"
	"github.com/FranksOps/dorker/internal/report"
	"github.com/FranksOps/dorker/internal/serp"
	"github.com/FranksOps/dorker/internal/sink"
)

// Config wires the stages together.
type Config struct {
	Source  serp.Source
	Sink    sink.Sink
	Backoff *backoff.Controller
	Options serp.Options
	Console *console.Console
	Logger  *slog.Logger
}

// Pipeline runs queries sequentially: validate, search, write, report the
// count, back off.
type Pipeline struct {
	source  serp.Source
	sink    sink.Sink
	backoff *backoff.Controller
	opts    serp.Options
	console *console.Console
	logger  *slog.Logger

	newID func() string
	now   func() time.Time
}

// New validates cfg. Backoff, Console and Logger are optional.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Source == nil {
		return nil, errors.New("pipeline: source is nil")
	}
	if cfg.Sink == nil {
		return nil, errors.New("pipeline: sink is nil")
	}
	if cfg.Backoff == nil {
		cfg.Backoff = backoff.New(backoff.Config{})
	}
	if cfg.Console == nil {
		cfg.Console = console.Discard()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Pipeline{
		source:  cfg.Source,
		sink:    cfg.Sink,
		backoff: cfg.Backoff,
		opts:    cfg.Options,
		console: cfg.Console,
		logger:  cfg.Logger,
		newID:   uuid.NewString,
		now:     time.Now,
	}, nil
}

// RunSingle processes one query. An invalid query is returned as an error
// before anything is searched or written. A failing source is not an error:
// it is logged, the header is still written and the failure pause applies.
// The returned error is otherwise only ever ctx's error, once ctx has ended.
func (p *Pipeline) RunSingle(ctx context.Context, q string) (report.QueryResult, error) {
	if err := query.Validate(q); err != nil {
		return report.QueryResult{Query: q, Outcome: report.OutcomeSkipped, Error: err.Error(), StartedAt: p.now()}, err
	}
	return p.run(ctx, q, false)
}

// RunBatch processes queries in order. Invalid entries are logged and
// skipped. When ctx ends the batch stops early, the summary is marked
// interrupted and ctx.Err() is returned alongside it.
func (p *Pipeline) RunBatch(ctx context.Context, queries []string) (report.Summary, error) {
	results := make([]report.QueryResult, 0, len(queries))
	var runErr error

	for i, q := range queries {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}

		if err := query.Validate(q); err != nil {
			p.logger.Warn("skipping invalid query", "line", i+1, "err", err)
			p.console.Errorf("%v", err)
			results = append(results, report.QueryResult{Query: q, Outcome: report.OutcomeSkipped, Error: err.Error(), StartedAt: p.now()})
			continue
		}

		res, err := p.run(ctx, q, i < len(queries)-1)
		results = append(results, res)
		if err != nil {
			runErr = err
			break
		}
	}

	summary := report.GenerateSummary(results)
	if runErr != nil {
		summary.Interrupted = true
		p.logger.Warn("batch interrupted", "processed", len(results), "total", len(queries), "err", runErr)
	}
	return summary, runErr
}

func (p *Pipeline) run(ctx context.Context, q string, hasNext bool) (report.QueryResult, error) {
	backend := p.source.Name()
	res := report.QueryResult{
		ID:        p.newID(),
		Query:     q,
		Backend:   backend,
		Outcome:   report.OutcomeSuccess,
		StartedAt: p.now(),
	}
	logger := p.logger.With("query", q, "query_id", res.ID, "backend", backend)

	records, srcErr := p.source.Search(ctx, q, p.opts)
	elapsed := p.now().Sub(res.StartedAt)
	metrics.RecordSearch(backend, records, elapsed, srcErr)

	if srcErr != nil {
		res.Outcome = report.OutcomeFailed
		res.Error = srcErr.Error()
		attrs := []any{"records", len(records), "err", srcErr}
		var serr *serp.SourceError
		if errors.As(srcErr, &serr) {
			res.StatusCode = serr.StatusCode
			res.Detector = serr.Detector
			attrs = append(attrs, "status", serr.StatusCode, "detector", serr.Detector)
		}
		logger.Error("source search failed", attrs...)
		p.console.Errorf("An error occurred during the search: %v", srcErr)
	}

	n, sinkErr := p.sink.Append(sink.Header{ID: res.ID, Query: q, Backend: backend, Time: res.StartedAt}, records)
	res.Records = n
	if sinkErr != nil {
		res.Outcome = report.OutcomeFailed
		res.Error = errors.Join(srcErr, sinkErr).Error()
		logger.Error("writing results failed", "records", len(records), "written", n, "err", sinkErr)
		p.console.Errorf("%v", sinkErr)
	}

	p.console.Count(q, n)
	logger.Info("query processed", "records", n, "outcome", res.Outcome, "elapsed", elapsed)

	outcome := backoff.Success
	if srcErr != nil {
		outcome = backoff.Failure
	}
	delay := p.backoff.Delay(outcome, hasNext)
	res.Backoff = delay
	res.Duration = p.now().Sub(res.StartedAt)
	if err := ctx.Err(); err != nil {
		return res, fmt.Errorf("pipeline: interrupted: %w", err)
	}
	if delay <= 0 {
		return res, nil
	}

	metrics.RecordBackoff(outcome.String(), delay)
	if outcome == backoff.Failure {
		p.console.Cooldown(delay)
	}
	logger.Debug("backing off", "delay", delay, "reason", outcome, "failures", p.backoff.Failures())

	if err := p.backoff.Sleep(ctx, delay); err != nil {
		return res, fmt.Errorf("pipeline: backoff interrupted: %w", err)
	}
	return res, nil
}
