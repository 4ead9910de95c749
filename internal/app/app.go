// Package app wires a resolved configuration into a run: input checks, the
// connectivity probe, source selection, the pipeline and the exit code.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/FranksOps/dorker/internal/backoff"
	"github.com/FranksOps/dorker/internal/config"
	"github.com/FranksOps/dorker/internal/console"
	"github.com/FranksOps/dorker/internal/fingerprint"
	"github.com/FranksOps/dorker/internal/metrics"
	"github.com/FranksOps/dorker/internal/netcheck"
	"github.com/FranksOps/dorker/internal/pipeline"
	"github.com/FranksOps/dorker/internal/query"
	"github.com/FranksOps/dorker/internal/report"
	"github.com/FranksOps/dorker/internal/serp"
	"github.com/FranksOps/dorker/internal/sink"
	"github.com/FranksOps/dorker/pkg/httpclient"
	"github.com/FranksOps/dorker/pkg/proxy"
	"github.com/FranksOps/dorker/pkg/ratelimit"
	"github.com/FranksOps/dorker/pkg/useragent"
)

// Process exit codes.
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitInterrupted = 130
)

// apiPageInterval spaces API page requests within one query.
const apiPageInterval = time.Second

// Env carries the process-level collaborators of a run.
type Env struct {
	Console *console.Console
	Logger  *slog.Logger
	// Summary receives the run summary when one is requested.
	Summary io.Writer
}

func (e Env) withDefaults() Env {
	if e.Console == nil {
		e.Console = console.New(nil, nil, false)
	}
	if e.Logger == nil {
		e.Logger = slog.Default()
	}
	if e.Summary == nil {
		e.Summary = os.Stderr
	}
	return e
}

// Run executes one invocation and returns the process exit code. Startup
// failures (no query, missing batch file, failed probe, unusable source
// setup) return ExitFailure before any query is issued.
func Run(ctx context.Context, cfg config.SearchConfig, env Env) int {
	env = env.withDefaults()
	con, logger := env.Console, env.Logger

	var queries []string
	if cfg.BatchMode() {
		var err error
		queries, err = query.ReadBatch(cfg.DorkFile)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				con.Errorf("The file %s does not exist.", cfg.DorkFile)
			} else {
				con.Errorf("%v", err)
			}
			logger.Error("reading batch file failed", "path", cfg.DorkFile, "err", err)
			return ExitFailure
		}
	} else if err := query.Validate(cfg.Query); err != nil {
		con.Errorf("No query provided. Use -q to specify a search query.")
		return ExitFailure
	}

	if cfg.MetricsPort > 0 {
		srv, err := metrics.Start(cfg.MetricsPort, logger)
		if err != nil {
			con.Errorf("%v", err)
			return ExitFailure
		}
		defer srv.Stop(context.Background())
	}

	ua := useragent.Resolve(cfg.UserAgent, cfg.RandomUserAgent)

	probeClient, err := httpclient.New(httpclient.Config{Timeout: netcheck.MaxTimeout, UserAgent: ua})
	if err != nil {
		con.Errorf("%v", err)
		return ExitFailure
	}
	if !netcheck.Check(ctx, probeClient, cfg.Endpoints.Probe, netcheck.MaxTimeout, logger) {
		con.Errorf("No network connection. Please check your internet connection.")
		return ExitFailure
	}

	source, err := BuildSource(cfg, ua, logger)
	if err != nil {
		con.Errorf("%v", err)
		logger.Error("building result source failed", "err", err)
		return ExitFailure
	}

	var echo io.Writer
	if cfg.Display {
		echo = con.Out()
	}
	out, err := sink.New(sink.Config{Path: cfg.Output, Format: cfg.Format, Echo: echo})
	if err != nil {
		con.Errorf("%v", err)
		return ExitFailure
	}

	p, err := pipeline.New(pipeline.Config{
		Source:  source,
		Sink:    out,
		Backoff: backoff.New(cfg.Backoff),
		Options: serp.Options{Limit: cfg.Results, Advanced: cfg.Info},
		Console: con,
		Logger:  logger,
	})
	if err != nil {
		con.Errorf("%v", err)
		return ExitFailure
	}

	logger.Info("run starting", "backend", source.Name(), "batch", cfg.BatchMode(), "queries", max(len(queries), 1), "output", cfg.Output)

	var summary report.Summary
	var runErr error
	if cfg.BatchMode() {
		summary, runErr = p.RunBatch(ctx, queries)
	} else {
		var res report.QueryResult
		res, runErr = p.RunSingle(ctx, cfg.Query)
		summary = report.GenerateSummary([]report.QueryResult{res})
		summary.Interrupted = runErr != nil && ctx.Err() != nil
	}

	con.Saved(cfg.Output)

	if cfg.Summary != "" {
		if err := report.Write(env.Summary, cfg.Summary, summary); err != nil {
			logger.Error("writing summary failed", "err", err)
		}
	}

	switch {
	case runErr == nil:
		return ExitOK
	case ctx.Err() != nil:
		logger.Warn("run interrupted", "err", runErr)
		return ExitInterrupted
	default:
		return ExitFailure
	}
}

// BuildSource constructs the Source chosen by cfg.ResolveBackend.
func BuildSource(cfg config.SearchConfig, ua useragent.Picker, logger *slog.Logger) (serp.Source, error) {
	switch backend := cfg.ResolveBackend(); backend {
	case serp.BackendAPI:
		client, err := httpclient.New(httpclient.Config{Timeout: cfg.Timeout, UserAgent: ua})
		if err != nil {
			return nil, err
		}
		return serp.NewAPISource(serp.APIConfig{
			BaseURL:  cfg.Endpoints.API,
			Key:      cfg.APIKey,
			EngineID: cfg.EngineID,
			Client:   client,
			Pacer:    ratelimit.NewPacer(apiPageInterval, 0.5),
			Logger:   logger,
		})

	case serp.BackendLibrary:
		logger.Warn("the library backend is deprecated; use scrape or api")
		client, err := httpclient.New(httpclient.Config{Timeout: cfg.Timeout, UserAgent: ua, UseCookieJar: true})
		if err != nil {
			return nil, err
		}
		return serp.NewLibrarySource(&serp.DuckDuckGo{BaseURL: cfg.Endpoints.DuckDuckGo, Client: client}, logger), nil

	case serp.BackendScrape:
		var pool *proxy.Pool
		if cfg.ProxyFile != "" {
			pool = proxy.NewPool(proxy.Config{})
			if err := pool.LoadFile(cfg.ProxyFile); err != nil {
				return nil, fmt.Errorf("app: load proxies: %w", err)
			}
			logger.Info("proxy rotation enabled", "proxies", pool.Len())
		}

		transport, err := fingerprint.Transport(cfg.TLSProfile, fingerprint.Options{Proxy: proxy.FromRequest})
		if err != nil {
			return nil, err
		}
		client, err := httpclient.New(httpclient.Config{
			Timeout:      cfg.Timeout,
			Transport:    transport,
			UserAgent:    ua,
			UseCookieJar: true,
		})
		if err != nil {
			return nil, err
		}

		sel, err := cfg.ResultSelectors()
		if err != nil {
			return nil, err
		}
		return serp.NewScrapeSource(serp.ScrapeConfig{
			BaseURL:   cfg.Endpoints.Scrape,
			Client:    client,
			Selectors: sel,
			Proxies:   pool,
			Logger:    logger,
		})

	default:
		return nil, fmt.Errorf("app: unsupported backend %q", backend)
	}
}
