package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FranksOps/dorker/internal/backoff"
	"github.com/FranksOps/dorker/internal/config"
	"github.com/FranksOps/dorker/internal/console"
	"github.com/FranksOps/dorker/internal/fingerprint"
	"github.com/FranksOps/dorker/internal/report"
	"github.com/FranksOps/dorker/internal/serp"
	"github.com/FranksOps/dorker/internal/sink"
)

// upstream fakes the probe target, the results page and the JSON API.
type upstream struct {
	*httptest.Server
	probes   atomic.Int32
	searches atomic.Int32
	apiCalls atomic.Int32
	queries  chan string
}

func newUpstream(t *testing.T, links int) *upstream {
	t.Helper()
	u := &upstream{queries: make(chan string, 16)}
	u.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			u.probes.Add(1)
			w.WriteHeader(http.StatusOK)
		case "/search":
			u.searches.Add(1)
			u.queries <- r.URL.Query().Get("q")
			fmt.Fprint(w, "<html><body>")
			for i := 0; i < links; i++ {
				fmt.Fprintf(w, `<div class="g"><a href="https://example.com/doc%d.pdf"><h3>Doc %d</h3></a></div>`, i, i)
			}
			fmt.Fprint(w, "</body></html>")
		case "/customsearch/v1":
			u.apiCalls.Add(1)
			fmt.Fprint(w, `{"items":[{"title":"A","link":"https://a.example","snippet":"s","htmlSnippet":"<b>s</b>"}]}`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(u.Close)
	return u
}

func (u *upstream) config(t *testing.T) config.SearchConfig {
	t.Helper()
	return config.SearchConfig{
		Results:    5,
		Output:     filepath.Join(t.TempDir(), "sources.txt"),
		Format:     sink.FormatText,
		Backend:    config.BackendAuto,
		Timeout:    2 * time.Second,
		Selectors:  serp.DefaultSelectors,
		TLSProfile: fingerprint.ProfileGo,
		Endpoints: config.Endpoints{
			Scrape: u.URL + "/search",
			API:    u.URL + "/customsearch/v1",
			Probe:  u.URL + "/",
		},
		Backoff: backoff.Config{},
	}
}

type output struct {
	stdout, stderr bytes.Buffer
}

func (o *output) env() Env {
	return Env{
		Console: console.New(&o.stdout, &o.stderr, true),
		Logger:  slog.New(slog.NewTextHandler(&o.stderr, nil)),
		Summary: &o.stderr,
	}
}

// Scenario A: a single query, three links on the page.
func TestRun_SingleQuery(t *testing.T) {
	u := newUpstream(t, 3)
	cfg := u.config(t)
	cfg.Query = "site:example.com filetype:pdf"

	var out output
	code := Run(context.Background(), cfg, out.env())
	require.Equal(t, ExitOK, code, out.stderr.String())

	data, err := os.ReadFile(cfg.Output)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Equal(t, "Results for query: site:example.com filetype:pdf", lines[0])
	assert.Equal(t, 3, strings.Count(string(data), "\nSource: "))

	assert.Equal(t, "site:example.com filetype:pdf", <-u.queries)
	assert.Contains(t, out.stdout.String(), "Number of results found for query 'site:example.com filetype:pdf': 3")
	assert.Contains(t, out.stdout.String(), "Results saved to "+cfg.Output)
	assert.EqualValues(t, 1, u.probes.Load())
}

// Scenario B: a blank line and one valid query.
func TestRun_Batch(t *testing.T) {
	u := newUpstream(t, 2)
	cfg := u.config(t)
	cfg.DorkFile = filepath.Join(t.TempDir(), "dorks.txt")
	require.NoError(t, os.WriteFile(cfg.DorkFile, []byte("\n   \ninurl:admin\n"), 0600))

	var out output
	code := Run(context.Background(), cfg, out.env())
	require.Equal(t, ExitOK, code, out.stderr.String())

	assert.EqualValues(t, 1, u.searches.Load())
	assert.Equal(t, "inurl:admin", <-u.queries)

	data, _ := os.ReadFile(cfg.Output)
	assert.Equal(t, 1, strings.Count(string(data), "Results for query: "))
}

// Scenario C: an API key without an engine id stops before any request.
func TestExecute_PartialAPIConfig(t *testing.T) {
	u := newUpstream(t, 3)
	t.Setenv("DORKER_ENDPOINTS_PROBE", u.URL+"/")
	t.Setenv("DORKER_ENDPOINTS_SCRAPE", u.URL+"/search")

	var stdout, stderr bytes.Buffer
	code := Execute(context.Background(), []string{"-q", "site:example.com", "-a", "secret", "-o", filepath.Join(t.TempDir(), "o.txt")}, &stdout, &stderr)

	assert.Equal(t, ExitFailure, code)
	assert.Contains(t, stderr.String(), "api key and search engine id must be given together")
	assert.Zero(t, u.probes.Load()+u.searches.Load()+u.apiCalls.Load(), "no HTTP call may be made")
}

// Scenario D: the results page is unreachable.
func TestRun_SourceTransportError(t *testing.T) {
	u := newUpstream(t, 3)
	cfg := u.config(t)
	cfg.Query = "filetype:sql"
	cfg.Summary = report.FormatJSON
	cfg.Backoff = backoff.Config{FailureUnit: time.Millisecond, FailureSpread: 2}

	dead := httptest.NewServer(http.NotFoundHandler())
	cfg.Endpoints.Scrape = dead.URL + "/search"
	dead.Close()

	var out output
	code := Run(context.Background(), cfg, out.env())
	require.Equal(t, ExitOK, code)

	data, err := os.ReadFile(cfg.Output)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "Results for query: filetype:sql\n"))
	assert.NotContains(t, string(data), "Source")

	assert.Contains(t, out.stderr.String(), "An error occurred during the search")
	assert.Contains(t, out.stderr.String(), "source search failed")

	// The JSON summary is the last thing written to stderr.
	idx := strings.Index(out.stderr.String(), "{\n")
	require.GreaterOrEqual(t, idx, 0)
	var summary report.Summary
	require.NoError(t, json.Unmarshal([]byte(out.stderr.String()[idx:]), &summary))
	assert.Equal(t, 1, summary.Failed)
	assert.GreaterOrEqual(t, summary.Queries[0].Backoff, time.Duration(0))
}

func TestRun_NoQuery(t *testing.T) {
	u := newUpstream(t, 3)
	cfg := u.config(t)
	cfg.Query = "  "

	var out output
	assert.Equal(t, ExitFailure, Run(context.Background(), cfg, out.env()))
	assert.Contains(t, out.stderr.String(), "No query provided")
	assert.Zero(t, u.probes.Load())
}

func TestRun_MissingBatchFile(t *testing.T) {
	u := newUpstream(t, 3)
	cfg := u.config(t)
	cfg.DorkFile = filepath.Join(t.TempDir(), "missing.txt")

	var out output
	assert.Equal(t, ExitFailure, Run(context.Background(), cfg, out.env()))
	assert.Contains(t, out.stderr.String(), "does not exist")
	assert.Zero(t, u.probes.Load())
}

func TestRun_ProbeFails(t *testing.T) {
	u := newUpstream(t, 3)
	cfg := u.config(t)
	cfg.Query = "x"
	cfg.Endpoints.Probe = u.URL + "/down"

	var out output
	assert.Equal(t, ExitFailure, Run(context.Background(), cfg, out.env()))
	assert.Contains(t, out.stderr.String(), "No network connection")
	assert.Zero(t, u.searches.Load())
}

func TestRun_APIBackend(t *testing.T) {
	u := newUpstream(t, 0)
	cfg := u.config(t)
	cfg.Query = "inurl:login"
	cfg.APIKey = "k"
	cfg.EngineID = "e"
	cfg.Info = true

	var out output
	require.Equal(t, ExitOK, Run(context.Background(), cfg, out.env()), out.stderr.String())
	assert.EqualValues(t, 1, u.apiCalls.Load())
	assert.Zero(t, u.searches.Load())

	data, _ := os.ReadFile(cfg.Output)
	assert.Contains(t, string(data), "Source 1: Title: A | Long Description: N/A | Short Description: s | HTML Snippet: <b>s</b> | URL: https://a.example")
}

func TestRun_Interrupted(t *testing.T) {
	u := newUpstream(t, 1)
	cfg := u.config(t)
	cfg.DorkFile = filepath.Join(t.TempDir(), "dorks.txt")
	require.NoError(t, os.WriteFile(cfg.DorkFile, []byte("one\ntwo\nthree\n"), 0600))
	cfg.Backoff = backoff.Config{MinDelay: time.Hour, MaxDelay: time.Hour}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-u.queries
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	var out output
	assert.Equal(t, ExitInterrupted, Run(ctx, cfg, out.env()))
	assert.EqualValues(t, 1, u.searches.Load())
}

func TestExecute_Flags(t *testing.T) {
	u := newUpstream(t, 2)
	t.Setenv("DORKER_ENDPOINTS_PROBE", u.URL+"/")
	t.Setenv("DORKER_ENDPOINTS_SCRAPE", u.URL+"/search")
	t.Setenv("DORKER_BACKOFF_MIN_DELAY", "0s")
	t.Setenv("DORKER_BACKOFF_MAX_DELAY", "0s")

	dir := t.TempDir()
	dorks := filepath.Join(dir, "dorks.txt")
	require.NoError(t, os.WriteFile(dorks, []byte("a\nb\n"), 0600))
	outPath := filepath.Join(dir, "out.jsonl")

	var stdout, stderr bytes.Buffer
	code := Execute(context.Background(), []string{"-df", dorks, "-o", outPath, "--format", "jsonl", "-d", "--no-color"}, &stdout, &stderr)
	require.Equal(t, ExitOK, code, stderr.String())

	assert.EqualValues(t, 2, u.searches.Load())
	data, _ := os.ReadFile(outPath)
	assert.Equal(t, 2+2*2, strings.Count(string(data), "\n"))
	assert.Contains(t, stdout.String(), "Source: https://example.com/doc0.pdf")
}

func TestExecute_UnknownFlag(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Equal(t, ExitFailure, Execute(context.Background(), []string{"--nope"}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "unknown flag")
}

func TestBuildSource(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	tests := []struct {
		cfg  config.SearchConfig
		want serp.Backend
	}{
		{config.SearchConfig{Selectors: serp.DefaultSelectors, TLSProfile: fingerprint.ProfileChrome}, serp.BackendScrape},
		{config.SearchConfig{APIKey: "k", EngineID: "e"}, serp.BackendAPI},
		{config.SearchConfig{Backend: config.BackendLibrary}, serp.BackendLibrary},
	}
	for _, tt := range tests {
		src, err := BuildSource(tt.cfg, nil, logger)
		require.NoError(t, err)
		assert.Equal(t, tt.want, src.Name())
	}

	_, err := BuildSource(config.SearchConfig{ProxyFile: filepath.Join(t.TempDir(), "none.txt")}, nil, logger)
	assert.Error(t, err)
}
