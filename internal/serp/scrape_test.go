package serp

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/FranksOps/dorker/pkg/httpclient"
	"github.com/FranksOps/dorker/pkg/proxy"
	"github.com/FranksOps/dorker/pkg/useragent"
)

func newScrapeSource(t *testing.T, baseURL string, ua useragent.Picker) *ScrapeSource {
	t.Helper()
	client, err := httpclient.New(httpclient.Config{Timeout: 2 * time.Second, UserAgent: ua})
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	src, err := NewScrapeSource(ScrapeConfig{BaseURL: baseURL, Client: client})
	if err != nil {
		t.Fatalf("source: %v", err)
	}
	return src
}

func TestScrapeSource_Success(t *testing.T) {
	var gotUA, gotQ, gotNum string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotQ = r.URL.Query().Get("q")
		gotNum = r.URL.Query().Get("num")
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body>
			<div class="g"><a href="https://example.com/1.pdf"><h3>One</h3></a><div class="VwiC3b">first</div></div>
			<div class="g"><a href="https://example.com/2.pdf"><h3>Two</h3></a><div class="VwiC3b">second</div></div>
			<div class="g"><a href="https://example.com/3.pdf"><h3>Three</h3></a></div>
		</body></html>`)
	}))
	defer ts.Close()

	src := newScrapeSource(t, ts.URL+"/search", useragent.Resolve("", false))
	records, err := src.Search(context.Background(), "site:example.com filetype:pdf", Options{Limit: 5, Advanced: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotUA != useragent.Default {
		t.Errorf("expected default UA, got %q", gotUA)
	}
	if gotQ != "site:example.com filetype:pdf" {
		t.Errorf("query not passed verbatim: %q", gotQ)
	}
	if gotNum != "5" {
		t.Errorf("expected num=5, got %q", gotNum)
	}

	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	if records[0].Shape != ShapeAdvanced || records[2].Shape != ShapeSimple {
		t.Errorf("unexpected shapes: %s, %s", records[0].Shape, records[2].Shape)
	}
}

func TestScrapeSource_DoesNotTruncate(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for i := 0; i < 4; i++ {
			fmt.Fprintf(w, `<div class="g"><a href="https://example.com/%d">x</a></div>`, i)
		}
	}))
	defer ts.Close()

	src := newScrapeSource(t, ts.URL, nil)
	records, err := src.Search(context.Background(), "q", Options{Limit: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 4 {
		t.Errorf("page results must not be truncated, got %d", len(records))
	}
}

func TestScrapeSource_UserAgentOverride(t *testing.T) {
	var gotUA string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
	}))
	defer ts.Close()

	src := newScrapeSource(t, ts.URL, useragent.Resolve("DorkBot/9", false))
	if _, err := src.Search(context.Background(), "q", Options{Limit: 1}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotUA != "DorkBot/9" {
		t.Errorf("expected override UA only, got %q", gotUA)
	}
}

func TestScrapeSource_NonSuccessStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `<div class="g"><a href="https://example.com">x</a></div>`)
	}))
	defer ts.Close()

	src := newScrapeSource(t, ts.URL, nil)
	records, err := src.Search(context.Background(), "q", Options{Limit: 10})
	if len(records) != 0 {
		t.Errorf("expected no records on error status, got %d", len(records))
	}

	var serr *SourceError
	if !errors.As(err, &serr) {
		t.Fatalf("expected *SourceError, got %v", err)
	}
	if serr.StatusCode != http.StatusInternalServerError || !errors.Is(err, ErrUpstreamStatus) {
		t.Errorf("unexpected error: %+v", serr)
	}
}

func TestScrapeSource_Blocked(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sorry/index" {
			http.Redirect(w, r, "/sorry/index?continue=x", http.StatusFound)
			return
		}
		fmt.Fprint(w, "Our systems have detected unusual traffic from your computer network.")
	}))
	defer ts.Close()

	src := newScrapeSource(t, ts.URL+"/search", nil)
	_, err := src.Search(context.Background(), "q", Options{Limit: 10})

	var serr *SourceError
	if !errors.As(err, &serr) || !errors.Is(err, ErrBlocked) {
		t.Fatalf("expected blocked SourceError, got %v", err)
	}
	if serr.Detector != "GoogleSorry" {
		t.Errorf("expected GoogleSorry detector, got %q", serr.Detector)
	}
}

func TestScrapeSource_QueryEchoIsNotABlock(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := html.EscapeString(r.URL.Query().Get("q"))
		fmt.Fprintf(w, `<html><head><title>%s - Google Search</title></head><body>`+
			`<input name="q" value="%s">`+
			`<div class="g"><a href="https://example.com/login"><h3>Login</h3></a></div></body></html>`, q, q)
	}))
	defer ts.Close()

	src := newScrapeSource(t, ts.URL+"/search", nil)
	records, err := src.Search(context.Background(), `intext:"g-recaptcha" inurl:login`, Options{Limit: 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 1 || records[0].URL != "https://example.com/login" {
		t.Errorf("expected the single result, got %+v", records)
	}
}

func TestScrapeSource_TransportError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := ts.URL
	ts.Close()

	src := newScrapeSource(t, url, nil)
	records, err := src.Search(context.Background(), "q", Options{Limit: 10})
	if len(records) != 0 {
		t.Errorf("expected no records, got %d", len(records))
	}
	var serr *SourceError
	if !errors.As(err, &serr) || serr.StatusCode != 0 {
		t.Fatalf("expected transport SourceError, got %v", err)
	}
}

func TestScrapeSource_ProxyMarkedOnBlock(t *testing.T) {
	// The "proxy" answers every request itself with a rate-limit page.
	proxySrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer proxySrv.Close()

	pool := proxy.NewPool(proxy.Config{MaxFailures: 1, Cooldown: time.Hour})
	if err := pool.Add(proxySrv.URL); err != nil {
		t.Fatalf("add proxy: %v", err)
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = proxy.FromRequest
	client, _ := httpclient.New(httpclient.Config{Timeout: 2 * time.Second, Transport: transport})

	src, err := NewScrapeSource(ScrapeConfig{BaseURL: "http://search.example/search", Client: client, Proxies: pool})
	if err != nil {
		t.Fatalf("source: %v", err)
	}

	_, err = src.Search(context.Background(), "q", Options{Limit: 10})
	if !errors.Is(err, ErrBlocked) {
		t.Fatalf("expected blocked error via proxy, got %v", err)
	}
	if pool.Next() != nil {
		t.Errorf("expected proxy to be rested after a block")
	}
}

func TestSourceError_Message(t *testing.T) {
	err := &SourceError{Backend: BackendAPI, Query: "site:x", StatusCode: 403, Err: ErrUpstreamStatus}
	want := `serp: api search "site:x" (status 403): upstream returned non-success status`
	if err.Error() != want {
		t.Errorf("unexpected message:\n got %s\nwant %s", err.Error(), want)
	}
}
