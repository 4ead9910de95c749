package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/FranksOps/dorker/internal/serp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	QueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dorker_queries_total",
			Help: "Total number of queries issued, by backend and outcome",
		},
		[]string{"backend", "outcome"},
	)

	RecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dorker_records_total",
			Help: "Total number of result records returned by the sources",
		},
		[]string{"backend", "shape"},
	)

	SourceDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dorker_source_duration_seconds",
			Help:    "Duration of source search calls in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"backend"},
	)

	BackoffSeconds = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dorker_backoff_seconds",
			Help: "Total seconds spent in backoff pauses",
		},
		[]string{"reason"},
	)

	BlockedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dorker_blocked_total",
			Help: "Total number of searches answered with a block or challenge page",
		},
		[]string{"detector"},
	)
)

// RecordSearch updates the metrics for one Source.Search call.
func RecordSearch(backend serp.Backend, records []serp.Record, d time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
		var serr *serp.SourceError
		if errors.As(err, &serr) && serr.Detector != "" {
			BlockedTotal.WithLabelValues(serr.Detector).Inc()
		}
	}

	QueriesTotal.WithLabelValues(string(backend), outcome).Inc()
	SourceDuration.WithLabelValues(string(backend)).Observe(d.Seconds())
	for _, r := range records {
		RecordsTotal.WithLabelValues(string(backend), r.Shape.String()).Inc()
	}
}

// RecordBackoff adds a pause to the backoff total.
func RecordBackoff(reason string, d time.Duration) {
	if d <= 0 {
		return
	}
	BackoffSeconds.WithLabelValues(reason).Add(d.Seconds())
}

// Server encapsulates an HTTP server for Prometheus metrics.
type Server struct {
	srv *http.Server
	ln  net.Listener
}

// Start listens on port and exposes /metrics until Stop. Port 0 picks a
// free port.
func Start(port int, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("metrics: listen: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "err", err)
		}
	}()

	logger.Info("metrics listener started", "addr", ln.Addr().String())
	return &Server{srv: srv, ln: ln}, nil
}

// Addr returns the listening address.
func (s *Server) Addr() string {
	if s == nil || s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	if s == nil || s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
