package metrics

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	FetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviewrank_fetches_total",
			Help: "Total HTTP fetches executed by the scraping adapters",
		},
		[]string{"host", "status", "blocked"},
	)

	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reviewrank_fetch_duration_seconds",
			Help:    "Duration of HTTP fetches in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"host"},
	)

	ProxyFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviewrank_proxy_failures_total",
			Help: "Total proxy failures during fetches",
		},
		[]string{"proxy_url"},
	)

	ItemsScraped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviewrank_items_scraped_total",
			Help: "Items returned by source adapters after normalization",
		},
		[]string{"source"},
	)

	AdapterErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviewrank_adapter_errors_total",
			Help: "Adapter searches that ended with a contained error",
		},
		[]string{"source"},
	)

	AnalysisFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviewrank_analysis_fallbacks_total",
			Help: "Item analyses that degraded to the neutral fallback",
		},
		[]string{"reason"},
	)

	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviewrank_runs_total",
			Help: "Pipeline runs by terminal status",
		},
		[]string{"status"},
	)

	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reviewrank_run_duration_seconds",
			Help:    "End-to-end duration of pipeline runs in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)

	CompletionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reviewrank_completion_duration_seconds",
			Help:    "Latency of text-backend completion calls in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30},
		},
	)
)

// RecordFetch updates the fetch metrics for one attempt.
func RecordFetch(host string, statusCode int, errored, blocked bool, duration time.Duration) {
	statusStr := strconv.Itoa(statusCode)
	if errored {
		statusStr = "error"
	}

	blockedStr := "false"
	if blocked {
		blockedStr = "true"
	}

	FetchesTotal.WithLabelValues(host, statusStr, blockedStr).Inc()
	FetchDuration.WithLabelValues(host).Observe(duration.Seconds())
}

// RecordRun updates the run metrics for one finished pipeline run.
func RecordRun(status string, duration time.Duration) {
	RunsTotal.WithLabelValues(status).Inc()
	RunDuration.Observe(duration.Seconds())
}

// Server encapsulates an HTTP server exposing /metrics.
type Server struct {
	srv *http.Server
}

// Start begins listening on the specified port and exposes /metrics.
func Start(port int) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("metrics server failed: %v\n", err)
		}
	}()

	return &Server{srv: srv}
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
