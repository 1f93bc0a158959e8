// Package metrics holds the Prometheus collectors and the /metrics server.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	StageSites = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "prospector_stage_sites",
			Help: "Number of sites surviving each pipeline stage in the current run",
		},
		[]string{"stage"},
	)

	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prospector_cache_lookups_total",
			Help: "Cache lookups by namespace and result (hit, miss, bypass)",
		},
		[]string{"namespace", "result"},
	)

	ProviderRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prospector_provider_requests_total",
			Help: "Live requests sent to enrichment providers",
		},
		[]string{"provider", "operation", "status"},
	)

	FetchRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prospector_fetch_requests_total",
			Help: "Total number of pages fetched by the contact crawler",
		},
		[]string{"domain", "status", "detected", "detection_src"},
	)

	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "prospector_fetch_duration_seconds",
			Help:    "Duration of contact crawler fetches in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"domain"},
	)

	FetchBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prospector_fetch_bytes_total",
			Help: "Total bytes downloaded by the contact crawler",
		},
		[]string{"domain"},
	)

	ProxyFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prospector_proxy_failures_total",
			Help: "Total number of proxy failures during contact crawling",
		},
		[]string{"proxy_url"},
	)
)

// Fetch is the subset of a crawled page the fetch metrics need.
type Fetch struct {
	StatusCode   int
	Failed       bool
	DetectedBot  bool
	DetectionSrc string
	Duration     time.Duration
	Bytes        int
}

// RecordFetch updates the crawler metrics for one fetched page.
func RecordFetch(domain string, f Fetch) {
	detectedStr := "false"
	if f.DetectedBot {
		detectedStr = "true"
	}

	statusStr := strconv.Itoa(f.StatusCode)
	if f.Failed {
		statusStr = "error"
	}

	FetchRequestsTotal.WithLabelValues(domain, statusStr, detectedStr, f.DetectionSrc).Inc()
	FetchDuration.WithLabelValues(domain).Observe(f.Duration.Seconds())
	FetchBytesTotal.WithLabelValues(domain).Add(float64(f.Bytes))
}

// RecordProvider counts one live provider request. status is the HTTP status
// code, or 0 when the request never got a response.
func RecordProvider(provider, operation string, status int) {
	statusStr := strconv.Itoa(status)
	if status == 0 {
		statusStr = "error"
	}
	ProviderRequests.WithLabelValues(provider, operation, statusStr).Inc()
}

// Server serves /metrics for Prometheus to scrape.
type Server struct {
	srv *http.Server
	ln  net.Listener
}

// Start listens on port (0 picks a free one) and serves /metrics in the
// background. Bind errors are returned; later serve errors are logged.
func Start(port int, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "err", err)
		}
	}()
	logger.Info("serving metrics", "addr", ln.Addr().String())

	return &Server{srv: srv, ln: ln}, nil
}

// Addr returns the address the server listens on.
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
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
