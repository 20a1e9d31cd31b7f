// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Scan metrics
	ScanRunsTotal       *prometheus.CounterVec
	ScanDuration        prometheus.Histogram
	UniverseSize        prometheus.Gauge
	EligibleTickers     prometheus.Gauge
	CandidatesScored    prometheus.Counter
	ProviderCallErrors  *prometheus.CounterVec
	ProviderCallLatency *prometheus.HistogramVec

	// Execution metrics
	PaperOrdersTotal *prometheus.CounterVec
	LiveOrdersTotal  *prometheus.CounterVec
	PaperNAV         prometheus.Gauge
	LiveTotalAsset   prometheus.Gauge
	LiveRunStatus    *prometheus.CounterVec

	// Feedback metrics
	OutcomesRecorded   *prometheus.CounterVec
	TunerRunsTotal     *prometheus.CounterVec
	RegimeChangesTotal *prometheus.CounterVec
	LabSearchesTotal   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulScan    prometheus.Gauge
	LastSuccessfulNightly prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "krx_momentum_lab"
	}

	return &Metrics{
		// Scan metrics
		ScanRunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "runs_total",
			Help:      "Total number of hourly scan runs by status",
		}, []string{"status"}),
		ScanDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "duration_seconds",
			Help:      "Hourly scan duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}),
		UniverseSize: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "universe_size",
			Help:      "Number of tickers resolved from the universe spec",
		}),
		EligibleTickers: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "eligible_tickers",
			Help:      "Number of tickers passing the eligibility filters",
		}),
		CandidatesScored: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "candidates_scored_total",
			Help:      "Total number of candidates scored",
		}),
		ProviderCallErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "call_errors_total",
			Help:      "Total number of market data provider errors by call",
		}, []string{"call"}),
		ProviderCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "call_latency_seconds",
			Help:      "Market data provider call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"call"}),

		// Execution metrics
		PaperOrdersTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "paper",
			Name:      "orders_total",
			Help:      "Total number of paper orders by side",
		}, []string{"side"}),
		LiveOrdersTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "live",
			Name:      "orders_total",
			Help:      "Total number of live order attempts by side and status",
		}, []string{"side", "status"}),
		PaperNAV: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "paper",
			Name:      "nav_krw",
			Help:      "Latest paper account net asset value in KRW",
		}),
		LiveTotalAsset: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "live",
			Name:      "total_asset_krw",
			Help:      "Latest live account total asset in KRW",
		}),
		LiveRunStatus: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "live",
			Name:      "run_status_total",
			Help:      "Total number of live execution passes by outcome status",
		}, []string{"status"}),

		// Feedback metrics
		OutcomesRecorded: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feedback",
			Name:      "outcomes_recorded_total",
			Help:      "Total number of candidate outcomes recorded by horizon",
		}, []string{"horizon"}),
		TunerRunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feedback",
			Name:      "tuner_runs_total",
			Help:      "Total number of tuner passes by status",
		}, []string{"status"}),
		RegimeChangesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feedback",
			Name:      "regime_changes_total",
			Help:      "Total number of regime decisions by resulting regime",
		}, []string{"regime"}),
		LabSearchesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feedback",
			Name:      "lab_searches_total",
			Help:      "Total number of strategy lab searches by status",
		}, []string{"status"}),

		// Health metrics
		LastSuccessfulScan: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_scan_timestamp",
			Help:      "Unix timestamp of last successful hourly scan",
		}),
		LastSuccessfulNightly: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_nightly_timestamp",
			Help:      "Unix timestamp of last successful nightly batch",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordScan records one hourly scan pass.
func RecordScan(status string, duration time.Duration) {
	DefaultMetrics.ScanRunsTotal.WithLabelValues(status).Inc()
	DefaultMetrics.ScanDuration.Observe(duration.Seconds())
	if status == "ok" {
		DefaultMetrics.LastSuccessfulScan.Set(float64(time.Now().Unix()))
	}
}

// RecordProviderCall records a market data call's latency and error.
func RecordProviderCall(call string, seconds float64, err error) {
	DefaultMetrics.ProviderCallLatency.WithLabelValues(call).Observe(seconds)
	if err != nil {
		DefaultMetrics.ProviderCallErrors.WithLabelValues(call).Inc()
	}
}

// RecordOutcome increments the recorded-outcomes counter.
func RecordOutcome(horizon string) {
	DefaultMetrics.OutcomesRecorded.WithLabelValues(horizon).Inc()
}

// Serve exposes /metrics on addr until ctx is cancelled. A blank addr
// disables the listener.
func Serve(ctx context.Context, addr string, logger *log.Logger) {
	if addr == "" {
		return
	}
	if logger == nil {
		logger = log.Default()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Printf("metrics: listener %s failed: %v", addr, err)
		}
	}()
}
