package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"taxray/internal/logging"
)

// PrometheusBridge exposes run metrics on an HTTP endpoint for scraping.
type PrometheusBridge struct {
	registry *prometheus.Registry
	server   *http.Server

	modelRuns       *prometheus.CounterVec
	modelTokens     *prometheus.CounterVec
	modelDuration   *prometheus.HistogramVec
	tokensPerSecond *prometheus.GaugeVec
	queryDuration   *prometheus.HistogramVec
	errors          *prometheus.CounterVec
}

// NewPrometheusBridge creates the bridge and registers its collectors.
func NewPrometheusBridge() *PrometheusBridge {
	registry := prometheus.NewRegistry()

	b := &PrometheusBridge{
		registry: registry,
		modelRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taxray_model_runs_total",
			Help: "Total number of model runs",
		}, []string{"model_name", "success"}),
		modelTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taxray_model_tokens_total",
			Help: "Total number of tokens processed",
		}, []string{"model_name", "token_type"}),
		modelDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "taxray_model_duration_seconds",
			Help:    "Duration of model runs in seconds",
			Buckets: []float64{0.1, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0, 60.0, 120.0, 300.0},
		}, []string{"model_name"}),
		tokensPerSecond: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "taxray_tokens_per_second",
			Help: "Tokens processed per second",
		}, []string{"model_name"}),
		queryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "taxray_query_duration_seconds",
			Help:    "Duration of retrieval queries in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 2.0, 5.0},
		}, []string{"query_type"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taxray_errors_total",
			Help: "Total number of errors",
		}, []string{"component", "error_type"}),
	}

	registry.MustRegister(b.modelRuns, b.modelTokens, b.modelDuration,
		b.tokensPerSecond, b.queryDuration, b.errors)
	return b
}

// Start serves /metrics on the given port until Stop is called.
func (b *PrometheusBridge) Start(port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(b.registry, promhttp.HandlerOpts{}))

	b.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		logging.Metrics("Prometheus metrics server listening on :%d", port)
		if err := b.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Get(logging.CategoryMetrics).Error("Prometheus server failed: %v", err)
		}
	}()
	return nil
}

// Stop shuts the metrics server down.
func (b *PrometheusBridge) Stop(ctx context.Context) error {
	if b.server == nil {
		return nil
	}
	return b.server.Shutdown(ctx)
}

// Handler returns the scrape handler, for embedding in another server.
func (b *PrometheusBridge) Handler() http.Handler {
	return promhttp.HandlerFor(b.registry, promhttp.HandlerOpts{})
}

// RecordModelRun updates the run counters and histograms.
func (b *PrometheusBridge) RecordModelRun(model string, promptTokens, completionTokens int, duration time.Duration, success bool) {
	successStr := "false"
	if success {
		successStr = "true"
	}
	b.modelRuns.WithLabelValues(model, successStr).Inc()
	b.modelTokens.WithLabelValues(model, "prompt").Add(float64(promptTokens))
	b.modelTokens.WithLabelValues(model, "completion").Add(float64(completionTokens))
	b.modelDuration.WithLabelValues(model).Observe(duration.Seconds())

	if secs := duration.Seconds(); secs > 0 {
		b.tokensPerSecond.WithLabelValues(model).Set(float64(promptTokens+completionTokens) / secs)
	}
}

// RecordQuery updates the query duration histogram.
func (b *PrometheusBridge) RecordQuery(queryType string, duration time.Duration) {
	b.queryDuration.WithLabelValues(queryType).Observe(duration.Seconds())
}

// RecordError increments the error counter.
func (b *PrometheusBridge) RecordError(component, errorType string) {
	b.errors.WithLabelValues(component, errorType).Inc()
}
