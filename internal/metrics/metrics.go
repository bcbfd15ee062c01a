// Package metrics exposes the Prometheus collectors of the ingestion service.
// Every recorder is nil-safe so components can run without metrics.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "optim"

// Metrics groups the collectors registered on one registry.
type Metrics struct {
	reg prometheus.Registerer

	files         *prometheus.CounterVec
	parsed        *prometheus.CounterVec
	persisted     prometheus.Counter
	providerCalls *prometheus.CounterVec
	fallbacks     *prometheus.CounterVec
	httpClient    *prometheus.HistogramVec
	httpServer    *prometheus.HistogramVec
}

// New registers every collector on reg. Pass prometheus.NewRegistry() in
// tests to avoid duplicate registration panics.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		reg: reg,
		files: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingested_files_total",
			Help:      "Number of ingested files by file type and status.",
		}, []string{"file_type", "status"}),
		parsed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parsed_transactions_total",
			Help:      "Number of parsed transactions by source.",
		}, []string{"source"}),
		persisted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persisted_transactions_total",
			Help:      "Number of newly inserted transactions.",
		}),
		providerCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classification_calls_total",
			Help:      "Number of classification provider calls by provider and outcome.",
		}, []string{"provider", "success"}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallbacks_total",
			Help:      "Number of degraded results by component.",
		}, []string{"component"}),
		httpClient: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "external_api_request_duration_seconds",
			Help:      "Duration of external API requests in seconds.",
			Buckets:   []float64{0.010, 0.100, 0.200, 0.500, 1, 2, 5, 10, 30, 60},
		}, []string{"service", "method", "response_code"}),
		httpServer: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of API requests in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "response_code"}),
	}

	reg.MustRegister(m.files, m.parsed, m.persisted, m.providerCalls, m.fallbacks, m.httpClient, m.httpServer)
	return m
}

// Registerer returns the registry the collectors live on.
func (m *Metrics) Registerer() prometheus.Registerer {
	return m.reg
}

func (m *Metrics) RecordFile(fileType, status string) {
	if m == nil {
		return
	}
	m.files.WithLabelValues(fileType, status).Inc()
}

func (m *Metrics) RecordParsed(source string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.parsed.WithLabelValues(source).Add(float64(n))
}

func (m *Metrics) RecordPersisted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.persisted.Add(float64(n))
}

func (m *Metrics) RecordProviderCall(provider string, success bool) {
	if m == nil {
		return
	}
	m.providerCalls.WithLabelValues(provider, fmt.Sprint(success)).Inc()
}

// RecordFallback counts a degraded result (identity classification, FX rate
// of 1, OCR miss).
func (m *Metrics) RecordFallback(component string) {
	if m == nil {
		return
	}
	m.fallbacks.WithLabelValues(component).Inc()
}

// RecordHTTP observes one outbound request. statusCode is 0 on transport errors.
func (m *Metrics) RecordHTTP(duration time.Duration, service, method string, statusCode int) {
	if m == nil {
		return
	}
	m.httpClient.WithLabelValues(service, method, fmt.Sprint(statusCode)).Observe(duration.Seconds())
}

// RecordRequest observes one served API request.
func (m *Metrics) RecordRequest(duration time.Duration, method, route string, statusCode int) {
	if m == nil {
		return
	}
	m.httpServer.WithLabelValues(method, route, fmt.Sprint(statusCode)).Observe(duration.Seconds())
}
