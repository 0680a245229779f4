package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the fee ledger.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	allocationTotal *prometheus.CounterVec
	generationRuns  prometheus.Counter
	generatedFees   prometheus.Counter
	generationSkips prometheus.Counter
	generationFails prometheus.Counter
}

// NewMetricsService registers the ledger's Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	allocationTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "credit_allocations_total",
		Help: "Credit allocation attempts by outcome",
	}, []string{"outcome"})

	generationRuns := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fee_generation_passes_total",
		Help: "Completed recurring fee generation passes",
	})

	generatedFees := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fees_generated_total",
		Help: "Fees created by the recurring generation scheduler",
	})

	generationSkips := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fee_generation_skips_total",
		Help: "Subscriptions skipped because the period was already generated",
	})

	generationFails := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fee_generation_failures_total",
		Help: "Subscriptions that failed during a generation pass",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, allocationTotal,
		generationRuns, generatedFees, generationSkips, generationFails, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		allocationTotal: allocationTotal,
		generationRuns:  generationRuns,
		generatedFees:   generatedFees,
		generationSkips: generationSkips,
		generationFails: generationFails,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordAllocation counts one allocation attempt by outcome.
func (m *MetricsService) RecordAllocation(outcome string) {
	if m == nil {
		return
	}
	m.allocationTotal.WithLabelValues(outcome).Inc()
}

// RecordGeneration counts the results of one scheduler pass.
func (m *MetricsService) RecordGeneration(generated, skipped, failed int) {
	if m == nil {
		return
	}
	m.generationRuns.Inc()
	m.generatedFees.Add(float64(generated))
	m.generationSkips.Add(float64(skipped))
	m.generationFails.Add(float64(failed))
}
