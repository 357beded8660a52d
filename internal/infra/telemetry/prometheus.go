package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is what the gateway layers observe against.
type Metrics interface {
	ObserveBackendCall(category string, duration time.Duration, err error)
	ObserveBreakerTransition(category, from, to string)
	SetBreakerState(category string, open bool)
	ObserveHTTPRequest(method, route string, status int, duration time.Duration)
	SetCachedServers(count int)
}

type PrometheusMetrics struct {
	backendCallDuration *prometheus.HistogramVec
	breakerTransitions  *prometheus.CounterVec
	breakerOpen         *prometheus.GaugeVec
	httpDuration        *prometheus.HistogramVec
	cachedServers       prometheus.Gauge
}

func NewPrometheusMetrics(registerer prometheus.Registerer) *PrometheusMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registerer)

	return &PrometheusMetrics{
		backendCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mcpgw_backend_call_duration_seconds",
				Help:    "Duration of backend capability calls in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"category", "status"},
		),
		breakerTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mcpgw_breaker_transitions_total",
				Help: "Total number of circuit breaker state transitions",
			},
			[]string{"category", "from", "to"},
		),
		breakerOpen: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mcpgw_breaker_open",
				Help: "Whether the circuit breaker for a category is open (1) or not (0)",
			},
			[]string{"category"},
		),
		httpDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mcpgw_http_request_duration_seconds",
				Help:    "Duration of gateway HTTP requests in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "route", "status"},
		),
		cachedServers: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "mcpgw_cached_protocol_servers",
				Help: "Current number of cached protocol server instances",
			},
		),
	}
}

func (p *PrometheusMetrics) ObserveBackendCall(category string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	p.backendCallDuration.WithLabelValues(category, status).Observe(duration.Seconds())
}

func (p *PrometheusMetrics) ObserveBreakerTransition(category, from, to string) {
	p.breakerTransitions.WithLabelValues(category, from, to).Inc()
}

func (p *PrometheusMetrics) SetBreakerState(category string, open bool) {
	value := 0.0
	if open {
		value = 1.0
	}
	p.breakerOpen.WithLabelValues(category).Set(value)
}

func (p *PrometheusMetrics) ObserveHTTPRequest(method, route string, status int, duration time.Duration) {
	p.httpDuration.WithLabelValues(method, route, statusLabel(status)).Observe(duration.Seconds())
}

func (p *PrometheusMetrics) SetCachedServers(count int) {
	p.cachedServers.Set(float64(count))
}

func statusLabel(status int) string {
	switch {
	case status < 200:
		return "1xx"
	case status < 300:
		return "2xx"
	case status < 400:
		return "3xx"
	case status < 500:
		return "4xx"
	default:
		return "5xx"
	}
}

// NopMetrics discards every observation.
type NopMetrics struct{}

func (NopMetrics) ObserveBackendCall(string, time.Duration, error) {}

func (NopMetrics) ObserveBreakerTransition(string, string, string) {}

func (NopMetrics) SetBreakerState(string, bool) {}

func (NopMetrics) ObserveHTTPRequest(string, string, int, time.Duration) {}

func (NopMetrics) SetCachedServers(int) {}
