package utils

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Tracks performance metrics across the system
type MetricsCollector struct {
	registry *prometheus.Registry

	requests        prometheus.Counter
	errors          *prometheus.CounterVec
	operationTimes  *prometheus.HistogramVec
	conflictRetries *prometheus.CounterVec
	tierChanges     *prometheus.CounterVec

	systemStartTime time.Time
}

func NewMetricsCollector() *MetricsCollector {
	mc := &MetricsCollector{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "devfeed_requests_total",
			Help: "Total number of engine requests",
		}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "devfeed_errors_total",
			Help: "Total number of failed engine requests by error code",
		}, []string{"code"}),
		operationTimes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "devfeed_operation_duration_seconds",
			Help:    "Duration of engagement, graph and feed operations in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"operation"}),
		conflictRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "devfeed_conflict_retries_total",
			Help: "Transactions re-executed after a store conflict",
		}, []string{"operation"}),
		tierChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "devfeed_tier_changes_total",
			Help: "Number of users moved into each tier",
		}, []string{"tier"}),
		systemStartTime: time.Now(),
	}

	mc.registry.MustRegister(mc.requests, mc.errors, mc.operationTimes, mc.conflictRetries, mc.tierChanges)
	return mc
}

func (mc *MetricsCollector) IncrementRequests() {
	mc.requests.Inc()
}

func (mc *MetricsCollector) IncrementErrors(code string) {
	mc.errors.WithLabelValues(code).Inc()
}

func (mc *MetricsCollector) AddOperationLatency(operationName string, duration time.Duration) {
	mc.operationTimes.WithLabelValues(operationName).Observe(duration.Seconds())
}

func (mc *MetricsCollector) IncrementConflictRetries(operationName string) {
	mc.conflictRetries.WithLabelValues(operationName).Inc()
}

func (mc *MetricsCollector) RecordTierChange(tier string) {
	mc.tierChanges.WithLabelValues(tier).Inc()
}

func (mc *MetricsCollector) Uptime() time.Duration {
	return time.Since(mc.systemStartTime)
}

// Registry exposes the underlying registry, mainly for tests.
func (mc *MetricsCollector) Registry() *prometheus.Registry {
	return mc.registry
}

// Handler serves the collected metrics in the prometheus exposition format.
func (mc *MetricsCollector) Handler() http.Handler {
	return promhttp.HandlerFor(mc.registry, promhttp.HandlerOpts{})
}

// CounterTotal sums every series of the named counter, optionally restricted
// to series carrying label=value.
func (mc *MetricsCollector) CounterTotal(name, label, value string) float64 {
	families, err := mc.registry.Gather()
	if err != nil {
		return 0
	}
	var total float64
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
	series:
		for _, m := range family.GetMetric() {
			if label != "" {
				for _, lp := range m.GetLabel() {
					if lp.GetName() == label && lp.GetValue() != value {
						continue series
					}
				}
			}
			total += m.GetCounter().GetValue()
		}
	}
	return total
}
