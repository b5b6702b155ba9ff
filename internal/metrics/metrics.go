// internal/metrics/metrics.go
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the conflict engine's prometheus metrics. A nil *Collector
// is valid and records nothing.
type Collector struct {
	registry *prometheus.Registry

	detected        prometheus.Counter
	autoMerge       *prometheus.CounterVec
	resolved        *prometheus.CounterVec
	resolveFailures prometheus.Counter
	writes          prometheus.Counter
	active          prometheus.Gauge
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		detected: factory.NewCounter(prometheus.CounterOpts{
			Name: "concord_conflicts_detected_total",
			Help: "Total number of version mismatches detected",
		}),
		autoMerge: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "concord_automerge_total",
			Help: "Auto-merge attempts by outcome",
		}, []string{"outcome"}),
		resolved: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "concord_conflicts_resolved_total",
			Help: "Resolved conflicts by strategy",
		}, []string{"strategy"}),
		resolveFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "concord_resolve_persist_failures_total",
			Help: "Resolutions rolled back because the store write failed",
		}),
		writes: factory.NewCounter(prometheus.CounterOpts{
			Name: "concord_writes_committed_total",
			Help: "Writes committed at a matching version",
		}),
		active: factory.NewGauge(prometheus.GaugeOpts{
			Name: "concord_conflicts_active",
			Help: "Number of unresolved conflicts",
		}),
	}
}

// Handler serves the collector's registry in the prometheus text format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Registry lets the process add its own collectors next to the engine's
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) ConflictDetected() {
	if c == nil {
		return
	}
	c.detected.Inc()
}

// AutoMerge records one merge attempt; outcome is clean, conflicted or no_base
func (c *Collector) AutoMerge(outcome string) {
	if c == nil {
		return
	}
	c.autoMerge.WithLabelValues(outcome).Inc()
}

func (c *Collector) ConflictResolved(strategy string) {
	if c == nil {
		return
	}
	c.resolved.WithLabelValues(strategy).Inc()
}

func (c *Collector) ResolveRolledBack() {
	if c == nil {
		return
	}
	c.resolveFailures.Inc()
}

func (c *Collector) WriteCommitted() {
	if c == nil {
		return
	}
	c.writes.Inc()
}

func (c *Collector) SetActive(n int) {
	if c == nil {
		return
	}
	c.active.Set(float64(n))
}
