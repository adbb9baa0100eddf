package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/yourusername/scopefence/pkg/scopefence"
)

// Prometheus exports decisions as scopefence_admissions_total.
// It implements scopefence.Observer.
type Prometheus struct {
	admissions *prometheus.CounterVec
}

// NewPrometheus creates the counters and registers them with reg.
func NewPrometheus(reg prometheus.Registerer) (*Prometheus, error) {
	p := &Prometheus{
		admissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scopefence",
			Name:      "admissions_total",
			Help:      "Admission decisions by filter, result and rejecting scope.",
		}, []string{"filter", "result", "scope"}),
	}
	if err := reg.Register(p.admissions); err != nil {
		return nil, fmt.Errorf("failed to register admissions counter: %w", err)
	}
	return p, nil
}

// ObserveDecision counts one decision.
func (p *Prometheus) ObserveDecision(_ context.Context, filter string, d scopefence.Decision) {
	result, scope := "admitted", "none"
	if !d.Admitted {
		result, scope = "rejected", string(d.Scope)
	}
	p.admissions.WithLabelValues(filter, result, scope).Inc()
}

// BucketCollector reports live bucket levels of filters at scrape time.
type BucketCollector struct {
	filters   []*scopefence.Filter
	remaining *prometheus.Desc
	capacity  *prometheus.Desc
}

// NewBucketCollector creates a collector over filters.
func NewBucketCollector(filters ...*scopefence.Filter) *BucketCollector {
	labels := []string{"filter", "scope", "key"}
	return &BucketCollector{
		filters: filters,
		remaining: prometheus.NewDesc("scopefence_bucket_remaining_tokens",
			"Whole tokens currently available in a bucket.", labels, nil),
		capacity: prometheus.NewDesc("scopefence_bucket_capacity_tokens",
			"Configured bucket capacity.", labels, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *BucketCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.remaining
	ch <- c.capacity
}

// Collect implements prometheus.Collector.
func (c *BucketCollector) Collect(ch chan<- prometheus.Metric) {
	for _, f := range c.filters {
		for _, s := range f.Registry().Snapshot() {
			key := s.Key.String()
			ch <- prometheus.MustNewConstMetric(c.remaining, prometheus.GaugeValue, float64(s.Remaining), f.Name(), string(s.Scope), key)
			ch <- prometheus.MustNewConstMetric(c.capacity, prometheus.GaugeValue, float64(s.Capacity), f.Name(), string(s.Scope), key)
		}
	}
}
