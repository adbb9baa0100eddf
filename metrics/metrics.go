package metrics

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yourusername/scopefence/pkg/scopefence"
)

const (
	// anonymous is the stats key of requests without a consumer id.
	anonymous = "(anonymous)"

	// other collects consumers that are not tracked individually.
	other = "(other)"

	// DefaultMaxConsumers bounds the per-consumer stats map.
	DefaultMaxConsumers = 1000
)

// Metrics tracks admission statistics in process.
// It implements scopefence.Observer.
type Metrics struct {
	totalRequests    atomic.Int64
	admittedRequests atomic.Int64
	rejectedRequests atomic.Int64

	mu            sync.RWMutex
	rejectsBy     map[scopefence.Scope]int64
	consumerStats map[string]*ConsumerStats
	startTime     time.Time

	// MaxConsumers caps the consumers tracked individually; later ones
	// are counted under "(other)". Zero or less means no cap.
	MaxConsumers int

	// TrackConsumer, when set, picks the consumers tracked individually.
	TrackConsumer func(consumer string) bool
}

// ConsumerStats tracks statistics for a specific consumer
type ConsumerStats struct {
	ConsumerID       string    `json:"consumer_id"`
	TotalRequests    int64     `json:"total_requests"`
	AdmittedRequests int64     `json:"admitted_requests"`
	RejectedRequests int64     `json:"rejected_requests"`
	LastRequestAt    time.Time `json:"last_request_at"`
	FirstRequestAt   time.Time `json:"first_request_at"`
}

// NewMetrics creates a new metrics tracker
func NewMetrics() *Metrics {
	return &Metrics{
		rejectsBy:     make(map[scopefence.Scope]int64),
		consumerStats: make(map[string]*ConsumerStats),
		startTime:     time.Now(),
		MaxConsumers:  DefaultMaxConsumers,
	}
}

// ObserveDecision records one decision.
func (m *Metrics) ObserveDecision(_ context.Context, _ string, d scopefence.Decision) {
	m.totalRequests.Add(1)
	if d.Admitted {
		m.admittedRequests.Add(1)
	} else {
		m.rejectedRequests.Add(1)
	}

	consumer := d.Identity.Consumer
	switch {
	case consumer == "":
		consumer = anonymous
	case m.TrackConsumer != nil && !m.TrackConsumer(consumer):
		consumer = other
	}
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	if !d.Admitted {
		m.rejectsBy[d.Scope]++
	}

	stats, exists := m.consumerStats[consumer]
	if !exists && m.MaxConsumers > 0 && len(m.consumerStats) >= m.MaxConsumers {
		consumer = other
		stats, exists = m.consumerStats[consumer]
	}
	if !exists {
		stats = &ConsumerStats{
			ConsumerID:     consumer,
			FirstRequestAt: now,
		}
		m.consumerStats[consumer] = stats
	}

	stats.TotalRequests++
	if d.Admitted {
		stats.AdmittedRequests++
	} else {
		stats.RejectedRequests++
	}
	stats.LastRequestAt = now
}

// GetSnapshot returns a snapshot of current metrics
func (m *Metrics) GetSnapshot() *Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rejects := make(map[string]int64, len(m.rejectsBy))
	for scope, n := range m.rejectsBy {
		rejects[string(scope)] = n
	}

	top := make([]*ConsumerStats, 0, len(m.consumerStats))
	for _, stats := range m.consumerStats {
		copied := *stats
		top = append(top, &copied)
	}

	// Top 10 by total requests, ties broken by id
	sort.Slice(top, func(i, j int) bool {
		if top[i].TotalRequests != top[j].TotalRequests {
			return top[i].TotalRequests > top[j].TotalRequests
		}
		return top[i].ConsumerID < top[j].ConsumerID
	})
	if len(top) > 10 {
		top = top[:10]
	}

	return &Snapshot{
		TotalRequests:    m.totalRequests.Load(),
		AdmittedRequests: m.admittedRequests.Load(),
		RejectedRequests: m.rejectedRequests.Load(),
		RejectedByScope:  rejects,
		UniqueConsumers:  int64(len(m.consumerStats)),
		TopConsumers:     top,
		UptimeSeconds:    int64(time.Since(m.startTime).Seconds()),
		StartTime:        m.startTime,
	}
}

// Snapshot represents a point-in-time view of metrics
type Snapshot struct {
	TotalRequests    int64            `json:"total_requests"`
	AdmittedRequests int64            `json:"admitted_requests"`
	RejectedRequests int64            `json:"rejected_requests"`
	RejectedByScope  map[string]int64 `json:"rejected_by_scope"`
	UniqueConsumers  int64            `json:"unique_consumers"`
	TopConsumers     []*ConsumerStats `json:"top_consumers"`
	UptimeSeconds    int64            `json:"uptime_seconds"`
	StartTime        time.Time        `json:"start_time"`
}
