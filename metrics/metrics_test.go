package metrics

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/scopefence/pkg/scopefence"
)

func admitted(consumer string) scopefence.Decision {
	return scopefence.Decision{Admitted: true, Identity: scopefence.Identity{Consumer: consumer}}
}

func rejected(consumer string, scope scopefence.Scope) scopefence.Decision {
	return scopefence.Decision{Scope: scope, Identity: scopefence.Identity{Consumer: consumer}}
}

func TestMetrics_Snapshot(t *testing.T) {
	m := NewMetrics()
	ctx := context.Background()

	m.ObserveDecision(ctx, "api", admitted("userA"))
	m.ObserveDecision(ctx, "api", admitted("userA"))
	m.ObserveDecision(ctx, "api", rejected("userA", scopefence.ScopeConsumer))
	m.ObserveDecision(ctx, "api", rejected("userB", scopefence.ScopeGlobal))
	m.ObserveDecision(ctx, "api", admitted(""))

	snap := m.GetSnapshot()
	assert.Equal(t, int64(5), snap.TotalRequests)
	assert.Equal(t, int64(3), snap.AdmittedRequests)
	assert.Equal(t, int64(2), snap.RejectedRequests)
	assert.Equal(t, map[string]int64{"consumer": 1, "global": 1}, snap.RejectedByScope)
	assert.Equal(t, int64(3), snap.UniqueConsumers)

	require.Len(t, snap.TopConsumers, 3)
	top := snap.TopConsumers[0]
	assert.Equal(t, "userA", top.ConsumerID)
	assert.Equal(t, int64(3), top.TotalRequests)
	assert.Equal(t, int64(2), top.AdmittedRequests)
	assert.Equal(t, int64(1), top.RejectedRequests)
	assert.Equal(t, anonymous, snap.TopConsumers[1].ConsumerID)
}

func TestMetrics_TopConsumersLimit(t *testing.T) {
	m := NewMetrics()
	for i := 0; i < 15; i++ {
		for j := 0; j <= i; j++ {
			m.ObserveDecision(context.Background(), "api", admitted(fmt.Sprintf("user%02d", i)))
		}
	}

	snap := m.GetSnapshot()
	require.Len(t, snap.TopConsumers, 10)
	assert.Equal(t, "user14", snap.TopConsumers[0].ConsumerID)
	assert.Equal(t, "user05", snap.TopConsumers[9].ConsumerID)
	assert.Equal(t, int64(15), snap.UniqueConsumers)
}

func TestMetrics_MaxConsumers(t *testing.T) {
	m := NewMetrics()
	m.MaxConsumers = 3
	for i := 0; i < 50; i++ {
		m.ObserveDecision(context.Background(), "api", admitted(fmt.Sprintf("header-%d", i)))
	}
	m.ObserveDecision(context.Background(), "api", admitted("header-0"))

	snap := m.GetSnapshot()
	assert.Equal(t, int64(51), snap.TotalRequests)
	assert.Equal(t, int64(4), snap.UniqueConsumers)
	require.NotEmpty(t, snap.TopConsumers)
	assert.Equal(t, other, snap.TopConsumers[0].ConsumerID)
	assert.Equal(t, int64(47), snap.TopConsumers[0].TotalRequests)
}

func TestMetrics_TrackConsumer(t *testing.T) {
	m := NewMetrics()
	m.TrackConsumer = func(id string) bool { return id == "alice" }

	m.ObserveDecision(context.Background(), "api", admitted("alice"))
	m.ObserveDecision(context.Background(), "api", admitted("mallory-1"))
	m.ObserveDecision(context.Background(), "api", rejected("mallory-2", scopefence.ScopeGlobal))
	m.ObserveDecision(context.Background(), "api", admitted(""))

	ids := make(map[string]int64)
	for _, c := range m.GetSnapshot().TopConsumers {
		ids[c.ConsumerID] = c.TotalRequests
	}
	assert.Equal(t, map[string]int64{"alice": 1, other: 2, anonymous: 1}, ids)
}

func TestMetrics_SnapshotIsCopy(t *testing.T) {
	m := NewMetrics()
	m.ObserveDecision(context.Background(), "api", admitted("userA"))

	snap := m.GetSnapshot()
	m.ObserveDecision(context.Background(), "api", admitted("userA"))

	assert.Equal(t, int64(1), snap.TopConsumers[0].TotalRequests)
}

func TestPrometheus_ObserveDecision(t *testing.T) {
	reg := prometheus.NewRegistry()
	p, err := NewPrometheus(reg)
	require.NoError(t, err)

	ctx := context.Background()
	p.ObserveDecision(ctx, "api", admitted("userA"))
	p.ObserveDecision(ctx, "api", admitted("userB"))
	p.ObserveDecision(ctx, "api", rejected("userA", scopefence.ScopeProviderConsumer))

	assert.Equal(t, 2.0, testutil.ToFloat64(p.admissions.WithLabelValues("api", "admitted", "none")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.admissions.WithLabelValues("api", "rejected", "provider-consumer")))

	// A second registration on the same registry must fail.
	_, err = NewPrometheus(reg)
	assert.Error(t, err)
}

func TestBucketCollector(t *testing.T) {
	f, err := scopefence.NewFilter("edge", &scopefence.Config{
		Global: scopefence.PerSecond(3),
	},
		scopefence.WithClock(clockwork.NewFakeClock()),
		scopefence.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	require.NoError(t, err)
	require.NoError(t, f.Admit(context.Background()))

	c := NewBucketCollector(f)
	assert.Equal(t, 2, testutil.CollectAndCount(c))

	expected := `
# HELP scopefence_bucket_remaining_tokens Whole tokens currently available in a bucket.
# TYPE scopefence_bucket_remaining_tokens gauge
scopefence_bucket_remaining_tokens{filter="edge",key="global",scope="global"} 2
`
	assert.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected), "scopefence_bucket_remaining_tokens"))
}
