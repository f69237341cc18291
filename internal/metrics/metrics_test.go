package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.RateLimit("auth", OutcomeExceeded)
	m.RateLimit("auth", OutcomeExceeded)
	m.Swept(4, 10)
	m.Leaderboard(1, SourceCache)
	m.QueueDepth(7)
	m.QueueDepth(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RateLimitDecisions.WithLabelValues("auth", OutcomeExceeded)))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.SweptEntries))
	assert.Equal(t, 10.0, testutil.ToFloat64(m.RateLimitEntries))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LeaderboardServed.WithLabelValues("1", SourceCache)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.PoolQueueDepth), "gauge holds the latest depth")

	_, err = New(reg)
	assert.Error(t, err, "registering twice is rejected")
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RateLimit("read", OutcomeAllowed)
		m.Swept(1, 1)
		m.Leaderboard(1, SourceDatabase)
		m.LeaderboardComputed(0.1)
		m.Audit("admin_action", "low")
		m.TaskDone(0.1)
		m.TaskFailed()
		m.Backpressure()
		m.QueueDepth(2)
		m.ClientConnected(1)
	})
}
