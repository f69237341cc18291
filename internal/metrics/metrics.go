// Package metrics exposes the service's Prometheus collectors.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcomes of a rate limit decision
const (
	OutcomeAllowed  = "allowed"
	OutcomeExceeded = "exceeded"
	OutcomeBlocked  = "blocked"
)

// Leaderboard sources
const (
	SourceCache    = "cache"
	SourceDatabase = "database"
	SourceDegraded = "degraded"
)

// Metrics holds every collector the service records to. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	RateLimitDecisions *prometheus.CounterVec
	RateLimitEntries   prometheus.Gauge
	SweptEntries       prometheus.Counter
	LeaderboardServed  *prometheus.CounterVec
	LeaderboardCompute prometheus.Histogram
	AuditEvents        *prometheus.CounterVec
	PoolProcessed      prometheus.Counter
	PoolFailed         prometheus.Counter
	PoolBackpressure   prometheus.Counter
	PoolTaskDuration   prometheus.Histogram
	PoolQueueDepth     prometheus.Gauge
	WebsocketClients   prometheus.Gauge
}

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		RateLimitDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chameleon_rate_limit_decisions_total",
			Help: "Rate limit checks by tier and outcome",
		}, []string{"tier", "outcome"}),
		RateLimitEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chameleon_rate_limit_entries",
			Help: "Tracked rate limit entries after the last sweep",
		}),
		SweptEntries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chameleon_rate_limit_swept_entries_total",
			Help: "Idle rate limit entries removed by the sweeper",
		}),
		LeaderboardServed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chameleon_leaderboard_requests_total",
			Help: "Leaderboard requests by level and source",
		}, []string{"level", "source"}),
		LeaderboardCompute: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "chameleon_leaderboard_compute_duration_seconds",
			Help:    "Time to rank a level from the database",
			Buckets: prometheus.DefBuckets,
		}),
		AuditEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chameleon_audit_events_total",
			Help: "Audit events by type and severity",
		}, []string{"type", "severity"}),
		PoolProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chameleon_worker_tasks_processed_total",
			Help: "Worker pool tasks completed",
		}),
		PoolFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chameleon_worker_tasks_failed_total",
			Help: "Worker pool tasks that errored or panicked",
		}),
		PoolBackpressure: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chameleon_worker_backpressure_total",
			Help: "Tasks dropped because the worker queue was full",
		}),
		PoolTaskDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "chameleon_worker_task_duration_seconds",
			Help:    "Worker pool task duration in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		PoolQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chameleon_worker_queue_depth",
			Help: "Tasks waiting in the worker queue",
		}),
		WebsocketClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chameleon_websocket_clients",
			Help: "Connected leaderboard websocket clients",
		}),
	}

	collectors := []prometheus.Collector{
		m.RateLimitDecisions,
		m.RateLimitEntries,
		m.SweptEntries,
		m.LeaderboardServed,
		m.LeaderboardCompute,
		m.AuditEvents,
		m.PoolProcessed,
		m.PoolFailed,
		m.PoolBackpressure,
		m.PoolTaskDuration,
		m.PoolQueueDepth,
		m.WebsocketClients,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register collector: %w", err)
		}
	}
	return m, nil
}

// RateLimit records one limiter decision
func (m *Metrics) RateLimit(tier, outcome string) {
	if m == nil {
		return
	}
	m.RateLimitDecisions.WithLabelValues(tier, outcome).Inc()
}

// Swept records a sweep pass
func (m *Metrics) Swept(removed, remaining int) {
	if m == nil {
		return
	}
	m.SweptEntries.Add(float64(removed))
	m.RateLimitEntries.Set(float64(remaining))
}

// Leaderboard records where a leaderboard response came from
func (m *Metrics) Leaderboard(level int, source string) {
	if m == nil {
		return
	}
	m.LeaderboardServed.WithLabelValues(fmt.Sprint(level), source).Inc()
}

// LeaderboardComputed records how long ranking a level took
func (m *Metrics) LeaderboardComputed(seconds float64) {
	if m == nil {
		return
	}
	m.LeaderboardCompute.Observe(seconds)
}

// Audit records an audit event
func (m *Metrics) Audit(eventType, severity string) {
	if m == nil {
		return
	}
	m.AuditEvents.WithLabelValues(eventType, severity).Inc()
}

// TaskDone records a completed worker task
func (m *Metrics) TaskDone(seconds float64) {
	if m == nil {
		return
	}
	m.PoolProcessed.Inc()
	m.PoolTaskDuration.Observe(seconds)
}

// TaskFailed records a failed worker task
func (m *Metrics) TaskFailed() {
	if m == nil {
		return
	}
	m.PoolFailed.Inc()
}

// Backpressure records a task dropped at submission
func (m *Metrics) Backpressure() {
	if m == nil {
		return
	}
	m.PoolBackpressure.Inc()
}

// QueueDepth sets the number of tasks waiting in the worker queue
func (m *Metrics) QueueDepth(queued int) {
	if m == nil {
		return
	}
	m.PoolQueueDepth.Set(float64(queued))
}

// ClientConnected adjusts the websocket client gauge by delta
func (m *Metrics) ClientConnected(delta int) {
	if m == nil {
		return
	}
	m.WebsocketClients.Add(float64(delta))
}
