package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"chameleon/internal/metrics"
	"chameleon/internal/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recordingSink struct {
	mu      sync.Mutex
	events  []models.AuditEvent
	fail    func(models.AuditEvent) error
	release chan struct{}
}

func (s *recordingSink) InsertAuditEvent(ctx context.Context, event *models.AuditEvent) error {
	if s.release != nil {
		select {
		case <-s.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if s.fail != nil {
		if err := s.fail(*event); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, *event)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func event(i int) models.AuditEvent {
	return models.AuditEvent{ID: fmt.Sprintf("evt-%d", i), EventType: "rate_limit_exceeded"}
}

func TestWorkerPool_DrainsOnShutdown(t *testing.T) {
	sink := &recordingSink{}
	pool := NewWorkerPool(3, 50, time.Second, sink, zap.NewNop(), nil)
	pool.Start()

	for i := range 40 {
		require.NoError(t, pool.Submit(event(i)))
	}
	require.NoError(t, pool.Shutdown(5*time.Second))

	assert.Equal(t, 40, sink.count())
	stats := pool.Stats()
	assert.Equal(t, int64(40), stats.Processed)
	assert.Zero(t, stats.Failed)

	assert.ErrorIs(t, pool.Submit(event(99)), ErrClosed)
	assert.NoError(t, pool.Shutdown(time.Second), "second shutdown is a no-op")
}

func TestWorkerPool_Backpressure(t *testing.T) {
	sink := &recordingSink{release: make(chan struct{})}
	pool := NewWorkerPool(1, 2, time.Second, sink, zap.NewNop(), nil)
	pool.Start()

	// one in flight, two queued, the rest rejected
	var rejected int
	for i := range 10 {
		if err := pool.Submit(event(i)); errors.Is(err, ErrQueueFull) {
			rejected++
		}
	}
	assert.GreaterOrEqual(t, rejected, 7)
	assert.Equal(t, int64(rejected), pool.Stats().Backpressure)

	close(sink.release)
	require.NoError(t, pool.Shutdown(5*time.Second))
	assert.Equal(t, 10-rejected, sink.count())
}

func TestWorkerPool_FailuresAndPanics(t *testing.T) {
	sink := &recordingSink{fail: func(e models.AuditEvent) error {
		switch e.ID {
		case "evt-1":
			return errors.New("db down")
		case "evt-2":
			panic("bad row")
		}
		return nil
	}}
	pool := NewWorkerPool(1, 10, time.Second, sink, zap.NewNop(), nil)
	pool.Start()

	for i := range 4 {
		require.NoError(t, pool.Submit(event(i)))
	}
	require.NoError(t, pool.Shutdown(5*time.Second))

	stats := pool.Stats()
	assert.Equal(t, int64(2), stats.Processed)
	assert.Equal(t, int64(2), stats.Failed)
	assert.Equal(t, 2, sink.count(), "worker survives a panic")
}

func TestWorkerPool_ShutdownTimeout(t *testing.T) {
	sink := &recordingSink{release: make(chan struct{})}
	pool := NewWorkerPool(1, 5, time.Minute, sink, zap.NewNop(), nil)
	pool.Start()

	require.NoError(t, pool.Submit(event(1)))
	require.NoError(t, pool.Submit(event(2)))

	err := pool.Shutdown(50 * time.Millisecond)
	assert.ErrorContains(t, err, "timed out")
}

func TestWorkerPool_QueueDepthGauge(t *testing.T) {
	m, err := metrics.New(prometheus.NewRegistry())
	require.NoError(t, err)

	sink := &recordingSink{release: make(chan struct{})}
	pool := NewWorkerPool(1, 2, time.Second, sink, zap.NewNop(), m)
	pool.Start()

	require.NoError(t, pool.Submit(event(1)))
	require.Eventually(t, func() bool {
		queued, _ := pool.QueueDepth()
		return queued == 0
	}, time.Second, 5*time.Millisecond, "worker picks up the first event")

	require.NoError(t, pool.Submit(event(2)))
	require.NoError(t, pool.Submit(event(3)))

	queued, capacity := pool.QueueDepth()
	assert.Equal(t, 2, queued)
	assert.Equal(t, 2, capacity)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.PoolQueueDepth))

	close(sink.release)
	require.NoError(t, pool.Shutdown(5*time.Second))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.PoolQueueDepth))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.PoolProcessed))
}
