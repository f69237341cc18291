package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"chameleon/internal/metrics"
	"chameleon/internal/models"
)

// ErrQueueFull is returned by Submit when the queue cannot take more work
var ErrQueueFull = errors.New("worker pool queue full (backpressure)")

// ErrClosed is returned by Submit after Shutdown
var ErrClosed = errors.New("worker pool is shut down")

// AuditSink persists audit events
type AuditSink interface {
	InsertAuditEvent(ctx context.Context, event *models.AuditEvent) error
}

// WorkerPool persists audit events asynchronously with a fixed set of workers
type WorkerPool struct {
	jobs        chan models.AuditEvent
	workerCount int
	sink        AuditSink
	taskTimeout time.Duration
	logger      *zap.Logger
	metrics     *metrics.Metrics

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed bool

	processed    atomic.Int64
	failed       atomic.Int64
	backpressure atomic.Int64
	processingNs atomic.Int64
}

// Stats tracks worker pool performance
type Stats struct {
	Processed       int64
	Failed          int64
	Backpressure    int64
	TotalProcessing time.Duration
}

// AvgProcessing returns the mean task duration
func (s Stats) AvgProcessing() time.Duration {
	if s.Processed == 0 {
		return 0
	}
	return s.TotalProcessing / time.Duration(s.Processed)
}

// NewWorkerPool creates a new worker pool
func NewWorkerPool(workerCount, queueSize int, taskTimeout time.Duration, sink AuditSink, logger *zap.Logger, m *metrics.Metrics) *WorkerPool {
	ctx, cancel := context.WithCancel(context.Background())
	if taskTimeout <= 0 {
		taskTimeout = 5 * time.Second
	}

	return &WorkerPool{
		jobs:        make(chan models.AuditEvent, queueSize),
		workerCount: workerCount,
		sink:        sink,
		taskTimeout: taskTimeout,
		logger:      logger.Named("worker"),
		metrics:     m,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start launches the worker goroutines
func (wp *WorkerPool) Start() {
	for i := 1; i <= wp.workerCount; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
	wp.logger.Info("worker pool started",
		zap.Int("workers", wp.workerCount),
		zap.Int("queue_size", cap(wp.jobs)))
}

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	for {
		select {
		case <-wp.ctx.Done():
			return

		case event, ok := <-wp.jobs:
			if !ok {
				return
			}
			wp.reportDepth()
			wp.process(id, event)
		}
	}
}

// process persists one event, recovering from panics so a bad event cannot
// take a worker down
func (wp *WorkerPool) process(workerID int, event models.AuditEvent) {
	defer func() {
		if r := recover(); r != nil {
			wp.logger.Error("worker panic recovered",
				zap.Int("worker", workerID),
				zap.String("event_id", event.ID),
				zap.Any("panic", r))
			wp.recordFailure()
		}
	}()

	start := time.Now()

	ctx, cancel := context.WithTimeout(wp.ctx, wp.taskTimeout)
	defer cancel()

	err := wp.sink.InsertAuditEvent(ctx, &event)
	elapsed := time.Since(start)

	if err != nil {
		wp.logger.Warn("failed to persist audit event",
			zap.Int("worker", workerID),
			zap.String("event_id", event.ID),
			zap.Duration("took", elapsed),
			zap.Error(err))
		wp.recordFailure()
		return
	}

	wp.processed.Add(1)
	wp.processingNs.Add(int64(elapsed))
	wp.metrics.TaskDone(elapsed.Seconds())
}

// Submit queues an event without blocking. A full queue drops the event
// and reports ErrQueueFull.
func (wp *WorkerPool) Submit(event models.AuditEvent) error {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	if wp.closed {
		return ErrClosed
	}

	select {
	case wp.jobs <- event:
		wp.reportDepth()
		return nil
	default:
		wp.logger.Warn("queue full, dropping audit write", zap.String("event_id", event.ID))
		wp.backpressure.Add(1)
		wp.metrics.Backpressure()
		return ErrQueueFull
	}
}

// Shutdown stops accepting work and waits for queued events to drain.
// Workers still busy after timeout are cancelled.
func (wp *WorkerPool) Shutdown(timeout time.Duration) error {
	wp.mu.Lock()
	if wp.closed {
		wp.mu.Unlock()
		return nil
	}
	wp.closed = true
	close(wp.jobs)
	wp.mu.Unlock()

	done := make(chan struct{})
	go func() {
		wp.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		wp.cancel()
		stats := wp.Stats()
		wp.logger.Info("worker pool drained",
			zap.Int64("processed", stats.Processed),
			zap.Int64("failed", stats.Failed),
			zap.Int64("backpressure_events", stats.Backpressure),
			zap.Duration("avg_processing_time", stats.AvgProcessing()))
		return nil

	case <-timer.C:
		queued, capacity := wp.QueueDepth()
		wp.logger.Warn("worker pool shutdown timed out, cancelling in-flight writes",
			zap.Int("queued", queued),
			zap.Int("capacity", capacity))
		wp.cancel()
		<-done
		return fmt.Errorf("worker pool shutdown timed out after %v", timeout)
	}
}

// Stats returns a snapshot of the pool counters
func (wp *WorkerPool) Stats() Stats {
	return Stats{
		Processed:       wp.processed.Load(),
		Failed:          wp.failed.Load(),
		Backpressure:    wp.backpressure.Load(),
		TotalProcessing: time.Duration(wp.processingNs.Load()),
	}
}

// QueueDepth reports queued and maximum events
func (wp *WorkerPool) QueueDepth() (queued, capacity int) {
	return len(wp.jobs), cap(wp.jobs)
}

func (wp *WorkerPool) reportDepth() {
	queued, _ := wp.QueueDepth()
	wp.metrics.QueueDepth(queued)
}

func (wp *WorkerPool) recordFailure() {
	wp.failed.Add(1)
	wp.metrics.TaskFailed()
}
