package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"chameleon/internal/metrics"
)

// ErrAlreadyRunning is returned when Start is called twice
var ErrAlreadyRunning = errors.New("sweeper already running")

// Sweepable is anything holding expiring entries
type Sweepable interface {
	Sweep() int
	Len() int
}

// Sweeper periodically purges idle rate limit entries
type Sweeper struct {
	target   Sweepable
	interval time.Duration
	logger   *zap.Logger
	metrics  *metrics.Metrics

	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running atomic.Bool

	runs    atomic.Int64
	removed atomic.Int64
	lastRun atomic.Int64
}

// SweeperStats is a snapshot of sweep activity
type SweeperStats struct {
	Running bool      `json:"running"`
	Runs    int64     `json:"runs"`
	Removed int64     `json:"removed"`
	LastRun time.Time `json:"last_run,omitzero"`
	Entries int       `json:"entries"`
}

// NewSweeper creates a sweeper; it does nothing until Start
func NewSweeper(target Sweepable, interval time.Duration, logger *zap.Logger, m *metrics.Metrics) *Sweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Sweeper{
		target:   target,
		interval: interval,
		logger:   logger.Named("sweeper"),
		metrics:  m,
	}
}

// Start runs the sweep loop until ctx is cancelled or Stop is called
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return ErrAlreadyRunning
	}
	s.stopCh = make(chan struct{})
	s.running.Store(true)

	s.wg.Add(1)
	go s.loop(ctx, s.stopCh)

	s.logger.Info("sweeper started", zap.Duration("interval", s.interval))
	return nil
}

// Stop halts the loop and waits for it to exit. Safe to call when not running.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		close(s.stopCh)
	}
	s.wg.Wait()
	if s.running.Swap(false) {
		s.logger.Info("sweeper stopped",
			zap.Int64("runs", s.runs.Load()),
			zap.Int64("removed", s.removed.Load()))
	}
}

// IsRunning reports whether the loop is active
func (s *Sweeper) IsRunning() bool {
	return s.running.Load()
}

// RunOnce sweeps immediately and returns the number of entries removed
func (s *Sweeper) RunOnce() int {
	removed := s.target.Sweep()
	remaining := s.target.Len()

	s.runs.Add(1)
	s.removed.Add(int64(removed))
	s.lastRun.Store(time.Now().UnixNano())
	s.metrics.Swept(removed, remaining)

	if removed > 0 {
		s.logger.Debug("swept idle entries",
			zap.Int("removed", removed),
			zap.Int("remaining", remaining))
	}
	return removed
}

// Stats returns current sweep counters
func (s *Sweeper) Stats() SweeperStats {
	stats := SweeperStats{
		Running: s.running.Load(),
		Runs:    s.runs.Load(),
		Removed: s.removed.Load(),
		Entries: s.target.Len(),
	}
	if ns := s.lastRun.Load(); ns != 0 {
		stats.LastRun = time.Unix(0, ns).UTC()
	}
	return stats
}

func (s *Sweeper) loop(ctx context.Context, stop <-chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.running.Store(false)
			return
		case <-stop:
			return
		case <-ticker.C:
			s.RunOnce()
		}
	}
}
