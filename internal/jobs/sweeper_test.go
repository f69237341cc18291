package jobs

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"chameleon/internal/ratelimit"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type countingTarget struct {
	sweeps atomic.Int64
}

func (c *countingTarget) Sweep() int {
	c.sweeps.Add(1)
	return 2
}

func (c *countingTarget) Len() int { return 5 }

func TestSweeper_RunOnceAgainstLimiter(t *testing.T) {
	now := time.Date(2025, time.November, 3, 10, 0, 0, 0, time.UTC)
	limiter := ratelimit.New(ratelimit.WithClock(func() time.Time { return now }))
	limiter.Check("ip:1.1.1.1", ratelimit.TierRead)
	limiter.Check("ip:2.2.2.2", ratelimit.TierWrite)

	s := NewSweeper(limiter, time.Minute, zap.NewNop(), nil)
	assert.Zero(t, s.RunOnce(), "fresh entries survive")

	now = now.Add(ratelimit.SweepMaxAge + time.Second)
	assert.Equal(t, 2, s.RunOnce())
	assert.Zero(t, limiter.Len())

	stats := s.Stats()
	assert.Equal(t, int64(2), stats.Runs)
	assert.Equal(t, int64(2), stats.Removed)
	assert.False(t, stats.LastRun.IsZero())
}

func TestSweeper_StartStop(t *testing.T) {
	target := &countingTarget{}
	s := NewSweeper(target, 5*time.Millisecond, zap.NewNop(), nil)

	require.NoError(t, s.Start(context.Background()))
	assert.ErrorIs(t, s.Start(context.Background()), ErrAlreadyRunning)
	assert.True(t, s.IsRunning())

	assert.Eventually(t, func() bool { return target.sweeps.Load() >= 2 }, time.Second, 5*time.Millisecond)

	s.Stop()
	assert.False(t, s.IsRunning())
	s.Stop()

	after := target.sweeps.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, target.sweeps.Load(), "no sweeps after Stop")
}

func TestSweeper_ContextCancel(t *testing.T) {
	target := &countingTarget{}
	s := NewSweeper(target, time.Hour, zap.NewNop(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))
	cancel()

	assert.Eventually(t, func() bool { return !s.IsRunning() }, time.Second, time.Millisecond)
	s.Stop()

	require.NoError(t, s.Start(context.Background()), "restartable after cancel")
	s.Stop()
}
