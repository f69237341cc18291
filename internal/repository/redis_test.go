package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chameleon/internal/tournament"
)

func newTestRedis(t *testing.T) (*RedisRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisRepository(client), mr
}

func sampleStandings() []tournament.Standing {
	solved := time.Date(2025, time.November, 3, 10, 0, 0, 0, time.UTC)
	return []tournament.Standing{
		{Rank: 1, UserID: 42, Username: "ada", Points: 48, QuizCount: 3, EarliestSolvedAt: solved},
		{Rank: 2, UserID: 7, Username: "grace", Points: 31, QuizCount: 2, EarliestSolvedAt: solved.Add(time.Hour)},
		{Rank: 3, UserID: 9, Username: "linus", Points: 31, QuizCount: 2, EarliestSolvedAt: solved.Add(2 * time.Hour)},
	}
}

func mustScore(t *testing.T, mr *miniredis.Miniredis, key, member string) float64 {
	t.Helper()
	score, err := mr.ZScore(key, member)
	require.NoError(t, err)
	return score
}

func TestStandingsRoundTrip(t *testing.T) {
	repo, mr := newTestRedis(t)
	ctx := context.Background()

	_, ok, err := repo.LoadStandings(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok, "nothing cached yet")

	want := sampleStandings()
	require.NoError(t, repo.StoreStandings(ctx, 1, want, time.Minute, 0))

	got, ok, err := repo.LoadStandings(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want, got)

	assert.Equal(t, 3.0, mustScore(t, mr, RanksKey(1), "9"), "rank is the sorted set score")

	_, ok, err = repo.LoadStandings(ctx, 2)
	require.NoError(t, err)
	assert.False(t, ok, "levels are cached independently")
}

func TestStoreStandings_EmptyIsAHit(t *testing.T) {
	repo, _ := newTestRedis(t)
	ctx := context.Background()

	require.NoError(t, repo.StoreStandings(ctx, 3, nil, time.Minute, 0))

	got, ok, err := repo.LoadStandings(ctx, 3)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, got)
}

func TestStoreStandings_Replaces(t *testing.T) {
	repo, _ := newTestRedis(t)
	ctx := context.Background()

	require.NoError(t, repo.StoreStandings(ctx, 1, sampleStandings(), time.Minute, 0))
	require.NoError(t, repo.StoreStandings(ctx, 1, sampleStandings()[:1], time.Minute, 0))

	got, ok, err := repo.LoadStandings(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, got, 1)
}

func TestStandingsExpire(t *testing.T) {
	repo, mr := newTestRedis(t)
	ctx := context.Background()

	require.NoError(t, repo.StoreStandings(ctx, 1, sampleStandings(), 30*time.Second, 0))
	mr.FastForward(31 * time.Second)

	_, ok, err := repo.LoadStandings(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInvalidate(t *testing.T) {
	repo, mr := newTestRedis(t)
	ctx := context.Background()

	version, err := repo.GetLeaderboardVersion(ctx)
	require.NoError(t, err)
	assert.Zero(t, version)

	require.NoError(t, repo.StoreStandings(ctx, 1, sampleStandings(), time.Minute, 0))
	require.NoError(t, repo.StoreStandings(ctx, 2, sampleStandings(), time.Minute, 0))

	version, err = repo.Invalidate(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)

	_, ok, err := repo.LoadStandings(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, mr.Exists(RanksKey(1)))

	_, ok, err = repo.LoadStandings(ctx, 2)
	require.NoError(t, err)
	assert.True(t, ok, "other levels stay cached")

	version, err = repo.GetLeaderboardVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)
}

func TestStoreStandings_RejectsStaleVersion(t *testing.T) {
	repo, _ := newTestRedis(t)
	ctx := context.Background()

	version, err := repo.GetLeaderboardVersion(ctx)
	require.NoError(t, err)

	// an attempt lands while the ranking is being computed
	_, err = repo.Invalidate(ctx, 1)
	require.NoError(t, err)

	err = repo.StoreStandings(ctx, 1, sampleStandings(), time.Minute, version)
	assert.ErrorIs(t, err, ErrStaleStandings)

	_, ok, err := repo.LoadStandings(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok, "stale ranking is not cached")

	version, err = repo.GetLeaderboardVersion(ctx)
	require.NoError(t, err)
	require.NoError(t, repo.StoreStandings(ctx, 1, sampleStandings(), time.Minute, version))

	_, ok, err = repo.LoadStandings(ctx, 1)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisUnavailable(t *testing.T) {
	repo, mr := newTestRedis(t)
	mr.Close()

	_, _, err := repo.LoadStandings(context.Background(), 1)
	assert.Error(t, err)
	assert.Error(t, repo.Ping(context.Background()))
}
