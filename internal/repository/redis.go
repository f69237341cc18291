package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"chameleon/internal/tournament"

	"github.com/redis/go-redis/v9"
)

const (
	// VersionKey tracks the global leaderboard version for efficient change detection
	VersionKey = "leaderboard:version"

	keyPrefix = "leaderboard:level:"
)

// RanksKey is the sorted set of user IDs scored by rank for a level
func RanksKey(level int) string {
	return keyPrefix + strconv.Itoa(level) + ":ranks"
}

// StandingsKey is the hash of user ID to encoded standing for a level
func StandingsKey(level int) string {
	return keyPrefix + strconv.Itoa(level) + ":standings"
}

// readyKey marks a level as cached, so an empty ranking is still a hit
func readyKey(level int) string {
	return keyPrefix + strconv.Itoa(level) + ":ready"
}

// RedisRepository caches computed leaderboards in Redis
type RedisRepository struct {
	client *redis.Client
}

// NewRedisRepository creates a new Redis repository
func NewRedisRepository(client *redis.Client) *RedisRepository {
	return &RedisRepository{
		client: client,
	}
}

// ErrStaleStandings is returned by StoreStandings when the leaderboard
// version moved while the ranking was being computed
var ErrStaleStandings = errors.New("leaderboard changed while ranking was computed")

// StoreStandings replaces a level's cached ranking computed at version. All
// keys share the TTL so a partially expired ranking is never read. The write
// is skipped with ErrStaleStandings if the version no longer matches.
func (r *RedisRepository) StoreStandings(ctx context.Context, level int, standings []tournament.Standing, ttl time.Duration, version int64) error {
	members := make([]redis.Z, 0, len(standings))
	fields := make(map[string]any, len(standings))
	for _, s := range standings {
		id := strconv.FormatInt(s.UserID, 10)
		encoded, err := json.Marshal(s)
		if err != nil {
			return fmt.Errorf("encode standing for user %d: %w", s.UserID, err)
		}
		members = append(members, redis.Z{Score: float64(s.Rank), Member: id})
		fields[id] = encoded
	}

	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, VersionKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != version {
			return ErrStaleStandings
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, RanksKey(level), StandingsKey(level))
			if len(members) > 0 {
				pipe.ZAdd(ctx, RanksKey(level), members...)
				pipe.HSet(ctx, StandingsKey(level), fields)
				pipe.Expire(ctx, RanksKey(level), ttl)
				pipe.Expire(ctx, StandingsKey(level), ttl)
			}
			pipe.Set(ctx, readyKey(level), 1, ttl)
			return nil
		})
		return err
	}, VersionKey)
	if errors.Is(err, redis.TxFailedErr) {
		return ErrStaleStandings
	}
	return err
}

// LoadStandings returns a level's cached ranking in rank order. ok is false
// on a cache miss.
func (r *RedisRepository) LoadStandings(ctx context.Context, level int) (standings []tournament.Standing, ok bool, err error) {
	n, err := r.client.Exists(ctx, readyKey(level)).Result()
	if err != nil {
		return nil, false, err
	}
	if n == 0 {
		return nil, false, nil
	}

	ids, err := r.client.ZRange(ctx, RanksKey(level), 0, -1).Result()
	if err != nil {
		return nil, false, err
	}
	if len(ids) == 0 {
		return []tournament.Standing{}, true, nil
	}

	values, err := r.client.HMGet(ctx, StandingsKey(level), ids...).Result()
	if err != nil {
		return nil, false, err
	}

	standings = make([]tournament.Standing, 0, len(values))
	for i, value := range values {
		raw, isString := value.(string)
		if !isString {
			// expired between calls; treat the whole level as a miss
			return nil, false, nil
		}
		var s tournament.Standing
		if err := json.Unmarshal([]byte(raw), &s); err != nil {
			return nil, false, fmt.Errorf("decode standing for user %s: %w", ids[i], err)
		}
		standings = append(standings, s)
	}
	return standings, true, nil
}

// Invalidate drops a level's cached ranking and bumps the global version
func (r *RedisRepository) Invalidate(ctx context.Context, level int) (int64, error) {
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, readyKey(level), RanksKey(level), StandingsKey(level))
	version := pipe.Incr(ctx, VersionKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return version.Val(), nil
}

// GetLeaderboardVersion returns the current global version number
func (r *RedisRepository) GetLeaderboardVersion(ctx context.Context) (int64, error) {
	version, err := r.client.Get(ctx, VersionKey).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil // Version not set yet, return 0
		}
		return 0, err
	}
	return version, nil
}

// Ping checks if Redis is reachable
func (r *RedisRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (r *RedisRepository) Close() error {
	return r.client.Close()
}
