package ratelimit

import (
	"math"
	"sync"
	"time"
)

const (
	// SweepMaxAge is how old a timestamp may get before the sweep discards it
	SweepMaxAge = 5 * time.Minute

	// DefaultSweepInterval is how often the background sweep should run
	DefaultSweepInterval = 5 * time.Minute
)

// Result is the outcome of a rate limit check. A failed result with
// Blocked=false is the request that triggered a new block; Blocked=true means
// the identifier was already serving a penalty.
type Result struct {
	Success    bool          `json:"success"`
	Tier       Tier          `json:"tier"`
	Limit      int           `json:"limit"`
	Window     time.Duration `json:"window"`
	Remaining  int           `json:"remaining"`
	Reset      time.Time     `json:"reset"`
	Blocked    bool          `json:"blocked"`
	BlockUntil time.Time     `json:"block_until,omitempty"`
	Violations int           `json:"violations"`
}

// RetryAfterSeconds returns the whole seconds a client should wait: the
// remaining block rounded up, or the window length when no block applies.
func (r Result) RetryAfterSeconds(now time.Time) int {
	if r.BlockUntil.IsZero() {
		return int(r.Window / time.Second)
	}
	wait := r.BlockUntil.Sub(now)
	if wait <= 0 {
		return 0
	}
	return int(math.Ceil(wait.Seconds()))
}

type entryKey struct {
	tier       Tier
	identifier string
}

type entry struct {
	timestamps []time.Time // ascending
	blocked    bool
	blockUntil time.Time
	violations int
}

// prune drops timestamps that are at least maxAge old
func (e *entry) prune(now time.Time, maxAge time.Duration) {
	i := 0
	for i < len(e.timestamps) && now.Sub(e.timestamps[i]) >= maxAge {
		i++
	}
	if i == 0 {
		return
	}
	n := copy(e.timestamps, e.timestamps[i:])
	e.timestamps = e.timestamps[:n]
}

func (e *entry) oldest(now time.Time) time.Time {
	if len(e.timestamps) == 0 {
		return now
	}
	return e.timestamps[0]
}

func (e *entry) blockedAt(now time.Time) bool {
	return !e.blockUntil.IsZero() && now.Before(e.blockUntil)
}

// Limiter is a process-local sliding-window rate limiter with escalating
// block penalties for repeat offenders. It is safe for concurrent use; every
// check runs under a single mutex so limits are never over-admitted.
type Limiter struct {
	mu      sync.Mutex
	entries map[entryKey]*entry
	limits  map[Tier]Limit
	now     func() time.Time
}

// Option configures a Limiter
type Option func(*Limiter)

// WithClock replaces the wall clock, letting tests control time.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// WithLimits overrides the quota of the given tiers.
func WithLimits(limits map[Tier]Limit) Option {
	return func(l *Limiter) {
		for tier, limit := range limits {
			l.limits[tier] = limit
		}
	}
}

// New creates an empty limiter using the default tier table
func New(opts ...Option) *Limiter {
	l := &Limiter{
		entries: make(map[entryKey]*entry),
		limits:  DefaultLimits(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Now returns the limiter's current time
func (l *Limiter) Now() time.Time {
	return l.now()
}

// limitFor resolves a tier, treating unknown tiers as TierRead
func (l *Limiter) limitFor(tier Tier) (Tier, Limit) {
	if limit, ok := l.limits[tier]; ok {
		return tier, limit
	}
	return TierRead, l.limits[TierRead]
}

// Check records a request for identifier under tier and reports whether it
// is allowed. It never fails: every call yields a Result.
func (l *Limiter) Check(identifier string, tier Tier) Result {
	tier, limit := l.limitFor(tier)
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	key := entryKey{tier: tier, identifier: identifier}
	e, ok := l.entries[key]
	if !ok {
		e = &entry{}
		l.entries[key] = e
	}

	result := Result{
		Tier:       tier,
		Limit:      limit.Requests,
		Window:     limit.Window,
		Violations: e.violations,
	}

	// An active block short-circuits without touching the window
	if e.blockedAt(now) {
		result.Reset = e.blockUntil
		result.Blocked = true
		result.BlockUntil = e.blockUntil
		return result
	}

	if !e.blockUntil.IsZero() {
		e.blocked = false
		e.blockUntil = time.Time{}
	}

	e.prune(now, limit.Window)
	result.Reset = e.oldest(now).Add(limit.Window)

	if len(e.timestamps) >= limit.Requests {
		e.violations++
		e.blocked = true
		e.blockUntil = now.Add(PenaltyFor(e.violations))

		result.Violations = e.violations
		result.BlockUntil = e.blockUntil
		return result
	}

	result.Success = true
	result.Remaining = limit.Requests - len(e.timestamps) - 1
	e.timestamps = append(e.timestamps, now)
	return result
}

// Status reports the state of identifier under tier without recording a
// request or mutating the entry.
func (l *Limiter) Status(identifier string, tier Tier) Result {
	tier, limit := l.limitFor(tier)
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	result := Result{
		Tier:   tier,
		Limit:  limit.Requests,
		Window: limit.Window,
	}

	e, ok := l.entries[entryKey{tier: tier, identifier: identifier}]
	if !ok {
		result.Success = true
		result.Remaining = limit.Requests
		result.Reset = now.Add(limit.Window)
		return result
	}

	result.Violations = e.violations
	if e.blockedAt(now) {
		result.Reset = e.blockUntil
		result.Blocked = true
		result.BlockUntil = e.blockUntil
		return result
	}

	count := 0
	var oldest time.Time
	for _, ts := range e.timestamps {
		if now.Sub(ts) < limit.Window {
			if count == 0 {
				oldest = ts
			}
			count++
		}
	}
	if count == 0 {
		oldest = now
	}

	result.Success = count < limit.Requests
	result.Remaining = max(0, limit.Requests-count)
	result.Reset = oldest.Add(limit.Window)
	return result
}

// Reset forgets identifier under the given tiers, or under every tier when
// none are given. It returns the number of entries removed.
func (l *Limiter) Reset(identifier string, tiers ...Tier) int {
	if len(tiers) == 0 {
		tiers = Tiers()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for _, tier := range tiers {
		key := entryKey{tier: tier, identifier: identifier}
		if _, ok := l.entries[key]; ok {
			delete(l.entries, key)
			removed++
		}
	}
	return removed
}

// Sweep discards timestamps older than SweepMaxAge and deletes entries left
// with no timestamps and no active block. It returns the number deleted.
func (l *Limiter) Sweep() int {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, e := range l.entries {
		e.prune(now, SweepMaxAge)
		if len(e.timestamps) == 0 && !e.blockedAt(now) {
			delete(l.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked entries
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
