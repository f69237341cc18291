package ratelimit

import (
	"fmt"
	"strings"
	"time"
)

// Tier is a named rate limit profile
type Tier string

const (
	TierRead      Tier = "read"      // browsing, viewing
	TierWrite     Tier = "write"     // creating, updating, deleting
	TierAuth      Tier = "auth"      // login, signup
	TierUpload    Tier = "upload"    // file uploads
	TierSensitive Tier = "sensitive" // password reset, admin actions
)

// Limit is the request quota of a tier within its sliding window
type Limit struct {
	Requests int
	Window   time.Duration
}

// DefaultLimits returns the production tier table.
func DefaultLimits() map[Tier]Limit {
	return map[Tier]Limit{
		TierRead:      {Requests: 60, Window: time.Minute},
		TierWrite:     {Requests: 20, Window: time.Minute},
		TierAuth:      {Requests: 5, Window: time.Minute},
		TierUpload:    {Requests: 10, Window: time.Minute},
		TierSensitive: {Requests: 3, Window: time.Minute},
	}
}

// Tiers lists every tier in ascending strictness of intent.
func Tiers() []Tier {
	return []Tier{TierRead, TierWrite, TierAuth, TierUpload, TierSensitive}
}

// ParseTier converts a config or query string to a Tier
func ParseTier(s string) (Tier, error) {
	t := Tier(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := DefaultLimits()[t]; !ok {
		return "", fmt.Errorf("unknown rate limit tier %q", s)
	}
	return t, nil
}

// violationPenalties is indexed by violation count minus one; counts past the
// end use the last entry.
var violationPenalties = [...]time.Duration{
	30 * time.Second,
	2 * time.Minute,
	5 * time.Minute,
	15 * time.Minute,
	time.Hour,
}

// PenaltyFor returns how long an identifier is blocked after its n-th violation.
func PenaltyFor(violations int) time.Duration {
	if violations < 1 {
		violations = 1
	}
	if violations > len(violationPenalties) {
		violations = len(violationPenalties)
	}
	return violationPenalties[violations-1]
}
