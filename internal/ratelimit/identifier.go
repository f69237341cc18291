package ratelimit

import (
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Identifier derives the rate limit key for a request. A bearer token wins
// over the address since several users can share one NAT address; the token
// itself is never stored, only its hash. clientIP must already be resolved
// against the trusted proxy list; only its first hop is used.
func Identifier(authorization, clientIP string) string {
	if token := strings.TrimSpace(strings.TrimPrefix(authorization, "Bearer ")); token != "" {
		return HashToken(token)
	}

	if hop, _, _ := strings.Cut(clientIP, ","); strings.TrimSpace(hop) != "" {
		return "ip:" + strings.TrimSpace(hop)
	}
	return "ip:unknown"
}

// HashToken returns the identifier used for an auth token
func HashToken(token string) string {
	return "token:" + strconv.FormatUint(xxhash.Sum64String(token), 36)
}
