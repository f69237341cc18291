package ratelimit

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIdentifier(t *testing.T) {
	tests := []struct {
		name          string
		authorization string
		clientIP      string
		want          string
	}{
		{"client address", "", "127.0.0.1", "ip:127.0.0.1"},
		{"first hop of a proxy list", "", "203.0.113.7, 10.0.0.1", "ip:203.0.113.7"},
		{"nothing known", "", "", "ip:unknown"},
		{"empty bearer falls through", "Bearer ", "198.51.100.2", "ip:198.51.100.2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Identifier(tt.authorization, tt.clientIP))
		})
	}
}

func TestIdentifier_PrefersTokenHash(t *testing.T) {
	id := Identifier("Bearer secret-token", "203.0.113.7")

	assert.True(t, strings.HasPrefix(id, "token:"))
	assert.NotContains(t, id, "secret-token")
	assert.Equal(t, HashToken("secret-token"), id)
	assert.Equal(t, id, Identifier("secret-token", ""), "scheme prefix is optional")
	assert.NotEqual(t, id, HashToken("other-token"))
}
