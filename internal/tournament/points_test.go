package tournament

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculatePoints(t *testing.T) {
	tests := []struct {
		name      string
		score     float64
		duration  string
		mode      string
		finished  string
		questions int
		want      float64
	}{
		{"defaults", 80, "15 minutes", "traditional", "completed", 10, 162},
		{"one minute instant", 100, "1 minute", "instant", "completed", 10, 195},
		{"speed is not a mode", 100, "1 minute", "speed", "completed", 10, 192},
		{"plural min suffix falls back", 100, "5 mins", "traditional", "completed", 10, 182},
		{"short m suffix falls back", 100, "5m", "traditional", "completed", 10, 182},
		{"one minutes", 100, "1 minutes", "instant", "completed", 10, 195},
		{"instant alias", 50, "5 min", "instance", "complete", 20, 150},
		{"unlimited timed out", 70, "Unlimited", "traditional", "timed out", 10, 132},
		{"hour", 60, "60", "TRADITIONAL", "timeout", 10, 127},
		{"unknown duration uses fifteen", 60, "7 minutes", "traditional", "completed", 10, 142},
		{"garbage duration", 60, "soon", "traditional", "completed", 10, 142},
		{"unknown mode and status", 60, "30 minutes", "blitz", "abandoned", 10, 132},
		{"questions default when zero", 60, "15 minutes", "traditional", "completed", 0, 142},
		{"score clamped high", 250, "15 minutes", "traditional", "completed", 10, 182},
		{"score clamped low", -40, "15 minutes", "traditional", "completed", 10, 82},
		{"nan score", math.NaN(), "15 minutes", "traditional", "completed", 10, 82},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CalculatePoints(tt.score, tt.duration, tt.mode, tt.finished, tt.questions))
		})
	}
}

func TestCalculatePoints_MonotonicInScore(t *testing.T) {
	prev := -1.0
	for score := 0.0; score <= 100; score += 0.5 {
		got := CalculatePoints(score, "5 minutes", "instant", "completed", 10)
		assert.GreaterOrEqual(t, got, prev)
		assert.GreaterOrEqual(t, got, 0.0)
		prev = got
	}
}

func TestFinalPoints(t *testing.T) {
	assert.Equal(t, 16, FinalPoints(162))
	assert.Equal(t, 18, FinalPoints(177))
	assert.Equal(t, 18, FinalPoints(175))
	assert.Equal(t, 17, FinalPoints(174.9))
	assert.Equal(t, 0, FinalPoints(0))
}

func TestAttemptPoints_DefaultsMissingFields(t *testing.T) {
	w := DefaultWeights()

	raw, final := w.AttemptPoints(attempt(1, 1, 101, 1, 80, at(10, 0)))
	assert.Equal(t, 162.0, raw)
	assert.Equal(t, 16, final)

	empty := attempt(2, 1, 102, 1, 80, at(10, 0))
	empty.Score = nil
	raw, final = w.AttemptPoints(empty)
	assert.Equal(t, 82.0, raw)
	assert.Equal(t, 8, final)
}

func TestParseDurationMinutes(t *testing.T) {
	tests := []struct {
		in        string
		minutes   int
		unlimited bool
		ok        bool
	}{
		{"15", 15, false, true},
		{"15m", 0, false, false},
		{"15 mins", 0, false, false},
		{"15min", 0, false, false},
		{"15 min", 15, false, true},
		{"1 minute", 1, false, true},
		{" 30 Minutes ", 30, false, true},
		{"unlimited", 0, true, true},
		{"", 0, false, false},
		{"fifteen", 0, false, false},
		{"15 hours", 0, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			minutes, unlimited, ok := ParseDurationMinutes(tt.in)
			assert.Equal(t, tt.minutes, minutes)
			assert.Equal(t, tt.unlimited, unlimited)
			assert.Equal(t, tt.ok, ok)
		})
	}
}
