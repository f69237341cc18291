package tournament

import (
	"math"
	"strconv"
	"strings"

	"chameleon/internal/models"
)

// Weights is the points table a quiz attempt is scored against. Every
// component is additive so points never decrease as the score rises.
type Weights struct {
	// DurationByMinutes maps a chosen time limit to its bonus
	DurationByMinutes map[int]float64
	Unlimited         float64
	// DefaultDuration applies when the duration is unknown or unparseable
	DefaultDuration float64

	Modes       map[string]float64
	DefaultMode float64

	Completion        map[string]float64
	DefaultCompletion float64

	DefaultQuestions int
}

// DefaultWeights returns the production points table
func DefaultWeights() Weights {
	return Weights{
		DurationByMinutes: map[int]float64{
			1:  50,
			5:  45,
			15: 40,
			30: 35,
			60: 30,
		},
		Unlimited:       25,
		DefaultDuration: 40,
		Modes: map[string]float64{
			"instant":     15,
			"instance":    15,
			"traditional": 12,
		},
		DefaultMode: 12,
		Completion: map[string]float64{
			"completed": 20,
			"complete":  20,
			"timed out": 15,
			"timeout":   15,
			"timedout":  15,
		},
		DefaultCompletion: 15,
		DefaultQuestions:  models.DefaultTotalQuestions,
	}
}

var defaultWeights = DefaultWeights()

// CalculatePoints scores an attempt with the production weights.
func CalculatePoints(score float64, duration, mode, howFinished string, totalQuestions int) float64 {
	return defaultWeights.Points(score, duration, mode, howFinished, totalQuestions)
}

// Points returns the raw point value of an attempt: the score percentage plus
// the question count, plus duration, mode and completion bonuses.
func (w Weights) Points(score float64, duration, mode, howFinished string, totalQuestions int) float64 {
	if math.IsNaN(score) || score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	if totalQuestions <= 0 {
		totalQuestions = w.DefaultQuestions
	}

	total := score + float64(totalQuestions) +
		w.durationPoints(duration) +
		lookup(w.Modes, mode, w.DefaultMode) +
		lookup(w.Completion, howFinished, w.DefaultCompletion)

	return math.Max(total, 0)
}

func (w Weights) durationPoints(duration string) float64 {
	minutes, unlimited, ok := ParseDurationMinutes(duration)
	switch {
	case !ok:
		return w.DefaultDuration
	case unlimited:
		return w.Unlimited
	}
	if points, found := w.DurationByMinutes[minutes]; found {
		return points
	}
	return w.DefaultDuration
}

func lookup(table map[string]float64, key string, def float64) float64 {
	if v, ok := table[strings.ToLower(strings.TrimSpace(key))]; ok {
		return v
	}
	return def
}

// FinalPoints converts raw points to the leaderboard unit. Every call site
// goes through here so totals agree across endpoints.
func FinalPoints(raw float64) int {
	return int(math.Round(raw / 10))
}

// AttemptPoints scores a stored attempt, filling absent fields with the
// shared defaults.
func (w Weights) AttemptPoints(a models.QuizAttempt) (raw float64, final int) {
	raw = w.Points(
		a.ScoreValue(),
		a.DurationOr(models.DefaultDuration),
		a.ModeOr(models.DefaultAnsweringMode),
		a.FinishedOr(models.DefaultHowFinished),
		a.QuestionsOr(w.DefaultQuestions),
	)
	return raw, FinalPoints(raw)
}

// ParseDurationMinutes reads a free-text time limit: a bare number, or a
// number followed by a single space and "min", "minute" or "minutes". ok is
// false for anything else, including "15m" and "15 mins".
func ParseDurationMinutes(s string) (minutes int, unlimited bool, ok bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "unlimited" {
		return 0, true, true
	}

	digits := 0
	for digits < len(s) && s[digits] >= '0' && s[digits] <= '9' {
		digits++
	}
	if digits == 0 {
		return 0, false, false
	}

	n, err := strconv.Atoi(s[:digits])
	if err != nil {
		return 0, false, false
	}

	switch s[digits:] {
	case "", " min", " minute", " minutes":
		return n, false, true
	}
	return 0, false, false
}
