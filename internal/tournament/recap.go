package tournament

import (
	"fmt"
	"math"
	"slices"
	"time"

	"chameleon/internal/models"
)

// Favorite modes reported in a recap
const (
	ModeSpeed       = "speed"
	ModeTraditional = "traditional"
	ModeBalanced    = "balanced"
)

const notEnoughData = "Not enough data"

// Title is a recap headline
type Title struct {
	Key     string
	Title   string
	Message string
}

// Titles holds every recap headline by key
var Titles = map[string]Title{
	"quiz-champion":      {"quiz-champion", "🏆 Quiz Champion", "Your quiz scores are legendary! You've mastered the art of learning."},
	"speed-demon":        {"speed-demon", "⚡ Speed Demon", "Lightning-fast and accurate! Time bends to your will."},
	"consistent-learner": {"consistent-learner", "📚 Consistent Learner", "Your dedication to learning is inspiring. Every day counts!"},
	"perfectionist":      {"perfectionist", "✨ Perfectionist", "Multiple perfect scores! You set the bar high."},
	"rising-star":        {"rising-star", "⭐ Rising Star", "Your journey has just begun, and it's already shining bright!"},
	"tournament-warrior": {"tournament-warrior", "⚔️ Tournament Warrior", "Battling your way to the top of the leaderboard!"},
	"knowledge-seeker":   {"knowledge-seeker", "🔍 Knowledge Seeker", "Curiosity drives you. Keep exploring!"},
	"chameleon-veteran":  {"chameleon-veteran", "🦎 Chameleon Veteran", "A true Chameleon! Adapting and thriving since the beginning."},
}

// Recap builds a user's year in review from every attempt they made in
// year. Tournament points and rank are read from standings, the ranking of
// the user's current level, so they match the leaderboard exactly.
func (e Engine) Recap(profile models.Profile, attempts []models.QuizAttempt, standings []Standing, year Window, now time.Time) models.RecapResponse {
	quizzes := make([]models.QuizAttempt, 0, len(attempts))
	for _, a := range attempts {
		if a.UserID == profile.UserID && year.Contains(a.SolvedAt) {
			quizzes = append(quizzes, a)
		}
	}
	slices.SortStableFunc(quizzes, func(a, b models.QuizAttempt) int {
		return a.SolvedAt.Compare(b.SolvedAt)
	})

	r := models.RecapResponse{
		Username:        profile.Username,
		ProfileImage:    profile.ProfileImage,
		Specialization:  profile.Specialization,
		Level:           profile.CurrentLevel,
		MemberSince:     profile.CreatedAt.UTC().Format("January 2, 2006"),
		DaysSinceJoined: int(now.Sub(profile.CreatedAt).Hours() / 24),
		TotalQuizzes:    len(quizzes),
		QuizzesThisYear: len(quizzes),
	}
	if r.DaysSinceJoined < 0 {
		r.DaysSinceJoined = 0
	}

	var (
		scored     int
		scoreSum   float64
		best       float64
		speedCount int
		minutesSum int
		months     = newTally()
		days       = newTally()
	)
	for _, q := range quizzes {
		if q.Score != nil {
			s := *q.Score
			scored++
			scoreSum += s
			best = math.Max(best, s)
			if s == 100 {
				r.PerfectScoreCount++
			}
		}
		r.TotalQuestionsAnswered += q.QuestionsOr(0)

		minutes, _, ok := ParseDurationMinutes(q.DurationOr(models.DefaultDuration))
		if !ok || minutes == 0 {
			minutes = 15
		}
		minutesSum += minutes
		if minutes == 5 || minutes == 10 {
			speedCount++
		}

		at := q.SolvedAt.UTC()
		months.add(at.Month().String())
		days.add(at.Weekday().String())
	}

	if scored > 0 {
		r.BestScore = int(math.Round(best))
		r.AverageScore = int(math.Round(scoreSum / float64(scored)))
	}

	r.FavoriteMode = favoriteMode(speedCount, len(quizzes)-speedCount)
	r.MostActiveMonth = months.top()
	r.MostActiveDay = days.top()

	avgMinutes := 0
	if len(quizzes) > 0 {
		avgMinutes = int(math.Round(float64(minutesSum) / float64(len(quizzes))))
	}
	r.AverageQuizDuration = fmt.Sprintf("%d minutes", avgMinutes)
	r.LongestStreak = longestStreak(quizzes)

	if s, ok := FindStanding(standings, profile.UserID); ok {
		rank := s.Rank
		r.TournamentRank = &rank
		r.TournamentPoints = s.Points
	}

	title := chooseTitle(r)
	r.PersonalizedTitle = title.Title
	r.PersonalizedMessage = title.Message
	return r
}

func favoriteMode(speed, traditional int) string {
	switch {
	case float64(speed) > float64(traditional)*1.5:
		return ModeSpeed
	case float64(traditional) > float64(speed)*1.5:
		return ModeTraditional
	default:
		return ModeBalanced
	}
}

// chooseTitle applies the headline precedence, first match wins
func chooseTitle(r models.RecapResponse) Title {
	key := "knowledge-seeker"
	switch {
	case r.PerfectScoreCount >= 5:
		key = "perfectionist"
	case r.FavoriteMode == ModeSpeed && r.AverageScore >= 70:
		key = "speed-demon"
	case r.TournamentPoints >= 500:
		key = "tournament-warrior"
	case r.DaysSinceJoined >= 180 && r.TotalQuizzes >= 20:
		key = "chameleon-veteran"
	case r.AverageScore >= 85:
		key = "quiz-champion"
	case r.LongestStreak >= 5:
		key = "consistent-learner"
	case r.TotalQuizzes <= 10 && r.AverageScore >= 60:
		key = "rising-star"
	}
	return Titles[key]
}

// longestStreak counts the longest run of consecutive UTC days with at least
// one quiz. quizzes must be sorted by solve time.
func longestStreak(quizzes []models.QuizAttempt) int {
	longest, current := 0, 0
	var last time.Time
	for _, q := range quizzes {
		day := q.SolvedAt.UTC().Truncate(24 * time.Hour)
		switch {
		case last.IsZero():
			current = 1
		case day.Equal(last):
			continue
		case day.Sub(last) == 24*time.Hour:
			current++
		default:
			current = 1
		}
		last = day
		longest = max(longest, current)
	}
	return longest
}

// tally counts labels, remembering first appearance for ties
type tally struct {
	order  []string
	counts map[string]int
}

func newTally() *tally {
	return &tally{counts: make(map[string]int)}
}

func (t *tally) add(label string) {
	if _, ok := t.counts[label]; !ok {
		t.order = append(t.order, label)
	}
	t.counts[label]++
}

func (t *tally) top() string {
	best, bestCount := notEnoughData, 0
	for _, label := range t.order {
		if t.counts[label] > bestCount {
			best, bestCount = label, t.counts[label]
		}
	}
	return best
}
