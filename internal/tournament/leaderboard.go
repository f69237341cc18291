// Package tournament turns quiz attempts into tournament points, standings
// and per-user reports. Everything here is pure: callers fetch the rows and
// the package only computes over them.
package tournament

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	"chameleon/internal/models"
)

// DefaultLeaderboardSize is how many standings a leaderboard shows
const DefaultLeaderboardSize = 10

// Engine bundles the scoring weights with the season it applies to
type Engine struct {
	Weights         Weights
	Window          Window
	LeaderboardSize int
}

// NewEngine creates an engine with the production weights
func NewEngine(window Window, leaderboardSize int) Engine {
	if leaderboardSize <= 0 {
		leaderboardSize = DefaultLeaderboardSize
	}
	return Engine{
		Weights:         DefaultWeights(),
		Window:          window,
		LeaderboardSize: leaderboardSize,
	}
}

// Standing is one user's aggregated position on a level
type Standing struct {
	Rank             int       `json:"rank"`
	UserID           int64     `json:"user_id"`
	Username         string    `json:"username"`
	ProfileImage     string    `json:"profile_image,omitempty"`
	Specialization   string    `json:"specialization,omitempty"`
	Points           int       `json:"points"`
	QuizCount        int       `json:"quiz_count"`
	EarliestSolvedAt time.Time `json:"earliest_solved_at"`
}

// Entry converts the standing to its API shape
func (s Standing) Entry(isCurrentUser bool) models.LeaderboardEntry {
	return models.LeaderboardEntry{
		Rank:           s.Rank,
		ID:             s.UserID,
		Name:           s.Username,
		Points:         s.Points,
		ProfileImage:   s.ProfileImage,
		Specialization: s.Specialization,
		IsCurrentUser:  isCurrentUser,
	}
}

type attemptKey struct {
	userID int64
	quizID int64
}

// FirstAttempts keeps the earliest attempt per user and quiz; later retries
// are dropped. Equal timestamps resolve to the lower row ID. The result is
// ordered by user, then quiz.
func FirstAttempts(attempts []models.QuizAttempt) []models.QuizAttempt {
	first := make(map[attemptKey]models.QuizAttempt, len(attempts))
	for _, a := range attempts {
		key := attemptKey{userID: a.UserID, quizID: a.QuizID}
		existing, ok := first[key]
		if !ok || a.SolvedAt.Before(existing.SolvedAt) ||
			(a.SolvedAt.Equal(existing.SolvedAt) && a.ID < existing.ID) {
			first[key] = a
		}
	}

	out := make([]models.QuizAttempt, 0, len(first))
	for _, a := range first {
		out = append(out, a)
	}
	slices.SortFunc(out, func(a, b models.QuizAttempt) int {
		return cmp.Or(cmp.Compare(a.UserID, b.UserID), cmp.Compare(a.QuizID, b.QuizID))
	})
	return out
}

// counts reports whether an attempt is eligible at all: scored and inside the window
func (e Engine) counts(a models.QuizAttempt) bool {
	return a.Score != nil && e.Window.Contains(a.SolvedAt)
}

// Rank aggregates a level's attempts into ordered standings. Only first
// attempts count, and only for users whose current level is the quiz level.
// Ties on points go to whoever submitted their first counted quiz earliest,
// then to the lower user ID. Users with nothing that counts are absent.
func (e Engine) Rank(level int, attempts []models.QuizAttempt, profiles []models.Profile) []Standing {
	byUser := make(map[int64]models.Profile, len(profiles))
	for _, p := range profiles {
		byUser[p.UserID] = p
	}

	eligible := make([]models.QuizAttempt, 0, len(attempts))
	for _, a := range attempts {
		if a.QuizLevel == level && e.counts(a) {
			eligible = append(eligible, a)
		}
	}

	totals := make(map[int64]*Standing)
	for _, a := range FirstAttempts(eligible) {
		profile, ok := byUser[a.UserID]
		if !ok || profile.CurrentLevel != a.QuizLevel {
			continue
		}

		_, points := e.Weights.AttemptPoints(a)

		s, ok := totals[a.UserID]
		if !ok {
			s = &Standing{
				UserID:           a.UserID,
				Username:         displayName(profile),
				ProfileImage:     profile.ProfileImage,
				Specialization:   profile.Specialization,
				EarliestSolvedAt: a.SolvedAt,
			}
			totals[a.UserID] = s
		}
		s.Points += points
		s.QuizCount++
		if a.SolvedAt.Before(s.EarliestSolvedAt) {
			s.EarliestSolvedAt = a.SolvedAt
		}
	}

	standings := make([]Standing, 0, len(totals))
	for _, s := range totals {
		standings = append(standings, *s)
	}
	slices.SortFunc(standings, func(a, b Standing) int {
		return cmp.Or(
			cmp.Compare(b.Points, a.Points),
			a.EarliestSolvedAt.Compare(b.EarliestSolvedAt),
			cmp.Compare(a.UserID, b.UserID),
		)
	})
	for i := range standings {
		standings[i].Rank = i + 1
	}
	return standings
}

// Leaderboard cuts standings to the configured size and flags the caller.
// When the caller is ranked below the cut their own entry is returned
// separately; anonymous callers pass a zero user ID.
func (e Engine) Leaderboard(level int, standings []Standing, currentUserID int64) models.LeaderboardResponse {
	size := e.LeaderboardSize
	if size <= 0 {
		size = DefaultLeaderboardSize
	}

	top := standings[:min(size, len(standings))]
	resp := models.LeaderboardResponse{
		Level:       level,
		Leaderboard: make([]models.LeaderboardEntry, 0, len(top)),
	}

	inTop := false
	for _, s := range top {
		isCurrent := currentUserID != 0 && s.UserID == currentUserID
		inTop = inTop || isCurrent
		resp.Leaderboard = append(resp.Leaderboard, s.Entry(isCurrent))
	}

	if currentUserID != 0 && !inTop {
		if s, ok := FindStanding(standings, currentUserID); ok {
			entry := s.Entry(true)
			resp.CurrentUserEntry = &entry
		}
	}
	return resp
}

// FindStanding looks a user up in a ranking
func FindStanding(standings []Standing, userID int64) (Standing, bool) {
	for _, s := range standings {
		if s.UserID == userID {
			return s, true
		}
	}
	return Standing{}, false
}

func displayName(p models.Profile) string {
	if p.Username != "" {
		return p.Username
	}
	return fmt.Sprintf("User %d", p.UserID)
}
