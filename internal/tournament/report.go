package tournament

import (
	"cmp"
	"math"
	"slices"

	"chameleon/internal/models"
)

const dateLayout = "2006-01-02"

// ScoreReport breaks a user's tournament attempts down for one level.
// attempts may span every level: first attempts on other levels are listed
// as skipped, and when the user's current level differs from the queried
// one the level's quizzes are listed as mismatched without counting.
func (e Engine) ScoreReport(profile models.Profile, level int, attempts []models.QuizAttempt) models.TournamentScoreResponse {
	eligible := make([]models.QuizAttempt, 0, len(attempts))
	for _, a := range attempts {
		if a.UserID == profile.UserID && e.counts(a) {
			eligible = append(eligible, a)
		}
	}

	first := FirstAttempts(eligible)
	userOnLevel := profile.CurrentLevel == level

	var (
		totalPoints int
		totalScore  float64
		valid       int
	)
	breakdown := make([]models.QuizBreakdown, 0, len(first))

	for _, a := range first {
		row := models.QuizBreakdown{
			QuizID:         a.QuizID,
			Date:           a.SolvedAt.UTC().Format(dateLayout),
			Score:          a.ScoreValue(),
			TotalQuestions: a.TotalQuestions,
			Duration:       a.DurationOr("N/A"),
			Mode:           a.ModeOr("N/A"),
			Status:         a.FinishedOr("N/A"),
			QuizLevel:      a.QuizLevel,
		}

		if a.QuizLevel != level {
			row.IsSkipped = true
			breakdown = append(breakdown, row)
			continue
		}

		row.RawPoints, row.FinalPoints = e.Weights.AttemptPoints(a)
		if !userOnLevel {
			row.IsLevelMismatch = true
			breakdown = append(breakdown, row)
			continue
		}

		totalPoints += row.FinalPoints
		totalScore += a.ScoreValue()
		valid++
		breakdown = append(breakdown, row)
	}

	slices.SortStableFunc(breakdown, func(a, b models.QuizBreakdown) int {
		return cmp.Compare(a.QuizID, b.QuizID)
	})

	summary := &models.ScoreSummary{
		TotalAttempts:         len(eligible),
		UniqueQuizzes:         len(first),
		ValidQuizzes:          valid,
		ExcludedLevelMismatch: len(first) - valid,
		TotalPoints:           totalPoints,
	}
	if valid > 0 {
		summary.AveragePoints = int(math.Round(float64(totalPoints) / float64(valid)))
		summary.AverageScore = math.Round(totalScore/float64(valid)*10) / 10
	}

	return models.TournamentScoreResponse{
		Success: true,
		User: &models.ScoreUser{
			AuthID:         profile.AuthID,
			Username:       profile.Username,
			ProfileImage:   profile.ProfileImage,
			CurrentLevel:   profile.CurrentLevel,
			Specialization: profile.Specialization,
		},
		Summary:       summary,
		QuizBreakdown: breakdown,
		TournamentInfo: &models.TournamentInfo{
			StartDate: e.Window.Start.UTC().Format(dateLayout),
			EndDate:   e.Window.End.UTC().Format(dateLayout),
			QuizLevel: level,
		},
	}
}

// UserStats summarises a user's first attempts on a level. standings is the
// level's full ranking; a user absent from it is placed just after the last
// participant. Points only count while the user's current level is the
// queried one, matching ScoreReport and the leaderboard; the score figures
// are reported either way.
func (e Engine) UserStats(profile models.Profile, level int, attempts []models.QuizAttempt, standings []Standing) models.UserTournamentStats {
	stats := models.UserTournamentStats{
		Username:       profile.Username,
		ProfileImage:   profile.ProfileImage,
		Specialization: profile.Specialization,
		Level:          level,
	}

	eligible := make([]models.QuizAttempt, 0, len(attempts))
	for _, a := range attempts {
		if a.UserID == profile.UserID && a.QuizLevel == level && e.counts(a) {
			eligible = append(eligible, a)
		}
	}
	first := FirstAttempts(eligible)
	if len(first) == 0 {
		return stats
	}

	var (
		totalScore     float64
		bestScore      float64
		totalCorrect   int
		totalQuestions int
	)
	userOnLevel := profile.CurrentLevel == level
	for _, a := range first {
		if userOnLevel {
			_, points := e.Weights.AttemptPoints(a)
			stats.TotalPoints += points
		}

		score := a.ScoreValue()
		totalScore += score
		bestScore = math.Max(bestScore, score)

		questions := a.QuestionsOr(0)
		totalCorrect += int(math.Round(score / 100 * float64(questions)))
		totalQuestions += questions
	}

	stats.TotalQuizzes = len(first)
	stats.AverageScore = int(math.Round(totalScore / float64(len(first))))
	stats.BestScore = int(math.Round(bestScore))
	if totalQuestions > 0 {
		stats.Accuracy = int(math.Round(float64(totalCorrect) / float64(totalQuestions) * 100))
	}

	stats.TotalParticipants = len(standings)
	if s, ok := FindStanding(standings, profile.UserID); ok {
		stats.Rank = s.Rank
	} else {
		stats.Rank = len(standings) + 1
	}
	return stats
}
