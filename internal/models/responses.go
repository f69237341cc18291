package models

// LeaderboardEntry represents a single entry in the tournament leaderboard
type LeaderboardEntry struct {
	Rank           int    `json:"rank"`
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	Points         int    `json:"points"`
	ProfileImage   string `json:"profile_image,omitempty"`
	Specialization string `json:"specialization,omitempty"`
	IsCurrentUser  bool   `json:"isCurrentUser"`
}

// LeaderboardResponse is the top of a level's ranking plus, when the caller
// is ranked below the cut, the caller's own entry
type LeaderboardResponse struct {
	Level            int                `json:"level"`
	Leaderboard      []LeaderboardEntry `json:"leaderboard"`
	CurrentUserEntry *LeaderboardEntry  `json:"currentUserEntry,omitempty"`
}

// ComputeScoreRequest represents the request payload for computing a user's score
type ComputeScoreRequest struct {
	AuthID    string `json:"authId" validate:"required"`
	QuizLevel int    `json:"quizLevel" validate:"required,oneof=1 2 3"`
}

// ScoreUser identifies the user a score report was computed for
type ScoreUser struct {
	AuthID         string `json:"authId"`
	Username       string `json:"username"`
	ProfileImage   string `json:"profileImage,omitempty"`
	CurrentLevel   int    `json:"currentLevel"`
	Specialization string `json:"specialization,omitempty"`
}

// ScoreSummary aggregates a user's first attempts
type ScoreSummary struct {
	TotalAttempts         int     `json:"totalAttempts"`
	UniqueQuizzes         int     `json:"uniqueQuizzes"`
	ValidQuizzes          int     `json:"validQuizzes"`
	ExcludedLevelMismatch int     `json:"excludedLevelMismatch"`
	TotalPoints           int     `json:"totalPoints"`
	AveragePoints         int     `json:"averagePoints"`
	AverageScore          float64 `json:"averageScore"`
}

// QuizBreakdown is one first attempt with its scoring classification
type QuizBreakdown struct {
	QuizID          int64   `json:"quizId"`
	Date            string  `json:"date"`
	Score           float64 `json:"score"`
	TotalQuestions  *int    `json:"totalQuestions"`
	Duration        string  `json:"duration"`
	Mode            string  `json:"mode"`
	Status          string  `json:"status"`
	RawPoints       float64 `json:"rawPoints"`
	FinalPoints     int     `json:"finalPoints"`
	IsLevelMismatch bool    `json:"isLevelMismatch"`
	IsSkipped       bool    `json:"isSkipped"`
	QuizLevel       int     `json:"quizLevel"`
}

// TournamentInfo describes the window a score was computed over
type TournamentInfo struct {
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
	QuizLevel int    `json:"quizLevel"`
}

// TournamentScoreResponse represents the compute-score response
type TournamentScoreResponse struct {
	Success        bool            `json:"success"`
	User           *ScoreUser      `json:"user,omitempty"`
	Summary        *ScoreSummary   `json:"summary,omitempty"`
	QuizBreakdown  []QuizBreakdown `json:"quizBreakdown,omitempty"`
	TournamentInfo *TournamentInfo `json:"tournamentInfo,omitempty"`
	Error          string          `json:"error,omitempty"`
}

// UserTournamentStats summarises one user's standing on a level
type UserTournamentStats struct {
	Username          string `json:"username"`
	ProfileImage      string `json:"profileImage,omitempty"`
	Specialization    string `json:"specialization,omitempty"`
	Rank              int    `json:"rank"`
	TotalPoints       int    `json:"totalPoints"`
	TotalQuizzes      int    `json:"totalQuizzes"`
	AverageScore      int    `json:"averageScore"`
	BestScore         int    `json:"bestScore"`
	Accuracy          int    `json:"accuracy"`
	Level             int    `json:"level"`
	TotalParticipants int    `json:"totalParticipants"`
}

// RecapResponse is a user's year in review
type RecapResponse struct {
	Username               string `json:"username"`
	ProfileImage           string `json:"profileImage,omitempty"`
	Specialization         string `json:"specialization"`
	Level                  int    `json:"level"`
	MemberSince            string `json:"memberSince"`
	DaysSinceJoined        int    `json:"daysSinceJoined"`
	TotalQuizzes           int    `json:"totalQuizzes"`
	BestScore              int    `json:"bestScore"`
	AverageScore           int    `json:"averageScore"`
	TotalQuestionsAnswered int    `json:"totalQuestionsAnswered"`
	TournamentRank         *int   `json:"tournamentRank,omitempty"`
	TournamentPoints       int    `json:"tournamentPoints"`
	FavoriteMode           string `json:"favoriteMode"`
	MostActiveMonth        string `json:"mostActiveMonth"`
	MostActiveDay          string `json:"mostActiveDay"`
	AverageQuizDuration    string `json:"averageQuizDuration"`
	PerfectScoreCount      int    `json:"perfectScoreCount"`
	PersonalizedTitle      string `json:"personalizedTitle"`
	PersonalizedMessage    string `json:"personalizedMessage"`
	LongestStreak          int    `json:"longestStreak"`
	QuizzesThisYear        int    `json:"quizzesThisYear"`
}

// RateLimitErrorResponse is the 429 body
type RateLimitErrorResponse struct {
	Error      string `json:"error"`
	Limit      int    `json:"limit"`
	Remaining  int    `json:"remaining"`
	Reset      string `json:"reset"`
	Blocked    bool   `json:"blocked"`
	BlockUntil string `json:"blockUntil,omitempty"`
	RetryAfter int    `json:"retryAfter"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
