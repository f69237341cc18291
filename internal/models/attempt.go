package models

import (
	"time"
)

// Defaults applied wherever an attempt is missing a field.
const (
	DefaultDuration       = "15 minutes"
	DefaultAnsweringMode  = "traditional"
	DefaultHowFinished    = "completed"
	DefaultTotalQuestions = 10
)

// QuizAttempt is a single quiz submission as stored in the quiz_data table.
// Nullable columns are pointers so that "not recorded" stays distinguishable
// from a zero value.
type QuizAttempt struct {
	ID               uint      `gorm:"primarykey" json:"id"`
	QuizID           int64     `gorm:"column:quiz_id;not null;index" json:"quiz_id"`
	UserID           int64     `gorm:"column:user_id;not null;index" json:"user_id"`
	AuthID           string    `gorm:"column:auth_id;index" json:"auth_id"`
	Score            *float64  `gorm:"column:score" json:"score"`
	QuizLevel        int       `gorm:"column:quiz_level;not null;index" json:"quiz_level"`
	DurationSelected *string   `gorm:"column:duration_selected" json:"duration_selected"`
	AnsweringMode    *string   `gorm:"column:answering_mode" json:"answering_mode"`
	HowFinished      *string   `gorm:"column:how_finished" json:"how_finished"`
	TotalQuestions   *int      `gorm:"column:total_questions" json:"total_questions"`
	SolvedAt         time.Time `gorm:"column:solved_at;not null;index" json:"solved_at"`
}

// TableName specifies the table name for GORM
func (QuizAttempt) TableName() string {
	return "quiz_data"
}

// ScoreValue returns the recorded score, or 0 when none was recorded.
func (a QuizAttempt) ScoreValue() float64 {
	if a.Score == nil {
		return 0
	}
	return *a.Score
}

// DurationOr returns the selected duration or def.
func (a QuizAttempt) DurationOr(def string) string {
	return stringOr(a.DurationSelected, def)
}

// ModeOr returns the answering mode or def.
func (a QuizAttempt) ModeOr(def string) string {
	return stringOr(a.AnsweringMode, def)
}

// FinishedOr returns the completion status or def.
func (a QuizAttempt) FinishedOr(def string) string {
	return stringOr(a.HowFinished, def)
}

// QuestionsOr returns the question count, or def when absent or non-positive.
func (a QuizAttempt) QuestionsOr(def int) int {
	if a.TotalQuestions == nil || *a.TotalQuestions <= 0 {
		return def
	}
	return *a.TotalQuestions
}

func stringOr(s *string, def string) string {
	if s == nil || *s == "" {
		return def
	}
	return *s
}

// QuizAttemptRequest represents the request payload for recording an attempt
type QuizAttemptRequest struct {
	QuizID           int64    `json:"quiz_id" validate:"required,gt=0"`
	Score            *float64 `json:"score" validate:"omitempty,min=0,max=100"`
	QuizLevel        int      `json:"quiz_level" validate:"required,oneof=1 2 3"`
	DurationSelected string   `json:"duration_selected" validate:"max=32"`
	AnsweringMode    string   `json:"answering_mode" validate:"max=32"`
	HowFinished      string   `json:"how_finished" validate:"max=32"`
	TotalQuestions   int      `json:"total_questions" validate:"min=0,max=500"`
}
