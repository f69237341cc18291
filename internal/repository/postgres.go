package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chameleon/internal/models"
	"chameleon/internal/tournament"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrProfileNotFound is returned when no chameleons row matches
var ErrProfileNotFound = errors.New("profile not found")

// PostgresRepository handles all PostgreSQL operations
type PostgresRepository struct {
	db *gorm.DB
}

// NewPostgresRepository creates a new Postgres repository
func NewPostgresRepository(db *gorm.DB) *PostgresRepository {
	return &PostgresRepository{
		db: db,
	}
}

// ListLevelAttempts returns every scored attempt on a level inside the window
func (r *PostgresRepository) ListLevelAttempts(ctx context.Context, level int, window tournament.Window) ([]models.QuizAttempt, error) {
	var attempts []models.QuizAttempt
	err := r.db.WithContext(ctx).
		Where("quiz_level = ?", level).
		Where("score IS NOT NULL").
		Where("solved_at >= ? AND solved_at <= ?", window.Start, window.End).
		Order("solved_at ASC").
		Find(&attempts).Error
	if err != nil {
		return nil, fmt.Errorf("list level %d attempts: %w", level, err)
	}
	return attempts, nil
}

// ListUserAttempts returns a user's scored attempts on every level inside the window
func (r *PostgresRepository) ListUserAttempts(ctx context.Context, userID int64, window tournament.Window) ([]models.QuizAttempt, error) {
	var attempts []models.QuizAttempt
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Where("score IS NOT NULL").
		Where("solved_at >= ? AND solved_at <= ?", window.Start, window.End).
		Order("solved_at ASC").
		Find(&attempts).Error
	if err != nil {
		return nil, fmt.Errorf("list attempts for user %d: %w", userID, err)
	}
	return attempts, nil
}

// ListUserActivity returns every attempt a user made between from and to,
// including unscored ones
func (r *PostgresRepository) ListUserActivity(ctx context.Context, userID int64, from, to time.Time) ([]models.QuizAttempt, error) {
	var attempts []models.QuizAttempt
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Where("solved_at >= ? AND solved_at <= ?", from, to).
		Order("solved_at ASC").
		Find(&attempts).Error
	if err != nil {
		return nil, fmt.Errorf("list activity for user %d: %w", userID, err)
	}
	return attempts, nil
}

// ProfilesByLevel fetches every profile currently on a level
func (r *PostgresRepository) ProfilesByLevel(ctx context.Context, level int) ([]models.Profile, error) {
	var profiles []models.Profile
	if err := r.db.WithContext(ctx).Where("current_level = ?", level).Find(&profiles).Error; err != nil {
		return nil, fmt.Errorf("load level %d profiles: %w", level, err)
	}
	return profiles, nil
}

// CountProfiles returns the number of registered profiles
func (r *PostgresRepository) CountProfiles(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Profile{}).Count(&count).Error
	return count, err
}

// ProfileByAuthID retrieves a profile by its auth provider ID
func (r *PostgresRepository) ProfileByAuthID(ctx context.Context, authID string) (*models.Profile, error) {
	return r.firstProfile(ctx, "auth_id = ?", authID)
}

// ProfileByUserID retrieves a profile by its numeric user ID
func (r *PostgresRepository) ProfileByUserID(ctx context.Context, userID int64) (*models.Profile, error) {
	return r.firstProfile(ctx, "user_id = ?", userID)
}

func (r *PostgresRepository) firstProfile(ctx context.Context, query string, arg any) (*models.Profile, error) {
	var profile models.Profile
	err := r.db.WithContext(ctx).Where(query, arg).First(&profile).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}
	return &profile, nil
}

// UpsertProfile creates or updates a profile keyed by user ID
// Uses ON CONFLICT to handle upserts efficiently
func (r *PostgresRepository) UpsertProfile(ctx context.Context, profile *models.Profile) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"username", "profile_image", "current_level", "specialization", "updated_at",
		}),
	}).Create(profile).Error
}

// CreateAttempt stores a quiz attempt
func (r *PostgresRepository) CreateAttempt(ctx context.Context, attempt *models.QuizAttempt) error {
	if err := r.db.WithContext(ctx).Create(attempt).Error; err != nil {
		return fmt.Errorf("create attempt: %w", err)
	}
	return nil
}

// BulkInsertAttempts efficiently inserts multiple attempts
func (r *PostgresRepository) BulkInsertAttempts(ctx context.Context, attempts []models.QuizAttempt, batchSize int) error {
	return r.db.WithContext(ctx).CreateInBatches(attempts, batchSize).Error
}

// InsertAuditEvent persists one audit event; replays of the same ID are ignored
func (r *PostgresRepository) InsertAuditEvent(ctx context.Context, event *models.AuditEvent) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(event).Error
}

// Ping checks if database is reachable
func (r *PostgresRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the database connection
func (r *PostgresRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// AutoMigrate runs database migrations
func (r *PostgresRepository) AutoMigrate() error {
	return r.db.AutoMigrate(&models.Profile{}, &models.QuizAttempt{}, &models.AuditEvent{})
}
