package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"chameleon/internal/metrics"
	"chameleon/internal/models"
	"chameleon/internal/repository"
	"chameleon/internal/tournament"
)

// ErrInvalidLevel is returned for quiz levels outside 1..3
var ErrInvalidLevel = errors.New("quiz level must be 1, 2 or 3")

// MinLevel and MaxLevel bound the quiz levels
const (
	MinLevel = 1
	MaxLevel = 3
)

// ValidLevel reports whether level is a playable quiz level
func ValidLevel(level int) bool {
	return level >= MinLevel && level <= MaxLevel
}

// Store is the persistence the tournament service reads and writes
type Store interface {
	ListLevelAttempts(ctx context.Context, level int, window tournament.Window) ([]models.QuizAttempt, error)
	ListUserAttempts(ctx context.Context, userID int64, window tournament.Window) ([]models.QuizAttempt, error)
	ListUserActivity(ctx context.Context, userID int64, from, to time.Time) ([]models.QuizAttempt, error)
	ProfilesByLevel(ctx context.Context, level int) ([]models.Profile, error)
	ProfileByAuthID(ctx context.Context, authID string) (*models.Profile, error)
	ProfileByUserID(ctx context.Context, userID int64) (*models.Profile, error)
	CreateAttempt(ctx context.Context, attempt *models.QuizAttempt) error
	Ping(ctx context.Context) error
}

// Cache holds computed standings between requests
type Cache interface {
	StoreStandings(ctx context.Context, level int, standings []tournament.Standing, ttl time.Duration, version int64) error
	LoadStandings(ctx context.Context, level int) ([]tournament.Standing, bool, error)
	Invalidate(ctx context.Context, level int) (int64, error)
	GetLeaderboardVersion(ctx context.Context) (int64, error)
	Ping(ctx context.Context) error
}

// Options tunes a TournamentService
type Options struct {
	CacheTTL  time.Duration
	RecapYear int
	Now       func() time.Time
}

// TournamentService handles business logic for the tournament
type TournamentService struct {
	store     Store
	cache     Cache
	engine    tournament.Engine
	cacheTTL  time.Duration
	recapYear int
	now       func() time.Time
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

// NewTournamentService creates a new tournament service. cache may be nil,
// in which case every ranking is computed from the store.
func NewTournamentService(store Store, cache Cache, engine tournament.Engine, opts Options, logger *zap.Logger, m *metrics.Metrics) *TournamentService {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.RecapYear == 0 {
		opts.RecapYear = opts.Now().Year()
	}
	return &TournamentService{
		store:     store,
		cache:     cache,
		engine:    engine,
		cacheTTL:  opts.CacheTTL,
		recapYear: opts.RecapYear,
		now:       opts.Now,
		logger:    logger.Named("tournament"),
		metrics:   m,
	}
}

// Engine returns the scoring engine in use
func (s *TournamentService) Engine() tournament.Engine {
	return s.engine
}

// Standings returns the full ranking for a level and where it came from
func (s *TournamentService) Standings(ctx context.Context, level int) ([]tournament.Standing, string, error) {
	if !ValidLevel(level) {
		return nil, "", ErrInvalidLevel
	}

	// the version must be read before the store; StoreStandings drops the
	// ranking if it has moved since
	cacheable := s.cache != nil && s.cacheTTL > 0
	var version int64
	if s.cache != nil {
		standings, ok, err := s.cache.LoadStandings(ctx, level)
		switch {
		case err != nil:
			s.logger.Warn("leaderboard cache read failed, using database", zap.Int("level", level), zap.Error(err))
		case ok:
			return standings, metrics.SourceCache, nil
		}
		if cacheable {
			if version, err = s.cache.GetLeaderboardVersion(ctx); err != nil {
				s.logger.Warn("leaderboard version unavailable, not caching", zap.Int("level", level), zap.Error(err))
				cacheable = false
			}
		}
	}

	start := time.Now()
	var (
		attempts []models.QuizAttempt
		profiles []models.Profile
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		attempts, err = s.store.ListLevelAttempts(gctx, level, s.engine.Window)
		return err
	})
	g.Go(func() error {
		var err error
		profiles, err = s.store.ProfilesByLevel(gctx, level)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, "", err
	}

	standings := s.engine.Rank(level, attempts, profiles)
	s.metrics.LeaderboardComputed(time.Since(start).Seconds())

	if cacheable {
		err := s.cache.StoreStandings(ctx, level, standings, s.cacheTTL, version)
		switch {
		case errors.Is(err, repository.ErrStaleStandings):
			s.logger.Debug("leaderboard changed during compute, not caching", zap.Int("level", level))
		case err != nil:
			s.logger.Warn("failed to cache leaderboard", zap.Int("level", level), zap.Error(err))
		}
	}
	return standings, metrics.SourceDatabase, nil
}

// GetLeaderboard returns the top of a level's ranking. authID identifies the
// caller and may be empty. Store failures degrade to an empty leaderboard;
// the only error is ErrInvalidLevel.
func (s *TournamentService) GetLeaderboard(ctx context.Context, level int, authID string) (models.LeaderboardResponse, error) {
	if !ValidLevel(level) {
		return models.LeaderboardResponse{}, ErrInvalidLevel
	}

	var (
		standings []tournament.Standing
		source    string
		callerID  int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		standings, source, err = s.Standings(gctx, level)
		return err
	})
	if authID != "" {
		g.Go(func() error {
			profile, err := s.store.ProfileByAuthID(gctx, authID)
			switch {
			case errors.Is(err, repository.ErrProfileNotFound):
				return nil
			case err != nil:
				s.logger.Warn("could not resolve caller", zap.String("auth_id", authID), zap.Error(err))
				return nil
			}
			callerID = profile.UserID
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		s.logger.Error("leaderboard unavailable", zap.Int("level", level), zap.Error(err))
		s.metrics.Leaderboard(level, metrics.SourceDegraded)
		return s.engine.Leaderboard(level, nil, 0), nil
	}

	s.metrics.Leaderboard(level, source)
	return s.engine.Leaderboard(level, standings, callerID), nil
}

// ComputeScore builds the per-quiz score breakdown for a user on a level
func (s *TournamentService) ComputeScore(ctx context.Context, authID string, level int) (models.TournamentScoreResponse, error) {
	if !ValidLevel(level) {
		return models.TournamentScoreResponse{}, ErrInvalidLevel
	}

	profile, err := s.store.ProfileByAuthID(ctx, authID)
	if err != nil {
		return models.TournamentScoreResponse{}, err
	}

	attempts, err := s.store.ListUserAttempts(ctx, profile.UserID, s.engine.Window)
	if err != nil {
		return models.TournamentScoreResponse{}, fmt.Errorf("failed to fetch quiz data: %w", err)
	}

	return s.engine.ScoreReport(*profile, level, attempts), nil
}

// GetUserStats summarises a user's tournament on a level
func (s *TournamentService) GetUserStats(ctx context.Context, userID int64, level int) (models.UserTournamentStats, error) {
	if !ValidLevel(level) {
		return models.UserTournamentStats{}, ErrInvalidLevel
	}

	profile, err := s.store.ProfileByUserID(ctx, userID)
	if err != nil {
		return models.UserTournamentStats{}, err
	}

	var (
		attempts  []models.QuizAttempt
		standings []tournament.Standing
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		attempts, err = s.store.ListUserAttempts(gctx, userID, s.engine.Window)
		return err
	})
	g.Go(func() error {
		var err error
		standings, _, err = s.Standings(gctx, level)
		return err
	})
	if err := g.Wait(); err != nil {
		return models.UserTournamentStats{}, fmt.Errorf("failed to compute stats: %w", err)
	}

	return s.engine.UserStats(*profile, level, attempts, standings), nil
}

// GetRecap builds a user's year in review. A ranking failure leaves the
// tournament fields empty rather than failing the recap.
func (s *TournamentService) GetRecap(ctx context.Context, userID int64) (models.RecapResponse, error) {
	profile, err := s.store.ProfileByUserID(ctx, userID)
	if err != nil {
		return models.RecapResponse{}, err
	}

	year := tournament.YearWindow(s.recapYear)
	var (
		activity  []models.QuizAttempt
		standings []tournament.Standing
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		activity, err = s.store.ListUserActivity(gctx, userID, year.Start, year.End)
		return err
	})
	if ValidLevel(profile.CurrentLevel) {
		g.Go(func() error {
			var err error
			standings, _, err = s.Standings(gctx, profile.CurrentLevel)
			if err != nil {
				s.logger.Warn("recap without tournament rank", zap.Int64("user_id", userID), zap.Error(err))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return models.RecapResponse{}, fmt.Errorf("failed to generate recap: %w", err)
	}

	return s.engine.Recap(*profile, activity, standings, year, s.now()), nil
}

// RecordAttempt stores a quiz attempt for the caller and invalidates the
// level's cached ranking
func (s *TournamentService) RecordAttempt(ctx context.Context, authID string, req models.QuizAttemptRequest) (*models.QuizAttempt, error) {
	if !ValidLevel(req.QuizLevel) {
		return nil, ErrInvalidLevel
	}

	profile, err := s.store.ProfileByAuthID(ctx, authID)
	if err != nil {
		return nil, err
	}

	attempt := &models.QuizAttempt{
		QuizID:           req.QuizID,
		UserID:           profile.UserID,
		AuthID:           profile.AuthID,
		Score:            req.Score,
		QuizLevel:        req.QuizLevel,
		DurationSelected: optional(req.DurationSelected),
		AnsweringMode:    optional(req.AnsweringMode),
		HowFinished:      optional(req.HowFinished),
		SolvedAt:         s.now().UTC(),
	}
	if req.TotalQuestions > 0 {
		questions := req.TotalQuestions
		attempt.TotalQuestions = &questions
	}

	if err := s.store.CreateAttempt(ctx, attempt); err != nil {
		return nil, fmt.Errorf("failed to record attempt: %w", err)
	}

	if s.cache != nil {
		if _, err := s.cache.Invalidate(ctx, req.QuizLevel); err != nil {
			s.logger.Warn("failed to invalidate leaderboard cache",
				zap.Int("level", req.QuizLevel), zap.Error(err))
		}
	}
	return attempt, nil
}

// LeaderboardVersion returns the change counter clients poll for updates
func (s *TournamentService) LeaderboardVersion(ctx context.Context) (int64, error) {
	if s.cache == nil {
		return 0, nil
	}
	return s.cache.GetLeaderboardVersion(ctx)
}

// HealthCheck reports the reachability of each backing store
func (s *TournamentService) HealthCheck(ctx context.Context) map[string]string {
	status := map[string]string{"postgres": "healthy"}
	if err := s.store.Ping(ctx); err != nil {
		status["postgres"] = "unhealthy: " + err.Error()
	}
	if s.cache != nil {
		status["redis"] = "healthy"
		if err := s.cache.Ping(ctx); err != nil {
			status["redis"] = "unhealthy: " + err.Error()
		}
	}
	return status
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
