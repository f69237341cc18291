package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"chameleon/internal/config"
	applog "chameleon/internal/logger"
	"chameleon/internal/models"
	"chameleon/internal/repository"
	"chameleon/internal/service"
)

const usernamePrefix = "chameleon_"

var (
	durations = []string{"1 minute", "5 minutes", "10 minutes", "15 minutes", "30 minutes", "60 minutes", "unlimited"}
	modes     = []string{"instant", "traditional"}
	finishes  = []string{"completed", "timed out"}
	specs     = []string{"Mathematics", "Physics", "Biology", "Chemistry", "Computer Science"}
)

type options struct {
	profiles       int
	attemptsPerDay int
	days           int
	quizzes        int
	batchSize      int
	seed           uint64
}

func main() {
	opts := options{}

	cmd := &cobra.Command{
		Use:          "seeder",
		Short:        "Seed profiles and quiz attempts for local testing",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts)
		},
	}
	flags := cmd.Flags()
	flags.IntVar(&opts.profiles, "profiles", 300, "number of profiles to create")
	flags.IntVar(&opts.attemptsPerDay, "attempts-per-day", 2, "maximum attempts per profile per active day")
	flags.IntVar(&opts.days, "days", 60, "days of activity, counted back from now")
	flags.IntVar(&opts.quizzes, "quizzes", 40, "distinct quiz IDs per level")
	flags.IntVar(&opts.batchSize, "batch-size", 500, "rows per insert batch")
	flags.Uint64Var(&opts.seed, "seed", 1, "random seed")

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	zlog, err := applog.New(cfg.Log.Level, true)
	if err != nil {
		return err
	}
	defer func() { _ = zlog.Sync() }()

	db, err := initPostgres(cfg)
	if err != nil {
		return fmt.Errorf("connect to PostgreSQL: %w", err)
	}
	postgresRepo := repository.NewPostgresRepository(db)
	defer postgresRepo.Close()

	if err := postgresRepo.AutoMigrate(); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	zlog.Info("database migrations completed")

	rng := rand.New(rand.NewPCG(opts.seed, opts.seed^0x9e3779b97f4a7c15))
	now := time.Now().UTC()

	profiles := generateProfiles(rng, opts.profiles, now)
	start := time.Now()
	for i := range profiles {
		if err := postgresRepo.UpsertProfile(ctx, &profiles[i]); err != nil {
			return fmt.Errorf("upsert profile %d: %w", profiles[i].UserID, err)
		}
	}
	zlog.Info("profiles upserted", zap.Int("count", len(profiles)), zap.Duration("took", time.Since(start)))

	attempts := generateAttempts(rng, profiles, opts, now)
	start = time.Now()
	if len(attempts) > 0 {
		if err := postgresRepo.BulkInsertAttempts(ctx, attempts, opts.batchSize); err != nil {
			return fmt.Errorf("bulk insert attempts: %w", err)
		}
	}
	took := time.Since(start)
	zlog.Info("attempts inserted",
		zap.Int("count", len(attempts)),
		zap.Duration("took", took),
		zap.Float64("rows_per_sec", float64(len(attempts))/took.Seconds()),
	)

	total, err := postgresRepo.CountProfiles(ctx)
	if err != nil {
		return fmt.Errorf("verify profiles: %w", err)
	}
	zlog.Info("seeding completed", zap.Int64("profiles_total", total))

	// Drop cached rankings so the server recomputes from the new rows
	redisClient, err := initRedis(cfg)
	if err != nil {
		zlog.Warn("redis unavailable, cached leaderboards left as is", zap.Error(err))
		return nil
	}
	redisRepo := repository.NewRedisRepository(redisClient)
	defer redisRepo.Close()
	for level := service.MinLevel; level <= service.MaxLevel; level++ {
		if _, err := redisRepo.Invalidate(ctx, level); err != nil {
			zlog.Warn("failed to invalidate leaderboard cache", zap.Int("level", level), zap.Error(err))
		}
	}
	return nil
}

// generateProfiles creates profiles spread evenly over the three levels
func generateProfiles(rng *rand.Rand, count int, now time.Time) []models.Profile {
	profiles := make([]models.Profile, count)
	for i := range count {
		joined := now.AddDate(0, 0, -rng.IntN(400)-1)
		username := fmt.Sprintf("%s%d", usernamePrefix, i+1)
		profiles[i] = models.Profile{
			UserID:         int64(i + 1),
			AuthID:         uuid.NewSHA1(uuid.NameSpaceURL, []byte("chameleon:"+username)).String(),
			Username:       username,
			CurrentLevel:   service.MinLevel + i%service.MaxLevel,
			Specialization: specs[rng.IntN(len(specs))],
			CreatedAt:      joined,
			UpdatedAt:      now,
		}
	}
	return profiles
}

// generateAttempts creates activity for each profile. Most attempts are on
// the profile's own level; some are on another level, and a few quizzes are
// retried so first-attempt deduplication has something to do.
func generateAttempts(rng *rand.Rand, profiles []models.Profile, opts options, now time.Time) []models.QuizAttempt {
	var attempts []models.QuizAttempt
	for _, p := range profiles {
		for day := range opts.days {
			if rng.IntN(3) != 0 {
				continue
			}
			n := 1 + rng.IntN(max(opts.attemptsPerDay, 1))
			for range n {
				level := p.CurrentLevel
				if rng.IntN(10) == 0 {
					level = service.MinLevel + rng.IntN(service.MaxLevel)
				}
				solved := now.AddDate(0, 0, -day).Add(-time.Duration(rng.IntN(86400)) * time.Second)
				attempts = append(attempts, randomAttempt(rng, p, level, opts.quizzes, solved))
			}
		}
	}
	return attempts
}

func randomAttempt(rng *rand.Rand, p models.Profile, level, quizzes int, solved time.Time) models.QuizAttempt {
	duration := durations[rng.IntN(len(durations))]
	mode := modes[rng.IntN(len(modes))]
	finished := finishes[rng.IntN(len(finishes))]
	questions := 10 + 5*rng.IntN(3)

	attempt := models.QuizAttempt{
		QuizID:           int64(level*1000 + 1 + rng.IntN(max(quizzes, 1))),
		UserID:           p.UserID,
		AuthID:           p.AuthID,
		QuizLevel:        level,
		DurationSelected: &duration,
		AnsweringMode:    &mode,
		HowFinished:      &finished,
		TotalQuestions:   &questions,
		SolvedAt:         solved,
	}
	// Abandoned quizzes have no score
	if rng.IntN(20) != 0 {
		score := float64(rng.IntN(21)) * 5
		attempt.Score = &score
	}
	return attempt
}

// initPostgres initializes PostgreSQL connection
func initPostgres(cfg *config.Config) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.GetDSN()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, err
	}

	// Configure connection pool for bulk operations
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, err
	}

	return db, nil
}

// initRedis initializes Redis connection
func initRedis(cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.GetRedisAddr(),
		Username:    cfg.Redis.Username,
		Password:    cfg.Redis.Password,
		DB:          cfg.Redis.DB,
		MaxRetries:  3,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	return client, nil
}
