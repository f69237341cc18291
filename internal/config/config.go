package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"chameleon/internal/tournament"
)

// Config holds all configuration for the application
type Config struct {
	Database   DatabaseConfig
	Redis      RedisConfig
	Server     ServerConfig
	Auth       AuthConfig
	Tournament TournamentConfig
	RateLimit  RateLimitConfig
	Audit      AuditConfig
	Log        LogConfig
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	URL      string
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	Migrate  bool
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	DB       int
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port            int
	AllowedOrigins  string
	ShutdownTimeout time.Duration
	// ProxyHeader carries the client address, e.g. X-Forwarded-For. It is
	// only read on connections from TrustedProxies.
	ProxyHeader    string
	TrustedProxies []string
}

// AuthConfig holds token verification and admin settings
type AuthConfig struct {
	// JWTSecret verifies Supabase access tokens (HS256)
	JWTSecret string
	// AdminAPIKey guards the admin endpoints; empty disables them
	AdminAPIKey string
}

// TournamentConfig holds the season and leaderboard settings
type TournamentConfig struct {
	Start           time.Time
	End             time.Time
	LeaderboardSize int
	CacheTTL        time.Duration
	RecapYear       int
}

// Window returns the configured tournament window
func (t TournamentConfig) Window() tournament.Window {
	return tournament.Window{Start: t.Start, End: t.End}
}

// RateLimitConfig holds rate limiter settings
type RateLimitConfig struct {
	Enabled       bool
	SweepInterval time.Duration
}

// AuditConfig holds audit log settings
type AuditConfig struct {
	BufferSize  int
	Workers     int
	QueueSize   int
	WorkTimeout time.Duration
}

// LogConfig holds logger settings
type LogConfig struct {
	Level       string
	Development bool
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file from the parent directory first
	if err := godotenv.Load("../.env"); err != nil {
		// Try loading from current directory as fallback
		if err := godotenv.Load(); err != nil {
			log.Println("No .env file found, using environment variables")
		}
	}

	start, err := getEnvAsTime("TOURNAMENT_START", tournament.DefaultWindow.Start)
	if err != nil {
		return nil, err
	}
	end, err := getEnvAsTime("TOURNAMENT_END", tournament.DefaultWindow.End)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "chameleon"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			Migrate:  getEnvAsBool("DB_AUTO_MIGRATE", true),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvAsInt("REDIS_PORT", 6379),
			Username: getEnv("REDIS_USERNAME", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Server: ServerConfig{
			Port:            getEnvAsInt("BACKEND_PORT", 8000),
			AllowedOrigins:  getEnv("ALLOWED_ORIGINS", "*"),
			ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
			ProxyHeader:     getEnv("PROXY_HEADER", ""),
			TrustedProxies:  getEnvAsList("TRUSTED_PROXIES"),
		},
		Auth: AuthConfig{
			JWTSecret:   getEnv("SUPABASE_JWT_SECRET", ""),
			AdminAPIKey: getEnv("ADMIN_API_KEY", ""),
		},
		Tournament: TournamentConfig{
			Start:           start,
			End:             end,
			LeaderboardSize: getEnvAsInt("LEADERBOARD_SIZE", tournament.DefaultLeaderboardSize),
			CacheTTL:        getEnvAsDuration("LEADERBOARD_CACHE_TTL", 30*time.Second),
			RecapYear:       getEnvAsInt("RECAP_YEAR", 2025),
		},
		RateLimit: RateLimitConfig{
			Enabled:       getEnvAsBool("RATE_LIMIT_ENABLED", true),
			SweepInterval: getEnvAsDuration("RATE_LIMIT_SWEEP_INTERVAL", 5*time.Minute),
		},
		Audit: AuditConfig{
			BufferSize:  getEnvAsInt("AUDIT_BUFFER_SIZE", 10000),
			Workers:     getEnvAsInt("AUDIT_WORKERS", 2),
			QueueSize:   getEnvAsInt("AUDIT_QUEUE_SIZE", 1000),
			WorkTimeout: getEnvAsDuration("AUDIT_WRITE_TIMEOUT", 5*time.Second),
		},
		Log: LogConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Development: getEnvAsBool("LOG_DEVELOPMENT", false),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that would otherwise fail at request time
func (c *Config) Validate() error {
	var errs []error
	if err := c.Tournament.Window().Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Tournament.LeaderboardSize <= 0 {
		errs = append(errs, fmt.Errorf("LEADERBOARD_SIZE must be positive, got %d", c.Tournament.LeaderboardSize))
	}
	if c.Audit.BufferSize <= 0 {
		errs = append(errs, fmt.Errorf("AUDIT_BUFFER_SIZE must be positive, got %d", c.Audit.BufferSize))
	}
	if c.Audit.Workers <= 0 || c.Audit.QueueSize <= 0 {
		errs = append(errs, errors.New("AUDIT_WORKERS and AUDIT_QUEUE_SIZE must be positive"))
	}
	if c.RateLimit.SweepInterval <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_SWEEP_INTERVAL must be positive"))
	}
	if c.Server.ProxyHeader != "" && len(c.Server.TrustedProxies) == 0 {
		errs = append(errs, errors.New("PROXY_HEADER requires TRUSTED_PROXIES"))
	}
	return errors.Join(errs...)
}

// GetDSN returns the PostgreSQL DSN
func (c *Config) GetDSN() string {
	if c.Database.URL != "" {
		return c.Database.URL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.DBName,
		c.Database.SSLMode,
	)
}

// GetRedisAddr returns the Redis address
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key))); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma-separated variable, dropping empty items
func getEnvAsList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// getEnvAsTime parses an RFC 3339 timestamp. Unlike the other helpers a
// malformed value is an error rather than the default.
func getEnvAsTime(key string, defaultValue time.Time) (time.Time, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := time.Parse(time.RFC3339Nano, valueStr)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s: %w", key, err)
	}
	return value.UTC(), nil
}
