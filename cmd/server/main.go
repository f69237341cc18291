package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	fiberws "github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"chameleon/internal/api/handlers"
	"chameleon/internal/api/middleware"
	"chameleon/internal/audit"
	"chameleon/internal/config"
	"chameleon/internal/jobs"
	applog "chameleon/internal/logger"
	"chameleon/internal/metrics"
	"chameleon/internal/models"
	"chameleon/internal/ratelimit"
	"chameleon/internal/repository"
	"chameleon/internal/service"
	"chameleon/internal/tournament"
	"chameleon/internal/websocket"
	"chameleon/internal/worker"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zlog, err := applog.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	// Initialize PostgreSQL with connection pooling
	db, err := initPostgres(cfg, zlog)
	if err != nil {
		zlog.Fatal("failed to connect to PostgreSQL", zap.Error(err))
	}
	zlog.Info("connected to PostgreSQL")

	// Initialize Redis
	redisClient, err := initRedis(cfg)
	if err != nil {
		zlog.Fatal("failed to connect to Redis", zap.Error(err))
	}
	zlog.Info("connected to Redis", zap.String("addr", cfg.GetRedisAddr()))

	// Initialize repositories
	postgresRepo := repository.NewPostgresRepository(db)
	redisRepo := repository.NewRedisRepository(redisClient)

	// Run migrations
	if cfg.Database.Migrate {
		if err := postgresRepo.AutoMigrate(); err != nil {
			zlog.Fatal("failed to run migrations", zap.Error(err))
		}
		zlog.Info("database migrations completed")
	}

	// Metrics live on a dedicated registry served at /metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m, err := metrics.New(registry)
	if err != nil {
		zlog.Fatal("failed to register metrics", zap.Error(err))
	}

	// Worker pool persisting audit events to PostgreSQL
	workerPool := worker.NewWorkerPool(cfg.Audit.Workers, cfg.Audit.QueueSize, cfg.Audit.WorkTimeout, postgresRepo, zlog, m)
	workerPool.Start()

	auditLog := audit.New(cfg.Audit.BufferSize, zlog,
		audit.WithSubmitter(workerPool),
		audit.WithMetrics(m),
	)

	// Rate limiter and its background sweep
	limiter := ratelimit.New()
	sweeper := jobs.NewSweeper(limiter, cfg.RateLimit.SweepInterval, zlog, m)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := sweeper.Start(ctx); err != nil {
		zlog.Warn("failed to start rate limit sweeper", zap.Error(err))
	}

	engine := tournament.NewEngine(cfg.Tournament.Window(), cfg.Tournament.LeaderboardSize)
	tournamentService := service.NewTournamentService(postgresRepo, redisRepo, engine, service.Options{
		CacheTTL:  cfg.Tournament.CacheTTL,
		RecapYear: cfg.Tournament.RecapYear,
	}, zlog, m)

	// Initialize WebSocket Hub
	hub := websocket.NewHub(tournamentService, zlog, m)
	go hub.Run(ctx)

	leaderboardHandler := handlers.NewLeaderboardHandler(tournamentService, zlog)
	adminHandler := handlers.NewAdminHandler(limiter, auditLog)
	auth := middleware.NewAuthenticator(cfg.Auth.JWTSecret, auditLog)

	limit := func(tier ratelimit.Tier) fiber.Handler {
		if !cfg.RateLimit.Enabled {
			return func(c *fiber.Ctx) error { return c.Next() }
		}
		return middleware.RateLimit(limiter, tier, auditLog, m, zlog)
	}

	// Create Fiber app
	// c.IP() reads ProxyHeader only on connections from a trusted proxy,
	// so a client cannot pick its own rate limit identifier
	app := fiber.New(fiber.Config{
		AppName:                 "Chameleon Tournament API",
		DisableStartupMessage:   true,
		ErrorHandler:            customErrorHandler(zlog),
		ProxyHeader:             cfg.Server.ProxyHeader,
		EnableTrustedProxyCheck: true,
		TrustedProxies:          cfg.Server.TrustedProxies,
		EnableIPValidation:      true,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${method} ${path}\n",
		TimeFormat: "2006-01-02 15:04:05",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins:  cfg.Server.AllowedOrigins,
		AllowMethods:  "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:  "Origin, Content-Type, Accept, Authorization, X-Admin-Key",
		ExposeHeaders: "X-RateLimit-Limit, X-RateLimit-Remaining, X-RateLimit-Reset, Retry-After",
	}))

	// Routes
	api := app.Group("/api/v1")
	api.Get("/health", leaderboardHandler.HealthCheck)

	tournamentRoutes := api.Group("/tournament")
	tournamentRoutes.Get("/leaderboard", limit(ratelimit.TierRead), auth.Optional(), leaderboardHandler.GetLeaderboard)
	tournamentRoutes.Post("/compute-score", limit(ratelimit.TierWrite), leaderboardHandler.ComputeScore)
	tournamentRoutes.Get("/stats/:userId", limit(ratelimit.TierRead), leaderboardHandler.GetUserStats)

	api.Get("/recap/:userId", limit(ratelimit.TierRead), leaderboardHandler.GetRecap)
	api.Post("/quiz-attempts", limit(ratelimit.TierWrite), auth.Required(), leaderboardHandler.RecordAttempt)

	admin := api.Group("/admin", limit(ratelimit.TierSensitive), middleware.AdminOnly(cfg.Auth.AdminAPIKey, auditLog))
	admin.Get("/rate-limit/:identifier", adminHandler.GetRateLimitStatus)
	admin.Delete("/rate-limit/:identifier", adminHandler.ResetRateLimit)
	admin.Get("/audit", adminHandler.GetAuditEvents)

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})))

	// WebSocket route with upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if fiberws.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", fiberws.New(func(c *fiberws.Conn) {
		websocket.ServeWS(ctx, hub, c)
	}))

	// Root route
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message": "Chameleon Tournament API",
			"version": "1.0.0",
			"endpoints": []string{
				"GET /api/v1/tournament/leaderboard?level=",
				"POST /api/v1/tournament/compute-score",
				"GET /api/v1/tournament/stats/:userId?level=",
				"GET /api/v1/recap/:userId",
				"POST /api/v1/quiz-attempts",
				"GET /api/v1/health",
				"GET /metrics",
				"WS /ws (WebSocket)",
			},
			"websocket_clients": hub.GetClientCount(),
		})
	})

	// Graceful shutdown with worker pool flushing
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		zlog.Info("shutting down server")

		// First, stop the sweeper and the hub, which closes websocket clients
		sweeper.Stop()
		cancel()

		// Second, stop accepting new HTTP requests
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			zlog.Warn("server forced to shutdown", zap.Error(err))
		}

		// Third, flush pending audit writes
		if err := workerPool.Shutdown(30 * time.Second); err != nil {
			zlog.Warn("worker pool shutdown error", zap.Error(err))
		}

		// Finally, close database connections
		if err := postgresRepo.Close(); err != nil {
			zlog.Warn("error closing PostgreSQL", zap.Error(err))
		}
		if err := redisRepo.Close(); err != nil {
			zlog.Warn("error closing Redis", zap.Error(err))
		}

		zlog.Info("server shutdown complete")
	}()

	// Start server
	port := cfg.Server.Port
	zlog.Info("server starting", zap.Int("port", port))
	if err := app.Listen(fmt.Sprintf(":%d", port)); err != nil {
		zlog.Fatal("failed to start server", zap.Error(err))
	}
	<-stopped
}

// initPostgres initializes PostgreSQL connection with connection pooling
func initPostgres(cfg *config.Config, zlog *zap.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.GetDSN()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, err
	}

	// Get underlying sql.DB for connection pooling
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	// Audit workers plus request traffic
	maxOpen := cfg.Audit.Workers + 20
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)
	sqlDB.SetConnMaxIdleTime(2 * time.Minute)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, err
	}

	zlog.Info("PostgreSQL connection pool configured", zap.Int("max_open", maxOpen), zap.Int("max_idle", 10))
	return db, nil
}

// initRedis initializes Redis connection with connection pooling
func initRedis(cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.GetRedisAddr(),
		Username:     cfg.Redis.Username,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     20,
		MinIdleConns: 5,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return client, nil
}

// customErrorHandler renders unhandled errors as models.ErrorResponse
func customErrorHandler(zlog *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError

		var e *fiber.Error
		if errors.As(err, &e) {
			code = e.Code
		}
		if code >= fiber.StatusInternalServerError {
			zlog.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
		}

		return c.Status(code).JSON(models.ErrorResponse{
			Error:   "Request failed",
			Message: err.Error(),
		})
	}
}
