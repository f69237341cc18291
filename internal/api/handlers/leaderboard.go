package handlers

import (
	"context"
	"errors"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"chameleon/internal/api/middleware"
	"chameleon/internal/models"
	"chameleon/internal/repository"
	"chameleon/internal/service"
)

// Tournament is the tournament service surface the handlers call
type Tournament interface {
	GetLeaderboard(ctx context.Context, level int, authID string) (models.LeaderboardResponse, error)
	ComputeScore(ctx context.Context, authID string, level int) (models.TournamentScoreResponse, error)
	GetUserStats(ctx context.Context, userID int64, level int) (models.UserTournamentStats, error)
	GetRecap(ctx context.Context, userID int64) (models.RecapResponse, error)
	RecordAttempt(ctx context.Context, authID string, req models.QuizAttemptRequest) (*models.QuizAttempt, error)
	HealthCheck(ctx context.Context) map[string]string
}

// LeaderboardHandler handles HTTP requests for the tournament
type LeaderboardHandler struct {
	service   Tournament
	validator *validator.Validate
	logger    *zap.Logger
}

// NewLeaderboardHandler creates a new leaderboard handler
func NewLeaderboardHandler(service Tournament, logger *zap.Logger) *LeaderboardHandler {
	return &LeaderboardHandler{
		service:   service,
		validator: validator.New(),
		logger:    logger.Named("handlers"),
	}
}

// GetLeaderboard handles GET /api/v1/tournament/leaderboard
// @Summary Get tournament leaderboard
// @Description Retrieves the top of a level's ranking and the caller's own entry
// @Accept json
// @Produce json
// @Param level query int false "Quiz level (1-3)" default(1)
// @Success 200 {object} models.LeaderboardResponse
// @Failure 400 {object} models.ErrorResponse
// @Router /api/v1/tournament/leaderboard [get]
func (h *LeaderboardHandler) GetLeaderboard(c *fiber.Ctx) error {
	level, err := strconv.Atoi(c.Query("level", "1"))
	if err != nil || !service.ValidLevel(level) {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
			Error:   "Invalid level",
			Message: service.ErrInvalidLevel.Error(),
		})
	}

	leaderboard, err := h.service.GetLeaderboard(c.UserContext(), level, middleware.AuthID(c))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(models.ErrorResponse{
			Error:   "Failed to retrieve leaderboard",
			Message: err.Error(),
		})
	}

	return c.Status(fiber.StatusOK).JSON(leaderboard)
}

// ComputeScore handles POST /api/v1/tournament/compute-score
// @Summary Compute a user's tournament score
// @Description Breaks down a user's first attempts on a level into points
// @Accept json
// @Produce json
// @Param request body models.ComputeScoreRequest true "Compute score request"
// @Success 200 {object} models.TournamentScoreResponse
// @Failure 400 {object} models.TournamentScoreResponse
// @Failure 404 {object} models.TournamentScoreResponse
// @Failure 500 {object} models.TournamentScoreResponse
// @Router /api/v1/tournament/compute-score [post]
func (h *LeaderboardHandler) ComputeScore(c *fiber.Ctx) error {
	var req models.ComputeScoreRequest

	if err := c.BodyParser(&req); err != nil {
		return scoreError(c, fiber.StatusBadRequest, "Invalid request body")
	}

	if err := h.validator.Struct(&req); err != nil {
		return scoreError(c, fiber.StatusBadRequest, "Missing authId or invalid quizLevel (must be 1, 2, or 3)")
	}

	result, err := h.service.ComputeScore(c.UserContext(), req.AuthID, req.QuizLevel)
	switch {
	case errors.Is(err, repository.ErrProfileNotFound):
		return scoreError(c, fiber.StatusNotFound, "User profile not found")
	case errors.Is(err, service.ErrInvalidLevel):
		return scoreError(c, fiber.StatusBadRequest, err.Error())
	case err != nil:
		h.logger.Error("compute score failed", zap.String("auth_id", req.AuthID), zap.Error(err))
		return scoreError(c, fiber.StatusInternalServerError, "Failed to compute score")
	}

	return c.Status(fiber.StatusOK).JSON(result)
}

func scoreError(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(models.TournamentScoreResponse{
		Success: false,
		Error:   message,
	})
}

// GetUserStats handles GET /api/v1/tournament/stats/:userId
// @Summary Get a user's tournament stats
// @Accept json
// @Produce json
// @Param userId path int true "User ID"
// @Param level query int false "Quiz level (1-3)" default(1)
// @Success 200 {object} models.UserTournamentStats
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /api/v1/tournament/stats/{userId} [get]
func (h *LeaderboardHandler) GetUserStats(c *fiber.Ctx) error {
	userID, err := strconv.ParseInt(c.Params("userId"), 10, 64)
	if err != nil || userID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
			Error:   "Invalid user ID",
			Message: "userId must be a positive integer",
		})
	}

	level, err := strconv.Atoi(c.Query("level", "1"))
	if err != nil || !service.ValidLevel(level) {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
			Error:   "Invalid level",
			Message: service.ErrInvalidLevel.Error(),
		})
	}

	stats, err := h.service.GetUserStats(c.UserContext(), userID, level)
	if err != nil {
		return h.lookupError(c, "Failed to retrieve stats", err)
	}

	return c.Status(fiber.StatusOK).JSON(stats)
}

// GetRecap handles GET /api/v1/recap/:userId
// @Summary Get a user's yearly recap
// @Accept json
// @Produce json
// @Param userId path int true "User ID"
// @Success 200 {object} models.RecapResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /api/v1/recap/{userId} [get]
func (h *LeaderboardHandler) GetRecap(c *fiber.Ctx) error {
	userID, err := strconv.ParseInt(c.Params("userId"), 10, 64)
	if err != nil || userID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
			Error:   "Invalid user ID",
			Message: "userId must be a positive integer",
		})
	}

	recap, err := h.service.GetRecap(c.UserContext(), userID)
	if err != nil {
		return h.lookupError(c, "Failed to generate recap", err)
	}

	return c.Status(fiber.StatusOK).JSON(recap)
}

// RecordAttempt handles POST /api/v1/quiz-attempts
// @Summary Record a quiz attempt
// @Description Stores an attempt for the authenticated caller
// @Accept json
// @Produce json
// @Param request body models.QuizAttemptRequest true "Quiz attempt"
// @Success 201 {object} models.QuizAttempt
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /api/v1/quiz-attempts [post]
func (h *LeaderboardHandler) RecordAttempt(c *fiber.Ctx) error {
	var req models.QuizAttemptRequest

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
			Error:   "Invalid request body",
			Message: err.Error(),
		})
	}

	if err := h.validator.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
			Error:   "Validation failed",
			Message: err.Error(),
		})
	}

	attempt, err := h.service.RecordAttempt(c.UserContext(), middleware.AuthID(c), req)
	if err != nil {
		return h.lookupError(c, "Failed to record attempt", err)
	}

	return c.Status(fiber.StatusCreated).JSON(attempt)
}

// HealthCheck handles GET /api/v1/health
// @Summary Health check
// @Description Checks the health of the service and its dependencies
// @Accept json
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /api/v1/health [get]
func (h *LeaderboardHandler) HealthCheck(c *fiber.Ctx) error {
	checks := h.service.HealthCheck(c.UserContext())

	status := fiber.StatusOK
	overall := "healthy"
	for _, state := range checks {
		if state != "healthy" {
			status = fiber.StatusServiceUnavailable
			overall = "degraded"
		}
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overall,
		"checks": checks,
	})
}

func (h *LeaderboardHandler) lookupError(c *fiber.Ctx, message string, err error) error {
	switch {
	case errors.Is(err, repository.ErrProfileNotFound):
		return c.Status(fiber.StatusNotFound).JSON(models.ErrorResponse{
			Error:   "User not found",
			Message: err.Error(),
		})
	case errors.Is(err, service.ErrInvalidLevel):
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
			Error:   "Invalid level",
			Message: err.Error(),
		})
	}

	h.logger.Error(message, zap.String("path", c.Path()), zap.Error(err))
	return c.Status(fiber.StatusInternalServerError).JSON(models.ErrorResponse{
		Error:   message,
		Message: err.Error(),
	})
}
