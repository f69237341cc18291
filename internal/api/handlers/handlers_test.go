package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"chameleon/internal/api/middleware"
	"chameleon/internal/audit"
	"chameleon/internal/models"
	"chameleon/internal/ratelimit"
	"chameleon/internal/repository"
	"chameleon/internal/service"
)

type fakeTournament struct {
	err        error
	lastLevel  int
	lastAuth   string
	lastUserID int64
	recorded   []models.QuizAttemptRequest
	health     map[string]string
}

func (f *fakeTournament) GetLeaderboard(_ context.Context, level int, authID string) (models.LeaderboardResponse, error) {
	f.lastLevel, f.lastAuth = level, authID
	return models.LeaderboardResponse{
		Level:       level,
		Leaderboard: []models.LeaderboardEntry{{Rank: 1, ID: 7, Name: "ada", Points: 36}},
	}, nil
}

func (f *fakeTournament) ComputeScore(_ context.Context, authID string, level int) (models.TournamentScoreResponse, error) {
	f.lastAuth, f.lastLevel = authID, level
	if f.err != nil {
		return models.TournamentScoreResponse{}, f.err
	}
	return models.TournamentScoreResponse{Success: true, Summary: &models.ScoreSummary{TotalPoints: 16}}, nil
}

func (f *fakeTournament) GetUserStats(_ context.Context, userID int64, level int) (models.UserTournamentStats, error) {
	f.lastUserID, f.lastLevel = userID, level
	if f.err != nil {
		return models.UserTournamentStats{}, f.err
	}
	return models.UserTournamentStats{Username: "ada", Rank: 1, Level: level}, nil
}

func (f *fakeTournament) GetRecap(_ context.Context, userID int64) (models.RecapResponse, error) {
	f.lastUserID = userID
	if f.err != nil {
		return models.RecapResponse{}, f.err
	}
	return models.RecapResponse{Username: "ada", TotalQuizzes: 4}, nil
}

func (f *fakeTournament) RecordAttempt(_ context.Context, authID string, req models.QuizAttemptRequest) (*models.QuizAttempt, error) {
	f.lastAuth = authID
	if f.err != nil {
		return nil, f.err
	}
	f.recorded = append(f.recorded, req)
	return &models.QuizAttempt{ID: 1, QuizID: req.QuizID, QuizLevel: req.QuizLevel, Score: req.Score}, nil
}

func (f *fakeTournament) HealthCheck(context.Context) map[string]string {
	return f.health
}

func newApp(svc *fakeTournament, authID string) *fiber.App {
	h := NewLeaderboardHandler(svc, zap.NewNop())
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		if authID != "" {
			c.Locals(middleware.LocalAuthID, authID)
		}
		return c.Next()
	})
	api := app.Group("/api/v1")
	api.Get("/tournament/leaderboard", h.GetLeaderboard)
	api.Post("/tournament/compute-score", h.ComputeScore)
	api.Get("/tournament/stats/:userId", h.GetUserStats)
	api.Get("/recap/:userId", h.GetRecap)
	api.Post("/quiz-attempts", h.RecordAttempt)
	api.Get("/health", h.HealthCheck)
	return app
}

func do(t *testing.T, app *fiber.App, method, target, body string) (*http.Response, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func TestGetLeaderboard(t *testing.T) {
	svc := &fakeTournament{}
	app := newApp(svc, "auth-1")

	resp, body := do(t, app, http.MethodGet, "/api/v1/tournament/leaderboard?level=2", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2, svc.lastLevel)
	assert.Equal(t, "auth-1", svc.lastAuth)
	assert.Len(t, body["leaderboard"], 1)

	_, _ = do(t, app, http.MethodGet, "/api/v1/tournament/leaderboard", "")
	assert.Equal(t, 1, svc.lastLevel, "level defaults to 1")

	for _, level := range []string{"0", "4", "abc"} {
		resp, _ := do(t, app, http.MethodGet, "/api/v1/tournament/leaderboard?level="+level, "")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, level)
	}
}

func TestComputeScore(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		err    error
		status int
		errMsg string
	}{
		{"ok", `{"authId":"auth-1","quizLevel":1}`, nil, http.StatusOK, ""},
		{"missing auth id", `{"quizLevel":1}`, nil, http.StatusBadRequest, "Missing authId"},
		{"bad level", `{"authId":"auth-1","quizLevel":5}`, nil, http.StatusBadRequest, "Missing authId"},
		{"malformed", `{"authId":`, nil, http.StatusBadRequest, "Invalid request body"},
		{"unknown profile", `{"authId":"nobody","quizLevel":1}`, repository.ErrProfileNotFound, http.StatusNotFound, "User profile not found"},
		{"store failure", `{"authId":"auth-1","quizLevel":1}`, errors.New("timeout"), http.StatusInternalServerError, "Failed to compute score"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newApp(&fakeTournament{err: tt.err}, "")
			resp, body := do(t, app, http.MethodPost, "/api/v1/tournament/compute-score", tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			if tt.errMsg == "" {
				assert.Equal(t, true, body["success"])
				return
			}
			assert.Equal(t, false, body["success"])
			assert.Contains(t, body["error"], tt.errMsg)
		})
	}
}

func TestGetUserStats(t *testing.T) {
	svc := &fakeTournament{}
	app := newApp(svc, "")

	resp, body := do(t, app, http.MethodGet, "/api/v1/tournament/stats/42?level=3", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(42), svc.lastUserID)
	assert.Equal(t, float64(3), body["level"])

	resp, _ = do(t, app, http.MethodGet, "/api/v1/tournament/stats/abc", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	svc.err = repository.ErrProfileNotFound
	resp, _ = do(t, app, http.MethodGet, "/api/v1/tournament/stats/42", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetRecap(t *testing.T) {
	svc := &fakeTournament{}
	app := newApp(svc, "")

	resp, body := do(t, app, http.MethodGet, "/api/v1/recap/9", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ada", body["username"])

	svc.err = errors.New("connection reset")
	resp, body = do(t, app, http.MethodGet, "/api/v1/recap/9", "")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "Failed to generate recap", body["error"])
}

func TestRecordAttempt(t *testing.T) {
	svc := &fakeTournament{}
	app := newApp(svc, "auth-1")

	resp, body := do(t, app, http.MethodPost, "/api/v1/quiz-attempts",
		`{"quiz_id":101,"score":85,"quiz_level":2,"duration_selected":"5 minutes","total_questions":20}`)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, float64(101), body["quiz_id"])
	require.Len(t, svc.recorded, 1)
	assert.Equal(t, "auth-1", svc.lastAuth)
	assert.Equal(t, "5 minutes", svc.recorded[0].DurationSelected)

	resp, _ = do(t, app, http.MethodPost, "/api/v1/quiz-attempts", `{"quiz_id":101,"score":185,"quiz_level":2}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "score above 100")

	svc.err = service.ErrInvalidLevel
	resp, _ = do(t, app, http.MethodPost, "/api/v1/quiz-attempts", `{"quiz_id":101,"quiz_level":1}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealthCheck(t *testing.T) {
	svc := &fakeTournament{health: map[string]string{"postgres": "healthy", "redis": "healthy"}}
	app := newApp(svc, "")

	resp, body := do(t, app, http.MethodGet, "/api/v1/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", body["status"])

	svc.health["redis"] = "unhealthy: dial tcp: refused"
	resp, body = do(t, app, http.MethodGet, "/api/v1/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "degraded", body["status"])
}

func TestAdminRateLimit(t *testing.T) {
	now := time.Date(2025, time.November, 3, 10, 0, 0, 0, time.UTC)
	limiter := ratelimit.New(ratelimit.WithClock(func() time.Time { return now }))
	auditLog := audit.New(100, zap.NewNop())
	for range 3 {
		limiter.Check("ip:203.0.113.7", ratelimit.TierRead)
	}
	limiter.Check("ip:203.0.113.7", ratelimit.TierWrite)

	h := NewAdminHandler(limiter, auditLog)
	app := fiber.New()
	app.Get("/admin/rate-limit/:identifier", h.GetRateLimitStatus)
	app.Delete("/admin/rate-limit/:identifier", h.ResetRateLimit)
	app.Get("/admin/audit", h.GetAuditEvents)

	resp, body := do(t, app, http.MethodGet, "/admin/rate-limit/ip:203.0.113.7?tier=read", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	tiers := body["tiers"].(map[string]any)
	require.Contains(t, tiers, "read")
	assert.Equal(t, float64(57), tiers["read"].(map[string]any)["remaining"])

	resp, _ = do(t, app, http.MethodGet, "/admin/rate-limit/ip:203.0.113.7?tier=bogus", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = do(t, app, http.MethodDelete, "/admin/rate-limit/ip:203.0.113.7?tier=read", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), body["removed"])
	assert.Equal(t, 1, limiter.Len(), "write tier untouched")

	_, body = do(t, app, http.MethodDelete, "/admin/rate-limit/ip:203.0.113.7", "")
	assert.Equal(t, float64(1), body["removed"])
	assert.Zero(t, limiter.Len())

	resp, body = do(t, app, http.MethodGet, "/admin/audit?limit=1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), body["count"])
	event := body["events"].([]any)[0].(map[string]any)
	assert.Equal(t, string(audit.AdminAction), event["event_type"])
	assert.Equal(t, 2, auditLog.Len())

	auditLog.Log(context.Background(), audit.Event{Type: audit.RateLimitBlocked, Identifier: "ip:203.0.113.7"})
	auditLog.Log(context.Background(), audit.Event{Type: audit.InvalidToken, Identifier: "ip:198.51.100.2"})

	_, body = do(t, app, http.MethodGet, "/admin/audit?severity=high", "")
	assert.Equal(t, float64(2), body["count"])

	_, body = do(t, app, http.MethodGet, "/admin/audit?severity=low", "")
	assert.Equal(t, float64(2), body["count"], "both resets")

	_, body = do(t, app, http.MethodGet, "/admin/audit?severity=HIGH&identifier=ip:203.0.113.7", "")
	require.Equal(t, float64(1), body["count"])
	event = body["events"].([]any)[0].(map[string]any)
	assert.Equal(t, string(audit.RateLimitBlocked), event["event_type"])

	resp, body = do(t, app, http.MethodGet, "/admin/audit?severity=urgent", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Invalid severity", body["error"])
}
