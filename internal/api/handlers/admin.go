package handlers

import (
	"context"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"chameleon/internal/api/middleware"
	"chameleon/internal/audit"
	"chameleon/internal/models"
	"chameleon/internal/ratelimit"
)

const (
	defaultAuditLimit = 100
	maxAuditLimit     = 1000
)

// RateLimitAdmin inspects and clears limiter entries
type RateLimitAdmin interface {
	Status(identifier string, tier ratelimit.Tier) ratelimit.Result
	Reset(identifier string, tiers ...ratelimit.Tier) int
}

// AuditLog is the audit surface exposed to admins
type AuditLog interface {
	Log(ctx context.Context, e audit.Event) models.AuditEvent
	Recent(limit int) []models.AuditEvent
	ByIdentifier(identifier string, limit int) []models.AuditEvent
	BySeverity(severity audit.Severity, limit int) []models.AuditEvent
	CheckSuspicious(identifier string) audit.Suspicion
}

// AdminHandler serves operator endpoints
type AdminHandler struct {
	limiter RateLimitAdmin
	audit   AuditLog
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(limiter RateLimitAdmin, auditLog AuditLog) *AdminHandler {
	return &AdminHandler{limiter: limiter, audit: auditLog}
}

// tiersFromQuery returns the tier named by ?tier=, or every tier when absent
func tiersFromQuery(c *fiber.Ctx) ([]ratelimit.Tier, error) {
	raw := c.Query("tier")
	if raw == "" {
		return ratelimit.Tiers(), nil
	}
	tier, err := ratelimit.ParseTier(raw)
	if err != nil {
		return nil, err
	}
	return []ratelimit.Tier{tier}, nil
}

// GetRateLimitStatus handles GET /api/v1/admin/rate-limit/:identifier
// @Summary Inspect rate limit state
// @Produce json
// @Param identifier path string true "Rate limit identifier"
// @Param tier query string false "Tier; all tiers when omitted"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} models.ErrorResponse
// @Router /api/v1/admin/rate-limit/{identifier} [get]
func (h *AdminHandler) GetRateLimitStatus(c *fiber.Ctx) error {
	identifier := c.Params("identifier")
	tiers, err := tiersFromQuery(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
			Error:   "Invalid tier",
			Message: err.Error(),
		})
	}

	status := make(map[ratelimit.Tier]ratelimit.Result, len(tiers))
	for _, tier := range tiers {
		status[tier] = h.limiter.Status(identifier, tier)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"identifier": identifier,
		"tiers":      status,
		"suspicion":  h.audit.CheckSuspicious(identifier),
	})
}

// ResetRateLimit handles DELETE /api/v1/admin/rate-limit/:identifier
// @Summary Clear rate limit state
// @Produce json
// @Param identifier path string true "Rate limit identifier"
// @Param tier query string false "Tier; all tiers when omitted"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} models.ErrorResponse
// @Router /api/v1/admin/rate-limit/{identifier} [delete]
func (h *AdminHandler) ResetRateLimit(c *fiber.Ctx) error {
	identifier := c.Params("identifier")
	tiers, err := tiersFromQuery(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
			Error:   "Invalid tier",
			Message: err.Error(),
		})
	}

	removed := h.limiter.Reset(identifier, tiers...)
	h.audit.Log(c.UserContext(), audit.Event{
		Type:       audit.AdminAction,
		Identifier: middleware.RequestIdentifier(c),
		UserAgent:  c.Get(fiber.HeaderUserAgent),
		Path:       c.Path(),
		Method:     c.Method(),
		Message:    "rate limit reset",
		Details: map[string]any{
			"target":  identifier,
			"tiers":   tiers,
			"removed": removed,
		},
	})

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"identifier": identifier,
		"removed":    removed,
	})
}

// GetAuditEvents handles GET /api/v1/admin/audit
// @Summary List recent audit events
// @Produce json
// @Param limit query int false "Maximum events" default(100)
// @Param identifier query string false "Only events for this identifier or user ID"
// @Param severity query string false "Only events of this severity (low, medium, high, critical)"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} models.ErrorResponse
// @Router /api/v1/admin/audit [get]
func (h *AdminHandler) GetAuditEvents(c *fiber.Ctx) error {
	limit, err := strconv.Atoi(c.Query("limit", strconv.Itoa(defaultAuditLimit)))
	if err != nil || limit <= 0 {
		limit = defaultAuditLimit
	}
	if limit > maxAuditLimit {
		limit = maxAuditLimit
	}

	var severity audit.Severity
	if raw := c.Query("severity"); raw != "" {
		if severity, err = audit.ParseSeverity(raw); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
				Error:   "Invalid severity",
				Message: err.Error(),
			})
		}
	}

	identifier := c.Query("identifier")
	var events []models.AuditEvent
	switch {
	case identifier != "" && severity != "":
		events = make([]models.AuditEvent, 0, limit)
		for _, e := range h.audit.ByIdentifier(identifier, maxAuditLimit) {
			if e.Severity == string(severity) && len(events) < limit {
				events = append(events, e)
			}
		}
	case identifier != "":
		events = h.audit.ByIdentifier(identifier, limit)
	case severity != "":
		events = h.audit.BySeverity(severity, limit)
	default:
		events = h.audit.Recent(limit)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"count":  len(events),
		"events": events,
	})
}
