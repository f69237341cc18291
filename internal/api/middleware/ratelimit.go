package middleware

import (
	"context"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"chameleon/internal/audit"
	"chameleon/internal/metrics"
	"chameleon/internal/models"
	"chameleon/internal/ratelimit"
)

// LocalIdentifier is the Locals key holding the rate limit identifier
const LocalIdentifier = "rateLimitIdentifier"

// Limiter is the rate limit check the middleware depends on
type Limiter interface {
	Check(identifier string, tier ratelimit.Tier) ratelimit.Result
	Now() time.Time
}

// Auditor records security events
type Auditor interface {
	Log(ctx context.Context, e audit.Event) models.AuditEvent
}

// RequestIdentifier derives the rate limit key for a request. The address
// comes from c.IP(), which only honours the proxy header when the app is
// configured with trusted proxies.
func RequestIdentifier(c *fiber.Ctx) string {
	return ratelimit.Identifier(c.Get(fiber.HeaderAuthorization), c.IP())
}

// RateLimit rejects requests over the tier's quota with 429. auditor and m
// may be nil.
func RateLimit(limiter Limiter, tier ratelimit.Tier, auditor Auditor, m *metrics.Metrics, log *zap.Logger) fiber.Handler {
	log = log.Named("ratelimit")
	return func(c *fiber.Ctx) error {
		identifier := RequestIdentifier(c)
		c.Locals(LocalIdentifier, identifier)

		result := limiter.Check(identifier, tier)
		setLimitHeaders(c, result)

		if result.Success {
			m.RateLimit(string(tier), metrics.OutcomeAllowed)
			return c.Next()
		}

		retryAfter := result.RetryAfterSeconds(limiter.Now())
		outcome, eventType, message := metrics.OutcomeExceeded, audit.RateLimitExceeded, "Rate limit exceeded. Please slow down."
		if result.Blocked {
			outcome, eventType, message = metrics.OutcomeBlocked, audit.RateLimitBlocked, "Too many requests. You have been temporarily blocked."
		}
		m.RateLimit(string(tier), outcome)

		log.Warn("rate limit hit",
			zap.String("identifier", identifier),
			zap.String("tier", string(tier)),
			zap.String("path", c.Path()),
			zap.Bool("blocked", result.Blocked),
			zap.Int("violations", result.Violations),
			zap.Int("retry_after", retryAfter),
		)

		if auditor != nil {
			auditor.Log(c.UserContext(), audit.Event{
				Type:       eventType,
				Identifier: identifier,
				UserAgent:  c.Get(fiber.HeaderUserAgent),
				Path:       c.Path(),
				Method:     c.Method(),
				Message:    message,
				Details: map[string]any{
					"tier":       string(tier),
					"limit":      result.Limit,
					"violations": result.Violations,
				},
			})
		}

		body := models.RateLimitErrorResponse{
			Error:      message,
			Limit:      result.Limit,
			Remaining:  result.Remaining,
			Reset:      result.Reset.UTC().Format(time.RFC3339Nano),
			Blocked:    result.Blocked,
			RetryAfter: retryAfter,
		}
		if !result.BlockUntil.IsZero() {
			body.BlockUntil = result.BlockUntil.UTC().Format(time.RFC3339Nano)
		}

		c.Set(fiber.HeaderRetryAfter, strconv.Itoa(retryAfter))
		return c.Status(fiber.StatusTooManyRequests).JSON(body)
	}
}

func setLimitHeaders(c *fiber.Ctx, result ratelimit.Result) {
	c.Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	c.Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	c.Set("X-RateLimit-Reset", result.Reset.UTC().Format(time.RFC3339Nano))
}
