package middleware

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"

	"chameleon/internal/audit"
	"chameleon/internal/models"
)

// AdminKeyHeader carries the admin API key
const AdminKeyHeader = "X-Admin-Key"

// AdminOnly guards admin routes with a shared key. An empty key disables the
// routes entirely.
func AdminOnly(key string, auditor Auditor) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if key == "" {
			return c.Status(fiber.StatusNotFound).JSON(models.ErrorResponse{
				Error: "Not found",
			})
		}

		if subtle.ConstantTimeCompare([]byte(c.Get(AdminKeyHeader)), []byte(key)) != 1 {
			if auditor != nil {
				auditor.Log(c.UserContext(), audit.Event{
					Type:       audit.ForbiddenAction,
					Identifier: RequestIdentifier(c),
					UserAgent:  c.Get(fiber.HeaderUserAgent),
					Path:       c.Path(),
					Method:     c.Method(),
					Message:    "invalid admin key",
				})
			}
			return c.Status(fiber.StatusForbidden).JSON(models.ErrorResponse{
				Error: "Forbidden",
			})
		}
		return c.Next()
	}
}
