package middleware

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"

	"chameleon/internal/audit"
	"chameleon/internal/models"
)

// LocalAuthID is the Locals key holding the verified subject of the bearer token
const LocalAuthID = "authId"

var errMissingToken = errors.New("missing bearer token")

// Authenticator verifies HS256 access tokens signed with a shared secret
type Authenticator struct {
	secret  []byte
	auditor Auditor
}

// NewAuthenticator creates an authenticator. auditor may be nil.
func NewAuthenticator(secret string, auditor Auditor) *Authenticator {
	return &Authenticator{secret: []byte(secret), auditor: auditor}
}

// Subject validates a raw token and returns its sub claim
func (a *Authenticator) Subject(raw string) (string, error) {
	if raw == "" {
		return "", errMissingToken
	}
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return "", err
	}
	if !token.Valid || claims.Subject == "" {
		return "", errors.New("token has no subject")
	}
	return claims.Subject, nil
}

// Optional resolves the caller when a valid token is present and otherwise
// lets the request through anonymously
func (a *Authenticator) Optional() fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := bearer(c)
		if raw == "" || len(a.secret) == 0 {
			return c.Next()
		}
		subject, err := a.Subject(raw)
		if err != nil {
			a.record(c, audit.InvalidToken, err)
			return c.Next()
		}
		c.Locals(LocalAuthID, subject)
		return c.Next()
	}
}

// Required rejects requests without a valid token with 401
func (a *Authenticator) Required() fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := bearer(c)
		subject, err := a.Subject(raw)
		if err != nil {
			eventType := audit.InvalidToken
			if errors.Is(err, errMissingToken) {
				eventType = audit.UnauthorizedAccess
			}
			a.record(c, eventType, err)
			return c.Status(fiber.StatusUnauthorized).JSON(models.ErrorResponse{
				Error:   "Unauthorized",
				Message: "A valid access token is required",
			})
		}
		c.Locals(LocalAuthID, subject)
		return c.Next()
	}
}

func (a *Authenticator) record(c *fiber.Ctx, eventType audit.EventType, err error) {
	if a.auditor == nil {
		return
	}
	a.auditor.Log(c.UserContext(), audit.Event{
		Type:       eventType,
		Identifier: RequestIdentifier(c),
		UserAgent:  c.Get(fiber.HeaderUserAgent),
		Path:       c.Path(),
		Method:     c.Method(),
		Message:    err.Error(),
	})
}

// AuthID returns the verified caller, or "" for anonymous requests
func AuthID(c *fiber.Ctx) string {
	id, _ := c.Locals(LocalAuthID).(string)
	return id
}

func bearer(c *fiber.Ctx) string {
	header := c.Get(fiber.HeaderAuthorization)
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}
