package middleware

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"poplift/internal/auth"
	"poplift/internal/pkg/respond"
	"poplift/internal/security"
)

const targetUserKey = "target_user_id"

// Authenticate verifies the bearer credential. With required=false a request
// without an Authorization header passes anonymously; a present but invalid
// credential is always rejected.
func Authenticate(verifier auth.Verifier, required bool, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		if header == "" {
			if !required {
				return c.Next()
			}
			return reject(c, fiber.StatusUnauthorized, "unauthorized", "authorization required")
		}

		token := auth.ExtractBearer(header)
		principal, err := verifier.Verify(c.UserContext(), token)
		if err != nil {
			logger.Debug("bearer verification failed", zap.String("path", c.Path()), zap.Error(err))
			if errors.Is(err, auth.ErrMissingToken) {
				return reject(c, fiber.StatusUnauthorized, "unauthorized", "authorization required")
			}
			return reject(c, fiber.StatusUnauthorized, "invalid_token", "invalid or expired token")
		}

		auth.SetPrincipal(c, principal)
		return c.Next()
	}
}

// OwnerSource extracts the target account id from a request.
type OwnerSource func(c *fiber.Ctx) (string, error)

var errInvalidJSON = errors.New("invalid json body")

// OwnerFromBody reads "user_id" from a JSON body.
func OwnerFromBody(c *fiber.Ctx) (string, error) {
	var body struct {
		UserID string `json:"user_id"`
	}
	if err := json.Unmarshal(c.Body(), &body); err != nil {
		return "", errInvalidJSON
	}
	return body.UserID, nil
}

// OwnerFromQuery reads the user_id query parameter.
func OwnerFromQuery(c *fiber.Ctx) (string, error) {
	return c.Query("user_id"), nil
}

// RequireOwner validates the target account id and, when a principal is
// present, rejects requests that target another account.
func RequireOwner(source OwnerSource) fiber.Handler {
	return func(c *fiber.Ctx) error {
		target, err := source(c)
		if err != nil {
			return reject(c, fiber.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		}

		target = strings.TrimSpace(target)
		if !security.IsValidUUID(target) {
			return reject(c, fiber.StatusBadRequest, "invalid_user_id", "user_id must be a valid UUID")
		}
		target = strings.ToLower(target)

		if p, ok := auth.PrincipalFrom(c); ok && p.UserID != target {
			return respond.Fail(c, fiber.StatusForbidden, "forbidden", "cannot access another account")
		}

		c.Locals(targetUserKey, target)
		return c.Next()
	}
}

// TargetUser returns the account id validated by RequireOwner.
func TargetUser(c *fiber.Ctx) string {
	id, _ := c.Locals(targetUserKey).(string)
	return id
}
