package middleware

import (
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"reftrail/internal/settings"
)

// APIKeyAuth validates a bearer API key against the bcrypt hash stored under
// the given settings key. Used with settings.KeyAdminAPIKeyHash for the admin
// surface and settings.KeyBotAPIKeyHash for the bot endpoints.
// Expects: Authorization: Bearer <api_key>
func APIKeyAuth(db *gorm.DB, logger *slog.Logger, hashKey string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing Authorization header",
			})
		}

		if !strings.HasPrefix(authHeader, "Bearer ") {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid Authorization header format. Expected: Bearer <api_key>",
			})
		}

		providedKey := strings.TrimPrefix(authHeader, "Bearer ")
		if providedKey == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "API key is empty",
			})
		}

		if !settings.VerifyAPIKey(db, hashKey, providedKey) {
			logger.Warn("Rejected request with invalid API key",
				slog.String("path", c.Path()),
				slog.String("key_kind", hashKey))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid API key",
			})
		}

		return c.Next()
	}
}
