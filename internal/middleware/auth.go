package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/repledger/backend/internal/auth"
	"github.com/repledger/backend/internal/config"
	"github.com/repledger/backend/internal/models"
	"github.com/repledger/backend/internal/rbac"
	"go.uber.org/zap"
)

const CtxSession = "session"

func AuthMiddleware(cfg *config.Config, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing authorization header"})
		}

		tokenStr := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenStr == authHeader {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid authorization format"})
		}

		claims, err := auth.ParseJWT(cfg.JWTSecret, tokenStr)
		if err != nil {
			log.Debug("jwt parse error", zap.Error(err))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid or expired token"})
		}

		c.Locals(CtxSession, claims.Session())
		return c.Next()
	}
}

func GetSession(c *fiber.Ctx) models.Session {
	sess, _ := c.Locals(CtxSession).(models.Session)
	return sess
}

// RequirePermission gates a route on the session role.
func RequirePermission(perm string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !rbac.HasPermission(GetSession(c).Role, perm) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "insufficient permissions"})
		}
		return c.Next()
	}
}
