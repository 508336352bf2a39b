package middleware

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/repledger/backend/internal/auth"
	"github.com/repledger/backend/internal/config"
	"github.com/repledger/backend/internal/models"
	"github.com/repledger/backend/internal/rbac"
	"go.uber.org/zap"
)

const testSecret = "test-secret"

func token(t *testing.T, sess models.Session) string {
	t.Helper()
	tok, err := auth.GenerateJWT(testSecret, sess, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func TestAuthAndPermissions(t *testing.T) {
	cfg := &config.Config{JWTSecret: testSecret}
	app := fiber.New()
	app.Use(AuthMiddleware(cfg, zap.NewNop()))
	app.Post("/requests", RequirePermission(rbac.PermSubmitRequest), func(c *fiber.Ctx) error {
		return c.SendString(GetSession(c).Wallet)
	})
	app.Post("/requests/approve", RequirePermission(rbac.PermReviewRequest), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	member := models.Session{Identity: "alice@example.org", Wallet: "0:alice", Role: models.RoleMember}
	organizer := models.Session{Wallet: "0:org1", Role: models.RoleOrganizer}

	tests := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{"no header", "/requests", "", fiber.StatusUnauthorized},
		{"not bearer", "/requests", "Token abc", fiber.StatusUnauthorized},
		{"bad token", "/requests", "Bearer abc", fiber.StatusUnauthorized},
		{"member submits", "/requests", "Bearer " + token(t, member), fiber.StatusOK},
		{"organizer cannot submit", "/requests", "Bearer " + token(t, organizer), fiber.StatusForbidden},
		{"member cannot approve", "/requests/approve", "Bearer " + token(t, member), fiber.StatusForbidden},
		{"organizer approves", "/requests/approve", "Bearer " + token(t, organizer), fiber.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := app.Test(req)
			if err != nil {
				t.Fatal(err)
			}
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}
