package http

import (
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"github.com/repledger/backend/internal/config"
	"github.com/repledger/backend/internal/http/handlers"
	"github.com/repledger/backend/internal/middleware"
	"github.com/repledger/backend/internal/rbac"
	"go.uber.org/zap"
)

func SetupRouter(
	app *fiber.App,
	cfg *config.Config,
	log *zap.Logger,
	rdb *redis.Client,
	authHandler *handlers.AuthHandler,
	requestHandler *handlers.RequestHandler,
	schemaHandler *handlers.SchemaHandler,
	eventHandler *handlers.EventHandler,
	historyHandler *handlers.HistoryHandler,
	wsHub *handlers.WSHub,
) {
	// Global middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
	}))
	app.Use(middleware.RequestIDMiddleware())
	app.Use(middleware.LoggerMiddleware(log))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	limiter := middleware.RateLimitMiddleware(rdb, cfg.RateLimitPerMinute, time.Minute, log)

	api := app.Group("/api/v1")

	// Auth (public)
	api.Post("/auth/identity", limiter, authHandler.IdentityAuth)
	api.Post("/auth/organizer/proof-payload", limiter, authHandler.ProofPayload)
	api.Post("/auth/organizer/connect", limiter, authHandler.OrganizerConnect)

	// Public reads
	api.Get("/schema", limiter, schemaHandler.Get)
	api.Get("/events", limiter, eventHandler.List)
	api.Get("/wallets/:wallet/history", limiter, historyHandler.Wallet)
	api.Get("/wallets/:wallet/reputation", limiter, historyHandler.WalletReputation)

	// Protected endpoints
	protected := api.Group("", middleware.AuthMiddleware(cfg, log), limiter)

	// Members
	viewOwn := middleware.RequirePermission(rbac.PermViewOwn)
	protected.Get("/me/history", viewOwn, historyHandler.Mine)
	protected.Get("/me/reputation", viewOwn, historyHandler.MyReputation)
	protected.Post("/requests", middleware.RequirePermission(rbac.PermSubmitRequest), requestHandler.Submit)
	protected.Get("/requests/mine", viewOwn, requestHandler.Mine)
	protected.Get("/requests/:id/audit", requestHandler.Audit)

	// Review
	review := middleware.RequirePermission(rbac.PermReviewRequest)
	protected.Get("/requests/pending", review, requestHandler.Pending)
	protected.Post("/requests/:id/approve", review, requestHandler.Approve)
	protected.Post("/requests/:id/abort", review, requestHandler.Abort)
	protected.Post("/requests/:id/finalize", review, requestHandler.Finalize)
	protected.Post("/requests/:id/reject", review, requestHandler.Reject)
	protected.Post("/requests/:id/mint", review, requestHandler.Mint)

	// Event directory
	protected.Post("/events", middleware.RequirePermission(rbac.PermManageEvents), eventHandler.Create)

	// WebSocket
	app.Use("/ws", handlers.WSUpgradeMiddleware())
	app.Get("/ws", websocket.New(wsHub.HandleWS))
}
