package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/repledger/backend/internal/config"
	"github.com/repledger/backend/internal/db"
	"github.com/repledger/backend/internal/eventmeta"
	"github.com/repledger/backend/internal/events"
	apphttp "github.com/repledger/backend/internal/http"
	"github.com/repledger/backend/internal/http/handlers"
	"github.com/repledger/backend/internal/identity"
	"github.com/repledger/backend/internal/ledger"
	"github.com/repledger/backend/internal/registry"
	"github.com/repledger/backend/internal/repositories"
	"github.com/repledger/backend/internal/services"
	"go.uber.org/zap"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	cfg.Validate(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, int32(cfg.PostgresMaxConns), log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	// Run migrations
	if err := db.RunMigrations(ctx, pool, os.DirFS(cfg.MigrationsDir), log); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}

	// Redis
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	// Ledger
	ledgerClient, err := ledger.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to open ledger", zap.String("backend", cfg.LedgerBackend), zap.Error(err))
	}
	if c, ok := ledgerClient.(io.Closer); ok {
		defer c.Close()
	}

	// Repositories
	queueRepo := repositories.NewPendingActionRepo(pool)
	eventRepo := repositories.NewEventRepo(pool)
	auditRepo := repositories.NewAuditRepo(pool)
	proofRepo := repositories.NewProofRepo(pool)
	schemaRegistry := registry.New(repositories.NewSchemaRepo(pool), cfg.CommunityID, cfg.SchemaID, log)

	// Events
	publisher := events.NewRedisPublisher(rdb, log)
	subscriber := events.NewRedisSubscriber(rdb, log)

	// Services
	authority := services.NewAuthority(ledgerClient)
	engine := services.NewApprovalEngine(queueRepo, schemaRegistry, authority, eventRepo, auditRepo, publisher, cfg.MintLease, log)
	driver := services.NewMintDriver(engine, ledgerClient, cfg.LedgerConfirmTimeout, log)
	queueService := services.NewQueueService(queueRepo, eventRepo, auditRepo, authority, publisher, log)
	historyService := services.NewHistoryService(queueRepo, ledgerClient, schemaRegistry, log)
	fetcher := eventmeta.NewFetcher(cfg.EventFetchTimeoutMS, cfg.EventFetchMaxRetries, log)
	eventService := services.NewEventService(eventRepo, fetcher, authority, auditRepo, publisher, log)
	bridge := identity.NewHTTPBridge(cfg.IdentityBridgeURL, log)
	sessionService := services.NewSessionService(proofRepo, bridge, authority, auditRepo, cfg.TONNetwork, cfg.TONProofAllowedDomains, log)

	// Handlers
	authHandler := handlers.NewAuthHandler(sessionService, cfg, log)
	requestHandler := handlers.NewRequestHandler(queueService, engine, driver, log)
	schemaHandler := handlers.NewSchemaHandler(schemaRegistry, log)
	eventHandler := handlers.NewEventHandler(eventService, log)
	historyHandler := handlers.NewHistoryHandler(historyService, log)
	wsHub := handlers.NewWSHub(cfg, subscriber, log)

	// Start WS hub
	if err := wsHub.Start(ctx); err != nil {
		log.Fatal("failed to subscribe ws hub", zap.Error(err))
	}

	// Warm the schema cache; a failure here is retried on first use.
	if _, err := schemaRegistry.Get(ctx); err != nil {
		log.Warn("action schema not loaded yet", zap.Error(err))
	}

	// Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	apphttp.SetupRouter(app, cfg, log, rdb, authHandler, requestHandler, schemaHandler, eventHandler, historyHandler, wsHub)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")
		cancel()
		_ = app.Shutdown()
	}()

	addr := fmt.Sprintf(":%s", cfg.APIPort)
	log.Info("starting API server",
		zap.String("addr", addr),
		zap.String("ledger", cfg.LedgerBackend),
		zap.String("schema", cfg.CommunityID+"/"+cfg.SchemaID),
	)
	if err := app.Listen(addr); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}
