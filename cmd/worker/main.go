package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/repledger/backend/internal/config"
	"github.com/repledger/backend/internal/db"
	"github.com/repledger/backend/internal/events"
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

	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, 5, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	ledgerClient, err := ledger.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to open ledger", zap.String("backend", cfg.LedgerBackend), zap.Error(err))
	}
	if c, ok := ledgerClient.(io.Closer); ok {
		defer c.Close()
	}

	// Repos
	queueRepo := repositories.NewPendingActionRepo(pool)
	eventRepo := repositories.NewEventRepo(pool)
	auditRepo := repositories.NewAuditRepo(pool)
	schemaRegistry := registry.New(repositories.NewSchemaRepo(pool), cfg.CommunityID, cfg.SchemaID, log)

	// Services
	publisher := events.NewRedisPublisher(rdb, log)
	authority := services.NewAuthority(ledgerClient)
	engine := services.NewApprovalEngine(queueRepo, schemaRegistry, authority, eventRepo, auditRepo, publisher, cfg.MintLease, log)
	reconciler := services.NewReconciler(queueRepo, ledgerClient, engine, log)

	log.Info("worker started", zap.Duration("reconcile_interval", cfg.ReconcileInterval))

	reconcileTicker := time.NewTicker(cfg.ReconcileInterval)
	defer reconcileTicker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	runReconcile(ctx, reconciler, log)
	for {
		select {
		case <-reconcileTicker.C:
			runReconcile(ctx, reconciler, log)
		case <-sigCh:
			log.Info("shutting down worker")
			cancel()
			return
		case <-ctx.Done():
			return
		}
	}
}

func runReconcile(ctx context.Context, reconciler *services.Reconciler, log *zap.Logger) {
	stats, err := reconciler.RunOnce(ctx)
	if err != nil {
		log.Error("reconcile run failed", zap.Error(err))
		return
	}
	if stats.InFlight == 0 {
		return
	}
	log.Info("reconcile run finished",
		zap.Int("in_flight", stats.InFlight),
		zap.Int("confirmed", stats.Confirmed),
		zap.Int("released", stats.Released),
	)
}
