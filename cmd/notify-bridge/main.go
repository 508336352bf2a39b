package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/repledger/backend/internal/config"
	"github.com/repledger/backend/internal/db"
	"github.com/repledger/backend/internal/events"
	"github.com/repledger/backend/internal/notify"
	"go.uber.org/zap"
)

// notify-bridge forwards award stream events to NOTIFY_WEBHOOK_URL as member
// notifications.
func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hook := notify.NewWebhook(cfg.NotifyWebhookURL, cfg.NotifyWebhookSecret, log)
	if !hook.Enabled() {
		log.Fatal("NOTIFY_WEBHOOK_URL is required")
	}

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	subscriber := events.NewRedisSubscriber(rdb, log)
	if err := subscriber.Subscribe(ctx, events.StreamAward, hook.Forward(ctx)); err != nil {
		log.Fatal("failed to subscribe", zap.String("stream", events.StreamAward), zap.Error(err))
	}

	log.Info("notify-bridge started", zap.String("stream", events.StreamAward))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down notify-bridge")
	cancel()
}
