package main

import (
	"context"
	"log"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"trade-routerv1/config"
	"trade-routerv1/internal/bus"
	"trade-routerv1/internal/logger"
	"trade-routerv1/internal/metrics"
	"trade-routerv1/internal/notify"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[notifier] starting...")

	slogger := logger.Init("notifier", slog.LevelInfo)

	cfg := config.Load()
	if cfg.NotifyWebhookURL == "" {
		log.Fatalf("[notifier] NOTIFY_WEBHOOK_URL is required")
	}

	redisBus, err := bus.NewRedis(bus.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		log.Fatalf("[notifier] redis bus failed: %v", err)
	}
	defer redisBus.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	health := metrics.NewHealthStatus()
	health.SetRedisConnected(true)
	health.StartLivenessChecker(ctx, redisBus.Client(), nil, 10*time.Second)
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	relay := notify.NewRelay(redisBus, cfg.NotifyWebhookURL, slogger)
	if err := relay.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatalf("[notifier] relay failed: %v", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Stop(shutdownCtx)
	log.Println("[notifier] shut down")
}
