package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"trade-routerv1/config"
	"trade-routerv1/internal/bus"
	"trade-routerv1/internal/logger"
	"trade-routerv1/internal/metrics"
	"trade-routerv1/internal/notify"
	"trade-routerv1/internal/webhook"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[webhook] starting...")

	slogger := logger.Init("webhook", slog.LevelInfo)

	cfg := config.Load()
	if cfg.WebhookSecret == "" {
		log.Println("[webhook] WARNING: WEBHOOK_SECRET unset, accepting unauthenticated alerts")
	}

	redisBus, err := bus.NewRedis(bus.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		log.Fatalf("[webhook] redis bus failed: %v", err)
	}
	defer redisBus.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	health := metrics.NewHealthStatus()
	health.SetRedisConnected(true)
	health.StartLivenessChecker(ctx, redisBus.Client(), nil, 10*time.Second)
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	notifier := notify.New(redisBus, "webhook", slogger)
	handler := webhook.NewHandler(redisBus, cfg.WebhookSecret, notifier, slogger)

	srv := &http.Server{
		Addr:    cfg.WebhookAddr,
		Handler: handler.Mux(),
	}
	go func() {
		log.Printf("[webhook] listening on %s", cfg.WebhookAddr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("[webhook] server failed: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)
	metricsSrv.Stop(shutdownCtx)
	log.Println("[webhook] shut down")
}
