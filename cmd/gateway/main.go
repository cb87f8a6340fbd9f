package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"trade-routerv1/config"
	"trade-routerv1/internal/bus"
	"trade-routerv1/internal/gateway"
	"trade-routerv1/internal/logger"
	"trade-routerv1/internal/metrics"
	redisstore "trade-routerv1/internal/store/redis"
	sqlitestore "trade-routerv1/internal/store/sqlite"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[gateway] starting...")

	slogger := logger.Init("gateway", slog.LevelInfo)

	cfg := config.Load()
	router, err := config.LoadRouterConfig(cfg.ConfigFile)
	if err != nil {
		log.Fatalf("[gateway] config load failed: %v", err)
	}

	os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755)
	journal, err := sqlitestore.NewJournal(sqlitestore.JournalConfig{DBPath: cfg.SQLitePath})
	if err != nil {
		log.Fatalf("[gateway] journal init failed: %v", err)
	}
	defer journal.Close()

	redisBus, err := bus.NewRedis(bus.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		log.Fatalf("[gateway] redis bus failed: %v", err)
	}
	defer redisBus.Close()

	accounts := redisstore.NewAccountStoreWithClient(redisBus.Client())

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	health.SetRedisConnected(true)
	health.SetSQLiteOK(true)
	health.StartLivenessChecker(ctx, redisBus.Client(), journal.DB(), 10*time.Second)
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	g := gateway.New(redisBus, router.Gateway, journal, accounts, prom, slogger)
	if err := g.SyncAccounts(ctx); err != nil {
		log.Fatalf("[gateway] initial account sync failed: %v", err)
	}
	log.Printf("[gateway] %d simulated accounts synced", len(router.Gateway.Accounts))

	if err := g.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatalf("[gateway] run failed: %v", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Stop(shutdownCtx)
	log.Println("[gateway] shut down")
}
