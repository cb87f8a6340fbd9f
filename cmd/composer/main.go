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
	"trade-routerv1/internal/compose"
	"trade-routerv1/internal/logger"
	"trade-routerv1/internal/market"
	"trade-routerv1/internal/metrics"
	"trade-routerv1/internal/sizing"
	redisstore "trade-routerv1/internal/store/redis"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[composer] starting...")

	slogger := logger.Init("composer", slog.LevelInfo)

	cfg := config.Load()
	router, err := config.LoadRouterConfig(cfg.ConfigFile)
	if err != nil {
		log.Fatalf("[composer] config load failed: %v", err)
	}

	rules, err := market.RulesFromConfig(router.Markets)
	if err != nil {
		log.Fatalf("[composer] market rules failed: %v", err)
	}
	log.Printf("[composer] %d market rules loaded", len(rules))

	registry, err := sizing.NewRegistry(router.Sizing)
	if err != nil {
		log.Fatalf("[composer] sizing registry failed: %v", err)
	}
	policies, err := sizing.NewPolicyMapper(registry, router.Strategies.Sizing)
	if err != nil {
		log.Fatalf("[composer] policy mapping failed: %v", err)
	}

	redisBus, err := bus.NewRedis(bus.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		log.Fatalf("[composer] redis bus failed: %v", err)
	}
	defer redisBus.Close()

	accounts := redisstore.NewAccountStoreWithClient(redisBus.Client())

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	health.SetRedisConnected(true)
	health.StartLivenessChecker(ctx, redisBus.Client(), nil, 10*time.Second)
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	svc := compose.NewService(
		rules,
		compose.NewConfigAccountMapper(router.Strategies),
		compose.NewConfigAccountRegistry(router.Accounts),
		accounts,
		policies,
		compose.NewBusOrderPublisher(redisBus),
		prom,
		slogger,
	)

	consumer := compose.NewConsumer(redisBus, svc, slogger)
	if err := consumer.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatalf("[composer] consumer failed: %v", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Stop(shutdownCtx)
	log.Println("[composer] shut down")
}
