package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"trade-routerv1/config"
	"trade-routerv1/internal/api"
	"trade-routerv1/internal/broker"
	"trade-routerv1/internal/bus"
	"trade-routerv1/internal/compose"
	"trade-routerv1/internal/logger"
	"trade-routerv1/internal/metrics"
	"trade-routerv1/internal/model"
	"trade-routerv1/internal/notify"
	"trade-routerv1/internal/sched"
	redisstore "trade-routerv1/internal/store/redis"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[scheduler] starting...")

	slogger := logger.Init("scheduler", slog.LevelInfo)

	cfg := config.Load()
	router, err := config.LoadRouterConfig(cfg.ConfigFile)
	if err != nil {
		log.Fatalf("[scheduler] config load failed: %v", err)
	}

	redisBus, err := bus.NewRedis(bus.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		log.Fatalf("[scheduler] redis bus failed: %v", err)
	}
	defer redisBus.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	health.SetRedisConnected(true)
	health.StartLivenessChecker(ctx, redisBus.Client(), nil, 10*time.Second)
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	schedules := redisstore.NewScheduledOrderStore(redisBus.Client())
	accounts := redisstore.NewAccountStoreWithClient(redisBus.Client())
	quotes := broker.NewClient(redisBus, "", cfg.RPCTimeout, cfg.PingTimeout, prom, slogger)
	notifier := notify.New(redisBus, "scheduler", slogger)

	executor := sched.NewExecutor(
		schedules,
		accounts,
		quotes,
		compose.NewBusOrderPublisher(redisBus),
		prom,
		slogger,
	)

	c := cron.New()
	_, err = c.AddFunc(fmt.Sprintf("@every %s", router.Scheduler.Interval), func() {
		executor.ScanAll(ctx)
	})
	if err != nil {
		log.Fatalf("[scheduler] scan job failed: %v", err)
	}
	_, err = c.AddFunc("@daily", func() {
		snapshot(ctx, quotes, notifier, slogger)
	})
	if err != nil {
		log.Fatalf("[scheduler] snapshot job failed: %v", err)
	}

	apiSrv := &http.Server{
		Addr:    cfg.APIAddr,
		Handler: api.NewHandler(schedules, slogger).Mux(),
	}
	go func() {
		log.Printf("[scheduler] management api on %s", cfg.APIAddr)
		if err := apiSrv.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("[scheduler] api server failed: %v", err)
		}
	}()

	c.Start()
	log.Printf("[scheduler] scanning every %s", router.Scheduler.Interval)

	<-ctx.Done()

	stopCtx := c.Stop()
	<-stopCtx.Done()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	apiSrv.Shutdown(shutdownCtx)
	metricsSrv.Stop(shutdownCtx)
	log.Println("[scheduler] shut down")
}

// snapshot records a once-a-day view of every broker account: cash per
// currency and open position count. Best effort; a gateway outage just
// skips the day.
func snapshot(ctx context.Context, quotes *broker.Client, notifier *notify.Notifier, log *slog.Logger) {
	accounts, err := quotes.GetAccounts(ctx)
	if err != nil {
		log.Warn("daily snapshot skipped", "error", err)
		return
	}
	for i := range accounts {
		a := &accounts[i]
		log.Info("daily account snapshot",
			"account", a.Alias,
			"positions", len(a.Positions),
			"krw", a.Cash(model.KRW),
			"usd", a.Cash(model.USD))
		notifier.Notify("daily_snapshot", "daily account snapshot", map[string]string{
			"account":   a.Alias,
			"positions": fmt.Sprintf("%d", len(a.Positions)),
		})
	}
}
