// Package metrics defines the Prometheus instrumentation shared by the
// router services and a small HTTP server exposing /metrics and /healthz.
package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the signal router.
type Metrics struct {
	// Composition pipeline
	SignalsTotal    prometheus.Counter
	SignalsDropped  *prometheus.CounterVec // labels: reason
	OrdersPublished prometheus.Counter

	// Broker RPC
	RPCCalls    *prometheus.CounterVec // labels: type
	RPCTimeouts prometheus.Counter
	RPCDuration prometheus.Histogram

	// Scheduled-order executor
	ScheduleScans      prometheus.Counter
	ScheduleExecutions prometheus.Counter
	ScheduleLockBusy   prometheus.Counter

	// Paper gateway
	GatewayRequests *prometheus.CounterVec // labels: type
	GatewayFills    prometheus.Counter
	GatewayRejects  prometheus.Counter
}

// NewMetrics registers and returns all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		SignalsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "router_signals_total",
			Help: "Total signals received by the composition pipeline",
		}),
		SignalsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "router_signals_dropped_total",
			Help: "Signals that produced no order (by pipeline stage reason)",
		}, []string{"reason"}),
		OrdersPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "router_orders_published_total",
			Help: "Orders published to the execution channel",
		}),

		RPCCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "router_broker_rpc_calls_total",
			Help: "Broker RPC requests issued (by request type)",
		}, []string{"type"}),
		RPCTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "router_broker_rpc_timeouts_total",
			Help: "Broker RPC calls that hit the response deadline",
		}),
		RPCDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "router_broker_rpc_duration_seconds",
			Help:    "Broker RPC round-trip latency",
			Buckets: prometheus.DefBuckets,
		}),

		ScheduleScans: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "router_schedule_scans_total",
			Help: "Scheduled-order scan passes",
		}),
		ScheduleExecutions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "router_schedule_executions_total",
			Help: "Scheduled orders published for execution",
		}),
		ScheduleLockBusy: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "router_schedule_lock_busy_total",
			Help: "Scan passes skipped because another instance held the account lock",
		}),

		GatewayRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "router_gateway_requests_total",
			Help: "Broker requests served by the paper gateway (by request type)",
		}, []string{"type"}),
		GatewayFills: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "router_gateway_fills_total",
			Help: "Orders filled by the paper gateway",
		}),
		GatewayRejects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "router_gateway_rejects_total",
			Help: "Orders rejected by the paper gateway",
		}),
	}

	prometheus.MustRegister(
		m.SignalsTotal,
		m.SignalsDropped,
		m.OrdersPublished,
		m.RPCCalls,
		m.RPCTimeouts,
		m.RPCDuration,
		m.ScheduleScans,
		m.ScheduleExecutions,
		m.ScheduleLockBusy,
		m.GatewayRequests,
		m.GatewayFills,
		m.GatewayRejects,
	)

	return m
}

// HealthStatus represents the service health.
type HealthStatus struct {
	mu sync.RWMutex

	RedisConnected bool `json:"redis_connected"`
	SQLiteOK       bool `json:"sqlite_ok"`

	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
	}
}

func (h *HealthStatus) SetRedisConnected(v bool) {
	h.mu.Lock()
	h.RedisConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSQLiteOK(v bool) {
	h.mu.Lock()
	h.SQLiteOK = v
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite runs a trivial query and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks. Pass nil for
// dependencies a service does not use.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK
	if !h.RedisConnected {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	if !h.RedisConnected && !h.SQLiteOK {
		overallStatus = "unhealthy"
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
		LastCheckAt     string  `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
