// Package config loads service configuration: infrastructure settings from
// environment variables and the market/policy definitions from a YAML file.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds infrastructure configuration loaded from environment variables.
type Config struct {
	// Redis bus / stores
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Paths
	ConfigFile string // market/policy YAML, see file.go
	SQLitePath string // trade journal

	// HTTP
	MetricsAddr   string
	WebhookAddr   string
	WebhookSecret string // empty disables the ingress secret check
	APIAddr       string // schedule management API

	// Outbound notification webhook; empty disables the relay.
	NotifyWebhookURL string

	// Broker RPC timeouts
	RPCTimeout  time.Duration
	PingTimeout time.Duration
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		ConfigFile: getEnv("ROUTER_CONFIG", "config/router.yml"),
		SQLitePath: getEnv("SQLITE_PATH", "data/trades.db"),

		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),
		WebhookAddr:   getEnv("WEBHOOK_ADDR", ":8080"),
		WebhookSecret: getEnv("WEBHOOK_SECRET", ""),
		APIAddr:       getEnv("API_ADDR", ":8081"),

		NotifyWebhookURL: getEnv("NOTIFY_WEBHOOK_URL", ""),

		RPCTimeout:  getEnvDuration("RPC_TIMEOUT", 5*time.Second),
		PingTimeout: getEnvDuration("PING_TIMEOUT", 2*time.Second),
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
