package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// RouterConfig is the YAML configuration shared by the composer, scheduler
// and gateway: market definitions, sizing policies, and the strategy/account
// mappings. Validation happens at load time; a service must not start on a
// malformed file.
type RouterConfig struct {
	Markets    []MarketConfig   `yaml:"markets"`
	Sizing     SizingConfig     `yaml:"sizing"`
	Strategies StrategiesConfig `yaml:"strategies"`
	Accounts   AccountsConfig   `yaml:"accounts"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Gateway    GatewayConfig    `yaml:"gateway"`
}

// MarketConfig defines one market rule: which exchange codes it answers for,
// its timezone and currency, and one of three trading-hours shapes.
type MarketConfig struct {
	Name      string      `yaml:"name"`
	Exchanges []string    `yaml:"exchanges"`
	Timezone  string      `yaml:"timezone"`
	Currency  string      `yaml:"currency"`
	Hours     HoursConfig `yaml:"hours"`
}

// HoursConfig holds the trading-hours block. Exactly one shape must be set:
//
//   - simple:           open + close
//   - US-style:         regular_open + regular_close (+ optional pre-market)
//   - morning/afternoon: morning_open/close + afternoon_open/close
//
// Times are "HH:MM" local to the market's timezone.
type HoursConfig struct {
	Open  string `yaml:"open,omitempty"`
	Close string `yaml:"close,omitempty"`

	RegularOpen    string `yaml:"regular_open,omitempty"`
	RegularClose   string `yaml:"regular_close,omitempty"`
	PreMarketOpen  string `yaml:"pre_market_open,omitempty"`
	AllowPreMarket bool   `yaml:"allow_pre_market,omitempty"`

	MorningOpen    string `yaml:"morning_open,omitempty"`
	MorningClose   string `yaml:"morning_close,omitempty"`
	AfternoonOpen  string `yaml:"afternoon_open,omitempty"`
	AfternoonClose string `yaml:"afternoon_close,omitempty"`
}

// SizingConfig declares the available sizing policies.
type SizingConfig struct {
	DefaultCurrency string         `yaml:"default_currency"`
	Policies        []PolicyConfig `yaml:"policies"`
}

// PolicyConfig configures one sizing policy instance. Type selects the
// registered constructor ("Basic", "OnlyOne"); Name is the handle strategy
// mappings refer to.
type PolicyConfig struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`

	// Basic tunables (fractions of equity, absolute min amount).
	MaxRiskPct           float64 `yaml:"max_risk_pct,omitempty"`
	MaxPortfolioAllocPct float64 `yaml:"max_portfolio_alloc_pct,omitempty"`
	StopLossPct          float64 `yaml:"stop_loss_pct,omitempty"`
	MinOrderAmount       float64 `yaml:"min_order_amount,omitempty"`
	DefaultPrice         float64 `yaml:"default_price,omitempty"`
}

// StrategiesConfig maps strategy tags to accounts and sizing policies.
// "*" is the wildcard fallback for both maps.
type StrategiesConfig struct {
	Accounts map[string][]string `yaml:"accounts"`
	Sizing   map[string]string   `yaml:"sizing"`
}

// AccountsConfig is the single-account deployment mapping: currency → alias.
type AccountsConfig struct {
	Currencies map[string]string `yaml:"currencies"`
}

// SchedulerConfig controls the scheduled-order executor.
type SchedulerConfig struct {
	Interval time.Duration `yaml:"interval"` // scan cadence, default 10s
}

// GatewayConfig seeds the paper gateway's simulated accounts.
type GatewayConfig struct {
	Accounts    []GatewayAccount `yaml:"accounts"`
	SlippageBps int64            `yaml:"slippage_bps"`
}

// GatewayAccount is one simulated account with starting cash per currency.
type GatewayAccount struct {
	Alias    string             `yaml:"alias"`
	Broker   string             `yaml:"broker"`
	Deposits map[string]float64 `yaml:"deposits"`
}

// LoadRouterConfig reads and validates the YAML file at path.
func LoadRouterConfig(path string) (*RouterConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return ParseRouterConfig(raw)
}

// ParseRouterConfig parses and validates YAML bytes.
func ParseRouterConfig(raw []byte) (*RouterConfig, error) {
	var cfg RouterConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *RouterConfig) applyDefaults() {
	if c.Sizing.DefaultCurrency == "" {
		c.Sizing.DefaultCurrency = "KRW"
	}
	if c.Scheduler.Interval == 0 {
		c.Scheduler.Interval = 10 * time.Second
	}
	if c.Gateway.SlippageBps == 0 {
		c.Gateway.SlippageBps = 5
	}
}

func (c *RouterConfig) validate() error {
	if len(c.Markets) == 0 {
		return fmt.Errorf("config: no markets defined")
	}
	for i := range c.Markets {
		m := &c.Markets[i]
		if m.Name == "" {
			return fmt.Errorf("config: market %d has no name", i)
		}
		if len(m.Exchanges) == 0 {
			return fmt.Errorf("config: market %q has no exchanges", m.Name)
		}
		if m.Timezone == "" {
			return fmt.Errorf("config: market %q has no timezone", m.Name)
		}
		if m.Currency == "" {
			return fmt.Errorf("config: market %q has no currency", m.Name)
		}
	}
	seen := make(map[string]bool, len(c.Sizing.Policies))
	for i := range c.Sizing.Policies {
		p := &c.Sizing.Policies[i]
		if p.Name == "" || p.Type == "" {
			return fmt.Errorf("config: sizing policy %d needs both name and type", i)
		}
		if seen[p.Name] {
			return fmt.Errorf("config: duplicate sizing policy %q", p.Name)
		}
		seen[p.Name] = true
	}
	return nil
}
