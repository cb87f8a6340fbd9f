// Package model holds the wire-level domain types shared by every service:
// signals, accounts, orders, the broker RPC envelope, and the port interfaces
// that decouple the composition pipeline from concrete infrastructure.
package model

import (
	"time"

	"github.com/google/uuid"
)

// Action is the direction of a trading instruction.
type Action string

const (
	ActionBuy  Action = "Buy"
	ActionSell Action = "Sell"
)

// Currency identifies a settlement currency.
type Currency string

const (
	KRW Currency = "KRW"
	USD Currency = "USD"
	CNY Currency = "CNY"
	JPY Currency = "JPY"
	HKD Currency = "HKD"
	VND Currency = "VND"
)

// Signal is an externally sourced trading instruction: consider a trade,
// not yet sized or validated. Immutable once created; consumed exactly once
// by the composition pipeline.
type Signal struct {
	ID        uuid.UUID `json:"id"`
	Ticker    string    `json:"ticker"`
	Exchange  string    `json:"exchange"`
	Currency  Currency  `json:"currency,omitempty"` // empty: resolved from the market rule
	Action    Action    `json:"action"`
	Price     *float64  `json:"price,omitempty"`    // absent: sizer falls back to its configured default
	Strength  *int      `json:"strength,omitempty"` // 0–100; absent treated as 100
	Strategy  string    `json:"strategy"`
	Timestamp time.Time `json:"timestamp"`
}

// NewSignal stamps a fresh id and UTC timestamp.
func NewSignal(ticker, exchange string, action Action, strategy string) *Signal {
	return &Signal{
		ID:        uuid.New(),
		Ticker:    ticker,
		Exchange:  exchange,
		Action:    action,
		Strategy:  strategy,
		Timestamp: time.Now().UTC(),
	}
}

// StrengthOrDefault returns the signal strength clamped to [0,100],
// defaulting to 100 when the field is absent.
func (s *Signal) StrengthOrDefault() int {
	if s.Strength == nil {
		return 100
	}
	v := *s.Strength
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
