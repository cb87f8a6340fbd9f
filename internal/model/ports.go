package model

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrLockBusy reports a failed non-blocking acquisition of an account's
// schedule lock. Not a failure for callers: it means another instance owns
// the schedule right now, try next tick.
var ErrLockBusy = errors.New("schedule lock busy")

// ── Port Interfaces ──
// These interfaces decouple the composition pipeline and the scheduled-order
// executor from concrete infrastructure (Redis-backed repositories, the bus
// publisher, config-backed mappers). "Not found" is (nil, nil), never an
// error; errors are reserved for transport and configuration failures.

// AccountRepository resolves an account snapshot by alias.
type AccountRepository interface {
	// GetAccount rebuilds the account state from the authoritative store.
	// Returns (nil, nil) when the alias is unknown.
	GetAccount(ctx context.Context, alias string) (*Account, error)
}

// AccountRegistry maps a settlement currency to the single account alias
// trading it. Used by the single-account deployment path.
type AccountRegistry interface {
	// AccountAliasForCurrency returns "" when no mapping exists.
	AccountAliasForCurrency(c Currency) string
}

// StrategyAccountMapper resolves the account aliases a strategy trades on,
// falling back to the "*" wildcard mapping.
type StrategyAccountMapper interface {
	AccountAliasesForStrategy(strategy string) []string
}

// OrderPublisher emits a composed order for execution. Publishing is the
// single side effect of the composition pipeline.
type OrderPublisher interface {
	PublishOrder(ctx context.Context, order *Order) error
}

// ScheduledOrderProcessor mutates an account's schedule list in place.
// It returns true when the list was modified and must be saved back.
type ScheduledOrderProcessor func(orders []*ScheduledOrder) (modified bool, err error)

// ScheduledOrderRepository stores per-account schedule lists and provides the
// advisory lock that makes read-modify-write atomic across instances.
type ScheduledOrderRepository interface {
	// GetAll reads the schedule list without locking.
	GetAll(ctx context.Context, alias string) ([]*ScheduledOrder, error)

	// ProcessUnderLock runs fn while holding the account's advisory lock.
	// With waitForLock=false a held lock returns ErrLockBusy immediately;
	// with waitForLock=true the acquisition retries before giving up.
	ProcessUnderLock(ctx context.Context, alias string, waitForLock bool, fn ScheduledOrderProcessor) error

	// AddOrUpdate inserts or replaces a scheduled order (blocking lock).
	AddOrUpdate(ctx context.Context, order *ScheduledOrder) error

	// Remove deletes a scheduled order by id (blocking lock).
	Remove(ctx context.Context, alias string, id uuid.UUID) error
}
