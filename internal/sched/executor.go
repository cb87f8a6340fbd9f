// Package sched runs the timer-driven scheduled-order executor. Each scan
// pass walks every account with a schedule, takes the account's advisory
// lock non-blocking, and executes the orders that are due. Lock contention
// is not an error: the account is simply retried on the next tick.
package sched

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"trade-routerv1/internal/metrics"
	"trade-routerv1/internal/model"
)

// Repository is the schedule store plus alias enumeration for scanning.
type Repository interface {
	model.ScheduledOrderRepository
	Aliases(ctx context.Context) ([]string, error)
}

// PriceSource quotes tickers for target-amount sizing. Satisfied by the
// broker RPC client.
type PriceSource interface {
	GetPrice(ctx context.Context, ticker string) (*model.PriceInfo, error)
}

// Executor scans and executes due scheduled orders.
type Executor struct {
	repo      Repository
	accounts  model.AccountRepository
	prices    PriceSource
	publisher model.OrderPublisher
	metrics   *metrics.Metrics // may be nil
	log       *slog.Logger

	now func() time.Time // test seam
}

// NewExecutor wires the executor's collaborators.
func NewExecutor(repo Repository, accounts model.AccountRepository, prices PriceSource, publisher model.OrderPublisher, m *metrics.Metrics, log *slog.Logger) *Executor {
	return &Executor{
		repo:      repo,
		accounts:  accounts,
		prices:    prices,
		publisher: publisher,
		metrics:   m,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ScanAll runs one pass over every account with a schedule.
func (e *Executor) ScanAll(ctx context.Context) {
	if e.metrics != nil {
		e.metrics.ScheduleScans.Inc()
	}
	aliases, err := e.repo.Aliases(ctx)
	if err != nil {
		e.log.Error("schedule scan failed", "error", err)
		return
	}
	for _, alias := range aliases {
		if err := e.ProcessAccount(ctx, alias, false); err != nil {
			e.log.Error("schedule processing failed", "account", alias, "error", err)
		}
	}
}

// ProcessAccount executes the account's due orders under its advisory lock.
// With waitForLock=false a held lock defers the account to the next tick
// and returns nil.
func (e *Executor) ProcessAccount(ctx context.Context, alias string, waitForLock bool) error {
	err := e.repo.ProcessUnderLock(ctx, alias, waitForLock, func(orders []*model.ScheduledOrder) (bool, error) {
		now := e.now()
		modified := false
		for _, so := range orders {
			if !so.Due(now) {
				continue
			}
			if !e.execute(ctx, so) {
				continue
			}
			so.LastExecuted = now
			if so.Recurring {
				if next := so.NextOccurrence(now); !next.IsZero() {
					so.ScheduledAt = next
				}
			} else {
				so.Active = false
			}
			modified = true
			if e.metrics != nil {
				e.metrics.ScheduleExecutions.Inc()
			}
		}
		return modified, nil
	})
	if errors.Is(err, model.ErrLockBusy) {
		if e.metrics != nil {
			e.metrics.ScheduleLockBusy.Inc()
		}
		e.log.Debug("schedule lock held elsewhere", "account", alias)
		return nil
	}
	return err
}

// execute publishes one due order and reports whether it went out. An order
// that cannot be sized or published is left untouched for the next tick.
func (e *Executor) execute(ctx context.Context, so *model.ScheduledOrder) bool {
	log := e.log.With("account", so.AccountAlias, "ticker", so.Ticker, "scheduled_id", so.ID.String())

	qty := so.Qty
	price := 0.0
	if qty == 0 {
		var ok bool
		qty, price, ok = e.sizeFromTarget(ctx, so, log)
		if !ok {
			return false
		}
	}

	order := model.NewOrder(so.AccountAlias, so.Ticker, so.Action, model.OrderMarket, qty, price)
	order.Exchange = so.Exchange
	order.Currency = so.Currency
	order.Reason = "Schedule"

	if err := e.publisher.PublishOrder(ctx, order); err != nil {
		log.Error("scheduled order publish failed", "error", err)
		return false
	}
	log.Info("scheduled order published", "order_id", order.ID.String(), "qty", qty)
	return true
}

// sizeFromTarget converts a target notional into a quantity at the current
// quote, capped by the account's available cash in the order's currency.
func (e *Executor) sizeFromTarget(ctx context.Context, so *model.ScheduledOrder, log *slog.Logger) (int64, float64, bool) {
	info, err := e.prices.GetPrice(ctx, so.Ticker)
	if err != nil {
		log.Warn("quote unavailable for scheduled order", "error", err)
		return 0, 0, false
	}
	if info.Price <= 0 {
		log.Warn("non-positive quote for scheduled order", "price", info.Price)
		return 0, 0, false
	}

	budget := so.TargetAmount
	if so.Action == model.ActionBuy {
		account, err := e.accounts.GetAccount(ctx, so.AccountAlias)
		if err != nil {
			log.Warn("account unavailable for scheduled order", "error", err)
			return 0, 0, false
		}
		if account == nil {
			log.Warn("account not found for scheduled order")
			return 0, 0, false
		}
		budget = math.Min(budget, account.Cash(so.Currency))
	}

	qty := int64(math.Floor(budget / info.Price))
	if qty <= 0 {
		log.Info("target amount too small at current quote", "price", info.Price)
		return 0, 0, false
	}
	return qty, info.Price, true
}
