// Package compose implements the signal-to-order pipeline: resolve the
// market rule, check trading hours, map the signal to accounts, size,
// validate, publish. Publishing is the pipeline's only side effect; a signal
// that produces no order is dropped silently with a logged reason, never an
// error.
package compose

import (
	"context"
	"log/slog"

	"trade-routerv1/internal/market"
	"trade-routerv1/internal/metrics"
	"trade-routerv1/internal/model"
	"trade-routerv1/internal/sizing"
)

// Service orchestrates one pipeline run per inbound signal.
type Service struct {
	rules     []market.Rule
	accounts  model.StrategyAccountMapper
	registry  model.AccountRegistry // single-account fallback, may be nil
	repo      model.AccountRepository
	policies  *sizing.PolicyMapper
	publisher model.OrderPublisher
	metrics   *metrics.Metrics // may be nil in tests
	log       *slog.Logger
}

// NewService wires the pipeline collaborators.
func NewService(
	rules []market.Rule,
	accounts model.StrategyAccountMapper,
	registry model.AccountRegistry,
	repo model.AccountRepository,
	policies *sizing.PolicyMapper,
	publisher model.OrderPublisher,
	m *metrics.Metrics,
	log *slog.Logger,
) *Service {
	return &Service{
		rules:     rules,
		accounts:  accounts,
		registry:  registry,
		repo:      repo,
		policies:  policies,
		publisher: publisher,
		metrics:   m,
		log:       log,
	}
}

// ProcessSignal runs the pipeline for one signal. When the strategy maps to
// several accounts each alias is processed independently; one account's
// failure never aborts its siblings.
func (s *Service) ProcessSignal(ctx context.Context, sig *model.Signal) {
	if s.metrics != nil {
		s.metrics.SignalsTotal.Inc()
	}
	log := s.log.With("signal_id", sig.ID.String(), "ticker", sig.Ticker, "strategy", sig.Strategy)

	rule := market.FirstMatch(s.rules, sig.Exchange)
	if rule == nil {
		log.Warn("no market rule for exchange", "exchange", sig.Exchange)
		s.drop("no_market_rule")
		return
	}
	if !rule.IsMarketOpen(sig.Timestamp) {
		log.Debug("market closed, signal dropped", "exchange", sig.Exchange)
		s.drop("market_closed")
		return
	}

	currency := sig.Currency
	if currency == "" {
		currency = rule.Currency()
	}

	aliases := s.accounts.AccountAliasesForStrategy(sig.Strategy)
	if len(aliases) == 0 && s.registry != nil {
		if alias := s.registry.AccountAliasForCurrency(currency); alias != "" {
			aliases = []string{alias}
		}
	}
	if len(aliases) == 0 {
		log.Warn("no account mapping for signal")
		s.drop("no_account_mapping")
		return
	}

	for _, alias := range aliases {
		s.processForAccount(ctx, log.With("account", alias), sig, currency, alias)
	}
}

func (s *Service) processForAccount(ctx context.Context, log *slog.Logger, sig *model.Signal, currency model.Currency, alias string) {
	account, err := s.repo.GetAccount(ctx, alias)
	if err != nil {
		log.Error("account load failed", "error", err)
		s.drop("account_load_failed")
		return
	}
	if account == nil {
		log.Warn("account not found")
		s.drop("account_not_found")
		return
	}

	sizer := s.policies.SizerForStrategy(sig.Strategy)
	if sizer == nil {
		log.Warn("no sizing policy for strategy")
		s.drop("no_policy")
		return
	}

	order := sizer.CalculatePositionSize(sig, account)
	if order == nil {
		log.Info("sizer declined, no actionable order")
		s.drop("sizer_declined")
		return
	}

	order.Exchange = sig.Exchange
	order.Currency = currency
	order.Reason = "Webhook:" + sig.Strategy

	if ok, reason := sizer.ValidateOrder(order, account); !ok {
		log.Warn("order validation failed", "reason", reason)
		s.drop("validation_failed")
		return
	}

	if err := s.publisher.PublishOrder(ctx, order); err != nil {
		log.Error("order publish failed", "order_id", order.ID.String(), "error", err)
		s.drop("publish_failed")
		return
	}
	if s.metrics != nil {
		s.metrics.OrdersPublished.Inc()
	}
	log.Info("order published",
		"order_id", order.ID.String(),
		"action", order.Action,
		"qty", order.Qty,
		"price", order.Price)
}

func (s *Service) drop(reason string) {
	if s.metrics != nil {
		s.metrics.SignalsDropped.WithLabelValues(reason).Inc()
	}
}
