package sizing

import (
	"trade-routerv1/config"
	"trade-routerv1/internal/model"
)

// OnlyOneSizer always requests exactly one unit. Buys require enough cash
// for a single unit; sells go through unconditionally and rely on the broker
// to reject when nothing is held. Meant for testing and small deployments.
type OnlyOneSizer struct {
	defaultPrice    float64
	defaultCurrency model.Currency
}

// NewOnlyOne builds an OnlyOneSizer from one policy block.
func NewOnlyOne(p config.PolicyConfig, defaultCurrency model.Currency) *OnlyOneSizer {
	return &OnlyOneSizer{defaultPrice: p.DefaultPrice, defaultCurrency: defaultCurrency}
}

// CalculatePositionSize returns a one-unit market order, or nil when a buy
// cannot be covered in cash.
func (s *OnlyOneSizer) CalculatePositionSize(signal *model.Signal, account *model.Account) *model.Order {
	price := s.defaultPrice
	if signal.Price != nil {
		price = *signal.Price
	}
	if price <= 0 {
		return nil
	}

	if signal.Action == model.ActionBuy {
		currency := signal.Currency
		if currency == "" {
			currency = s.defaultCurrency
		}
		if account.Cash(currency) < price {
			return nil
		}
	}

	return model.NewOrder(account.Alias, signal.Ticker, signal.Action, model.OrderMarket, 1, price)
}

// ValidateOrder requires a strictly positive quantity.
func (s *OnlyOneSizer) ValidateOrder(order *model.Order, _ *model.Account) (bool, string) {
	if order.Qty <= 0 {
		return false, "quantity must be positive"
	}
	return true, ""
}
