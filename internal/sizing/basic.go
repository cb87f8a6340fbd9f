package sizing

import (
	"math"

	"trade-routerv1/config"
	"trade-routerv1/internal/model"
)

// BasicSizer bounds every trade by both a per-trade risk budget and a
// portfolio allocation cap, then scales by signal strength. The risk budget
// assumes a fixed stop-loss fraction: risking maxRiskPct of equity with a
// stopLossPct stop allows an allocation of equity*maxRiskPct/stopLossPct.
type BasicSizer struct {
	maxRiskPct      float64
	maxPortAllocPct float64
	stopLossPct     float64
	minOrderAmount  float64
	defaultPrice    float64
	defaultCurrency model.Currency
}

// NewBasic builds a BasicSizer from one policy block.
func NewBasic(p config.PolicyConfig, defaultCurrency model.Currency) *BasicSizer {
	return &BasicSizer{
		maxRiskPct:      p.MaxRiskPct,
		maxPortAllocPct: p.MaxPortfolioAllocPct,
		stopLossPct:     p.StopLossPct,
		minOrderAmount:  p.MinOrderAmount,
		defaultPrice:    p.DefaultPrice,
		defaultCurrency: defaultCurrency,
	}
}

// CalculatePositionSize sizes the trade in the signal's currency:
//
//	riskAmount     = equity * maxRiskPct
//	maxAllocByRisk = riskAmount / stopLossPct
//	maxAllocByPort = equity * maxPortAllocPct
//	targetAmount   = min(byRisk, byPort) * strength/100
//	actualAmount   = min(targetAmount, cash)
//	qty            = floor(actualAmount / price)
//
// Declines when the price is non-positive, the quantity rounds to zero, or
// the resulting notional is below the minimum order amount.
func (s *BasicSizer) CalculatePositionSize(signal *model.Signal, account *model.Account) *model.Order {
	price := s.defaultPrice
	if signal.Price != nil {
		price = *signal.Price
	}
	if price <= 0 {
		return nil
	}

	currency := signal.Currency
	if currency == "" {
		currency = s.defaultCurrency
	}
	equity := account.TotalEquity(currency)
	cash := account.Cash(currency)

	riskAmount := equity * s.maxRiskPct
	maxAllocByRisk := riskAmount / s.stopLossPct
	maxAllocByPort := equity * s.maxPortAllocPct

	targetAmount := math.Min(maxAllocByRisk, maxAllocByPort) * clampStrength(signal.StrengthOrDefault())
	actualAmount := math.Min(targetAmount, cash)

	qty := int64(math.Floor(actualAmount / price))
	if qty <= 0 || float64(qty)*price < s.minOrderAmount {
		return nil
	}

	return model.NewOrder(account.Alias, signal.Ticker, signal.Action, model.OrderMarket, qty, price)
}

// ValidateOrder requires a strictly positive quantity.
func (s *BasicSizer) ValidateOrder(order *model.Order, _ *model.Account) (bool, string) {
	if order.Qty <= 0 {
		return false, "quantity must be positive"
	}
	return true, ""
}
