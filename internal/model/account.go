package model

// Position is a single holding inside an account snapshot.
type Position struct {
	AccountAlias string   `json:"account_alias"`
	Ticker       string   `json:"ticker"`
	Currency     Currency `json:"currency"`
	Qty          int64    `json:"qty"`
	AvgPrice     float64  `json:"avg_price"`
	CurrentPrice float64  `json:"current_price"`
	ChangeRate   float64  `json:"change_rate,omitempty"`
	Exchange     string   `json:"exchange,omitempty"`
	Source       string   `json:"source,omitempty"`
}

// UnrealizedPnL is (current − average cost) × quantity.
func (p *Position) UnrealizedPnL() float64 {
	return (p.CurrentPrice - p.AvgPrice) * float64(p.Qty)
}

// MarketValue is the position's current worth.
func (p *Position) MarketValue() float64 {
	return p.CurrentPrice * float64(p.Qty)
}

// Account is a broker account snapshot keyed by a stable alias (never the
// broker account number). Rebuilt on every read from the authoritative
// store; the composition pipeline only reads it.
type Account struct {
	Alias     string               `json:"alias"`
	Number    string               `json:"number,omitempty"`
	Broker    string               `json:"broker,omitempty"`
	Deposits  map[Currency]float64 `json:"deposits"`
	Positions []Position           `json:"positions,omitempty"`
	Active    bool                 `json:"active"`
}

// Cash returns the deposit held in the given currency (0 if none).
func (a *Account) Cash(c Currency) float64 {
	return a.Deposits[c]
}

// TotalEquity is deposit[currency] plus the market value of every position
// settled in that currency.
func (a *Account) TotalEquity(c Currency) float64 {
	equity := a.Deposits[c]
	for i := range a.Positions {
		if a.Positions[i].Currency == c {
			equity += a.Positions[i].MarketValue()
		}
	}
	return equity
}

// PriceInfo is a point-in-time quote served by the broker gateway.
type PriceInfo struct {
	Price      float64 `json:"price"`
	ChangeRate float64 `json:"change_rate"`
}
