package sizing

import (
	"testing"

	"trade-routerv1/config"
	"trade-routerv1/internal/model"
)

func ptrF(v float64) *float64 { return &v }
func ptrI(v int) *int         { return &v }

func basicPolicy() config.PolicyConfig {
	return config.PolicyConfig{
		Name:                 "default",
		Type:                 "Basic",
		MaxRiskPct:           0.02,
		MaxPortfolioAllocPct: 0.20,
		StopLossPct:          0.05,
		MinOrderAmount:       100,
		DefaultPrice:         100,
	}
}

func usdAccount(cash float64) *model.Account {
	return &model.Account{
		Alias:    "main",
		Deposits: map[model.Currency]float64{model.USD: cash},
		Active:   true,
	}
}

func buySignal(price float64, strength int) *model.Signal {
	s := model.NewSignal("AAPL", "NASDAQ", model.ActionBuy, "momentum")
	s.Currency = model.USD
	s.Price = ptrF(price)
	s.Strength = ptrI(strength)
	return s
}

func TestBasicSizer_RiskAndPortfolioBounds(t *testing.T) {
	s := NewBasic(basicPolicy(), model.KRW)

	// equity 1,000,000: byRisk = 1,000,000*0.02/0.05 = 400,000;
	// byPort = 200,000; min = 200,000; floor(200,000/150) = 1333.
	order := s.CalculatePositionSize(buySignal(150, 100), usdAccount(1_000_000))
	if order == nil {
		t.Fatal("expected an order")
	}
	if order.Qty != 1333 {
		t.Errorf("qty = %d, want 1333", order.Qty)
	}
	if order.Type != model.OrderMarket {
		t.Errorf("type = %v, want Market", order.Type)
	}
	if order.AccountAlias != "main" || order.Ticker != "AAPL" || order.Action != model.ActionBuy {
		t.Errorf("order fields wrong: %+v", order)
	}
}

func TestBasicSizer_StrengthScalesAllocation(t *testing.T) {
	s := NewBasic(basicPolicy(), model.KRW)

	// Half strength halves the target: floor(100,000/150) = 666.
	order := s.CalculatePositionSize(buySignal(150, 50), usdAccount(1_000_000))
	if order == nil || order.Qty != 666 {
		t.Fatalf("order = %+v, want qty 666", order)
	}

	// Missing strength defaults to 100.
	sig := buySignal(150, 0)
	sig.Strength = nil
	order = s.CalculatePositionSize(sig, usdAccount(1_000_000))
	if order == nil || order.Qty != 1333 {
		t.Fatalf("order = %+v, want qty 1333", order)
	}
}

func TestBasicSizer_CashCapsAllocation(t *testing.T) {
	s := NewBasic(basicPolicy(), model.KRW)

	// Equity includes a position worth 900,000, cash only 30,000:
	// target is 200,000 but only floor(30,000/150) = 200 is affordable.
	acct := usdAccount(30_000)
	acct.Positions = []model.Position{{
		Ticker: "MSFT", Currency: model.USD, Qty: 3000, AvgPrice: 250, CurrentPrice: 300,
	}}
	order := s.CalculatePositionSize(buySignal(150, 100), acct)
	if order == nil || order.Qty != 200 {
		t.Fatalf("order = %+v, want qty 200", order)
	}
}

func TestBasicSizer_Declines(t *testing.T) {
	s := NewBasic(basicPolicy(), model.KRW)

	if got := s.CalculatePositionSize(buySignal(150, 100), usdAccount(100)); got != nil {
		t.Errorf("insufficient cash: got %+v, want nil", got)
	}

	// qty 3 at price 30 is 90 notional, below the 100 minimum.
	if got := s.CalculatePositionSize(buySignal(30, 100), usdAccount(500)); got != nil {
		t.Errorf("below min order amount: got %+v, want nil", got)
	}

	// Non-positive price is a hard decline even with cash available.
	if got := s.CalculatePositionSize(buySignal(-5, 100), usdAccount(1_000_000)); got != nil {
		t.Errorf("negative price: got %+v, want nil", got)
	}
}

func TestBasicSizer_PriceAndCurrencyFallbacks(t *testing.T) {
	s := NewBasic(basicPolicy(), model.USD)

	// No price on the signal: configured default (100) applies.
	sig := buySignal(0, 100)
	sig.Price = nil
	order := s.CalculatePositionSize(sig, usdAccount(1_000_000))
	if order == nil || order.Qty != 2000 || order.Price != 100 {
		t.Fatalf("order = %+v, want qty 2000 at default price", order)
	}

	// No currency on the signal: sizer falls back to its default currency.
	sig = buySignal(150, 100)
	sig.Currency = ""
	order = s.CalculatePositionSize(sig, usdAccount(1_000_000))
	if order == nil || order.Qty != 1333 {
		t.Fatalf("order = %+v, want qty 1333 via default currency", order)
	}
}

func TestBasicSizer_Idempotent(t *testing.T) {
	s := NewBasic(basicPolicy(), model.KRW)
	sig := buySignal(150, 100)
	acct := usdAccount(1_000_000)

	first := s.CalculatePositionSize(sig, acct)
	second := s.CalculatePositionSize(sig, acct)
	if first == nil || second == nil || first.Qty != second.Qty {
		t.Fatalf("sizing not stable: %+v vs %+v", first, second)
	}
}

func TestOnlyOneSizer(t *testing.T) {
	s := NewOnlyOne(config.PolicyConfig{Name: "one", Type: "OnlyOne", DefaultPrice: 50}, model.USD)

	if order := s.CalculatePositionSize(buySignal(150, 100), usdAccount(200)); order == nil || order.Qty != 1 {
		t.Fatalf("buy with cash: order = %+v, want qty 1", order)
	}
	if order := s.CalculatePositionSize(buySignal(150, 100), usdAccount(100)); order != nil {
		t.Fatalf("buy without cash: order = %+v, want nil", order)
	}

	sell := buySignal(150, 100)
	sell.Action = model.ActionSell
	if order := s.CalculatePositionSize(sell, usdAccount(0)); order == nil || order.Qty != 1 {
		t.Fatalf("sell is unconditional: order = %+v, want qty 1", order)
	}
}

func TestValidateOrder_RejectsNonPositiveQty(t *testing.T) {
	sizers := []Sizer{
		NewBasic(basicPolicy(), model.KRW),
		NewOnlyOne(config.PolicyConfig{}, model.KRW),
	}
	for _, s := range sizers {
		bad := model.NewOrder("main", "AAPL", model.ActionBuy, model.OrderMarket, 0, 150)
		if ok, reason := s.ValidateOrder(bad, usdAccount(1000)); ok || reason == "" {
			t.Errorf("%T: zero qty passed validation", s)
		}
		good := model.NewOrder("main", "AAPL", model.ActionBuy, model.OrderMarket, 1, 150)
		if ok, _ := s.ValidateOrder(good, usdAccount(1000)); !ok {
			t.Errorf("%T: valid order rejected", s)
		}
	}
}

func TestRegistryAndPolicyMapper(t *testing.T) {
	cfg := config.SizingConfig{
		DefaultCurrency: "KRW",
		Policies: []config.PolicyConfig{
			basicPolicy(),
			{Name: "one", Type: "OnlyOne", DefaultPrice: 50},
		},
	}
	reg, err := NewRegistry(cfg)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	if reg.Get("default") == nil || reg.Get("one") == nil {
		t.Fatal("configured policies missing from registry")
	}
	if reg.Get("nope") != nil {
		t.Fatal("unknown policy should be nil")
	}

	mapper, err := NewPolicyMapper(reg, map[string]string{"momentum": "one", "*": "default"})
	if err != nil {
		t.Fatalf("NewPolicyMapper: %v", err)
	}
	if _, ok := mapper.SizerForStrategy("momentum").(*OnlyOneSizer); !ok {
		t.Error("momentum should map to the OnlyOne policy")
	}
	if _, ok := mapper.SizerForStrategy("unmapped").(*BasicSizer); !ok {
		t.Error("unmapped strategy should fall back to the wildcard")
	}
}

func TestPolicyMapper_FailsFastOnBadMapping(t *testing.T) {
	reg, _ := NewRegistry(config.SizingConfig{
		DefaultCurrency: "KRW",
		Policies:        []config.PolicyConfig{basicPolicy()},
	})
	if _, err := NewPolicyMapper(reg, map[string]string{"*": "missing"}); err == nil {
		t.Fatal("expected startup error for mapping to undefined policy")
	}
}

func TestNewRegistry_UnknownType(t *testing.T) {
	_, err := NewRegistry(config.SizingConfig{
		Policies: []config.PolicyConfig{{Name: "x", Type: "Martingale"}},
	})
	if err == nil {
		t.Fatal("expected error for unknown policy type")
	}
}

func TestPolicyMapper_NoMappingReturnsNil(t *testing.T) {
	reg, _ := NewRegistry(config.SizingConfig{
		Policies: []config.PolicyConfig{basicPolicy()},
	})
	mapper, err := NewPolicyMapper(reg, map[string]string{"momentum": "default"})
	if err != nil {
		t.Fatalf("NewPolicyMapper: %v", err)
	}
	if s := mapper.SizerForStrategy("other"); s != nil {
		t.Errorf("no wildcard configured, got %T", s)
	}
}
