package sqlite

import (
	"context"
	"testing"
	"time"

	"trade-routerv1/internal/model"
)

func memJournal(t *testing.T) *TradeJournal {
	t.Helper()
	j, err := NewJournal(JournalConfig{DBPath: ":memory:"})
	if err != nil {
		t.Fatalf("NewJournal: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestJournal_RecordAndReadBack(t *testing.T) {
	j := memJournal(t)
	ctx := context.Background()

	order := model.NewOrder("main", "005930", model.ActionBuy, model.OrderMarket, 10, 70000)
	order.Exchange = "KRX"
	order.Currency = model.KRW
	order.Reason = "Webhook:momentum"

	if err := j.RecordExecution(ctx, order, model.OrderSuccess(order.ID.String(), "B-1", "filled"), 70035); err != nil {
		t.Fatalf("RecordExecution: %v", err)
	}

	trades, err := j.RecentTrades(ctx, "main", 10)
	if err != nil {
		t.Fatalf("RecentTrades: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("got %d trades, want 1", len(trades))
	}
	tr := trades[0]
	if tr.OrderID != order.ID.String() || tr.Ticker != "005930" || !tr.Success {
		t.Errorf("trade = %+v", tr)
	}
	if tr.Price != 70035 {
		t.Errorf("fill price = %v, want 70035", tr.Price)
	}
	if tr.Currency != model.KRW || tr.Action != model.ActionBuy {
		t.Errorf("trade enums = %v/%v", tr.Currency, tr.Action)
	}
	if tr.Reason != "Webhook:momentum" {
		t.Errorf("reason = %q", tr.Reason)
	}
}

func TestJournal_RecentTradesScopedToAccount(t *testing.T) {
	j := memJournal(t)
	ctx := context.Background()

	for _, alias := range []string{"alpha", "beta", "alpha"} {
		order := model.NewOrder(alias, "AAPL", model.ActionBuy, model.OrderMarket, 1, 150)
		order.Currency = model.USD
		if err := j.RecordExecution(ctx, order, model.OrderSuccess(order.ID.String(), "", "filled"), 150); err != nil {
			t.Fatalf("RecordExecution: %v", err)
		}
	}

	trades, err := j.RecentTrades(ctx, "alpha", 10)
	if err != nil {
		t.Fatalf("RecentTrades: %v", err)
	}
	if len(trades) != 2 {
		t.Fatalf("got %d trades for alpha, want 2", len(trades))
	}
}

func TestJournal_DailyFillCountIgnoresFailures(t *testing.T) {
	j := memJournal(t)
	ctx := context.Background()

	ok := model.NewOrder("main", "AAPL", model.ActionBuy, model.OrderMarket, 1, 150)
	ok.Currency = model.USD
	failed := model.NewOrder("main", "AAPL", model.ActionBuy, model.OrderMarket, 1, 150)
	failed.Currency = model.USD

	j.RecordExecution(ctx, ok, model.OrderSuccess(ok.ID.String(), "", "filled"), 150)
	j.RecordExecution(ctx, failed, model.OrderFailure(failed.ID.String(), "insufficient funds"), 0)

	count, err := j.DailyFillCount(ctx, "main", time.Now())
	if err != nil {
		t.Fatalf("DailyFillCount: %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
}
