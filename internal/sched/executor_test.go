package sched

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"trade-routerv1/internal/model"
)

// ── fakes ──

type fakeScheduleRepo struct {
	mu     sync.Mutex
	held   map[string]bool
	orders map[string][]*model.ScheduledOrder
	saves  int
}

func newFakeScheduleRepo() *fakeScheduleRepo {
	return &fakeScheduleRepo{
		held:   make(map[string]bool),
		orders: make(map[string][]*model.ScheduledOrder),
	}
}

func (r *fakeScheduleRepo) Aliases(context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	aliases := make([]string, 0, len(r.orders))
	for alias := range r.orders {
		aliases = append(aliases, alias)
	}
	return aliases, nil
}

func (r *fakeScheduleRepo) GetAll(_ context.Context, alias string) ([]*model.ScheduledOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.orders[alias], nil
}

func (r *fakeScheduleRepo) ProcessUnderLock(_ context.Context, alias string, waitForLock bool, fn model.ScheduledOrderProcessor) error {
	r.mu.Lock()
	if r.held[alias] {
		r.mu.Unlock()
		if !waitForLock {
			return model.ErrLockBusy
		}
		return errors.New("fake repo does not block")
	}
	r.held[alias] = true
	orders := r.orders[alias]
	r.mu.Unlock()

	modified, err := fn(orders)

	r.mu.Lock()
	r.held[alias] = false
	if modified {
		r.saves++
	}
	r.mu.Unlock()
	return err
}

func (r *fakeScheduleRepo) AddOrUpdate(_ context.Context, order *model.ScheduledOrder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[order.AccountAlias] = append(r.orders[order.AccountAlias], order)
	return nil
}

func (r *fakeScheduleRepo) Remove(context.Context, string, uuid.UUID) error { return nil }

type fakePublisher struct {
	mu     sync.Mutex
	orders []*model.Order
}

func (p *fakePublisher) PublishOrder(_ context.Context, order *model.Order) error {
	p.mu.Lock()
	p.orders = append(p.orders, order)
	p.mu.Unlock()
	return nil
}

func (p *fakePublisher) published() []*model.Order {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*model.Order(nil), p.orders...)
}

type fakeAccounts struct {
	account *model.Account
}

func (a *fakeAccounts) GetAccount(context.Context, string) (*model.Account, error) {
	return a.account, nil
}

type fakePrices struct {
	price float64
	err   error
}

func (p *fakePrices) GetPrice(context.Context, string) (*model.PriceInfo, error) {
	if p.err != nil {
		return nil, p.err
	}
	return &model.PriceInfo{Price: p.price}, nil
}

// ── fixtures ──

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var scanNow = time.Date(2025, 6, 3, 12, 0, 0, 0, time.UTC)

func newTestExecutor(repo *fakeScheduleRepo, pub *fakePublisher, accounts model.AccountRepository, prices PriceSource) *Executor {
	if accounts == nil {
		accounts = &fakeAccounts{}
	}
	if prices == nil {
		prices = &fakePrices{price: 100}
	}
	e := NewExecutor(repo, accounts, prices, pub, nil, discard())
	e.now = func() time.Time { return scanNow }
	return e
}

func oneShot(alias string, at time.Time) *model.ScheduledOrder {
	return &model.ScheduledOrder{
		ID:           uuid.New(),
		AccountAlias: alias,
		Ticker:       "005930",
		Exchange:     "KRX",
		Currency:     model.KRW,
		Action:       model.ActionBuy,
		Qty:          10,
		ScheduledAt:  at,
		Active:       true,
	}
}

// ── tests ──

func TestExecutor_PublishesDueOrderAndDeactivates(t *testing.T) {
	repo := newFakeScheduleRepo()
	so := oneShot("main", scanNow.Add(-time.Minute))
	repo.orders["main"] = []*model.ScheduledOrder{so}
	pub := &fakePublisher{}

	e := newTestExecutor(repo, pub, nil, nil)
	if err := e.ProcessAccount(context.Background(), "main", false); err != nil {
		t.Fatalf("ProcessAccount: %v", err)
	}

	orders := pub.published()
	if len(orders) != 1 {
		t.Fatalf("published %d orders, want 1", len(orders))
	}
	o := orders[0]
	if o.Qty != 10 || o.Reason != "Schedule" || o.Exchange != "KRX" || o.Currency != model.KRW {
		t.Errorf("order = %+v", o)
	}
	if so.Active {
		t.Error("one-shot order still active after execution")
	}
	if !so.LastExecuted.Equal(scanNow) {
		t.Errorf("LastExecuted = %v, want %v", so.LastExecuted, scanNow)
	}
	if repo.saves != 1 {
		t.Errorf("saves = %d, want 1", repo.saves)
	}
}

func TestExecutor_NotDueOrdersUntouched(t *testing.T) {
	repo := newFakeScheduleRepo()
	future := oneShot("main", scanNow.Add(time.Hour))
	inactive := oneShot("main", scanNow.Add(-time.Hour))
	inactive.Active = false
	repo.orders["main"] = []*model.ScheduledOrder{future, inactive}
	pub := &fakePublisher{}

	e := newTestExecutor(repo, pub, nil, nil)
	e.ProcessAccount(context.Background(), "main", false)

	if len(pub.published()) != 0 {
		t.Fatal("published orders that were not due")
	}
	if repo.saves != 0 {
		t.Errorf("saves = %d, want 0", repo.saves)
	}
}

func TestExecutor_HeldLockSkipsWithoutMutation(t *testing.T) {
	repo := newFakeScheduleRepo()
	so := oneShot("main", scanNow.Add(-time.Minute))
	repo.orders["main"] = []*model.ScheduledOrder{so}
	repo.held["main"] = true
	pub := &fakePublisher{}

	e := newTestExecutor(repo, pub, nil, nil)
	start := time.Now()
	err := e.ProcessAccount(context.Background(), "main", false)
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("lock contention must not be an error: %v", err)
	}
	if elapsed > 100*time.Millisecond {
		t.Errorf("non-blocking acquisition took %s", elapsed)
	}
	if len(pub.published()) != 0 || !so.Active || !so.LastExecuted.IsZero() {
		t.Error("state mutated despite held lock")
	}
}

func TestExecutor_RecurringAdvancesAndDoesNotRepeat(t *testing.T) {
	repo := newFakeScheduleRepo()
	so := oneShot("main", scanNow.Add(-time.Minute))
	so.Recurring = true
	so.Days = []time.Weekday{time.Tuesday, time.Friday}
	repo.orders["main"] = []*model.ScheduledOrder{so}
	pub := &fakePublisher{}

	e := newTestExecutor(repo, pub, nil, nil)
	e.ProcessAccount(context.Background(), "main", false)

	if len(pub.published()) != 1 {
		t.Fatalf("published %d orders, want 1", len(pub.published()))
	}
	if !so.Active {
		t.Error("recurring order deactivated")
	}
	if !so.ScheduledAt.After(scanNow) {
		t.Errorf("ScheduledAt = %v, want advanced past %v", so.ScheduledAt, scanNow)
	}
	if wd := so.ScheduledAt.Weekday(); wd != time.Tuesday && wd != time.Friday {
		t.Errorf("next occurrence on %v, want a configured day", wd)
	}

	// Second scan in the same window must not republish.
	e.ProcessAccount(context.Background(), "main", false)
	if len(pub.published()) != 1 {
		t.Fatal("recurring order executed twice in one window")
	}
}

func TestExecutor_TargetAmountSizedAtQuote(t *testing.T) {
	repo := newFakeScheduleRepo()
	so := oneShot("main", scanNow.Add(-time.Minute))
	so.Qty = 0
	so.TargetAmount = 1000
	repo.orders["main"] = []*model.ScheduledOrder{so}
	pub := &fakePublisher{}

	accounts := &fakeAccounts{account: &model.Account{
		Alias:    "main",
		Deposits: map[model.Currency]float64{model.KRW: 450},
		Active:   true,
	}}
	e := newTestExecutor(repo, pub, accounts, &fakePrices{price: 100})
	e.ProcessAccount(context.Background(), "main", false)

	orders := pub.published()
	if len(orders) != 1 {
		t.Fatalf("published %d orders, want 1", len(orders))
	}
	// Budget is min(target 1000, cash 450); floor(450/100) = 4 at the quote.
	if orders[0].Qty != 4 || orders[0].Price != 100 {
		t.Errorf("order = %+v, want qty 4 at 100", orders[0])
	}
}

func TestExecutor_QuoteFailureLeavesOrderForNextTick(t *testing.T) {
	repo := newFakeScheduleRepo()
	so := oneShot("main", scanNow.Add(-time.Minute))
	so.Qty = 0
	so.TargetAmount = 1000
	repo.orders["main"] = []*model.ScheduledOrder{so}
	pub := &fakePublisher{}

	e := newTestExecutor(repo, pub, nil, &fakePrices{err: errors.New("gateway down")})
	e.ProcessAccount(context.Background(), "main", false)

	if len(pub.published()) != 0 {
		t.Fatal("published despite missing quote")
	}
	if !so.Active || !so.LastExecuted.IsZero() {
		t.Error("order mutated despite failed execution")
	}
}

func TestExecutor_ScanAllCoversEveryAccount(t *testing.T) {
	repo := newFakeScheduleRepo()
	repo.orders["alpha"] = []*model.ScheduledOrder{oneShot("alpha", scanNow.Add(-time.Minute))}
	repo.orders["beta"] = []*model.ScheduledOrder{oneShot("beta", scanNow.Add(-time.Minute))}
	pub := &fakePublisher{}

	e := newTestExecutor(repo, pub, nil, nil)
	e.ScanAll(context.Background())

	if len(pub.published()) != 2 {
		t.Fatalf("published %d orders, want 2", len(pub.published()))
	}
}
