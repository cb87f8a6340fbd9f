package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"trade-routerv1/internal/model"
)

type fakeScheduleRepo struct {
	mu     sync.Mutex
	lists  map[string][]*model.ScheduledOrder
	busy   bool
	failed bool
}

func newFakeScheduleRepo() *fakeScheduleRepo {
	return &fakeScheduleRepo{lists: map[string][]*model.ScheduledOrder{}}
}

func (r *fakeScheduleRepo) GetAll(ctx context.Context, alias string) ([]*model.ScheduledOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failed {
		return nil, fmt.Errorf("store down")
	}
	return append([]*model.ScheduledOrder(nil), r.lists[alias]...), nil
}

func (r *fakeScheduleRepo) ProcessUnderLock(ctx context.Context, alias string, waitForLock bool, fn model.ScheduledOrderProcessor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.busy {
		return model.ErrLockBusy
	}
	_, err := fn(r.lists[alias])
	return err
}

func (r *fakeScheduleRepo) AddOrUpdate(ctx context.Context, order *model.ScheduledOrder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.busy {
		return model.ErrLockBusy
	}
	list := r.lists[order.AccountAlias]
	for i, existing := range list {
		if existing.ID == order.ID {
			list[i] = order
			return nil
		}
	}
	r.lists[order.AccountAlias] = append(list, order)
	return nil
}

func (r *fakeScheduleRepo) Remove(ctx context.Context, alias string, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.busy {
		return model.ErrLockBusy
	}
	list := r.lists[alias]
	for i, existing := range list {
		if existing.ID == id {
			r.lists[alias] = append(list[:i], list[i+1:]...)
			return nil
		}
	}
	return nil
}

func (r *fakeScheduleRepo) Aliases(ctx context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	aliases := make([]string, 0, len(r.lists))
	for alias := range r.lists {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)
	return aliases, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startAPI(t *testing.T) (*fakeScheduleRepo, *httptest.Server) {
	t.Helper()
	repo := newFakeScheduleRepo()
	srv := httptest.NewServer(NewHandler(repo, testLogger()).Mux())
	t.Cleanup(srv.Close)
	return repo, srv
}

func postSchedule(t *testing.T, srv *httptest.Server, order *model.ScheduledOrder) *http.Response {
	t.Helper()
	body, err := json.Marshal(order)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(srv.URL+"/api/v1/schedules", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	return resp
}

func TestUpsertAndList(t *testing.T) {
	repo, srv := startAPI(t)

	order := &model.ScheduledOrder{
		AccountAlias: "main",
		Ticker:       "AAPL",
		Exchange:     "NASDAQ",
		Currency:     model.USD,
		Action:       model.ActionBuy,
		Qty:          5,
		ScheduledAt:  time.Date(2025, 6, 10, 13, 30, 0, 0, time.UTC),
		Active:       true,
	}
	resp := postSchedule(t, srv, order)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	var created map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, err := uuid.Parse(created["id"]); err != nil {
		t.Fatalf("response id %q not a uuid: %v", created["id"], err)
	}

	stored := repo.lists["main"]
	if len(stored) != 1 {
		t.Fatalf("stored %d orders, want 1", len(stored))
	}
	if stored[0].ID == uuid.Nil {
		t.Error("stored order has nil id")
	}

	listResp, err := http.Get(srv.URL + "/api/v1/schedules?account=main")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer listResp.Body.Close()
	var listed map[string][]*model.ScheduledOrder
	if err := json.NewDecoder(listResp.Body).Decode(&listed); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(listed["main"]) != 1 || listed["main"][0].Ticker != "AAPL" {
		t.Errorf("listed = %+v, want one AAPL order", listed["main"])
	}
}

func TestListAllAccounts(t *testing.T) {
	repo, srv := startAPI(t)
	for _, alias := range []string{"alpha", "beta"} {
		repo.lists[alias] = []*model.ScheduledOrder{{
			ID:           uuid.New(),
			AccountAlias: alias,
			Ticker:       "005930",
			Action:       model.ActionBuy,
			Qty:          1,
			ScheduledAt:  time.Now().UTC(),
			Active:       true,
		}}
	}

	resp, err := http.Get(srv.URL + "/api/v1/schedules")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	var listed map[string][]*model.ScheduledOrder
	if err := json.NewDecoder(resp.Body).Decode(&listed); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(listed) != 2 || len(listed["alpha"]) != 1 || len(listed["beta"]) != 1 {
		t.Errorf("listed accounts = %v, want alpha and beta", listed)
	}
}

func TestUpsertValidation(t *testing.T) {
	_, srv := startAPI(t)
	base := func() *model.ScheduledOrder {
		return &model.ScheduledOrder{
			AccountAlias: "main",
			Ticker:       "AAPL",
			Action:       model.ActionBuy,
			Qty:          1,
			ScheduledAt:  time.Now().UTC(),
			Active:       true,
		}
	}

	cases := []struct {
		name   string
		mutate func(*model.ScheduledOrder)
	}{
		{"missing account", func(o *model.ScheduledOrder) { o.AccountAlias = "" }},
		{"missing ticker", func(o *model.ScheduledOrder) { o.Ticker = "" }},
		{"bad action", func(o *model.ScheduledOrder) { o.Action = "Hold" }},
		{"no size", func(o *model.ScheduledOrder) { o.Qty = 0; o.TargetAmount = 0 }},
		{"no schedule time", func(o *model.ScheduledOrder) { o.ScheduledAt = time.Time{} }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			order := base()
			tc.mutate(order)
			resp := postSchedule(t, srv, order)
			resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
}

func TestRemove(t *testing.T) {
	repo, srv := startAPI(t)
	id := uuid.New()
	repo.lists["main"] = []*model.ScheduledOrder{{
		ID:           id,
		AccountAlias: "main",
		Ticker:       "AAPL",
		Action:       model.ActionSell,
		Qty:          1,
		ScheduledAt:  time.Now().UTC(),
		Active:       true,
	}}

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/api/v1/schedules?account=main&id="+id.String(), nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}
	if len(repo.lists["main"]) != 0 {
		t.Errorf("schedule still has %d orders after remove", len(repo.lists["main"]))
	}
}

func TestRemoveValidation(t *testing.T) {
	_, srv := startAPI(t)

	for _, target := range []string{
		"/api/v1/schedules?id=" + uuid.NewString(),
		"/api/v1/schedules?account=main",
		"/api/v1/schedules?account=main&id=not-a-uuid",
	} {
		req, _ := http.NewRequest(http.MethodDelete, srv.URL+target, nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("delete %s: %v", target, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", target, resp.StatusCode)
		}
	}
}

func TestLockBusyMapsToConflict(t *testing.T) {
	repo, srv := startAPI(t)
	repo.busy = true

	resp := postSchedule(t, srv, &model.ScheduledOrder{
		AccountAlias: "main",
		Ticker:       "AAPL",
		Action:       model.ActionBuy,
		Qty:          1,
		ScheduledAt:  time.Now().UTC(),
		Active:       true,
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want 409", resp.StatusCode)
	}
}
