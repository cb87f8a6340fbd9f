// Package api provides the HTTP management surface for scheduled orders:
// list, upsert, and remove. It talks to the same locked repository the
// executor uses, so an edit and a scan pass never interleave on one
// account's schedule.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"trade-routerv1/internal/model"
	"trade-routerv1/internal/sched"
)

// Handler serves the schedule management endpoints.
type Handler struct {
	repo sched.Repository
	log  *slog.Logger
}

// NewHandler builds the management handler.
func NewHandler(repo sched.Repository, log *slog.Logger) *Handler {
	return &Handler{repo: repo, log: log}
}

// Mux returns the management routing table.
func (h *Handler) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/schedules", h.handleSchedules)
	mux.HandleFunc("/api/v1/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	return mux
}

func (h *Handler) handleSchedules(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.list(w, r)
	case http.MethodPost:
		h.upsert(w, r)
	case http.MethodDelete:
		h.remove(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// list returns one account's schedule, or every account's when no account
// parameter is given.
func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	alias := r.URL.Query().Get("account")
	aliases := []string{alias}
	if alias == "" {
		var err error
		aliases, err = h.repo.Aliases(ctx)
		if err != nil {
			h.log.Error("schedule list failed", "error", err)
			http.Error(w, "store unavailable", http.StatusServiceUnavailable)
			return
		}
	}

	result := make(map[string][]*model.ScheduledOrder, len(aliases))
	for _, a := range aliases {
		orders, err := h.repo.GetAll(ctx, a)
		if err != nil {
			h.log.Error("schedule read failed", "account", a, "error", err)
			http.Error(w, "store unavailable", http.StatusServiceUnavailable)
			return
		}
		result[a] = orders
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

func (h *Handler) upsert(w http.ResponseWriter, r *http.Request) {
	var order model.ScheduledOrder
	if err := json.NewDecoder(r.Body).Decode(&order); err != nil {
		http.Error(w, "malformed schedule", http.StatusBadRequest)
		return
	}
	if order.AccountAlias == "" || order.Ticker == "" {
		http.Error(w, "account_alias and ticker are required", http.StatusBadRequest)
		return
	}
	if order.Action != model.ActionBuy && order.Action != model.ActionSell {
		http.Error(w, "action must be Buy or Sell", http.StatusBadRequest)
		return
	}
	if order.Qty <= 0 && order.TargetAmount <= 0 {
		http.Error(w, "either qty or target_amount must be positive", http.StatusBadRequest)
		return
	}
	if order.ScheduledAt.IsZero() {
		http.Error(w, "scheduled_at is required", http.StatusBadRequest)
		return
	}
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}

	if err := h.repo.AddOrUpdate(r.Context(), &order); err != nil {
		if errors.Is(err, model.ErrLockBusy) {
			http.Error(w, "schedule busy, retry", http.StatusConflict)
			return
		}
		h.log.Error("schedule upsert failed", "account", order.AccountAlias, "error", err)
		http.Error(w, "store unavailable", http.StatusServiceUnavailable)
		return
	}

	h.log.Info("schedule saved",
		"scheduled_id", order.ID.String(),
		"account", order.AccountAlias,
		"ticker", order.Ticker)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{"id": order.ID.String()})
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	alias := r.URL.Query().Get("account")
	rawID := r.URL.Query().Get("id")
	if alias == "" || rawID == "" {
		http.Error(w, "account and id are required", http.StatusBadRequest)
		return
	}
	id, err := uuid.Parse(rawID)
	if err != nil {
		http.Error(w, "malformed id", http.StatusBadRequest)
		return
	}

	if err := h.repo.Remove(r.Context(), alias, id); err != nil {
		if errors.Is(err, model.ErrLockBusy) {
			http.Error(w, "schedule busy, retry", http.StatusConflict)
			return
		}
		h.log.Error("schedule remove failed", "account", alias, "error", err)
		http.Error(w, "store unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
