// Package webhook is the HTTP ingress that normalizes TradingView-style
// alert payloads into signals on the bus. It does no sizing or validation
// beyond shape checks; the composition pipeline owns all trading decisions.
package webhook

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"trade-routerv1/internal/bus"
	"trade-routerv1/internal/model"
	"trade-routerv1/internal/notify"
)

// Payload is the inbound alert shape.
type Payload struct {
	Ticker   string   `json:"ticker"`
	Exchange string   `json:"exchange"`
	Action   string   `json:"action"`
	Price    *float64 `json:"price,omitempty"`
	Strength *int     `json:"strength,omitempty"`
	Currency string   `json:"currency,omitempty"`
	Comment  string   `json:"comment,omitempty"` // strategy tag
	Secret   string   `json:"secret,omitempty"`
}

// Handler accepts alerts on POST /webhook.
type Handler struct {
	bus      bus.Bus
	secret   string // empty disables the check
	notifier *notify.Notifier
	log      *slog.Logger
}

// NewHandler builds the ingress handler.
func NewHandler(b bus.Bus, secret string, notifier *notify.Notifier, log *slog.Logger) *Handler {
	return &Handler{bus: b, secret: secret, notifier: notifier, log: log}
}

// Mux returns the ingress routing table.
func (h *Handler) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/webhook", h.handleAlert)
	return mux
}

func (h *Handler) handleAlert(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var p Payload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, "malformed payload", http.StatusBadRequest)
		return
	}
	if h.secret != "" && p.Secret != h.secret {
		h.log.Warn("webhook rejected: bad secret", "remote", r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	sig, err := p.toSignal()
	if err != "" {
		http.Error(w, err, http.StatusBadRequest)
		return
	}

	raw, merr := json.Marshal(sig)
	if merr != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if perr := h.bus.Publish(r.Context(), bus.SignalChannel, raw); perr != nil {
		h.log.Error("signal publish failed", "error", perr)
		http.Error(w, "bus unavailable", http.StatusServiceUnavailable)
		return
	}

	h.log.Info("signal accepted",
		"signal_id", sig.ID.String(),
		"ticker", sig.Ticker,
		"exchange", sig.Exchange,
		"strategy", sig.Strategy)
	if h.notifier != nil {
		h.notifier.Notify("signal_accepted", "signal accepted", map[string]string{
			"signal_id": sig.ID.String(),
			"ticker":    sig.Ticker,
			"strategy":  sig.Strategy,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"signal_id": sig.ID.String()})
}

// toSignal validates shape and builds the signal. The second return is the
// client-facing error message, empty on success.
func (p *Payload) toSignal() (*model.Signal, string) {
	if p.Ticker == "" {
		return nil, "ticker is required"
	}
	if p.Exchange == "" {
		return nil, "exchange is required"
	}

	var action model.Action
	switch strings.ToLower(p.Action) {
	case "buy":
		action = model.ActionBuy
	case "sell":
		action = model.ActionSell
	default:
		return nil, "action must be buy or sell"
	}

	strategy := p.Comment
	if strategy == "" {
		strategy = "manual"
	}

	sig := model.NewSignal(p.Ticker, p.Exchange, action, strategy)
	sig.Price = p.Price
	sig.Strength = p.Strength
	sig.Currency = model.Currency(p.Currency)
	return sig, ""
}
