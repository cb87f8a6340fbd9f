// Package notify is the best-effort system event dispatcher. Events go out
// on the notification channel for whatever formatter/relay is listening;
// a failed dispatch is logged and forgotten, it never affects the caller.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"trade-routerv1/internal/bus"
)

// Event is one system notification.
type Event struct {
	Kind      string            `json:"kind"` // e.g. "order_filled", "signal_dropped"
	Service   string            `json:"service"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Notifier publishes events without blocking the calling pipeline.
type Notifier struct {
	bus     bus.Bus
	service string
	log     *slog.Logger
}

// New builds a notifier stamping events with the service name.
func New(b bus.Bus, service string, log *slog.Logger) *Notifier {
	return &Notifier{bus: b, service: service, log: log}
}

// Notify dispatches the event on a detached goroutine. Errors are logged
// only; the pipeline's outcome never depends on notification delivery.
func (n *Notifier) Notify(kind, message string, fields map[string]string) {
	event := Event{
		Kind:      kind,
		Service:   n.service,
		Message:   message,
		Fields:    fields,
		Timestamp: time.Now().UTC(),
	}
	go func() {
		raw, err := json.Marshal(event)
		if err != nil {
			n.log.Warn("notification marshal failed", "kind", kind, "error", err)
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := n.bus.Publish(ctx, bus.NotificationChannel, raw); err != nil {
			n.log.Warn("notification dispatch failed", "kind", kind, "error", err)
		}
	}()
}
