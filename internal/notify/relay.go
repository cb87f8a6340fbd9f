package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"trade-routerv1/internal/bus"
)

// Relay consumes the notification channel and forwards events to an
// external HTTP webhook (Discord-compatible JSON POST). Delivery is best
// effort; a failed forward is logged and the event is gone.
type Relay struct {
	bus    bus.Bus
	url    string
	client *http.Client
	log    *slog.Logger
}

// NewRelay builds a relay posting to url.
func NewRelay(b bus.Bus, url string, log *slog.Logger) *Relay {
	return &Relay{
		bus: b,
		url: url,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		log: log,
	}
}

// Run forwards events until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	sub, err := r.bus.Subscribe(ctx, bus.NotificationChannel)
	if err != nil {
		return err
	}
	defer sub.Close()

	r.log.Info("notification relay started", "url", r.url)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-sub.Messages():
			if !ok {
				return nil
			}
			var event Event
			if err := json.Unmarshal(msg.Payload, &event); err != nil {
				r.log.Warn("malformed notification", "error", err)
				continue
			}
			if err := r.forward(ctx, &event); err != nil {
				r.log.Warn("notification forward failed", "kind", event.Kind, "error", err)
			}
		}
	}
}

// forward posts one event as a simple content message.
func (r *Relay) forward(ctx context.Context, event *Event) error {
	content := fmt.Sprintf("[%s] %s: %s", event.Service, event.Kind, event.Message)
	for k, v := range event.Fields {
		content += fmt.Sprintf("\n%s: %s", k, v)
	}
	body, err := json.Marshal(map[string]string{"content": content})
	if err != nil {
		return fmt.Errorf("relay: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("relay: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("relay: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("relay: unexpected status %d", resp.StatusCode)
	}
	return nil
}
