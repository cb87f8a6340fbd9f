package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"trade-routerv1/internal/bus"
	"trade-routerv1/internal/metrics"
	"trade-routerv1/internal/model"
)

const (
	// DefaultTimeout bounds general broker operations.
	DefaultTimeout = 5 * time.Second
	// DefaultPingTimeout bounds the liveness probe.
	DefaultPingTimeout = 2 * time.Second
)

// Client issues synchronous-looking broker calls over the asynchronous bus.
// Each call owns a fresh correlation id and an ephemeral response channel
// subscribed before the request is published, so a fast responder cannot
// answer before the caller is listening. Safe for concurrent use.
type Client struct {
	bus         bus.Bus
	account     string
	timeout     time.Duration
	pingTimeout time.Duration
	metrics     *metrics.Metrics // may be nil
	log         *slog.Logger
}

// NewClient builds a client bound to one account alias. Zero timeouts fall
// back to the defaults.
func NewClient(b bus.Bus, account string, timeout, pingTimeout time.Duration, m *metrics.Metrics, log *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if pingTimeout <= 0 {
		pingTimeout = DefaultPingTimeout
	}
	return &Client{
		bus:         b,
		account:     account,
		timeout:     timeout,
		pingTimeout: pingTimeout,
		metrics:     m,
		log:         log,
	}
}

// call runs one correlated request/response round trip and returns the
// response's opaque payload. The response subscription is torn down on every
// exit path.
func (c *Client) call(ctx context.Context, typ model.BrokerRequestType, payload string, forceRefresh bool, timeout time.Duration) (string, error) {
	if c.metrics != nil {
		c.metrics.RPCCalls.WithLabelValues(string(typ)).Inc()
	}
	start := time.Now()
	defer func() {
		if c.metrics != nil {
			c.metrics.RPCDuration.Observe(time.Since(start).Seconds())
		}
	}()

	id := uuid.New()
	respChannel := bus.ResponseChannel(id.String())

	sub, err := c.bus.Subscribe(ctx, respChannel)
	if err != nil {
		return "", fmt.Errorf("broker: subscribe %s: %w", respChannel, err)
	}
	defer sub.Close()

	raw, err := json.Marshal(model.BrokerRequest{
		ID:              id,
		Type:            typ,
		Account:         c.account,
		Payload:         payload,
		ResponseChannel: respChannel,
		ForceRefresh:    forceRefresh,
	})
	if err != nil {
		return "", fmt.Errorf("broker: marshal request: %w", err)
	}
	if err := c.bus.Publish(ctx, bus.BrokerRequestChannel, raw); err != nil {
		return "", fmt.Errorf("broker: publish request: %w", err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case msg, ok := <-sub.Messages():
		if !ok {
			return "", fmt.Errorf("broker: response subscription closed")
		}
		var resp model.BrokerResponse
		if err := json.Unmarshal(msg.Payload, &resp); err != nil {
			return "", fmt.Errorf("broker: malformed response: %w", err)
		}
		if !resp.Success {
			return "", &GatewayError{Op: string(typ), Message: resp.Message}
		}
		return resp.Payload, nil

	case <-timer.C:
		if c.metrics != nil {
			c.metrics.RPCTimeouts.Inc()
		}
		return "", fmt.Errorf("broker: %s after %s: %w", typ, timeout, ErrTimeout)

	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Ping probes gateway liveness with the short timeout.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.call(ctx, model.ReqPing, "", false, c.pingTimeout)
	return err
}

// GetPrice fetches the current quote for a ticker. An empty payload maps to
// the zero quote, not an error.
func (c *Client) GetPrice(ctx context.Context, ticker string) (*model.PriceInfo, error) {
	payload, err := c.call(ctx, model.ReqGetPrice, ticker, false, c.timeout)
	if err != nil {
		return nil, err
	}
	info := &model.PriceInfo{}
	if payload == "" {
		return info, nil
	}
	if err := json.Unmarshal([]byte(payload), info); err != nil {
		return nil, fmt.Errorf("broker: malformed price payload: %w", err)
	}
	return info, nil
}

// GetDeposit fetches the account's per-currency cash balances.
func (c *Client) GetDeposit(ctx context.Context, forceRefresh bool) (map[model.Currency]float64, error) {
	payload, err := c.call(ctx, model.ReqGetDeposit, "", forceRefresh, c.timeout)
	if err != nil {
		return nil, err
	}
	deposits := make(map[model.Currency]float64)
	if payload == "" {
		return deposits, nil
	}
	if err := json.Unmarshal([]byte(payload), &deposits); err != nil {
		return nil, fmt.Errorf("broker: malformed deposit payload: %w", err)
	}
	return deposits, nil
}

// GetPositions fetches the account's open positions.
func (c *Client) GetPositions(ctx context.Context, forceRefresh bool) ([]model.Position, error) {
	payload, err := c.call(ctx, model.ReqGetPositions, "", forceRefresh, c.timeout)
	if err != nil {
		return nil, err
	}
	var positions []model.Position
	if payload == "" {
		return positions, nil
	}
	if err := json.Unmarshal([]byte(payload), &positions); err != nil {
		return nil, fmt.Errorf("broker: malformed positions payload: %w", err)
	}
	return positions, nil
}

// GetAccounts lists every account the gateway serves.
func (c *Client) GetAccounts(ctx context.Context) ([]model.Account, error) {
	payload, err := c.call(ctx, model.ReqGetAccounts, "", false, c.timeout)
	if err != nil {
		return nil, err
	}
	var accounts []model.Account
	if payload == "" {
		return accounts, nil
	}
	if err := json.Unmarshal([]byte(payload), &accounts); err != nil {
		return nil, fmt.Errorf("broker: malformed accounts payload: %w", err)
	}
	return accounts, nil
}

// PlaceOrder publishes the order and waits for its execution result on the
// shared execution channel, matching by order id. Results for other in-flight
// orders are ignored and the wait continues. Transport failures surface as a
// failed OrderResult, never as a panic up the ingress path.
func (c *Client) PlaceOrder(ctx context.Context, order *model.Order) *model.OrderResult {
	if c.metrics != nil {
		c.metrics.RPCCalls.WithLabelValues(string(model.ReqPlaceOrder)).Inc()
	}

	sub, err := c.bus.Subscribe(ctx, bus.ExecutionChannel)
	if err != nil {
		return model.OrderFailure(order.ID.String(), fmt.Sprintf("subscribe executions: %v", err))
	}
	defer sub.Close()

	raw, err := json.Marshal(order)
	if err != nil {
		return model.OrderFailure(order.ID.String(), fmt.Sprintf("marshal order: %v", err))
	}
	if err := c.bus.Publish(ctx, bus.OrderChannel, raw); err != nil {
		return model.OrderFailure(order.ID.String(), fmt.Sprintf("publish order: %v", err))
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	wanted := order.ID.String()
	for {
		select {
		case msg, ok := <-sub.Messages():
			if !ok {
				return model.OrderFailure(wanted, "execution subscription closed")
			}
			var result model.OrderResult
			if err := json.Unmarshal(msg.Payload, &result); err != nil {
				c.log.Warn("malformed execution payload", "error", err)
				continue
			}
			if result.OrderID != wanted {
				continue // someone else's fill
			}
			return &result

		case <-timer.C:
			if c.metrics != nil {
				c.metrics.RPCTimeouts.Inc()
			}
			return model.OrderFailure(wanted, fmt.Sprintf("no execution result within %s", c.timeout))

		case <-ctx.Done():
			return model.OrderFailure(wanted, fmt.Sprintf("canceled: %v", ctx.Err()))
		}
	}
}
