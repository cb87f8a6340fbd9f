package compose

import (
	"context"
	"encoding/json"
	"log/slog"

	"trade-routerv1/internal/bus"
	"trade-routerv1/internal/logger"
	"trade-routerv1/internal/model"
)

// Consumer pumps the signal channel into the pipeline. One consumer per
// process; signals are handled sequentially in arrival order.
type Consumer struct {
	bus bus.Bus
	svc *Service
	log *slog.Logger
}

// NewConsumer wires a consumer to the bus and service.
func NewConsumer(b bus.Bus, svc *Service, log *slog.Logger) *Consumer {
	return &Consumer{bus: b, svc: svc, log: log}
}

// Run subscribes to the signal channel and processes until ctx is done.
// A malformed payload is logged and skipped, never fatal.
func (c *Consumer) Run(ctx context.Context) error {
	sub, err := c.bus.Subscribe(ctx, bus.SignalChannel)
	if err != nil {
		return err
	}
	defer sub.Close()

	c.log.Info("signal consumer started", "channel", bus.SignalChannel)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-sub.Messages():
			if !ok {
				return nil
			}
			var sig model.Signal
			if err := json.Unmarshal(msg.Payload, &sig); err != nil {
				c.log.Warn("malformed signal payload", "error", err)
				continue
			}
			sigCtx := logger.WithSignalID(ctx, sig.ID.String())
			c.svc.ProcessSignal(sigCtx, &sig)
		}
	}
}

// BusOrderPublisher publishes composed orders on the order channel.
type BusOrderPublisher struct {
	bus bus.Bus
}

// NewBusOrderPublisher wires the publisher to the bus.
func NewBusOrderPublisher(b bus.Bus) *BusOrderPublisher {
	return &BusOrderPublisher{bus: b}
}

// PublishOrder serializes the order and emits it exactly once.
func (p *BusOrderPublisher) PublishOrder(ctx context.Context, order *model.Order) error {
	raw, err := json.Marshal(order)
	if err != nil {
		return err
	}
	return p.bus.Publish(ctx, bus.OrderChannel, raw)
}
