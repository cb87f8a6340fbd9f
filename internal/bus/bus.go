// Package bus abstracts the fire-and-forget pub/sub fabric every service
// communicates over. The Redis implementation is the production transport;
// the in-memory implementation backs tests and single-process paper setups.
package bus

import "context"

// Well-known channel names. Response channels are derived per call from the
// request's correlation id; see ResponseChannel.
const (
	SignalChannel        = "signal"
	OrderChannel         = "order"
	BrokerRequestChannel = "broker:requests"
	ExecutionChannel     = "execution"
	NotificationChannel  = "notifications:system"

	responseChannelPrefix = "broker:response:"
)

// ResponseChannel derives the private reply channel for a correlation id.
// Deterministic, so no registry of pending calls is needed.
func ResponseChannel(correlationID string) string {
	return responseChannelPrefix + correlationID
}

// Message is a single payload delivered on a channel.
type Message struct {
	Channel string
	Payload []byte
}

// Subscription is an active channel subscription owned by exactly one caller,
// who must Close it on every exit path.
type Subscription interface {
	// Messages yields deliveries until Close or connection loss.
	Messages() <-chan Message

	// Close tears the subscription down. Safe to call more than once.
	Close() error
}

// Bus is a process-wide shared pub/sub handle, safe for concurrent publishes
// and many concurrent subscribes.
type Bus interface {
	// Publish sends payload to every current subscriber of channel.
	// Fire-and-forget: no delivery guarantee once it returns.
	Publish(ctx context.Context, channel string, payload []byte) error

	// Subscribe opens a subscription on the given channels. The subscription
	// is established before Subscribe returns, so a publish issued afterwards
	// cannot race ahead of the subscriber.
	Subscribe(ctx context.Context, channels ...string) (Subscription, error)
}
