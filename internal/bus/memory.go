package bus

import (
	"context"
	"sync"
)

// MemoryBus is an in-process Bus for tests and single-binary paper trading.
// Semantics mirror Redis pub/sub: no history, no durability; a message
// published with no subscriber is gone.
type MemoryBus struct {
	mu   sync.RWMutex
	subs map[string]map[*memorySubscription]struct{} // channel -> subscribers
}

// NewMemory creates an empty in-memory bus.
func NewMemory() *MemoryBus {
	return &MemoryBus{subs: make(map[string]map[*memorySubscription]struct{})}
}

// Close is a no-op; the in-memory bus holds no external resources.
func (b *MemoryBus) Close() error { return nil }

// Publish delivers payload to every subscriber of channel. A subscriber
// whose buffer is full drops the message, matching the lossy transport.
func (b *MemoryBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subs[channel] {
		select {
		case sub.out <- Message{Channel: channel, Payload: payload}:
		default: // slow subscriber, drop
		}
	}
	return nil
}

// Subscribe registers a subscription on the given channels. Registration is
// complete when Subscribe returns.
func (b *MemoryBus) Subscribe(_ context.Context, channels ...string) (Subscription, error) {
	sub := &memorySubscription{
		bus:      b,
		channels: channels,
		out:      make(chan Message, 64),
	}
	b.mu.Lock()
	for _, ch := range channels {
		if b.subs[ch] == nil {
			b.subs[ch] = make(map[*memorySubscription]struct{})
		}
		b.subs[ch][sub] = struct{}{}
	}
	b.mu.Unlock()
	return sub, nil
}

type memorySubscription struct {
	bus      *MemoryBus
	channels []string
	out      chan Message

	closeOnce sync.Once
}

func (s *memorySubscription) Messages() <-chan Message { return s.out }

func (s *memorySubscription) Close() error {
	s.closeOnce.Do(func() {
		s.bus.mu.Lock()
		for _, ch := range s.channels {
			delete(s.bus.subs[ch], s)
			if len(s.bus.subs[ch]) == 0 {
				delete(s.bus.subs, ch)
			}
		}
		s.bus.mu.Unlock()
		close(s.out)
	})
	return nil
}
