package bus

import (
	"context"
	"testing"
	"time"
)

func recvOne(t *testing.T, sub Subscription) Message {
	t.Helper()
	select {
	case msg, ok := <-sub.Messages():
		if !ok {
			t.Fatal("subscription channel closed unexpectedly")
		}
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
	return Message{}
}

func TestMemoryBus_PublishReachesSubscriber(t *testing.T) {
	b := NewMemory()
	ctx := context.Background()

	sub, err := b.Subscribe(ctx, "signal")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	if err := b.Publish(ctx, "signal", []byte("hello")); err != nil {
		t.Fatalf("publish: %v", err)
	}

	msg := recvOne(t, sub)
	if msg.Channel != "signal" || string(msg.Payload) != "hello" {
		t.Errorf("got %q on %q, want hello on signal", msg.Payload, msg.Channel)
	}
}

func TestMemoryBus_NoDeliveryAcrossChannels(t *testing.T) {
	b := NewMemory()
	ctx := context.Background()

	subA, _ := b.Subscribe(ctx, ResponseChannel("a"))
	subB, _ := b.Subscribe(ctx, ResponseChannel("b"))
	defer subA.Close()
	defer subB.Close()

	b.Publish(ctx, ResponseChannel("a"), []byte("for-a"))

	if msg := recvOne(t, subA); string(msg.Payload) != "for-a" {
		t.Errorf("subscriber A got %q", msg.Payload)
	}
	select {
	case msg := <-subB.Messages():
		t.Errorf("subscriber B received %q, want nothing", msg.Payload)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemoryBus_PublishAfterCloseIsDropped(t *testing.T) {
	b := NewMemory()
	ctx := context.Background()

	sub, _ := b.Subscribe(ctx, "order")
	sub.Close()

	// Must not panic or deliver.
	if err := b.Publish(ctx, "order", []byte("late")); err != nil {
		t.Fatalf("publish after close: %v", err)
	}
	if _, ok := <-sub.Messages(); ok {
		t.Error("expected closed message channel")
	}
}

func TestMemoryBus_CloseIsIdempotent(t *testing.T) {
	b := NewMemory()
	sub, _ := b.Subscribe(context.Background(), "x")
	if err := sub.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := sub.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}
