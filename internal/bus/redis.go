package bus

import (
	"context"
	"fmt"
	"log"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

// RedisConfig configures the Redis-backed bus.
type RedisConfig struct {
	Addr     string // e.g. "localhost:6379"
	Password string
	DB       int
}

// RedisBus carries messages over Redis pub/sub. One instance is shared per
// process; each Subscribe call owns its own PubSub connection.
type RedisBus struct {
	client *goredis.Client
}

// NewRedis connects and pings the server.
func NewRedis(cfg RedisConfig) (*RedisBus, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[bus] connected to redis at %s", cfg.Addr)
	return &RedisBus{client: client}, nil
}

// Client exposes the underlying client for repositories sharing the
// connection pool and for health checks.
func (b *RedisBus) Client() *goredis.Client { return b.client }

// Publish sends payload on channel.
func (b *RedisBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := b.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe opens a PubSub subscription and waits for the server's
// confirmation before returning, so a publish issued after Subscribe cannot
// outrun the subscriber.
func (b *RedisBus) Subscribe(ctx context.Context, channels ...string) (Subscription, error) {
	pubsub := b.client.Subscribe(ctx, channels...)

	// Receive blocks until the SUBSCRIBE ack arrives.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("redis subscribe %v: %w", channels, err)
	}

	sub := &redisSubscription{pubsub: pubsub, out: make(chan Message, 64)}
	go sub.pump(ctx)
	return sub, nil
}

// Close releases the Redis connection.
func (b *RedisBus) Close() error {
	return b.client.Close()
}

type redisSubscription struct {
	pubsub *goredis.PubSub
	out    chan Message
}

func (s *redisSubscription) Messages() <-chan Message { return s.out }

func (s *redisSubscription) Close() error {
	return s.pubsub.Close()
}

// pump adapts the PubSub channel to Message deliveries. Exits when the
// subscription closes or ctx is cancelled.
func (s *redisSubscription) pump(ctx context.Context) {
	defer close(s.out)
	ch := s.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			s.pubsub.Close()
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			select {
			case s.out <- Message{Channel: msg.Channel, Payload: []byte(msg.Payload)}:
			case <-ctx.Done():
				s.pubsub.Close()
				return
			}
		}
	}
}
