// Package redis implements the router's Redis-backed stores: the account
// snapshot cache the composition pipeline reads, and the per-account
// scheduled-order lists with their advisory locks.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"trade-routerv1/internal/model"
)

const (
	accountKeyPrefix  = "account:"
	depositKeyPrefix  = "deposit:"
	positionKeyPrefix = "position:"
	accountIndexKey   = "account:index"
)

// Config configures the Redis store connection.
type Config struct {
	Addr     string // e.g. "localhost:6379"
	Password string
	DB       int
}

// AccountStore reads and writes account snapshots. The gateway is the only
// writer; the composition pipeline and scheduler only read. Writes go
// through a circuit breaker so a flapping Redis degrades to stale snapshots
// instead of hammering a dead connection.
type AccountStore struct {
	client  *goredis.Client
	breaker *Breaker
}

// NewAccountStore dials Redis and pings it.
func NewAccountStore(cfg Config) (*AccountStore, error) {
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

	log.Printf("[store] connected to redis at %s", cfg.Addr)
	return NewAccountStoreWithClient(client), nil
}

// NewAccountStoreWithClient wraps an existing connection, typically the one
// the bus already holds.
func NewAccountStoreWithClient(client *goredis.Client) *AccountStore {
	return &AccountStore{
		client:  client,
		breaker: NewBreaker(5, 10*time.Second),
	}
}

// Client returns the underlying Redis client for health checks.
func (s *AccountStore) Client() *goredis.Client { return s.client }

// GetAccount rebuilds the account snapshot from its three hashes.
// Returns (nil, nil) when the alias is unknown.
func (s *AccountStore) GetAccount(ctx context.Context, alias string) (*model.Account, error) {
	fields, err := s.client.HGetAll(ctx, accountKeyPrefix+alias).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: read account %s: %w", alias, err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	account := &model.Account{
		Alias:    alias,
		Number:   fields["number"],
		Broker:   fields["broker"],
		Active:   fields["active"] == "1",
		Deposits: make(map[model.Currency]float64),
	}

	deposits, err := s.client.HGetAll(ctx, depositKeyPrefix+alias).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: read deposits %s: %w", alias, err)
	}
	for currency, raw := range deposits {
		amount, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("redis: deposit %s/%s: %w", alias, currency, err)
		}
		account.Deposits[model.Currency(currency)] = amount
	}

	positions, err := s.client.HGetAll(ctx, positionKeyPrefix+alias).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: read positions %s: %w", alias, err)
	}
	for ticker, raw := range positions {
		var pos model.Position
		if err := json.Unmarshal([]byte(raw), &pos); err != nil {
			return nil, fmt.Errorf("redis: position %s/%s: %w", alias, ticker, err)
		}
		account.Positions = append(account.Positions, pos)
	}
	return account, nil
}

// SaveAccount replaces the alias's snapshot atomically via a pipeline.
func (s *AccountStore) SaveAccount(ctx context.Context, account *model.Account) error {
	return s.breaker.Do(func() error {
		pipe := s.client.TxPipeline()

		active := "0"
		if account.Active {
			active = "1"
		}
		pipe.HSet(ctx, accountKeyPrefix+account.Alias,
			"number", account.Number,
			"broker", account.Broker,
			"active", active,
		)

		pipe.Del(ctx, depositKeyPrefix+account.Alias)
		for currency, amount := range account.Deposits {
			pipe.HSet(ctx, depositKeyPrefix+account.Alias,
				string(currency), strconv.FormatFloat(amount, 'f', -1, 64))
		}

		pipe.Del(ctx, positionKeyPrefix+account.Alias)
		for i := range account.Positions {
			raw, err := json.Marshal(&account.Positions[i])
			if err != nil {
				return fmt.Errorf("redis: marshal position: %w", err)
			}
			pipe.HSet(ctx, positionKeyPrefix+account.Alias, account.Positions[i].Ticker, string(raw))
		}

		pipe.SAdd(ctx, accountIndexKey, account.Alias)

		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("redis: save account %s: %w", account.Alias, err)
		}
		return nil
	})
}

// Aliases lists every account known to the store.
func (s *AccountStore) Aliases(ctx context.Context) ([]string, error) {
	aliases, err := s.client.SMembers(ctx, accountIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: read account index: %w", err)
	}
	return aliases, nil
}

// BreakerState exposes the write breaker's state for health reporting.
func (s *AccountStore) BreakerState() BreakerState {
	return s.breaker.State()
}
