package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"trade-routerv1/internal/model"
)

const (
	scheduledKeyPrefix  = "scheduled:"
	scheduleLockPrefix  = "scheduled:lock:"
	scheduledIndexKey   = "scheduled:index"
	scheduleLockTimeout = 10 * time.Second

	lockRetries    = 20
	lockRetryDelay = 250 * time.Millisecond
)

// releaseScript deletes the lock only while we still own it, so an expired
// lock taken over by another instance is never released from under them.
var releaseScript = goredis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// ScheduledOrderStore keeps one JSON schedule list per account plus the
// advisory lock that makes read-modify-write atomic across instances.
// Implements model.ScheduledOrderRepository.
type ScheduledOrderStore struct {
	client *goredis.Client
}

// NewScheduledOrderStore wraps an existing Redis connection.
func NewScheduledOrderStore(client *goredis.Client) *ScheduledOrderStore {
	return &ScheduledOrderStore{client: client}
}

// GetAll reads the schedule list without locking.
func (s *ScheduledOrderStore) GetAll(ctx context.Context, alias string) ([]*model.ScheduledOrder, error) {
	raw, err := s.client.Get(ctx, scheduledKeyPrefix+alias).Result()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis: read schedule %s: %w", alias, err)
	}
	var orders []*model.ScheduledOrder
	if err := json.Unmarshal([]byte(raw), &orders); err != nil {
		return nil, fmt.Errorf("redis: schedule %s: %w", alias, err)
	}
	return orders, nil
}

// Aliases lists every account that has (or had) a schedule.
func (s *ScheduledOrderStore) Aliases(ctx context.Context) ([]string, error) {
	aliases, err := s.client.SMembers(ctx, scheduledIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: read schedule index: %w", err)
	}
	return aliases, nil
}

// acquireLock takes the account's advisory lock. With wait=false a held lock
// fails immediately with ErrLockBusy; with wait=true the acquisition retries
// before giving up. Returns the lock token needed to release.
func (s *ScheduledOrderStore) acquireLock(ctx context.Context, alias string, wait bool) (string, error) {
	token := uuid.NewString()
	lockKey := scheduleLockPrefix + alias

	attempts := 1
	if wait {
		attempts = lockRetries
	}
	for i := 0; i < attempts; i++ {
		ok, err := s.client.SetNX(ctx, lockKey, token, scheduleLockTimeout).Result()
		if err != nil {
			return "", fmt.Errorf("redis: lock %s: %w", alias, err)
		}
		if ok {
			return token, nil
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(lockRetryDelay):
		}
	}
	return "", model.ErrLockBusy
}

func (s *ScheduledOrderStore) releaseLock(ctx context.Context, alias, token string) {
	// Best effort: an unreleased lock self-expires after the timeout.
	releaseScript.Run(ctx, s.client, []string{scheduleLockPrefix + alias}, token)
}

// ProcessUnderLock runs fn on the account's schedule while holding its lock
// and saves the list back when fn reports a modification.
func (s *ScheduledOrderStore) ProcessUnderLock(ctx context.Context, alias string, waitForLock bool, fn model.ScheduledOrderProcessor) error {
	token, err := s.acquireLock(ctx, alias, waitForLock)
	if err != nil {
		return err
	}
	defer s.releaseLock(ctx, alias, token)

	orders, err := s.GetAll(ctx, alias)
	if err != nil {
		return err
	}
	modified, err := fn(orders)
	if err != nil {
		return err
	}
	if !modified {
		return nil
	}
	return s.save(ctx, alias, orders)
}

// AddOrUpdate inserts or replaces a scheduled order under a blocking lock.
func (s *ScheduledOrderStore) AddOrUpdate(ctx context.Context, order *model.ScheduledOrder) error {
	token, err := s.acquireLock(ctx, order.AccountAlias, true)
	if err != nil {
		return err
	}
	defer s.releaseLock(ctx, order.AccountAlias, token)

	orders, err := s.GetAll(ctx, order.AccountAlias)
	if err != nil {
		return err
	}
	replaced := false
	for i := range orders {
		if orders[i].ID == order.ID {
			orders[i] = order
			replaced = true
			break
		}
	}
	if !replaced {
		orders = append(orders, order)
	}
	return s.save(ctx, order.AccountAlias, orders)
}

// Remove deletes a scheduled order by id under a blocking lock.
func (s *ScheduledOrderStore) Remove(ctx context.Context, alias string, id uuid.UUID) error {
	token, err := s.acquireLock(ctx, alias, true)
	if err != nil {
		return err
	}
	defer s.releaseLock(ctx, alias, token)

	orders, err := s.GetAll(ctx, alias)
	if err != nil {
		return err
	}
	kept := orders[:0]
	for _, o := range orders {
		if o.ID != id {
			kept = append(kept, o)
		}
	}
	if len(kept) == len(orders) {
		return nil
	}
	return s.save(ctx, alias, kept)
}

// save writes the list back and keeps the alias index in sync.
func (s *ScheduledOrderStore) save(ctx context.Context, alias string, orders []*model.ScheduledOrder) error {
	if len(orders) == 0 {
		pipe := s.client.TxPipeline()
		pipe.Del(ctx, scheduledKeyPrefix+alias)
		pipe.SRem(ctx, scheduledIndexKey, alias)
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("redis: clear schedule %s: %w", alias, err)
		}
		return nil
	}

	raw, err := json.Marshal(orders)
	if err != nil {
		return fmt.Errorf("redis: marshal schedule %s: %w", alias, err)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, scheduledKeyPrefix+alias, raw, 0)
	pipe.SAdd(ctx, scheduledIndexKey, alias)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: save schedule %s: %w", alias, err)
	}
	return nil
}
