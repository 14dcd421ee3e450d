package quota

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	id "verifyd/pkg/domain"
	"verifyd/pkg/platform/sentinel"
)

// RedisStore keeps usage records in Redis hashes. HINCRBY makes the
// increment linearizable per identity without any client-side locking.
type RedisStore struct {
	client redis.Cmdable
}

func NewRedis(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client}
}

const (
	fieldUploadsUsed = "uploads_used"
	fieldSubscribed  = "subscribed"
	fieldCreatedAt   = "created_at"
)

func usageKey(identity id.Identity) string {
	return "verifyd:usage:" + identity.String()
}

func (s *RedisStore) Get(ctx context.Context, identity id.Identity) (*UsageRecord, error) {
	values, err := s.client.HGetAll(ctx, usageKey(identity)).Result()
	if err != nil {
		return nil, fmt.Errorf("get usage record: %w", err)
	}
	if len(values) == 0 {
		return nil, sentinel.ErrNotFound
	}
	return recordFromHash(identity, values), nil
}

func (s *RedisStore) Ensure(ctx context.Context, identity id.Identity) (*UsageRecord, error) {
	key := usageKey(identity)
	// HSETNX creates the hash without disturbing existing counters.
	if err := s.client.HSetNX(ctx, key, fieldUploadsUsed, 0).Err(); err != nil {
		return nil, fmt.Errorf("ensure usage record: %w", err)
	}
	if err := s.client.HSetNX(ctx, key, fieldCreatedAt, time.Now().UTC().Format(time.RFC3339)).Err(); err != nil {
		return nil, fmt.Errorf("ensure usage record: %w", err)
	}
	return s.Get(ctx, identity)
}

func (s *RedisStore) Increment(ctx context.Context, identity id.Identity) (*UsageRecord, error) {
	key := usageKey(identity)
	if err := s.client.HIncrBy(ctx, key, fieldUploadsUsed, 1).Err(); err != nil {
		return nil, fmt.Errorf("increment usage record: %w", err)
	}
	return s.Get(ctx, identity)
}

func (s *RedisStore) SetSubscribed(ctx context.Context, identity id.Identity) error {
	key := usageKey(identity)
	// A subscription may be the first thing we see for an identity, so
	// the record is seeded the same way Ensure seeds it.
	if err := s.client.HSetNX(ctx, key, fieldUploadsUsed, 0).Err(); err != nil {
		return fmt.Errorf("set subscribed: %w", err)
	}
	if err := s.client.HSetNX(ctx, key, fieldCreatedAt, time.Now().UTC().Format(time.RFC3339)).Err(); err != nil {
		return fmt.Errorf("set subscribed: %w", err)
	}
	if err := s.client.HSet(ctx, key, fieldSubscribed, 1).Err(); err != nil {
		return fmt.Errorf("set subscribed: %w", err)
	}
	return nil
}

func recordFromHash(identity id.Identity, values map[string]string) *UsageRecord {
	record := &UsageRecord{Identity: identity}
	if v, ok := values[fieldUploadsUsed]; ok {
		record.UploadsUsed, _ = strconv.Atoi(v)
	}
	record.Subscribed = values[fieldSubscribed] == "1"
	if v, ok := values[fieldCreatedAt]; ok {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			record.CreatedAt = t
		}
	}
	return record
}
