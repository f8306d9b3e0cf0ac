package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// DedupStore implements ports.ConfirmationDedup using Redis SET NX.
// Webhook replays hit an existing key and are dropped by the caller.
type DedupStore struct {
	client *goredis.Client
	prefix string
}

// NewDedupStore creates a new Redis-backed confirmation dedup store.
func NewDedupStore(client *goredis.Client) *DedupStore {
	return &DedupStore{
		client: client,
		prefix: "confirm:",
	}
}

// CheckAndSet atomically records the confirmation key.
// Returns true if the key is new (first delivery), false if already seen.
func (s *DedupStore) CheckAndSet(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	result, err := s.client.SetArgs(ctx, s.prefix+key, 1, goredis.SetArgs{
		Mode: "NX",
		TTL:  ttl,
	}).Result()
	if err != nil {
		if err == goredis.Nil {
			// Key already exists, confirmation was already processed
			return false, nil
		}
		return false, fmt.Errorf("redis confirmation check: %w", err)
	}
	return result == "OK", nil
}

// Delete removes a confirmation key so the provider's retry of a failed
// delivery is processed instead of dropped.
func (s *DedupStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis confirmation delete: %w", err)
	}
	return nil
}
