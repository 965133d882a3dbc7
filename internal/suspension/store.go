// Package suspension provides a Redis-backed cache of suspended users so the
// chat layer can reject traffic from suspended accounts without touching the
// durable store. Records are simple key-value pairs:
//
//	Key:   suspended:<user_id>
//	Value: <reason>
//
// Keys carry no TTL: suspension is a one-way gate that only an administrative
// Clear removes. The moderation_status row in PostgreSQL stays authoritative;
// this cache is best-effort.
package suspension

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// KeyPrefix is the Redis key prefix for suspension records.
const KeyPrefix = "suspended:"

// Store manages suspension records in Redis.
type Store struct {
	client *redis.Client
}

// NewStore creates a suspension store using the provided Redis client.
func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

// Suspend marks a user as suspended with the given reason. No expiry is set.
func (s *Store) Suspend(ctx context.Context, userID, reason string) error {
	return s.client.Set(ctx, KeyPrefix+userID, reason, 0).Err()
}

// IsSuspended checks whether a user is currently suspended.
// Returns (isSuspended, reason, error). Redis errors are returned so callers
// can decide policy; the chat layer falls back to the durable store.
func (s *Store) IsSuspended(ctx context.Context, userID string) (bool, string, error) {
	reason, err := s.client.Get(ctx, KeyPrefix+userID).Result()
	if errors.Is(err, redis.Nil) {
		return false, "", nil
	}
	if err != nil {
		return false, "", err
	}
	return true, reason, nil
}

// Clear removes a user's suspension record. Admin tooling calls this when a
// human lifts the suspension.
func (s *Store) Clear(ctx context.Context, userID string) error {
	return s.client.Del(ctx, KeyPrefix+userID).Err()
}
