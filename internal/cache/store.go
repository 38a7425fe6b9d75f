package cache

import (
	"context"
	"time"
)

// Store is the fast key-value store backing idempotency markers, rate-limit
// counters, and the user cache. Operations must be atomic at the store level;
// the admission controller layers its fail-open/fail-closed policy on top.
type Store interface {
	// Exists reports whether the key is present and unexpired.
	Exists(ctx context.Context, key string) (bool, error)

	// SetFlag writes a presence marker with the given TTL.
	SetFlag(ctx context.Context, key string, ttl time.Duration) error

	// GetJSON unmarshals the value at key into dest.
	// Returns found=false (no error) on a missing or expired key.
	GetJSON(ctx context.Context, key string, dest any) (bool, error)

	// SetJSON marshals v and stores it with the given TTL.
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error

	// Incr atomically increments the integer at key and returns the new value.
	// On the first increment of a window the key's expiry is set to ttl,
	// resetting the counter implicitly when the window elapses.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// IdempotencyKey is the marker key for a client-supplied request id.
func IdempotencyKey(requestID string) string {
	return "idempotency:" + requestID
}

// RateLimitKey is the per-user sliding-window counter key.
func RateLimitKey(userID string) string {
	return "rate_limit:user:" + userID
}

// UserKey is the cached recipient-info key for a user.
func UserKey(userID string) string {
	return "user:" + userID
}
