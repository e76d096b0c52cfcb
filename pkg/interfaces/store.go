package interfaces

import (
	"context"
	"time"
)

// KeyValue is the TTL store contract consumed by the session and OTP
// managers. A key set with ttl=T becomes unreadable after T without
// explicit action; Set overwrites atomically. Implementations must be
// safe for concurrent callers, and a transient backend failure must
// surface as an error, never as a silent miss.
type KeyValue interface {
	// Set stores value under key with the given ttl, replacing any prior value.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// SetNX stores value only if key is currently absent. Returns true when
	// the claim succeeded.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// Get returns the live value for key. found is false for an absent or
	// expired key; err is reserved for backend failures.
	Get(ctx context.Context, key string) (value string, found bool, err error)

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Expire refreshes the ttl of key. Returns false when the key is absent.
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// CompareAndDelete deletes key only if its current value equals expected,
	// atomically with respect to concurrent callers. Returns true when this
	// caller performed the delete.
	CompareAndDelete(ctx context.Context, key, expected string) (bool, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error
}
