package gate

import (
	"context"
	"time"
)

// KV is the durable key-value contract every stateful component depends on.
// Keys and values are opaque strings; individual operations are atomic at
// single-key granularity. Multi-step sequences (read a record, check it,
// write it back) deliberately do not take locks; races there are accepted,
// the only place that needs true compare-and-swap is SetNX.
type KV interface {
	// Get returns the value and whether the key exists.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set writes value under key with no expiry.
	Set(ctx context.Context, key, value string) error

	// SetTTL writes value under key, expiring after ttl.
	SetTTL(ctx context.Context, key, value string, ttl time.Duration) error

	// SetNX writes value only if key is absent, expiring after ttl when
	// ttl > 0. Returns true when the write happened. This is the single
	// conditional primitive mint paths rely on for uniqueness.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// Incr atomically increments the integer stored at key, creating it
	// at 1 when absent, and returns the new value.
	Incr(ctx context.Context, key string) (int64, error)

	// Del removes keys. Missing keys are not an error.
	Del(ctx context.Context, keys ...string) error

	// Exists reports whether key is present and unexpired.
	Exists(ctx context.Context, key string) (bool, error)

	// Expire resets the ttl of an existing key.
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// SAdd adds member to the named set.
	SAdd(ctx context.Context, set, member string) error

	// SRem removes member from the named set.
	SRem(ctx context.Context, set, member string) error

	// SMembers lists the members of the named set.
	SMembers(ctx context.Context, set string) ([]string, error)
}

// BatchKV is optionally implemented by stores that can group writes into a
// single round trip or transaction. Batching is an efficiency, never a
// correctness requirement: callers must behave identically without it.
type BatchKV interface {
	Batch(ctx context.Context, fn func(kv KV) error) error
}
