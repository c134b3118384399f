// Package store abstracts the key-value capabilities the presence tracker
// consumes, so the tracker can run against Redis in production and against
// an in-process map in tests and local development.
package store

import (
	"context"
	"time"
)

// KV is the slice of Redis the presence tracker needs: string keys with
// expiry, set keys, and pattern enumeration for the maintenance wipe.
type KV interface {
	// Get returns the value at key. ok is false when the key is absent
	// or expired.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Expire(ctx context.Context, key string, ttl time.Duration) error

	SAdd(ctx context.Context, key string, members ...string) error
	SRem(ctx context.Context, key string, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)
	SCard(ctx context.Context, key string) (int64, error)
	SIsMember(ctx context.Context, key, member string) (bool, error)

	// Keys enumerates keys matching a glob pattern. Used only by
	// maintenance operations, never on the request path.
	Keys(ctx context.Context, pattern string) ([]string, error)
}
