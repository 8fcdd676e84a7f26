// Package coordination provides the cross-process primitives the worker fleet
// shares: a renewable exclusive lock, a bounded admission counter, and a job
// de-duplication marker. All of them are built on the Store contract so any
// key-value service with atomic set-if-absent-with-TTL and atomic
// increment/decrement can back them.
package coordination

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrUnavailable is returned when the coordination store cannot be reached.
	// Callers on best-effort paths degrade rather than propagate it.
	ErrUnavailable = errors.New("coordination store unavailable")

	// ErrLockNotAcquired is returned when a lock cannot be acquired.
	ErrLockNotAcquired = errors.New("lock not acquired")

	// ErrLockNotHeld is returned when extending or releasing a lock that is
	// no longer held.
	ErrLockNotHeld = errors.New("lock not held")
)

// Store is the coordination key-value contract.
type Store interface {
	// SetNX sets key to value with a TTL only if the key is absent.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// Get returns the value for key, or "" with found=false when absent.
	Get(ctx context.Context, key string) (value string, found bool, err error)

	// Delete removes a key.
	Delete(ctx context.Context, key string) error

	// CompareAndDelete deletes key only if it currently holds value.
	CompareAndDelete(ctx context.Context, key, value string) (bool, error)

	// CompareAndExpire re-arms the TTL on key only if it currently holds value.
	CompareAndExpire(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// Incr atomically increments key and returns the new value.
	Incr(ctx context.Context, key string) (int64, error)

	// Decr atomically decrements key and returns the new value.
	Decr(ctx context.Context, key string) (int64, error)

	// Expire sets a TTL on an existing key.
	Expire(ctx context.Context, key string, ttl time.Duration) error
}
