package coordination

import (
	"context"
	"fmt"
	"time"
)

// counterTTL guards against leaked slots when a worker dies between
// TryAcquire and Release. The counter key simply expires and resets to zero.
const counterTTL = 30 * time.Minute

// BoundedCounter admits at most Max concurrent holders of a named slot pool.
// Admission is increment-then-check: when the post-increment value exceeds the
// bound the slot is handed back immediately, so the count can briefly
// overshoot but admitted holders never exceed Max.
type BoundedCounter struct {
	store Store
	key   string
	max   int64
}

// NewBoundedCounter creates a counter named name admitting at most max holders.
func NewBoundedCounter(store Store, name string, max int64) *BoundedCounter {
	return &BoundedCounter{
		store: store,
		key:   fmt.Sprintf("counter:%s", name),
		max:   max,
	}
}

// TryAcquire attempts to take a slot. It returns false when the pool is full.
func (c *BoundedCounter) TryAcquire(ctx context.Context) (bool, error) {
	count, err := c.store.Incr(ctx, c.key)
	if err != nil {
		return false, fmt.Errorf("failed to increment counter %s: %w", c.key, err)
	}

	if count > c.max {
		if _, err := c.store.Decr(ctx, c.key); err != nil {
			return false, fmt.Errorf("failed to roll back counter %s: %w", c.key, err)
		}
		return false, nil
	}

	if count == 1 {
		// Best effort. A missing TTL only delays the leak recovery.
		_ = c.store.Expire(ctx, c.key, counterTTL)
	}

	return true, nil
}

// Release hands a slot back. The counter is clamped at zero so a double
// release cannot drive it negative and inflate capacity.
func (c *BoundedCounter) Release(ctx context.Context) error {
	count, err := c.store.Decr(ctx, c.key)
	if err != nil {
		return fmt.Errorf("failed to decrement counter %s: %w", c.key, err)
	}

	if count < 0 {
		if _, err := c.store.Incr(ctx, c.key); err != nil {
			return fmt.Errorf("failed to clamp counter %s: %w", c.key, err)
		}
	}

	return nil
}
