package coordination

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
)

// Locker hands out distributed locks backed by a Store.
type Locker struct {
	store  Store
	logger ectologger.Logger
}

// NewLocker creates a lock factory on top of the given store.
func NewLocker(store Store, logger ectologger.Logger) *Locker {
	return &Locker{store: store, logger: logger}
}

// Lock is a renewable exclusive lock. The value is a random token so only the
// holder can release or extend it.
type Lock struct {
	store  Store
	logger ectologger.Logger
	key    string
	value  string
	ttl    time.Duration
}

// Acquire attempts to take the named lock. It returns ErrLockNotAcquired when
// another holder owns it.
func (l *Locker) Acquire(ctx context.Context, name string, ttl time.Duration) (*Lock, error) {
	key := fmt.Sprintf("lock:%s", name)
	value := uuid.New().String()

	acquired, err := l.store.SetNX(ctx, key, value, ttl)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", name, err)
	}
	if !acquired {
		return nil, ErrLockNotAcquired
	}

	l.logger.WithContext(ctx).WithFields(map[string]interface{}{
		"lock": name,
		"ttl":  ttl.String(),
	}).Debug("acquired lock")

	return &Lock{
		store:  l.store,
		logger: l.logger,
		key:    key,
		value:  value,
		ttl:    ttl,
	}, nil
}

// Release frees the lock if this instance still holds it.
func (lk *Lock) Release(ctx context.Context) error {
	released, err := lk.store.CompareAndDelete(ctx, lk.key, lk.value)
	if err != nil {
		return fmt.Errorf("failed to release lock %s: %w", lk.key, err)
	}
	if !released {
		return ErrLockNotHeld
	}
	return nil
}

// Extend re-arms the TTL if this instance still holds the lock.
func (lk *Lock) Extend(ctx context.Context) error {
	extended, err := lk.store.CompareAndExpire(ctx, lk.key, lk.value, lk.ttl)
	if err != nil {
		return fmt.Errorf("failed to extend lock %s: %w", lk.key, err)
	}
	if !extended {
		return ErrLockNotHeld
	}
	return nil
}

// KeepAlive extends the lock every ttl/2 until ctx is cancelled. The returned
// channel is closed when an extension fails, signalling that exclusivity can
// no longer be assumed and in-flight work must stop mutating shared state.
func (lk *Lock) KeepAlive(ctx context.Context) <-chan struct{} {
	lost := make(chan struct{})

	go func() {
		ticker := time.NewTicker(lk.ttl / 2)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := lk.Extend(ctx); err != nil {
					if ctx.Err() != nil {
						return
					}
					lk.logger.WithContext(ctx).WithError(err).
						WithField("lock", lk.key).
						Warn("lost lock, signalling holder")
					close(lost)
					return
				}
			}
		}
	}()

	return lost
}
