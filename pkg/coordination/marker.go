package coordination

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Marker de-duplicates jobs across workers. A job identity is hashed to a
// fixed-length key and claimed with a TTL; a second claim of the same identity
// within the TTL is rejected.
type Marker struct {
	store  Store
	prefix string
	ttl    time.Duration
}

// NewMarker creates a marker namespace with the given claim TTL.
func NewMarker(store Store, prefix string, ttl time.Duration) *Marker {
	return &Marker{store: store, prefix: prefix, ttl: ttl}
}

// Identity builds a stable job identity from its parts.
func Identity(parts ...string) string {
	sum := sha1.Sum([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

// Claim attempts to claim the job identity. It returns false when the same
// identity was already claimed within the TTL.
func (m *Marker) Claim(ctx context.Context, identity string) (bool, error) {
	key := fmt.Sprintf("marker:%s:%s", m.prefix, identity)

	claimed, err := m.store.SetNX(ctx, key, "1", m.ttl)
	if err != nil {
		return false, fmt.Errorf("failed to claim marker %s: %w", key, err)
	}
	return claimed, nil
}

// Clear releases a claim early, allowing the identity to be claimed again
// before the TTL expires.
func (m *Marker) Clear(ctx context.Context, identity string) error {
	key := fmt.Sprintf("marker:%s:%s", m.prefix, identity)
	if err := m.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("failed to clear marker %s: %w", key, err)
	}
	return nil
}
