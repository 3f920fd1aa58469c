// Package cache provides the credential cache consumed by the token manager.
package cache

import (
	"context"
	"time"
)

// Store is a key/value store with per-entry TTL. Implementations must be
// total: a backend failure is reported as a miss or a no-op, never as an
// error, so a degraded backend can only cost an extra token request.
type Store interface {
	// Get returns the value for key. Expired entries read as absent.
	Get(ctx context.Context, key string) (string, bool)
	// Set stores value under key for ttl, overwriting any previous entry.
	Set(ctx context.Context, key, value string, ttl time.Duration)
	// Delete removes key. Deleting an absent key is a no-op.
	Delete(ctx context.Context, key string)
}
