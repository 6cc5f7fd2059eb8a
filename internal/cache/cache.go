// Package cache provides the read-through cache collaborator used by
// internal/eventrouter (enabled-workflow lookups) and internal/activity
// (stats). A cache miss or write failure (CacheError) must never fail
// the caller's path — implementations degrade to the direct store query;
// callers are expected to do the degrading, this package only reports
// the failure distinctly from a legitimate miss.
package cache

import (
	"context"
	"time"
)

// Cache is the narrow interface workflow/activity caching needs: get/set
// with a TTL, delete one key, and delete-by-prefix for invalidation sweeps
// (e.g. "activity:stats:{projectId}:*").
type Cache interface {
	// Get returns the cached value and true, or nil/false on a clean miss.
	// A backend failure returns a non-nil error (CacheError); callers
	// treat that the same as a miss but may choose to log it.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	DeleteByPrefix(ctx context.Context, prefix string) error
}
