package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/driaug/plunk/internal/perr"
)

// Degrading wraps a primary Cache (typically RedisCache) with a MemoryCache
// fallback: any CacheError from the primary is logged and the call retried
// against the fallback, so a Redis outage degrades to single-process
// caching rather than failing the caller's path.
type Degrading struct {
	primary  Cache
	fallback *MemoryCache
	logger   *slog.Logger
}

// NewDegrading builds a Degrading cache. primary may be nil, in which case
// every call goes straight to the in-memory fallback.
func NewDegrading(primary Cache, logger *slog.Logger) *Degrading {
	if logger == nil {
		logger = slog.Default()
	}
	return &Degrading{primary: primary, fallback: NewMemoryCache(), logger: logger}
}

func (d *Degrading) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if d.primary == nil {
		return d.fallback.Get(ctx, key)
	}
	val, ok, err := d.primary.Get(ctx, key)
	if err != nil && perr.IsCache(err) {
		d.logger.Warn("cache get degraded to memory fallback", slog.String("key", key), slog.Any("error", err))
		return d.fallback.Get(ctx, key)
	}
	return val, ok, err
}

func (d *Degrading) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	// Always populate the fallback too, so a later primary outage still
	// serves recently-written values.
	_ = d.fallback.Set(ctx, key, value, ttl)

	if d.primary == nil {
		return nil
	}
	if err := d.primary.Set(ctx, key, value, ttl); err != nil && perr.IsCache(err) {
		d.logger.Warn("cache set degraded to memory fallback", slog.String("key", key), slog.Any("error", err))
		return nil
	} else if err != nil {
		return err
	}
	return nil
}

func (d *Degrading) Delete(ctx context.Context, key string) error {
	_ = d.fallback.Delete(ctx, key)
	if d.primary == nil {
		return nil
	}
	if err := d.primary.Delete(ctx, key); err != nil && !perr.IsCache(err) {
		return err
	}
	return nil
}

func (d *Degrading) DeleteByPrefix(ctx context.Context, prefix string) error {
	_ = d.fallback.DeleteByPrefix(ctx, prefix)
	if d.primary == nil {
		return nil
	}
	if err := d.primary.DeleteByPrefix(ctx, prefix); err != nil && !perr.IsCache(err) {
		return err
	}
	return nil
}
