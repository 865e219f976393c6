package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Payphone-Digital/auth-service/pkg/redis"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

// Remote is the distributed tier. *redis.Client satisfies it.
type Remote interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	DeleteByPrefix(ctx context.Context, prefix string) (int, error)
}

type entry struct {
	data     []byte
	expireAt time.Time
}

// Cache is a two-tier cache-aside store: an in-process LRU in front of an
// optional Remote. Values are JSON encoded in both tiers.
type Cache struct {
	local  *lru.Cache[string, entry]
	remote Remote
	log    *zap.Logger

	hits   atomic.Int64
	misses atomic.Int64
}

type Option func(*Cache)

func WithRemote(r Remote) Option {
	return func(c *Cache) { c.remote = r }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.log = l
		}
	}
}

func New(size int, opts ...Option) (*Cache, error) {
	if size <= 0 {
		size = 1024
	}
	local, err := lru.New[string, entry](size)
	if err != nil {
		return nil, err
	}
	c := &Cache{local: local, log: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// GetOrCompute returns the cached value for key, or computes it with fn and
// stores it in both tiers for ttl. A nil cache always calls fn. Remote
// failures are logged and treated as misses.
func GetOrCompute[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if c == nil {
		return fn(ctx)
	}

	var out T
	if data, ok := c.lookup(ctx, key, ttl); ok {
		if err := json.Unmarshal(data, &out); err == nil {
			c.hits.Add(1)
			return out, nil
		}
		c.log.Warn("discarding undecodable cache entry", zap.String("key", key))
		c.local.Remove(key)
	}
	c.misses.Add(1)

	value, err := fn(ctx)
	if err != nil {
		return value, err
	}

	data, err := json.Marshal(value)
	if err != nil {
		c.log.Warn("value not cacheable", zap.String("key", key), zap.Error(err))
		return value, nil
	}
	c.store(ctx, key, data, ttl)

	return value, nil
}

func (c *Cache) lookup(ctx context.Context, key string, ttl time.Duration) ([]byte, bool) {
	if e, ok := c.local.Get(key); ok {
		if time.Now().Before(e.expireAt) {
			return e.data, true
		}
		c.local.Remove(key)
	}

	if c.remote == nil {
		return nil, false
	}
	data, err := c.remote.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, redis.ErrMiss) {
			c.log.Warn("remote cache read failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	c.local.Add(key, entry{data: data, expireAt: time.Now().Add(ttl)})
	return data, true
}

func (c *Cache) store(ctx context.Context, key string, data []byte, ttl time.Duration) {
	c.local.Add(key, entry{data: data, expireAt: time.Now().Add(ttl)})
	if c.remote == nil {
		return
	}
	if err := c.remote.Set(ctx, key, data, ttl); err != nil {
		c.log.Warn("remote cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// Invalidate removes keys from both tiers. Remote errors are logged only.
func (c *Cache) Invalidate(ctx context.Context, keys ...string) {
	if c == nil || len(keys) == 0 {
		return
	}
	for _, key := range keys {
		c.local.Remove(key)
	}
	if c.remote == nil {
		return
	}
	if err := c.remote.Delete(ctx, keys...); err != nil {
		c.log.Warn("remote cache invalidation failed", zap.Strings("keys", keys), zap.Error(err))
	}
}

// InvalidatePattern removes every key beginning with prefix.
func (c *Cache) InvalidatePattern(ctx context.Context, prefix string) {
	if c == nil {
		return
	}
	for _, key := range c.local.Keys() {
		if strings.HasPrefix(key, prefix) {
			c.local.Remove(key)
		}
	}
	if c.remote == nil {
		return
	}
	if _, err := c.remote.DeleteByPrefix(ctx, prefix); err != nil {
		c.log.Warn("remote cache pattern invalidation failed", zap.String("prefix", prefix), zap.Error(err))
	}
}

type Stats struct {
	Entries int   `json:"entries"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Remote  bool  `json:"remote"`
}

func (c *Cache) Stats() Stats {
	return Stats{
		Entries: c.local.Len(),
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Remote:  c.remote != nil,
	}
}
