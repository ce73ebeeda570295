package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/turtacn/ClinTerm-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ClinTerm-Intelligence/pkg/errors"
)

var (
	ErrCacheMiss           = errors.New(errors.ErrCodeNotFound, "cache miss")
	ErrSerializationFailed = errors.New(errors.ErrCodeSerialization, "serialization failed")
)

// nullMarker is stored for keys whose loader found nothing.
const nullMarker = "__null__"

// Cache is a JSON value cache with negative entries.
type Cache interface {
	// Get decodes the value at key into dest. Both an absent key and a
	// negative entry return ErrCacheMiss; IsNegative tells them apart.
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	// SetNegative records that key has no value for ttl.
	SetNegative(ctx context.Context, key string, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	// GetOrSet serves key from the cache or calls loader once per key across
	// concurrent callers. A nil loader result is stored as a negative entry.
	// hit is true only when the value (or negative entry) was read from Redis;
	// callers that waited on another caller's load report a miss.
	GetOrSet(ctx context.Context, key string, dest interface{}, ttl time.Duration, loader func(ctx context.Context) (interface{}, error)) (hit bool, err error)
	Ping(ctx context.Context) error
}

// negativeHit is returned by Get for a negative entry. It matches
// ErrCacheMiss under errors.Is.
var negativeHit = errors.Wrap(ErrCacheMiss, errors.ErrCodeNotFound, "negative cache entry")

// IsNegative reports whether err came from a negative entry.
func IsNegative(err error) bool {
	return err == negativeHit
}

// IsMiss reports whether err means the key has no usable value.
func IsMiss(err error) bool {
	return err == ErrCacheMiss || err == negativeHit
}

type redisCache struct {
	client       *Client
	logger       logging.Logger
	prefix       string
	defaultTTL   time.Duration
	nullCacheTTL time.Duration
	jitter       float64
	singleflight singleflight.Group
}

type CacheOption func(*redisCache)

func WithPrefix(prefix string) CacheOption {
	return func(c *redisCache) { c.prefix = prefix }
}

func WithDefaultTTL(ttl time.Duration) CacheOption {
	return func(c *redisCache) { c.defaultTTL = ttl }
}

func WithNullCacheTTL(ttl time.Duration) CacheOption {
	return func(c *redisCache) { c.nullCacheTTL = ttl }
}

// WithJitter spreads TTLs by ±fraction. Zero disables it.
func WithJitter(fraction float64) CacheOption {
	return func(c *redisCache) { c.jitter = fraction }
}

func NewRedisCache(client *Client, log logging.Logger, opts ...CacheOption) Cache {
	if log == nil {
		log = logging.NewNopLogger()
	}
	c := &redisCache{
		client:       client,
		logger:       log.Named("cache"),
		prefix:       "clinterm:",
		defaultTTL:   24 * time.Hour,
		nullCacheTTL: 10 * time.Minute,
		jitter:       0.1,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *redisCache) fullKey(key string) string {
	return c.prefix + key
}

func (c *redisCache) jitterTTL(ttl time.Duration) time.Duration {
	if ttl == 0 || c.jitter == 0 {
		return ttl
	}
	delta := float64(ttl) * c.jitter * (rand.Float64()*2 - 1)
	return ttl + time.Duration(delta)
}

func (c *redisCache) Get(ctx context.Context, key string, dest interface{}) error {
	data, err := c.client.Get(ctx, c.fullKey(key)).Bytes()
	if err == redis.Nil {
		return ErrCacheMiss
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "failed to get from cache")
	}
	if string(data) == nullMarker {
		return negativeHit
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode cached value")
	}
	return nil
}

func (c *redisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.defaultTTL
	}
	data, err := json.Marshal(value)
	if err != nil {
		return ErrSerializationFailed
	}
	if err := c.client.Set(ctx, c.fullKey(key), data, c.jitterTTL(ttl)).Err(); err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "failed to write cache")
	}
	return nil
}

func (c *redisCache) SetNegative(ctx context.Context, key string, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.nullCacheTTL
	}
	if err := c.client.Set(ctx, c.fullKey(key), nullMarker, c.jitterTTL(ttl)).Err(); err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "failed to write negative cache entry")
	}
	return nil
}

func (c *redisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	fullKeys := make([]string, len(keys))
	for i, k := range keys {
		fullKeys[i] = c.fullKey(k)
	}
	return c.client.Del(ctx, fullKeys...).Err()
}

func (c *redisCache) GetOrSet(ctx context.Context, key string, dest interface{}, ttl time.Duration, loader func(ctx context.Context) (interface{}, error)) (bool, error) {
	err := c.Get(ctx, key, dest)
	if err == nil || IsNegative(err) {
		return true, err
	}
	if err != ErrCacheMiss {
		c.logger.Warn("cache read failed", logging.String("key", key), logging.Err(err))
	}

	load := func(ctx context.Context) (interface{}, error) {
		v, loadErr := loader(ctx)
		if loadErr != nil {
			return nil, loadErr
		}
		if v == nil {
			if setErr := c.SetNegative(ctx, key, 0); setErr != nil {
				c.logger.Warn("failed to store negative entry", logging.String("key", key), logging.Err(setErr))
			}
			return nil, nil
		}
		data, marshalErr := json.Marshal(v)
		if marshalErr != nil {
			return nil, ErrSerializationFailed
		}
		if setErr := c.Set(ctx, key, json.RawMessage(data), ttl); setErr != nil {
			c.logger.Warn("failed to populate cache", logging.String("key", key), logging.Err(setErr))
		}
		return data, nil
	}

	// The shared load runs under the first caller's context. Each caller
	// waits under its own, and reloads when only the first caller's deadline
	// was hit.
	ch := c.singleflight.DoChan(key, func() (interface{}, error) { return load(ctx) })
	var res singleflight.Result
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil && res.Shared && isContextError(res.Err) && ctx.Err() == nil {
		res.Val, res.Err = load(ctx)
	}
	if res.Err != nil {
		return false, res.Err
	}
	if res.Val == nil {
		return false, negativeHit
	}
	return false, json.Unmarshal(res.Val.([]byte), dest)
}

func isContextError(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}

func (c *redisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx)
}
