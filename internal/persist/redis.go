package persist

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// keyNamespace prefixes every key this service writes to Redis.
const keyNamespace = "testerbox:"

type cmdable interface {
	Ping(context.Context) *redis.StatusCmd
	Get(context.Context, string) *redis.StringCmd
	Set(context.Context, string, any, time.Duration) *redis.StatusCmd
	Del(context.Context, ...string) *redis.IntCmd
}

// Redis is a Store backed by a Redis server.
type Redis struct {
	store cmdable
	raw   *redis.Client
	ttl   time.Duration
	// keep lists key names written without expiry, matched on the last
	// ':'-separated segment so scoped keys are covered.
	keep []string
}

// RedisConfig holds connection settings.
type RedisConfig struct {
	URL string        // redis://[:password@]host:port/db
	TTL time.Duration // expiry applied on writes; 0 keeps keys forever

	// Persistent names keys that never expire regardless of TTL.
	Persistent []string
}

// NewRedis connects and verifies the server is reachable.
func NewRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis url is required")
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}

	raw := redis.NewClient(opts)
	if err := raw.Ping(ctx).Err(); err != nil {
		raw.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Redis{store: raw, raw: raw, ttl: cfg.TTL, keep: cfg.Persistent}, nil
}

// expiry returns the lifetime for key.
func (r *Redis) expiry(key string) time.Duration {
	name := key
	if i := strings.LastIndexByte(key, ':'); i >= 0 {
		name = key[i+1:]
	}
	if slices.Contains(r.keep, name) {
		return 0
	}
	return r.ttl
}

func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.store.Get(ctx, keyNamespace+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return v, true, nil
}

func (r *Redis) Set(ctx context.Context, key, value string) error {
	if err := r.store.Set(ctx, keyNamespace+key, value, r.expiry(key)).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (r *Redis) Clear(ctx context.Context, key string) error {
	if err := r.store.Del(ctx, keyNamespace+key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

// Ping checks connectivity for health reporting.
func (r *Redis) Ping(ctx context.Context) error {
	return r.store.Ping(ctx).Err()
}

// Close releases the connection pool.
func (r *Redis) Close() error {
	if r.raw == nil {
		return nil
	}
	return r.raw.Close()
}
