package pagecache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dalemusser/stratapage/internal/domain/models"
	"github.com/go-redis/redis/v8"
)

const (
	// KeyPrefix namespaces page entries in Redis.
	KeyPrefix = "stratapage:page:"
	// VersionPrefix namespaces the per-slug invalidation counters.
	VersionPrefix = "stratapage:pagever:"
)

// RedisConfig configures the Redis cache.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// Redis is a Cache backed by Redis. Pages are stored as JSON.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

var _ Cache = (*Redis)(nil)

// NewRedis connects to Redis and verifies the connection.
func NewRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Addr, err)
	}
	return &Redis{client: client, ttl: cfg.TTL}, nil
}

func key(slug string) string {
	return KeyPrefix + slug
}

func versionKey(slug string) string {
	return VersionPrefix + slug
}

func (r *Redis) Get(ctx context.Context, slug string) (models.Page, bool, error) {
	b, err := r.client.Get(ctx, key(slug)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.Page{}, false, nil
	}
	if err != nil {
		return models.Page{}, false, fmt.Errorf("redis get %s: %w", slug, err)
	}

	var p models.Page
	if err := json.Unmarshal(b, &p); err != nil {
		// A corrupt entry is a miss; drop it so the next Set replaces it.
		_ = r.client.Del(ctx, key(slug)).Err()
		return models.Page{}, false, nil
	}
	return p, true, nil
}

func (r *Redis) Set(ctx context.Context, page models.Page) error {
	b, err := json.Marshal(page)
	if err != nil {
		return fmt.Errorf("encode page %s: %w", page.Slug, err)
	}
	if err := r.client.Set(ctx, key(page.Slug), b, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", page.Slug, err)
	}
	return nil
}

func (r *Redis) Version(ctx context.Context, slug string) (uint64, error) {
	v, err := r.client.Get(ctx, versionKey(slug)).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get version %s: %w", slug, err)
	}
	return v, nil
}

// SetAt watches the slug's version key so a Delete that lands between the
// check and the write aborts the transaction.
func (r *Redis) SetAt(ctx context.Context, page models.Page, version uint64) (bool, error) {
	b, err := json.Marshal(page)
	if err != nil {
		return false, fmt.Errorf("encode page %s: %w", page.Slug, err)
	}

	stored := false
	vkey := versionKey(page.Slug)
	err = r.client.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, vkey).Uint64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if cur != version {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key(page.Slug), b, r.ttl)
			return nil
		})
		if err == nil {
			stored = true
		}
		return err
	}, vkey)
	if errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis set %s: %w", page.Slug, err)
	}
	return stored, nil
}

// Delete removes the page keys and advances their versions in one
// transaction.
func (r *Redis) Delete(ctx context.Context, slugs ...string) error {
	if len(slugs) == 0 {
		return nil
	}
	keys := make([]string, len(slugs))
	for i, s := range slugs {
		keys[i] = key(s)
	}
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, keys...)
		for _, s := range slugs {
			pipe.Incr(ctx, versionKey(s))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}
