package cache

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/memophor/scedge/internal/apperr"
	"github.com/memophor/scedge/internal/model"
)

// scanBatchSize is the COUNT hint passed to SCAN.
const scanBatchSize = 100

// RedisBackend is the production storage backend. Records live under
// namespaced physical keys with a native TTL, so Redis evicts expired
// entries eagerly; Get still re-checks expiry for clock-skewed records.
type RedisBackend struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisBackend connects using a redis:// URL.
func NewRedisBackend(url string) (*RedisBackend, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, apperr.Internalf("parse redis url: %w", err)
	}
	opts.PoolSize = 10
	opts.MinIdleConns = 2
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	return NewRedisBackendFromClient(redis.NewClient(opts)), nil
}

// NewRedisBackendFromClient wraps an existing client. Tests inject mocks
// through this constructor.
func NewRedisBackendFromClient(client *redis.Client) *RedisBackend {
	return &RedisBackend{client: client, now: time.Now}
}

func physicalKey(key string) string { return keyPrefix + key }

func (b *RedisBackend) Get(ctx context.Context, key string) (*model.CachedArtifact, error) {
	data, err := b.client.Get(ctx, physicalKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Internalf("redis GET: %w", err)
	}

	var record model.CachedArtifact
	if err := json.Unmarshal([]byte(data), &record); err != nil {
		return nil, apperr.Internalf("deserialize cached artifact: %w", err)
	}

	if record.ExpiresAt != nil && !record.ExpiresAt.After(b.now()) {
		if _, err := b.Delete(ctx, key); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Failed to delete expired record")
		}
		return nil, nil
	}
	return &record, nil
}

func (b *RedisBackend) Set(ctx context.Context, key string, artifact model.ArtifactPayload, expiresAt *time.Time) (*model.CachedArtifact, error) {
	now := b.now().UTC()
	record := model.CachedArtifact{
		Key:       key,
		Artifact:  artifact,
		StoredAt:  now,
		ExpiresAt: expiresAt,
	}

	data, err := json.Marshal(record)
	if err != nil {
		return nil, apperr.Internalf("serialize cached artifact: %w", err)
	}

	var ttl time.Duration
	if expiresAt != nil {
		remaining := expiresAt.Sub(now)
		if remaining <= 0 {
			return nil, apperr.BadRequest("artifact already expired")
		}
		// Whole seconds, rounded up, to match the stored expires_at.
		ttl = time.Duration(math.Ceil(remaining.Seconds())) * time.Second
	}

	if err := b.client.Set(ctx, physicalKey(key), data, ttl).Err(); err != nil {
		return nil, apperr.Internalf("redis SET: %w", err)
	}
	return &record, nil
}

func (b *RedisBackend) Delete(ctx context.Context, key string) (bool, error) {
	deleted, err := b.client.Del(ctx, physicalKey(key)).Result()
	if err != nil {
		return false, apperr.Internalf("redis DEL: %w", err)
	}
	return deleted > 0, nil
}

func (b *RedisBackend) DeleteMany(ctx context.Context, keys []string) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	physical := make([]string, len(keys))
	for i, key := range keys {
		physical[i] = physicalKey(key)
	}
	deleted, err := b.client.Del(ctx, physical...).Result()
	if err != nil {
		return 0, apperr.Internalf("redis DEL: %w", err)
	}
	return int(deleted), nil
}

// ScanByPattern walks the keyspace with cursor-based SCAN rather than a
// blocking KEYS enumeration. Returned keys have the namespace stripped.
func (b *RedisBackend) ScanByPattern(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	var cursor uint64
	match := keyPrefix + pattern

	for {
		batch, next, err := b.client.Scan(ctx, cursor, match, scanBatchSize).Result()
		if err != nil {
			return nil, apperr.Internalf("redis SCAN: %w", err)
		}
		for _, key := range batch {
			if len(key) >= len(keyPrefix) {
				keys = append(keys, key[len(keyPrefix):])
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return keys, nil
}

func (b *RedisBackend) Ping(ctx context.Context) error {
	if err := b.client.Ping(ctx).Err(); err != nil {
		return apperr.Internalf("redis PING: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (b *RedisBackend) Close() error { return b.client.Close() }
