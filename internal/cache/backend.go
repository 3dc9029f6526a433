// Package cache provides the storage backend abstraction and the cache
// facade. Backends persist serialized records keyed by artifact id, honor
// TTL at the storage layer when possible, and enumerate keys by glob
// pattern. The Redis backend is the production implementation; memory and
// Postgres backends implement the same contract.
package cache

import (
	"context"
	"time"

	"github.com/memophor/scedge/internal/model"
)

// keyPrefix namespaces every physical key in shared stores.
const keyPrefix = "scedge:artifact:"

// Backend is the capability set every storage implementation provides.
//
// Get returns (nil, nil) when the key is absent or expired; an expired
// record is deleted as a side effect, and deletion failure is non-fatal.
// Set fails with a bad-request error when expiresAt is already in the past.
// ScanByPattern accepts '*' wildcards and returns logical keys.
type Backend interface {
	Get(ctx context.Context, key string) (*model.CachedArtifact, error)
	Set(ctx context.Context, key string, artifact model.ArtifactPayload, expiresAt *time.Time) (*model.CachedArtifact, error)
	Delete(ctx context.Context, key string) (bool, error)
	DeleteMany(ctx context.Context, keys []string) (int, error)
	ScanByPattern(ctx context.Context, pattern string) ([]string, error)
	Ping(ctx context.Context) error
}

// Cache is a thin forwarder over any Backend. It fixes the physical-key
// namespace and the UTF-8 JSON wire form, and guarantees that reads never
// return expired records.
type Cache struct {
	backend Backend
}

// New wraps a backend in the stable cache API.
func New(backend Backend) *Cache {
	return &Cache{backend: backend}
}

func (c *Cache) Get(ctx context.Context, key string) (*model.CachedArtifact, error) {
	return c.backend.Get(ctx, key)
}

func (c *Cache) Set(ctx context.Context, key string, artifact model.ArtifactPayload, expiresAt *time.Time) (*model.CachedArtifact, error) {
	return c.backend.Set(ctx, key, artifact, expiresAt)
}

func (c *Cache) Delete(ctx context.Context, key string) (bool, error) {
	return c.backend.Delete(ctx, key)
}

func (c *Cache) DeleteMany(ctx context.Context, keys []string) (int, error) {
	return c.backend.DeleteMany(ctx, keys)
}

func (c *Cache) ScanByPattern(ctx context.Context, pattern string) ([]string, error) {
	return c.backend.ScanByPattern(ctx, pattern)
}

func (c *Cache) Ping(ctx context.Context) error {
	return c.backend.Ping(ctx)
}
