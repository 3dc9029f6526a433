package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/memophor/scedge/internal/apperr"
	"github.com/memophor/scedge/internal/model"
)

// MemoryBackend is a deterministic in-process backend with the same
// contract as Redis. Records are stored in their serialized form so the
// round-trip path matches production byte for byte.
type MemoryBackend struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	data      []byte
	expiresAt *time.Time
}

// NewMemoryBackend returns an empty in-memory backend using wall-clock time.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// SetNow overrides the clock. Tests use this to advance time past expiry.
func (b *MemoryBackend) SetNow(now func() time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.now = now
}

func (b *MemoryBackend) Get(_ context.Context, key string) (*model.CachedArtifact, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.entries[key]
	if !ok {
		return nil, nil
	}
	if entry.expiresAt != nil && !entry.expiresAt.After(b.now()) {
		delete(b.entries, key)
		return nil, nil
	}

	var record model.CachedArtifact
	if err := json.Unmarshal(entry.data, &record); err != nil {
		return nil, apperr.Internalf("deserialize cached artifact: %w", err)
	}
	return &record, nil
}

func (b *MemoryBackend) Set(_ context.Context, key string, artifact model.ArtifactPayload, expiresAt *time.Time) (*model.CachedArtifact, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now().UTC()
	if expiresAt != nil && !expiresAt.After(now) {
		return nil, apperr.BadRequest("artifact already expired")
	}

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

	b.entries[key] = memoryEntry{data: data, expiresAt: expiresAt}
	return &record, nil
}

func (b *MemoryBackend) Delete(_ context.Context, key string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	_, ok := b.entries[key]
	delete(b.entries, key)
	return ok, nil
}

func (b *MemoryBackend) DeleteMany(_ context.Context, keys []string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	removed := 0
	for _, key := range keys {
		if _, ok := b.entries[key]; ok {
			delete(b.entries, key)
			removed++
		}
	}
	return removed, nil
}

func (b *MemoryBackend) ScanByPattern(_ context.Context, pattern string) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	var keys []string
	for key, entry := range b.entries {
		if entry.expiresAt != nil && !entry.expiresAt.After(now) {
			continue
		}
		if matchPattern(pattern, key) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (b *MemoryBackend) Ping(context.Context) error { return nil }

// Len reports the number of live entries, used by tests and the size gauge.
func (b *MemoryBackend) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}
