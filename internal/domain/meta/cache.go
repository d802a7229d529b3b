package meta

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/sync/singleflight"
)

const DefaultCacheSize = 4096

// Cache fronts a Backend with an LRU. Concurrent misses for the same record share one backend read.
type Cache struct {
	scope   string
	backend Backend
	entries *lru.Cache
	group   singleflight.Group
	writeMu sync.Mutex
	now     func() time.Time
}

func NewCache(scope string, backend Backend, size int) (*Cache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	entries, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("failed to create meta cache: %w", err)
	}
	return &Cache{
		scope:   scope,
		backend: backend,
		entries: entries,
		now:     time.Now,
	}, nil
}

func (c *Cache) Scope() string {
	return c.scope
}

// Get never fails: a backend error is logged and yields an empty entry.
func (c *Cache) Get(ctx context.Context, kind Kind, id uint64) Entry {
	key := recordKey(kind, id)
	if v, ok := c.entries.Get(key); ok {
		return v.(Entry)
	}

	// The shared read outlives whichever caller started it.
	loadCtx := context.WithoutCancel(ctx)
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		e, _, err := c.backend.Get(loadCtx, c.scope, key)
		if err != nil {
			return Entry{}, err
		}
		// An Upsert that landed during the read has already cached the newer entry.
		if found, _ := c.entries.ContainsOrAdd(key, e); found {
			if cur, ok := c.entries.Peek(key); ok {
				return cur, nil
			}
		}
		return e, nil
	})
	if err != nil {
		slog.Warn("Failed to load record meta",
			slog.String("type", "db"),
			slog.String("key", key),
			slog.Any("error", err),
		)
		return Entry{}
	}
	return v.(Entry)
}

// GetMany loads entries for a list of records, skipping the empty ones.
func (c *Cache) GetMany(ctx context.Context, kind Kind, ids []uint64) map[uint64]Entry {
	out := make(map[uint64]Entry, len(ids))
	for _, id := range ids {
		if e := c.Get(ctx, kind, id); !e.IsZero() {
			out[id] = e
		}
	}
	return out
}

// Upsert merges the non-empty fields of patch into the stored entry and returns the result.
func (c *Cache) Upsert(ctx context.Context, kind Kind, id uint64, patch Entry) (Entry, error) {
	key := recordKey(kind, id)

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	current, _, err := c.backend.Get(ctx, c.scope, key)
	if err != nil {
		return Entry{}, err
	}
	merged := current.Merge(patch)
	merged.UpdatedAt = c.now().UTC()

	if err := c.backend.Put(ctx, c.scope, key, merged); err != nil {
		return Entry{}, err
	}
	c.entries.Add(key, merged)
	return merged, nil
}
