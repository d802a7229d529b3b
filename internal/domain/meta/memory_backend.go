package meta

import (
	"context"
	"sync"
)

type MemoryBackend struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{entries: make(map[string]Entry)}
}

func (b *MemoryBackend) Get(_ context.Context, scope, key string) (Entry, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.entries[scope+"|"+key]
	return e, ok, nil
}

func (b *MemoryBackend) Put(_ context.Context, scope, key string, e Entry) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[scope+"|"+key] = e
	return nil
}
