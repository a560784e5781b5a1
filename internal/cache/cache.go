// Package cache keeps provider listings (audiences, campaigns, templates)
// for a fixed bucket of time. A stale or empty entry is refetched on read;
// callers can force a refetch. Concurrent misses may each fetch.
package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ignite/campaignsync/internal/pkg/clock"
)

// Cache stores raw bytes by key.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

type entry struct {
	StoredAt time.Time       `json:"stored_at"`
	Value    json.RawMessage `json:"value"`
}

// Bucket binds a Cache to a clock and a bucket length.
type Bucket struct {
	cache Cache
	clock clock.Clock
	ttl   time.Duration
}

// NewBucket returns a Bucket; ttl <= 0 means one hour.
func NewBucket(c Cache, clk clock.Clock, ttl time.Duration) *Bucket {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &Bucket{cache: c, clock: clk, ttl: ttl}
}

// Invalidate drops key.
func (b *Bucket) Invalidate(ctx context.Context, key string) error {
	return b.cache.Delete(ctx, key)
}

// Load returns the cached value for key, calling fetch when forced, when
// the entry is missing, older than the bucket, or empty. A failing cache
// read falls through to fetch; a failing fetch is returned as-is.
func Load[T any](ctx context.Context, b *Bucket, key string, force bool, fetch func(context.Context) (T, error)) (T, error) {
	if !force {
		if v, ok := lookup[T](ctx, b, key); ok {
			return v, nil
		}
	}

	v, err := fetch(ctx)
	if err != nil {
		var zero T
		return zero, err
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return v, fmt.Errorf("cache: encode %s: %w", key, err)
	}
	data, _ := json.Marshal(entry{StoredAt: b.clock.Now().UTC(), Value: raw})
	if err := b.cache.Set(ctx, key, data); err != nil {
		return v, fmt.Errorf("cache: store %s: %w", key, err)
	}
	return v, nil
}

func lookup[T any](ctx context.Context, b *Bucket, key string) (T, bool) {
	var zero T
	data, ok, err := b.cache.Get(ctx, key)
	if err != nil || !ok {
		return zero, false
	}
	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		return zero, false
	}
	if b.clock.Now().Sub(e.StoredAt) > b.ttl || isEmpty(e.Value) {
		return zero, false
	}
	var v T
	if err := json.Unmarshal(e.Value, &v); err != nil {
		return zero, false
	}
	return v, true
}

func isEmpty(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) == 0 || bytes.Equal(t, []byte("null")) || bytes.Equal(t, []byte("[]")) || bytes.Equal(t, []byte("{}"))
}

// Memory is an in-process Cache.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemory returns an empty cache.
func NewMemory() *Memory {
	return &Memory{data: map[string][]byte{}}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	m.data[key] = value
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.data, key)
	m.mu.Unlock()
	return nil
}
