// Package respcache memoizes expensive upstream responses in a small
// time-bucketed cache. Entries live in fixed time chunks and only the most
// recent chunks are retained.
package respcache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

const (
	// DefaultChunk is the width of one time bucket.
	DefaultChunk = 10 * time.Second

	// DefaultBuckets is how many of the most recent buckets are retained.
	DefaultBuckets = 4
)

// Snapshot is the persisted form of a cache: bucket start (unix millis) to
// key to JSON-encoded value.
type Snapshot map[int64]map[string]json.RawMessage

// Persister loads and saves cache snapshots between process lifetimes.
type Persister interface {
	LoadSnapshot(ctx context.Context, name string) (Snapshot, error)
	SaveSnapshot(ctx context.Context, name string, snap Snapshot) error
}

// Options configures a Cache.
type Options struct {
	Chunk   time.Duration
	Buckets int

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Cache is a time-bucketed key-value cache. It is safe for concurrent use.
type Cache[V any] struct {
	mu      sync.Mutex
	name    string
	chunk   time.Duration
	keep    int
	now     func() time.Time
	buckets map[int64]map[string]V
}

// New creates an empty cache. name identifies the cache to a Persister.
func New[V any](name string, opts Options) *Cache[V] {
	if opts.Chunk <= 0 {
		opts.Chunk = DefaultChunk
	}
	if opts.Buckets <= 0 {
		opts.Buckets = DefaultBuckets
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	c := &Cache[V]{
		name:    name,
		chunk:   opts.Chunk,
		keep:    opts.Buckets,
		now:     opts.Now,
		buckets: make(map[int64]map[string]V),
	}
	c.evictLocked()
	return c
}

// Get returns the newest value stored for key.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.evictLocked()
	for _, b := range c.bucketIDsLocked() {
		if v, ok := c.buckets[b][key]; ok {
			return v, true
		}
	}
	var zero V
	return zero, false
}

// Set stores value for key in the current time bucket.
func (c *Cache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.bucketID(c.now())
	bucket, ok := c.buckets[id]
	if !ok {
		bucket = make(map[string]V)
		c.buckets[id] = bucket
		c.evictLocked()
	}
	bucket[key] = value
}

// Len returns the number of entries across all retained buckets.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, b := range c.buckets {
		n += len(b)
	}
	return n
}

// Load replaces the cache contents with the persisted snapshot, then evicts
// buckets that are too old to keep.
func (c *Cache[V]) Load(ctx context.Context, p Persister, logger *slog.Logger) error {
	snap, err := p.LoadSnapshot(ctx, c.name)
	if err != nil {
		return fmt.Errorf("load cache %s: %w", c.name, err)
	}

	buckets := make(map[int64]map[string]V, len(snap))
	for id, entries := range snap {
		bucket := make(map[string]V, len(entries))
		for key, raw := range entries {
			var v V
			if err := json.Unmarshal(raw, &v); err != nil {
				logger.Warn("dropping undecodable cache entry", "cache", c.name, "key", key, "error", err)
				continue
			}
			bucket[key] = v
		}
		buckets[id] = bucket
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.buckets = buckets
	c.evictLocked()
	return nil
}

// Save persists the retained buckets.
func (c *Cache[V]) Save(ctx context.Context, p Persister) error {
	c.mu.Lock()
	snap := make(Snapshot, len(c.buckets))
	for id, bucket := range c.buckets {
		entries := make(map[string]json.RawMessage, len(bucket))
		for key, v := range bucket {
			raw, err := json.Marshal(v)
			if err != nil {
				c.mu.Unlock()
				return fmt.Errorf("encode cache %s entry %s: %w", c.name, key, err)
			}
			entries[key] = raw
		}
		snap[id] = entries
	}
	c.mu.Unlock()

	if err := p.SaveSnapshot(ctx, c.name, snap); err != nil {
		return fmt.Errorf("save cache %s: %w", c.name, err)
	}
	return nil
}

func (c *Cache[V]) bucketID(t time.Time) int64 {
	return t.Truncate(c.chunk).UnixMilli()
}

// bucketIDsLocked returns bucket IDs newest first.
func (c *Cache[V]) bucketIDsLocked() []int64 {
	ids := make([]int64, 0, len(c.buckets))
	for id := range c.buckets {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })
	return ids
}

// evictLocked drops every bucket outside the newest c.keep chunks ending at
// the current time.
func (c *Cache[V]) evictLocked() {
	oldest := c.bucketID(c.now()) - int64(c.keep-1)*c.chunk.Milliseconds()
	for id := range c.buckets {
		if id < oldest {
			delete(c.buckets, id)
		}
	}
}
