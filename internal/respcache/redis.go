package respcache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisPersister stores each cache bucket as a Redis hash that expires once
// the bucket can no longer be retained.
type RedisPersister struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisPersister connects to Redis at addr and verifies the connection.
// ttl should be at least chunk * buckets of the caches it persists.
func NewRedisPersister(ctx context.Context, addr string, ttl time.Duration) (*RedisPersister, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", addr, err)
	}
	return NewRedisPersisterWithClient(client, ttl), nil
}

// NewRedisPersisterWithClient wraps an existing client.
func NewRedisPersisterWithClient(client *redis.Client, ttl time.Duration) *RedisPersister {
	if ttl <= 0 {
		ttl = DefaultChunk * DefaultBuckets
	}
	return &RedisPersister{client: client, prefix: "respcache", ttl: ttl}
}

// Close closes the underlying client.
func (p *RedisPersister) Close() error {
	return p.client.Close()
}

func (p *RedisPersister) bucketKey(name string, id int64) string {
	return fmt.Sprintf("%s:%s:%d", p.prefix, name, id)
}

// LoadSnapshot reads every bucket hash for the named cache.
func (p *RedisPersister) LoadSnapshot(ctx context.Context, name string) (Snapshot, error) {
	pattern := fmt.Sprintf("%s:%s:*", p.prefix, name)
	snap := make(Snapshot)

	iter := p.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		id, err := strconv.ParseInt(key[strings.LastIndexByte(key, ':')+1:], 10, 64)
		if err != nil {
			continue
		}
		fields, err := p.client.HGetAll(ctx, key).Result()
		if err != nil {
			return nil, fmt.Errorf("read bucket %s: %w", key, err)
		}
		entries := make(map[string]json.RawMessage, len(fields))
		for k, v := range fields {
			entries[k] = json.RawMessage(v)
		}
		snap[id] = entries
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", pattern, err)
	}
	return snap, nil
}

// SaveSnapshot writes every bucket in one pipeline and refreshes its expiry.
func (p *RedisPersister) SaveSnapshot(ctx context.Context, name string, snap Snapshot) error {
	pipe := p.client.TxPipeline()
	for id, entries := range snap {
		if len(entries) == 0 {
			continue
		}
		key := p.bucketKey(name, id)
		values := make(map[string]any, len(entries))
		for k, v := range entries {
			values[k] = string(v)
		}
		pipe.HSet(ctx, key, values)
		pipe.Expire(ctx, key, p.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("write buckets: %w", err)
	}
	return nil
}
