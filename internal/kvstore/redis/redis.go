// Package redis implements kvstore.Backend on Redis.
//
// Each document is stored as a JSON string under
// <prefix><escaped collection>/<document id>. The native TTL hint becomes
// the key expiry.
package redis

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/teemow/expenses-mcp/internal/kvstore"
)

// DefaultKeyPrefix namespaces all keys written by the backend.
const DefaultKeyPrefix = "expenses-mcp:kv:"

// Client is the subset of redis.Cmdable the backend needs.
type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Config holds connection settings.
type Config struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// Backend stores documents as Redis strings.
type Backend struct {
	client Client
	prefix string
	closer func() error
}

var _ kvstore.Backend = (*Backend)(nil)

// New creates a backend over an existing client.
func New(client Client, prefix string) *Backend {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Backend{client: client, prefix: prefix}
}

// Dial connects to Redis and verifies the connection with PING.
func Dial(ctx context.Context, cfg Config) (*Backend, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis: address is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	b := New(client, cfg.KeyPrefix)
	b.closer = client.Close
	return b, nil
}

// Kind implements kvstore.Backend.
func (b *Backend) Kind() string {
	return "redis"
}

// Close releases the connection pool if the backend owns it.
func (b *Backend) Close() error {
	if b.closer == nil {
		return nil
	}
	return b.closer()
}

func (b *Backend) key(collection, id string) string {
	return b.prefix + url.PathEscape(collection) + "/" + id
}

// ReadDocument implements kvstore.Backend.
func (b *Backend) ReadDocument(ctx context.Context, collection, id string) (*kvstore.Document, error) {
	data, err := b.client.Get(ctx, b.key(collection, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, kvstore.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis: get %q: %w", id, err)
	}
	return kvstore.UnmarshalDocument(data)
}

// UpsertDocument implements kvstore.Backend.
func (b *Backend) UpsertDocument(ctx context.Context, doc *kvstore.Document) error {
	if doc.Collection == "" {
		return fmt.Errorf("redis: document %q has no collection", doc.ID)
	}
	data, err := kvstore.MarshalDocument(doc)
	if err != nil {
		return err
	}
	var expiration time.Duration
	if doc.TTL != nil {
		expiration = time.Duration(*doc.TTL) * time.Second
	}
	if err := b.client.Set(ctx, b.key(doc.Collection, doc.ID), data, expiration).Err(); err != nil {
		return fmt.Errorf("redis: set %q: %w", doc.ID, err)
	}
	return nil
}

// DeleteDocument implements kvstore.Backend.
func (b *Backend) DeleteDocument(ctx context.Context, collection, id string) error {
	n, err := b.client.Del(ctx, b.key(collection, id)).Result()
	if err != nil {
		return fmt.Errorf("redis: del %q: %w", id, err)
	}
	if n == 0 {
		return kvstore.ErrNotFound
	}
	return nil
}
