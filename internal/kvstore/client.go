// Package kvstore implements the typed record adapter over a Redis backing
// store described in the bridge design: record CRUD with secondary
// indices and sorted sets, namespace isolation between production and
// test runs, and a bounded-queue pub/sub bus.
package kvstore

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Namespace selects the key prefix a Client operates under. Production and
// test runs use distinct namespaces so a test run can flush its own data
// without touching production records.
type Namespace string

const (
	NamespaceProd Namespace = "prod"
	NamespaceTest Namespace = "test"
)

// Client wraps a Redis connection scoped to one namespace.
type Client struct {
	rdb       *redis.Client
	namespace string
}

// New connects to Redis at addr and returns a namespaced Client.
func New(addr, password string, db int, namespace Namespace) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return &Client{rdb: rdb, namespace: string(namespace)}, nil
}

// NewFromRedis wraps an already-constructed *redis.Client, for tests
// against miniredis or a shared connection pool.
func NewFromRedis(rdb *redis.Client, namespace Namespace) *Client {
	return &Client{rdb: rdb, namespace: string(namespace)}
}

// Namespace returns the client's active namespace.
func (c *Client) Namespace() string {
	return c.namespace
}

// Close releases the underlying Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// FlushNamespace deletes every key under this client's namespace prefix.
// It never touches keys belonging to another namespace because the scan
// pattern is anchored to this client's own prefix.
func (c *Client) FlushNamespace(ctx context.Context) error {
	pattern := c.namespace + ":*"
	var cursor uint64
	for {
		keys, next, err := c.rdb.Scan(ctx, cursor, pattern, 500).Result()
		if err != nil {
			return fmt.Errorf("scan namespace %q: %w", c.namespace, err)
		}
		if len(keys) > 0 {
			if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("delete namespace keys: %w", err)
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return nil
}
