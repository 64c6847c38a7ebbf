package kvstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Schema declares which fields of a record type are indexed (Filter-able),
// which single field (if any) is range-queryable via a sorted set, and
// which fields must be unique across the collection. IDField names the
// field holding the record's primary key; if empty on Create, a uuid is
// generated and written back into that field.
type Schema struct {
	TypeTag       string
	IDField       string
	IndexedFields []string
	SortedField   string
	UniqueFields  []string
}

// Collection is a typed view over one record type stored in Redis. T is
// the record struct (not a pointer); all methods operate on *T.
type Collection[T any] struct {
	client *Client
	schema Schema

	// mu serializes Transition calls for this collection so the atomic
	// index-swap below never races with itself. Transitions are rare
	// relative to reads, so a single collection-wide mutex is adequate.
	mu sync.Mutex
}

// NewCollection builds a Collection bound to schema over client.
func NewCollection[T any](client *Client, schema Schema) *Collection[T] {
	return &Collection[T]{client: client, schema: schema}
}

func (c *Collection[T]) recordKey(id string) string {
	return fmt.Sprintf("%s:%s:%s", c.client.namespace, c.schema.TypeTag, id)
}

func (c *Collection[T]) indexKey(field, value string) string {
	return fmt.Sprintf("%s:%s:idx:%s:%s", c.client.namespace, c.schema.TypeTag, field, value)
}

func (c *Collection[T]) uniqueKey(field, value string) string {
	return fmt.Sprintf("%s:%s:uniq:%s:%s", c.client.namespace, c.schema.TypeTag, field, value)
}

func (c *Collection[T]) sortedKey() string {
	return fmt.Sprintf("%s:%s:sorted:%s", c.client.namespace, c.schema.TypeTag, c.schema.SortedField)
}

func (c *Collection[T]) allKey() string {
	return fmt.Sprintf("%s:%s:all", c.client.namespace, c.schema.TypeTag)
}

// Create allocates an id if the schema's IDField is empty, enforces
// uniqueness constraints, and writes the record plus its index entries.
func (c *Collection[T]) Create(ctx context.Context, rec *T) error {
	id := stringField(rec, c.schema.IDField)
	if id == "" {
		id = uuid.NewString()
		setStringField(rec, c.schema.IDField, id)
	}

	for _, uf := range c.schema.UniqueFields {
		val := stringField(rec, uf)
		ok, err := c.client.rdb.SetNX(ctx, c.uniqueKey(uf, val), id, 0).Result()
		if err != nil {
			return fmt.Errorf("kvstore: check unique %s: %w", uf, err)
		}
		if !ok {
			return ErrDuplicate
		}
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("kvstore: marshal %s: %w", c.schema.TypeTag, err)
	}

	pipe := c.client.rdb.TxPipeline()
	pipe.Set(ctx, c.recordKey(id), data, 0)
	pipe.SAdd(ctx, c.allKey(), id)
	for _, f := range c.schema.IndexedFields {
		pipe.SAdd(ctx, c.indexKey(f, stringField(rec, f)), id)
	}
	if c.schema.SortedField != "" {
		pipe.ZAdd(ctx, c.sortedKey(), redis.Z{Score: floatField(rec, c.schema.SortedField), Member: id})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("kvstore: create %s: %w", c.schema.TypeTag, err)
	}
	return nil
}

// Get performs an exact lookup by id.
func (c *Collection[T]) Get(ctx context.Context, id string) (*T, error) {
	data, err := c.client.rdb.Get(ctx, c.recordKey(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("kvstore: get %s/%s: %w", c.schema.TypeTag, id, err)
	}
	var rec T
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("kvstore: unmarshal %s/%s: %w", c.schema.TypeTag, id, err)
	}
	return &rec, nil
}

// Delete removes a record and all of its index entries. Idempotent: a
// second call on an already-deleted record is a harmless no-op, since
// Redis DEL/SREM/ZREM on missing members are no-ops.
func (c *Collection[T]) Delete(ctx context.Context, rec *T) error {
	id := stringField(rec, c.schema.IDField)
	pipe := c.client.rdb.TxPipeline()
	pipe.Del(ctx, c.recordKey(id))
	pipe.SRem(ctx, c.allKey(), id)
	for _, f := range c.schema.IndexedFields {
		pipe.SRem(ctx, c.indexKey(f, stringField(rec, f)), id)
	}
	for _, uf := range c.schema.UniqueFields {
		pipe.Del(ctx, c.uniqueKey(uf, stringField(rec, uf)))
	}
	if c.schema.SortedField != "" {
		pipe.ZRem(ctx, c.sortedKey(), id)
	}
	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("kvstore: delete %s/%s: %w", c.schema.TypeTag, id, err)
	}
	return nil
}

// Transition atomically mutates rec's key-typed fields (see Schema) and
// re-indexes it inside a single Redis transaction, so no concurrent
// Query ever observes the record missing from every index simultaneously
// — the hash value itself is never deleted, only the index memberships
// and the stored record move together in one MULTI/EXEC. This is the
// atomic swap operation the session registry's status/project_key
// transitions require.
func (c *Collection[T]) Transition(ctx context.Context, rec *T, mutate func(*T)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := stringField(rec, c.schema.IDField)
	oldIndexValues := make(map[string]string, len(c.schema.IndexedFields))
	for _, f := range c.schema.IndexedFields {
		oldIndexValues[f] = stringField(rec, f)
	}

	mutate(rec)

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("kvstore: marshal %s: %w", c.schema.TypeTag, err)
	}

	pipe := c.client.rdb.TxPipeline()
	for _, f := range c.schema.IndexedFields {
		newVal := stringField(rec, f)
		if newVal == oldIndexValues[f] {
			continue
		}
		pipe.SRem(ctx, c.indexKey(f, oldIndexValues[f]), id)
		pipe.SAdd(ctx, c.indexKey(f, newVal), id)
	}
	pipe.Set(ctx, c.recordKey(id), data, 0)
	if c.schema.SortedField != "" {
		pipe.ZAdd(ctx, c.sortedKey(), redis.Z{Score: floatField(rec, c.schema.SortedField), Member: id})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("kvstore: transition %s/%s: %w", c.schema.TypeTag, id, err)
	}
	return nil
}

// Save rewrites a record's value in place without touching its index
// memberships. Used for non-key-field updates (e.g. bumping
// last_activity) where no index needs to move.
func (c *Collection[T]) Save(ctx context.Context, rec *T) error {
	id := stringField(rec, c.schema.IDField)
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("kvstore: marshal %s: %w", c.schema.TypeTag, err)
	}
	if err := c.client.rdb.Set(ctx, c.recordKey(id), data, 0).Err(); err != nil {
		return fmt.Errorf("kvstore: save %s/%s: %w", c.schema.TypeTag, id, err)
	}
	if c.schema.SortedField != "" {
		if err := c.client.rdb.ZAdd(ctx, c.sortedKey(), redis.Z{Score: floatField(rec, c.schema.SortedField), Member: id}).Err(); err != nil {
			return fmt.Errorf("kvstore: resort %s/%s: %w", c.schema.TypeTag, id, err)
		}
	}
	return nil
}
