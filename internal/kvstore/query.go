package kvstore

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Query builds a Filter/Range/All query over a Collection. Filter keys
// must be indexed fields declared on the schema; Range requires the
// schema's SortedField.
type Query[T any] struct {
	col     *Collection[T]
	filters map[string]string
	rangeLo float64
	rangeHi float64
	ranged  bool
}

// Query starts a new query over the collection.
func (c *Collection[T]) Query() *Query[T] {
	return &Query[T]{col: c, filters: map[string]string{}}
}

// Filter restricts results to records whose field equals value. Multiple
// calls AND together.
func (q *Query[T]) Filter(field, value string) *Query[T] {
	q.filters[field] = value
	return q
}

// Range restricts results to the schema's sorted field falling in [lo, hi].
func (q *Query[T]) Range(lo, hi float64) *Query[T] {
	q.rangeLo = lo
	q.rangeHi = hi
	q.ranged = true
	return q
}

// All executes the query and returns every matching record.
func (q *Query[T]) All(ctx context.Context) ([]*T, error) {
	ids, err := q.matchingIDs(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*T, 0, len(ids))
	for _, id := range ids {
		rec, err := q.col.Get(ctx, id)
		if err == ErrNotFound {
			// index referenced a record concurrently deleted; skip it.
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (q *Query[T]) matchingIDs(ctx context.Context) ([]string, error) {
	var sets [][]string

	for field, value := range q.filters {
		ids, err := q.col.client.rdb.SMembers(ctx, q.col.indexKey(field, value)).Result()
		if err != nil {
			return nil, fmt.Errorf("kvstore: filter %s=%s: %w", field, value, err)
		}
		sets = append(sets, ids)
	}

	if q.ranged {
		if q.col.schema.SortedField == "" {
			return nil, fmt.Errorf("kvstore: %s has no sorted field for Range", q.col.schema.TypeTag)
		}
		ids, err := q.col.client.rdb.ZRangeByScore(ctx, q.col.sortedKey(), &redis.ZRangeBy{
			Min: fmt.Sprintf("%g", q.rangeLo),
			Max: fmt.Sprintf("%g", q.rangeHi),
		}).Result()
		if err != nil {
			return nil, fmt.Errorf("kvstore: range query: %w", err)
		}
		sets = append(sets, ids)
	}

	if len(sets) == 0 {
		return q.col.client.rdb.SMembers(ctx, q.col.allKey()).Result()
	}

	return intersect(sets), nil
}

// intersect returns the elements common to every set, in the order they
// appear in the last set (the sorted range, when the query has one). An
// empty input returns no elements (callers only invoke this with
// len(sets) >= 1).
func intersect(sets [][]string) []string {
	if len(sets) == 0 {
		return nil
	}
	counts := make(map[string]int, len(sets[0]))
	for _, set := range sets {
		seen := make(map[string]bool, len(set))
		for _, id := range set {
			if seen[id] {
				continue
			}
			seen[id] = true
			counts[id]++
		}
	}
	last := sets[len(sets)-1]
	out := make([]string, 0, len(last))
	for _, id := range last {
		if counts[id] == len(sets) {
			out = append(out, id)
			counts[id] = 0 // emit each id once
		}
	}
	return out
}
