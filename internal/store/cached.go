package store

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the number of results Cached keeps when no size is given.
const DefaultCacheSize = 4096

// Cached is a write-through read cache in front of a ResultStore.
// Only present results are cached; misses always reach the underlying store.
type Cached struct {
	next  ResultStore
	cache *lru.Cache[string, string]
}

// NewCached wraps next with an LRU cache of the given size.
// A size <= 0 selects DefaultCacheSize.
func NewCached(next ResultStore, size int) (*Cached, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, string](size)
	if err != nil {
		return nil, fmt.Errorf("creating result cache: %w", err)
	}
	return &Cached{next: next, cache: cache}, nil
}

func (c *Cached) Result(ctx context.Context, id string) (string, bool, error) {
	if text, ok := c.cache.Get(id); ok {
		return text, true, nil
	}
	text, ok, err := c.next.Result(ctx, id)
	if err != nil || !ok {
		return text, ok, err
	}
	c.cache.Add(id, text)
	return text, true, nil
}

func (c *Cached) PutResult(ctx context.Context, id, text string) error {
	if err := c.next.PutResult(ctx, id, text); err != nil {
		c.cache.Remove(id)
		return err
	}
	c.cache.Add(id, text)
	return nil
}
