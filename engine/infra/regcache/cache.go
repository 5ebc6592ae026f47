package regcache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/aethra/keybot/engine/key"
	"github.com/aethra/keybot/pkg/strmap"
)

const recordsKey = "records"

// Cached serves registry reads from memory for a bounded time. Any write
// through it drops the cached copy.
type Cached struct {
	next  key.Registry
	cache *expirable.LRU[string, *strmap.Map]
}

var _ key.Registry = (*Cached)(nil)

// New wraps next. A non-positive ttl disables caching and returns next.
func New(next key.Registry, ttl time.Duration) key.Registry {
	if ttl <= 0 {
		return next
	}
	return &Cached{
		next:  next,
		cache: expirable.NewLRU[string, *strmap.Map](1, nil, ttl),
	}
}

func (c *Cached) Load(ctx context.Context) (*strmap.Map, error) {
	if records, ok := c.cache.Get(recordsKey); ok {
		return records.Clone(), nil
	}
	records, err := c.next.Load(ctx)
	if err != nil {
		return nil, err
	}
	c.cache.Add(recordsKey, records.Clone())
	return records, nil
}

func (c *Cached) Save(ctx context.Context, records *strmap.Map, message string) error {
	defer c.Invalidate()
	return c.next.Save(ctx, records, message)
}

func (c *Cached) Update(ctx context.Context, mutate key.Mutation) error {
	defer c.Invalidate()
	return c.next.Update(ctx, mutate)
}

// Invalidate drops the cached records.
func (c *Cached) Invalidate() {
	c.cache.Remove(recordsKey)
}
