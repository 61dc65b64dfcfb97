package advice

import (
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Cache deduplicates generator calls for contexts that would read the same
// to the model. Keys are coarse buckets, not exact contexts, so near-identical
// windows reuse advice instead of burning a generation call.
type Cache struct {
	lru *expirable.LRU[string, string]
}

// NewCache builds a bounded TTL cache. Returns nil when size is zero, and a
// nil *Cache is a safe no-op.
func NewCache(size int, ttl time.Duration) *Cache {
	if size <= 0 {
		return nil
	}
	return &Cache{lru: expirable.NewLRU[string, string](size, nil, ttl)}
}

// Key buckets a context: dominant state, engagement trend, and word count
// rounded to tens. Fine-grained scores are deliberately excluded.
func (c *Cache) Key(ctx Context) string {
	return fmt.Sprintf("%s|%s|%d",
		ctx.Summary.DominantState,
		ctx.Patterns.EngagementTrend,
		ctx.Summary.TotalWords/10*10,
	)
}

// Get returns cached advice for an equivalent context, if fresh.
func (c *Cache) Get(ctx Context) (string, bool) {
	if c == nil {
		return "", false
	}
	return c.lru.Get(c.Key(ctx))
}

// Put stores advice under the context's bucket.
func (c *Cache) Put(ctx Context, content string) {
	if c == nil {
		return
	}
	c.lru.Add(c.Key(ctx), content)
}

// Len reports cached entries, for stats endpoints.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return c.lru.Len()
}
