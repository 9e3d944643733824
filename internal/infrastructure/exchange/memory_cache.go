package exchange

import (
	"context"
	"sync"

	domain "github.com/Zhima-Mochi/payflow/internal/domain/exchange"
)

// MemoryCache is a process-local quote cache. Suitable for single-instance
// deployments and tests; multi-replica setups share quotes via the redis cache.
type MemoryCache struct {
	mu     sync.RWMutex
	quotes map[string]domain.Quote
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{quotes: make(map[string]domain.Quote)}
}

func (c *MemoryCache) Get(ctx context.Context, base, counter string) (domain.Quote, bool, error) {
	_ = ctx
	c.mu.RLock()
	defer c.mu.RUnlock()
	q, ok := c.quotes[base+"/"+counter]
	return q, ok, nil
}

func (c *MemoryCache) Set(ctx context.Context, q domain.Quote) error {
	_ = ctx
	c.mu.Lock()
	defer c.mu.Unlock()
	c.quotes[q.Base+"/"+q.Counter] = q
	return nil
}
