package scraper

import (
	"context"
	"mailru-backend/internal/mailru/objects"
	"mailru-backend/internal/telemetry"
	"slices"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

type cacheKey struct {
	url   string
	skip  string
	limit int
	uuid  string
}

type cacheEntry struct {
	done   chan struct{}
	events []objects.Event
	err    error

	// waiters counts the callers still waiting on a running scrape, the
	// scrape is cancelled when the last of them gives up.
	waiters int
	cancel  context.CancelFunc
}

// scrapeCache memoizes scrapes by key. Concurrent lookups of a key that is
// still being computed wait for the running computation, which outlives the
// caller that started it as long as anyone is still waiting. Failed scrapes
// are dropped.
type scrapeCache struct {
	mu      sync.Mutex
	entries *expirable.LRU[cacheKey, *cacheEntry]
	metrics *telemetry.Metrics
}

func newScrapeCache(size int, ttl time.Duration, metrics *telemetry.Metrics) *scrapeCache {
	return &scrapeCache{
		entries: expirable.NewLRU[cacheKey, *cacheEntry](size, nil, ttl),
		metrics: metrics,
	}
}

func (c *scrapeCache) do(ctx context.Context, key cacheKey, scrape func(ctx context.Context) ([]objects.Event, error)) ([]objects.Event, error) {
	c.mu.Lock()
	entry, ok := c.entries.Get(key)
	if ok {
		c.metrics.IncCache("hit")
	} else {
		c.metrics.IncCache("miss")
		scrapeCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		entry = &cacheEntry{done: make(chan struct{}), cancel: cancel}
		c.entries.Add(key, entry)
		go c.run(scrapeCtx, key, entry, scrape)
	}
	entry.waiters++
	c.mu.Unlock()

	select {
	case <-entry.done:
		return slices.Clone(entry.events), entry.err
	case <-ctx.Done():
		c.leave(key, entry)
		return nil, ctx.Err()
	}
}

func (c *scrapeCache) run(ctx context.Context, key cacheKey, entry *cacheEntry, scrape func(ctx context.Context) ([]objects.Event, error)) {
	defer entry.cancel()
	events, err := scrape(ctx)

	c.mu.Lock()
	entry.events, entry.err = events, err
	if err != nil {
		c.forget(key, entry)
	}
	c.mu.Unlock()
	close(entry.done)
}

// leave drops a waiter that gave up, cancelling the scrape once nobody is
// left to receive it.
func (c *scrapeCache) leave(key cacheKey, entry *cacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry.waiters--
	if entry.waiters > 0 {
		return
	}
	select {
	case <-entry.done:
		return
	default:
	}
	c.forget(key, entry)
	entry.cancel()
}

// forget removes entry unless key was already reassigned, c.mu must be held.
func (c *scrapeCache) forget(key cacheKey, entry *cacheEntry) {
	current, ok := c.entries.Peek(key)
	if ok && current == entry {
		c.entries.Remove(key)
	}
}

func (c *scrapeCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}
