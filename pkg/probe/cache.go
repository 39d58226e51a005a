package probe

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultTimeout bounds a shared probe once no single caller owns it.
const DefaultTimeout = 30 * time.Second

// Cache memoizes successful probes. Failures are not remembered, so a broken
// image is retried the next time a layout asks for it.
//
// Concurrent probes of one URL share a single flight. The flight runs detached
// from its callers, so a caller that gives up only abandons its own wait.
type Cache struct {
	p       Prober
	Timeout time.Duration

	mu    sync.Mutex
	sizes map[string]Size
	group singleflight.Group
}

// NewCache wraps p.
func NewCache(p Prober) *Cache {
	return &Cache{p: p, Timeout: DefaultTimeout, sizes: map[string]Size{}}
}

func (c *Cache) Probe(ctx context.Context, url string) (Size, error) {
	c.mu.Lock()
	s, ok := c.sizes[url]
	c.mu.Unlock()
	if ok {
		return s, nil
	}

	ch := c.group.DoChan(url, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.Timeout)
		defer cancel()
		s, err := c.p.Probe(fctx, url)
		if err != nil {
			return Size{}, err
		}
		c.mu.Lock()
		c.sizes[url] = s
		c.mu.Unlock()
		return s, nil
	})

	select {
	case <-ctx.Done():
		return Size{}, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return Size{}, r.Err
		}
		return r.Val.(Size), nil
	}
}

// Forget drops a cached entry, for example after the file changed on disk.
func (c *Cache) Forget(url string) {
	c.mu.Lock()
	delete(c.sizes, url)
	c.mu.Unlock()
}

// Len returns the number of cached sizes.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sizes)
}
