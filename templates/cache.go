package templates

import (
	"sync"
	"time"
)

type pageKey struct {
	sort string
	page int
}

type cachedPage struct {
	page   *Page
	stored time.Time
}

// listCache keeps recent list pages per user. It is a convenience layer:
// every mutation invalidates the owner's entries and sign-out drops them.
// Each invalidation bumps the user's generation; a page read before the
// bump is not stored after it.
type listCache struct {
	mu    sync.RWMutex
	ttl   time.Duration
	now   func() time.Time
	users map[string]map[pageKey]cachedPage
	gens  map[string]uint64
}

func newListCache(ttl time.Duration) *listCache {
	return &listCache{
		ttl:   ttl,
		now:   time.Now,
		users: make(map[string]map[pageKey]cachedPage),
		gens:  make(map[string]uint64),
	}
}

func (c *listCache) get(userID string, k pageKey) (*Page, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.users[userID][k]
	if !ok || c.now().Sub(e.stored) > c.ttl {
		return nil, false
	}
	return e.page, true
}

// generation returns the token to pass to put for a page read now.
func (c *listCache) generation(userID string) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gens[userID]
}

// put stores p unless userID was invalidated since gen was taken.
func (c *listCache) put(userID string, gen uint64, k pageKey, p *Page) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens[userID] != gen {
		return
	}
	m := c.users[userID]
	if m == nil {
		m = make(map[pageKey]cachedPage)
		c.users[userID] = m
	}
	m[k] = cachedPage{page: p, stored: c.now()}
}

func (c *listCache) invalidate(userID string) {
	c.mu.Lock()
	delete(c.users, userID)
	c.gens[userID]++
	c.mu.Unlock()
}
