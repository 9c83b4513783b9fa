package templates

import (
	"testing"
	"time"
)

func TestListCache_SkipsPutAfterInvalidate(t *testing.T) {
	c := newListCache(time.Minute)
	k := pageKey{sort: SortNewest, page: 1}

	// WHAT: a page read before an invalidation is not stored after it.
	// WHY: a Create or Delete that commits between List's read and its put
	// would otherwise leave a stale page cached for the whole TTL.
	gen := c.generation("alice")
	c.invalidate("alice")
	c.put("alice", gen, k, &Page{Total: 1})
	if _, ok := c.get("alice", k); ok {
		t.Fatal("stale page cached")
	}

	gen = c.generation("alice")
	c.put("alice", gen, k, &Page{Total: 2})
	if p, ok := c.get("alice", k); !ok || p.Total != 2 {
		t.Fatalf("fresh page: %v %v", p, ok)
	}

	// Other users are unaffected by alice's invalidations.
	bobGen := c.generation("bob")
	c.invalidate("alice")
	c.put("bob", bobGen, k, &Page{Total: 3})
	if _, ok := c.get("bob", k); !ok {
		t.Fatal("bob's page dropped")
	}
}
