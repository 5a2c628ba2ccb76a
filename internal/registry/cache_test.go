package registry

import "testing"

func TestBoundedCacheEviction(t *testing.T) {
	c := newBoundedCache(3)

	c.put("a", "1")
	c.put("b", "2")
	c.put("c", "3")
	c.put("d", "4") // evicts a

	if _, ok := c.get("a"); ok {
		t.Error("expected oldest entry to be evicted")
	}
	for _, key := range []string{"b", "c", "d"} {
		if _, ok := c.get(key); !ok {
			t.Errorf("expected %q to survive eviction", key)
		}
	}
	if c.len() != 3 {
		t.Errorf("len = %d, want 3", c.len())
	}
}

func TestBoundedCacheUpdateKeepsOrder(t *testing.T) {
	c := newBoundedCache(2)

	c.put("a", "1")
	c.put("b", "2")
	c.put("a", "updated") // update, not insert
	c.put("c", "3")       // evicts a (still oldest)

	if _, ok := c.get("a"); ok {
		t.Error("updating an entry must not refresh its eviction order")
	}
	if v, ok := c.get("b"); !ok || v != "2" {
		t.Errorf("get(b) = %q, %v; want 2, true", v, ok)
	}
}
