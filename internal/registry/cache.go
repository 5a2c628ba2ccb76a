package registry

// boundedCache is a small fixed-capacity string map with insertion-order
// eviction: when full, the oldest entry is dropped to make room. Capacities
// are small constants chosen to bound memory, not to maximize hit rate.
type boundedCache struct {
	capacity int
	entries  map[string]string
	order    []string
}

func newBoundedCache(capacity int) *boundedCache {
	return &boundedCache{
		capacity: capacity,
		entries:  make(map[string]string, capacity),
	}
}

// get returns the cached value for key.
func (c *boundedCache) get(key string) (string, bool) {
	v, ok := c.entries[key]
	return v, ok
}

// put stores key→value, evicting the oldest entry when over capacity.
// Updating an existing key does not change its insertion position.
func (c *boundedCache) put(key, value string) {
	if _, exists := c.entries[key]; exists {
		c.entries[key] = value
		return
	}

	c.entries[key] = value
	c.order = append(c.order, key)

	for len(c.entries) > c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
}

// len returns the number of cached entries.
func (c *boundedCache) len() int {
	return len(c.entries)
}
