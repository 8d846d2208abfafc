package rangereader

// cacheSlots is the fixed chunk cache capacity. Two slots serve the two
// dominant access patterns cheaply: pure sequential streaming, and small
// backward seeks into the previous chunk.
const cacheSlots = 2

type cacheEntry struct {
	start int64
	data  []byte
}

// chunkCache is a bounded least-recently-used map from aligned chunk start
// offset to chunk bytes. Entries are ordered oldest first; install and
// lookup both promote to most-recently-used, eviction drops the head.
//
// The cache itself is not locked; the owning Reader serializes access.
type chunkCache struct {
	entries []cacheEntry
}

func newChunkCache() *chunkCache {
	return &chunkCache{entries: make([]cacheEntry, 0, cacheSlots)}
}

// install inserts or refreshes the chunk at start and promotes it to
// most-recently-used, evicting the least-recently-used entry when a third
// distinct key would be added.
func (c *chunkCache) install(start int64, data []byte) {
	for i, e := range c.entries {
		if e.start == start {
			c.entries = append(c.entries[:i], c.entries[i+1:]...)
			break
		}
	}
	c.entries = append(c.entries, cacheEntry{start: start, data: data})
	if len(c.entries) > cacheSlots {
		c.entries = c.entries[1:]
	}
}

// lookup returns the chunk installed at start, promoting it to
// most-recently-used on a hit.
func (c *chunkCache) lookup(start int64) ([]byte, bool) {
	for i, e := range c.entries {
		if e.start == start {
			c.entries = append(c.entries[:i], c.entries[i+1:]...)
			c.entries = append(c.entries, e)
			return e.data, true
		}
	}
	return nil, false
}

// clear drops all resident chunks. Used when a full-body response reveals
// the remote content changed under us.
func (c *chunkCache) clear() {
	c.entries = c.entries[:0]
}

func (c *chunkCache) len() int {
	return len(c.entries)
}
