package event

import "sync"

// SeqCache remembers the last APS sequence number seen per device.
type SeqCache struct {
	mu   sync.Mutex
	last map[uint64]uint8
}

// NewSeqCache creates an empty cache.
func NewSeqCache() *SeqCache {
	return &SeqCache{last: make(map[uint64]uint8)}
}

// IsDuplicate reports whether seq equals the last number recorded for eui64.
// A differing number replaces the cached one.
func (c *SeqCache) IsDuplicate(eui64 uint64, seq uint8) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if last, ok := c.last[eui64]; ok && last == seq {
		return true
	}
	c.last[eui64] = seq
	return false
}

// Len returns the number of devices in the cache.
func (c *SeqCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.last)
}

// Reset forgets all devices.
func (c *SeqCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last = make(map[uint64]uint8)
}
