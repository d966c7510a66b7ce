package bridge

import (
	"math"
	"sync"
)

// correlationTable holds in-flight requests by correlation id.
// A nil map means the bridge is shut down.
type correlationTable struct {
	mu    sync.Mutex
	items map[uint32]*workItem
}

func (t *correlationTable) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.items = make(map[uint32]*workItem)
}

// insertLocked registers item. The caller must hold t.mu.
func (t *correlationTable) insertLocked(item *workItem) bool {
	if t.items == nil {
		return false
	}
	t.items[item.correlationID] = item
	return true
}

// deleteLocked removes item if it is registered. The caller must hold t.mu.
func (t *correlationTable) deleteLocked(item *workItem) bool {
	if t.items[item.correlationID] != item {
		return false
	}
	delete(t.items, item.correlationID)
	return true
}

// take removes and returns the item registered under id.
func (t *correlationTable) take(id uint32) *workItem {
	t.mu.Lock()
	defer t.mu.Unlock()

	item, ok := t.items[id]
	if !ok {
		return nil
	}
	delete(t.items, id)
	return item
}

// remove is deleteLocked for callers that hold no lock.
func (t *correlationTable) remove(item *workItem) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.deleteLocked(item)
}

// teardown returns every registered item and drops the table.
func (t *correlationTable) teardown() []*workItem {
	t.mu.Lock()
	defer t.mu.Unlock()

	items := make([]*workItem, 0, len(t.items))
	for _, item := range t.items {
		items = append(items, item)
	}
	t.items = nil
	return items
}

func (t *correlationTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.items)
}

// idGenerator hands out correlation ids 0..MaxInt32, then wraps to 0. The
// radio core treats ids as signed 32-bit integers.
type idGenerator struct {
	mu   sync.Mutex
	next uint32
}

func (g *idGenerator) Next() uint32 {
	g.mu.Lock()
	defer g.mu.Unlock()

	id := g.next
	g.next++
	if g.next > math.MaxInt32 {
		g.next = 0
	}
	return id
}
