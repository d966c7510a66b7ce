package bridge

import "sync"

// deviceQueue holds the pending requests of one device. At most one of them
// is in flight at a time, tracked by busy.
type deviceQueue struct {
	deviceID uint64

	mu    sync.Mutex
	items []*workItem
	busy  int
}

func (q *deviceQueue) push(item *workItem) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, item)
}

// popReady removes the head of the queue unless the device is busy.
func (q *deviceQueue) popReady() *workItem {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.busy != 0 || len(q.items) == 0 {
		return nil
	}
	item := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return item
}

// remove deletes item if it is still queued.
func (q *deviceQueue) remove(item *workItem) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, it := range q.items {
		if it == item {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return true
		}
	}
	return false
}

// markBusy increments busy and returns the previous value.
func (q *deviceQueue) markBusy() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	prev := q.busy
	q.busy++
	return prev
}

// clearBusy decrements busy, never below zero, and returns the previous value.
func (q *deviceQueue) clearBusy() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	prev := q.busy
	if q.busy > 0 {
		q.busy--
	}
	return prev
}

func (q *deviceQueue) drain() []*workItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}

// queueRegistry maps device ids to their queues. Queues are created on first
// use. A nil map means the bridge is shut down.
type queueRegistry struct {
	mu     sync.Mutex
	queues map[uint64]*deviceQueue
}

func (r *queueRegistry) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queues = make(map[uint64]*deviceQueue)
}

// enqueue appends item to its device's queue, creating the queue if needed.
// It fails once the registry is torn down.
func (r *queueRegistry) enqueue(item *workItem) (created bool, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.queues == nil {
		return false, false
	}
	q, exists := r.queues[item.deviceID]
	if !exists {
		q = &deviceQueue{deviceID: item.deviceID}
		r.queues[item.deviceID] = q
	}
	item.queue = q
	q.push(item)
	return !exists, true
}

// collectReady pops at most one item from every device that is not busy.
func (r *queueRegistry) collectReady() []*workItem {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ready []*workItem
	for _, q := range r.queues {
		if item := q.popReady(); item != nil {
			ready = append(ready, item)
		}
	}
	return ready
}

// teardown empties every queue and drops the registry.
func (r *queueRegistry) teardown() []*workItem {
	r.mu.Lock()
	defer r.mu.Unlock()

	var items []*workItem
	for _, q := range r.queues {
		items = append(items, q.drain()...)
	}
	r.queues = nil
	return items
}

type queueStats struct {
	devices int
	queued  int
	busy    int
}

func (r *queueRegistry) stats() queueStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := queueStats{devices: len(r.queues)}
	for _, q := range r.queues {
		q.mu.Lock()
		s.queued += len(q.items)
		if q.busy > 0 {
			s.busy++
		}
		q.mu.Unlock()
	}
	return s
}
