package bridge

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeviceQueueOneInFlight(t *testing.T) {
	var r queueRegistry
	r.reset()

	a1 := newWorkItem(1, 10, nil)
	a2 := newWorkItem(1, 11, nil)
	b1 := newWorkItem(2, 12, nil)

	created, ok := r.enqueue(a1)
	require.True(t, ok)
	assert.True(t, created)
	created, _ = r.enqueue(a2)
	assert.False(t, created)
	r.enqueue(b1)

	ready := r.collectReady()
	assert.ElementsMatch(t, []*workItem{a1, b1}, ready)

	a1.queue.markBusy()
	assert.Empty(t, r.collectReady(), "busy device must not release its next item")

	assert.Equal(t, 1, a1.queue.clearBusy())
	assert.Equal(t, []*workItem{a2}, r.collectReady())

	s := r.stats()
	assert.Equal(t, 2, s.devices)
	assert.Equal(t, 0, s.queued)
}

func TestDeviceQueueClearBusyNeverNegative(t *testing.T) {
	q := &deviceQueue{}
	assert.Equal(t, 0, q.clearBusy())
	assert.Equal(t, 0, q.busy)
	assert.Equal(t, 0, q.markBusy())
	assert.Equal(t, 1, q.markBusy())
}

func TestDeviceQueueRemove(t *testing.T) {
	var r queueRegistry
	r.reset()

	first := newWorkItem(1, 1, nil)
	second := newWorkItem(1, 2, nil)
	r.enqueue(first)
	r.enqueue(second)

	assert.True(t, second.queue.remove(second))
	assert.False(t, second.queue.remove(second))
	assert.Equal(t, []*workItem{first}, r.collectReady())
}

func TestQueueRegistryTeardown(t *testing.T) {
	var r queueRegistry
	r.reset()

	r.enqueue(newWorkItem(1, 1, nil))
	r.enqueue(newWorkItem(2, 2, nil))
	r.enqueue(newWorkItem(2, 3, nil))

	assert.Len(t, r.teardown(), 3)

	_, ok := r.enqueue(newWorkItem(3, 4, nil))
	assert.False(t, ok, "enqueue after teardown must fail")
	assert.Empty(t, r.collectReady())
}

func TestCorrelationTable(t *testing.T) {
	var tbl correlationTable
	tbl.reset()

	item := newWorkItem(1, 7, nil)
	tbl.mu.Lock()
	require.True(t, tbl.insertLocked(item))
	tbl.mu.Unlock()
	assert.Equal(t, 1, tbl.len())

	other := newWorkItem(1, 7, nil)
	assert.False(t, tbl.remove(other), "remove matches by identity")

	assert.Same(t, item, tbl.take(7))
	assert.Nil(t, tbl.take(7))
	assert.False(t, tbl.remove(item))

	tbl.mu.Lock()
	tbl.insertLocked(item)
	tbl.mu.Unlock()
	assert.Equal(t, []*workItem{item}, tbl.teardown())

	tbl.mu.Lock()
	assert.False(t, tbl.insertLocked(item), "insert after teardown must fail")
	tbl.mu.Unlock()
}

func TestIDGeneratorWraps(t *testing.T) {
	var g idGenerator
	assert.Equal(t, uint32(0), g.Next())
	assert.Equal(t, uint32(1), g.Next())

	g.next = math.MaxInt32
	assert.Equal(t, uint32(math.MaxInt32), g.Next())
	assert.Equal(t, uint32(0), g.Next())
}

func TestWorkItemCompletesOnce(t *testing.T) {
	item := newWorkItem(1, 1, nil)
	assert.True(t, item.complete(nil, ErrShutdown))
	assert.False(t, item.complete(nil, ErrRequestTimeout))

	select {
	case <-item.done:
	default:
		t.Fatal("done not closed")
	}
	_, err := item.result()
	assert.ErrorIs(t, err, ErrShutdown)
}
