package bridge

import (
	"sync"

	"github.com/zhal-ipc/zhal-go/pkg/wire"
)

// workItem is one request from submission to completion. It is shared by
// pointer between the caller, its device queue, the worker batch and the
// correlation table.
type workItem struct {
	deviceID      uint64
	correlationID uint32
	request       wire.Message
	queue         *deviceQueue

	// mu guards the fields below. It is always the last lock taken.
	mu       sync.Mutex
	response wire.Message
	err      error
	finished bool
	timedOut bool

	// done is closed once, when the item finishes.
	done chan struct{}
}

func newWorkItem(deviceID uint64, correlationID uint32, request wire.Message) *workItem {
	return &workItem{
		deviceID:      deviceID,
		correlationID: correlationID,
		request:       request,
		done:          make(chan struct{}),
	}
}

// completeLocked records the outcome and wakes the caller. Only the first
// call has an effect. The caller must hold w.mu.
func (w *workItem) completeLocked(response wire.Message, err error) bool {
	if w.finished {
		return false
	}
	w.finished = true
	w.response = response
	w.err = err
	close(w.done)
	return true
}

// complete is completeLocked for callers that hold no lock.
func (w *workItem) complete(response wire.Message, err error) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.completeLocked(response, err)
}

// result returns the recorded outcome.
func (w *workItem) result() (wire.Message, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.response, w.err
}
