package bridge

import (
	"context"
	"fmt"

	"github.com/zhal-ipc/zhal-go/pkg/wire"
)

// wakeWorker nudges the worker loop. Wakeups coalesce; none is lost because
// the channel keeps one pending signal.
func (b *Bridge) wakeWorker() {
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

// runWorker sends queued requests, one per idle device per pass, until ctx
// is cancelled.
func (b *Bridge) runWorker(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	b.logState(entityWorker, "", "running", "")
	defer b.logState(entityWorker, "running", "stopped", "")

	for {
		batch := b.queues.collectReady()
		if len(batch) == 0 {
			select {
			case <-ctx.Done():
				return
			case <-b.wake:
			}
			continue
		}

		for _, item := range batch {
			b.workOn(ctx, item)
		}

		if ctx.Err() != nil {
			return
		}
	}
}

// workOn registers item for correlation and transmits it.
func (b *Bridge) workOn(ctx context.Context, item *workItem) {
	q := item.queue
	if prev := q.markBusy(); prev != 0 {
		b.logger.Error("device queue already busy", "eui64", wire.FormatEUI64(item.deviceID), "busy", prev)
	}

	// Registration happens before transmission: the response may arrive
	// before the acknowledgement has been read.
	b.table.mu.Lock()
	item.mu.Lock()
	if item.timedOut {
		item.mu.Unlock()
		b.table.mu.Unlock()
		q.clearBusy()
		b.logger.Debug("dropping abandoned request", "request_id", item.correlationID)
		return
	}
	registered := b.table.insertLocked(item)
	item.mu.Unlock()
	b.table.mu.Unlock()

	if !registered {
		q.clearBusy()
		item.complete(nil, ErrShutdown)
		return
	}

	b.logger.Debug("sending request",
		"request_id", item.correlationID,
		"eui64", wire.FormatEUI64(item.deviceID),
		"request", map[string]any(wire.Redact(item.request)))
	b.logRequest(item, "queued", "in-flight", "")

	_, err := b.tx.Transmit(ctx, item.request)
	if err == nil {
		return
	}

	if ctx.Err() != nil {
		err = ErrShutdown
	} else {
		b.logger.Warn("transmit failed, aborting request",
			"request_id", item.correlationID,
			"eui64", wire.FormatEUI64(item.deviceID),
			"error", err)
		err = fmt.Errorf("%w: %w", ErrTransmitFailed, err)
	}

	if b.table.remove(item) {
		if prev := q.clearBusy(); prev != 1 {
			b.logger.Error("device queue busy count inconsistent", "eui64", wire.FormatEUI64(item.deviceID), "busy", prev)
		}
	}
	if item.complete(nil, err) {
		b.logRequest(item, "in-flight", "failed", err.Error())
	}
	b.wakeWorker()
}
