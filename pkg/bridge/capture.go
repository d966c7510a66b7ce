package bridge

import (
	"time"

	"github.com/zhal-ipc/zhal-go/pkg/log"
	"github.com/zhal-ipc/zhal-go/pkg/wire"
)

const (
	entityBridge = log.StateEntityBridge
	entityWorker = log.StateEntityWorker
)

func (b *Bridge) logState(entity log.StateEntity, oldState, newState, reason string) {
	if b.capture == nil {
		return
	}
	b.capture.Log(log.Event{
		Timestamp: time.Now(),
		Channel:   log.ChannelBridge,
		Category:  log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   entity,
			OldState: oldState,
			NewState: newState,
			Reason:   reason,
		},
	})
}

func (b *Bridge) logRequest(item *workItem, oldState, newState, reason string) {
	if b.capture == nil {
		return
	}
	b.capture.Log(log.Event{
		Timestamp:     time.Now(),
		Channel:       log.ChannelBridge,
		Category:      log.CategoryState,
		DeviceID:      wire.FormatEUI64(item.deviceID),
		CorrelationID: log.Uint32(item.correlationID),
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityRequest,
			OldState: oldState,
			NewState: newState,
			Reason:   reason,
		},
	})
}

func (b *Bridge) logDrop(msg wire.Message, id uint32) {
	if b.capture == nil {
		return
	}
	b.capture.Log(log.Event{
		Timestamp:     time.Now(),
		Direction:     log.DirectionIn,
		Channel:       log.ChannelBridge,
		Category:      log.CategoryDrop,
		CorrelationID: log.Uint32(id),
		Message:       log.NewMessageEvent(msg),
		Error:         &log.ErrorEventData{Message: "no pending request", Context: "correlate"},
	})
}
