package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zhal-ipc/zhal-go/pkg/event"
	"github.com/zhal-ipc/zhal-go/pkg/log"
	"github.com/zhal-ipc/zhal-go/pkg/transport"
	"github.com/zhal-ipc/zhal-go/pkg/wire"
)

// transmitter performs the synchronous request/acknowledge exchange.
type transmitter interface {
	Transmit(ctx context.Context, req wire.Message) (wire.Message, error)
}

// Bridge serializes requests per device, correlates asynchronous responses
// with their callers and dispatches unsolicited events.
type Bridge struct {
	config     Config
	logger     *slog.Logger
	capture    log.Logger
	tx         transmitter
	dispatcher *event.Dispatcher

	queues queueRegistry
	table  correlationTable
	ids    idGenerator
	wake   chan struct{}

	initialized atomic.Bool

	// lifecycle serializes Start and Stop. mu guards the fields below and is
	// never held while waiting, so handlers may call Stats during Stop.
	lifecycle    sync.Mutex
	mu           sync.Mutex
	state        State
	receiver     *transport.Receiver
	cancelWorker context.CancelFunc
	workerDone   chan struct{}
}

// New creates a bridge. Call Start before sending requests.
func New(config Config) (*Bridge, error) {
	if config.Codec == nil {
		config.Codec = wire.JSONCodec{}
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	tx, err := transport.NewTransmitter(transport.TransmitterConfig{
		Address:        config.RadioCoreAddress(),
		ConnectTimeout: config.ConnectTimeout,
		SendTimeout:    config.SendTimeout,
		ReceiveTimeout: config.ReceiveTimeout,
		Codec:          config.Codec,
		Logger:         config.Logger,
		ProtocolLogger: config.ProtocolLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create transmitter: %w", err)
	}

	return &Bridge{
		config:     config,
		logger:     config.Logger,
		capture:    config.ProtocolLogger,
		tx:         tx,
		dispatcher: event.NewDispatcher(config.Handler, config.Logger),
		wake:       make(chan struct{}, 1),
	}, nil
}

// Start binds the event socket and starts the receiver and worker. ctx
// bounds startup only; call Stop to shut the bridge down.
func (b *Bridge) Start(ctx context.Context) error {
	b.lifecycle.Lock()
	defer b.lifecycle.Unlock()

	if b.State() == StateRunning {
		return ErrAlreadyStarted
	}

	conn, err := transport.ListenDatagram(ctx, b.config.RadioCoreHost, b.config.EventPort)
	if err != nil {
		return err
	}
	receiver, err := transport.NewReceiver(transport.ReceiverConfig{
		Conn:           conn,
		Codec:          b.config.Codec,
		OnResponse:     b.HandleResponse,
		OnEvent:        b.HandleEvent,
		Logger:         b.logger,
		ProtocolLogger: b.capture,
	})
	if err != nil {
		conn.Close()
		return err
	}

	b.queues.reset()
	b.table.reset()
	b.dispatcher.Reset()

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	if err := receiver.Start(runCtx); err != nil {
		cancel()
		conn.Close()
		return err
	}

	b.cancelWorker = cancel
	b.workerDone = make(chan struct{})
	go b.runWorker(runCtx, b.workerDone)

	b.mu.Lock()
	b.receiver = receiver
	old := b.state
	b.state = StateRunning
	b.mu.Unlock()
	b.initialized.Store(true)

	b.logger.Info("bridge started",
		"radio_core", b.config.RadioCoreAddress(),
		"event_addr", receiver.Addr().String())
	b.logState(entityBridge, old.String(), StateRunning.String(), "")
	return nil
}

// Stop shuts the bridge down. Every pending caller is woken with
// ErrShutdown and later submissions fail with ErrNotInitialized. Stop must
// not be called from an event handler.
func (b *Bridge) Stop() error {
	b.lifecycle.Lock()
	defer b.lifecycle.Unlock()

	if b.State() != StateRunning {
		return nil
	}
	b.initialized.Store(false)
	b.setState(StateStopping)

	if err := b.receiver.Stop(); err != nil {
		b.logger.Warn("stopping receiver failed", "error", err)
	}

	b.cancelWorker()
	b.wakeWorker()
	<-b.workerDone

	pending := b.table.teardown()
	pending = append(pending, b.queues.teardown()...)
	for _, item := range pending {
		if item.complete(nil, ErrShutdown) {
			b.logRequest(item, "", "shutdown", "")
		}
	}
	b.dispatcher.Reset()

	b.setState(StateStopped)
	b.logger.Info("bridge stopped", "woken", len(pending))
	b.logState(entityBridge, StateRunning.String(), StateStopped.String(), "")
	return nil
}

func (b *Bridge) setState(state State) {
	b.mu.Lock()
	b.state = state
	b.mu.Unlock()
}

// IsInitialized reports whether the bridge accepts requests.
func (b *Bridge) IsInitialized() bool {
	return b.initialized.Load()
}

// State returns the lifecycle state.
func (b *Bridge) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// EventAddr returns the bound event socket address, or nil before Start.
func (b *Bridge) EventAddr() net.Addr {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.receiver == nil {
		return nil
	}
	return b.receiver.Addr()
}

// Stats returns a snapshot of queue occupancy.
func (b *Bridge) Stats() Stats {
	b.mu.Lock()
	state, receiver := b.state, b.receiver
	b.mu.Unlock()

	qs := b.queues.stats()
	s := Stats{
		State:    state,
		Devices:  qs.devices,
		Queued:   qs.queued,
		Busy:     qs.busy,
		InFlight: b.table.len(),
	}
	if receiver != nil {
		s.Receiver = receiver.Stats()
	}
	return s
}

// SendRequest queues req for deviceID and blocks until the radio core
// responds, the timeout expires or ctx is cancelled. A timeout <= 0 uses the
// configured default. req is not modified; a copy carrying the correlation
// id is sent.
func (b *Bridge) SendRequest(ctx context.Context, deviceID uint64, req wire.Message, timeout time.Duration) (wire.Message, error) {
	if !b.IsInitialized() {
		return nil, ErrNotInitialized
	}
	if timeout <= 0 {
		timeout = b.config.DefaultRequestTimeout
	}

	id := b.ids.Next()
	request := req.Clone()
	if request == nil {
		request = wire.Message{}
	}
	request[wire.KeyRequestID] = id

	item := newWorkItem(deviceID, id, request)
	created, ok := b.queues.enqueue(item)
	if !ok {
		b.logger.Warn("already shut down, rejecting request", "eui64", wire.FormatEUI64(deviceID))
		return nil, ErrNotInitialized
	}
	if created {
		b.logger.Debug("created device queue", "eui64", wire.FormatEUI64(deviceID))
	}
	b.logRequest(item, "", "queued", "")
	b.wakeWorker()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-item.done:
		return b.finish(item)
	case <-timer.C:
		b.logger.Warn("request timed out", "request_id", id, "eui64", wire.FormatEUI64(deviceID), "timeout", timeout)
		return b.abandon(item, ErrRequestTimeout)
	case <-ctx.Done():
		return b.abandon(item, ctx.Err())
	}
}

// finish returns the outcome of a completed item and notifies the
// response observer.
func (b *Bridge) finish(item *workItem) (wire.Message, error) {
	response, err := item.result()
	if err != nil {
		return nil, err
	}
	b.logRequest(item, "in-flight", "completed", "")
	b.observe(item, response)
	return response, nil
}

// abandon withdraws an item whose caller stopped waiting. Depending on how
// far the item got, it is removed from its queue, taken out of the
// correlation table, or marked so that the worker drops it. A completion
// that already happened wins over cause.
func (b *Bridge) abandon(item *workItem, cause error) (wire.Message, error) {
	defer b.wakeWorker()

	if item.queue.remove(item) {
		b.logRequest(item, "queued", "cancelled", cause.Error())
		return nil, cause
	}

	b.table.mu.Lock()
	if b.table.deleteLocked(item) {
		b.table.mu.Unlock()
		if prev := item.queue.clearBusy(); prev != 1 {
			b.logger.Error("device queue busy count inconsistent", "eui64", wire.FormatEUI64(item.deviceID), "busy", prev)
		}
		b.logRequest(item, "in-flight", "cancelled", cause.Error())
		return nil, cause
	}

	item.mu.Lock()
	finished := item.finished
	if !finished {
		item.timedOut = true
	}
	item.mu.Unlock()
	b.table.mu.Unlock()

	if finished {
		return b.finish(item)
	}
	b.logRequest(item, "in-flight", "abandoned", cause.Error())
	return nil, cause
}

// observe reports a correlated response to the configured observer.
func (b *Bridge) observe(item *workItem, response wire.Message) {
	if b.config.OnResponse == nil {
		return
	}
	responseType, ok := response.String(wire.KeyResponseType)
	if !ok {
		return
	}
	code, ok := wire.ResultCodeOf(response)
	if !ok {
		code = wire.ResultFail
		b.logger.Warn("response has no result code, assuming failure", "request_id", item.correlationID, "code", code)
	}
	b.config.OnResponse(responseType, code)
}

// HandleResponse completes the request a response belongs to. It is called
// by the receiver for every ipcResponse datagram.
func (b *Bridge) HandleResponse(msg wire.Message) {
	defer b.wakeWorker()

	b.logger.Debug("received response", "response", map[string]any(wire.Redact(msg)))

	raw, ok := msg.Uint(wire.KeyRequestID)
	if !ok || raw > 0xFFFFFFFF {
		b.logger.Warn("response without usable request id", "request_id", msg[wire.KeyRequestID])
		return
	}
	id := uint32(raw)

	item := b.table.take(id)
	if item == nil {
		b.logger.Warn("no pending request for response, discarding", "request_id", id)
		b.logDrop(msg, id)
		return
	}

	if prev := item.queue.clearBusy(); prev == 0 {
		b.logger.Error("device queue was not busy", "eui64", wire.FormatEUI64(item.deviceID), "request_id", id)
	}

	item.mu.Lock()
	if !item.timedOut {
		item.completeLocked(msg, nil)
	}
	item.mu.Unlock()
}

// HandleEvent dispatches an unsolicited event to the configured handler.
func (b *Bridge) HandleEvent(msg wire.Message) {
	b.dispatcher.Dispatch(msg)
}

// Dispatcher returns the event dispatcher.
func (b *Bridge) Dispatcher() *event.Dispatcher {
	return b.dispatcher
}
