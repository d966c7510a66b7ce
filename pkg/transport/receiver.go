package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zhal-ipc/zhal-go/pkg/log"
	"github.com/zhal-ipc/zhal-go/pkg/wire"
)

// Datagram socket constants.
const (
	// DefaultEventPort is the well-known port the radio core sends to.
	DefaultEventPort = 8711

	// MaxDatagramSize bounds the receive buffer.
	MaxDatagramSize = 64 * 1024

	// readErrorBackoff paces retries after a failed read.
	readErrorBackoff = 10 * time.Millisecond
)

// ErrReceiverRunning is returned by Start on a receiver that is already running.
var ErrReceiverRunning = errors.New("receiver already running")

// ListenDatagram binds the event socket. A loopback producer host binds the
// loopback address; any other host binds all interfaces.
func ListenDatagram(ctx context.Context, producerHost string, port int) (net.PacketConn, error) {
	bindHost := "0.0.0.0"
	if isLoopbackHost(producerHost) {
		bindHost = "127.0.0.1"
	}

	lc := net.ListenConfig{Control: reuseControl}
	conn, err := lc.ListenPacket(ctx, "udp4", net.JoinHostPort(bindHost, strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("failed to bind event socket: %w", err)
	}
	return conn, nil
}

func isLoopbackHost(host string) bool {
	if host == "localhost" {
		return true
	}
	addr, err := netip.ParseAddr(host)
	return err == nil && addr.IsLoopback()
}

// IsLoopbackAddr reports whether addr is a loopback UDP or TCP address.
func IsLoopbackAddr(addr net.Addr) bool {
	switch a := addr.(type) {
	case *net.UDPAddr:
		return a.IP.IsLoopback()
	case *net.TCPAddr:
		return a.IP.IsLoopback()
	case nil:
		return false
	default:
		ap, err := netip.ParseAddrPort(addr.String())
		return err == nil && ap.Addr().IsLoopback()
	}
}

// ReceiverConfig configures a Receiver.
type ReceiverConfig struct {
	// Conn is the bound datagram socket. The receiver closes it on stop.
	Conn net.PacketConn

	// Codec decodes datagrams (default: JSON).
	Codec wire.Codec

	// OnResponse receives ipcResponse messages.
	OnResponse func(msg wire.Message)

	// OnEvent receives every other message.
	OnEvent func(msg wire.Message)

	// Logger is used for operational logging.
	Logger *slog.Logger

	// ProtocolLogger receives capture events. Optional.
	ProtocolLogger log.Logger
}

// ReceiverStats counts datagrams by outcome.
type ReceiverStats struct {
	Received   uint64
	Rejected   uint64
	Malformed  uint64
	Dispatched uint64
	ReadErrors uint64
}

// Receiver reads datagrams from the radio core and hands each one to a
// callback on its own goroutine.
type Receiver struct {
	config ReceiverConfig

	received   atomic.Uint64
	rejected   atomic.Uint64
	malformed  atomic.Uint64
	dispatched atomic.Uint64
	readErrors atomic.Uint64

	mu       sync.Mutex
	cancel   context.CancelFunc
	loopDone chan struct{}
	handlers sync.WaitGroup

	closeOnce sync.Once
	closeErr  error
}

// NewReceiver creates a Receiver.
func NewReceiver(config ReceiverConfig) (*Receiver, error) {
	if config.Conn == nil {
		return nil, fmt.Errorf("conn is required")
	}
	if config.Codec == nil {
		config.Codec = wire.JSONCodec{}
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	if config.OnResponse == nil {
		config.OnResponse = func(wire.Message) {}
	}
	if config.OnEvent == nil {
		config.OnEvent = func(wire.Message) {}
	}
	return &Receiver{config: config}, nil
}

// Addr returns the local address of the socket.
func (r *Receiver) Addr() net.Addr {
	return r.config.Conn.LocalAddr()
}

// Start runs the receive loop in the background until ctx is cancelled or
// Stop is called.
func (r *Receiver) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.loopDone != nil {
		return ErrReceiverRunning
	}

	ctx, r.cancel = context.WithCancel(ctx)
	r.loopDone = make(chan struct{})
	go func(done chan struct{}) {
		defer close(done)
		if err := r.Run(ctx); err != nil {
			r.config.Logger.Error("receive loop failed", "error", err)
		}
	}(r.loopDone)
	return nil
}

// Stop ends the receive loop, closes the socket and waits for in-progress
// callbacks to return. Callbacks must not call Stop.
func (r *Receiver) Stop() error {
	r.mu.Lock()
	cancel, done := r.cancel, r.loopDone
	r.mu.Unlock()

	if cancel == nil {
		return r.closeConn()
	}
	cancel()
	<-done
	r.handlers.Wait()
	return nil
}

// Run receives datagrams until ctx is cancelled. Cancellation closes the
// socket, which unblocks the pending read. Other read errors are counted
// and the loop carries on.
func (r *Receiver) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { r.closeConn() })
	defer stop()

	r.logState("", "running", "")
	defer r.logState("running", "stopped", "")

	buf := make([]byte, MaxDatagramSize)
	for {
		n, from, err := r.config.Conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			// Transient socket errors must not end the loop.
			r.readErrors.Add(1)
			r.config.Logger.Warn("failed to receive datagram", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(readErrorBackoff):
			}
			continue
		}

		payload := make([]byte, n)
		copy(payload, buf[:n])
		r.HandleDatagram(payload, from)
	}
}

// HandleDatagram validates and dispatches one datagram.
func (r *Receiver) HandleDatagram(payload []byte, from net.Addr) {
	r.received.Add(1)

	if !IsLoopbackAddr(from) {
		r.rejected.Add(1)
		r.config.Logger.Warn("dropping datagram from foreign source", "from", addrString(from), "size", len(payload))
		r.logDrop(from, "foreign source", nil)
		return
	}

	msg, err := r.config.Codec.Unmarshal(payload)
	if err != nil {
		r.malformed.Add(1)
		r.config.Logger.Warn("dropping malformed datagram", "from", addrString(from), "error", err)
		r.logDrop(from, err.Error(), nil)
		return
	}

	eventType, ok := msg.String(wire.KeyEventType)
	if !ok {
		r.malformed.Add(1)
		r.config.Logger.Warn("dropping datagram without event type", "from", addrString(from))
		r.logDrop(from, "missing "+wire.KeyEventType, msg)
		return
	}

	r.config.Logger.Debug("received datagram",
		"from", addrString(from),
		"event_type", eventType,
		"payload", map[string]any(wire.Redact(msg)))
	r.logMessage(from, msg)

	handler := r.config.OnEvent
	if eventType == wire.EventTypeIPCResponse {
		handler = r.config.OnResponse
	}

	r.dispatched.Add(1)
	r.handlers.Add(1)
	go func() {
		defer r.handlers.Done()
		handler(msg)
	}()
}

// Stats returns a snapshot of the datagram counters.
func (r *Receiver) Stats() ReceiverStats {
	return ReceiverStats{
		Received:   r.received.Load(),
		Rejected:   r.rejected.Load(),
		Malformed:  r.malformed.Load(),
		Dispatched: r.dispatched.Load(),
		ReadErrors: r.readErrors.Load(),
	}
}

func (r *Receiver) closeConn() error {
	r.closeOnce.Do(func() {
		r.closeErr = r.config.Conn.Close()
	})
	return r.closeErr
}

func addrString(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	return addr.String()
}

func (r *Receiver) logMessage(from net.Addr, msg wire.Message) {
	if r.config.ProtocolLogger == nil {
		return
	}
	r.config.ProtocolLogger.Log(log.Event{
		Timestamp:     time.Now(),
		Direction:     log.DirectionIn,
		Channel:       log.ChannelDatagram,
		Category:      log.CategoryMessage,
		RemoteAddr:    addrString(from),
		DeviceID:      deviceOf(msg),
		CorrelationID: correlationOf(msg),
		Message:       log.NewMessageEvent(msg),
	})
}

func (r *Receiver) logDrop(from net.Addr, reason string, msg wire.Message) {
	if r.config.ProtocolLogger == nil {
		return
	}
	event := log.Event{
		Timestamp:  time.Now(),
		Direction:  log.DirectionIn,
		Channel:    log.ChannelDatagram,
		Category:   log.CategoryDrop,
		RemoteAddr: addrString(from),
		Error:      &log.ErrorEventData{Message: reason, Context: "receive"},
	}
	if msg != nil {
		event.Message = log.NewMessageEvent(msg)
	}
	r.config.ProtocolLogger.Log(event)
}

func (r *Receiver) logState(oldState, newState, reason string) {
	if r.config.ProtocolLogger == nil {
		return
	}
	r.config.ProtocolLogger.Log(log.Event{
		Timestamp: time.Now(),
		Channel:   log.ChannelDatagram,
		Category:  log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityReceiver,
			OldState: oldState,
			NewState: newState,
			Reason:   reason,
		},
	})
}

func deviceOf(msg wire.Message) string {
	s, _ := msg.String(wire.KeyEUI64)
	return s
}
