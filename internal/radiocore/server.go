// Package radiocore provides a fake radio core for tests and local
// development. It accepts requests on a stream listener, acknowledges them
// and delivers responses and events as datagrams, like the real co-process.
package radiocore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/zhal-ipc/zhal-go/pkg/transport"
	"github.com/zhal-ipc/zhal-go/pkg/wire"
)

// KeyRequest names the operation in a request ("getSystemStatus", ...).
// The automatic reply sets responseType to its value plus "Response".
const KeyRequest = "request"

// Server errors.
var (
	ErrNotRunning     = errors.New("radio core not running")
	ErrNoEventAddr    = errors.New("no event address configured")
	ErrUnknownRequest = errors.New("no pending request with that id")
)

// Behavior controls how the fake answers requests. It can be changed while
// the server runs.
type Behavior struct {
	// AckResult is the resultCode of every acknowledgement.
	AckResult wire.ResultCode

	// OmitAckResult sends acknowledgements without a resultCode.
	OmitAckResult bool

	// CloseWithoutAck drops the connection after reading the request.
	CloseWithoutAck bool

	// NoReply suppresses the automatic response. Use Respond to answer.
	NoReply bool

	// ReplyDelay postpones the automatic response.
	ReplyDelay time.Duration

	// ResponseResult is the resultCode of automatic responses.
	ResponseResult wire.ResultCode
}

// Config configures a Server.
type Config struct {
	// ListenAddr is the stream listen address (default 127.0.0.1:0).
	ListenAddr string

	// EventAddr is where responses and events are sent. It may also be set
	// later with SetEventAddr.
	EventAddr string

	// Behavior is the initial answering behavior.
	Behavior Behavior

	// Codec encodes the wire format (default: JSON).
	Codec wire.Codec

	// Logger is used for operational logging.
	Logger *slog.Logger
}

// Request is a request received by the fake.
type Request struct {
	ConnID    string
	RequestID uint32
	DeviceID  uint64
	Message   wire.Message
	Received  time.Time
}

// Server is a fake radio core.
type Server struct {
	config Config
	logger *slog.Logger
	codec  wire.Codec

	mu          sync.Mutex
	behavior    Behavior
	eventAddr   net.Addr
	listener    net.Listener
	events      net.PacketConn
	group       *errgroup.Group
	cancel      context.CancelFunc
	requests    []Request
	pending     map[uint32]Request
	inFlight    map[uint64]int
	maxInFlight map[uint64]int
}

// New creates a fake radio core.
func New(config Config) (*Server, error) {
	if config.ListenAddr == "" {
		config.ListenAddr = "127.0.0.1:0"
	}
	if config.Codec == nil {
		config.Codec = wire.JSONCodec{}
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}

	s := &Server{
		config:   config,
		logger:   config.Logger,
		codec:    config.Codec,
		behavior: config.Behavior,
	}
	if config.EventAddr != "" {
		addr, err := net.ResolveUDPAddr("udp4", config.EventAddr)
		if err != nil {
			return nil, fmt.Errorf("invalid event address: %w", err)
		}
		s.eventAddr = addr
	}
	s.resetLocked()
	return s, nil
}

func (s *Server) resetLocked() {
	s.requests = nil
	s.pending = make(map[uint32]Request)
	s.inFlight = make(map[uint64]int)
	s.maxInFlight = make(map[uint64]int)
}

// Start opens the listener and the datagram socket and starts serving.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return errors.New("radio core already running")
	}

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", s.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	events, err := lc.ListenPacket(ctx, "udp4", "127.0.0.1:0")
	if err != nil {
		listener.Close()
		return fmt.Errorf("failed to open datagram socket: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	group, groupCtx := errgroup.WithContext(runCtx)

	s.listener = listener
	s.events = events
	s.group = group
	s.cancel = cancel

	group.Go(func() error {
		<-groupCtx.Done()
		listener.Close()
		return nil
	})
	group.Go(func() error {
		return s.acceptLoop(groupCtx, listener)
	})

	s.logger.Info("radio core listening", "addr", listener.Addr().String())
	return nil
}

// Stop closes the server and waits for its goroutines. Pending requests and
// counters are kept until Reset.
func (s *Server) Stop() error {
	s.mu.Lock()
	if s.listener == nil {
		s.mu.Unlock()
		return nil
	}
	cancel, group, events := s.cancel, s.group, s.events
	s.mu.Unlock()

	cancel()
	err := group.Wait()
	events.Close()

	s.mu.Lock()
	s.listener = nil
	s.events = nil
	s.group = nil
	s.mu.Unlock()

	s.logger.Info("radio core stopped")
	return err
}

// Addr returns the stream listener address.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Port returns the stream listener port.
func (s *Server) Port() int {
	if addr, ok := s.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return 0
}

// SetEventAddr sets where responses and events are delivered.
func (s *Server) SetEventAddr(addr net.Addr) {
	s.mu.Lock()
	s.eventAddr = addr
	s.mu.Unlock()
}

// SetBehavior replaces the answering behavior.
func (s *Server) SetBehavior(b Behavior) {
	s.mu.Lock()
	s.behavior = b
	s.mu.Unlock()
}

// Reset forgets recorded requests and counters.
func (s *Server) Reset() {
	s.mu.Lock()
	s.resetLocked()
	s.mu.Unlock()
}

// Requests returns the requests received so far, in arrival order.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.requests))
	copy(out, s.requests)
	return out
}

// Pending returns the ids of acknowledged requests that have not been
// answered yet.
func (s *Server) Pending() []uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]uint32, 0, len(s.pending))
	for id := range s.pending {
		ids = append(ids, id)
	}
	return ids
}

// MaxInFlight returns the highest number of unanswered requests seen at once
// for deviceID.
func (s *Server) MaxInFlight(deviceID uint64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxInFlight[deviceID]
}

// Forget drops a pending request without answering it.
func (s *Server) Forget(requestID uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if req, ok := s.pending[requestID]; ok {
		delete(s.pending, requestID)
		s.inFlight[req.DeviceID]--
	}
}

// Respond answers a pending request. fields are merged into the response;
// resultCode defaults to OK and responseType is derived from the request.
func (s *Server) Respond(requestID uint32, fields wire.Message) error {
	s.mu.Lock()
	req, ok := s.pending[requestID]
	if ok {
		delete(s.pending, requestID)
		s.inFlight[req.DeviceID]--
	}
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownRequest, requestID)
	}

	resp := wire.Message{
		wire.KeyEventType:  wire.EventTypeIPCResponse,
		wire.KeyRequestID:  requestID,
		wire.KeyResultCode: int(wire.ResultOK),
	}
	if op, ok := req.Message.String(KeyRequest); ok {
		resp[wire.KeyResponseType] = op + "Response"
	}
	for k, v := range fields {
		resp[k] = v
	}
	return s.SendEvent(resp)
}

// SendEvent delivers msg as a datagram to the event address.
func (s *Server) SendEvent(msg wire.Message) error {
	s.mu.Lock()
	events, addr := s.events, s.eventAddr
	s.mu.Unlock()

	if events == nil {
		return ErrNotRunning
	}
	if addr == nil {
		return ErrNoEventAddr
	}

	data, err := s.codec.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode datagram: %w", err)
	}
	if _, err := events.WriteTo(data, addr); err != nil {
		return fmt.Errorf("failed to send datagram: %w", err)
	}
	return nil
}

func (s *Server) acceptLoop(ctx context.Context, listener net.Listener) error {
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept failed: %w", err)
		}

		s.mu.Lock()
		group := s.group
		s.mu.Unlock()
		group.Go(func() error {
			s.serveConn(ctx, conn)
			return nil
		})
	}
}

// serveConn handles one request/acknowledge exchange.
func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	connID := uuid.New().String()
	_ = conn.SetDeadline(time.Now().Add(transport.DefaultReceiveTimeout))

	payload, err := transport.NewFrameReader(conn, transport.RequestByteOrder).ReadFrame()
	if err != nil {
		s.logger.Debug("read request failed", "conn_id", connID, "error", err)
		return
	}
	msg, err := s.codec.Unmarshal(payload)
	if err != nil {
		s.logger.Warn("malformed request", "conn_id", connID, "error", err)
		return
	}

	req := Request{ConnID: connID, Message: msg, Received: time.Now()}
	if id, ok := msg.Uint(wire.KeyRequestID); ok {
		req.RequestID = uint32(id)
	}
	if eui, ok := msg.String(wire.KeyEUI64); ok {
		req.DeviceID, _ = wire.ParseEUI64(eui)
	} else if eui, ok := msg.Uint(wire.KeyEUI64); ok {
		req.DeviceID = eui
	}

	s.mu.Lock()
	behavior := s.behavior
	s.requests = append(s.requests, req)
	accepted := !behavior.CloseWithoutAck && behavior.AckResult.IsSuccess()
	if accepted {
		s.pending[req.RequestID] = req
		s.inFlight[req.DeviceID]++
		if n := s.inFlight[req.DeviceID]; n > s.maxInFlight[req.DeviceID] {
			s.maxInFlight[req.DeviceID] = n
		}
	}
	s.mu.Unlock()

	s.logger.Debug("received request",
		"conn_id", connID,
		"request_id", req.RequestID,
		"request", map[string]any(wire.Redact(msg)))

	if behavior.CloseWithoutAck {
		return
	}

	ack := wire.Message{}
	if !behavior.OmitAckResult {
		ack[wire.KeyResultCode] = int(behavior.AckResult)
	}
	data, err := s.codec.Marshal(ack)
	if err != nil {
		s.logger.Error("encode ack failed", "error", err)
		return
	}
	if err := transport.NewFrameWriter(conn, transport.AckByteOrder).WriteFrame(data); err != nil {
		s.logger.Debug("write ack failed", "conn_id", connID, "error", err)
		return
	}

	if !accepted || behavior.NoReply {
		return
	}
	s.reply(ctx, req.RequestID, behavior)
}

func (s *Server) reply(ctx context.Context, requestID uint32, behavior Behavior) {
	if behavior.ReplyDelay > 0 {
		timer := time.NewTimer(behavior.ReplyDelay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
	}

	fields := wire.Message{wire.KeyResultCode: int(behavior.ResponseResult)}
	if err := s.Respond(requestID, fields); err != nil && !errors.Is(err, ErrUnknownRequest) {
		s.logger.Warn("send response failed", "request_id", requestID, "error", err)
	}
}
