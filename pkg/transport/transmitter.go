package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/zhal-ipc/zhal-go/pkg/log"
	"github.com/zhal-ipc/zhal-go/pkg/wire"
)

// Transmit errors. Every failure wraps ErrTransmitFailed.
var (
	// ErrTransmitFailed indicates the request was not accepted by the radio core.
	ErrTransmitFailed = errors.New("transmit failed")

	// ErrConnectFailed indicates the stream connection could not be opened.
	ErrConnectFailed = fmt.Errorf("%w: connect", ErrTransmitFailed)

	// ErrSendFailed indicates the request frame could not be written.
	ErrSendFailed = fmt.Errorf("%w: send", ErrTransmitFailed)

	// ErrReceiveFailed indicates no well-formed acknowledgement was read.
	ErrReceiveFailed = fmt.Errorf("%w: receive", ErrTransmitFailed)

	// ErrAckRejected indicates the acknowledgement carried a non-zero or
	// missing result code.
	ErrAckRejected = fmt.Errorf("%w: rejected", ErrTransmitFailed)
)

// Default stream timeouts.
const (
	DefaultConnectTimeout = 10 * time.Second
	DefaultSendTimeout    = 10 * time.Second
	DefaultReceiveTimeout = 10 * time.Second
)

// TransmitterConfig configures a Transmitter.
type TransmitterConfig struct {
	// Address is the radio core's stream endpoint (host:port).
	Address string

	// ConnectTimeout bounds the dial (default: 10s).
	ConnectTimeout time.Duration

	// SendTimeout bounds writing the request frame (default: 10s).
	SendTimeout time.Duration

	// ReceiveTimeout bounds reading the acknowledgement (default: 10s).
	ReceiveTimeout time.Duration

	// Codec encodes requests and decodes acknowledgements (default: JSON).
	Codec wire.Codec

	// Logger is used for operational logging. Payloads are logged redacted
	// at debug level.
	Logger *slog.Logger

	// ProtocolLogger receives capture events. Optional.
	ProtocolLogger log.Logger
}

// Transmitter performs one synchronous request/acknowledge exchange per call
// on a fresh stream connection. It is safe for concurrent use.
type Transmitter struct {
	config TransmitterConfig
	dialer net.Dialer
}

// NewTransmitter creates a Transmitter, filling in defaults.
func NewTransmitter(config TransmitterConfig) (*Transmitter, error) {
	if config.Address == "" {
		return nil, fmt.Errorf("address is required")
	}
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = DefaultConnectTimeout
	}
	if config.SendTimeout == 0 {
		config.SendTimeout = DefaultSendTimeout
	}
	if config.ReceiveTimeout == 0 {
		config.ReceiveTimeout = DefaultReceiveTimeout
	}
	if config.Codec == nil {
		config.Codec = wire.JSONCodec{}
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}

	return &Transmitter{
		config: config,
		dialer: net.Dialer{Timeout: config.ConnectTimeout},
	}, nil
}

// Address returns the configured radio core endpoint.
func (t *Transmitter) Address() string {
	return t.config.Address
}

// Transmit sends req and waits for its acknowledgement. The decoded ack is
// returned on success. Cancelling ctx aborts the exchange.
func (t *Transmitter) Transmit(ctx context.Context, req wire.Message) (wire.Message, error) {
	data, err := t.config.Codec.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %v", ErrSendFailed, err)
	}

	connID := uuid.New().String()
	corrID := correlationOf(req)
	t.config.Logger.Debug("transmit request",
		"conn_id", connID,
		"address", t.config.Address,
		"request", map[string]any(wire.Redact(req)))

	conn, err := t.dialer.DialContext(ctx, "tcp", t.config.Address)
	if err != nil {
		t.logError(connID, corrID, "connect", err)
		return nil, fmt.Errorf("%w: %v", ErrConnectFailed, err)
	}
	defer conn.Close()

	// Unblock pending reads and writes when the caller goes away.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	t.logMessage(connID, corrID, conn.RemoteAddr(), log.DirectionOut, log.CategoryMessage, req)

	writer := NewFrameWriter(conn, RequestByteOrder)
	reader := NewFrameReader(conn, AckByteOrder)
	if t.config.ProtocolLogger != nil {
		writer.SetLogger(t.config.ProtocolLogger, connID)
		reader.SetLogger(t.config.ProtocolLogger, connID)
	}

	if err := conn.SetWriteDeadline(time.Now().Add(t.config.SendTimeout)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	if err := writer.WriteFrame(data); err != nil {
		t.logError(connID, corrID, "send", err)
		return nil, fmt.Errorf("%w: %w", ErrSendFailed, ctxOr(ctx, err))
	}

	if err := conn.SetReadDeadline(time.Now().Add(t.config.ReceiveTimeout)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReceiveFailed, err)
	}
	payload, err := reader.ReadFrame()
	if err != nil {
		if err == io.EOF {
			err = ErrFrameTruncated
		}
		t.logError(connID, corrID, "receive", err)
		return nil, fmt.Errorf("%w: %w", ErrReceiveFailed, ctxOr(ctx, err))
	}

	ack, err := t.config.Codec.Unmarshal(payload)
	if err != nil {
		t.logError(connID, corrID, "decode ack", err)
		return nil, fmt.Errorf("%w: %w", ErrReceiveFailed, err)
	}

	t.logMessage(connID, corrID, conn.RemoteAddr(), log.DirectionIn, log.CategoryAck, ack)
	t.config.Logger.Debug("received ack",
		"conn_id", connID,
		"ack", map[string]any(wire.Redact(ack)))

	code, ok := wire.ResultCodeOf(ack)
	if !ok {
		return ack, fmt.Errorf("%w: ack has no %s", ErrAckRejected, wire.KeyResultCode)
	}
	if !code.IsSuccess() {
		return ack, fmt.Errorf("%w: %s (%d)", ErrAckRejected, code, int(code))
	}
	return ack, nil
}

// ctxOr prefers the context error when the context ended the exchange.
func ctxOr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}

func correlationOf(msg wire.Message) *uint32 {
	id, ok := msg.Uint(wire.KeyRequestID)
	if !ok || id > 0xFFFFFFFF {
		return nil
	}
	return log.Uint32(uint32(id))
}

func (t *Transmitter) logMessage(connID string, corrID *uint32, remote net.Addr, dir log.Direction, cat log.Category, msg wire.Message) {
	if t.config.ProtocolLogger == nil {
		return
	}
	t.config.ProtocolLogger.Log(log.Event{
		Timestamp:     time.Now(),
		ConnectionID:  connID,
		Direction:     dir,
		Channel:       log.ChannelStream,
		Category:      cat,
		RemoteAddr:    remote.String(),
		CorrelationID: corrID,
		Message:       log.NewMessageEvent(msg),
	})
}

func (t *Transmitter) logError(connID string, corrID *uint32, op string, err error) {
	t.config.Logger.Debug("transmit failed", "conn_id", connID, "op", op, "error", err)
	if t.config.ProtocolLogger == nil {
		return
	}
	t.config.ProtocolLogger.Log(log.Event{
		Timestamp:     time.Now(),
		ConnectionID:  connID,
		Direction:     log.DirectionOut,
		Channel:       log.ChannelStream,
		Category:      log.CategoryError,
		RemoteAddr:    t.config.Address,
		CorrelationID: corrID,
		Error:         &log.ErrorEventData{Message: err.Error(), Context: op},
	})
}
