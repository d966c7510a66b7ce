package log

import (
	"time"

	"github.com/zhal-ipc/zhal-go/pkg/wire"
)

// Event is one captured protocol event.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID identifies the stream connection (UUID) or is empty for
	// datagram traffic.
	ConnectionID string `cbor:"2,keyasint,omitempty"`

	// Direction indicates message flow relative to the bridge.
	Direction Direction `cbor:"3,keyasint"`

	// Channel the event was captured on.
	Channel Channel `cbor:"4,keyasint"`

	// Category classifies the event.
	Category Category `cbor:"5,keyasint"`

	// RemoteAddr is the peer address (IP:port).
	RemoteAddr string `cbor:"6,keyasint,omitempty"`

	// DeviceID is the target device (16 hex digits), when known.
	DeviceID string `cbor:"7,keyasint,omitempty"`

	// CorrelationID is the requestId of the exchange, when known.
	CorrelationID *uint32 `cbor:"8,keyasint,omitempty"`

	// Type-specific payload (at most one of these is set).
	Frame       *FrameEvent       `cbor:"10,keyasint,omitempty"`
	Message     *MessageEvent     `cbor:"11,keyasint,omitempty"`
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"`
	Error       *ErrorEventData   `cbor:"13,keyasint,omitempty"`
}

// Direction indicates the direction of message flow.
type Direction uint8

const (
	// DirectionIn indicates traffic from the radio core.
	DirectionIn Direction = 0
	// DirectionOut indicates traffic to the radio core.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Channel identifies the socket an event belongs to.
type Channel uint8

const (
	// ChannelStream is the request/acknowledgement connection.
	ChannelStream Channel = 0
	// ChannelDatagram is the response/event socket.
	ChannelDatagram Channel = 1
	// ChannelBridge covers bridge-internal state (queues, worker, shutdown).
	ChannelBridge Channel = 2
)

// String returns the channel name.
func (c Channel) String() string {
	switch c {
	case ChannelStream:
		return "STREAM"
	case ChannelDatagram:
		return "DATAGRAM"
	case ChannelBridge:
		return "BRIDGE"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryMessage is a request, response or event payload.
	CategoryMessage Category = 0
	// CategoryAck is a synchronous acknowledgement.
	CategoryAck Category = 1
	// CategoryDrop is a datagram or response that was discarded.
	CategoryDrop Category = 2
	// CategoryError is a failed operation.
	CategoryError Category = 3
	// CategoryState is a state change.
	CategoryState Category = 4
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryAck:
		return "ACK"
	case CategoryDrop:
		return "DROP"
	case CategoryError:
		return "ERROR"
	case CategoryState:
		return "STATE"
	default:
		return "UNKNOWN"
	}
}

// FrameEvent records the size of a stream frame. Frame bytes are not kept.
type FrameEvent struct {
	// Size is the frame size in bytes, including the length prefix.
	Size int `cbor:"1,keyasint"`
}

// MessageEvent captures a decoded (and redacted) message.
type MessageEvent struct {
	// Kind is the eventType or responseType of the message, if any.
	Kind string `cbor:"1,keyasint,omitempty"`

	// ResultCode is the status carried by acks and responses.
	ResultCode *int `cbor:"2,keyasint,omitempty"`

	// Payload is the redacted message.
	Payload wire.Message `cbor:"3,keyasint,omitempty"`
}

// NewMessageEvent builds a MessageEvent from msg, redacting it first.
func NewMessageEvent(msg wire.Message) *MessageEvent {
	ev := &MessageEvent{Payload: wire.Redact(msg)}
	if kind, ok := msg.String(wire.KeyEventType); ok {
		ev.Kind = kind
	}
	if kind, ok := msg.String(wire.KeyResponseType); ok && (ev.Kind == "" || ev.Kind == wire.EventTypeIPCResponse) {
		ev.Kind = kind
	}
	if code, ok := wire.ResultCodeOf(msg); ok {
		c := int(code)
		ev.ResultCode = &c
	}
	return ev
}

// StateChangeEvent captures bridge lifecycle and device queue transitions.
type StateChangeEvent struct {
	// Entity being changed.
	Entity StateEntity `cbor:"1,keyasint"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"2,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"3,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what changed state.
type StateEntity uint8

const (
	// StateEntityBridge is the bridge as a whole (init/term).
	StateEntityBridge StateEntity = 0
	// StateEntityReceiver is the datagram receiver.
	StateEntityReceiver StateEntity = 1
	// StateEntityWorker is the worker loop.
	StateEntityWorker StateEntity = 2
	// StateEntityRequest is a single request (queued, in flight, done).
	StateEntityRequest StateEntity = 3
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityBridge:
		return "BRIDGE"
	case StateEntityReceiver:
		return "RECEIVER"
	case StateEntityWorker:
		return "WORKER"
	case StateEntityRequest:
		return "REQUEST"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures a failure on any channel.
type ErrorEventData struct {
	// Message is the error text.
	Message string `cbor:"1,keyasint"`

	// Code is the result code, if the error carries one.
	Code *int `cbor:"2,keyasint,omitempty"`

	// Context describes the operation that failed ("connect", "send", ...).
	Context string `cbor:"3,keyasint,omitempty"`
}

// Uint32 returns a pointer to v, for CorrelationID.
func Uint32(v uint32) *uint32 {
	return &v
}
