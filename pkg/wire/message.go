package wire

import (
	"encoding/json"
	"errors"
	"math"
)

// Well-known message keys.
const (
	KeyRequestID       = "requestId"
	KeyEventType       = "eventType"
	KeyResultCode      = "resultCode"
	KeyResponseType    = "responseType"
	KeyIPCResponseType = "ipcResponseType"
	KeyEUI64           = "eui64"
)

// EventTypeIPCResponse marks a datagram as the deferred response to a request.
const EventTypeIPCResponse = "ipcResponse"

// Message errors.
var (
	// ErrEmptyPayload indicates a zero-length encoded message.
	ErrEmptyPayload = errors.New("empty payload")

	// ErrNotObject indicates the payload did not decode to a keyed map.
	ErrNotObject = errors.New("payload is not an object")
)

// Message is a structured payload keyed by field name.
//
// Values are whatever the codec produced: JSON yields float64 numbers,
// CBOR yields uint64/int64. The typed accessors hide the difference.
type Message map[string]any

// Has reports whether key is present.
func (m Message) Has(key string) bool {
	_, ok := m[key]
	return ok
}

// String returns the string value of key.
func (m Message) String(key string) (string, bool) {
	s, ok := m[key].(string)
	return s, ok
}

// Bool returns the boolean value of key.
func (m Message) Bool(key string) (bool, bool) {
	b, ok := m[key].(bool)
	return b, ok
}

// Int returns the integer value of key.
// Non-integral numbers and values outside the int64 range are rejected.
func (m Message) Int(key string) (int64, bool) {
	return toInt64(m[key])
}

// Uint returns the non-negative integer value of key.
func (m Message) Uint(key string) (uint64, bool) {
	switch v := m[key].(type) {
	case uint64:
		return v, true
	case uint32:
		return uint64(v), true
	case uint16:
		return uint64(v), true
	case uint8:
		return uint64(v), true
	case uint:
		return uint64(v), true
	}
	i, ok := toInt64(m[key])
	if !ok || i < 0 {
		return 0, false
	}
	return uint64(i), true
}

// Map returns the nested message stored under key.
func (m Message) Map(key string) (Message, bool) {
	switch v := m[key].(type) {
	case Message:
		return v, true
	case map[string]any:
		return Message(v), true
	}
	return nil, false
}

// Clone returns a deep copy of the message.
func (m Message) Clone() Message {
	if m == nil {
		return nil
	}
	return cloneValue(m).(Message)
}

// Set stores value under key and returns the message for chaining.
func (m Message) Set(key string, value any) Message {
	m[key] = value
	return m
}

// ResultCodeOf extracts the result code of msg.
func ResultCodeOf(msg Message) (ResultCode, bool) {
	code, ok := msg.Int(KeyResultCode)
	if !ok || code < math.MinInt32 || code > math.MaxInt32 {
		return ResultFail, false
	}
	return ResultCode(code), true
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case uint:
		if uint64(n) > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case float64:
		if n != math.Trunc(n) || n < math.MinInt64 || n >= math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case float32:
		return toInt64(float64(n))
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		// Integral values may be written as 5.0 or 1e1.
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return toInt64(f)
	}
	return 0, false
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case Message:
		out := make(Message, len(t))
		for k, val := range t {
			out[k] = cloneValue(val)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = cloneValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = cloneValue(val)
		}
		return out
	case []byte:
		out := make([]byte, len(t))
		copy(out, t)
		return out
	default:
		return v
	}
}
