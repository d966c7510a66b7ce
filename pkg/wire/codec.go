package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// Codec converts messages to and from their encoded form.
type Codec interface {
	// Name returns the codec name used in configuration ("json", "cbor").
	Name() string

	// Marshal encodes a message.
	Marshal(msg Message) ([]byte, error)

	// Unmarshal decodes a payload that must be a keyed map.
	Unmarshal(data []byte) (Message, error)
}

// Codec names.
const (
	CodecJSON = "json"
	CodecCBOR = "cbor"
)

// CodecByName returns the codec registered under name.
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", CodecJSON:
		return JSONCodec{}, nil
	case CodecCBOR:
		return CBORCodec{}, nil
	default:
		return nil, fmt.Errorf("unknown codec %q", name)
	}
}

// JSONCodec is the radio core's native encoding.
type JSONCodec struct{}

// Name returns "json".
func (JSONCodec) Name() string { return CodecJSON }

// Marshal encodes msg as compact JSON.
func (JSONCodec) Marshal(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

// Unmarshal decodes a JSON object. Numbers are decoded as json.Number so
// 64-bit integers survive unchanged.
func (JSONCodec) Unmarshal(data []byte) (Message, error) {
	data = bytes.TrimRight(data, "\x00")
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyPayload
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("failed to decode json: %w", err)
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, ErrNotObject
	}
	return normalize(obj), nil
}

// encMode is the CBOR encoder mode for messages.
// Configured for deterministic encoding.
var encMode cbor.EncMode

// decMode is the CBOR decoder mode for messages.
var decMode cbor.DecMode

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeUnix,
	}
	encMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR encoder mode: %v", err))
	}

	// Maps decode with string keys so CBOR and JSON messages look alike.
	decOpts := cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyQuiet,
		IndefLength:       cbor.IndefLengthAllowed,
		ExtraReturnErrors: cbor.ExtraDecErrorNone,
		DefaultMapType:    reflect.TypeOf(map[string]any(nil)),
	}
	decMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR decoder mode: %v", err))
	}
}

// CBORCodec encodes messages as CBOR maps with text keys.
type CBORCodec struct{}

// Name returns "cbor".
func (CBORCodec) Name() string { return CodecCBOR }

// Marshal encodes msg as canonical CBOR.
func (CBORCodec) Marshal(msg Message) ([]byte, error) {
	return encMode.Marshal(map[string]any(msg))
}

// Unmarshal decodes a CBOR map.
func (CBORCodec) Unmarshal(data []byte) (Message, error) {
	if len(data) == 0 {
		return nil, ErrEmptyPayload
	}
	var v any
	if err := decMode.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("failed to decode cbor: %w", err)
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, ErrNotObject
	}
	return normalize(obj), nil
}

// normalize converts nested map[string]any values to Message so that
// Map() works uniformly regardless of codec.
func normalize(obj map[string]any) Message {
	msg := make(Message, len(obj))
	for k, v := range obj {
		msg[k] = normalizeValue(v)
	}
	return msg
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return normalize(t)
	case []any:
		for i := range t {
			t[i] = normalizeValue(t[i])
		}
		return t
	default:
		return v
	}
}
