package event

import (
	"encoding/base64"
	"fmt"
	"math"
	"strconv"

	"github.com/zhal-ipc/zhal-go/pkg/wire"
)

// fieldReader extracts typed fields from an event and remembers the first
// problem it hit, so decoders read every field and check once.
type fieldReader struct {
	msg wire.Message
	err error
}

func (r *fieldReader) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

func (r *fieldReader) require(key string) bool {
	if r.err != nil {
		return false
	}
	if !r.msg.Has(key) {
		r.fail(fmt.Errorf("%w: missing %s", ErrIncompleteEvent, key))
		return false
	}
	return true
}

func (r *fieldReader) eui64(key string) uint64 {
	if !r.require(key) {
		return 0
	}
	s, ok := r.msg.String(key)
	if !ok {
		r.fail(fmt.Errorf("%w: %s is not a string", ErrInvalidEvent, key))
		return 0
	}
	v, err := wire.ParseEUI64(s)
	if err != nil {
		r.fail(fmt.Errorf("%w: %s: %v", ErrInvalidEvent, key, err))
	}
	return v
}

func (r *fieldReader) number(key string, max uint64) uint64 {
	if !r.require(key) {
		return 0
	}
	v, ok := r.msg.Uint(key)
	if !ok || v > max {
		r.fail(fmt.Errorf("%w: %s out of range: %v", ErrInvalidEvent, key, r.msg[key]))
		return 0
	}
	return v
}

func (r *fieldReader) u8(key string) uint8   { return uint8(r.number(key, math.MaxUint8)) }
func (r *fieldReader) u16(key string) uint16 { return uint16(r.number(key, math.MaxUint16)) }

func (r *fieldReader) i8(key string) int8 {
	if !r.require(key) {
		return 0
	}
	v, ok := r.msg.Int(key)
	if !ok || v < math.MinInt8 || v > math.MaxInt8 {
		r.fail(fmt.Errorf("%w: %s out of range: %v", ErrInvalidEvent, key, r.msg[key]))
		return 0
	}
	return int8(v)
}

// flag accepts a boolean or a number (non-zero is true).
func (r *fieldReader) flag(key string) bool {
	if !r.require(key) {
		return false
	}
	if b, ok := r.msg.Bool(key); ok {
		return b
	}
	if v, ok := r.msg.Int(key); ok {
		return v != 0
	}
	r.fail(fmt.Errorf("%w: %s is not a flag", ErrInvalidEvent, key))
	return false
}

// truth is true only for a present boolean true.
func (r *fieldReader) truth(key string) bool {
	if !r.require(key) {
		return false
	}
	b, _ := r.msg.Bool(key)
	return b
}

func (r *fieldReader) str(key string) string {
	if !r.require(key) {
		return ""
	}
	s, ok := r.msg.String(key)
	if !ok {
		r.fail(fmt.Errorf("%w: %s is not a string", ErrInvalidEvent, key))
	}
	return s
}

func (r *fieldReader) decimal(key string) uint64 {
	s := r.str(key)
	if r.err != nil {
		return 0
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		r.fail(fmt.Errorf("%w: %s: %v", ErrInvalidEvent, key, err))
	}
	return v
}

func (r *fieldReader) blob(key string) []byte {
	s := r.str(key)
	if r.err != nil {
		return nil
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		r.fail(fmt.Errorf("%w: %s: %v", ErrInvalidEvent, key, err))
	}
	return data
}
