package transport

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/zhal-ipc/zhal-go/pkg/log"
)

func TestFrameWriterReader(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		order   binary.ByteOrder
	}{
		{"small little-endian", []byte(`{"requestId":1}`), binary.LittleEndian},
		{"small big-endian", []byte(`{"resultCode":0}`), binary.BigEndian},
		{"medium message", bytes.Repeat([]byte("x"), 1000), RequestByteOrder},
		{"max size message", bytes.Repeat([]byte("y"), MaxPayloadSize), AckByteOrder},
		{"single byte", []byte{0x42}, RequestByteOrder},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := new(bytes.Buffer)

			if err := NewFrameWriter(buf, tt.order).WriteFrame(tt.payload); err != nil {
				t.Fatalf("WriteFrame failed: %v", err)
			}
			if buf.Len() != FrameSize(len(tt.payload)) {
				t.Errorf("frame size = %d, want %d", buf.Len(), FrameSize(len(tt.payload)))
			}

			got, err := NewFrameReader(buf, tt.order).ReadFrame()
			if err != nil {
				t.Fatalf("ReadFrame failed: %v", err)
			}
			if !bytes.Equal(got, tt.payload) {
				t.Errorf("payload mismatch: got %d bytes, want %d bytes", len(got), len(tt.payload))
			}
		})
	}
}

func TestFramePrefixByteOrder(t *testing.T) {
	payload := bytes.Repeat([]byte{'a'}, 0x0102)

	buf := new(bytes.Buffer)
	if err := NewFrameWriter(buf, RequestByteOrder).WriteFrame(payload); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}
	// Requests carry a little-endian prefix.
	if prefix := buf.Bytes()[:2]; prefix[0] != 0x02 || prefix[1] != 0x01 {
		t.Errorf("request prefix = %x, want 0201", prefix)
	}

	// Acks arrive in network order.
	ack := append([]byte{0x00, 0x03}, []byte("{ }")...)
	got, err := NewFrameReader(bytes.NewReader(ack), AckByteOrder).ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}
	if string(got) != "{ }" {
		t.Errorf("ack payload = %q", got)
	}
}

func TestFrameWriterRejects(t *testing.T) {
	w := NewFrameWriter(new(bytes.Buffer), RequestByteOrder)

	if err := w.WriteFrame(nil); !errors.Is(err, ErrMessageEmpty) {
		t.Errorf("empty: got %v, want ErrMessageEmpty", err)
	}
	if err := w.WriteFrame(make([]byte, MaxPayloadSize+1)); !errors.Is(err, ErrMessageTooLarge) {
		t.Errorf("oversize: got %v, want ErrMessageTooLarge", err)
	}
}

func TestFrameReaderErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"clean eof", nil, io.EOF},
		{"truncated prefix", []byte{0x00}, ErrFrameTruncated},
		{"zero length", []byte{0x00, 0x00}, ErrMessageEmpty},
		{"truncated payload", []byte{0x00, 0x05, 'a', 'b'}, ErrFrameTruncated},
		{"prefix without payload", []byte{0x00, 0x05}, ErrFrameTruncated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewFrameReader(bytes.NewReader(tt.data), binary.BigEndian).ReadFrame()
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

type captureLogger struct {
	events []log.Event
}

func (c *captureLogger) Log(e log.Event) { c.events = append(c.events, e) }

func TestFrameLogging(t *testing.T) {
	capture := &captureLogger{}
	buf := new(bytes.Buffer)

	w := NewFrameWriter(buf, RequestByteOrder)
	w.SetLogger(capture, "conn-1")
	if err := w.WriteFrame([]byte("hello")); err != nil {
		t.Fatal(err)
	}

	r := NewFrameReader(buf, RequestByteOrder)
	r.SetLogger(capture, "conn-1")
	if _, err := r.ReadFrame(); err != nil {
		t.Fatal(err)
	}

	if len(capture.events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(capture.events))
	}
	out, in := capture.events[0], capture.events[1]
	if out.Direction != log.DirectionOut || in.Direction != log.DirectionIn {
		t.Errorf("directions = %v, %v", out.Direction, in.Direction)
	}
	if out.Frame == nil || out.Frame.Size != 7 {
		t.Errorf("out frame = %+v, want size 7", out.Frame)
	}
	if in.ConnectionID != "conn-1" || in.Channel != log.ChannelStream {
		t.Errorf("in event = %+v", in)
	}
}
