package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/zhal-ipc/zhal-go/pkg/log"
)

// Framing constants.
const (
	// LengthPrefixSize is the size of the length prefix in bytes.
	LengthPrefixSize = 2

	// MaxPayloadSize is the largest payload a 2-byte prefix can describe.
	MaxPayloadSize = 65535
)

// Byte orders of the length prefix per direction.
var (
	// RequestByteOrder is used for frames sent to the radio core.
	RequestByteOrder binary.ByteOrder = binary.LittleEndian

	// AckByteOrder is used for acknowledgement frames from the radio core.
	AckByteOrder binary.ByteOrder = binary.BigEndian
)

// Framing errors.
var (
	// ErrMessageTooLarge indicates the message exceeds MaxPayloadSize.
	ErrMessageTooLarge = errors.New("message too large")

	// ErrMessageEmpty indicates an empty message.
	ErrMessageEmpty = errors.New("message is empty")

	// ErrFrameTruncated indicates fewer bytes arrived than the prefix announced.
	ErrFrameTruncated = errors.New("frame truncated")
)

// FrameWriter writes length-prefixed frames to an underlying writer.
// A FrameWriter is used by a single goroutine.
type FrameWriter struct {
	w     io.Writer
	order binary.ByteOrder

	logger log.Logger
	connID string
}

// NewFrameWriter creates a frame writer using order for the length prefix.
func NewFrameWriter(w io.Writer, order binary.ByteOrder) *FrameWriter {
	return &FrameWriter{w: w, order: order}
}

// SetLogger configures protocol capture for this writer.
// Pass nil to disable it.
func (fw *FrameWriter) SetLogger(logger log.Logger, connID string) {
	fw.logger = logger
	fw.connID = connID
}

// WriteFrame writes prefix and payload with a single Write call.
func (fw *FrameWriter) WriteFrame(data []byte) error {
	if len(data) == 0 {
		return ErrMessageEmpty
	}
	if len(data) > MaxPayloadSize {
		return fmt.Errorf("%w: %d > %d", ErrMessageTooLarge, len(data), MaxPayloadSize)
	}

	frame := make([]byte, LengthPrefixSize+len(data))
	fw.order.PutUint16(frame, uint16(len(data)))
	copy(frame[LengthPrefixSize:], data)

	if _, err := fw.w.Write(frame); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}

	if fw.logger != nil {
		fw.logger.Log(frameEvent(fw.connID, log.DirectionOut, len(frame)))
	}
	return nil
}

// FrameReader reads length-prefixed frames from an underlying reader.
type FrameReader struct {
	r         io.Reader
	order     binary.ByteOrder
	lengthBuf [LengthPrefixSize]byte

	logger log.Logger
	connID string
}

// NewFrameReader creates a frame reader using order for the length prefix.
func NewFrameReader(r io.Reader, order binary.ByteOrder) *FrameReader {
	return &FrameReader{r: r, order: order}
}

// SetLogger configures protocol capture for this reader.
// Pass nil to disable it.
func (fr *FrameReader) SetLogger(logger log.Logger, connID string) {
	fr.logger = logger
	fr.connID = connID
}

// ReadFrame reads one frame and returns its payload.
// An EOF before the first prefix byte is returned as io.EOF; any later short
// read is ErrFrameTruncated.
func (fr *FrameReader) ReadFrame() ([]byte, error) {
	if _, err := io.ReadFull(fr.r, fr.lengthBuf[:]); err != nil {
		if err == io.EOF {
			return nil, err
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrFrameTruncated
		}
		return nil, fmt.Errorf("failed to read length prefix: %w", err)
	}

	length := fr.order.Uint16(fr.lengthBuf[:])
	if length == 0 {
		return nil, ErrMessageEmpty
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(fr.r, payload); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || err == io.EOF {
			return nil, fmt.Errorf("%w: expected %d bytes", ErrFrameTruncated, length)
		}
		return nil, fmt.Errorf("failed to read payload: %w", err)
	}

	if fr.logger != nil {
		fr.logger.Log(frameEvent(fr.connID, log.DirectionIn, LengthPrefixSize+len(payload)))
	}
	return payload, nil
}

// FrameSize returns the total frame size including the length prefix.
func FrameSize(payloadSize int) int {
	return LengthPrefixSize + payloadSize
}

func frameEvent(connID string, direction log.Direction, size int) log.Event {
	return log.Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Direction:    direction,
		Channel:      log.ChannelStream,
		Category:     log.CategoryMessage,
		Frame:        &log.FrameEvent{Size: size},
	}
}
