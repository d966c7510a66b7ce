package log

import (
	"os"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// FileLogger appends capture events to a .zlog file. Events are written
// unbuffered, so a Reader sees everything logged before it opened the file.
// It is safe for concurrent use.
type FileLogger struct {
	path string

	mu      sync.Mutex
	file    *os.File // nil once closed
	enc     *cbor.Encoder
	failed  int
	lastErr error
}

// NewFileLogger opens path for appending, creating it with mode 0640.
func NewFileLogger(path string) (*FileLogger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0640)
	if err != nil {
		return nil, err
	}
	return &FileLogger{path: path, file: f, enc: NewEncoder(f)}, nil
}

// Path returns the capture file path.
func (l *FileLogger) Path() string {
	return l.path
}

// Log appends event. A failed write is recorded, never returned, so capture
// cannot stall a request or a datagram handler.
func (l *FileLogger) Log(event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return
	}
	if err := l.enc.Encode(event); err != nil {
		l.failed++
		l.lastErr = err
	}
}

// WriteErrors returns how many events could not be written.
func (l *FileLogger) WriteErrors() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.failed
}

// Err returns the most recent write error, if any.
func (l *FileLogger) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastErr
}

// Close closes the file; later events are discarded. Closing twice is a no-op.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file, l.enc = nil, nil
	return err
}

var _ Logger = (*FileLogger)(nil)
