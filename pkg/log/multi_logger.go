package log

// MultiLogger copies every event to each of its loggers in order. The bridge
// binary uses it to capture to a .zlog file and, at debug level, to slog.
type MultiLogger []Logger

// NewMultiLogger drops nil entries so optional sinks can be passed directly.
func NewMultiLogger(loggers ...Logger) MultiLogger {
	m := make(MultiLogger, 0, len(loggers))
	for _, l := range loggers {
		if l != nil {
			m = append(m, l)
		}
	}
	return m
}

// Log implements Logger.
func (m MultiLogger) Log(event Event) {
	for _, l := range m {
		l.Log(event)
	}
}

var _ Logger = MultiLogger(nil)
