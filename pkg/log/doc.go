// Package log provides protocol capture for the radio core bridge.
//
// This package defines the Logger interface and Event types for recording
// every exchange with the radio core: frames and acknowledgements on the
// stream channel, responses and events on the datagram channel, dropped
// datagrams and bridge state changes. It is separate from operational
// logging (slog) - protocol capture is a machine-readable trace for
// debugging and offline analysis.
//
// # Basic Usage
//
//	// For development: log to console via slog
//	cfg.ProtocolLogger = log.NewSlogAdapter(slog.Default())
//
//	// For production: write to binary file
//	cfg.ProtocolLogger, _ = log.NewFileLogger("/var/log/zhal/bridge.zlog")
//
//	// Both
//	cfg.ProtocolLogger = log.NewMultiLogger(console, file)
//
// # Redaction
//
// Message payloads are stored only after wire.Redact; raw frame bytes are
// never captured because requests may carry network keys.
//
// # File Format
//
// Capture files are a stream of CBOR-encoded events with integer keys
// (.zlog extension). The zhal-log tool views, filters and exports them.
package log
