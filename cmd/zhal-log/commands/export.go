package commands

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/zhal-ipc/zhal-go/pkg/log"
)

// record is the flat, text-friendly form of a capture event shared by the
// export formats.
type record struct {
	Timestamp    string         `json:"timestamp"`
	ConnectionID string         `json:"connection_id,omitempty"`
	Direction    string         `json:"direction"`
	Channel      string         `json:"channel"`
	Category     string         `json:"category"`
	RemoteAddr   string         `json:"remote_addr,omitempty"`
	DeviceID     string         `json:"device_id,omitempty"`
	RequestID    string         `json:"request_id,omitempty"`
	Type         string         `json:"type"`
	ResultCode   string         `json:"result_code,omitempty"`
	Payload      map[string]any `json:"payload,omitempty"`
	Detail       string         `json:"detail,omitempty"`
}

var csvHeader = []string{"timestamp", "connection_id", "direction", "channel", "category", "device_id", "request_id", "type", "result_code"}

func newRecord(event log.Event) record {
	rec := record{
		Timestamp:    event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z"),
		ConnectionID: event.ConnectionID,
		Direction:    event.Direction.String(),
		Channel:      event.Channel.String(),
		Category:     event.Category.String(),
		RemoteAddr:   event.RemoteAddr,
		DeviceID:     event.DeviceID,
		Type:         typeLabel(event),
	}
	if event.CorrelationID != nil {
		rec.RequestID = strconv.FormatUint(uint64(*event.CorrelationID), 10)
	}
	if m := event.Message; m != nil {
		if m.ResultCode != nil {
			rec.ResultCode = strconv.Itoa(*m.ResultCode)
		}
		rec.Payload = m.Payload
	}
	switch {
	case event.StateChange != nil:
		rec.Detail = fmt.Sprintf("%s %s -> %s", event.StateChange.Entity, event.StateChange.OldState, event.StateChange.NewState)
	case event.Error != nil:
		rec.Detail = event.Error.Message
	case event.Frame != nil:
		rec.Detail = strconv.Itoa(event.Frame.Size) + " bytes"
	}
	return rec
}

func (r record) csvRow() []string {
	return []string{r.Timestamp, r.ConnectionID, r.Direction, r.Channel, r.Category, r.DeviceID, r.RequestID, r.Type, r.ResultCode}
}

// RunExport exports the log file to the specified format.
func RunExport(path, format, output string) error {
	var write func(io.Writer, *log.Reader) error
	switch format {
	case "jsonl":
		write = exportJSONL
	case "csv":
		write = exportCSV
	default:
		return fmt.Errorf("unknown format: %s (supported: jsonl, csv)", format)
	}

	reader, err := log.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	if output == "" {
		return write(os.Stdout, reader)
	}
	f, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	if err := write(f, reader); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// eachEvent calls fn for every event left in reader.
func eachEvent(reader *log.Reader, fn func(log.Event) error) error {
	for {
		event, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		if err := fn(event); err != nil {
			return err
		}
	}
}

func exportJSONL(w io.Writer, reader *log.Reader) error {
	encoder := json.NewEncoder(w)
	return eachEvent(reader, func(event log.Event) error {
		if err := encoder.Encode(newRecord(event)); err != nil {
			return fmt.Errorf("failed to encode event: %w", err)
		}
		return nil
	})
}

func exportCSV(w io.Writer, reader *log.Reader) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	err := eachEvent(reader, func(event log.Event) error {
		return cw.Write(newRecord(event).csvRow())
	})
	cw.Flush()
	if err != nil {
		return err
	}
	return cw.Error()
}
