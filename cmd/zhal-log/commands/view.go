// Package commands implements the zhal-log CLI commands.
package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/zhal-ipc/zhal-go/pkg/log"
)

// ViewFilter specifies criteria for filtering events in the view command.
type ViewFilter struct {
	Channel   *log.Channel
	Direction *log.Direction
	Category  *log.Category
	DeviceID  string
}

func (f ViewFilter) logFilter() log.Filter {
	return log.Filter{
		Channel:   f.Channel,
		Direction: f.Direction,
		Category:  f.Category,
		DeviceID:  f.DeviceID,
	}
}

// formatEvent writes a human-readable representation of the event to w.
func formatEvent(w io.Writer, event log.Event) {
	// Header line: timestamp [conn:id] DIRECTION CHANNEL Type
	ts := event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z")
	connID := shortenConnID(event.ConnectionID)
	if connID == "" {
		connID = "-"
	}

	fmt.Fprintf(w, "%s [conn:%s] %-3s %s %s\n", ts, connID, event.Direction.String(), event.Channel.String(), typeLabel(event))

	if event.CorrelationID != nil || event.DeviceID != "" || event.RemoteAddr != "" {
		fmt.Fprint(w, " ")
		if event.CorrelationID != nil {
			fmt.Fprintf(w, " RequestID: %d", *event.CorrelationID)
		}
		if event.DeviceID != "" {
			fmt.Fprintf(w, " Device: %s", event.DeviceID)
		}
		if event.RemoteAddr != "" {
			fmt.Fprintf(w, " Remote: %s", event.RemoteAddr)
		}
		fmt.Fprintln(w)
	}

	switch {
	case event.Frame != nil:
		fmt.Fprintf(w, "  Size: %d bytes\n", event.Frame.Size)
	case event.Message != nil:
		formatMessageDetails(w, event.Message)
	case event.StateChange != nil:
		formatStateChangeDetails(w, event.StateChange)
	}
	if event.Error != nil {
		formatErrorDetails(w, event.Error)
	}

	fmt.Fprintln(w) // Blank line between events
}

// typeLabel names the payload an event carries.
func typeLabel(event log.Event) string {
	switch {
	case event.Frame != nil:
		return "Frame"
	case event.Message != nil && event.Message.Kind != "":
		return event.Message.Kind
	case event.Message != nil:
		return event.Category.String()
	case event.StateChange != nil:
		return "State"
	case event.Error != nil:
		return "Error"
	default:
		return "Unknown"
	}
}

// shortenConnID returns the first 8 characters of the connection ID.
func shortenConnID(id string) string {
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}

func formatMessageDetails(w io.Writer, msg *log.MessageEvent) {
	if msg.ResultCode != nil {
		fmt.Fprintf(w, "  ResultCode: %d\n", *msg.ResultCode)
	}
	if msg.Payload != nil {
		payloadJSON, err := json.Marshal(msg.Payload)
		if err == nil {
			fmt.Fprintf(w, "  Payload: %s\n", string(payloadJSON))
		}
	}
}

func formatStateChangeDetails(w io.Writer, sc *log.StateChangeEvent) {
	fmt.Fprintf(w, "  Entity: %s\n", sc.Entity.String())
	if sc.OldState != "" {
		fmt.Fprintf(w, "  %s -> %s\n", sc.OldState, sc.NewState)
	} else {
		fmt.Fprintf(w, "  -> %s\n", sc.NewState)
	}
	if sc.Reason != "" {
		fmt.Fprintf(w, "  Reason: %s\n", sc.Reason)
	}
}

func formatErrorDetails(w io.Writer, err *log.ErrorEventData) {
	fmt.Fprintf(w, "  Message: %s\n", err.Message)
	if err.Code != nil {
		fmt.Fprintf(w, "  Code: %d\n", *err.Code)
	}
	if err.Context != "" {
		fmt.Fprintf(w, "  Context: %s\n", err.Context)
	}
}

// ParseChannelFlag parses a channel string from command-line flag (case-insensitive).
func ParseChannelFlag(s string) (log.Channel, error) {
	switch strings.ToLower(s) {
	case "stream":
		return log.ChannelStream, nil
	case "datagram":
		return log.ChannelDatagram, nil
	case "bridge":
		return log.ChannelBridge, nil
	default:
		return 0, fmt.Errorf("invalid channel: %s (must be stream, datagram, or bridge)", s)
	}
}

// ParseDirectionFlag parses a direction string from command-line flag (case-insensitive).
func ParseDirectionFlag(s string) (log.Direction, error) {
	switch strings.ToLower(s) {
	case "in":
		return log.DirectionIn, nil
	case "out":
		return log.DirectionOut, nil
	default:
		return 0, fmt.Errorf("invalid direction: %s (must be in or out)", s)
	}
}

// ParseCategoryFlag parses a category string from command-line flag (case-insensitive).
func ParseCategoryFlag(s string) (log.Category, error) {
	switch strings.ToLower(s) {
	case "message":
		return log.CategoryMessage, nil
	case "ack":
		return log.CategoryAck, nil
	case "drop":
		return log.CategoryDrop, nil
	case "error":
		return log.CategoryError, nil
	case "state":
		return log.CategoryState, nil
	default:
		return 0, fmt.Errorf("invalid category: %s (must be message, ack, drop, error, or state)", s)
	}
}

// RunView executes the view command.
func RunView(path string, filter ViewFilter, output io.Writer) error {
	reader, err := log.NewFilteredReader(path, filter.logFilter())
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	return eachEvent(reader, func(event log.Event) error {
		formatEvent(output, event)
		return nil
	})
}
