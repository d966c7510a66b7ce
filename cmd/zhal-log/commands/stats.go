package commands

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/zhal-ipc/zhal-go/pkg/log"
)

// Stats holds aggregate statistics about a log file.
type Stats struct {
	TotalEvents       int
	EventsByChannel   map[log.Channel]int
	EventsByCategory  map[log.Category]int
	EventsByDirection map[log.Direction]int
	EventsByKind      map[string]int
	Devices           map[string]*DeviceStats
	Connections       int
	Drops             int
	Errors            int
	TimeRange         struct {
		Start time.Time
		End   time.Time
	}
}

// DeviceStats holds statistics for a single device.
type DeviceStats struct {
	FirstSeen time.Time
	LastSeen  time.Time
	Events    int
	Requests  int
}

// RunStats analyzes the log file and prints statistics.
func RunStats(path string, w io.Writer) error {
	reader, err := log.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	stats := &Stats{
		EventsByChannel:   make(map[log.Channel]int),
		EventsByCategory:  make(map[log.Category]int),
		EventsByDirection: make(map[log.Direction]int),
		EventsByKind:      make(map[string]int),
		Devices:           make(map[string]*DeviceStats),
	}
	conns := make(map[string]struct{})
	err = eachEvent(reader, func(event log.Event) error {
		stats.add(event, conns)
		return nil
	})
	if err != nil {
		return err
	}
	stats.Connections = len(conns)

	printStats(w, stats)
	return nil
}

// add counts one event. conns collects the distinct connection ids.
func (s *Stats) add(event log.Event, conns map[string]struct{}) {
	s.TotalEvents++
	s.EventsByChannel[event.Channel]++
	s.EventsByCategory[event.Category]++
	s.EventsByDirection[event.Direction]++
	if event.Message != nil && event.Message.Kind != "" {
		s.EventsByKind[event.Message.Kind]++
	}

	// Track time range
	if s.TimeRange.Start.IsZero() || event.Timestamp.Before(s.TimeRange.Start) {
		s.TimeRange.Start = event.Timestamp
	}
	if event.Timestamp.After(s.TimeRange.End) {
		s.TimeRange.End = event.Timestamp
	}

	if event.ConnectionID != "" {
		conns[event.ConnectionID] = struct{}{}
	}

	if event.DeviceID != "" {
		dev, ok := s.Devices[event.DeviceID]
		if !ok {
			dev = &DeviceStats{FirstSeen: event.Timestamp, LastSeen: event.Timestamp}
			s.Devices[event.DeviceID] = dev
		}
		dev.Events++
		if event.Timestamp.After(dev.LastSeen) {
			dev.LastSeen = event.Timestamp
		}
		if event.StateChange != nil && event.StateChange.Entity == log.StateEntityRequest && event.StateChange.NewState == "queued" {
			dev.Requests++
		}
	}

	switch event.Category {
	case log.CategoryDrop:
		s.Drops++
	case log.CategoryError:
		s.Errors++
	}
}

func printStats(w io.Writer, stats *Stats) {
	fmt.Fprintln(w, "=== zhal Protocol Log Statistics ===")
	fmt.Fprintln(w)

	// Time range
	if stats.TotalEvents > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n",
			stats.TimeRange.Start.Format(time.RFC3339),
			stats.TimeRange.End.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:   %s\n", stats.TimeRange.End.Sub(stats.TimeRange.Start).Round(time.Second))
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Total Events: %d\n", stats.TotalEvents)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Channel:")
	for _, ch := range []log.Channel{log.ChannelStream, log.ChannelDatagram, log.ChannelBridge} {
		if count := stats.EventsByChannel[ch]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", ch.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Category:")
	for _, cat := range []log.Category{log.CategoryMessage, log.CategoryAck, log.CategoryDrop, log.CategoryError, log.CategoryState} {
		if count := stats.EventsByCategory[cat]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", cat.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Direction:")
	for _, dir := range []log.Direction{log.DirectionIn, log.DirectionOut} {
		if count := stats.EventsByDirection[dir]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", dir.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	if len(stats.EventsByKind) > 0 {
		kinds := make([]string, 0, len(stats.EventsByKind))
		for k := range stats.EventsByKind {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)

		fmt.Fprintln(w, "Messages by Kind:")
		for _, k := range kinds {
			fmt.Fprintf(w, "  %-32s %d\n", k+":", stats.EventsByKind[k])
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Stream Connections: %d\n", stats.Connections)

	fmt.Fprintf(w, "Devices: %d\n", len(stats.Devices))
	if len(stats.Devices) > 0 {
		ids := make([]string, 0, len(stats.Devices))
		for id := range stats.Devices {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool {
			return stats.Devices[ids[i]].FirstSeen.Before(stats.Devices[ids[j]].FirstSeen)
		})

		fmt.Fprintln(w)
		for _, id := range ids {
			d := stats.Devices[id]
			duration := d.LastSeen.Sub(d.FirstSeen).Round(time.Millisecond)
			fmt.Fprintf(w, "  [%s] %d events, %d requests, duration %s\n", id, d.Events, d.Requests, duration)
		}
	}

	if stats.Drops > 0 || stats.Errors > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Drops: %d\n", stats.Drops)
		fmt.Fprintf(w, "Errors: %d\n", stats.Errors)
	}
}
