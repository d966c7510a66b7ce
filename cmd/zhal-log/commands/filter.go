package commands

import (
	"fmt"
	"strconv"
	"time"

	"github.com/zhal-ipc/zhal-go/pkg/log"
)

// FilterOptions specifies filtering criteria for the filter command.
type FilterOptions struct {
	Output    string
	ConnID    string
	DeviceID  string
	RequestID string
	TimeStart string
	TimeEnd   string
	Channel   string
	Direction string
	Category  string
}

func parseTimeFlag(name, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s format: %w", name, err)
	}
	return &t, nil
}

// logFilter converts the command line options into a reader filter.
func (opts FilterOptions) logFilter() (log.Filter, error) {
	var view ViewFilter
	view.DeviceID = opts.DeviceID
	if opts.Channel != "" {
		c, err := ParseChannelFlag(opts.Channel)
		if err != nil {
			return log.Filter{}, err
		}
		view.Channel = &c
	}
	if opts.Direction != "" {
		d, err := ParseDirectionFlag(opts.Direction)
		if err != nil {
			return log.Filter{}, err
		}
		view.Direction = &d
	}
	if opts.Category != "" {
		c, err := ParseCategoryFlag(opts.Category)
		if err != nil {
			return log.Filter{}, err
		}
		view.Category = &c
	}

	filter := view.logFilter()
	filter.ConnectionID = opts.ConnID
	if opts.RequestID != "" {
		id, err := strconv.ParseUint(opts.RequestID, 10, 32)
		if err != nil {
			return log.Filter{}, fmt.Errorf("invalid request-id: %w", err)
		}
		filter.CorrelationID = log.Uint32(uint32(id))
	}

	var err error
	if filter.TimeStart, err = parseTimeFlag("time-start", opts.TimeStart); err != nil {
		return log.Filter{}, err
	}
	if filter.TimeEnd, err = parseTimeFlag("time-end", opts.TimeEnd); err != nil {
		return log.Filter{}, err
	}
	return filter, nil
}

// RunFilter filters the log file and writes matching events to a new file.
// It returns the number of events written.
func RunFilter(path string, opts FilterOptions) (int, error) {
	filter, err := opts.logFilter()
	if err != nil {
		return 0, err
	}

	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	out, err := log.NewFileLogger(opts.Output)
	if err != nil {
		return 0, fmt.Errorf("failed to create output logger: %w", err)
	}

	count := 0
	err = eachEvent(reader, func(event log.Event) error {
		out.Log(event)
		count++
		return nil
	})
	if cerr := out.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("failed to close output: %w", cerr)
	}
	if err != nil {
		return count, err
	}
	if n := out.WriteErrors(); n > 0 {
		return count, fmt.Errorf("failed to write %d events: %w", n, out.Err())
	}
	return count, nil
}
