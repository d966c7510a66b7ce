// Package interactive provides the interactive console of zhal-bridge.
package interactive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/zhal-ipc/zhal-go/pkg/bridge"
	"github.com/zhal-ipc/zhal-go/pkg/wire"
)

// Bridge is the part of bridge.Bridge the console uses.
type Bridge interface {
	SendRequest(ctx context.Context, deviceID uint64, req wire.Message, timeout time.Duration) (wire.Message, error)
	Stats() bridge.Stats
}

// Console reads commands from the terminal and runs them against a bridge.
type Console struct {
	bridge Bridge
	rl     *readline.Instance
	out    io.Writer
}

// New creates a console with a readline prompt. Its writers can be used for
// logging before Run is called.
func New() (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "zhal> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &Console{rl: rl, out: rl.Stdout()}, nil
}

// Stdout returns a writer that properly coordinates with the readline input.
// Use this for log output to avoid interfering with the command prompt.
func (c *Console) Stdout() io.Writer {
	return c.rl.Stdout()
}

// Stderr returns a writer that properly coordinates with the readline input.
func (c *Console) Stderr() io.Writer {
	return c.rl.Stderr()
}

// Run starts the interactive command loop against b.
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc, b Bridge) {
	defer c.rl.Close()

	c.bridge = b

	c.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
			// EOF or interrupt
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(c.out, "Exiting...")
			cancel()
			return
		}

		if !c.Exec(ctx, line) {
			fmt.Fprintln(c.out, "Exiting...")
			cancel()
			return
		}
	}
}

// Exec runs one command line. It returns false when the console should exit.
func (c *Console) Exec(ctx context.Context, line string) bool {
	input := strings.TrimSpace(line)
	if input == "" {
		return true
	}

	cmd, rest, _ := strings.Cut(input, " ")
	switch strings.ToLower(cmd) {
	case "help", "?":
		c.printHelp()

	case "send", "s":
		c.cmdSend(ctx, rest)

	case "stats":
		c.cmdStats()

	case "quit", "exit", "q":
		return false

	default:
		fmt.Fprintf(c.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return true
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.out, `
zhal Bridge Commands:
  send <eui64> <json> [timeout] - Send a request and wait for the response
                                  (timeout in seconds, default from config)
  stats                         - Show queue and datagram counters
  help                          - Show this help
  quit                          - Exit

  Example:
    send 000d6f0003c04a7d {"request":"getSystemStatus"} 5`)
}

// parseSend splits "<eui64> <json> [timeout]".
func parseSend(args string) (uint64, wire.Message, time.Duration, error) {
	args = strings.TrimSpace(args)
	euiStr, rest, ok := strings.Cut(args, " ")
	if !ok {
		return 0, nil, 0, errors.New("usage: send <eui64> <json> [timeout]")
	}
	eui, err := wire.ParseEUI64(euiStr)
	if err != nil {
		return 0, nil, 0, err
	}

	rest = strings.TrimSpace(rest)
	var timeout time.Duration
	if i := strings.LastIndexByte(rest, '}'); i >= 0 && i < len(rest)-1 {
		secs, err := strconv.Atoi(strings.TrimSpace(rest[i+1:]))
		if err != nil || secs <= 0 {
			return 0, nil, 0, fmt.Errorf("invalid timeout %q", strings.TrimSpace(rest[i+1:]))
		}
		timeout = time.Duration(secs) * time.Second
		rest = rest[:i+1]
	}

	msg, err := wire.JSONCodec{}.Unmarshal([]byte(rest))
	if err != nil {
		return 0, nil, 0, fmt.Errorf("invalid request: %w", err)
	}
	return eui, msg, timeout, nil
}

func (c *Console) cmdSend(ctx context.Context, args string) {
	eui, req, timeout, err := parseSend(args)
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}

	start := time.Now()
	resp, err := c.bridge.SendRequest(ctx, eui, req, timeout)
	elapsed := time.Since(start).Round(time.Millisecond)
	if err != nil {
		fmt.Fprintf(c.out, "Request failed after %s: %v\n", elapsed, err)
		return
	}

	data, err := json.MarshalIndent(map[string]any(wire.Redact(resp)), "", "  ")
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(c.out, "Response after %s:\n%s\n", elapsed, data)
}

func (c *Console) cmdStats() {
	s := c.bridge.Stats()
	fmt.Fprintf(c.out, "State:     %s\n", s.State)
	fmt.Fprintf(c.out, "Devices:   %d (%d busy)\n", s.Devices, s.Busy)
	fmt.Fprintf(c.out, "Queued:    %d\n", s.Queued)
	fmt.Fprintf(c.out, "In flight: %d\n", s.InFlight)
	fmt.Fprintf(c.out, "Datagrams: %d received, %d dispatched, %d rejected, %d malformed\n",
		s.Receiver.Received, s.Receiver.Dispatched, s.Receiver.Rejected, s.Receiver.Malformed)
}
