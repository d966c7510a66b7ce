// Command radiocore-mock runs a fake radio core for local bridge testing.
//
// It accepts requests on the stream port, acknowledges them and answers each
// one with an ipcResponse datagram on the event port.
//
// Usage:
//
//	radiocore-mock [flags]
//
// Flags:
//
//	-listen string        Stream listen address (default "127.0.0.1:18443")
//	-event-addr string    Bridge event address (default "127.0.0.1:8711")
//	-codec string         Wire codec: json, cbor (default "json")
//	-ack-fail             Reject every request in the acknowledgement
//	-no-reply             Acknowledge requests but never respond
//	-reply-delay duration Delay before each response
//	-startup              Send a startup event once listening
//	-log-level string     Log level: debug, info, warn, error (default "info")
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/zhal-ipc/zhal-go/internal/config"
	"github.com/zhal-ipc/zhal-go/internal/radiocore"
	"github.com/zhal-ipc/zhal-go/pkg/bridge"
	"github.com/zhal-ipc/zhal-go/pkg/event"
	"github.com/zhal-ipc/zhal-go/pkg/wire"
)

var (
	listenAddr = flag.String("listen", net.JoinHostPort(bridge.DefaultRadioCoreHost, strconv.Itoa(bridge.DefaultRadioCorePort)), "Stream listen address")
	eventAddr  = flag.String("event-addr", net.JoinHostPort(bridge.DefaultRadioCoreHost, strconv.Itoa(bridge.DefaultEventPort)), "Bridge event address")
	codecName  = flag.String("codec", wire.CodecJSON, "Wire codec: json, cbor")
	ackFail    = flag.Bool("ack-fail", false, "Reject every request in the acknowledgement")
	noReply    = flag.Bool("no-reply", false, "Acknowledge requests but never respond")
	replyDelay = flag.Duration("reply-delay", 0, "Delay before each response")
	startup    = flag.Bool("startup", false, "Send a startup event once listening")
	logLevel   = flag.String("log-level", "info", "Log level: debug, info, warn, error")
)

func main() {
	flag.Parse()
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "radiocore-mock: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	level, err := config.ParseLevel(*logLevel)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	codec, err := wire.CodecByName(*codecName)
	if err != nil {
		return err
	}

	behavior := radiocore.Behavior{
		NoReply:    *noReply,
		ReplyDelay: *replyDelay,
	}
	if *ackFail {
		behavior.AckResult = wire.ResultFail
	}

	srv, err := radiocore.New(radiocore.Config{
		ListenAddr: *listenAddr,
		EventAddr:  *eventAddr,
		Behavior:   behavior,
		Codec:      codec,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := srv.Start(ctx); err != nil {
		return err
	}
	logger.Info("radio core mock listening", "addr", srv.Addr().String(), "event_addr", *eventAddr)

	if *startup {
		if err := srv.SendEvent(wire.Message{wire.KeyEventType: event.TypeStartup}); err != nil {
			logger.Warn("failed to send startup event", "error", err)
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received signal", "signal", sig.String())

	cancel()
	if err := srv.Stop(); err != nil {
		return err
	}
	logger.Info("served requests", "count", len(srv.Requests()))
	return nil
}
