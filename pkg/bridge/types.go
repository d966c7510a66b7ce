package bridge

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/zhal-ipc/zhal-go/pkg/event"
	"github.com/zhal-ipc/zhal-go/pkg/log"
	"github.com/zhal-ipc/zhal-go/pkg/transport"
	"github.com/zhal-ipc/zhal-go/pkg/wire"
)

// Bridge errors.
var (
	ErrNotInitialized = errors.New("bridge not initialized")
	ErrAlreadyStarted = errors.New("bridge already started")
	ErrTransmitFailed = errors.New("request not accepted by radio core")
	ErrRequestTimeout = errors.New("request timed out")
	ErrShutdown       = errors.New("bridge shut down")
	ErrInvalidConfig  = errors.New("invalid configuration")
)

// Default endpoints and timeouts.
const (
	DefaultRadioCoreHost  = "127.0.0.1"
	DefaultRadioCorePort  = 18443
	DefaultRequestTimeout = 30 * time.Second
	DefaultEventPort      = transport.DefaultEventPort
	DefaultStreamTimeout  = 10 * time.Second
	maxRequestTimeout     = 24 * time.Hour
)

// State represents the bridge lifecycle state.
type State uint8

const (
	// StateIdle - bridge created but not started.
	StateIdle State = iota

	// StateRunning - receiver and worker are running.
	StateRunning

	// StateStopping - shutdown in progress.
	StateStopping

	// StateStopped - bridge has stopped and can be started again.
	StateStopped
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateRunning:
		return "RUNNING"
	case StateStopping:
		return "STOPPING"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// ResponseObserver is told the type and result code of every response that
// completed a request. It is meant for health monitoring and must not block.
type ResponseObserver func(responseType string, code wire.ResultCode)

// Config configures a Bridge.
type Config struct {
	// RadioCoreHost is the host the radio core listens on. A loopback host
	// also restricts the event socket to loopback.
	RadioCoreHost string

	// RadioCorePort is the radio core's stream port.
	RadioCorePort int

	// EventPort is the local datagram port for responses and events.
	// Zero picks an ephemeral port (tests only: the radio core sends to a
	// fixed port).
	EventPort int

	// ConnectTimeout, SendTimeout and ReceiveTimeout bound each stream
	// exchange.
	ConnectTimeout time.Duration
	SendTimeout    time.Duration
	ReceiveTimeout time.Duration

	// DefaultRequestTimeout applies when SendRequest is given no timeout.
	DefaultRequestTimeout time.Duration

	// Codec encodes the wire format (default: JSON).
	Codec wire.Codec

	// Handler receives unsolicited events. Nil ignores them.
	Handler event.Handler

	// OnResponse is called after every correlated response. Optional.
	OnResponse ResponseObserver

	// Logger is used for operational logging.
	Logger *slog.Logger

	// ProtocolLogger receives capture events. Optional.
	ProtocolLogger log.Logger
}

// DefaultConfig returns a Config with the radio core's usual endpoints.
func DefaultConfig() Config {
	return Config{
		RadioCoreHost:         DefaultRadioCoreHost,
		RadioCorePort:         DefaultRadioCorePort,
		EventPort:             DefaultEventPort,
		ConnectTimeout:        DefaultStreamTimeout,
		SendTimeout:           DefaultStreamTimeout,
		ReceiveTimeout:        DefaultStreamTimeout,
		DefaultRequestTimeout: DefaultRequestTimeout,
		Codec:                 wire.JSONCodec{},
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.RadioCoreHost == "" {
		return fmt.Errorf("%w: radio core host is required", ErrInvalidConfig)
	}
	if c.RadioCorePort <= 0 || c.RadioCorePort > 65535 {
		return fmt.Errorf("%w: radio core port %d", ErrInvalidConfig, c.RadioCorePort)
	}
	if c.EventPort < 0 || c.EventPort > 65535 {
		return fmt.Errorf("%w: event port %d", ErrInvalidConfig, c.EventPort)
	}
	if c.ConnectTimeout < 0 || c.SendTimeout < 0 || c.ReceiveTimeout < 0 {
		return fmt.Errorf("%w: negative stream timeout", ErrInvalidConfig)
	}
	if c.DefaultRequestTimeout <= 0 || c.DefaultRequestTimeout > maxRequestTimeout {
		return fmt.Errorf("%w: default request timeout %v", ErrInvalidConfig, c.DefaultRequestTimeout)
	}
	return nil
}

// RadioCoreAddress returns host:port of the radio core's stream endpoint.
func (c *Config) RadioCoreAddress() string {
	return net.JoinHostPort(c.RadioCoreHost, fmt.Sprint(c.RadioCorePort))
}

// Stats is a snapshot of the bridge's queues.
type Stats struct {
	// State is the lifecycle state.
	State State

	// Devices is the number of device queues.
	Devices int

	// Queued counts requests waiting in device queues.
	Queued int

	// InFlight counts requests awaiting a response.
	InFlight int

	// Busy counts devices with a request in flight.
	Busy int

	// Receiver holds the datagram counters.
	Receiver transport.ReceiverStats
}
