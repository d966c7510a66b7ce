package bridge

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhal-ipc/zhal-go/internal/radiocore"
	"github.com/zhal-ipc/zhal-go/pkg/event"
	"github.com/zhal-ipc/zhal-go/pkg/transport"
	"github.com/zhal-ipc/zhal-go/pkg/wire"
)

const (
	deviceA uint64 = 0x000d6f0003c04a7d
	deviceB uint64 = 0x000d6f0003c04a7e
	deviceC uint64 = 0x000d6f0003c04a7f
)

// startBridge runs a bridge against a fake radio core on loopback.
func startBridge(t *testing.T, configure ...func(*Config)) (*Bridge, *radiocore.Server) {
	t.Helper()

	core, err := radiocore.New(radiocore.Config{})
	require.NoError(t, err)
	require.NoError(t, core.Start(context.Background()))
	t.Cleanup(func() { core.Stop() })

	cfg := DefaultConfig()
	cfg.RadioCorePort = core.Port()
	cfg.EventPort = 0
	cfg.DefaultRequestTimeout = 2 * time.Second
	for _, fn := range configure {
		fn(&cfg)
	}

	b, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, b.Start(context.Background()))
	t.Cleanup(func() { b.Stop() })

	core.SetEventAddr(b.EventAddr())
	return b, core
}

func request(op string, device uint64) wire.Message {
	return wire.Message{
		radiocore.KeyRequest: op,
		wire.KeyEUI64:        wire.FormatEUI64(device),
	}
}

func requestIDOf(t *testing.T, core *radiocore.Server, index int) uint32 {
	t.Helper()
	var reqs []radiocore.Request
	require.Eventually(t, func() bool {
		reqs = core.Requests()
		return len(reqs) > index
	}, time.Second, 5*time.Millisecond)
	return reqs[index].RequestID
}

func TestSendRequestRoundTrip(t *testing.T) {
	b, core := startBridge(t)

	req := request("getSystemStatus", deviceA)
	resp, err := b.SendRequest(context.Background(), deviceA, req, 0)
	require.NoError(t, err)

	typ, _ := resp.String(wire.KeyResponseType)
	assert.Equal(t, "getSystemStatusResponse", typ)
	code, ok := wire.ResultCodeOf(resp)
	require.True(t, ok)
	assert.Equal(t, wire.ResultOK, code)

	reqs := core.Requests()
	require.Len(t, reqs, 1)
	id, _ := resp.Uint(wire.KeyRequestID)
	assert.Equal(t, uint64(reqs[0].RequestID), id)
	assert.Equal(t, deviceA, reqs[0].DeviceID)

	assert.False(t, req.Has(wire.KeyRequestID), "caller's request must not be modified")
}

func TestRequestIDsIncrease(t *testing.T) {
	b, core := startBridge(t)

	for range 3 {
		_, err := b.SendRequest(context.Background(), deviceA, request("ping", deviceA), 0)
		require.NoError(t, err)
	}

	reqs := core.Requests()
	require.Len(t, reqs, 3)
	assert.Equal(t, reqs[0].RequestID+1, reqs[1].RequestID)
	assert.Equal(t, reqs[1].RequestID+1, reqs[2].RequestID)
}

func TestSameDeviceRequestsAreSerialized(t *testing.T) {
	b, core := startBridge(t)
	core.SetBehavior(radiocore.Behavior{ReplyDelay: 20 * time.Millisecond})

	const n = 6
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := b.SendRequest(context.Background(), deviceA, request("ping", deviceA).Set("i", i), 0)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Len(t, core.Requests(), n)
	assert.Equal(t, 1, core.MaxInFlight(deviceA), "only one request per device may be in flight")
}

func TestStreamOrderFollowsSubmission(t *testing.T) {
	b, core := startBridge(t)
	core.SetBehavior(radiocore.Behavior{NoReply: true})

	results := make(chan wire.Message, 2)
	go func() {
		resp, _ := b.SendRequest(context.Background(), deviceA, request("first", deviceA), 0)
		results <- resp
	}()
	firstID := requestIDOf(t, core, 0)

	go func() {
		resp, _ := b.SendRequest(context.Background(), deviceA, request("second", deviceA), 0)
		results <- resp
	}()
	require.Eventually(t, func() bool { return b.Stats().Queued == 1 }, time.Second, 5*time.Millisecond)

	// The second request stays queued until the first is answered.
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, core.Requests(), 1)

	require.NoError(t, core.Respond(firstID, nil))
	first := <-results
	typ, _ := first.String(wire.KeyResponseType)
	assert.Equal(t, "firstResponse", typ)

	secondID := requestIDOf(t, core, 1)
	require.NoError(t, core.Respond(secondID, nil))
	second := <-results
	typ, _ = second.String(wire.KeyResponseType)
	assert.Equal(t, "secondResponse", typ)
}

func TestDifferentDevicesProceedIndependently(t *testing.T) {
	b, core := startBridge(t)
	core.SetBehavior(radiocore.Behavior{NoReply: true})

	devices := []uint64{deviceA, deviceB, deviceC}
	var wg sync.WaitGroup
	for _, dev := range devices {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := b.SendRequest(context.Background(), dev, request("ping", dev), 0)
			assert.NoError(t, err)
		}()
	}

	require.Eventually(t, func() bool {
		return len(core.Pending()) == len(devices)
	}, time.Second, 5*time.Millisecond, "all devices should have a request in flight at once")
	assert.Equal(t, len(devices), b.Stats().Busy)

	for _, id := range core.Pending() {
		require.NoError(t, core.Respond(id, nil))
	}
	wg.Wait()
}

func TestRequestTimeoutFreesDevice(t *testing.T) {
	b, core := startBridge(t)
	core.SetBehavior(radiocore.Behavior{NoReply: true})

	start := time.Now()
	_, err := b.SendRequest(context.Background(), deviceA, request("slow", deviceA), 200*time.Millisecond)
	require.ErrorIs(t, err, ErrRequestTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond)

	stats := b.Stats()
	assert.Equal(t, 0, stats.InFlight)
	assert.Equal(t, 0, stats.Busy)

	// A late response for the abandoned request is discarded.
	lateID := requestIDOf(t, core, 0)
	require.NoError(t, core.Respond(lateID, nil))

	core.SetBehavior(radiocore.Behavior{})
	resp, err := b.SendRequest(context.Background(), deviceA, request("fast", deviceA), time.Second)
	require.NoError(t, err)
	typ, _ := resp.String(wire.KeyResponseType)
	assert.Equal(t, "fastResponse", typ)
}

func TestContextCancelAbandonsRequest(t *testing.T) {
	b, core := startBridge(t)
	core.SetBehavior(radiocore.Behavior{NoReply: true})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		for len(core.Requests()) == 0 {
			time.Sleep(5 * time.Millisecond)
		}
		cancel()
	}()

	_, err := b.SendRequest(ctx, deviceA, request("slow", deviceA), 5*time.Second)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, b.Stats().Busy)
}

func TestTransmitFailureFailsFast(t *testing.T) {
	tests := []struct {
		name     string
		behavior radiocore.Behavior
		want     error
	}{
		{"ack rejected", radiocore.Behavior{AckResult: wire.ResultNotReady}, transport.ErrAckRejected},
		{"ack without result", radiocore.Behavior{OmitAckResult: true}, transport.ErrAckRejected},
		{"connection dropped", radiocore.Behavior{CloseWithoutAck: true}, transport.ErrReceiveFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, core := startBridge(t)
			core.SetBehavior(tt.behavior)

			start := time.Now()
			_, err := b.SendRequest(context.Background(), deviceA, request("ping", deviceA), 5*time.Second)
			require.ErrorIs(t, err, ErrTransmitFailed)
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, transport.ErrTransmitFailed)
			assert.Less(t, time.Since(start), 2*time.Second)

			stats := b.Stats()
			assert.Equal(t, 0, stats.InFlight)
			assert.Equal(t, 0, stats.Busy)

			core.SetBehavior(radiocore.Behavior{})
			_, err = b.SendRequest(context.Background(), deviceA, request("ping", deviceA), time.Second)
			assert.NoError(t, err)
		})
	}
}

func TestRadioCoreUnreachable(t *testing.T) {
	core, err := radiocore.New(radiocore.Config{})
	require.NoError(t, err)
	require.NoError(t, core.Start(context.Background()))
	port := core.Port()
	require.NoError(t, core.Stop())

	cfg := DefaultConfig()
	cfg.RadioCorePort = port
	cfg.EventPort = 0
	b, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, b.Start(context.Background()))
	defer b.Stop()

	_, err = b.SendRequest(context.Background(), deviceA, request("ping", deviceA), time.Second)
	require.ErrorIs(t, err, ErrTransmitFailed)
	assert.ErrorIs(t, err, transport.ErrConnectFailed)
}

func TestStopWakesAllWaiters(t *testing.T) {
	b, core := startBridge(t)
	core.SetBehavior(radiocore.Behavior{NoReply: true})

	devices := []uint64{deviceA, deviceA, deviceA, deviceB, deviceC}
	errs := make(chan error, len(devices))
	for _, dev := range devices {
		go func() {
			_, err := b.SendRequest(context.Background(), dev, request("slow", dev), 10*time.Second)
			errs <- err
		}()
	}

	require.Eventually(t, func() bool {
		s := b.Stats()
		return s.InFlight == 3 && s.Queued == 2
	}, time.Second, 5*time.Millisecond)

	start := time.Now()
	require.NoError(t, b.Stop())
	for range devices {
		select {
		case err := <-errs:
			assert.ErrorIs(t, err, ErrShutdown)
		case <-time.After(2 * time.Second):
			t.Fatal("waiter not woken by Stop")
		}
	}
	assert.Less(t, time.Since(start), 2*time.Second)

	assert.False(t, b.IsInitialized())
	assert.Equal(t, StateStopped, b.State())
	_, err := b.SendRequest(context.Background(), deviceA, request("ping", deviceA), 0)
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestRestartAfterStop(t *testing.T) {
	b, core := startBridge(t)

	require.NoError(t, b.Stop())
	require.NoError(t, b.Stop(), "second Stop is a no-op")

	require.NoError(t, b.Start(context.Background()))
	assert.ErrorIs(t, b.Start(context.Background()), ErrAlreadyStarted)
	core.SetEventAddr(b.EventAddr())

	_, err := b.SendRequest(context.Background(), deviceA, request("ping", deviceA), time.Second)
	assert.NoError(t, err)
}

func TestSendRequestBeforeStart(t *testing.T) {
	b, err := New(DefaultConfig())
	require.NoError(t, err)

	assert.False(t, b.IsInitialized())
	assert.Equal(t, StateIdle, b.State())
	assert.Nil(t, b.EventAddr())

	_, err = b.SendRequest(context.Background(), deviceA, request("ping", deviceA), 0)
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.NoError(t, b.Stop())
}

type observed struct {
	responseType string
	code         wire.ResultCode
}

func TestResponseObserver(t *testing.T) {
	var mu sync.Mutex
	var calls []observed
	b, core := startBridge(t, func(c *Config) {
		c.OnResponse = func(responseType string, code wire.ResultCode) {
			mu.Lock()
			calls = append(calls, observed{responseType, code})
			mu.Unlock()
		}
	})
	core.SetBehavior(radiocore.Behavior{NoReply: true})

	send := func(req wire.Message, fields wire.Message) {
		t.Helper()
		n := len(core.Requests())
		done := make(chan error, 1)
		go func() {
			_, err := b.SendRequest(context.Background(), deviceA, req, time.Second)
			done <- err
		}()
		require.NoError(t, core.Respond(requestIDOf(t, core, n), fields))
		require.NoError(t, <-done)
	}

	send(request("getSystemStatus", deviceA), nil)
	send(request("leave", deviceA), wire.Message{wire.KeyResultCode: int(wire.ResultTimeout)})
	send(request("bind", deviceA), wire.Message{wire.KeyResultCode: nil})
	send(wire.Message{wire.KeyEUI64: wire.FormatEUI64(deviceA)}, nil)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []observed{
		{"getSystemStatusResponse", wire.ResultOK},
		{"leaveResponse", wire.ResultTimeout},
		{"bindResponse", wire.ResultFail},
	}, calls, "responses without a responseType are not observed")
}

func TestHandleResponseWithoutPendingRequest(t *testing.T) {
	b, _ := startBridge(t)

	b.HandleResponse(wire.Message{wire.KeyEventType: wire.EventTypeIPCResponse, wire.KeyRequestID: uint64(4242)})
	b.HandleResponse(wire.Message{wire.KeyEventType: wire.EventTypeIPCResponse})
	b.HandleResponse(wire.Message{wire.KeyEventType: wire.EventTypeIPCResponse, wire.KeyRequestID: int64(-1)})

	stats := b.Stats()
	assert.Equal(t, 0, stats.InFlight)
	assert.Equal(t, 0, stats.Busy)
}

// eventRecorder forwards selected events to channels.
type eventRecorder struct {
	event.NopHandler
	joined   chan uint64
	commands chan *event.ClusterCommand
}

func newEventRecorder() *eventRecorder {
	return &eventRecorder{
		joined:   make(chan uint64, 8),
		commands: make(chan *event.ClusterCommand, 8),
	}
}

func (r *eventRecorder) DeviceJoined(eui64 uint64) { r.joined <- eui64 }

func (r *eventRecorder) ClusterCommandReceived(cmd *event.ClusterCommand) { r.commands <- cmd }

func clusterCommandEvent(apsSeq int) wire.Message {
	return wire.Message{
		wire.KeyEventType: event.TypeClusterCommandReceived,
		wire.KeyEUI64:     wire.FormatEUI64(deviceA),
		"sourceEndpoint":  1,
		"profileId":       0x0104,
		"direction":       1,
		"clusterId":       0x0006,
		"commandId":       1,
		"mfgSpecific":     false,
		"mfgCode":         0,
		"seqNum":          3,
		"apsSeqNum":       apsSeq,
		"rssi":            -40,
		"lqi":             200,
		"encodedBuf":      base64.StdEncoding.EncodeToString([]byte{0x01}),
	}
}

func TestEventsReachHandler(t *testing.T) {
	rec := newEventRecorder()
	b, core := startBridge(t, func(c *Config) { c.Handler = rec })

	require.NoError(t, core.SendEvent(wire.Message{
		wire.KeyEventType: event.TypeDeviceJoined,
		wire.KeyEUI64:     wire.FormatEUI64(deviceB),
	}))
	select {
	case eui := <-rec.joined:
		assert.Equal(t, deviceB, eui)
	case <-time.After(time.Second):
		t.Fatal("deviceJoined not delivered")
	}

	// Datagrams are dispatched concurrently, so each one is awaited before
	// the next is sent.
	expectCommand := func(seq uint8) {
		t.Helper()
		select {
		case cmd := <-rec.commands:
			assert.Equal(t, seq, cmd.APSSeqNum)
		case <-time.After(time.Second):
			t.Fatalf("cluster command %d not delivered", seq)
		}
	}

	require.NoError(t, core.SendEvent(clusterCommandEvent(9)))
	expectCommand(9)

	require.NoError(t, core.SendEvent(clusterCommandEvent(9)))
	select {
	case cmd := <-rec.commands:
		t.Fatalf("duplicate delivered: %+v", cmd)
	case <-time.After(100 * time.Millisecond):
	}

	require.NoError(t, core.SendEvent(clusterCommandEvent(10)))
	expectCommand(10)

	assert.Eventually(t, func() bool {
		return b.Stats().Receiver.Dispatched >= 4
	}, time.Second, 5*time.Millisecond)
}

func TestStopResetsDuplicateFilter(t *testing.T) {
	rec := newEventRecorder()
	b, core := startBridge(t, func(c *Config) { c.Handler = rec })

	require.NoError(t, core.SendEvent(clusterCommandEvent(5)))
	<-rec.commands
	assert.Equal(t, 1, b.Dispatcher().SeqCache().Len())

	require.NoError(t, b.Stop())
	assert.Equal(t, 0, b.Dispatcher().SeqCache().Len())

	require.NoError(t, b.Start(context.Background()))
	core.SetEventAddr(b.EventAddr())
	require.NoError(t, core.SendEvent(clusterCommandEvent(5)))
	select {
	case cmd := <-rec.commands:
		assert.Equal(t, uint8(5), cmd.APSSeqNum)
	case <-time.After(time.Second):
		t.Fatal("sequence number still filtered after restart")
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty host", func(c *Config) { c.RadioCoreHost = "" }},
		{"zero port", func(c *Config) { c.RadioCorePort = 0 }},
		{"port too large", func(c *Config) { c.RadioCorePort = 70000 }},
		{"negative event port", func(c *Config) { c.EventPort = -1 }},
		{"negative stream timeout", func(c *Config) { c.SendTimeout = -time.Second }},
		{"zero request timeout", func(c *Config) { c.DefaultRequestTimeout = 0 }},
		{"huge request timeout", func(c *Config) { c.DefaultRequestTimeout = 48 * time.Hour }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			assert.True(t, errors.Is(err, ErrInvalidConfig), "err = %v", err)

			_, err = New(cfg)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}

	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, "127.0.0.1:18443", cfg.RadioCoreAddress())
}
