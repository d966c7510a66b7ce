package transport

import (
	"context"
	"net"
	"os"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/zhal-ipc/zhal-go/pkg/wire"
)

type collected struct {
	responses chan wire.Message
	events    chan wire.Message
}

func newReceiver(t *testing.T, conn net.PacketConn) (*Receiver, *collected) {
	t.Helper()
	c := &collected{
		responses: make(chan wire.Message, 8),
		events:    make(chan wire.Message, 8),
	}
	r, err := NewReceiver(ReceiverConfig{
		Conn:       conn,
		OnResponse: func(m wire.Message) { c.responses <- m },
		OnEvent:    func(m wire.Message) { c.events <- m },
	})
	if err != nil {
		t.Fatalf("NewReceiver failed: %v", err)
	}
	t.Cleanup(func() { r.Stop() })
	return r, c
}

func listenLoopback(t *testing.T) net.PacketConn {
	t.Helper()
	conn, err := ListenDatagram(context.Background(), "127.0.0.1", 0)
	if err != nil {
		t.Fatalf("ListenDatagram failed: %v", err)
	}
	return conn
}

func expect(t *testing.T, ch <-chan wire.Message) wire.Message {
	t.Helper()
	select {
	case m := <-ch:
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for dispatch")
		return nil
	}
}

func expectNone(t *testing.T, ch <-chan wire.Message) {
	t.Helper()
	select {
	case m := <-ch:
		t.Fatalf("unexpected dispatch: %v", m)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestReceiverDispatchesOverLoopback(t *testing.T) {
	conn := listenLoopback(t)
	r, c := newReceiver(t, conn)
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	sender, err := net.Dial("udp", r.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer sender.Close()

	sender.Write([]byte(`{"eventType":"ipcResponse","requestId":4,"resultCode":0}`))
	sender.Write([]byte(`{"eventType":"deviceJoined","eui64":"000d6f0003c04a7d"}`))

	resp := expect(t, c.responses)
	if id, _ := resp.Uint(wire.KeyRequestID); id != 4 {
		t.Errorf("response requestId = %d", id)
	}
	ev := expect(t, c.events)
	if et, _ := ev.String(wire.KeyEventType); et != "deviceJoined" {
		t.Errorf("event type = %q", et)
	}
}

// flakyConn fails the first read with a socket error, then reads normally.
type flakyConn struct {
	net.PacketConn
	failed atomic.Bool
}

func (c *flakyConn) ReadFrom(p []byte) (int, net.Addr, error) {
	if c.failed.CompareAndSwap(false, true) {
		return 0, nil, &net.OpError{Op: "read", Net: "udp", Err: os.NewSyscallError("recvfrom", syscall.ENOBUFS)}
	}
	return c.PacketConn.ReadFrom(p)
}

func TestReceiverSurvivesReadError(t *testing.T) {
	conn := &flakyConn{PacketConn: listenLoopback(t)}
	r, c := newReceiver(t, conn)
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	sender, err := net.Dial("udp", r.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer sender.Close()
	sender.Write([]byte(`{"eventType":"ipcResponse","requestId":9,"resultCode":0}`))

	resp := expect(t, c.responses)
	if id, _ := resp.Uint(wire.KeyRequestID); id != 9 {
		t.Errorf("response requestId = %d, want 9", id)
	}
	if stats := r.Stats(); stats.ReadErrors != 1 || stats.Dispatched != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestReceiverRejectsForeignSource(t *testing.T) {
	r, c := newReceiver(t, listenLoopback(t))

	foreign := &net.UDPAddr{IP: net.ParseIP("192.0.2.10"), Port: 5000}
	r.HandleDatagram([]byte(`{"eventType":"ipcResponse","requestId":1}`), foreign)

	expectNone(t, c.responses)
	stats := r.Stats()
	if stats.Received != 1 || stats.Rejected != 1 || stats.Dispatched != 0 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestReceiverDropsMalformed(t *testing.T) {
	r, c := newReceiver(t, listenLoopback(t))
	local := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 5000}

	r.HandleDatagram([]byte(`{"eventType":`), local)
	r.HandleDatagram([]byte(`[1,2]`), local)
	r.HandleDatagram([]byte(`{"requestId":1}`), local)

	expectNone(t, c.events)
	expectNone(t, c.responses)
	if stats := r.Stats(); stats.Malformed != 3 {
		t.Errorf("malformed = %d, want 3", stats.Malformed)
	}
}

func TestReceiverStopUnblocksRead(t *testing.T) {
	r, _ := newReceiver(t, listenLoopback(t))
	if err := r.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := r.Start(context.Background()); err != ErrReceiverRunning {
		t.Errorf("second Start = %v, want ErrReceiverRunning", err)
	}

	done := make(chan struct{})
	go func() {
		r.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not unblock the receive loop")
	}
}

func TestReceiverContextCancel(t *testing.T) {
	conn := listenLoopback(t)
	r, _ := newReceiver(t, conn)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- r.Run(ctx) }()

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestListenDatagramReusesPort(t *testing.T) {
	first := listenLoopback(t)
	defer first.Close()

	port := first.LocalAddr().(*net.UDPAddr).Port
	second, err := ListenDatagram(context.Background(), "127.0.0.1", port)
	if err != nil {
		t.Fatalf("rebinding port %d failed: %v", port, err)
	}
	second.Close()
}

func TestIsLoopbackAddr(t *testing.T) {
	tests := []struct {
		addr net.Addr
		want bool
	}{
		{&net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)}, true},
		{&net.UDPAddr{IP: net.IPv6loopback}, true},
		{&net.UDPAddr{IP: net.ParseIP("10.0.0.1")}, false},
		{&net.TCPAddr{IP: net.IPv4(127, 0, 0, 2)}, true},
		{nil, false},
	}
	for _, tt := range tests {
		if got := IsLoopbackAddr(tt.addr); got != tt.want {
			t.Errorf("IsLoopbackAddr(%v) = %v, want %v", tt.addr, got, tt.want)
		}
	}
}
