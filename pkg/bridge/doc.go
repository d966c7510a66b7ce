// Package bridge implements the client side of the radio core IPC.
//
// A Bridge turns the radio core's split exchange into a blocking call:
//
//	caller ──SendRequest──▶ device queue ──worker──▶ stream (request/ack)
//	   ▲                                                   │
//	   └──── correlation table ◀── datagram (ipcResponse) ◀┘
//
// Requests are queued per device and at most one request per device is in
// flight. Different devices proceed independently. Each request carries a
// requestId that the radio core echoes in its deferred response; the bridge
// matches responses to waiting callers by that id.
//
// Datagrams that are not responses are unsolicited events and go to the
// configured event.Handler.
//
// # Lifecycle
//
//	b, err := bridge.New(cfg)
//	err = b.Start(ctx)
//	resp, err := b.SendRequest(ctx, eui64, req, 5*time.Second)
//	err = b.Stop()
//
// Stop wakes every waiting caller with ErrShutdown. A stopped bridge can be
// started again.
package bridge
