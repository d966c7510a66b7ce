// Package transport moves messages between the bridge and the radio core.
//
// Two channels are used:
//   - a stream connection, opened once per request, that carries one
//     length-prefixed request frame out and one acknowledgement frame back
//   - a datagram socket on which the radio core delivers deferred responses
//     and asynchronous events
//
// # Stream Framing
//
//	┌────────────┬──────────────────────────┐
//	│ length (2) │ payload (length bytes)   │
//	└────────────┴──────────────────────────┘
//
// The byte order of the length prefix differs per direction: requests are
// written little-endian, acknowledgements arrive big-endian. Both orders are
// part of the radio core's contract and exposed as RequestByteOrder and
// AckByteOrder.
//
// # Trust Boundary
//
// The Receiver only accepts datagrams from loopback sources. Anything else is
// dropped and counted.
package transport
