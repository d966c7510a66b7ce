// Package wire defines the structured message format exchanged with the
// radio core.
//
// Every request, synchronous acknowledgement, deferred response and event is
// a keyed map ([Message]). The radio core speaks JSON; a CBOR codec with the
// same map shape is available for deployments that run a CBOR-capable core.
//
// # Well-known Keys
//
//   - requestId: correlation id injected into every request and echoed by
//     the deferred response
//   - eventType: discriminant of datagrams ("ipcResponse" or an event name)
//   - resultCode: status of an acknowledgement or response (0 = success)
//   - responseType: name of the deferred response kind
//
// # Redaction
//
// Some payloads carry network secrets. Anything that is logged must go
// through [Redact] first.
package wire
