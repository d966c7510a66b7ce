// Package event decodes unsolicited radio core events and delivers them to a
// Handler.
//
// Every event is a keyed message with an eventType field. The Dispatcher
// validates the fields each kind requires, converts them to typed values and
// calls the matching Handler method. Events that are incomplete or carry
// out-of-range values are logged and dropped.
//
// Cluster commands are retried by the mesh stack, so the same frame can reach
// the radio core more than once. The Dispatcher drops a clusterCommandReceived
// event whose APS sequence number equals the previous one seen from the same
// device.
//
// # Handler
//
// Embed NopHandler and override the methods of interest:
//
//	type joinLogger struct {
//	    event.NopHandler
//	}
//
//	func (joinLogger) DeviceJoined(eui64 uint64) {
//	    fmt.Printf("joined: %016x\n", eui64)
//	}
package event
