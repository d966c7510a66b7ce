package event

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/zhal-ipc/zhal-go/pkg/wire"
)

// Dispatch errors.
var (
	// ErrIncompleteEvent indicates a required field is missing.
	ErrIncompleteEvent = errors.New("incomplete event")

	// ErrInvalidEvent indicates a field has the wrong type or is out of range.
	ErrInvalidEvent = errors.New("invalid event")

	// ErrUnknownEvent indicates an eventType with no handler method.
	ErrUnknownEvent = errors.New("unknown event type")

	// ErrDuplicate indicates a repeated APS sequence number.
	ErrDuplicate = errors.New("duplicate event")
)

// Dispatcher decodes events and calls the matching Handler method.
// It is safe for concurrent use.
type Dispatcher struct {
	handler Handler
	logger  *slog.Logger
	seqs    *SeqCache
}

// NewDispatcher creates a Dispatcher. A nil handler ignores every event and a
// nil logger discards log output.
func NewDispatcher(handler Handler, logger *slog.Logger) *Dispatcher {
	if handler == nil {
		handler = NopHandler{}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Dispatcher{
		handler: handler,
		logger:  logger,
		seqs:    NewSeqCache(),
	}
}

// Reset clears the duplicate cache.
func (d *Dispatcher) Reset() {
	d.seqs.Reset()
}

// SeqCache returns the duplicate cache.
func (d *Dispatcher) SeqCache() *SeqCache {
	return d.seqs
}

// Dispatch delivers msg to the handler. Events that cannot be delivered are
// logged and the reason is returned.
func (d *Dispatcher) Dispatch(msg wire.Message) error {
	eventType, _ := msg.String(wire.KeyEventType)

	err := d.dispatch(eventType, msg)
	switch {
	case err == nil:
	case errors.Is(err, ErrUnknownEvent):
		d.logger.Debug("ignoring unknown event", "event_type", eventType)
	case errors.Is(err, ErrDuplicate):
		d.logger.Warn("duplicate APS sequence number, ignoring", "event_type", eventType, "eui64", msg[wire.KeyEUI64])
	default:
		d.logger.Error("dropping event", "event_type", eventType, "error", err)
	}
	return err
}

func (d *Dispatcher) dispatch(eventType string, msg wire.Message) error {
	r := &fieldReader{msg: msg}

	switch eventType {
	case "":
		return fmt.Errorf("%w: missing %s", ErrIncompleteEvent, wire.KeyEventType)

	case TypeStartup:
		d.handler.Startup()

	case TypeNetworkConfigChanged:
		data := r.str("networkConfigData")
		if r.err != nil {
			return r.err
		}
		d.handler.NetworkConfigChanged(data)

	case TypeDeviceAnnounced:
		eui64 := r.eui64(wire.KeyEUI64)
		deviceType := parseDeviceType(r.str("deviceType"))
		powerSource := parsePowerSource(r.str("powerSource"))
		if r.err != nil {
			return r.err
		}
		d.handler.DeviceAnnounced(eui64, deviceType, powerSource)

	case TypeDeviceJoined, TypeDeviceLeft, TypeAPSAckFailure,
		TypeDeviceCommunicationSucceeded, TypeDeviceCommunicationFailed:
		eui64 := r.eui64(wire.KeyEUI64)
		if r.err != nil {
			return r.err
		}
		d.deviceEvent(eventType, eui64)

	case TypeDeviceRejoined:
		eui64 := r.eui64(wire.KeyEUI64)
		isSecure := r.truth("isSecure")
		if r.err != nil {
			return r.err
		}
		d.handler.DeviceRejoined(eui64, isSecure)

	case TypeLinkKeyUpdated:
		eui64 := r.eui64(wire.KeyEUI64)
		if r.err != nil {
			return r.err
		}
		hashed, _ := msg.Bool("isUsingHashBasedKey")
		d.handler.LinkKeyUpdated(eui64, hashed)

	case TypeClusterCommandReceived:
		cmd, err := decodeClusterCommand(r)
		if err != nil {
			return err
		}
		if d.seqs.IsDuplicate(cmd.EUI64, cmd.APSSeqNum) {
			return fmt.Errorf("%w: apsSeqNum %d from %s", ErrDuplicate, cmd.APSSeqNum, wire.FormatEUI64(cmd.EUI64))
		}
		d.handler.ClusterCommandReceived(cmd)

	case TypeAttributeReport:
		report, err := decodeAttributeReport(r)
		if err != nil {
			return err
		}
		d.handler.AttributeReportReceived(report)

	case TypeOTAUpgradeMessageSent:
		ev, err := decodeOTAEvent(r)
		if err != nil {
			return err
		}
		if !ev.Type.sentByRadio() {
			return fmt.Errorf("%w: otaEventType %s is not a sent message", ErrInvalidEvent, ev.Type)
		}
		if ev.SentStatus == nil {
			return fmt.Errorf("%w: otaEventType %s requires sentStatus", ErrInvalidEvent, ev.Type)
		}
		d.handler.OTAUpgradeMessageSent(ev)

	case TypeOTAUpgradeMessageReceived:
		ev, err := decodeOTAEvent(r)
		if err != nil {
			return err
		}
		if !ev.Type.sentByDevice() {
			return fmt.Errorf("%w: otaEventType %s is not a received message", ErrInvalidEvent, ev.Type)
		}
		d.handler.OTAUpgradeMessageReceived(ev)

	case TypeNetworkHealthProblem:
		d.handler.NetworkHealthProblem()

	case TypeNetworkHealthProblemRestored:
		d.handler.NetworkHealthProblemRestored()

	case TypePanIDAttack:
		d.handler.PanIDAttackDetected()

	case TypePanIDAttackCleared:
		d.handler.PanIDAttackCleared()

	case TypeBeaconReceived:
		beacon := &Beacon{
			EUI64:                r.eui64(wire.KeyEUI64),
			PanID:                r.u16("panId"),
			IsOpen:               r.truth("isOpen"),
			HasEndDeviceCapacity: r.truth("hasEndDeviceCapacity"),
			HasRouterCapacity:    r.truth("hasRouterCapacity"),
			Depth:                r.u8("depth"),
		}
		if r.err != nil {
			return r.err
		}
		d.handler.BeaconReceived(beacon)

	default:
		return fmt.Errorf("%w: %s", ErrUnknownEvent, eventType)
	}
	return nil
}

func (d *Dispatcher) deviceEvent(eventType string, eui64 uint64) {
	switch eventType {
	case TypeDeviceJoined:
		d.handler.DeviceJoined(eui64)
	case TypeDeviceLeft:
		d.handler.DeviceLeft(eui64)
	case TypeAPSAckFailure:
		d.handler.APSAckFailure(eui64)
	case TypeDeviceCommunicationSucceeded:
		d.handler.DeviceCommunicationSucceeded(eui64)
	case TypeDeviceCommunicationFailed:
		d.handler.DeviceCommunicationFailed(eui64)
	}
}

func decodeClusterCommand(r *fieldReader) (*ClusterCommand, error) {
	cmd := &ClusterCommand{
		EUI64:          r.eui64(wire.KeyEUI64),
		SourceEndpoint: r.u8("sourceEndpoint"),
		ProfileID:      r.u16("profileId"),
		FromServer:     r.u8("direction") == 1,
		ClusterID:      r.u16("clusterId"),
		CommandID:      r.u8("commandId"),
		MfgSpecific:    r.flag("mfgSpecific"),
		MfgCode:        r.u16("mfgCode"),
		SeqNum:         r.u8("seqNum"),
		APSSeqNum:      r.u8("apsSeqNum"),
		RSSI:           r.i8("rssi"),
		LQI:            r.u8("lqi"),
		Data:           r.blob("encodedBuf"),
	}
	if r.err != nil {
		return nil, r.err
	}
	return cmd, nil
}

func decodeAttributeReport(r *fieldReader) (*AttributeReport, error) {
	report := &AttributeReport{
		EUI64:          r.eui64(wire.KeyEUI64),
		SourceEndpoint: r.u8("sourceEndpoint"),
		ClusterID:      r.u16("clusterId"),
		RSSI:           r.i8("rssi"),
		LQI:            r.u8("lqi"),
		Data:           r.blob("encodedBuf"),
	}
	if r.msg.Has("mfgCode") {
		report.MfgCode = r.u16("mfgCode")
	}
	if r.err != nil {
		return nil, r.err
	}
	return report, nil
}

func decodeOTAEvent(r *fieldReader) (*OTAUpgradeEvent, error) {
	ev := &OTAUpgradeEvent{
		Type:      otaEventsByName[r.str("otaEventType")],
		EUI64:     r.eui64(wire.KeyEUI64),
		Timestamp: r.decimal("timestamp"),
		Data:      r.blob("encodedBuf"),
	}
	if r.msg.Has("sentStatus") {
		v, ok := r.msg.Int("sentStatus")
		if !ok {
			r.fail(fmt.Errorf("%w: sentStatus is not a number", ErrInvalidEvent))
		}
		status := wire.ResultCode(v)
		ev.SentStatus = &status
	}
	if r.err != nil {
		return nil, r.err
	}
	return ev, nil
}
