package event

import "github.com/zhal-ipc/zhal-go/pkg/wire"

// Event type names as sent by the radio core.
const (
	TypeStartup                      = "zhalStartup"
	TypeNetworkConfigChanged         = "networkConfigChanged"
	TypeDeviceAnnounced              = "deviceAnnounced"
	TypeDeviceJoined                 = "deviceJoined"
	TypeDeviceLeft                   = "deviceLeft"
	TypeDeviceRejoined               = "deviceRejoined"
	TypeLinkKeyUpdated               = "linkKeyUpdated"
	TypeAPSAckFailure                = "apsAckFailure"
	TypeClusterCommandReceived       = "clusterCommandReceived"
	TypeAttributeReport              = "attributeReport"
	TypeOTAUpgradeMessageSent        = "deviceOtaUpgradeMessageSentEvent"
	TypeOTAUpgradeMessageReceived    = "deviceOtaUpgradeMessageReceivedEvent"
	TypeDeviceCommunicationSucceeded = "deviceCommunicationSucceededEvent"
	TypeDeviceCommunicationFailed    = "deviceCommunicationFailedEvent"
	TypeNetworkHealthProblem         = "networkHealthProblem"
	TypeNetworkHealthProblemRestored = "networkHealthProblemRestored"
	TypePanIDAttack                  = "panIdAttack"
	TypePanIDAttackCleared           = "panIdAttackCleared"
	TypeBeaconReceived               = "beaconReceived"
)

// DeviceType is the role a device announced itself with.
type DeviceType uint8

// Device types.
const (
	DeviceTypeUnknown DeviceType = iota
	DeviceTypeEndDevice
	DeviceTypeRouter
)

// String returns the device type name.
func (t DeviceType) String() string {
	switch t {
	case DeviceTypeEndDevice:
		return "endDevice"
	case DeviceTypeRouter:
		return "router"
	default:
		return "unknown"
	}
}

func parseDeviceType(s string) DeviceType {
	switch s {
	case "endDevice":
		return DeviceTypeEndDevice
	case "router":
		return DeviceTypeRouter
	default:
		return DeviceTypeUnknown
	}
}

// PowerSource is how an announced device is powered.
type PowerSource uint8

// Power sources.
const (
	PowerSourceUnknown PowerSource = iota
	PowerSourceMains
	PowerSourceBattery
)

// String returns the power source name.
func (p PowerSource) String() string {
	switch p {
	case PowerSourceMains:
		return "mains"
	case PowerSourceBattery:
		return "battery"
	default:
		return "unknown"
	}
}

func parsePowerSource(s string) PowerSource {
	switch s {
	case "mains":
		return PowerSourceMains
	case "battery":
		return PowerSourceBattery
	default:
		return PowerSourceUnknown
	}
}

// ClusterCommand is a cluster command frame received from a device.
type ClusterCommand struct {
	EUI64          uint64
	SourceEndpoint uint8
	ProfileID      uint16
	ClusterID      uint16
	CommandID      uint8

	// FromServer is set when the command was sent server to client.
	FromServer bool

	MfgSpecific bool
	MfgCode     uint16
	SeqNum      uint8
	APSSeqNum   uint8
	RSSI        int8
	LQI         uint8

	// Data is the command payload.
	Data []byte
}

// AttributeReport is an attribute report received from a device.
type AttributeReport struct {
	EUI64          uint64
	SourceEndpoint uint8
	ClusterID      uint16

	// MfgCode is zero unless the report was manufacturer specific.
	MfgCode uint16

	RSSI int8
	LQI  uint8

	// Data is the encoded attribute records.
	Data []byte
}

// OTAEventType identifies an over-the-air upgrade message.
type OTAEventType uint8

// OTA event types.
const (
	OTAEventInvalid OTAEventType = iota
	OTAEventImageNotify
	OTAEventQueryNextImageRequest
	OTAEventQueryNextImageResponse
	OTAEventUpgradeStarted
	OTAEventUpgradeEndRequest
	OTAEventUpgradeEndResponse
	OTAEventLegacyBootloadUpgradeStarted
	OTAEventLegacyBootloadUpgradeFailed
	OTAEventLegacyBootloadUpgradeCompleted
)

var otaEventNames = map[OTAEventType]string{
	OTAEventImageNotify:                    "imageNotifySent",
	OTAEventQueryNextImageRequest:          "queryNextImageRequest",
	OTAEventQueryNextImageResponse:         "queryNextImageResponseSent",
	OTAEventUpgradeStarted:                 "upgradeStarted",
	OTAEventUpgradeEndRequest:              "upgradeEndRequest",
	OTAEventUpgradeEndResponse:             "upgradeEndResponseSent",
	OTAEventLegacyBootloadUpgradeStarted:   "legacyBootloadUpgradeStarted",
	OTAEventLegacyBootloadUpgradeFailed:    "legacyBootloadUpgradeFailed",
	OTAEventLegacyBootloadUpgradeCompleted: "legacyBootloadUpgradeCompleted",
}

var otaEventsByName = func() map[string]OTAEventType {
	m := make(map[string]OTAEventType, len(otaEventNames))
	for t, name := range otaEventNames {
		m[name] = t
	}
	return m
}()

// String returns the name the radio core uses for t.
func (t OTAEventType) String() string {
	if name, ok := otaEventNames[t]; ok {
		return name
	}
	return "invalid"
}

// sentByRadio reports whether t describes a message the radio core sent.
// These kinds always carry a send status.
func (t OTAEventType) sentByRadio() bool {
	switch t {
	case OTAEventImageNotify, OTAEventQueryNextImageResponse, OTAEventUpgradeEndResponse:
		return true
	}
	return false
}

// sentByDevice reports whether t describes a message a device originated.
func (t OTAEventType) sentByDevice() bool {
	switch t {
	case OTAEventLegacyBootloadUpgradeStarted,
		OTAEventLegacyBootloadUpgradeFailed,
		OTAEventLegacyBootloadUpgradeCompleted,
		OTAEventQueryNextImageRequest,
		OTAEventUpgradeStarted,
		OTAEventUpgradeEndRequest:
		return true
	}
	return false
}

// OTAUpgradeEvent is an over-the-air upgrade message sent to or received from
// a device.
type OTAUpgradeEvent struct {
	Type  OTAEventType
	EUI64 uint64

	// Timestamp is the radio core's timestamp of the message.
	Timestamp uint64

	// SentStatus is the send result for messages the radio core sent.
	SentStatus *wire.ResultCode

	// Data is the raw message.
	Data []byte
}

// Beacon is a network beacon heard during a scan.
type Beacon struct {
	EUI64                uint64
	PanID                uint16
	IsOpen               bool
	HasEndDeviceCapacity bool
	HasRouterCapacity    bool
	Depth                uint8
}
