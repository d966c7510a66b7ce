package event

// Handler receives decoded radio core events.
//
// Methods are called from a separate goroutine per event, so
// implementations must be safe for concurrent use. Events for different
// devices carry no ordering guarantee.
type Handler interface {
	Startup()
	NetworkConfigChanged(data string)
	DeviceAnnounced(eui64 uint64, deviceType DeviceType, powerSource PowerSource)
	DeviceJoined(eui64 uint64)
	DeviceLeft(eui64 uint64)
	DeviceRejoined(eui64 uint64, isSecure bool)
	LinkKeyUpdated(eui64 uint64, isUsingHashBasedKey bool)
	APSAckFailure(eui64 uint64)
	ClusterCommandReceived(cmd *ClusterCommand)
	AttributeReportReceived(report *AttributeReport)
	OTAUpgradeMessageSent(ev *OTAUpgradeEvent)
	OTAUpgradeMessageReceived(ev *OTAUpgradeEvent)
	DeviceCommunicationSucceeded(eui64 uint64)
	DeviceCommunicationFailed(eui64 uint64)
	NetworkHealthProblem()
	NetworkHealthProblemRestored()
	PanIDAttackDetected()
	PanIDAttackCleared()
	BeaconReceived(beacon *Beacon)
}

// NopHandler ignores every event. Embed it to implement only some methods.
type NopHandler struct{}

func (NopHandler) Startup()                                        {}
func (NopHandler) NetworkConfigChanged(string)                     {}
func (NopHandler) DeviceAnnounced(uint64, DeviceType, PowerSource) {}
func (NopHandler) DeviceJoined(uint64)                             {}
func (NopHandler) DeviceLeft(uint64)                               {}
func (NopHandler) DeviceRejoined(uint64, bool)                     {}
func (NopHandler) LinkKeyUpdated(uint64, bool)                     {}
func (NopHandler) APSAckFailure(uint64)                            {}
func (NopHandler) ClusterCommandReceived(*ClusterCommand)          {}
func (NopHandler) AttributeReportReceived(*AttributeReport)        {}
func (NopHandler) OTAUpgradeMessageSent(*OTAUpgradeEvent)          {}
func (NopHandler) OTAUpgradeMessageReceived(*OTAUpgradeEvent)      {}
func (NopHandler) DeviceCommunicationSucceeded(uint64)             {}
func (NopHandler) DeviceCommunicationFailed(uint64)                {}
func (NopHandler) NetworkHealthProblem()                           {}
func (NopHandler) NetworkHealthProblemRestored()                   {}
func (NopHandler) PanIDAttackDetected()                            {}
func (NopHandler) PanIDAttackCleared()                             {}
func (NopHandler) BeaconReceived(*Beacon)                          {}

var _ Handler = NopHandler{}
