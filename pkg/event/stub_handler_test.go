package event

import "github.com/stretchr/testify/mock"

type stubHandler struct{ mock.Mock }

func (h *stubHandler) Startup()                         { h.Called() }
func (h *stubHandler) NetworkConfigChanged(data string) { h.Called(data) }
func (h *stubHandler) DeviceAnnounced(eui64 uint64, deviceType DeviceType, powerSource PowerSource) {
	h.Called(eui64, deviceType, powerSource)
}
func (h *stubHandler) DeviceJoined(eui64 uint64)                     { h.Called(eui64) }
func (h *stubHandler) DeviceLeft(eui64 uint64)                       { h.Called(eui64) }
func (h *stubHandler) DeviceRejoined(eui64 uint64, isSecure bool)    { h.Called(eui64, isSecure) }
func (h *stubHandler) LinkKeyUpdated(eui64 uint64, hashed bool)      { h.Called(eui64, hashed) }
func (h *stubHandler) APSAckFailure(eui64 uint64)                    { h.Called(eui64) }
func (h *stubHandler) ClusterCommandReceived(cmd *ClusterCommand)    { h.Called(cmd) }
func (h *stubHandler) AttributeReportReceived(r *AttributeReport)    { h.Called(r) }
func (h *stubHandler) OTAUpgradeMessageSent(ev *OTAUpgradeEvent)     { h.Called(ev) }
func (h *stubHandler) OTAUpgradeMessageReceived(ev *OTAUpgradeEvent) { h.Called(ev) }
func (h *stubHandler) DeviceCommunicationSucceeded(eui64 uint64)     { h.Called(eui64) }
func (h *stubHandler) DeviceCommunicationFailed(eui64 uint64)        { h.Called(eui64) }
func (h *stubHandler) NetworkHealthProblem()                         { h.Called() }
func (h *stubHandler) NetworkHealthProblemRestored()                 { h.Called() }
func (h *stubHandler) PanIDAttackDetected()                          { h.Called() }
func (h *stubHandler) PanIDAttackCleared()                           { h.Called() }
func (h *stubHandler) BeaconReceived(b *Beacon)                      { h.Called(b) }

var _ Handler = (*stubHandler)(nil)
