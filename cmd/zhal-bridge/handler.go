package main

import (
	"log/slog"

	"github.com/zhal-ipc/zhal-go/pkg/event"
	"github.com/zhal-ipc/zhal-go/pkg/wire"
)

// loggingHandler logs every radio core event.
type loggingHandler struct {
	logger *slog.Logger
}

func eui(id uint64) slog.Attr {
	return slog.String("eui64", wire.FormatEUI64(id))
}

func (h loggingHandler) Startup() {
	h.logger.Info("radio core started")
}

func (h loggingHandler) NetworkConfigChanged(data string) {
	h.logger.Info("network config changed", "size", len(data))
}

func (h loggingHandler) DeviceAnnounced(id uint64, deviceType event.DeviceType, powerSource event.PowerSource) {
	h.logger.Info("device announced", eui(id), "type", deviceType.String(), "power", powerSource.String())
}

func (h loggingHandler) DeviceJoined(id uint64) { h.logger.Info("device joined", eui(id)) }
func (h loggingHandler) DeviceLeft(id uint64)   { h.logger.Info("device left", eui(id)) }

func (h loggingHandler) DeviceRejoined(id uint64, isSecure bool) {
	h.logger.Info("device rejoined", eui(id), "secure", isSecure)
}

func (h loggingHandler) LinkKeyUpdated(id uint64, hashed bool) {
	h.logger.Info("link key updated", eui(id), "hash_based", hashed)
}

func (h loggingHandler) APSAckFailure(id uint64) { h.logger.Warn("aps ack failure", eui(id)) }

func (h loggingHandler) ClusterCommandReceived(cmd *event.ClusterCommand) {
	h.logger.Info("cluster command",
		eui(cmd.EUI64),
		"endpoint", cmd.SourceEndpoint,
		"cluster", cmd.ClusterID,
		"command", cmd.CommandID,
		"from_server", cmd.FromServer,
		"aps_seq", cmd.APSSeqNum,
		"rssi", cmd.RSSI,
		"lqi", cmd.LQI,
		"size", len(cmd.Data))
}

func (h loggingHandler) AttributeReportReceived(report *event.AttributeReport) {
	h.logger.Info("attribute report",
		eui(report.EUI64),
		"endpoint", report.SourceEndpoint,
		"cluster", report.ClusterID,
		"mfg_code", report.MfgCode,
		"size", len(report.Data))
}

func (h loggingHandler) OTAUpgradeMessageSent(ev *event.OTAUpgradeEvent) {
	attrs := []any{eui(ev.EUI64), "type", ev.Type.String()}
	if ev.SentStatus != nil {
		attrs = append(attrs, "status", ev.SentStatus.String())
	}
	h.logger.Info("ota message sent", attrs...)
}

func (h loggingHandler) OTAUpgradeMessageReceived(ev *event.OTAUpgradeEvent) {
	h.logger.Info("ota message received", eui(ev.EUI64), "type", ev.Type.String())
}

func (h loggingHandler) DeviceCommunicationSucceeded(id uint64) {
	h.logger.Debug("device communication succeeded", eui(id))
}

func (h loggingHandler) DeviceCommunicationFailed(id uint64) {
	h.logger.Warn("device communication failed", eui(id))
}

func (h loggingHandler) NetworkHealthProblem()         { h.logger.Warn("network health problem") }
func (h loggingHandler) NetworkHealthProblemRestored() { h.logger.Info("network health restored") }
func (h loggingHandler) PanIDAttackDetected()          { h.logger.Warn("pan id attack detected") }
func (h loggingHandler) PanIDAttackCleared()           { h.logger.Info("pan id attack cleared") }

func (h loggingHandler) BeaconReceived(b *event.Beacon) {
	h.logger.Debug("beacon",
		eui(b.EUI64),
		"pan_id", b.PanID,
		"open", b.IsOpen,
		"depth", b.Depth)
}

var _ event.Handler = loggingHandler{}
