package rpc

import "encoding/json"

const (
	protocolVersionLatest = "2025-06-18"
	protocolVersionMiddle = "2025-03-26"
	protocolVersionLegacy = "2024-11-05"
)

// negotiateProtocolVersion echoes a supported client version and falls back to the latest.
func negotiateProtocolVersion(rawParams json.RawMessage) string {
	var params struct {
		ProtocolVersion string `json:"protocolVersion"`
	}
	if len(rawParams) > 0 {
		_ = json.Unmarshal(rawParams, &params)
	}
	switch params.ProtocolVersion {
	case protocolVersionLatest, protocolVersionMiddle, protocolVersionLegacy:
		return params.ProtocolVersion
	default:
		return protocolVersionLatest
	}
}
