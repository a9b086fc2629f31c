package application

import (
	"gitlab.com/supernavi/api/navi-bridge-service/internal/adapters/config"
	"gitlab.com/supernavi/api/navi-bridge-service/internal/domain"
)

// SelectAuth picks the active credential from persisted configuration.
// A device token always wins over a legacy key; when neither is present the
// returned mode is inactive and callers must surface domain.ErrNotConfigured
// before attempting any network call. SelectAuth itself never fails.
func SelectAuth(cloud config.CloudConfig) domain.AuthMode {
	if cloud.DeviceToken != "" {
		return domain.AuthMode{Kind: domain.AuthDeviceToken, Secret: cloud.DeviceToken}
	}
	if cloud.LegacyKey != "" {
		return domain.AuthMode{Kind: domain.AuthLegacyKey, Secret: cloud.LegacyKey}
	}
	return domain.AuthMode{Kind: domain.AuthNone}
}
