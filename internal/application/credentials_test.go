package application

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"gitlab.com/supernavi/api/navi-bridge-service/internal/adapters/config"
	"gitlab.com/supernavi/api/navi-bridge-service/internal/domain"
)

func TestSelectAuthPrefersDeviceToken(t *testing.T) {
	mode := SelectAuth(config.CloudConfig{DeviceToken: "tok-1", LegacyKey: "key-1"})
	assert.Equal(t, domain.AuthDeviceToken, mode.Kind)
	assert.Equal(t, "tok-1", mode.Secret)
	assert.True(t, mode.Active())
}

func TestSelectAuthFallsBackToLegacyKey(t *testing.T) {
	mode := SelectAuth(config.CloudConfig{LegacyKey: "key-1"})
	assert.Equal(t, domain.AuthLegacyKey, mode.Kind)
	assert.Equal(t, "key-1", mode.Secret)
	assert.True(t, mode.Active())
}

func TestSelectAuthWithNoCredentials(t *testing.T) {
	mode := SelectAuth(config.CloudConfig{})
	assert.Equal(t, domain.AuthNone, mode.Kind)
	assert.False(t, mode.Active())
}
