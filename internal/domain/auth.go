package domain

// AuthKind names the credential variant in use.
type AuthKind string

const (
	AuthDeviceToken AuthKind = "device_token"
	AuthLegacyKey   AuthKind = "legacy_key"
	AuthNone        AuthKind = "none"
)

// AuthMode is the selected credential for outbound cloud calls. At most one
// variant is active at a time; a device token always wins over a legacy key.
type AuthMode struct {
	Kind   AuthKind
	Secret string
}

// Active reports whether a usable credential is present. Callers must convert
// an inactive mode into ErrNotConfigured before any network attempt.
func (m AuthMode) Active() bool {
	return m.Kind != AuthNone && m.Secret != ""
}
