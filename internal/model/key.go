package model

import (
	"encoding/json"
	"time"
)

// LoginKey is a license key presented by injector client apps. The key string
// is opaque; validity is derived from the blocked flag, the expiry timestamp,
// and the device-binding ledger.
type LoginKey struct {
	ID          int64      `json:"id" db:"id"`
	Key         string     `json:"key" db:"key_string"`
	InjectorID  *int64     `json:"injector,omitempty" db:"injector_id"`
	ResellerID  *int64     `json:"resellerId,omitempty" db:"reseller_id"`
	ExpiresAt   *time.Time `json:"expires,omitempty" db:"expires_at"`
	MaxDevices  *int64     `json:"maxDevices,omitempty" db:"max_devices"`
	DeviceCount int64      `json:"deviceCount" db:"device_count"`
	Used        int64      `json:"used" db:"used"`
	Blocked     bool       `json:"blocked" db:"blocked"`
	CreatedAt   time.Time  `json:"created" db:"created_at"`
}

// MarshalJSON adds the devicesUsed alias the dashboard reads alongside
// deviceCount. Both always carry the same value.
func (k LoginKey) MarshalJSON() ([]byte, error) {
	type alias LoginKey
	return json.Marshal(struct {
		alias
		DevicesUsed int64 `json:"devicesUsed"`
	}{alias(k), k.DeviceCount})
}

// Expired reports whether the key's expiry has passed at the given instant.
// A key with no expiry never expires.
func (k *LoginKey) Expired(now time.Time) bool {
	return k.ExpiresAt != nil && !now.Before(*k.ExpiresAt)
}

// KeyRequest is the payload for key creation, shared by the admin and
// reseller creation paths.
type KeyRequest struct {
	Key        string     `json:"key"`
	InjectorID *int64     `json:"injector,omitempty"`
	ExpiresAt  *time.Time `json:"expires,omitempty"`
	MaxDevices *int64     `json:"maxDevices,omitempty"`
}

// DeviceBinding records one distinct device bound to a key. Rows are
// append-only per key; only key deletion removes them.
type DeviceBinding struct {
	KeyID     int64     `json:"keyId" db:"key_id"`
	DeviceID  string    `json:"deviceId" db:"device_id"`
	FirstSeen time.Time `json:"firstSeen" db:"first_seen"`
}
