package domain

import (
	"github.com/google/uuid"
)

// Outbox event types emitted by the key management context.
const (
	EventKeyGenerated  = "key.generated"
	EventKeyRotated    = "key.rotated"
	EventKeyRevoked    = "key.revoked"
	EventDeviceRevoked = "device.revoked"
)

// KeyEventPayload is the body of key.* events. It never carries key material.
type KeyEventPayload struct {
	UserID        string     `json:"user_id"`
	KeyType       string     `json:"key_type"`
	KeyID         uuid.UUID  `json:"key_id"`
	KeyVersion    int        `json:"key_version"`
	PreviousKeyID *uuid.UUID `json:"previous_key_id,omitempty"`
	Reason        string     `json:"reason,omitempty"`
}

// DeviceEventPayload is the body of device.* events.
type DeviceEventPayload struct {
	UserID            string `json:"user_id"`
	DeviceFingerprint string `json:"device_fingerprint"`
}
