package domain

import (
	"time"

	"github.com/google/uuid"

	"github.com/allisson/dormkeys/internal/metadata"
)

// AuditAction names the operation an audit row records.
type AuditAction string

const (
	ActionKeyGenerated       AuditAction = "key_generated"
	ActionKeyVerification    AuditAction = "key_verification"
	ActionKeyRotated         AuditAction = "key_rotated"
	ActionKeyRevoked         AuditAction = "key_revoked"
	ActionDeviceRegistered   AuditAction = "device_registered"
	ActionDeviceVerification AuditAction = "device_verification"
	ActionDeviceRevoked      AuditAction = "device_revoked"
)

// AuditLog is an immutable record of a key management call.
// Signature is an HMAC-SHA256 over the canonical encoding of every other field
// and is nil for rows written without a signing key.
type AuditLog struct {
	ID                uuid.UUID
	UserID            string
	KeyID             *uuid.UUID
	Action            AuditAction
	IPAddress         string
	UserAgent         string
	DeviceFingerprint string
	Success           bool
	ErrorMessage      string
	Metadata          metadata.Map
	Signature         []byte
	CreatedAt         time.Time
}

// IsSigned reports whether the row carries a signature.
func (a *AuditLog) IsSigned() bool {
	return len(a.Signature) > 0
}

// VerificationReport summarizes a signature check over a time window.
type VerificationReport struct {
	TotalChecked  int64
	SignedCount   int64
	UnsignedCount int64
	ValidCount    int64
	InvalidCount  int64
	InvalidLogs   []uuid.UUID
}
