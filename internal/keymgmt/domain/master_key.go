// Package domain defines the master key, hardware binding and audit entities of the
// key management context together with their errors.
//
// A user owns one chain of master keys per key type. Exactly one link of the chain
// is active; rotation supersedes it with a new link that points back through
// PreviousKeyID, and the superseded link records the forward pointer in its metadata.
// The server keeps two representations of every secret: a PBKDF2 verifier used to
// check key proofs, and a KMS-wrapped copy used to derive record keys.
package domain

import (
	"time"

	"github.com/google/uuid"

	"github.com/allisson/dormkeys/internal/metadata"
)

// DefaultKeyType is the key type used when callers do not name one.
const DefaultKeyType = "master"

// Metadata keys written on key records.
const (
	MetaRotatedTo      = "rotated_to"
	MetaRotationReason = "rotation_reason"
	MetaRevokeReason   = "revoke_reason"
)

// KeyStatus is the lifecycle state of a master key.
type KeyStatus string

const (
	KeyStatusActive  KeyStatus = "active"
	KeyStatusRotated KeyStatus = "rotated"
	KeyStatusRevoked KeyStatus = "revoked"
)

// MasterKey is a stored link of a user's key chain.
type MasterKey struct {
	ID                  uuid.UUID
	UserID              string
	KeyType             string
	EncryptedKey        string // Base64 PBKDF2 verifier
	WrappedKey          []byte // KMS ciphertext of the raw secret
	Version             int
	Status              KeyStatus
	HardwareFingerprint string
	CreatedAt           time.Time
	LastUsedAt          *time.Time
	ExpiresAt           *time.Time
	PreviousKeyID       *uuid.UUID
	RotationCount       int
	Metadata            metadata.Map
}

// KDFContext returns the salt the verifier of this key was derived with: the
// user id for the first key of a chain, the previous key id for rotated keys.
func (k *MasterKey) KDFContext() []byte {
	if k.PreviousKeyID != nil {
		return []byte(k.PreviousKeyID.String())
	}
	return []byte(k.UserID)
}

// IsExpired reports whether the key has an expiry at or before now.
func (k *MasterKey) IsExpired(now time.Time) bool {
	return k.ExpiresAt != nil && !k.ExpiresAt.After(now)
}

// MasterKeyMaterial is an unwrapped secret ready for record key derivation.
// Callers must not retain Key beyond the request.
type MasterKeyMaterial struct {
	KeyID   uuid.UUID
	Version int
	Key     []byte
}

// RequestInfo carries the caller attributes recorded on audit rows.
type RequestInfo struct {
	RequestID         string
	IPAddress         string
	UserAgent         string
	DeviceFingerprint string
}

// GenerateKeyInput contains the parameters for provisioning a user's first key.
type GenerateKeyInput struct {
	UserID       string
	KeyType      string
	HardwareInfo *HardwareInfo
	Request      RequestInfo
}

// GenerateKeyOutput is returned once; RawKey is never retrievable again in this form.
type GenerateKeyOutput struct {
	KeyID      uuid.UUID
	RawKey     []byte
	KeyVersion int
	CreatedAt  time.Time
}

// VerifyKeyInput contains a key proof to check against the active key.
type VerifyKeyInput struct {
	UserID       string
	KeyType      string
	KeyProof     []byte
	HardwareInfo *HardwareInfo
	Request      RequestInfo
}

// VerifyKeyOutput describes the key a proof matched.
type VerifyKeyOutput struct {
	Success       bool
	KeyVersion    int
	KeyID         uuid.UUID
	RotationCount int
}

// RotateKeyInput contains the parameters for a rotation.
type RotateKeyInput struct {
	UserID  string
	KeyType string
	Reason  string
	Request RequestInfo
}

// RotateKeyOutput describes the new active key.
type RotateKeyOutput struct {
	KeyID         uuid.UUID
	KeyVersion    int
	PreviousKeyID uuid.UUID
	RawKey        []byte
	EncryptedKey  string
}

// RevokeKeyInput contains the parameters for revoking the active key.
type RevokeKeyInput struct {
	UserID  string
	KeyType string
	Reason  string
	Request RequestInfo
}

// RotateExpiredOutput summarizes an expiry sweep.
type RotateExpiredOutput struct {
	Rotated int
	Failed  int
}
