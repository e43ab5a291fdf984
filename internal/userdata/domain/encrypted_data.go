// Package domain defines the encrypted user data record and its envelope.
//
// Each record is sealed under its own key, derived from the owner's master key and
// a fresh random salt. The envelope keeps every binary field Base64-encoded and
// names the AEAD it was sealed with so records written under different algorithms
// can coexist.
package domain

import (
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	cryptoDomain "github.com/allisson/dormkeys/internal/crypto/domain"
	"github.com/allisson/dormkeys/internal/metadata"
)

// Envelope is the stored form of a sealed payload.
type Envelope struct {
	Ciphertext string                 `json:"ciphertext"`
	IV         string                 `json:"iv"`
	Salt       string                 `json:"salt"`
	Tag        string                 `json:"tag"`
	Algorithm  cryptoDomain.Algorithm `json:"algorithm"`
}

// SealedParts is an envelope with its fields decoded.
type SealedParts struct {
	Ciphertext []byte
	IV         []byte
	Salt       []byte
	Tag        []byte
	Algorithm  cryptoDomain.Algorithm
}

// NewEnvelope encodes sealed parts for storage.
func NewEnvelope(parts SealedParts) Envelope {
	enc := base64.StdEncoding
	return Envelope{
		Ciphertext: enc.EncodeToString(parts.Ciphertext),
		IV:         enc.EncodeToString(parts.IV),
		Salt:       enc.EncodeToString(parts.Salt),
		Tag:        enc.EncodeToString(parts.Tag),
		Algorithm:  parts.Algorithm,
	}
}

// Decode returns the binary fields. Malformed Base64 is reported as
// ErrAuthenticationFailed: a damaged envelope is indistinguishable from tampering.
func (e Envelope) Decode() (SealedParts, error) {
	enc := base64.StdEncoding
	fields := []string{e.Ciphertext, e.IV, e.Salt, e.Tag}
	decoded := make([][]byte, len(fields))
	for i, field := range fields {
		b, err := enc.DecodeString(field)
		if err != nil {
			return SealedParts{}, cryptoDomain.ErrAuthenticationFailed
		}
		decoded[i] = b
	}
	if len(decoded[2]) != cryptoDomain.SaltSize || len(decoded[3]) != cryptoDomain.TagSize {
		return SealedParts{}, cryptoDomain.ErrAuthenticationFailed
	}
	return SealedParts{
		Ciphertext: decoded[0],
		IV:         decoded[1],
		Salt:       decoded[2],
		Tag:        decoded[3],
		Algorithm:  e.Algorithm,
	}, nil
}

// Marshal returns the JSON document stored in the encrypted_data column.
func (e Envelope) Marshal() (string, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ParseEnvelope reads the stored JSON document.
func ParseEnvelope(raw []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(raw, &e); err != nil {
		return Envelope{}, err
	}
	return e, nil
}

// EncryptedData is a sealed payload owned by a user, unique per
// (UserID, DataType, DataID).
type EncryptedData struct {
	ID               uuid.UUID
	UserID           string
	DataType         string
	DataID           string
	Envelope         Envelope
	DataHash         string // hex SHA-256 of the canonical plaintext
	MasterKeyVersion int
	Metadata         metadata.Map
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// AAD binds a ciphertext to its owner and location so a sealed payload cannot be
// replayed under another user or key.
func AAD(userID, dataType, dataID string) []byte {
	return []byte(userID + "|" + dataType + "|" + dataID)
}

// EncryptInput contains the parameters for sealing and storing a payload.
type EncryptInput struct {
	UserID   string
	DataType string
	DataID   string
	Data     json.RawMessage
	Metadata metadata.Map
}

// EncryptOutput describes the stored record.
type EncryptOutput struct {
	DataHash         string
	MasterKeyVersion int
}

// DecryptedData is an opened payload.
type DecryptedData struct {
	DataID           string
	Data             json.RawMessage
	Metadata         metadata.Map
	MasterKeyVersion int
	UpdatedAt        time.Time
	DecryptedAt      time.Time
}

// BatchFailure names a record a batch read could not open.
type BatchFailure struct {
	DataID string
	Err    error
}

// BatchOutput holds the opened records of a batch read, newest first. Records
// that failed are left out of Items and listed in Failed.
type BatchOutput struct {
	Items  []*DecryptedData
	Failed []BatchFailure
}

// ReEncryptOutput summarizes a migration of records to the current master key.
type ReEncryptOutput struct {
	ReEncrypted int
	Skipped     int
	Failed      int
}
