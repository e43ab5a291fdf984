package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"github.com/awnumar/memguard"
	"github.com/fxamacker/cbor/v2"
	"golang.org/x/crypto/hkdf"

	cryptoDomain "github.com/allisson/dormkeys/internal/crypto/domain"
	"github.com/allisson/dormkeys/internal/keymgmt/domain"
)

const (
	auditSigningInfo    = "key-audit-log-signing-v1"
	auditSigningKeySize = 32
)

// canonicalAuditLog is the signed view of an audit row. The toarray option makes
// the CBOR encoding positional, and core deterministic mode sorts metadata keys.
type canonicalAuditLog struct {
	_                 struct{} `cbor:",toarray"`
	ID                []byte
	UserID            string
	KeyID             []byte
	Action            string
	IPAddress         string
	UserAgent         string
	DeviceFingerprint string
	Success           bool
	ErrorMessage      string
	Metadata          map[string]any
	CreatedAt         int64
}

var errSignerClosed = errors.New("audit signer closed")

type auditSigner struct {
	key  *memguard.Enclave
	mode cbor.EncMode
}

// NewAuditSigner derives the HMAC key from secret with HKDF-SHA256 and seals it in
// an encrypted memguard enclave. secret is wiped before returning.
func NewAuditSigner(secret []byte) (AuditSigner, error) {
	defer cryptoDomain.Zero(secret)

	if len(secret) != auditSigningKeySize {
		return nil, fmt.Errorf("audit signing key must be %d bytes, got %d", auditSigningKeySize, len(secret))
	}

	derived := make([]byte, auditSigningKeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(auditSigningInfo)), derived); err != nil {
		return nil, fmt.Errorf("failed to derive audit signing key: %w", err)
	}

	mode, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		cryptoDomain.Zero(derived)
		return nil, fmt.Errorf("failed to build cbor encoder: %w", err)
	}

	// NewEnclave wipes derived.
	return &auditSigner{key: memguard.NewEnclave(derived), mode: mode}, nil
}

func (s *auditSigner) canonicalize(log *domain.AuditLog) ([]byte, error) {
	c := canonicalAuditLog{
		ID:                log.ID[:],
		UserID:            log.UserID,
		Action:            string(log.Action),
		IPAddress:         log.IPAddress,
		UserAgent:         log.UserAgent,
		DeviceFingerprint: log.DeviceFingerprint,
		Success:           log.Success,
		ErrorMessage:      log.ErrorMessage,
		CreatedAt:         log.CreatedAt.UnixMicro(),
	}
	if log.KeyID != nil {
		c.KeyID = log.KeyID[:]
	}
	if len(log.Metadata) > 0 {
		c.Metadata = make(map[string]any, len(log.Metadata))
		for k, v := range log.Metadata {
			c.Metadata[k] = v.Any()
		}
	}
	return s.mode.Marshal(c)
}

// Sign returns the HMAC-SHA256 of the canonical encoding of log.
func (s *auditSigner) Sign(log *domain.AuditLog) ([]byte, error) {
	canonical, err := s.canonicalize(log)
	if err != nil {
		return nil, fmt.Errorf("failed to canonicalize audit log: %w", err)
	}

	if s.key == nil {
		return nil, errSignerClosed
	}

	buf, err := s.key.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open audit signing key: %w", err)
	}
	defer buf.Destroy()

	mac := hmac.New(sha256.New, buf.Bytes())
	mac.Write(canonical)
	return mac.Sum(nil), nil
}

// Verify returns domain.ErrSignatureInvalid when the stored signature does not
// match the row's current contents.
func (s *auditSigner) Verify(log *domain.AuditLog) error {
	expected, err := s.Sign(log)
	if err != nil {
		return err
	}
	if !hmac.Equal(log.Signature, expected) {
		return domain.ErrSignatureInvalid
	}
	return nil
}

// Close drops the enclave reference. Sealed memory is purged by memguard.Purge on exit.
func (s *auditSigner) Close() {
	s.key = nil
}
