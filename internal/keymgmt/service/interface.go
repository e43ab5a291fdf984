// Package service provides the stateless building blocks of key management:
// device fingerprinting, master key verifiers and audit signatures.
package service

import (
	"github.com/allisson/dormkeys/internal/keymgmt/domain"
)

// KeyVerifier creates master key secrets and the verifiers stored in their place.
type KeyVerifier interface {
	// NewSecret returns fresh random master key material.
	NewSecret() ([]byte, error)

	// Derive computes the verifier of secret under the given KDF context.
	Derive(secret, kdfContext []byte) []byte

	// Matches compares a candidate verifier against the stored one in constant time.
	Matches(userID string, candidate, stored []byte) bool
}

// AuditSigner signs and verifies audit rows.
type AuditSigner interface {
	Sign(log *domain.AuditLog) ([]byte, error)
	Verify(log *domain.AuditLog) error
	Close()
}
