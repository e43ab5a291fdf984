package domain

import (
	"github.com/allisson/dormkeys/internal/errors"
)

// Cryptographic operation error definitions.
var (
	// ErrUnsupportedAlgorithm indicates the requested encryption algorithm is not supported.
	ErrUnsupportedAlgorithm = errors.Wrap(errors.ErrInvalidInput, "unsupported algorithm")

	// ErrInvalidKeySize indicates a key of the wrong length was supplied.
	ErrInvalidKeySize = errors.Wrap(errors.ErrInvalidInput, "invalid key size")

	// ErrAuthenticationFailed covers every failure to authenticate key material or
	// ciphertext: a GCM tag mismatch, a wrong key, tampered salt or IV, and a verifier
	// mismatch all surface as this one error so callers learn nothing about which.
	ErrAuthenticationFailed = errors.Wrap(errors.ErrUnauthorized, "authentication failed")
)
