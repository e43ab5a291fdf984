// Package domain holds the algorithm identifiers, sizes and errors shared by the
// cryptographic services.
package domain

import (
	"context"
)

// Algorithm represents the AEAD used for a record. It is persisted next to the
// ciphertext so records written under different algorithms can coexist.
type Algorithm string

const (
	// AESGCM is AES-256-GCM with a 16-byte IV and a 16-byte tag.
	AESGCM Algorithm = "aes-gcm"

	// ChaCha20 is ChaCha20-Poly1305 with a 12-byte nonce and a 16-byte tag.
	ChaCha20 Algorithm = "chacha20-poly1305"
)

// Key and nonce sizes in bytes.
const (
	KeySize          = 32
	AESGCMNonceSize  = 16
	TagSize          = 16
	SaltSize         = 32
	MasterSecretSize = 64
	VerifierSize     = 64
)

// ParseAlgorithm maps an identifier to an Algorithm.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch Algorithm(s) {
	case AESGCM, ChaCha20:
		return Algorithm(s), nil
	default:
		return "", ErrUnsupportedAlgorithm
	}
}

// KMSKeeper is the subset of *secrets.Keeper used to wrap master secrets at rest.
type KMSKeeper interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
	Close() error
}
