// Package service provides the cryptographic primitives behind master-key verification
// and per-record envelope encryption: AEAD ciphers (AES-256-GCM, ChaCha20-Poly1305),
// PBKDF2-SHA512 key derivation and KMS-backed key wrapping.
package service

import (
	"context"

	cryptoDomain "github.com/allisson/dormkeys/internal/crypto/domain"
)

// AEAD defines the interface for Authenticated Encryption with Associated Data.
type AEAD interface {
	// Encrypt encrypts plaintext with optional AAD and returns ciphertext (tag appended) and nonce.
	Encrypt(plaintext, aad []byte) (ciphertext, nonce []byte, err error)

	// Decrypt verifies the tag and decrypts ciphertext using the provided nonce and AAD.
	Decrypt(ciphertext, nonce, aad []byte) ([]byte, error)

	// NonceSize returns the nonce length the cipher expects.
	NonceSize() int

	// Overhead returns the length of the authentication tag.
	Overhead() int
}

// AEADManager creates ciphers and seals records whose tag is stored apart from the ciphertext.
type AEADManager interface {
	// CreateCipher creates an AEAD cipher instance for the specified algorithm.
	CreateCipher(key []byte, alg cryptoDomain.Algorithm) (AEAD, error)

	// Seal encrypts plaintext under key and returns ciphertext, tag and nonce separately.
	Seal(key []byte, alg cryptoDomain.Algorithm, plaintext, aad []byte) (ciphertext, tag, nonce []byte, err error)

	// Open authenticates and decrypts what Seal produced.
	Open(key []byte, alg cryptoDomain.Algorithm, ciphertext, tag, nonce, aad []byte) ([]byte, error)
}

// KeyDeriver derives fixed-length keys from secrets with PBKDF2-SHA512.
type KeyDeriver interface {
	// Derive stretches secret with salt into keyLen bytes.
	Derive(secret, salt []byte, keyLen int) []byte

	// Iterations returns the configured PBKDF2 iteration count.
	Iterations() int
}

// KMSService opens keepers for the configured KMS provider.
type KMSService interface {
	// OpenKeeper opens a keeper for keyURI.
	OpenKeeper(ctx context.Context, keyURI string) (cryptoDomain.KMSKeeper, error)
}
