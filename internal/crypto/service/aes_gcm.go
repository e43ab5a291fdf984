package service

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"

	cryptoDomain "github.com/allisson/dormkeys/internal/crypto/domain"
)

// AESGCMCipher implements the AEAD interface using AES-256-GCM.
//
// Records use a 16-byte IV, which GCM accepts by hashing it into the initial
// counter block (GHASH). The 16-byte tag is appended to the ciphertext by Seal
// and is verified by Open before any plaintext is released.
//
// The cipher instance is stateless and safe for concurrent use. Every call to
// Encrypt draws a fresh IV from crypto/rand.
type AESGCMCipher struct {
	aead cipher.AEAD
}

// NewAESGCM creates an AES-256-GCM cipher with a 16-byte IV.
func NewAESGCM(key []byte) (*AESGCMCipher, error) {
	return NewAESGCMWithNonceSize(key, cryptoDomain.AESGCMNonceSize)
}

// NewAESGCMWithNonceSize creates an AES-256-GCM cipher with a custom IV length.
// The standard 12-byte nonce remains available for interoperability.
func NewAESGCMWithNonceSize(key []byte, nonceSize int) (*AESGCMCipher, error) {
	if len(key) != cryptoDomain.KeySize {
		return nil, cryptoDomain.ErrInvalidKeySize
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}

	aead, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &AESGCMCipher{aead: aead}, nil
}

// Encrypt encrypts plaintext and returns the ciphertext with the tag appended,
// along with the freshly generated IV.
func (a *AESGCMCipher) Encrypt(plaintext, aad []byte) (ciphertext, nonce []byte, err error) {
	nonce = make([]byte, a.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext = a.aead.Seal(nil, nonce, plaintext, aad)
	return ciphertext, nonce, nil
}

// Decrypt authenticates and decrypts ciphertext. Any mismatch in key, IV, AAD,
// ciphertext or tag returns ErrAuthenticationFailed and no plaintext.
func (a *AESGCMCipher) Decrypt(ciphertext, nonce, aad []byte) ([]byte, error) {
	if len(nonce) != a.aead.NonceSize() {
		return nil, cryptoDomain.ErrAuthenticationFailed
	}
	plaintext, err := a.aead.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, cryptoDomain.ErrAuthenticationFailed
	}
	return plaintext, nil
}

// NonceSize returns the IV length.
func (a *AESGCMCipher) NonceSize() int { return a.aead.NonceSize() }

// Overhead returns the tag length.
func (a *AESGCMCipher) Overhead() int { return a.aead.Overhead() }
