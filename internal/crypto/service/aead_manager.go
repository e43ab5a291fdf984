package service

import (
	cryptoDomain "github.com/allisson/dormkeys/internal/crypto/domain"
)

var cipherConstructors = map[cryptoDomain.Algorithm]func(key []byte) (AEAD, error){
	cryptoDomain.AESGCM:   func(key []byte) (AEAD, error) { return NewAESGCM(key) },
	cryptoDomain.ChaCha20: func(key []byte) (AEAD, error) { return NewChaCha20Poly1305(key) },
}

// AEADManagerService builds ciphers per algorithm and seals records with a detached tag.
type AEADManagerService struct{}

func NewAEADManager() *AEADManagerService {
	return &AEADManagerService{}
}

// CreateCipher returns ErrInvalidKeySize unless key is KeySize bytes and
// ErrUnsupportedAlgorithm for an unknown alg.
func (am *AEADManagerService) CreateCipher(key []byte, alg cryptoDomain.Algorithm) (AEAD, error) {
	if len(key) != cryptoDomain.KeySize {
		return nil, cryptoDomain.ErrInvalidKeySize
	}
	newCipher, ok := cipherConstructors[alg]
	if !ok {
		return nil, cryptoDomain.ErrUnsupportedAlgorithm
	}
	return newCipher(key)
}

// Seal encrypts plaintext and returns the ciphertext with the tag split off, as
// records store them in separate columns.
func (am *AEADManagerService) Seal(
	key []byte,
	alg cryptoDomain.Algorithm,
	plaintext, aad []byte,
) (ciphertext, tag, nonce []byte, err error) {
	cipher, err := am.CreateCipher(key, alg)
	if err != nil {
		return nil, nil, nil, err
	}
	sealed, nonce, err := cipher.Encrypt(plaintext, aad)
	if err != nil {
		return nil, nil, nil, err
	}
	split := len(sealed) - cipher.Overhead()
	return sealed[:split:split], sealed[split:], nonce, nil
}

// Open rejoins ciphertext and tag and decrypts. Any failure, including an
// unknown algorithm or a tag of the wrong length, is ErrAuthenticationFailed.
func (am *AEADManagerService) Open(
	key []byte,
	alg cryptoDomain.Algorithm,
	ciphertext, tag, nonce, aad []byte,
) ([]byte, error) {
	cipher, err := am.CreateCipher(key, alg)
	if err != nil || len(tag) != cipher.Overhead() || len(nonce) != cipher.NonceSize() {
		return nil, cryptoDomain.ErrAuthenticationFailed
	}
	sealed := make([]byte, 0, len(ciphertext)+len(tag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)
	return cipher.Decrypt(sealed, nonce, aad)
}
