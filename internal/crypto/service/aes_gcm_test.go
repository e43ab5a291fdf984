package service

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cryptoDomain "github.com/allisson/dormkeys/internal/crypto/domain"
)

func randomKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, cryptoDomain.KeySize)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return key
}

func TestNewAESGCM(t *testing.T) {
	t.Run("Success_16ByteIV", func(t *testing.T) {
		c, err := NewAESGCM(randomKey(t))
		require.NoError(t, err)
		assert.Equal(t, cryptoDomain.AESGCMNonceSize, c.NonceSize())
		assert.Equal(t, cryptoDomain.TagSize, c.Overhead())
	})

	t.Run("Success_StandardNonce", func(t *testing.T) {
		c, err := NewAESGCMWithNonceSize(randomKey(t), 12)
		require.NoError(t, err)
		assert.Equal(t, 12, c.NonceSize())
	})

	t.Run("Error_InvalidKeySize", func(t *testing.T) {
		c, err := NewAESGCM(make([]byte, 16))
		assert.ErrorIs(t, err, cryptoDomain.ErrInvalidKeySize)
		assert.Nil(t, c)
	})
}

func TestAESGCMCipher_RoundTrip(t *testing.T) {
	c, err := NewAESGCM(randomKey(t))
	require.NoError(t, err)

	plaintext := []byte(`{"name":"A"}`)
	aad := []byte("42|profile|default")

	ciphertext, nonce, err := c.Encrypt(plaintext, aad)
	require.NoError(t, err)
	assert.Len(t, nonce, cryptoDomain.AESGCMNonceSize)
	assert.Len(t, ciphertext, len(plaintext)+cryptoDomain.TagSize)

	decrypted, err := c.Decrypt(ciphertext, nonce, aad)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestAESGCMCipher_FreshNonce(t *testing.T) {
	c, err := NewAESGCM(randomKey(t))
	require.NoError(t, err)

	seen := make(map[string]struct{})
	for range 1000 {
		_, nonce, err := c.Encrypt([]byte("x"), nil)
		require.NoError(t, err)
		_, dup := seen[string(nonce)]
		require.False(t, dup)
		seen[string(nonce)] = struct{}{}
	}
}

func TestAESGCMCipher_TamperDetection(t *testing.T) {
	key := randomKey(t)
	c, err := NewAESGCM(key)
	require.NoError(t, err)

	plaintext := []byte("sensitive")
	aad := []byte("aad")
	ciphertext, nonce, err := c.Encrypt(plaintext, aad)
	require.NoError(t, err)

	flip := func(b []byte, i int) []byte {
		out := append([]byte(nil), b...)
		out[i] ^= 0x01
		return out
	}

	t.Run("Error_FlippedCiphertextBit", func(t *testing.T) {
		out, err := c.Decrypt(flip(ciphertext, 0), nonce, aad)
		assert.ErrorIs(t, err, cryptoDomain.ErrAuthenticationFailed)
		assert.Nil(t, out)
	})

	t.Run("Error_FlippedTagBit", func(t *testing.T) {
		out, err := c.Decrypt(flip(ciphertext, len(ciphertext)-1), nonce, aad)
		assert.ErrorIs(t, err, cryptoDomain.ErrAuthenticationFailed)
		assert.Nil(t, out)
	})

	t.Run("Error_FlippedIVBit", func(t *testing.T) {
		out, err := c.Decrypt(ciphertext, flip(nonce, 3), aad)
		assert.ErrorIs(t, err, cryptoDomain.ErrAuthenticationFailed)
		assert.Nil(t, out)
	})

	t.Run("Error_WrongAAD", func(t *testing.T) {
		_, err := c.Decrypt(ciphertext, nonce, []byte("other"))
		assert.ErrorIs(t, err, cryptoDomain.ErrAuthenticationFailed)
	})

	t.Run("Error_TruncatedIV", func(t *testing.T) {
		_, err := c.Decrypt(ciphertext, nonce[:12], aad)
		assert.ErrorIs(t, err, cryptoDomain.ErrAuthenticationFailed)
	})

	t.Run("Error_WrongKey", func(t *testing.T) {
		other, err := NewAESGCM(randomKey(t))
		require.NoError(t, err)
		_, err = other.Decrypt(ciphertext, nonce, aad)
		assert.ErrorIs(t, err, cryptoDomain.ErrAuthenticationFailed)
	})
}
