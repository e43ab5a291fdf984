package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cryptoDomain "github.com/allisson/dormkeys/internal/crypto/domain"
)

func TestAEADManagerService_CreateCipher(t *testing.T) {
	manager := NewAEADManager()
	key := randomKey(t)

	t.Run("Success_AESGCM", func(t *testing.T) {
		c, err := manager.CreateCipher(key, cryptoDomain.AESGCM)
		require.NoError(t, err)
		assert.IsType(t, &AESGCMCipher{}, c)
		assert.Equal(t, cryptoDomain.AESGCMNonceSize, c.NonceSize())
	})

	t.Run("Success_ChaCha20", func(t *testing.T) {
		c, err := manager.CreateCipher(key, cryptoDomain.ChaCha20)
		require.NoError(t, err)
		assert.IsType(t, &ChaCha20Poly1305Cipher{}, c)
	})

	t.Run("Error_UnsupportedAlgorithm", func(t *testing.T) {
		c, err := manager.CreateCipher(key, cryptoDomain.Algorithm("rot13"))
		assert.ErrorIs(t, err, cryptoDomain.ErrUnsupportedAlgorithm)
		assert.Nil(t, c)
	})

	t.Run("Error_InvalidKeySize", func(t *testing.T) {
		for _, size := range []int{0, 16, 24, 64} {
			_, err := manager.CreateCipher(make([]byte, size), cryptoDomain.AESGCM)
			assert.ErrorIs(t, err, cryptoDomain.ErrInvalidKeySize)
		}
	})

	t.Run("Error_CrossAlgorithmDecrypt", func(t *testing.T) {
		aes, err := manager.CreateCipher(key, cryptoDomain.AESGCM)
		require.NoError(t, err)
		chacha, err := manager.CreateCipher(key, cryptoDomain.ChaCha20)
		require.NoError(t, err)

		ciphertext, nonce, err := aes.Encrypt([]byte("data"), nil)
		require.NoError(t, err)

		_, err = chacha.Decrypt(ciphertext, nonce, nil)
		assert.ErrorIs(t, err, cryptoDomain.ErrAuthenticationFailed)
	})
}

func TestAEADManagerService_SealOpen(t *testing.T) {
	manager := NewAEADManager()
	key := randomKey(t)
	aad := []byte("42:notes:n1")

	for _, alg := range []cryptoDomain.Algorithm{cryptoDomain.AESGCM, cryptoDomain.ChaCha20} {
		t.Run(string(alg), func(t *testing.T) {
			ciphertext, tag, nonce, err := manager.Seal(key, alg, []byte("room 214"), aad)
			require.NoError(t, err)
			assert.Len(t, tag, cryptoDomain.TagSize)
			assert.Len(t, ciphertext, len("room 214"))

			plaintext, err := manager.Open(key, alg, ciphertext, tag, nonce, aad)
			require.NoError(t, err)
			assert.Equal(t, "room 214", string(plaintext))

			_, err = manager.Open(key, alg, ciphertext, tag, nonce, []byte("42:notes:n2"))
			assert.ErrorIs(t, err, cryptoDomain.ErrAuthenticationFailed)

			_, err = manager.Open(key, alg, ciphertext, tag[:8], nonce, aad)
			assert.ErrorIs(t, err, cryptoDomain.ErrAuthenticationFailed)

			_, err = manager.Open(key, alg, ciphertext, tag, nonce[1:], aad)
			assert.ErrorIs(t, err, cryptoDomain.ErrAuthenticationFailed)
		})
	}

	t.Run("Error_UnknownAlgorithmOnOpen", func(t *testing.T) {
		_, err := manager.Open(key, cryptoDomain.Algorithm("rot13"), nil, nil, nil, nil)
		assert.ErrorIs(t, err, cryptoDomain.ErrAuthenticationFailed)
	})

	t.Run("Error_UnknownAlgorithmOnSeal", func(t *testing.T) {
		_, _, _, err := manager.Seal(key, cryptoDomain.Algorithm("rot13"), []byte("x"), nil)
		assert.ErrorIs(t, err, cryptoDomain.ErrUnsupportedAlgorithm)
	})
}
