package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestZero(t *testing.T) {
	secret := []byte{1, 2, 3, 4}
	derived := []byte{5, 6}
	Zero(secret, derived)
	assert.Equal(t, []byte{0, 0, 0, 0}, secret)
	assert.Equal(t, []byte{0, 0}, derived)

	assert.NotPanics(t, func() { Zero(nil) })
	assert.NotPanics(t, func() { Zero() })
}

func TestParseAlgorithm(t *testing.T) {
	alg, err := ParseAlgorithm("aes-gcm")
	assert.NoError(t, err)
	assert.Equal(t, AESGCM, alg)

	alg, err = ParseAlgorithm("chacha20-poly1305")
	assert.NoError(t, err)
	assert.Equal(t, ChaCha20, alg)

	_, err = ParseAlgorithm("aes-cbc")
	assert.ErrorIs(t, err, ErrUnsupportedAlgorithm)
}
