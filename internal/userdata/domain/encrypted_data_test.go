package domain

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cryptoDomain "github.com/allisson/dormkeys/internal/crypto/domain"
)

func sampleParts() SealedParts {
	return SealedParts{
		Ciphertext: []byte("sealed"),
		IV:         bytes.Repeat([]byte{1}, cryptoDomain.AESGCMNonceSize),
		Salt:       bytes.Repeat([]byte{2}, cryptoDomain.SaltSize),
		Tag:        bytes.Repeat([]byte{3}, cryptoDomain.TagSize),
		Algorithm:  cryptoDomain.AESGCM,
	}
}

func TestEnvelope_StoredForm(t *testing.T) {
	env := NewEnvelope(sampleParts())

	raw, err := env.Marshal()
	require.NoError(t, err)
	assert.Contains(t, raw, `"ciphertext":"c2VhbGVk"`)
	assert.Contains(t, raw, `"algorithm":"aes-gcm"`)

	parsed, err := ParseEnvelope([]byte(raw))
	require.NoError(t, err)
	parts, err := parsed.Decode()
	require.NoError(t, err)
	assert.Equal(t, sampleParts(), parts)
}

func TestEnvelope_DecodeRejectsDamage(t *testing.T) {
	tests := []struct {
		name   string
		damage func(e *Envelope)
	}{
		{name: "bad base64", damage: func(e *Envelope) { e.IV = "!!" }},
		{name: "short salt", damage: func(e *Envelope) { e.Salt = "AAAA" }},
		{name: "short tag", damage: func(e *Envelope) { e.Tag = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := NewEnvelope(sampleParts())
			tt.damage(&env)
			_, err := env.Decode()
			assert.ErrorIs(t, err, cryptoDomain.ErrAuthenticationFailed)
		})
	}
}

func TestAAD(t *testing.T) {
	assert.Equal(t, []byte("42|profile|default"), AAD("42", "profile", "default"))
}
