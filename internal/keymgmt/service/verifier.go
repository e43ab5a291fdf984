package service

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"

	cryptoDomain "github.com/allisson/dormkeys/internal/crypto/domain"
	cryptoService "github.com/allisson/dormkeys/internal/crypto/service"
)

type pbkdf2Verifier struct {
	kdf cryptoService.KeyDeriver
}

// NewKeyVerifier returns a KeyVerifier producing PBKDF2-SHA512 verifiers with kdf.
func NewKeyVerifier(kdf cryptoService.KeyDeriver) KeyVerifier {
	return &pbkdf2Verifier{kdf: kdf}
}

func (v *pbkdf2Verifier) NewSecret() ([]byte, error) {
	secret := make([]byte, cryptoDomain.MasterSecretSize)
	if _, err := rand.Read(secret); err != nil {
		return nil, err
	}
	return secret, nil
}

func (v *pbkdf2Verifier) Derive(secret, kdfContext []byte) []byte {
	return v.kdf.Derive(secret, kdfContext, cryptoDomain.VerifierSize)
}

// Matches hashes both verifiers with the user id before comparing, so the
// comparison never runs directly over stored verifier bytes.
func (v *pbkdf2Verifier) Matches(userID string, candidate, stored []byte) bool {
	a := userBoundDigest(userID, candidate)
	b := userBoundDigest(userID, stored)
	return subtle.ConstantTimeCompare(a[:], b[:]) == 1
}

func userBoundDigest(userID string, verifier []byte) [sha256.Size]byte {
	h := sha256.New()
	h.Write([]byte(userID))
	h.Write(verifier)
	var out [sha256.Size]byte
	copy(out[:], h.Sum(nil))
	return out
}
