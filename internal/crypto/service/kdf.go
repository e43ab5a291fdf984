package service

import (
	"crypto/sha512"

	"golang.org/x/crypto/pbkdf2"
)

// pbkdf2Deriver implements KeyDeriver with PBKDF2-HMAC-SHA512.
type pbkdf2Deriver struct {
	iterations int
}

// NewPBKDF2Deriver creates a KeyDeriver running the given number of iterations.
// Production configuration enforces at least 100,000; tests may pass fewer.
func NewPBKDF2Deriver(iterations int) KeyDeriver {
	return &pbkdf2Deriver{iterations: iterations}
}

func (p *pbkdf2Deriver) Derive(secret, salt []byte, keyLen int) []byte {
	return pbkdf2.Key(secret, salt, p.iterations, keyLen, sha512.New)
}

func (p *pbkdf2Deriver) Iterations() int {
	return p.iterations
}
