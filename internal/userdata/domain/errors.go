package domain

import (
	"github.com/allisson/dormkeys/internal/errors"
)

// User data error definitions.
var (
	// ErrDataNotFound indicates no record matched the user, data type and data id.
	ErrDataNotFound = errors.Wrap(errors.ErrNotFound, "encrypted data not found")

	// ErrInvalidDataType indicates a data type outside 1..64 characters.
	ErrInvalidDataType = errors.Wrap(errors.ErrInvalidInput, "data type must be 1..64 characters")

	// ErrInvalidDataID indicates a data id outside 1..128 characters.
	ErrInvalidDataID = errors.Wrap(errors.ErrInvalidInput, "data id must be 1..128 characters")

	// ErrInvalidPayload indicates plaintext that is not a JSON document.
	ErrInvalidPayload = errors.Wrap(errors.ErrInvalidInput, "payload must be valid JSON")

	// ErrIntegrityWarning is logged when a decrypted payload no longer matches its
	// stored hash. The authentication tag has already verified the ciphertext, so
	// the read still succeeds.
	ErrIntegrityWarning = errors.New("data hash mismatch after decryption")
)
