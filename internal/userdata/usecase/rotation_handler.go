package usecase

import (
	"context"
	"fmt"

	cryptoDomain "github.com/allisson/dormkeys/internal/crypto/domain"
	keyDomain "github.com/allisson/dormkeys/internal/keymgmt/domain"
)

// RotationReEncrypter moves a user's records to the newly active master key after
// a rotation. It is the outbox hook for key.rotated events.
type RotationReEncrypter struct {
	keys MasterKeyResolver
	data DataEncryptionUseCase
}

// NewRotationReEncrypter creates a RotationReEncrypter.
func NewRotationReEncrypter(keys MasterKeyResolver, data DataEncryptionUseCase) *RotationReEncrypter {
	return &RotationReEncrypter{keys: keys, data: data}
}

// HandleRotation re-encrypts the user's records. Only the default key type seals
// user data; rotations of other types are ignored. Any record that fails leaves
// an error so the event is retried.
func (r *RotationReEncrypter) HandleRotation(ctx context.Context, userID, keyType string) error {
	if keyType != "" && keyType != keyDomain.DefaultKeyType {
		return nil
	}

	material, err := r.keys.GetLatest(ctx, userID, keyDomain.DefaultKeyType)
	if err != nil {
		return err
	}
	defer cryptoDomain.Zero(material.Key)

	out, err := r.data.ReEncrypt(ctx, userID, material)
	if err != nil {
		return err
	}
	if out.Failed > 0 {
		return fmt.Errorf("%d records could not be re-encrypted", out.Failed)
	}
	return nil
}
