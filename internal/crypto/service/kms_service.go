package service

import (
	"context"
	"fmt"
	"net/url"
	"slices"

	"gocloud.dev/secrets"

	cryptoDomain "github.com/allisson/dormkeys/internal/crypto/domain"
	apperrors "github.com/allisson/dormkeys/internal/errors"

	_ "gocloud.dev/secrets/awskms"
	_ "gocloud.dev/secrets/azurekeyvault"
	_ "gocloud.dev/secrets/gcpkms"
	_ "gocloud.dev/secrets/hashivault"
	_ "gocloud.dev/secrets/localsecrets"
)

// KMSSchemes lists the key URI schemes with a registered driver. base64key is the
// local provider for development and tests.
var KMSSchemes = []string{"awskms", "azurekeyvault", "gcpkms", "hashivault", "base64key"}

type kmsService struct{}

// NewKMSService opens keepers through gocloud.dev/secrets.
func NewKMSService() KMSService {
	return &kmsService{}
}

// OpenKeeper opens the keeper behind keyURI. The returned keeper only unwraps
// payloads of exactly MasterSecretSize bytes, so a keeper pointed at the wrong key
// ring cannot hand back material of some other shape.
func (k *kmsService) OpenKeeper(ctx context.Context, keyURI string) (cryptoDomain.KMSKeeper, error) {
	parsed, err := url.Parse(keyURI)
	if err != nil || !slices.Contains(KMSSchemes, parsed.Scheme) {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidInput, "unsupported kms key uri scheme %q", schemeOf(parsed))
	}

	keeper, err := secrets.OpenKeeper(ctx, keyURI)
	if err != nil {
		return nil, fmt.Errorf("failed to open KMS keeper: %w", err)
	}
	return &masterSecretKeeper{keeper: keeper}, nil
}

func schemeOf(u *url.URL) string {
	if u == nil {
		return ""
	}
	return u.Scheme
}

type masterSecretKeeper struct {
	keeper *secrets.Keeper
}

func (m *masterSecretKeeper) Encrypt(ctx context.Context, plaintext []byte) ([]byte, error) {
	if len(plaintext) != cryptoDomain.MasterSecretSize {
		return nil, cryptoDomain.ErrInvalidKeySize
	}
	return m.keeper.Encrypt(ctx, plaintext)
}

func (m *masterSecretKeeper) Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error) {
	plaintext, err := m.keeper.Decrypt(ctx, ciphertext)
	if err != nil {
		return nil, err
	}
	if len(plaintext) != cryptoDomain.MasterSecretSize {
		cryptoDomain.Zero(plaintext)
		return nil, fmt.Errorf("unwrapped secret has %d bytes: %w", len(plaintext), cryptoDomain.ErrInvalidKeySize)
	}
	return plaintext, nil
}

func (m *masterSecretKeeper) Close() error {
	return m.keeper.Close()
}
