// Package usecase implements envelope encryption of user payloads under keys
// derived from the owner's master key.
package usecase

import (
	"context"

	keyDomain "github.com/allisson/dormkeys/internal/keymgmt/domain"
	"github.com/allisson/dormkeys/internal/userdata/domain"
)

// EncryptedDataRepository defines persistence for sealed user payloads.
type EncryptedDataRepository interface {
	// Upsert inserts the record or replaces the envelope of the record with the same
	// (UserID, DataType, DataID). ID and CreatedAt are refreshed from the stored row.
	Upsert(ctx context.Context, data *domain.EncryptedData) error
	Get(ctx context.Context, userID, dataType, dataID string) (*domain.EncryptedData, error)
	GetLatest(ctx context.Context, userID, dataType string) (*domain.EncryptedData, error)
	ListByType(ctx context.Context, userID, dataType string) ([]*domain.EncryptedData, error)
	// ListBelowVersion returns the records sealed under a master key older than version.
	ListBelowVersion(ctx context.Context, userID string, version int) ([]*domain.EncryptedData, error)
	// ReplaceEnvelope rewrites a record only while it still carries fromVersion.
	ReplaceEnvelope(ctx context.Context, data *domain.EncryptedData, fromVersion int) error
	Delete(ctx context.Context, userID, dataType, dataID string) (bool, error)
	CountByType(ctx context.Context, userID string) (map[string]int64, error)
}

// MasterKeyResolver unwraps master keys. MasterKeyUseCase satisfies it.
type MasterKeyResolver interface {
	GetLatest(ctx context.Context, userID, keyType string) (*keyDomain.MasterKeyMaterial, error)
	GetByVersion(
		ctx context.Context,
		userID, keyType string,
		version int,
	) (*keyDomain.MasterKeyMaterial, error)
}

// DataEncryptionUseCase seals and opens user payloads.
//
// Every method that takes a master key expects the caller's current key. Sealing
// and reaching records of another version both check it against the active key
// and fail with ErrAuthenticationFailed on mismatch. Records sealed under an older
// version then open with that version's key, resolved through MasterKeyResolver.
// Callers own masterKey.Key and must zero it.
type DataEncryptionUseCase interface {
	EncryptAndSave(
		ctx context.Context,
		input *domain.EncryptInput,
		masterKey *keyDomain.MasterKeyMaterial,
	) (*domain.EncryptOutput, error)
	// DecryptAndRead opens one record; an empty dataID selects the most recently
	// updated record of the type.
	DecryptAndRead(
		ctx context.Context,
		userID, dataType, dataID string,
		masterKey *keyDomain.MasterKeyMaterial,
	) (*domain.DecryptedData, error)
	// DecryptBatch opens every record of a type. Records that fail are reported in
	// BatchOutput.Failed and never abort the batch.
	DecryptBatch(
		ctx context.Context,
		userID, dataType string,
		masterKey *keyDomain.MasterKeyMaterial,
	) (*domain.BatchOutput, error)
	Delete(ctx context.Context, userID, dataType, dataID string) (bool, error)
	GetStats(ctx context.Context, userID string) (map[string]int64, error)
	// ReEncrypt moves every record sealed under an older master key to masterKey.
	ReEncrypt(
		ctx context.Context,
		userID string,
		masterKey *keyDomain.MasterKeyMaterial,
	) (*domain.ReEncryptOutput, error)
}
