package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/dormkeys/internal/database"
	apperrors "github.com/allisson/dormkeys/internal/errors"
	"github.com/allisson/dormkeys/internal/keymgmt/domain"
	"github.com/allisson/dormkeys/internal/metadata"
)

// SQLiteMasterKeyRepository persists master keys in SQLite. SQLite has no row locks;
// writers are serialized by immediate transactions (_txlock=immediate), which take
// the database write lock at BEGIN.
type SQLiteMasterKeyRepository struct {
	db *sql.DB
}

// NewSQLiteMasterKeyRepository creates a new SQLite master key repository.
func NewSQLiteMasterKeyRepository(db *sql.DB) *SQLiteMasterKeyRepository {
	return &SQLiteMasterKeyRepository{db: db}
}

// Create inserts a key.
func (s *SQLiteMasterKeyRepository) Create(ctx context.Context, key *domain.MasterKey) error {
	querier := database.GetTx(ctx, s.db)

	meta, err := encodeMetadata(key.Metadata)
	if err != nil {
		return apperrors.Wrap(err, "failed to encode master key metadata")
	}

	query := `INSERT INTO encryption_keys (` + masterKeyColumns + `)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = querier.ExecContext(
		ctx,
		query,
		key.ID.String(),
		key.UserID,
		key.KeyType,
		key.EncryptedKey,
		key.WrappedKey,
		key.Version,
		string(key.Status),
		nullString(key.HardwareFingerprint),
		key.CreatedAt,
		key.LastUsedAt,
		key.ExpiresAt,
		textID(key.PreviousKeyID),
		key.RotationCount,
		meta,
	)
	return database.Classify(err, nil, "failed to create master key")
}

// GetActive returns the active key of a user and type, or ErrNoActiveKey.
func (s *SQLiteMasterKeyRepository) GetActive(ctx context.Context, userID, keyType string) (*domain.MasterKey, error) {
	querier := database.GetTx(ctx, s.db)

	query := `SELECT ` + masterKeyColumns + ` FROM encryption_keys
			  WHERE user_id = ? AND key_type = ? AND status = 'active'
			  ORDER BY key_version DESC LIMIT 1`

	key, err := scanMasterKey(querier.QueryRowContext(ctx, query, userID, keyType))
	if err != nil {
		return nil, database.Classify(err, domain.ErrNoActiveKey, "failed to get active master key")
	}
	return key, nil
}

// GetActiveForUpdate equals GetActive; the enclosing immediate transaction already
// holds the write lock.
func (s *SQLiteMasterKeyRepository) GetActiveForUpdate(
	ctx context.Context,
	userID, keyType string,
) (*domain.MasterKey, error) {
	return s.GetActive(ctx, userID, keyType)
}

// GetByVersion returns a key of any status by version, or ErrMasterKeyNotFound.
func (s *SQLiteMasterKeyRepository) GetByVersion(
	ctx context.Context,
	userID, keyType string,
	version int,
) (*domain.MasterKey, error) {
	querier := database.GetTx(ctx, s.db)

	query := `SELECT ` + masterKeyColumns + ` FROM encryption_keys
			  WHERE user_id = ? AND key_type = ? AND key_version = ?`

	key, err := scanMasterKey(querier.QueryRowContext(ctx, query, userID, keyType, version))
	if err != nil {
		return nil, database.Classify(err, domain.ErrMasterKeyNotFound, "failed to get master key version")
	}
	return key, nil
}

// MaxVersion returns the highest version ever issued to a user and type, 0 if none.
func (s *SQLiteMasterKeyRepository) MaxVersion(ctx context.Context, userID, keyType string) (int, error) {
	querier := database.GetTx(ctx, s.db)

	var version int
	err := querier.QueryRowContext(
		ctx,
		`SELECT COALESCE(MAX(key_version), 0) FROM encryption_keys WHERE user_id = ? AND key_type = ?`,
		userID,
		keyType,
	).Scan(&version)
	if err != nil {
		return 0, database.Classify(err, nil, "failed to get max master key version")
	}
	return version, nil
}

// Transition moves an active key to status, or returns ErrRotationConflict.
func (s *SQLiteMasterKeyRepository) Transition(
	ctx context.Context,
	id uuid.UUID,
	status domain.KeyStatus,
	meta metadata.Map,
) error {
	querier := database.GetTx(ctx, s.db)

	encoded, err := encodeMetadata(meta)
	if err != nil {
		return apperrors.Wrap(err, "failed to encode master key metadata")
	}

	result, err := querier.ExecContext(
		ctx,
		`UPDATE encryption_keys SET status = ?, metadata = ? WHERE id = ? AND status = 'active'`,
		string(status),
		encoded,
		id.String(),
	)
	if err != nil {
		return database.Classify(err, nil, "failed to update master key status")
	}
	return affected(result, domain.ErrRotationConflict)
}

// TouchLastUsed records a successful verification.
func (s *SQLiteMasterKeyRepository) TouchLastUsed(ctx context.Context, id uuid.UUID, at time.Time) error {
	querier := database.GetTx(ctx, s.db)

	_, err := querier.ExecContext(ctx, `UPDATE encryption_keys SET last_used_at = ? WHERE id = ?`, at, id.String())
	return database.Classify(err, nil, "failed to update master key last use")
}

// ListExpired returns up to limit active keys whose expiry is at or before now.
// Timestamps are stored as UTC text, which orders lexically.
func (s *SQLiteMasterKeyRepository) ListExpired(
	ctx context.Context,
	now time.Time,
	limit int,
) ([]*domain.MasterKey, error) {
	querier := database.GetTx(ctx, s.db)

	query := `SELECT ` + masterKeyColumns + ` FROM encryption_keys
			  WHERE status = 'active' AND expires_at IS NOT NULL AND expires_at <= ?
			  ORDER BY expires_at ASC LIMIT ?`

	rows, err := querier.QueryContext(ctx, query, now.UTC(), limit)
	if err != nil {
		return nil, database.Classify(err, nil, "failed to list expired master keys")
	}
	keys, err := collect(rows, scanMasterKey)
	if err != nil {
		return nil, database.Classify(err, nil, "failed to scan expired master keys")
	}
	return keys, nil
}
