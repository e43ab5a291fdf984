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

// PostgreSQLMasterKeyRepository persists master keys in PostgreSQL.
type PostgreSQLMasterKeyRepository struct {
	db *sql.DB
}

// NewPostgreSQLMasterKeyRepository creates a new PostgreSQL master key repository.
func NewPostgreSQLMasterKeyRepository(db *sql.DB) *PostgreSQLMasterKeyRepository {
	return &PostgreSQLMasterKeyRepository{db: db}
}

// Create inserts a key. A second active key for the same user and type violates the
// partial unique index and is reported as ErrConflict.
func (p *PostgreSQLMasterKeyRepository) Create(ctx context.Context, key *domain.MasterKey) error {
	querier := database.GetTx(ctx, p.db)

	meta, err := encodeMetadata(key.Metadata)
	if err != nil {
		return apperrors.Wrap(err, "failed to encode master key metadata")
	}

	query := `INSERT INTO encryption_keys (` + masterKeyColumns + `)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err = querier.ExecContext(
		ctx,
		query,
		key.ID,
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
func (p *PostgreSQLMasterKeyRepository) GetActive(
	ctx context.Context,
	userID, keyType string,
) (*domain.MasterKey, error) {
	return p.getActive(ctx, userID, keyType, "")
}

// GetActiveForUpdate is GetActive holding a row lock until the transaction ends.
func (p *PostgreSQLMasterKeyRepository) GetActiveForUpdate(
	ctx context.Context,
	userID, keyType string,
) (*domain.MasterKey, error) {
	return p.getActive(ctx, userID, keyType, " FOR UPDATE")
}

func (p *PostgreSQLMasterKeyRepository) getActive(
	ctx context.Context,
	userID, keyType, lock string,
) (*domain.MasterKey, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + masterKeyColumns + ` FROM encryption_keys
			  WHERE user_id = $1 AND key_type = $2 AND status = 'active'
			  ORDER BY key_version DESC LIMIT 1` + lock

	key, err := scanMasterKey(querier.QueryRowContext(ctx, query, userID, keyType))
	if err != nil {
		return nil, database.Classify(err, domain.ErrNoActiveKey, "failed to get active master key")
	}
	return key, nil
}

// GetByVersion returns a key of any status by version, or ErrMasterKeyNotFound.
func (p *PostgreSQLMasterKeyRepository) GetByVersion(
	ctx context.Context,
	userID, keyType string,
	version int,
) (*domain.MasterKey, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + masterKeyColumns + ` FROM encryption_keys
			  WHERE user_id = $1 AND key_type = $2 AND key_version = $3`

	key, err := scanMasterKey(querier.QueryRowContext(ctx, query, userID, keyType, version))
	if err != nil {
		return nil, database.Classify(err, domain.ErrMasterKeyNotFound, "failed to get master key version")
	}
	return key, nil
}

// MaxVersion returns the highest version ever issued to a user and type, 0 if none.
func (p *PostgreSQLMasterKeyRepository) MaxVersion(ctx context.Context, userID, keyType string) (int, error) {
	querier := database.GetTx(ctx, p.db)

	var version int
	err := querier.QueryRowContext(
		ctx,
		`SELECT COALESCE(MAX(key_version), 0) FROM encryption_keys WHERE user_id = $1 AND key_type = $2`,
		userID,
		keyType,
	).Scan(&version)
	if err != nil {
		return 0, database.Classify(err, nil, "failed to get max master key version")
	}
	return version, nil
}

// Transition moves an active key to status and replaces its metadata. It updates
// nothing and returns ErrRotationConflict when the key is no longer active.
func (p *PostgreSQLMasterKeyRepository) Transition(
	ctx context.Context,
	id uuid.UUID,
	status domain.KeyStatus,
	meta metadata.Map,
) error {
	querier := database.GetTx(ctx, p.db)

	encoded, err := encodeMetadata(meta)
	if err != nil {
		return apperrors.Wrap(err, "failed to encode master key metadata")
	}

	result, err := querier.ExecContext(
		ctx,
		`UPDATE encryption_keys SET status = $1, metadata = $2 WHERE id = $3 AND status = 'active'`,
		string(status),
		encoded,
		id,
	)
	if err != nil {
		return database.Classify(err, nil, "failed to update master key status")
	}
	return affected(result, domain.ErrRotationConflict)
}

// TouchLastUsed records a successful verification.
func (p *PostgreSQLMasterKeyRepository) TouchLastUsed(ctx context.Context, id uuid.UUID, at time.Time) error {
	querier := database.GetTx(ctx, p.db)

	_, err := querier.ExecContext(ctx, `UPDATE encryption_keys SET last_used_at = $1 WHERE id = $2`, at, id)
	return database.Classify(err, nil, "failed to update master key last use")
}

// ListExpired returns up to limit active keys whose expiry is at or before now,
// oldest expiry first.
func (p *PostgreSQLMasterKeyRepository) ListExpired(
	ctx context.Context,
	now time.Time,
	limit int,
) ([]*domain.MasterKey, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + masterKeyColumns + ` FROM encryption_keys
			  WHERE status = 'active' AND expires_at IS NOT NULL AND expires_at <= $1
			  ORDER BY expires_at ASC LIMIT $2`

	rows, err := querier.QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, database.Classify(err, nil, "failed to list expired master keys")
	}
	keys, err := collect(rows, scanMasterKey)
	if err != nil {
		return nil, database.Classify(err, nil, "failed to scan expired master keys")
	}
	return keys, nil
}
