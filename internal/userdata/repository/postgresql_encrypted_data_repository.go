package repository

import (
	"context"
	"database/sql"

	"github.com/allisson/dormkeys/internal/database"
	"github.com/allisson/dormkeys/internal/userdata/domain"
)

// PostgreSQLEncryptedDataRepository persists sealed user payloads in PostgreSQL.
type PostgreSQLEncryptedDataRepository struct {
	db *sql.DB
}

// NewPostgreSQLEncryptedDataRepository creates a new PostgreSQL encrypted data repository.
func NewPostgreSQLEncryptedDataRepository(db *sql.DB) *PostgreSQLEncryptedDataRepository {
	return &PostgreSQLEncryptedDataRepository{db: db}
}

// Upsert inserts the record or replaces the sealed payload of an existing one.
// The stored id and creation time are written back into data.
func (p *PostgreSQLEncryptedDataRepository) Upsert(ctx context.Context, data *domain.EncryptedData) error {
	querier := database.GetTx(ctx, p.db)

	envelope, meta, err := encodeRecord(data)
	if err != nil {
		return err
	}

	query := `INSERT INTO encrypted_user_data (` + dataColumns + `)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			  ON CONFLICT (user_id, data_type, data_id) DO UPDATE SET
			      encrypted_data = EXCLUDED.encrypted_data,
			      data_hash = EXCLUDED.data_hash,
			      master_key_version = EXCLUDED.master_key_version,
			      metadata = EXCLUDED.metadata,
			      updated_at = EXCLUDED.updated_at
			  RETURNING id, created_at`

	err = querier.QueryRowContext(
		ctx,
		query,
		data.ID,
		data.UserID,
		data.DataType,
		data.DataID,
		envelope,
		data.DataHash,
		data.MasterKeyVersion,
		meta,
		data.CreatedAt,
		data.UpdatedAt,
	).Scan(&data.ID, &data.CreatedAt)
	if err != nil {
		return database.Classify(err, nil, "failed to upsert encrypted data")
	}
	data.CreatedAt = data.CreatedAt.UTC()
	return nil
}

// Get returns one record.
func (p *PostgreSQLEncryptedDataRepository) Get(
	ctx context.Context,
	userID, dataType, dataID string,
) (*domain.EncryptedData, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + dataColumns + ` FROM encrypted_user_data
			  WHERE user_id = $1 AND data_type = $2 AND data_id = $3`

	data, err := scanEncryptedData(querier.QueryRowContext(ctx, query, userID, dataType, dataID))
	if err != nil {
		return nil, database.Classify(err, domain.ErrDataNotFound, "failed to get encrypted data")
	}
	return data, nil
}

// GetLatest returns the most recently updated record of a type.
func (p *PostgreSQLEncryptedDataRepository) GetLatest(
	ctx context.Context,
	userID, dataType string,
) (*domain.EncryptedData, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + dataColumns + ` FROM encrypted_user_data
			  WHERE user_id = $1 AND data_type = $2
			  ORDER BY updated_at DESC, id DESC
			  LIMIT 1`

	data, err := scanEncryptedData(querier.QueryRowContext(ctx, query, userID, dataType))
	if err != nil {
		return nil, database.Classify(err, domain.ErrDataNotFound, "failed to get latest encrypted data")
	}
	return data, nil
}

// ListByType returns every record of a type, most recently updated first.
func (p *PostgreSQLEncryptedDataRepository) ListByType(
	ctx context.Context,
	userID, dataType string,
) ([]*domain.EncryptedData, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + dataColumns + ` FROM encrypted_user_data
			  WHERE user_id = $1 AND data_type = $2
			  ORDER BY updated_at DESC, id DESC`

	rows, err := querier.QueryContext(ctx, query, userID, dataType)
	if err != nil {
		return nil, database.Classify(err, nil, "failed to list encrypted data")
	}
	items, err := collect(rows)
	if err != nil {
		return nil, database.Classify(err, nil, "failed to scan encrypted data")
	}
	return items, nil
}

// ListBelowVersion returns the records sealed under a master key older than version.
func (p *PostgreSQLEncryptedDataRepository) ListBelowVersion(
	ctx context.Context,
	userID string,
	version int,
) ([]*domain.EncryptedData, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + dataColumns + ` FROM encrypted_user_data
			  WHERE user_id = $1 AND master_key_version < $2
			  ORDER BY updated_at ASC, id ASC`

	rows, err := querier.QueryContext(ctx, query, userID, version)
	if err != nil {
		return nil, database.Classify(err, nil, "failed to list stale encrypted data")
	}
	items, err := collect(rows)
	if err != nil {
		return nil, database.Classify(err, nil, "failed to scan stale encrypted data")
	}
	return items, nil
}

// ReplaceEnvelope rewrites the sealed payload while the row still carries
// fromVersion, or returns ErrDataNotFound.
func (p *PostgreSQLEncryptedDataRepository) ReplaceEnvelope(
	ctx context.Context,
	data *domain.EncryptedData,
	fromVersion int,
) error {
	querier := database.GetTx(ctx, p.db)

	envelope, _, err := encodeRecord(data)
	if err != nil {
		return err
	}

	query := `UPDATE encrypted_user_data
			  SET encrypted_data = $1, data_hash = $2, master_key_version = $3, updated_at = $4
			  WHERE id = $5 AND master_key_version = $6`

	result, err := querier.ExecContext(
		ctx,
		query,
		envelope,
		data.DataHash,
		data.MasterKeyVersion,
		data.UpdatedAt,
		data.ID,
		fromVersion,
	)
	if err != nil {
		return database.Classify(err, nil, "failed to replace envelope")
	}
	_, err = affected(result, domain.ErrDataNotFound)
	return err
}

// Delete removes a record and reports whether one existed.
func (p *PostgreSQLEncryptedDataRepository) Delete(
	ctx context.Context,
	userID, dataType, dataID string,
) (bool, error) {
	querier := database.GetTx(ctx, p.db)

	result, err := querier.ExecContext(
		ctx,
		`DELETE FROM encrypted_user_data WHERE user_id = $1 AND data_type = $2 AND data_id = $3`,
		userID,
		dataType,
		dataID,
	)
	if err != nil {
		return false, database.Classify(err, nil, "failed to delete encrypted data")
	}
	return affected(result, nil)
}

// CountByType returns the number of records per data type.
func (p *PostgreSQLEncryptedDataRepository) CountByType(
	ctx context.Context,
	userID string,
) (map[string]int64, error) {
	querier := database.GetTx(ctx, p.db)

	rows, err := querier.QueryContext(
		ctx,
		`SELECT data_type, COUNT(*) FROM encrypted_user_data WHERE user_id = $1 GROUP BY data_type`,
		userID,
	)
	if err != nil {
		return nil, database.Classify(err, nil, "failed to count encrypted data")
	}
	counts, err := collectCounts(rows)
	if err != nil {
		return nil, database.Classify(err, nil, "failed to scan encrypted data counts")
	}
	return counts, nil
}
