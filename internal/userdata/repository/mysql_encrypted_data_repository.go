package repository

import (
	"context"
	"database/sql"

	"github.com/allisson/dormkeys/internal/database"
	"github.com/allisson/dormkeys/internal/userdata/domain"
)

// MySQLEncryptedDataRepository persists sealed user payloads in MySQL with BINARY(16)
// ids.
type MySQLEncryptedDataRepository struct {
	db *sql.DB
}

// NewMySQLEncryptedDataRepository creates a new MySQL encrypted data repository.
func NewMySQLEncryptedDataRepository(db *sql.DB) *MySQLEncryptedDataRepository {
	return &MySQLEncryptedDataRepository{db: db}
}

// Upsert inserts the record or replaces the sealed payload of an existing one.
// The stored id and creation time are written back into data.
func (m *MySQLEncryptedDataRepository) Upsert(ctx context.Context, data *domain.EncryptedData) error {
	querier := database.GetTx(ctx, m.db)

	envelope, meta, err := encodeRecord(data)
	if err != nil {
		return err
	}

	query := `INSERT INTO encrypted_user_data (` + dataColumns + `)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			  ON DUPLICATE KEY UPDATE
			      encrypted_data = VALUES(encrypted_data),
			      data_hash = VALUES(data_hash),
			      master_key_version = VALUES(master_key_version),
			      metadata = VALUES(metadata),
			      updated_at = VALUES(updated_at)`

	id := data.ID
	_, err = querier.ExecContext(
		ctx,
		query,
		id[:],
		data.UserID,
		data.DataType,
		data.DataID,
		envelope,
		data.DataHash,
		data.MasterKeyVersion,
		meta,
		data.CreatedAt,
		data.UpdatedAt,
	)
	if err != nil {
		return database.Classify(err, nil, "failed to upsert encrypted data")
	}

	// MySQL has no RETURNING; read back the identity of the surviving row.
	err = querier.QueryRowContext(
		ctx,
		`SELECT id, created_at FROM encrypted_user_data WHERE user_id = ? AND data_type = ? AND data_id = ?`,
		data.UserID,
		data.DataType,
		data.DataID,
	).Scan(&data.ID, &data.CreatedAt)
	if err != nil {
		return database.Classify(err, nil, "failed to read upserted encrypted data")
	}
	data.CreatedAt = data.CreatedAt.UTC()
	return nil
}

// Get returns one record.
func (m *MySQLEncryptedDataRepository) Get(
	ctx context.Context,
	userID, dataType, dataID string,
) (*domain.EncryptedData, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT ` + dataColumns + ` FROM encrypted_user_data
			  WHERE user_id = ? AND data_type = ? AND data_id = ?`

	data, err := scanEncryptedData(querier.QueryRowContext(ctx, query, userID, dataType, dataID))
	if err != nil {
		return nil, database.Classify(err, domain.ErrDataNotFound, "failed to get encrypted data")
	}
	return data, nil
}

// GetLatest returns the most recently updated record of a type.
func (m *MySQLEncryptedDataRepository) GetLatest(
	ctx context.Context,
	userID, dataType string,
) (*domain.EncryptedData, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT ` + dataColumns + ` FROM encrypted_user_data
			  WHERE user_id = ? AND data_type = ?
			  ORDER BY updated_at DESC, id DESC
			  LIMIT 1`

	data, err := scanEncryptedData(querier.QueryRowContext(ctx, query, userID, dataType))
	if err != nil {
		return nil, database.Classify(err, domain.ErrDataNotFound, "failed to get latest encrypted data")
	}
	return data, nil
}

// ListByType returns every record of a type, most recently updated first.
func (m *MySQLEncryptedDataRepository) ListByType(
	ctx context.Context,
	userID, dataType string,
) ([]*domain.EncryptedData, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT ` + dataColumns + ` FROM encrypted_user_data
			  WHERE user_id = ? AND data_type = ?
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
func (m *MySQLEncryptedDataRepository) ListBelowVersion(
	ctx context.Context,
	userID string,
	version int,
) ([]*domain.EncryptedData, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT ` + dataColumns + ` FROM encrypted_user_data
			  WHERE user_id = ? AND master_key_version < ?
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
func (m *MySQLEncryptedDataRepository) ReplaceEnvelope(
	ctx context.Context,
	data *domain.EncryptedData,
	fromVersion int,
) error {
	querier := database.GetTx(ctx, m.db)

	envelope, _, err := encodeRecord(data)
	if err != nil {
		return err
	}

	id := data.ID
	query := `UPDATE encrypted_user_data
			  SET encrypted_data = ?, data_hash = ?, master_key_version = ?, updated_at = ?
			  WHERE id = ? AND master_key_version = ?`

	result, err := querier.ExecContext(
		ctx,
		query,
		envelope,
		data.DataHash,
		data.MasterKeyVersion,
		data.UpdatedAt,
		id[:],
		fromVersion,
	)
	if err != nil {
		return database.Classify(err, nil, "failed to replace envelope")
	}
	_, err = affected(result, domain.ErrDataNotFound)
	return err
}

// Delete removes a record and reports whether one existed.
func (m *MySQLEncryptedDataRepository) Delete(
	ctx context.Context,
	userID, dataType, dataID string,
) (bool, error) {
	querier := database.GetTx(ctx, m.db)

	result, err := querier.ExecContext(
		ctx,
		`DELETE FROM encrypted_user_data WHERE user_id = ? AND data_type = ? AND data_id = ?`,
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
func (m *MySQLEncryptedDataRepository) CountByType(
	ctx context.Context,
	userID string,
) (map[string]int64, error) {
	querier := database.GetTx(ctx, m.db)

	rows, err := querier.QueryContext(
		ctx,
		`SELECT data_type, COUNT(*) FROM encrypted_user_data WHERE user_id = ? GROUP BY data_type`,
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
