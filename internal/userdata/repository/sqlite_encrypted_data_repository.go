package repository

import (
	"context"
	"database/sql"

	"github.com/allisson/dormkeys/internal/database"
	"github.com/allisson/dormkeys/internal/userdata/domain"
)

// SQLiteEncryptedDataRepository persists sealed user payloads in SQLite. Ids are
// stored as text.
type SQLiteEncryptedDataRepository struct {
	db *sql.DB
}

// NewSQLiteEncryptedDataRepository creates a new SQLite encrypted data repository.
func NewSQLiteEncryptedDataRepository(db *sql.DB) *SQLiteEncryptedDataRepository {
	return &SQLiteEncryptedDataRepository{db: db}
}

// Upsert inserts the record or replaces the sealed payload of an existing one.
// The stored id and creation time are written back into data.
func (s *SQLiteEncryptedDataRepository) Upsert(ctx context.Context, data *domain.EncryptedData) error {
	querier := database.GetTx(ctx, s.db)

	envelope, meta, err := encodeRecord(data)
	if err != nil {
		return err
	}

	query := `INSERT INTO encrypted_user_data (` + dataColumns + `)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			  ON CONFLICT (user_id, data_type, data_id) DO UPDATE SET
			      encrypted_data = excluded.encrypted_data,
			      data_hash = excluded.data_hash,
			      master_key_version = excluded.master_key_version,
			      metadata = excluded.metadata,
			      updated_at = excluded.updated_at`

	_, err = querier.ExecContext(
		ctx,
		query,
		data.ID.String(),
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

	// RETURNING columns carry no declared type, so timestamps would come back as
	// text; read the surviving row through the table instead.
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
func (s *SQLiteEncryptedDataRepository) Get(
	ctx context.Context,
	userID, dataType, dataID string,
) (*domain.EncryptedData, error) {
	querier := database.GetTx(ctx, s.db)

	query := `SELECT ` + dataColumns + ` FROM encrypted_user_data
			  WHERE user_id = ? AND data_type = ? AND data_id = ?`

	data, err := scanEncryptedData(querier.QueryRowContext(ctx, query, userID, dataType, dataID))
	if err != nil {
		return nil, database.Classify(err, domain.ErrDataNotFound, "failed to get encrypted data")
	}
	return data, nil
}

// GetLatest returns the most recently updated record of a type.
func (s *SQLiteEncryptedDataRepository) GetLatest(
	ctx context.Context,
	userID, dataType string,
) (*domain.EncryptedData, error) {
	querier := database.GetTx(ctx, s.db)

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
func (s *SQLiteEncryptedDataRepository) ListByType(
	ctx context.Context,
	userID, dataType string,
) ([]*domain.EncryptedData, error) {
	querier := database.GetTx(ctx, s.db)

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
func (s *SQLiteEncryptedDataRepository) ListBelowVersion(
	ctx context.Context,
	userID string,
	version int,
) ([]*domain.EncryptedData, error) {
	querier := database.GetTx(ctx, s.db)

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
func (s *SQLiteEncryptedDataRepository) ReplaceEnvelope(
	ctx context.Context,
	data *domain.EncryptedData,
	fromVersion int,
) error {
	querier := database.GetTx(ctx, s.db)

	envelope, _, err := encodeRecord(data)
	if err != nil {
		return err
	}

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
		data.ID.String(),
		fromVersion,
	)
	if err != nil {
		return database.Classify(err, nil, "failed to replace envelope")
	}
	_, err = affected(result, domain.ErrDataNotFound)
	return err
}

// Delete removes a record and reports whether one existed.
func (s *SQLiteEncryptedDataRepository) Delete(
	ctx context.Context,
	userID, dataType, dataID string,
) (bool, error) {
	querier := database.GetTx(ctx, s.db)

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
func (s *SQLiteEncryptedDataRepository) CountByType(
	ctx context.Context,
	userID string,
) (map[string]int64, error) {
	querier := database.GetTx(ctx, s.db)

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
