// Package repository implements encrypted user data persistence for PostgreSQL,
// MySQL and SQLite. Records are upserted per (user_id, data_type, data_id) and
// hard-deleted.
package repository

import (
	"database/sql"

	apperrors "github.com/allisson/dormkeys/internal/errors"
	"github.com/allisson/dormkeys/internal/metadata"
	"github.com/allisson/dormkeys/internal/userdata/domain"
)

const dataColumns = `id, user_id, data_type, data_id, encrypted_data, data_hash,
	master_key_version, metadata, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEncryptedData(row rowScanner) (*domain.EncryptedData, error) {
	var (
		data        domain.EncryptedData
		rawEnvelope []byte
		rawMetadata []byte
	)

	err := row.Scan(
		&data.ID,
		&data.UserID,
		&data.DataType,
		&data.DataID,
		&rawEnvelope,
		&data.DataHash,
		&data.MasterKeyVersion,
		&rawMetadata,
		&data.CreatedAt,
		&data.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if data.Envelope, err = domain.ParseEnvelope(rawEnvelope); err != nil {
		return nil, apperrors.Wrap(err, "failed to decode stored envelope")
	}
	if data.Metadata, err = metadata.Parse(rawMetadata); err != nil {
		return nil, apperrors.Wrap(err, "failed to decode stored metadata")
	}
	data.CreatedAt = data.CreatedAt.UTC()
	data.UpdatedAt = data.UpdatedAt.UTC()
	return &data, nil
}

func collect(rows *sql.Rows) ([]*domain.EncryptedData, error) {
	defer func() {
		_ = rows.Close()
	}()

	items := make([]*domain.EncryptedData, 0)
	for rows.Next() {
		item, err := scanEncryptedData(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func collectCounts(rows *sql.Rows) (map[string]int64, error) {
	defer func() {
		_ = rows.Close()
	}()

	counts := make(map[string]int64)
	for rows.Next() {
		var (
			dataType string
			count    int64
		)
		if err := rows.Scan(&dataType, &count); err != nil {
			return nil, err
		}
		counts[dataType] = count
	}
	return counts, rows.Err()
}

// encodeRecord returns the envelope and metadata documents as JSON text.
func encodeRecord(data *domain.EncryptedData) (envelope, meta string, err error) {
	if envelope, err = data.Envelope.Marshal(); err != nil {
		return "", "", apperrors.Wrap(err, "failed to encode envelope")
	}
	b, err := data.Metadata.Bytes()
	if err != nil {
		return "", "", apperrors.Wrap(err, "failed to encode metadata")
	}
	return envelope, string(b), nil
}

// affected reports whether the statement touched a row. A zero-row result returns
// notFound, which may be nil for idempotent statements.
func affected(result sql.Result, notFound error) (bool, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return false, apperrors.Persistence(err, "failed to read affected rows")
	}
	if n == 0 {
		return false, notFound
	}
	return true, nil
}
