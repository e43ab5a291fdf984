// Package repository implements key management persistence for PostgreSQL, MySQL
// and SQLite. All repositories join the transaction carried by the context through
// database.GetTx and reclassify driver errors with database.Classify.
package repository

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/allisson/dormkeys/internal/errors"
	"github.com/allisson/dormkeys/internal/keymgmt/domain"
	"github.com/allisson/dormkeys/internal/metadata"
)

const (
	masterKeyColumns = `id, user_id, key_type, encrypted_key, wrapped_key, key_version, status,
		hardware_fingerprint, created_at, last_used_at, expires_at, previous_key_id, rotation_count, metadata`

	bindingColumns = `id, user_id, device_fingerprint, device_name, browser_info, screen_info,
		timezone, language, first_seen, last_seen, trust_score, is_active`

	auditLogColumns = `id, user_id, key_id, action, ip_address, user_agent, device_fingerprint,
		success, error_message, metadata, signature, created_at`
)

type rowScanner interface {
	Scan(dest ...any) error
}

// uuid.UUID scans from native UUIDs, 36-byte text and BINARY(16) alike, so the
// scanners are shared by every dialect.

func scanMasterKey(row rowScanner) (*domain.MasterKey, error) {
	var (
		key         domain.MasterKey
		status      string
		fingerprint sql.NullString
		lastUsedAt  sql.NullTime
		expiresAt   sql.NullTime
		previousID  uuid.NullUUID
		rawMetadata []byte
	)

	err := row.Scan(
		&key.ID,
		&key.UserID,
		&key.KeyType,
		&key.EncryptedKey,
		&key.WrappedKey,
		&key.Version,
		&status,
		&fingerprint,
		&key.CreatedAt,
		&lastUsedAt,
		&expiresAt,
		&previousID,
		&key.RotationCount,
		&rawMetadata,
	)
	if err != nil {
		return nil, err
	}

	key.Status = domain.KeyStatus(status)
	key.HardwareFingerprint = fingerprint.String
	key.CreatedAt = key.CreatedAt.UTC()
	key.LastUsedAt = utcPtr(lastUsedAt)
	key.ExpiresAt = utcPtr(expiresAt)
	if previousID.Valid {
		id := previousID.UUID
		key.PreviousKeyID = &id
	}
	if key.Metadata, err = decodeMetadata(rawMetadata); err != nil {
		return nil, err
	}

	return &key, nil
}

func scanBinding(row rowScanner) (*domain.HardwareBinding, error) {
	var (
		binding domain.HardwareBinding
		trust   float64
	)

	err := row.Scan(
		&binding.ID,
		&binding.UserID,
		&binding.DeviceFingerprint,
		&binding.DeviceName,
		&binding.BrowserInfo,
		&binding.ScreenInfo,
		&binding.Timezone,
		&binding.Language,
		&binding.FirstSeen,
		&binding.LastSeen,
		&trust,
		&binding.IsActive,
	)
	if err != nil {
		return nil, err
	}

	binding.TrustScore = domain.TrustScoreFromFloat(trust)
	binding.FirstSeen = binding.FirstSeen.UTC()
	binding.LastSeen = binding.LastSeen.UTC()
	return &binding, nil
}

func scanAuditLog(row rowScanner) (*domain.AuditLog, error) {
	var (
		log         domain.AuditLog
		keyID       uuid.NullUUID
		action      string
		rawMetadata []byte
	)

	err := row.Scan(
		&log.ID,
		&log.UserID,
		&keyID,
		&action,
		&log.IPAddress,
		&log.UserAgent,
		&log.DeviceFingerprint,
		&log.Success,
		&log.ErrorMessage,
		&rawMetadata,
		&log.Signature,
		&log.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	log.Action = domain.AuditAction(action)
	log.CreatedAt = log.CreatedAt.UTC()
	if keyID.Valid {
		id := keyID.UUID
		log.KeyID = &id
	}
	if log.Metadata, err = decodeMetadata(rawMetadata); err != nil {
		return nil, err
	}

	return &log, nil
}

func collect[T any](rows *sql.Rows, scan func(rowScanner) (T, error)) ([]T, error) {
	defer func() {
		_ = rows.Close()
	}()

	items := make([]T, 0)
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func decodeMetadata(raw []byte) (metadata.Map, error) {
	m, err := metadata.Parse(raw)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to decode stored metadata")
	}
	return m, nil
}

// encodeMetadata returns the JSON text of m; strings bind to JSON, JSONB and TEXT columns alike.
func encodeMetadata(m metadata.Map) (string, error) {
	b, err := m.Bytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func utcPtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// textID binds a nullable UUID for PostgreSQL and SQLite.
func textID(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	return id.String()
}

// binaryID binds a nullable UUID as BINARY(16) for MySQL.
func binaryID(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	b := *id
	return b[:]
}

// affected maps a zero-row update onto notFound.
func affected(result sql.Result, notFound error) error {
	n, err := result.RowsAffected()
	if err != nil {
		return apperrors.Persistence(err, "failed to read affected rows")
	}
	if n == 0 {
		return notFound
	}
	return nil
}
