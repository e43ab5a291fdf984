package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/allisson/dormkeys/internal/database"
	apperrors "github.com/allisson/dormkeys/internal/errors"
	"github.com/allisson/dormkeys/internal/keymgmt/domain"
)

// SQLiteAuditLogRepository persists key audit rows in SQLite.
type SQLiteAuditLogRepository struct {
	db *sql.DB
}

// NewSQLiteAuditLogRepository creates a new SQLite audit log repository.
func NewSQLiteAuditLogRepository(db *sql.DB) *SQLiteAuditLogRepository {
	return &SQLiteAuditLogRepository{db: db}
}

// Create inserts an audit row. A nil signature is stored as NULL.
func (s *SQLiteAuditLogRepository) Create(ctx context.Context, log *domain.AuditLog) error {
	querier := database.GetTx(ctx, s.db)

	meta, err := encodeMetadata(log.Metadata)
	if err != nil {
		return apperrors.Wrap(err, "failed to encode audit log metadata")
	}

	query := `INSERT INTO key_audit_logs (` + auditLogColumns + `)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = querier.ExecContext(
		ctx,
		query,
		log.ID.String(),
		log.UserID,
		textID(log.KeyID),
		string(log.Action),
		log.IPAddress,
		log.UserAgent,
		log.DeviceFingerprint,
		log.Success,
		log.ErrorMessage,
		meta,
		log.Signature,
		log.CreatedAt,
	)
	return database.Classify(err, nil, "failed to create audit log")
}

// ListByUser returns a user's most recent audit rows, newest first.
func (s *SQLiteAuditLogRepository) ListByUser(
	ctx context.Context,
	userID string,
	limit int,
) ([]*domain.AuditLog, error) {
	querier := database.GetTx(ctx, s.db)

	query := `SELECT ` + auditLogColumns + ` FROM key_audit_logs
			  WHERE user_id = ?
			  ORDER BY created_at DESC, id DESC
			  LIMIT ?`

	rows, err := querier.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, database.Classify(err, nil, "failed to list audit logs")
	}
	logs, err := collect(rows, scanAuditLog)
	if err != nil {
		return nil, database.Classify(err, nil, "failed to scan audit logs")
	}
	return logs, nil
}

// ListBetween pages through rows created in [from, to], oldest first.
func (s *SQLiteAuditLogRepository) ListBetween(
	ctx context.Context,
	from, to time.Time,
	offset, limit int,
) ([]*domain.AuditLog, error) {
	querier := database.GetTx(ctx, s.db)

	query := `SELECT ` + auditLogColumns + ` FROM key_audit_logs
			  WHERE created_at >= ? AND created_at <= ?
			  ORDER BY created_at ASC, id ASC
			  LIMIT ? OFFSET ?`

	rows, err := querier.QueryContext(ctx, query, from.UTC(), to.UTC(), limit, offset)
	if err != nil {
		return nil, database.Classify(err, nil, "failed to list audit logs")
	}
	logs, err := collect(rows, scanAuditLog)
	if err != nil {
		return nil, database.Classify(err, nil, "failed to scan audit logs")
	}
	return logs, nil
}
