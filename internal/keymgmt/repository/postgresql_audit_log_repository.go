package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/allisson/dormkeys/internal/database"
	apperrors "github.com/allisson/dormkeys/internal/errors"
	"github.com/allisson/dormkeys/internal/keymgmt/domain"
)

// PostgreSQLAuditLogRepository persists key audit rows in PostgreSQL. Rows are
// append-only: the repository offers no update or delete.
type PostgreSQLAuditLogRepository struct {
	db *sql.DB
}

// NewPostgreSQLAuditLogRepository creates a new PostgreSQL audit log repository.
func NewPostgreSQLAuditLogRepository(db *sql.DB) *PostgreSQLAuditLogRepository {
	return &PostgreSQLAuditLogRepository{db: db}
}

// Create inserts an audit row. A nil signature is stored as NULL.
func (p *PostgreSQLAuditLogRepository) Create(ctx context.Context, log *domain.AuditLog) error {
	querier := database.GetTx(ctx, p.db)

	meta, err := encodeMetadata(log.Metadata)
	if err != nil {
		return apperrors.Wrap(err, "failed to encode audit log metadata")
	}

	query := `INSERT INTO key_audit_logs (` + auditLogColumns + `)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err = querier.ExecContext(
		ctx,
		query,
		log.ID,
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
func (p *PostgreSQLAuditLogRepository) ListByUser(
	ctx context.Context,
	userID string,
	limit int,
) ([]*domain.AuditLog, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + auditLogColumns + ` FROM key_audit_logs
			  WHERE user_id = $1
			  ORDER BY created_at DESC, id DESC
			  LIMIT $2`

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
func (p *PostgreSQLAuditLogRepository) ListBetween(
	ctx context.Context,
	from, to time.Time,
	offset, limit int,
) ([]*domain.AuditLog, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + auditLogColumns + ` FROM key_audit_logs
			  WHERE created_at >= $1 AND created_at <= $2
			  ORDER BY created_at ASC, id ASC
			  LIMIT $3 OFFSET $4`

	rows, err := querier.QueryContext(ctx, query, from, to, limit, offset)
	if err != nil {
		return nil, database.Classify(err, nil, "failed to list audit logs")
	}
	logs, err := collect(rows, scanAuditLog)
	if err != nil {
		return nil, database.Classify(err, nil, "failed to scan audit logs")
	}
	return logs, nil
}
