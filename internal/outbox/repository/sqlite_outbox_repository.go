package repository

import (
	"context"
	"database/sql"

	"github.com/allisson/dormkeys/internal/database"
	"github.com/allisson/dormkeys/internal/outbox/domain"
)

// SQLiteOutboxEventRepository handles outbox event persistence for SQLite. There is
// no SKIP LOCKED: the immediate transaction opened by ProcessEvents makes a single
// relay the only reader of the pending set.
type SQLiteOutboxEventRepository struct {
	db *sql.DB
}

// NewSQLiteOutboxEventRepository creates a new SQLiteOutboxEventRepository
func NewSQLiteOutboxEventRepository(db *sql.DB) *SQLiteOutboxEventRepository {
	return &SQLiteOutboxEventRepository{db: db}
}

// Create inserts a new outbox event in the transaction carried by ctx.
func (r *SQLiteOutboxEventRepository) Create(ctx context.Context, event *domain.OutboxEvent) error {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO key_events_outbox (` + outboxColumns + `)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := querier.ExecContext(ctx, query, event.ID.String(), event.EventType, event.Payload,
		string(event.Status), event.Retries, event.LastError, event.ProcessedAt, event.CreatedAt.UTC(),
		event.UpdatedAt.UTC())

	return database.Classify(err, nil, "failed to create outbox event")
}

// GetPendingEvents returns up to limit pending events, oldest first.
func (r *SQLiteOutboxEventRepository) GetPendingEvents(
	ctx context.Context,
	limit int,
) ([]*domain.OutboxEvent, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT ` + outboxColumns + `
			  FROM key_events_outbox
			  WHERE status = ?
			  ORDER BY created_at ASC
			  LIMIT ?`

	rows, err := querier.QueryContext(ctx, query, string(domain.OutboxEventStatusPending), limit)
	if err != nil {
		return nil, database.Classify(err, nil, "failed to get pending outbox events")
	}
	defer rows.Close() //nolint:errcheck

	events, err := scanEvents(rows)
	return events, database.Classify(err, nil, "failed to scan outbox events")
}

// Update stores the processing outcome of an event.
func (r *SQLiteOutboxEventRepository) Update(ctx context.Context, event *domain.OutboxEvent) error {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE key_events_outbox
			  SET status = ?, retries = ?, last_error = ?, processed_at = ?, updated_at = ?
			  WHERE id = ?`

	_, err := querier.ExecContext(ctx, query, string(event.Status), event.Retries, event.LastError,
		event.ProcessedAt, event.UpdatedAt.UTC(), event.ID.String())

	return database.Classify(err, nil, "failed to update outbox event")
}
