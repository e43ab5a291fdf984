package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/dormkeys/internal/database"
	"github.com/allisson/dormkeys/internal/keymgmt/domain"
)

// PostgreSQLHardwareBindingRepository persists hardware bindings in PostgreSQL.
type PostgreSQLHardwareBindingRepository struct {
	db *sql.DB
}

// NewPostgreSQLHardwareBindingRepository creates a new PostgreSQL hardware binding repository.
func NewPostgreSQLHardwareBindingRepository(db *sql.DB) *PostgreSQLHardwareBindingRepository {
	return &PostgreSQLHardwareBindingRepository{db: db}
}

// Get returns the binding of a device, or ErrBindingNotFound.
func (p *PostgreSQLHardwareBindingRepository) Get(
	ctx context.Context,
	userID, fingerprint string,
) (*domain.HardwareBinding, error) {
	return p.get(ctx, userID, fingerprint, "")
}

// GetForUpdate is Get holding a row lock until the transaction ends.
func (p *PostgreSQLHardwareBindingRepository) GetForUpdate(
	ctx context.Context,
	userID, fingerprint string,
) (*domain.HardwareBinding, error) {
	return p.get(ctx, userID, fingerprint, " FOR UPDATE")
}

func (p *PostgreSQLHardwareBindingRepository) get(
	ctx context.Context,
	userID, fingerprint, lock string,
) (*domain.HardwareBinding, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + bindingColumns + ` FROM hardware_bindings
			  WHERE user_id = $1 AND device_fingerprint = $2` + lock

	binding, err := scanBinding(querier.QueryRowContext(ctx, query, userID, fingerprint))
	if err != nil {
		return nil, database.Classify(err, domain.ErrBindingNotFound, "failed to get hardware binding")
	}
	return binding, nil
}

// Create inserts a binding; a duplicate (user, fingerprint) is ErrConflict.
func (p *PostgreSQLHardwareBindingRepository) Create(ctx context.Context, b *domain.HardwareBinding) error {
	querier := database.GetTx(ctx, p.db)

	query := `INSERT INTO hardware_bindings (` + bindingColumns + `)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := querier.ExecContext(
		ctx,
		query,
		b.ID,
		b.UserID,
		b.DeviceFingerprint,
		b.DeviceName,
		b.BrowserInfo,
		b.ScreenInfo,
		b.Timezone,
		b.Language,
		b.FirstSeen,
		b.LastSeen,
		b.TrustScore.String(),
		b.IsActive,
	)
	return database.Classify(err, nil, "failed to create hardware binding")
}

// Update rewrites the mutable columns of a binding.
func (p *PostgreSQLHardwareBindingRepository) Update(ctx context.Context, b *domain.HardwareBinding) error {
	querier := database.GetTx(ctx, p.db)

	query := `UPDATE hardware_bindings
			  SET device_name = $1, browser_info = $2, screen_info = $3, timezone = $4, language = $5,
			      last_seen = $6, trust_score = $7, is_active = $8
			  WHERE id = $9`

	result, err := querier.ExecContext(
		ctx,
		query,
		b.DeviceName,
		b.BrowserInfo,
		b.ScreenInfo,
		b.Timezone,
		b.Language,
		b.LastSeen,
		b.TrustScore.String(),
		b.IsActive,
		b.ID,
	)
	if err != nil {
		return database.Classify(err, nil, "failed to update hardware binding")
	}
	return affected(result, domain.ErrBindingNotFound)
}

// TouchLastSeen records a successful device verification.
func (p *PostgreSQLHardwareBindingRepository) TouchLastSeen(ctx context.Context, id uuid.UUID, at time.Time) error {
	querier := database.GetTx(ctx, p.db)

	_, err := querier.ExecContext(ctx, `UPDATE hardware_bindings SET last_seen = $1 WHERE id = $2`, at, id)
	return database.Classify(err, nil, "failed to update hardware binding last seen")
}

// Deactivate disables a binding in one statement, or returns ErrBindingNotFound.
func (p *PostgreSQLHardwareBindingRepository) Deactivate(ctx context.Context, userID, fingerprint string) error {
	querier := database.GetTx(ctx, p.db)

	result, err := querier.ExecContext(
		ctx,
		`UPDATE hardware_bindings SET is_active = FALSE WHERE user_id = $1 AND device_fingerprint = $2`,
		userID,
		fingerprint,
	)
	if err != nil {
		return database.Classify(err, nil, "failed to deactivate hardware binding")
	}
	return affected(result, domain.ErrBindingNotFound)
}

// ListActive returns a user's active bindings, most recently seen first.
func (p *PostgreSQLHardwareBindingRepository) ListActive(
	ctx context.Context,
	userID string,
) ([]*domain.HardwareBinding, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + bindingColumns + ` FROM hardware_bindings
			  WHERE user_id = $1 AND is_active = TRUE
			  ORDER BY last_seen DESC`

	rows, err := querier.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, database.Classify(err, nil, "failed to list hardware bindings")
	}
	bindings, err := collect(rows, scanBinding)
	if err != nil {
		return nil, database.Classify(err, nil, "failed to scan hardware bindings")
	}
	return bindings, nil
}
