package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/dormkeys/internal/database"
	"github.com/allisson/dormkeys/internal/keymgmt/domain"
)

// MySQLHardwareBindingRepository persists hardware bindings in MySQL with BINARY(16) ids.
type MySQLHardwareBindingRepository struct {
	db *sql.DB
}

// NewMySQLHardwareBindingRepository creates a new MySQL hardware binding repository.
func NewMySQLHardwareBindingRepository(db *sql.DB) *MySQLHardwareBindingRepository {
	return &MySQLHardwareBindingRepository{db: db}
}

// Get returns the binding of a device, or ErrBindingNotFound.
func (m *MySQLHardwareBindingRepository) Get(
	ctx context.Context,
	userID, fingerprint string,
) (*domain.HardwareBinding, error) {
	return m.get(ctx, userID, fingerprint, "")
}

// GetForUpdate is Get holding a row lock until the transaction ends.
func (m *MySQLHardwareBindingRepository) GetForUpdate(
	ctx context.Context,
	userID, fingerprint string,
) (*domain.HardwareBinding, error) {
	return m.get(ctx, userID, fingerprint, " FOR UPDATE")
}

func (m *MySQLHardwareBindingRepository) get(
	ctx context.Context,
	userID, fingerprint, lock string,
) (*domain.HardwareBinding, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT ` + bindingColumns + ` FROM hardware_bindings
			  WHERE user_id = ? AND device_fingerprint = ?` + lock

	binding, err := scanBinding(querier.QueryRowContext(ctx, query, userID, fingerprint))
	if err != nil {
		return nil, database.Classify(err, domain.ErrBindingNotFound, "failed to get hardware binding")
	}
	return binding, nil
}

// Create inserts a binding; a duplicate (user, fingerprint) is ErrConflict.
func (m *MySQLHardwareBindingRepository) Create(ctx context.Context, b *domain.HardwareBinding) error {
	querier := database.GetTx(ctx, m.db)

	query := `INSERT INTO hardware_bindings (` + bindingColumns + `)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := querier.ExecContext(
		ctx,
		query,
		binaryID(&b.ID),
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
func (m *MySQLHardwareBindingRepository) Update(ctx context.Context, b *domain.HardwareBinding) error {
	querier := database.GetTx(ctx, m.db)

	query := `UPDATE hardware_bindings
			  SET device_name = ?, browser_info = ?, screen_info = ?, timezone = ?, language = ?,
			      last_seen = ?, trust_score = ?, is_active = ?
			  WHERE id = ?`

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
		binaryID(&b.ID),
	)
	if err != nil {
		return database.Classify(err, nil, "failed to update hardware binding")
	}
	return affected(result, domain.ErrBindingNotFound)
}

// TouchLastSeen records a successful device verification.
func (m *MySQLHardwareBindingRepository) TouchLastSeen(ctx context.Context, id uuid.UUID, at time.Time) error {
	querier := database.GetTx(ctx, m.db)

	_, err := querier.ExecContext(ctx, `UPDATE hardware_bindings SET last_seen = ? WHERE id = ?`, at, binaryID(&id))
	return database.Classify(err, nil, "failed to update hardware binding last seen")
}

// Deactivate disables a binding in one statement, or returns ErrBindingNotFound.
func (m *MySQLHardwareBindingRepository) Deactivate(ctx context.Context, userID, fingerprint string) error {
	querier := database.GetTx(ctx, m.db)

	result, err := querier.ExecContext(
		ctx,
		`UPDATE hardware_bindings SET is_active = 0 WHERE user_id = ? AND device_fingerprint = ?`,
		userID,
		fingerprint,
	)
	if err != nil {
		return database.Classify(err, nil, "failed to deactivate hardware binding")
	}
	return affected(result, domain.ErrBindingNotFound)
}

// ListActive returns a user's active bindings, most recently seen first.
func (m *MySQLHardwareBindingRepository) ListActive(
	ctx context.Context,
	userID string,
) ([]*domain.HardwareBinding, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT ` + bindingColumns + ` FROM hardware_bindings
			  WHERE user_id = ? AND is_active = 1
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
