package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/dormkeys/internal/database"
	"github.com/allisson/dormkeys/internal/keymgmt/domain"
)

// SQLiteHardwareBindingRepository persists hardware bindings in SQLite.
type SQLiteHardwareBindingRepository struct {
	db *sql.DB
}

// NewSQLiteHardwareBindingRepository creates a new SQLite hardware binding repository.
func NewSQLiteHardwareBindingRepository(db *sql.DB) *SQLiteHardwareBindingRepository {
	return &SQLiteHardwareBindingRepository{db: db}
}

// Get returns the binding of a device, or ErrBindingNotFound.
func (s *SQLiteHardwareBindingRepository) Get(
	ctx context.Context,
	userID, fingerprint string,
) (*domain.HardwareBinding, error) {
	return s.get(ctx, userID, fingerprint, "")
}

// GetForUpdate equals Get; the enclosing immediate transaction already holds the write lock.
func (s *SQLiteHardwareBindingRepository) GetForUpdate(
	ctx context.Context,
	userID, fingerprint string,
) (*domain.HardwareBinding, error) {
	return s.get(ctx, userID, fingerprint, "")
}

func (s *SQLiteHardwareBindingRepository) get(
	ctx context.Context,
	userID, fingerprint, lock string,
) (*domain.HardwareBinding, error) {
	querier := database.GetTx(ctx, s.db)

	query := `SELECT ` + bindingColumns + ` FROM hardware_bindings
			  WHERE user_id = ? AND device_fingerprint = ?` + lock

	binding, err := scanBinding(querier.QueryRowContext(ctx, query, userID, fingerprint))
	if err != nil {
		return nil, database.Classify(err, domain.ErrBindingNotFound, "failed to get hardware binding")
	}
	return binding, nil
}

// Create inserts a binding; a duplicate (user, fingerprint) is ErrConflict.
func (s *SQLiteHardwareBindingRepository) Create(ctx context.Context, b *domain.HardwareBinding) error {
	querier := database.GetTx(ctx, s.db)

	query := `INSERT INTO hardware_bindings (` + bindingColumns + `)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := querier.ExecContext(
		ctx,
		query,
		b.ID.String(),
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
func (s *SQLiteHardwareBindingRepository) Update(ctx context.Context, b *domain.HardwareBinding) error {
	querier := database.GetTx(ctx, s.db)

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
		b.ID.String(),
	)
	if err != nil {
		return database.Classify(err, nil, "failed to update hardware binding")
	}
	return affected(result, domain.ErrBindingNotFound)
}

// TouchLastSeen records a successful device verification.
func (s *SQLiteHardwareBindingRepository) TouchLastSeen(ctx context.Context, id uuid.UUID, at time.Time) error {
	querier := database.GetTx(ctx, s.db)

	_, err := querier.ExecContext(ctx, `UPDATE hardware_bindings SET last_seen = ? WHERE id = ?`, at, id.String())
	return database.Classify(err, nil, "failed to update hardware binding last seen")
}

// Deactivate disables a binding in one statement, or returns ErrBindingNotFound.
func (s *SQLiteHardwareBindingRepository) Deactivate(ctx context.Context, userID, fingerprint string) error {
	querier := database.GetTx(ctx, s.db)

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
func (s *SQLiteHardwareBindingRepository) ListActive(
	ctx context.Context,
	userID string,
) ([]*domain.HardwareBinding, error) {
	querier := database.GetTx(ctx, s.db)

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
