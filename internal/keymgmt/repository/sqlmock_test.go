package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/allisson/dormkeys/internal/errors"
	"github.com/allisson/dormkeys/internal/keymgmt/domain"
	"github.com/allisson/dormkeys/internal/metadata"
)

func TestPostgreSQLMasterKeyRepository_SQL(t *testing.T) {
	ctx := context.Background()

	t.Run("GetActiveForUpdateLocksRow", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer func() { _ = db.Close() }()

		mock.ExpectQuery(`status = 'active'\s+ORDER BY key_version DESC LIMIT 1 FOR UPDATE`).
			WithArgs("42", "master").
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		_, err = NewPostgreSQLMasterKeyRepository(db).GetActiveForUpdate(ctx, "42", "master")
		assert.ErrorIs(t, err, domain.ErrNoActiveKey)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("GetActiveDriverError", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer func() { _ = db.Close() }()

		mock.ExpectQuery(`FROM encryption_keys`).
			WithArgs("42", "master").
			WillReturnError(errors.New("boom"))

		_, err = NewPostgreSQLMasterKeyRepository(db).GetActive(ctx, "42", "master")
		assert.ErrorIs(t, err, apperrors.ErrPersistence)
		assert.NotErrorIs(t, err, domain.ErrNoActiveKey)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("TransitionZeroRowsConflicts", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer func() { _ = db.Close() }()

		id := uuid.Must(uuid.NewV7())
		mock.ExpectExec(regexp.QuoteMeta(
			`UPDATE encryption_keys SET status = $1, metadata = $2 WHERE id = $3 AND status = 'active'`,
		)).
			WithArgs("rotated", `{"rotation_reason":"scheduled"}`, id).
			WillReturnResult(sqlmock.NewResult(0, 0))

		meta := metadata.Map{domain.MetaRotationReason: metadata.String("scheduled")}
		err = NewPostgreSQLMasterKeyRepository(db).Transition(ctx, id, domain.KeyStatusRotated, meta)
		assert.ErrorIs(t, err, domain.ErrRotationConflict)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("CreateUniqueViolationConflicts", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer func() { _ = db.Close() }()

		mock.ExpectExec(`INSERT INTO encryption_keys`).
			WillReturnError(&pq.Error{Code: "23505"})

		err = NewPostgreSQLMasterKeyRepository(db).Create(ctx, newKey("42", 1, domain.KeyStatusActive, nil))
		assert.ErrorIs(t, err, apperrors.ErrConflict)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("CreateDriverErrorIsPersistence", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer func() { _ = db.Close() }()

		driverErr := errors.New("connection reset by peer")
		mock.ExpectExec(`INSERT INTO encryption_keys`).WillReturnError(driverErr)

		err = NewPostgreSQLMasterKeyRepository(db).Create(ctx, newKey("42", 1, domain.KeyStatusActive, nil))
		assert.ErrorIs(t, err, apperrors.ErrPersistence)
		assert.ErrorIs(t, err, driverErr)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestMySQLRepositories_BinaryIDs(t *testing.T) {
	ctx := context.Background()

	t.Run("TransitionBindsBinaryID", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer func() { _ = db.Close() }()

		id := uuid.Must(uuid.NewV7())
		mock.ExpectExec(regexp.QuoteMeta(
			`UPDATE encryption_keys SET status = ?, metadata = ? WHERE id = ? AND status = 'active'`,
		)).
			WithArgs("revoked", "{}", id[:]).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err = NewMySQLMasterKeyRepository(db).Transition(ctx, id, domain.KeyStatusRevoked, nil)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("DeactivateMissingBinding", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer func() { _ = db.Close() }()

		mock.ExpectExec(`UPDATE hardware_bindings SET is_active = 0`).
			WithArgs("42", "fp").
			WillReturnResult(sqlmock.NewResult(0, 0))

		err = NewMySQLHardwareBindingRepository(db).Deactivate(ctx, "42", "fp")
		assert.ErrorIs(t, err, domain.ErrBindingNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("DuplicateBindingConflicts", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer func() { _ = db.Close() }()

		mock.ExpectExec(`INSERT INTO hardware_bindings`).
			WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})

		b := domain.NewHardwareBinding("42", "fp", &domain.HardwareInfo{}, now())
		err = NewMySQLHardwareBindingRepository(db).Create(ctx, b)
		assert.ErrorIs(t, err, apperrors.ErrConflict)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("AuditLogNullKeyID", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer func() { _ = db.Close() }()

		log := &domain.AuditLog{
			ID:        uuid.Must(uuid.NewV7()),
			UserID:    "42",
			Action:    domain.ActionKeyGenerated,
			Success:   false,
			CreatedAt: now(),
		}
		mock.ExpectExec(`INSERT INTO key_audit_logs`).
			WithArgs(log.ID[:], "42", nil, "key_generated", "", "", "", false, "", "{}", []byte(nil), log.CreatedAt).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, NewMySQLAuditLogRepository(db).Create(ctx, log))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
