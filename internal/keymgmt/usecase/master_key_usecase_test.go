package usecase

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	cryptoDomain "github.com/allisson/dormkeys/internal/crypto/domain"
	apperrors "github.com/allisson/dormkeys/internal/errors"
	"github.com/allisson/dormkeys/internal/keymgmt/domain"
	"github.com/allisson/dormkeys/internal/metadata"
	outboxDomain "github.com/allisson/dormkeys/internal/outbox/domain"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type masterKeyMocks struct {
	tx       *MockTxManager
	keys     *MockMasterKeyRepository
	outbox   *MockOutboxEventRepository
	verifier *MockKeyVerifier
	keeper   *MockKMSKeeper
	audit    *MockAuditLogUseCase
}

func newMasterKeyUnderTest(t *testing.T, config MasterKeyConfig) (*masterKeyUseCase, *masterKeyMocks) {
	t.Helper()
	m := &masterKeyMocks{
		tx:       &MockTxManager{},
		keys:     &MockMasterKeyRepository{},
		outbox:   &MockOutboxEventRepository{},
		verifier: &MockKeyVerifier{},
		keeper:   &MockKMSKeeper{},
		audit:    &MockAuditLogUseCase{},
	}
	uc := NewMasterKeyUseCase(
		m.tx, m.keys, m.outbox, m.verifier, m.keeper, m.audit,
		slog.New(slog.DiscardHandler), config,
	).(*masterKeyUseCase)
	uc.now = func() time.Time { return testNow }
	return uc, m
}

func activeKey(userID string, version int) *domain.MasterKey {
	return &domain.MasterKey{
		ID:            uuid.Must(uuid.NewV7()),
		UserID:        userID,
		KeyType:       domain.DefaultKeyType,
		EncryptedKey:  base64.StdEncoding.EncodeToString([]byte("stored-verifier")),
		WrappedKey:    []byte("wrapped"),
		Version:       version,
		Status:        domain.KeyStatusActive,
		RotationCount: version - 1,
		CreatedAt:     testNow.Add(-time.Hour),
	}
}

func outboxEvent(eventType string) any {
	return mock.MatchedBy(func(e *outboxDomain.OutboxEvent) bool {
		return e.EventType == eventType && e.Status == outboxDomain.OutboxEventStatusPending
	})
}

func TestMasterKeyUseCase_Generate(t *testing.T) {
	ctx := context.Background()
	secret := []byte("0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef")

	t.Run("Success_FirstKey", func(t *testing.T) {
		uc, m := newMasterKeyUnderTest(t, MasterKeyConfig{TTL: 24 * time.Hour})

		m.verifier.On("NewSecret").Return(secret, nil)
		m.keeper.On("Encrypt", ctx, secret).Return([]byte("wrapped"), nil)
		m.verifier.On("Derive", secret, []byte("user-1")).Return([]byte("verifier"))
		m.tx.On("WithTx", ctx, mock.Anything).Return(nil)
		m.keys.On("GetActiveForUpdate", ctx, "user-1", "master").Return(nil, domain.ErrNoActiveKey)
		m.keys.On("MaxVersion", ctx, "user-1", "master").Return(0, nil)
		m.keys.On("Create", ctx, mock.MatchedBy(func(k *domain.MasterKey) bool {
			return k.Version == 1 &&
				k.Status == domain.KeyStatusActive &&
				k.EncryptedKey == base64.StdEncoding.EncodeToString([]byte("verifier")) &&
				string(k.WrappedKey) == "wrapped" &&
				k.PreviousKeyID == nil &&
				k.ExpiresAt != nil && k.ExpiresAt.Equal(testNow.Add(24*time.Hour)) &&
				k.HardwareFingerprint != ""
		})).Return(nil)
		m.outbox.On("Create", ctx, outboxEvent(domain.EventKeyGenerated)).Return(nil)
		var logged *domain.AuditLog
		m.audit.On("Append", ctx, auditAction(domain.ActionKeyGenerated, true)).
			Run(func(args mock.Arguments) { logged = args.Get(1).(*domain.AuditLog) }).
			Return()

		out, err := uc.Generate(ctx, &domain.GenerateKeyInput{
			UserID:       "user-1",
			HardwareInfo: &domain.HardwareInfo{UserAgent: "Mozilla/5.0", Platform: "Linux"},
		})
		require.NoError(t, err)
		assert.Equal(t, 1, out.KeyVersion)
		assert.Equal(t, secret, out.RawKey)
		assert.Equal(t, testNow, out.CreatedAt)
		require.NotNil(t, logged)
		require.NotNil(t, logged.KeyID)
		assert.Equal(t, out.KeyID, *logged.KeyID)
		m.keys.AssertExpectations(t)
		m.outbox.AssertExpectations(t)
		m.audit.AssertExpectations(t)
	})

	t.Run("Error_ActiveKeyExists", func(t *testing.T) {
		uc, m := newMasterKeyUnderTest(t, MasterKeyConfig{})
		raw := append([]byte(nil), secret...)

		m.verifier.On("NewSecret").Return(raw, nil)
		m.keeper.On("Encrypt", ctx, mock.Anything).Return([]byte("wrapped"), nil)
		m.verifier.On("Derive", mock.Anything, mock.Anything).Return([]byte("verifier"))
		m.tx.On("WithTx", ctx, mock.Anything).Return(nil)
		existing := activeKey("user-1", 3)
		m.keys.On("GetActiveForUpdate", ctx, "user-1", "master").Return(existing, nil)
		m.audit.On("Append", ctx, mock.MatchedBy(func(entry *domain.AuditLog) bool {
			version, _ := entry.Metadata.Get("key_version")
			return entry.Action == domain.ActionKeyGenerated && !entry.Success &&
				entry.KeyID != nil && *entry.KeyID == existing.ID &&
				version == metadata.Int(3)
		})).Return()

		out, err := uc.Generate(ctx, &domain.GenerateKeyInput{UserID: "user-1"})
		assert.Nil(t, out)
		assert.ErrorIs(t, err, domain.ErrActiveKeyExists)
		assert.ErrorIs(t, err, apperrors.ErrConflict)
		assert.Equal(t, make([]byte, len(raw)), raw, "secret must be wiped")
		m.keys.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		m.audit.AssertExpectations(t)
	})

	t.Run("Error_ConcurrentInsertMapsToActiveKeyExists", func(t *testing.T) {
		uc, m := newMasterKeyUnderTest(t, MasterKeyConfig{})

		m.verifier.On("NewSecret").Return(append([]byte(nil), secret...), nil)
		m.keeper.On("Encrypt", ctx, mock.Anything).Return([]byte("wrapped"), nil)
		m.verifier.On("Derive", mock.Anything, mock.Anything).Return([]byte("verifier"))
		m.tx.On("WithTx", ctx, mock.Anything).Return(nil)
		m.keys.On("GetActiveForUpdate", ctx, "user-1", "master").Return(nil, domain.ErrNoActiveKey)
		m.keys.On("MaxVersion", ctx, "user-1", "master").Return(0, nil)
		m.keys.On("Create", ctx, mock.Anything).Return(apperrors.Wrap(apperrors.ErrConflict, "duplicate"))
		m.audit.On("Append", ctx, mock.MatchedBy(func(entry *domain.AuditLog) bool {
			_, hasVersion := entry.Metadata.Get("key_version")
			return entry.Action == domain.ActionKeyGenerated && !entry.Success &&
				entry.KeyID == nil && !hasVersion
		})).Return()

		_, err := uc.Generate(ctx, &domain.GenerateKeyInput{UserID: "user-1"})
		assert.ErrorIs(t, err, domain.ErrActiveKeyExists)
	})

	t.Run("Error_KMSUnavailable", func(t *testing.T) {
		uc, m := newMasterKeyUnderTest(t, MasterKeyConfig{})

		m.verifier.On("NewSecret").Return(append([]byte(nil), secret...), nil)
		m.keeper.On("Encrypt", ctx, mock.Anything).Return(nil, errors.New("kms down"))
		m.audit.On("Append", ctx, mock.MatchedBy(func(entry *domain.AuditLog) bool {
			_, hasVersion := entry.Metadata.Get("key_version")
			return entry.Action == domain.ActionKeyGenerated && !entry.Success &&
				entry.KeyID == nil && !hasVersion
		})).Return()

		_, err := uc.Generate(ctx, &domain.GenerateKeyInput{UserID: "user-1"})
		assert.ErrorContains(t, err, "kms down")
		m.tx.AssertNotCalled(t, "WithTx", mock.Anything, mock.Anything)
		m.audit.AssertExpectations(t)
	})

	t.Run("Error_InvalidUserID", func(t *testing.T) {
		uc, m := newMasterKeyUnderTest(t, MasterKeyConfig{})

		_, err := uc.Generate(ctx, &domain.GenerateKeyInput{UserID: ""})
		assert.ErrorIs(t, err, domain.ErrInvalidUserID)
		m.audit.AssertNotCalled(t, "Append", mock.Anything, mock.Anything)
	})
}

func TestMasterKeyUseCase_Verify(t *testing.T) {
	ctx := context.Background()
	proof := []byte("raw-key")

	t.Run("Success", func(t *testing.T) {
		uc, m := newMasterKeyUnderTest(t, MasterKeyConfig{})
		key := activeKey("user-1", 1)

		m.keys.On("GetActive", ctx, "user-1", "master").Return(key, nil)
		m.verifier.On("Derive", proof, []byte("user-1")).Return([]byte("candidate"))
		m.verifier.On("Matches", "user-1", []byte("candidate"), []byte("stored-verifier")).Return(true)
		m.keys.On("TouchLastUsed", ctx, key.ID, testNow).Return(nil)
		m.audit.On("Append", ctx, mock.MatchedBy(func(e *domain.AuditLog) bool {
			return e.Action == domain.ActionKeyVerification && e.Success && e.KeyID != nil && *e.KeyID == key.ID
		})).Return()

		out, err := uc.Verify(ctx, &domain.VerifyKeyInput{UserID: "user-1", KeyProof: proof})
		require.NoError(t, err)
		assert.True(t, out.Success)
		assert.Equal(t, key.ID, out.KeyID)
		assert.Equal(t, 1, out.KeyVersion)
		m.keys.AssertExpectations(t)
		m.audit.AssertExpectations(t)
	})

	t.Run("Success_RotatedKeyUsesPreviousIDAsContext", func(t *testing.T) {
		uc, m := newMasterKeyUnderTest(t, MasterKeyConfig{})
		previous := uuid.Must(uuid.NewV7())
		key := activeKey("user-1", 2)
		key.PreviousKeyID = &previous

		m.keys.On("GetActive", ctx, "user-1", "master").Return(key, nil)
		m.verifier.On("Derive", proof, []byte(previous.String())).Return([]byte("candidate"))
		m.verifier.On("Matches", "user-1", []byte("candidate"), []byte("stored-verifier")).Return(true)
		m.keys.On("TouchLastUsed", ctx, key.ID, testNow).Return(errors.New("timeout"))
		m.audit.On("Append", ctx, auditAction(domain.ActionKeyVerification, true)).Return()

		out, err := uc.Verify(ctx, &domain.VerifyKeyInput{UserID: "user-1", KeyProof: proof})
		require.NoError(t, err, "last-use bookkeeping does not fail verification")
		assert.Equal(t, 1, out.RotationCount)
	})

	t.Run("Error_Mismatch", func(t *testing.T) {
		uc, m := newMasterKeyUnderTest(t, MasterKeyConfig{})
		key := activeKey("user-1", 1)

		m.keys.On("GetActive", ctx, "user-1", "master").Return(key, nil)
		m.verifier.On("Derive", proof, []byte("user-1")).Return([]byte("candidate"))
		m.verifier.On("Matches", "user-1", []byte("candidate"), []byte("stored-verifier")).Return(false)
		m.audit.On("Append", ctx, auditAction(domain.ActionKeyVerification, false)).Return().Once()

		out, err := uc.Verify(ctx, &domain.VerifyKeyInput{UserID: "user-1", KeyProof: proof})
		assert.Nil(t, out)
		assert.ErrorIs(t, err, cryptoDomain.ErrAuthenticationFailed)
		m.keys.AssertNotCalled(t, "TouchLastUsed", mock.Anything, mock.Anything, mock.Anything)
		m.audit.AssertExpectations(t)
	})

	t.Run("Error_EmptyProof", func(t *testing.T) {
		uc, m := newMasterKeyUnderTest(t, MasterKeyConfig{})

		m.keys.On("GetActive", ctx, "user-1", "master").Return(activeKey("user-1", 1), nil)
		m.audit.On("Append", ctx, auditAction(domain.ActionKeyVerification, false)).Return()

		_, err := uc.Verify(ctx, &domain.VerifyKeyInput{UserID: "user-1"})
		assert.ErrorIs(t, err, cryptoDomain.ErrAuthenticationFailed)
		m.verifier.AssertNotCalled(t, "Derive", mock.Anything, mock.Anything)
	})

	t.Run("Error_NoActiveKey", func(t *testing.T) {
		uc, m := newMasterKeyUnderTest(t, MasterKeyConfig{})

		m.keys.On("GetActive", ctx, "user-1", "master").Return(nil, domain.ErrNoActiveKey)
		m.audit.On("Append", ctx, mock.MatchedBy(func(e *domain.AuditLog) bool {
			return !e.Success && e.KeyID == nil && e.ErrorMessage != ""
		})).Return()

		_, err := uc.Verify(ctx, &domain.VerifyKeyInput{UserID: "user-1", KeyProof: proof})
		assert.ErrorIs(t, err, domain.ErrNoActiveKey)
		assert.ErrorIs(t, err, apperrors.ErrPreconditionFailed)
		m.audit.AssertExpectations(t)
	})
}

func TestMasterKeyUseCase_Rotate(t *testing.T) {
	ctx := context.Background()
	secret := []byte("new-secret")

	t.Run("Success", func(t *testing.T) {
		uc, m := newMasterKeyUnderTest(t, MasterKeyConfig{})
		current := activeKey("user-1", 3)
		current.Metadata = metadata.Map{"source": metadata.String("web")}

		m.verifier.On("NewSecret").Return(secret, nil)
		m.keeper.On("Encrypt", ctx, secret).Return([]byte("wrapped-2"), nil)
		m.tx.On("WithTx", ctx, mock.Anything).Return(nil)
		m.keys.On("GetActiveForUpdate", ctx, "user-1", "master").Return(current, nil)
		m.verifier.On("Derive", secret, []byte(current.ID.String())).Return([]byte("verifier-2"))

		var newID string
		m.keys.On("Transition", ctx, current.ID, domain.KeyStatusRotated, mock.MatchedBy(func(meta metadata.Map) bool {
			to, _ := meta[domain.MetaRotatedTo].Str()
			reason, _ := meta[domain.MetaRotationReason].Str()
			source, _ := meta["source"].Str()
			newID = to
			return to != "" && reason == "scheduled" && source == "web"
		})).Return(nil)
		m.keys.On("Create", ctx, mock.MatchedBy(func(k *domain.MasterKey) bool {
			return k.Version == 4 &&
				k.RotationCount == 3 &&
				k.PreviousKeyID != nil && *k.PreviousKeyID == current.ID &&
				k.ID.String() == newID &&
				string(k.WrappedKey) == "wrapped-2"
		})).Return(nil)
		m.outbox.On("Create", ctx, mock.MatchedBy(func(e *outboxDomain.OutboxEvent) bool {
			return e.EventType == domain.EventKeyRotated &&
				assert.JSONEq(t, `{
					"user_id":"user-1","key_type":"master","key_id":"`+newID+`","key_version":4,
					"previous_key_id":"`+current.ID.String()+`","reason":"scheduled"}`, e.Payload)
		})).Return(nil)
		m.audit.On("Append", ctx, auditAction(domain.ActionKeyRotated, true)).Return()

		out, err := uc.Rotate(ctx, &domain.RotateKeyInput{UserID: "user-1", Reason: "scheduled"})
		require.NoError(t, err)
		assert.Equal(t, 4, out.KeyVersion)
		assert.Equal(t, current.ID, out.PreviousKeyID)
		assert.Equal(t, secret, out.RawKey)
		assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("verifier-2")), out.EncryptedKey)
		m.keys.AssertExpectations(t)
		m.outbox.AssertExpectations(t)
		m.audit.AssertExpectations(t)
	})

	t.Run("Error_LostRace", func(t *testing.T) {
		uc, m := newMasterKeyUnderTest(t, MasterKeyConfig{})
		current := activeKey("user-1", 1)

		m.verifier.On("NewSecret").Return([]byte("new-secret"), nil)
		m.keeper.On("Encrypt", ctx, mock.Anything).Return([]byte("wrapped-2"), nil)
		m.tx.On("WithTx", ctx, mock.Anything).Return(nil)
		m.keys.On("GetActiveForUpdate", ctx, "user-1", "master").Return(current, nil)
		m.verifier.On("Derive", mock.Anything, mock.Anything).Return([]byte("verifier-2"))
		m.keys.On("Transition", ctx, current.ID, domain.KeyStatusRotated, mock.Anything).
			Return(domain.ErrRotationConflict)
		m.audit.On("Append", ctx, auditAction(domain.ActionKeyRotated, false)).Return()

		_, err := uc.Rotate(ctx, &domain.RotateKeyInput{UserID: "user-1"})
		assert.ErrorIs(t, err, domain.ErrRotationConflict)
		m.keys.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		m.outbox.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("Error_DuplicateVersionIsConflict", func(t *testing.T) {
		uc, m := newMasterKeyUnderTest(t, MasterKeyConfig{})
		current := activeKey("user-1", 1)

		m.verifier.On("NewSecret").Return([]byte("new-secret"), nil)
		m.keeper.On("Encrypt", ctx, mock.Anything).Return([]byte("wrapped-2"), nil)
		m.tx.On("WithTx", ctx, mock.Anything).Return(nil)
		m.keys.On("GetActiveForUpdate", ctx, "user-1", "master").Return(current, nil)
		m.verifier.On("Derive", mock.Anything, mock.Anything).Return([]byte("verifier-2"))
		m.keys.On("Transition", ctx, current.ID, domain.KeyStatusRotated, mock.Anything).Return(nil)
		m.keys.On("Create", ctx, mock.Anything).Return(apperrors.Wrap(apperrors.ErrConflict, "duplicate"))
		m.audit.On("Append", ctx, auditAction(domain.ActionKeyRotated, false)).Return()

		_, err := uc.Rotate(ctx, &domain.RotateKeyInput{UserID: "user-1"})
		assert.ErrorIs(t, err, domain.ErrRotationConflict)
	})

	t.Run("Error_NoActiveKey", func(t *testing.T) {
		uc, m := newMasterKeyUnderTest(t, MasterKeyConfig{})

		m.verifier.On("NewSecret").Return([]byte("new-secret"), nil)
		m.keeper.On("Encrypt", ctx, mock.Anything).Return([]byte("wrapped-2"), nil)
		m.tx.On("WithTx", ctx, mock.Anything).Return(nil)
		m.keys.On("GetActiveForUpdate", ctx, "user-1", "master").Return(nil, domain.ErrNoActiveKey)
		m.audit.On("Append", ctx, auditAction(domain.ActionKeyRotated, false)).Return()

		_, err := uc.Rotate(ctx, &domain.RotateKeyInput{UserID: "user-1"})
		assert.ErrorIs(t, err, domain.ErrNoActiveKey)
	})
}

func TestMasterKeyUseCase_Revoke(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		uc, m := newMasterKeyUnderTest(t, MasterKeyConfig{})
		current := activeKey("user-1", 2)

		m.tx.On("WithTx", ctx, mock.Anything).Return(nil)
		m.keys.On("GetActiveForUpdate", ctx, "user-1", "master").Return(current, nil)
		m.keys.On("Transition", ctx, current.ID, domain.KeyStatusRevoked, mock.MatchedBy(func(meta metadata.Map) bool {
			reason, _ := meta[domain.MetaRevokeReason].Str()
			return reason == "device lost"
		})).Return(nil)
		m.outbox.On("Create", ctx, outboxEvent(domain.EventKeyRevoked)).Return(nil)
		m.audit.On("Append", ctx, auditAction(domain.ActionKeyRevoked, true)).Return()

		require.NoError(t, uc.Revoke(ctx, &domain.RevokeKeyInput{UserID: "user-1", Reason: "device lost"}))
		m.keys.AssertExpectations(t)
		m.audit.AssertExpectations(t)
	})

	t.Run("Error_NoActiveKey", func(t *testing.T) {
		uc, m := newMasterKeyUnderTest(t, MasterKeyConfig{})

		m.tx.On("WithTx", ctx, mock.Anything).Return(nil)
		m.keys.On("GetActiveForUpdate", ctx, "user-1", "master").Return(nil, domain.ErrNoActiveKey)
		m.audit.On("Append", ctx, auditAction(domain.ActionKeyRevoked, false)).Return()

		assert.ErrorIs(t, uc.Revoke(ctx, &domain.RevokeKeyInput{UserID: "user-1"}), domain.ErrNoActiveKey)
	})
}

func TestMasterKeyUseCase_GetLatestAndByVersion(t *testing.T) {
	ctx := context.Background()

	t.Run("GetLatest_Unwraps", func(t *testing.T) {
		uc, m := newMasterKeyUnderTest(t, MasterKeyConfig{})
		key := activeKey("user-1", 2)

		m.keys.On("GetActive", ctx, "user-1", "master").Return(key, nil)
		m.keeper.On("Decrypt", ctx, key.WrappedKey).Return([]byte("raw"), nil)

		material, err := uc.GetLatest(ctx, "user-1", "")
		require.NoError(t, err)
		assert.Equal(t, key.ID, material.KeyID)
		assert.Equal(t, 2, material.Version)
		assert.Equal(t, []byte("raw"), material.Key)
	})

	t.Run("GetLatest_UnwrapError", func(t *testing.T) {
		uc, m := newMasterKeyUnderTest(t, MasterKeyConfig{})
		key := activeKey("user-1", 2)

		m.keys.On("GetActive", ctx, "user-1", "master").Return(key, nil)
		m.keeper.On("Decrypt", ctx, key.WrappedKey).Return(nil, errors.New("access denied"))

		_, err := uc.GetLatest(ctx, "user-1", "")
		assert.ErrorContains(t, err, "access denied")
	})

	t.Run("GetByVersion_Rotated", func(t *testing.T) {
		uc, m := newMasterKeyUnderTest(t, MasterKeyConfig{})
		key := activeKey("user-1", 1)
		key.Status = domain.KeyStatusRotated

		m.keys.On("GetByVersion", ctx, "user-1", "master", 1).Return(key, nil)
		m.keeper.On("Decrypt", ctx, key.WrappedKey).Return([]byte("old-raw"), nil)

		material, err := uc.GetByVersion(ctx, "user-1", "master", 1)
		require.NoError(t, err)
		assert.Equal(t, []byte("old-raw"), material.Key)
	})

	t.Run("GetByVersion_Revoked", func(t *testing.T) {
		uc, m := newMasterKeyUnderTest(t, MasterKeyConfig{})
		key := activeKey("user-1", 1)
		key.Status = domain.KeyStatusRevoked

		m.keys.On("GetByVersion", ctx, "user-1", "master", 1).Return(key, nil)

		_, err := uc.GetByVersion(ctx, "user-1", "master", 1)
		assert.ErrorIs(t, err, domain.ErrKeyRevoked)
		m.keeper.AssertNotCalled(t, "Decrypt", mock.Anything, mock.Anything)
	})
}

func TestMasterKeyUseCase_RotateExpired_ListError(t *testing.T) {
	uc, m := newMasterKeyUnderTest(t, MasterKeyConfig{})
	ctx := context.Background()

	m.keys.On("ListExpired", ctx, testNow, 10).Return(nil, apperrors.Persistence(errors.New("io"), "list"))

	_, err := uc.RotateExpired(ctx, testNow, 10)
	assert.ErrorIs(t, err, apperrors.ErrPersistence)
}
