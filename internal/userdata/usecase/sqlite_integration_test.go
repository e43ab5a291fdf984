package usecase_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocloud.dev/secrets/localsecrets"

	cryptoDomain "github.com/allisson/dormkeys/internal/crypto/domain"
	cryptoService "github.com/allisson/dormkeys/internal/crypto/service"
	"github.com/allisson/dormkeys/internal/database"
	keyDomain "github.com/allisson/dormkeys/internal/keymgmt/domain"
	keyRepository "github.com/allisson/dormkeys/internal/keymgmt/repository"
	keyService "github.com/allisson/dormkeys/internal/keymgmt/service"
	keyUseCase "github.com/allisson/dormkeys/internal/keymgmt/usecase"
	outboxDomain "github.com/allisson/dormkeys/internal/outbox/domain"
	outboxRepository "github.com/allisson/dormkeys/internal/outbox/repository"
	outboxUseCase "github.com/allisson/dormkeys/internal/outbox/usecase"
	"github.com/allisson/dormkeys/internal/testutil"
	"github.com/allisson/dormkeys/internal/userdata/domain"
	"github.com/allisson/dormkeys/internal/userdata/repository"
	"github.com/allisson/dormkeys/internal/userdata/usecase"
)

type stack struct {
	masterKeys keyUseCase.MasterKeyUseCase
	data       usecase.DataEncryptionUseCase
	outbox     *outboxUseCase.OutboxUseCase
	outboxRepo *outboxRepository.SQLiteOutboxEventRepository
}

func newStack(t *testing.T) *stack {
	t.Helper()

	db := testutil.SetupSQLiteDB(t)
	logger := slog.New(slog.DiscardHandler)
	txManager := database.NewTxManager(db)
	kdf := cryptoService.NewPBKDF2Deriver(1000)

	kmsKey, err := localsecrets.NewRandomKey()
	require.NoError(t, err)
	keeper := localsecrets.NewKeeper(kmsKey)
	t.Cleanup(func() { _ = keeper.Close() })

	outboxRepo := outboxRepository.NewSQLiteOutboxEventRepository(db)
	auditLogs := keyUseCase.NewAuditLogUseCase(keyRepository.NewSQLiteAuditLogRepository(db), nil, logger)
	masterKeys := keyUseCase.NewMasterKeyUseCase(
		txManager,
		keyRepository.NewSQLiteMasterKeyRepository(db),
		outboxRepo,
		keyService.NewKeyVerifier(kdf),
		keeper,
		auditLogs,
		logger,
		keyUseCase.MasterKeyConfig{},
	)
	data := usecase.NewDataEncryptionUseCase(
		repository.NewSQLiteEncryptedDataRepository(db),
		masterKeys,
		cryptoService.NewAEADManager(),
		kdf,
		logger,
		usecase.DataEncryptionConfig{Algorithm: cryptoDomain.AESGCM, BatchConcurrency: 2},
	)

	processor := outboxUseCase.NewReEncryptEventProcessor(
		outboxUseCase.NewLoggingEventProcessor(logger),
		usecase.NewRotationReEncrypter(masterKeys, data),
	)
	relay := outboxUseCase.NewOutboxUseCase(
		outboxUseCase.Config{BatchSize: 10, MaxRetries: 3},
		txManager,
		outboxRepo,
		processor,
		logger,
	)

	return &stack{masterKeys: masterKeys, data: data, outbox: relay, outboxRepo: outboxRepo}
}

func (s *stack) latest(t *testing.T, userID string) *keyDomain.MasterKeyMaterial {
	t.Helper()
	material, err := s.masterKeys.GetLatest(context.Background(), userID, "")
	require.NoError(t, err)
	t.Cleanup(func() { cryptoDomain.Zero(material.Key) })
	return material
}

func TestEndToEnd_SQLite(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	generated, err := s.masterKeys.Generate(ctx, &keyDomain.GenerateKeyInput{UserID: "42"})
	require.NoError(t, err)
	assert.Equal(t, 1, generated.KeyVersion)

	k1 := s.latest(t, "42")
	assert.Equal(t, generated.KeyID, k1.KeyID)
	assert.Equal(t, generated.RawKey, k1.Key)

	saved, err := s.data.EncryptAndSave(ctx, &domain.EncryptInput{
		UserID:   "42",
		DataType: "profile",
		DataID:   "default",
		Data:     json.RawMessage(`{"name":"A"}`),
	}, k1)
	require.NoError(t, err)
	assert.Equal(t, 1, saved.MasterKeyVersion)

	_, err = s.data.EncryptAndSave(ctx, &domain.EncryptInput{
		UserID:   "42",
		DataType: "bills",
		DataID:   "2026-03",
		Data:     json.RawMessage(`{"amount":125.40,"split":[1,2]}`),
	}, k1)
	require.NoError(t, err)

	read, err := s.data.DecryptAndRead(ctx, "42", "profile", "default", k1)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"A"}`, string(read.Data))

	rotated, err := s.masterKeys.Rotate(ctx, &keyDomain.RotateKeyInput{UserID: "42", Reason: "scheduled"})
	require.NoError(t, err)
	assert.Equal(t, 2, rotated.KeyVersion)

	k2 := s.latest(t, "42")
	assert.Equal(t, rotated.KeyID, k2.KeyID)
	assert.Equal(t, 2, k2.Version)

	// Records still sealed under version 1 open with the current key in hand.
	read, err = s.data.DecryptAndRead(ctx, "42", "profile", "default", k2)
	require.NoError(t, err)
	assert.Equal(t, 1, read.MasterKeyVersion)
	assert.JSONEq(t, `{"name":"A"}`, string(read.Data))

	_, err = s.data.DecryptAndRead(ctx, "42", "profile", "default", &keyDomain.MasterKeyMaterial{
		Version: 1,
		Key:     make([]byte, cryptoDomain.MasterSecretSize),
	})
	assert.ErrorIs(t, err, cryptoDomain.ErrAuthenticationFailed)

	// Relaying key.rotated moves every record to version 2.
	require.NoError(t, s.outbox.ProcessEvents(ctx))

	pending, err := s.outboxRepo.GetPendingEvents(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	batch, err := s.data.DecryptBatch(ctx, "42", "profile", k2)
	require.NoError(t, err)
	require.Len(t, batch.Items, 1)
	assert.Equal(t, 2, batch.Items[0].MasterKeyVersion)
	assert.Empty(t, batch.Failed)

	again, err := s.data.ReEncrypt(ctx, "42", k2)
	require.NoError(t, err)
	assert.Equal(t, domain.ReEncryptOutput{}, *again, "nothing left to move")

	stats, err := s.data.GetStats(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"profile": 1, "bills": 1}, stats)

	deleted, err := s.data.Delete(ctx, "42", "bills", "2026-03")
	require.NoError(t, err)
	assert.True(t, deleted)
	deleted, err = s.data.Delete(ctx, "42", "bills", "2026-03")
	require.NoError(t, err)
	assert.False(t, deleted)

	_, err = s.data.DecryptAndRead(ctx, "42", "bills", "", k2)
	assert.ErrorIs(t, err, domain.ErrDataNotFound)
}

func TestForeignKeyMaterialIsRejected_SQLite(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	_, err := s.masterKeys.Generate(ctx, &keyDomain.GenerateKeyInput{UserID: "42"})
	require.NoError(t, err)
	k1 := s.latest(t, "42")

	_, err = s.data.EncryptAndSave(ctx, &domain.EncryptInput{
		UserID: "42", DataType: "profile", DataID: "default", Data: json.RawMessage(`{"name":"A"}`),
	}, k1)
	require.NoError(t, err)

	tests := []struct {
		name string
		key  *keyDomain.MasterKeyMaterial
	}{
		{
			name: "unknown version",
			key:  &keyDomain.MasterKeyMaterial{Version: 99, Key: make([]byte, cryptoDomain.MasterSecretSize)},
		},
		{
			name: "active id and version with wrong bytes",
			key: &keyDomain.MasterKeyMaterial{
				KeyID: k1.KeyID, Version: 2, Key: make([]byte, cryptoDomain.MasterSecretSize),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			read, err := s.data.DecryptAndRead(ctx, "42", "profile", "default", tt.key)
			assert.Nil(t, read)
			assert.ErrorIs(t, err, cryptoDomain.ErrAuthenticationFailed)

			batch, err := s.data.DecryptBatch(ctx, "42", "profile", tt.key)
			assert.Nil(t, batch)
			assert.ErrorIs(t, err, cryptoDomain.ErrAuthenticationFailed)

			moved, err := s.data.ReEncrypt(ctx, "42", tt.key)
			assert.Nil(t, moved)
			assert.ErrorIs(t, err, cryptoDomain.ErrAuthenticationFailed)

			_, err = s.data.EncryptAndSave(ctx, &domain.EncryptInput{
				UserID: "42", DataType: "profile", DataID: "default", Data: json.RawMessage(`{"name":"B"}`),
			}, tt.key)
			assert.ErrorIs(t, err, cryptoDomain.ErrAuthenticationFailed)
		})
	}

	read, err := s.data.DecryptAndRead(ctx, "42", "profile", "default", k1)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"A"}`, string(read.Data))
}

func TestRevokedVersionFailsItsRecords_SQLite(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	_, err := s.masterKeys.Generate(ctx, &keyDomain.GenerateKeyInput{UserID: "7"})
	require.NoError(t, err)
	k1 := s.latest(t, "7")

	_, err = s.data.EncryptAndSave(ctx, &domain.EncryptInput{
		UserID: "7", DataType: "profile", DataID: "default", Data: json.RawMessage(`{"x":true}`),
	}, k1)
	require.NoError(t, err)

	require.NoError(t, s.masterKeys.Revoke(ctx, &keyDomain.RevokeKeyInput{UserID: "7", Reason: "lost device"}))
	_, err = s.masterKeys.Generate(ctx, &keyDomain.GenerateKeyInput{UserID: "7"})
	require.NoError(t, err)
	k2 := s.latest(t, "7")

	_, err = s.data.EncryptAndSave(ctx, &domain.EncryptInput{
		UserID: "7", DataType: "profile", DataID: "fresh", Data: json.RawMessage(`{"x":false}`),
	}, k2)
	require.NoError(t, err)

	batch, err := s.data.DecryptBatch(ctx, "7", "profile", k2)
	require.NoError(t, err)
	require.Len(t, batch.Items, 1)
	assert.Equal(t, "fresh", batch.Items[0].DataID)
	require.Len(t, batch.Failed, 1)
	assert.ErrorIs(t, batch.Failed[0].Err, keyDomain.ErrKeyRevoked)

	events, err := s.outboxRepo.GetPendingEvents(ctx, 10)
	require.NoError(t, err)
	types := make([]string, 0, len(events))
	for _, e := range events {
		types = append(types, e.EventType)
		assert.Equal(t, outboxDomain.OutboxEventStatusPending, e.Status)
	}
	assert.Equal(t, []string{keyDomain.EventKeyGenerated, keyDomain.EventKeyRevoked, keyDomain.EventKeyGenerated}, types)
}
