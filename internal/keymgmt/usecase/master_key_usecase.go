package usecase

import (
	"context"
	"encoding/base64"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	cryptoDomain "github.com/allisson/dormkeys/internal/crypto/domain"
	"github.com/allisson/dormkeys/internal/database"
	apperrors "github.com/allisson/dormkeys/internal/errors"
	"github.com/allisson/dormkeys/internal/keymgmt/domain"
	keyService "github.com/allisson/dormkeys/internal/keymgmt/service"
	"github.com/allisson/dormkeys/internal/metadata"
)

// ReasonExpired is the rotation reason recorded by RotateExpired.
const ReasonExpired = "expired"

const rotateExpiredConcurrency = 4

// MasterKeyConfig holds the lifecycle settings of master keys.
type MasterKeyConfig struct {
	// TTL sets expires_at on new keys. Zero disables expiry.
	TTL time.Duration
}

type masterKeyUseCase struct {
	txManager  database.TxManager
	keyRepo    MasterKeyRepository
	outboxRepo OutboxEventRepository
	verifier   keyService.KeyVerifier
	keeper     cryptoDomain.KMSKeeper
	auditLog   AuditLogUseCase
	logger     *slog.Logger
	config     MasterKeyConfig
	now        func() time.Time
}

// NewMasterKeyUseCase creates a MasterKeyUseCase. keeper wraps raw secrets at rest.
func NewMasterKeyUseCase(
	txManager database.TxManager,
	keyRepo MasterKeyRepository,
	outboxRepo OutboxEventRepository,
	verifier keyService.KeyVerifier,
	keeper cryptoDomain.KMSKeeper,
	auditLog AuditLogUseCase,
	logger *slog.Logger,
	config MasterKeyConfig,
) MasterKeyUseCase {
	return &masterKeyUseCase{
		txManager:  txManager,
		keyRepo:    keyRepo,
		outboxRepo: outboxRepo,
		verifier:   verifier,
		keeper:     keeper,
		auditLog:   auditLog,
		logger:     logger,
		config:     config,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (m *masterKeyUseCase) expiry(now time.Time) *time.Time {
	if m.config.TTL <= 0 {
		return nil
	}
	t := now.Add(m.config.TTL)
	return &t
}

// newSecret returns a fresh secret and its KMS-wrapped copy.
func (m *masterKeyUseCase) newSecret(ctx context.Context) ([]byte, []byte, error) {
	secret, err := m.verifier.NewSecret()
	if err != nil {
		return nil, nil, apperrors.Wrap(err, "failed to generate master secret")
	}
	wrapped, err := m.keeper.Encrypt(ctx, secret)
	if err != nil {
		cryptoDomain.Zero(secret)
		return nil, nil, apperrors.Wrap(err, "failed to wrap master secret")
	}
	return secret, wrapped, nil
}

func (m *masterKeyUseCase) Generate(
	ctx context.Context,
	input *domain.GenerateKeyInput,
) (*domain.GenerateKeyOutput, error) {
	if err := validateUserID(input.UserID); err != nil {
		return nil, err
	}
	keyType := keyTypeOrDefault(input.KeyType)
	now := m.now()

	key := &domain.MasterKey{
		ID:        uuid.Must(uuid.NewV7()),
		UserID:    input.UserID,
		KeyType:   keyType,
		Status:    domain.KeyStatusActive,
		CreatedAt: now,
		ExpiresAt: m.expiry(now),
	}
	if input.HardwareInfo != nil {
		key.HardwareFingerprint = keyService.Fingerprint(input.HardwareInfo)
	}

	secret, existing, err := m.generate(ctx, key)

	// A failed attempt never persisted key; the row points at the conflicting active key, if any.
	meta := metadata.Map{"key_type": metadata.String(keyType)}
	var keyID *uuid.UUID
	switch {
	case err == nil:
		keyID = idPtr(key.ID)
		meta = meta.With("key_version", metadata.Int(int64(key.Version)))
	case existing != nil:
		keyID = idPtr(existing.ID)
		meta = meta.With("key_version", metadata.Int(int64(existing.Version)))
	}
	m.auditLog.Append(ctx, auditEntry(domain.ActionKeyGenerated, input.UserID, keyID, input.Request, err, meta))
	if err != nil {
		return nil, err
	}

	m.logger.Info("master key generated",
		slog.String("user_id", key.UserID),
		slog.String("key_type", keyType),
		slog.Int("key_version", key.Version),
	)

	return &domain.GenerateKeyOutput{
		KeyID:      key.ID,
		RawKey:     secret,
		KeyVersion: key.Version,
		CreatedAt:  key.CreatedAt,
	}, nil
}

// generate persists key with a fresh secret. On ErrActiveKeyExists it also returns
// the active key found under the lock.
func (m *masterKeyUseCase) generate(
	ctx context.Context,
	key *domain.MasterKey,
) ([]byte, *domain.MasterKey, error) {
	secret, wrapped, err := m.newSecret(ctx)
	if err != nil {
		return nil, nil, err
	}
	key.WrappedKey = wrapped
	key.EncryptedKey = base64.StdEncoding.EncodeToString(m.verifier.Derive(secret, key.KDFContext()))

	var existing *domain.MasterKey
	err = m.txManager.WithTx(ctx, func(ctx context.Context) error {
		active, err := m.keyRepo.GetActiveForUpdate(ctx, key.UserID, key.KeyType)
		if err == nil {
			existing = active
			return domain.ErrActiveKeyExists
		}
		if !apperrors.Is(err, domain.ErrNoActiveKey) {
			return err
		}

		maxVersion, err := m.keyRepo.MaxVersion(ctx, key.UserID, key.KeyType)
		if err != nil {
			return err
		}
		key.Version = maxVersion + 1

		if err := m.keyRepo.Create(ctx, key); err != nil {
			if apperrors.Is(err, apperrors.ErrConflict) {
				return domain.ErrActiveKeyExists
			}
			return err
		}

		return recordEvent(ctx, m.outboxRepo, domain.EventKeyGenerated, domain.KeyEventPayload{
			UserID:     key.UserID,
			KeyType:    key.KeyType,
			KeyID:      key.ID,
			KeyVersion: key.Version,
		}, key.CreatedAt)
	})
	if err != nil {
		cryptoDomain.Zero(secret)
		return nil, existing, err
	}
	return secret, nil, nil
}

func (m *masterKeyUseCase) Verify(
	ctx context.Context,
	input *domain.VerifyKeyInput,
) (*domain.VerifyKeyOutput, error) {
	if err := validateUserID(input.UserID); err != nil {
		return nil, err
	}
	keyType := keyTypeOrDefault(input.KeyType)

	req := input.Request
	if input.HardwareInfo != nil {
		req.DeviceFingerprint = keyService.Fingerprint(input.HardwareInfo)
	}

	key, err := m.verify(ctx, input.UserID, keyType, input.KeyProof)

	meta := metadata.Map{"key_type": metadata.String(keyType)}
	var keyID *uuid.UUID
	if key != nil {
		keyID = &key.ID
		meta = meta.With("key_version", metadata.Int(int64(key.Version)))
	}
	m.auditLog.Append(ctx, auditEntry(domain.ActionKeyVerification, input.UserID, keyID, req, err, meta))
	if err != nil {
		return nil, err
	}

	return &domain.VerifyKeyOutput{
		Success:       true,
		KeyVersion:    key.Version,
		KeyID:         key.ID,
		RotationCount: key.RotationCount,
	}, nil
}

// verify returns the active key alongside an authentication failure so the audit
// row can name the key that was tried.
func (m *masterKeyUseCase) verify(
	ctx context.Context,
	userID, keyType string,
	proof []byte,
) (*domain.MasterKey, error) {
	key, err := m.keyRepo.GetActive(ctx, userID, keyType)
	if err != nil {
		return nil, err
	}

	stored, err := base64.StdEncoding.DecodeString(key.EncryptedKey)
	if err != nil || len(proof) == 0 {
		return key, cryptoDomain.ErrAuthenticationFailed
	}
	candidate := m.verifier.Derive(proof, key.KDFContext())
	if !m.verifier.Matches(userID, candidate, stored) {
		return key, cryptoDomain.ErrAuthenticationFailed
	}

	if err := m.keyRepo.TouchLastUsed(ctx, key.ID, m.now()); err != nil {
		m.logger.Warn("failed to update master key last use",
			slog.String("key_id", key.ID.String()),
			slog.Any("error", err),
		)
	}
	return key, nil
}

func (m *masterKeyUseCase) Rotate(
	ctx context.Context,
	input *domain.RotateKeyInput,
) (*domain.RotateKeyOutput, error) {
	if err := validateUserID(input.UserID); err != nil {
		return nil, err
	}
	keyType := keyTypeOrDefault(input.KeyType)

	out, err := m.rotate(ctx, input.UserID, keyType, input.Reason)

	meta := metadata.Map{"key_type": metadata.String(keyType)}
	if input.Reason != "" {
		meta = meta.With(domain.MetaRotationReason, metadata.String(input.Reason))
	}
	var keyID *uuid.UUID
	if out != nil {
		keyID = &out.KeyID
		meta = meta.
			With("key_version", metadata.Int(int64(out.KeyVersion))).
			With("previous_key_id", metadata.String(out.PreviousKeyID.String()))
	}
	m.auditLog.Append(ctx, auditEntry(domain.ActionKeyRotated, input.UserID, keyID, input.Request, err, meta))
	if err != nil {
		return nil, err
	}

	m.logger.Info("master key rotated",
		slog.String("user_id", input.UserID),
		slog.String("key_type", keyType),
		slog.Int("key_version", out.KeyVersion),
		slog.String("reason", input.Reason),
	)
	return out, nil
}

// rotate supersedes the active key in one transaction. The secret is wrapped before
// the transaction opens so the row lock is never held across a KMS call.
func (m *masterKeyUseCase) rotate(
	ctx context.Context,
	userID, keyType, reason string,
) (*domain.RotateKeyOutput, error) {
	secret, wrapped, err := m.newSecret(ctx)
	if err != nil {
		return nil, err
	}

	now := m.now()
	next := &domain.MasterKey{
		ID:         uuid.Must(uuid.NewV7()),
		UserID:     userID,
		KeyType:    keyType,
		WrappedKey: wrapped,
		Status:     domain.KeyStatusActive,
		CreatedAt:  now,
		ExpiresAt:  m.expiry(now),
	}

	err = m.txManager.WithTx(ctx, func(ctx context.Context) error {
		current, err := m.keyRepo.GetActiveForUpdate(ctx, userID, keyType)
		if err != nil {
			return err
		}

		next.Version = current.Version + 1
		next.PreviousKeyID = &current.ID
		next.RotationCount = current.RotationCount + 1
		next.HardwareFingerprint = current.HardwareFingerprint
		next.EncryptedKey = base64.StdEncoding.EncodeToString(m.verifier.Derive(secret, next.KDFContext()))

		meta := current.Metadata.With(domain.MetaRotatedTo, metadata.String(next.ID.String()))
		if reason != "" {
			meta = meta.With(domain.MetaRotationReason, metadata.String(reason))
		}
		if err := m.keyRepo.Transition(ctx, current.ID, domain.KeyStatusRotated, meta); err != nil {
			return err
		}

		if err := m.keyRepo.Create(ctx, next); err != nil {
			if apperrors.Is(err, apperrors.ErrConflict) {
				return domain.ErrRotationConflict
			}
			return err
		}

		return recordEvent(ctx, m.outboxRepo, domain.EventKeyRotated, domain.KeyEventPayload{
			UserID:        userID,
			KeyType:       keyType,
			KeyID:         next.ID,
			KeyVersion:    next.Version,
			PreviousKeyID: next.PreviousKeyID,
			Reason:        reason,
		}, now)
	})
	if err != nil {
		cryptoDomain.Zero(secret)
		return nil, err
	}

	return &domain.RotateKeyOutput{
		KeyID:         next.ID,
		KeyVersion:    next.Version,
		PreviousKeyID: *next.PreviousKeyID,
		RawKey:        secret,
		EncryptedKey:  next.EncryptedKey,
	}, nil
}

func (m *masterKeyUseCase) Revoke(ctx context.Context, input *domain.RevokeKeyInput) error {
	if err := validateUserID(input.UserID); err != nil {
		return err
	}
	keyType := keyTypeOrDefault(input.KeyType)

	var revoked *domain.MasterKey
	err := m.txManager.WithTx(ctx, func(ctx context.Context) error {
		current, err := m.keyRepo.GetActiveForUpdate(ctx, input.UserID, keyType)
		if err != nil {
			return err
		}
		revoked = current

		meta := current.Metadata
		if input.Reason != "" {
			meta = meta.With(domain.MetaRevokeReason, metadata.String(input.Reason))
		}
		if err := m.keyRepo.Transition(ctx, current.ID, domain.KeyStatusRevoked, meta); err != nil {
			return err
		}

		return recordEvent(ctx, m.outboxRepo, domain.EventKeyRevoked, domain.KeyEventPayload{
			UserID:     input.UserID,
			KeyType:    keyType,
			KeyID:      current.ID,
			KeyVersion: current.Version,
			Reason:     input.Reason,
		}, m.now())
	})

	meta := metadata.Map{"key_type": metadata.String(keyType)}
	if input.Reason != "" {
		meta = meta.With(domain.MetaRevokeReason, metadata.String(input.Reason))
	}
	var keyID *uuid.UUID
	if revoked != nil {
		keyID = &revoked.ID
		meta = meta.With("key_version", metadata.Int(int64(revoked.Version)))
	}
	m.auditLog.Append(ctx, auditEntry(domain.ActionKeyRevoked, input.UserID, keyID, input.Request, err, meta))
	if err != nil {
		return err
	}

	m.logger.Warn("master key revoked",
		slog.String("user_id", input.UserID),
		slog.String("key_type", keyType),
		slog.Int("key_version", revoked.Version),
	)
	return nil
}

func (m *masterKeyUseCase) GetLatest(
	ctx context.Context,
	userID, keyType string,
) (*domain.MasterKeyMaterial, error) {
	if err := validateUserID(userID); err != nil {
		return nil, err
	}
	key, err := m.keyRepo.GetActive(ctx, userID, keyTypeOrDefault(keyType))
	if err != nil {
		return nil, err
	}
	return m.unwrap(ctx, key)
}

func (m *masterKeyUseCase) GetByVersion(
	ctx context.Context,
	userID, keyType string,
	version int,
) (*domain.MasterKeyMaterial, error) {
	if err := validateUserID(userID); err != nil {
		return nil, err
	}
	key, err := m.keyRepo.GetByVersion(ctx, userID, keyTypeOrDefault(keyType), version)
	if err != nil {
		return nil, err
	}
	if key.Status == domain.KeyStatusRevoked {
		return nil, domain.ErrKeyRevoked
	}
	return m.unwrap(ctx, key)
}

func (m *masterKeyUseCase) unwrap(ctx context.Context, key *domain.MasterKey) (*domain.MasterKeyMaterial, error) {
	secret, err := m.keeper.Decrypt(ctx, key.WrappedKey)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to unwrap master key")
	}
	return &domain.MasterKeyMaterial{KeyID: key.ID, Version: key.Version, Key: secret}, nil
}

// RotateExpired rotates expired keys with bounded concurrency. A failed rotation is
// counted and logged; it does not stop the sweep.
func (m *masterKeyUseCase) RotateExpired(
	ctx context.Context,
	now time.Time,
	limit int,
) (*domain.RotateExpiredOutput, error) {
	keys, err := m.keyRepo.ListExpired(ctx, now, limit)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list expired master keys")
	}

	var rotated, failed atomic.Int64
	var g errgroup.Group
	g.SetLimit(rotateExpiredConcurrency)

	for _, key := range keys {
		g.Go(func() error {
			out, err := m.Rotate(ctx, &domain.RotateKeyInput{
				UserID:  key.UserID,
				KeyType: key.KeyType,
				Reason:  ReasonExpired,
			})
			if err != nil {
				failed.Add(1)
				m.logger.Error("failed to rotate expired master key",
					slog.String("user_id", key.UserID),
					slog.String("key_id", key.ID.String()),
					slog.Any("error", err),
				)
				return nil
			}
			cryptoDomain.Zero(out.RawKey)
			rotated.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	return &domain.RotateExpiredOutput{Rotated: int(rotated.Load()), Failed: int(failed.Load())}, nil
}
