// Package usecase implements the key management service: the master key lifecycle,
// hardware bindings and the audit trail that records both.
package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/dormkeys/internal/keymgmt/domain"
	"github.com/allisson/dormkeys/internal/metadata"
	outboxDomain "github.com/allisson/dormkeys/internal/outbox/domain"
)

// MasterKeyRepository defines persistence operations for master keys.
// Implementations must join the transaction carried by ctx.
type MasterKeyRepository interface {
	// Create stores a new key. Returns ErrConflict on a duplicate version or a second active key.
	Create(ctx context.Context, key *domain.MasterKey) error

	// GetActive returns the active key of a user and type. Returns ErrNoActiveKey if none.
	GetActive(ctx context.Context, userID, keyType string) (*domain.MasterKey, error)

	// GetActiveForUpdate is GetActive holding a write lock until the transaction ends.
	GetActiveForUpdate(ctx context.Context, userID, keyType string) (*domain.MasterKey, error)

	// GetByVersion returns a key of any status. Returns ErrMasterKeyNotFound if missing.
	GetByVersion(ctx context.Context, userID, keyType string, version int) (*domain.MasterKey, error)

	// MaxVersion returns the highest version issued, 0 for a new user.
	MaxVersion(ctx context.Context, userID, keyType string) (int, error)

	// Transition moves an active key to another status. Returns ErrRotationConflict
	// when the key is no longer active.
	Transition(ctx context.Context, id uuid.UUID, status domain.KeyStatus, meta metadata.Map) error

	TouchLastUsed(ctx context.Context, id uuid.UUID, at time.Time) error

	// ListExpired returns active keys whose expiry is at or before now.
	ListExpired(ctx context.Context, now time.Time, limit int) ([]*domain.MasterKey, error)
}

// HardwareBindingRepository defines persistence operations for device bindings.
type HardwareBindingRepository interface {
	// Get returns a binding. Returns ErrBindingNotFound if missing.
	Get(ctx context.Context, userID, fingerprint string) (*domain.HardwareBinding, error)

	// GetForUpdate is Get holding a write lock until the transaction ends.
	GetForUpdate(ctx context.Context, userID, fingerprint string) (*domain.HardwareBinding, error)

	Create(ctx context.Context, b *domain.HardwareBinding) error
	Update(ctx context.Context, b *domain.HardwareBinding) error
	TouchLastSeen(ctx context.Context, id uuid.UUID, at time.Time) error

	// Deactivate sets is_active to false. Returns ErrBindingNotFound if missing.
	Deactivate(ctx context.Context, userID, fingerprint string) error

	// ListActive returns active bindings, most recently seen first.
	ListActive(ctx context.Context, userID string) ([]*domain.HardwareBinding, error)
}

// AuditLogRepository defines append-only persistence for audit rows.
type AuditLogRepository interface {
	Create(ctx context.Context, log *domain.AuditLog) error
	ListByUser(ctx context.Context, userID string, limit int) ([]*domain.AuditLog, error)
	ListBetween(ctx context.Context, from, to time.Time, offset, limit int) ([]*domain.AuditLog, error)
}

// OutboxEventRepository stores events in the transaction of the change that produced them.
type OutboxEventRepository interface {
	Create(ctx context.Context, event *outboxDomain.OutboxEvent) error
}

// MasterKeyUseCase manages the per-user master key chain.
type MasterKeyUseCase interface {
	// Generate provisions the first active key of a user. The raw secret is returned
	// once; the store keeps only its verifier and a KMS-wrapped copy.
	//
	// Returns ErrActiveKeyExists if the user already has an active key.
	Generate(ctx context.Context, input *domain.GenerateKeyInput) (*domain.GenerateKeyOutput, error)

	// Verify checks a key proof against the active key in constant time.
	//
	// Returns ErrNoActiveKey or ErrAuthenticationFailed.
	Verify(ctx context.Context, input *domain.VerifyKeyInput) (*domain.VerifyKeyOutput, error)

	// Rotate atomically supersedes the active key with a new version.
	//
	// Returns ErrNoActiveKey, or ErrRotationConflict when a concurrent rotation won.
	Rotate(ctx context.Context, input *domain.RotateKeyInput) (*domain.RotateKeyOutput, error)

	// Revoke disables the active key. Data tagged with a revoked version becomes unreadable
	// and the user must generate again.
	Revoke(ctx context.Context, input *domain.RevokeKeyInput) error

	// GetLatest unwraps the active key for record encryption.
	GetLatest(ctx context.Context, userID, keyType string) (*domain.MasterKeyMaterial, error)

	// GetByVersion unwraps a superseded or active key. Returns ErrKeyRevoked for revoked keys.
	GetByVersion(ctx context.Context, userID, keyType string, version int) (*domain.MasterKeyMaterial, error)

	// RotateExpired rotates up to limit keys whose expiry has passed.
	RotateExpired(ctx context.Context, now time.Time, limit int) (*domain.RotateExpiredOutput, error)
}

// DeviceUseCase manages hardware bindings and their trust scores.
type DeviceUseCase interface {
	// Register creates a binding at the initial trust score, or reinforces an existing one.
	Register(
		ctx context.Context,
		userID string,
		info *domain.HardwareInfo,
		req domain.RequestInfo,
	) (*domain.RegisterDeviceOutput, error)

	// Verify returns nil for a trusted device, or a *domain.DeviceError naming the reason.
	Verify(ctx context.Context, userID string, info *domain.HardwareInfo, req domain.RequestInfo) error

	// Revoke deactivates a binding. Returns ErrBindingNotFound if missing.
	Revoke(ctx context.Context, userID, fingerprint string, req domain.RequestInfo) error

	ListTrusted(ctx context.Context, userID string) ([]*domain.HardwareBinding, error)
}

// AuditLogUseCase is the append-only audit sink.
type AuditLogUseCase interface {
	// Append signs and stores an entry. Failures are logged, never returned.
	Append(ctx context.Context, entry *domain.AuditLog)

	// ListByUser returns the newest entries first. limit is clamped to [1, 1000].
	ListByUser(ctx context.Context, userID string, limit int) ([]*domain.AuditLog, error)

	// VerifyBatch recomputes the signature of every entry created in [from, to].
	VerifyBatch(ctx context.Context, from, to time.Time) (*domain.VerificationReport, error)
}
