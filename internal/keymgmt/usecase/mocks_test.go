package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/allisson/dormkeys/internal/keymgmt/domain"
	"github.com/allisson/dormkeys/internal/metadata"
	outboxDomain "github.com/allisson/dormkeys/internal/outbox/domain"
)

// MockTxManager runs fn inline unless an error is configured.
type MockTxManager struct {
	mock.Mock
}

func (m *MockTxManager) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	args := m.Called(ctx, fn)
	if args.Get(0) != nil {
		return args.Error(0)
	}
	return fn(ctx)
}

type MockMasterKeyRepository struct {
	mock.Mock
}

func (m *MockMasterKeyRepository) Create(ctx context.Context, key *domain.MasterKey) error {
	return m.Called(ctx, key).Error(0)
}

func (m *MockMasterKeyRepository) GetActive(ctx context.Context, userID, keyType string) (*domain.MasterKey, error) {
	args := m.Called(ctx, userID, keyType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.MasterKey), args.Error(1)
}

func (m *MockMasterKeyRepository) GetActiveForUpdate(
	ctx context.Context,
	userID, keyType string,
) (*domain.MasterKey, error) {
	args := m.Called(ctx, userID, keyType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.MasterKey), args.Error(1)
}

func (m *MockMasterKeyRepository) GetByVersion(
	ctx context.Context,
	userID, keyType string,
	version int,
) (*domain.MasterKey, error) {
	args := m.Called(ctx, userID, keyType, version)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.MasterKey), args.Error(1)
}

func (m *MockMasterKeyRepository) MaxVersion(ctx context.Context, userID, keyType string) (int, error) {
	args := m.Called(ctx, userID, keyType)
	return args.Int(0), args.Error(1)
}

func (m *MockMasterKeyRepository) Transition(
	ctx context.Context,
	id uuid.UUID,
	status domain.KeyStatus,
	meta metadata.Map,
) error {
	return m.Called(ctx, id, status, meta).Error(0)
}

func (m *MockMasterKeyRepository) TouchLastUsed(ctx context.Context, id uuid.UUID, at time.Time) error {
	return m.Called(ctx, id, at).Error(0)
}

func (m *MockMasterKeyRepository) ListExpired(
	ctx context.Context,
	now time.Time,
	limit int,
) ([]*domain.MasterKey, error) {
	args := m.Called(ctx, now, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.MasterKey), args.Error(1)
}

type MockHardwareBindingRepository struct {
	mock.Mock
}

func (m *MockHardwareBindingRepository) Get(
	ctx context.Context,
	userID, fingerprint string,
) (*domain.HardwareBinding, error) {
	args := m.Called(ctx, userID, fingerprint)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.HardwareBinding), args.Error(1)
}

func (m *MockHardwareBindingRepository) GetForUpdate(
	ctx context.Context,
	userID, fingerprint string,
) (*domain.HardwareBinding, error) {
	args := m.Called(ctx, userID, fingerprint)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.HardwareBinding), args.Error(1)
}

func (m *MockHardwareBindingRepository) Create(ctx context.Context, b *domain.HardwareBinding) error {
	return m.Called(ctx, b).Error(0)
}

func (m *MockHardwareBindingRepository) Update(ctx context.Context, b *domain.HardwareBinding) error {
	return m.Called(ctx, b).Error(0)
}

func (m *MockHardwareBindingRepository) TouchLastSeen(ctx context.Context, id uuid.UUID, at time.Time) error {
	return m.Called(ctx, id, at).Error(0)
}

func (m *MockHardwareBindingRepository) Deactivate(ctx context.Context, userID, fingerprint string) error {
	return m.Called(ctx, userID, fingerprint).Error(0)
}

func (m *MockHardwareBindingRepository) ListActive(
	ctx context.Context,
	userID string,
) ([]*domain.HardwareBinding, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.HardwareBinding), args.Error(1)
}

type MockAuditLogRepository struct {
	mock.Mock
}

func (m *MockAuditLogRepository) Create(ctx context.Context, log *domain.AuditLog) error {
	return m.Called(ctx, log).Error(0)
}

func (m *MockAuditLogRepository) ListByUser(
	ctx context.Context,
	userID string,
	limit int,
) ([]*domain.AuditLog, error) {
	args := m.Called(ctx, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.AuditLog), args.Error(1)
}

func (m *MockAuditLogRepository) ListBetween(
	ctx context.Context,
	from, to time.Time,
	offset, limit int,
) ([]*domain.AuditLog, error) {
	args := m.Called(ctx, from, to, offset, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.AuditLog), args.Error(1)
}

type MockOutboxEventRepository struct {
	mock.Mock
}

func (m *MockOutboxEventRepository) Create(ctx context.Context, event *outboxDomain.OutboxEvent) error {
	return m.Called(ctx, event).Error(0)
}

type MockKeyVerifier struct {
	mock.Mock
}

func (m *MockKeyVerifier) NewSecret() ([]byte, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockKeyVerifier) Derive(secret, kdfContext []byte) []byte {
	args := m.Called(secret, kdfContext)
	return args.Get(0).([]byte)
}

func (m *MockKeyVerifier) Matches(userID string, candidate, stored []byte) bool {
	return m.Called(userID, candidate, stored).Bool(0)
}

type MockAuditSigner struct {
	mock.Mock
}

func (m *MockAuditSigner) Sign(log *domain.AuditLog) ([]byte, error) {
	args := m.Called(log)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockAuditSigner) Verify(log *domain.AuditLog) error {
	return m.Called(log).Error(0)
}

func (m *MockAuditSigner) Close() {
	m.Called()
}

type MockKMSKeeper struct {
	mock.Mock
}

func (m *MockKMSKeeper) Encrypt(ctx context.Context, plaintext []byte) ([]byte, error) {
	args := m.Called(ctx, plaintext)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockKMSKeeper) Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error) {
	args := m.Called(ctx, ciphertext)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockKMSKeeper) Close() error {
	return m.Called().Error(0)
}

// MockAuditLogUseCase records appended entries for assertions.
type MockAuditLogUseCase struct {
	mock.Mock
}

func (m *MockAuditLogUseCase) Append(ctx context.Context, entry *domain.AuditLog) {
	m.Called(ctx, entry)
}

func (m *MockAuditLogUseCase) ListByUser(
	ctx context.Context,
	userID string,
	limit int,
) ([]*domain.AuditLog, error) {
	args := m.Called(ctx, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.AuditLog), args.Error(1)
}

func (m *MockAuditLogUseCase) VerifyBatch(
	ctx context.Context,
	from, to time.Time,
) (*domain.VerificationReport, error) {
	args := m.Called(ctx, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.VerificationReport), args.Error(1)
}

type mockBusinessMetrics struct {
	mock.Mock
}

func (m *mockBusinessMetrics) RecordOperation(ctx context.Context, domain, operation, status string) {
	m.Called(ctx, domain, operation, status)
}

func (m *mockBusinessMetrics) RecordDuration(
	ctx context.Context,
	domain, operation string,
	duration time.Duration,
	status string,
) {
	m.Called(ctx, domain, operation, duration, status)
}

// auditAction matches an appended entry by action and outcome.
func auditAction(action domain.AuditAction, success bool) any {
	return mock.MatchedBy(func(entry *domain.AuditLog) bool {
		return entry.Action == action && entry.Success == success
	})
}
