package usecase

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	keyDomain "github.com/allisson/dormkeys/internal/keymgmt/domain"
	"github.com/allisson/dormkeys/internal/userdata/domain"
)

type MockEncryptedDataRepository struct {
	mock.Mock
}

func (m *MockEncryptedDataRepository) Upsert(ctx context.Context, data *domain.EncryptedData) error {
	args := m.Called(ctx, data)
	return args.Error(0)
}

func (m *MockEncryptedDataRepository) Get(
	ctx context.Context,
	userID, dataType, dataID string,
) (*domain.EncryptedData, error) {
	args := m.Called(ctx, userID, dataType, dataID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.EncryptedData), args.Error(1)
}

func (m *MockEncryptedDataRepository) GetLatest(
	ctx context.Context,
	userID, dataType string,
) (*domain.EncryptedData, error) {
	args := m.Called(ctx, userID, dataType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.EncryptedData), args.Error(1)
}

func (m *MockEncryptedDataRepository) ListByType(
	ctx context.Context,
	userID, dataType string,
) ([]*domain.EncryptedData, error) {
	args := m.Called(ctx, userID, dataType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.EncryptedData), args.Error(1)
}

func (m *MockEncryptedDataRepository) ListBelowVersion(
	ctx context.Context,
	userID string,
	version int,
) ([]*domain.EncryptedData, error) {
	args := m.Called(ctx, userID, version)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.EncryptedData), args.Error(1)
}

func (m *MockEncryptedDataRepository) ReplaceEnvelope(
	ctx context.Context,
	data *domain.EncryptedData,
	fromVersion int,
) error {
	args := m.Called(ctx, data, fromVersion)
	return args.Error(0)
}

func (m *MockEncryptedDataRepository) Delete(
	ctx context.Context,
	userID, dataType, dataID string,
) (bool, error) {
	args := m.Called(ctx, userID, dataType, dataID)
	return args.Bool(0), args.Error(1)
}

func (m *MockEncryptedDataRepository) CountByType(ctx context.Context, userID string) (map[string]int64, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]int64), args.Error(1)
}

type MockMasterKeyResolver struct {
	mock.Mock
}

func (m *MockMasterKeyResolver) GetLatest(
	ctx context.Context,
	userID, keyType string,
) (*keyDomain.MasterKeyMaterial, error) {
	args := m.Called(ctx, userID, keyType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*keyDomain.MasterKeyMaterial), args.Error(1)
}

func (m *MockMasterKeyResolver) GetByVersion(
	ctx context.Context,
	userID, keyType string,
	version int,
) (*keyDomain.MasterKeyMaterial, error) {
	args := m.Called(ctx, userID, keyType, version)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*keyDomain.MasterKeyMaterial), args.Error(1)
}

type MockDataEncryptionUseCase struct {
	DataEncryptionUseCase
	mock.Mock
}

func (m *MockDataEncryptionUseCase) ReEncrypt(
	ctx context.Context,
	userID string,
	masterKey *keyDomain.MasterKeyMaterial,
) (*domain.ReEncryptOutput, error) {
	args := m.Called(ctx, userID, masterKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ReEncryptOutput), args.Error(1)
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
