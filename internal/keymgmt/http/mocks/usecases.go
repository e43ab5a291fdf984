// Package mocks provides mock implementations of the key management use cases for
// testing HTTP handlers and CLI commands.
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	keyDomain "github.com/allisson/dormkeys/internal/keymgmt/domain"
)

// MockMasterKeyUseCase is a mock implementation of MasterKeyUseCase.
type MockMasterKeyUseCase struct {
	mock.Mock
}

func (m *MockMasterKeyUseCase) Generate(
	ctx context.Context,
	input *keyDomain.GenerateKeyInput,
) (*keyDomain.GenerateKeyOutput, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*keyDomain.GenerateKeyOutput), args.Error(1)
}

func (m *MockMasterKeyUseCase) Verify(
	ctx context.Context,
	input *keyDomain.VerifyKeyInput,
) (*keyDomain.VerifyKeyOutput, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*keyDomain.VerifyKeyOutput), args.Error(1)
}

func (m *MockMasterKeyUseCase) Rotate(
	ctx context.Context,
	input *keyDomain.RotateKeyInput,
) (*keyDomain.RotateKeyOutput, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*keyDomain.RotateKeyOutput), args.Error(1)
}

func (m *MockMasterKeyUseCase) Revoke(ctx context.Context, input *keyDomain.RevokeKeyInput) error {
	return m.Called(ctx, input).Error(0)
}

func (m *MockMasterKeyUseCase) GetLatest(
	ctx context.Context,
	userID, keyType string,
) (*keyDomain.MasterKeyMaterial, error) {
	args := m.Called(ctx, userID, keyType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*keyDomain.MasterKeyMaterial), args.Error(1)
}

func (m *MockMasterKeyUseCase) GetByVersion(
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

func (m *MockMasterKeyUseCase) RotateExpired(
	ctx context.Context,
	now time.Time,
	limit int,
) (*keyDomain.RotateExpiredOutput, error) {
	args := m.Called(ctx, now, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*keyDomain.RotateExpiredOutput), args.Error(1)
}

// MockDeviceUseCase is a mock implementation of DeviceUseCase.
type MockDeviceUseCase struct {
	mock.Mock
}

func (m *MockDeviceUseCase) Register(
	ctx context.Context,
	userID string,
	info *keyDomain.HardwareInfo,
	req keyDomain.RequestInfo,
) (*keyDomain.RegisterDeviceOutput, error) {
	args := m.Called(ctx, userID, info, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*keyDomain.RegisterDeviceOutput), args.Error(1)
}

func (m *MockDeviceUseCase) Verify(
	ctx context.Context,
	userID string,
	info *keyDomain.HardwareInfo,
	req keyDomain.RequestInfo,
) error {
	return m.Called(ctx, userID, info, req).Error(0)
}

func (m *MockDeviceUseCase) Revoke(
	ctx context.Context,
	userID, fingerprint string,
	req keyDomain.RequestInfo,
) error {
	return m.Called(ctx, userID, fingerprint, req).Error(0)
}

func (m *MockDeviceUseCase) ListTrusted(ctx context.Context, userID string) ([]*keyDomain.HardwareBinding, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*keyDomain.HardwareBinding), args.Error(1)
}

// MockAuditLogUseCase is a mock implementation of AuditLogUseCase.
type MockAuditLogUseCase struct {
	mock.Mock
}

func (m *MockAuditLogUseCase) Append(ctx context.Context, entry *keyDomain.AuditLog) {
	m.Called(ctx, entry)
}

func (m *MockAuditLogUseCase) ListByUser(
	ctx context.Context,
	userID string,
	limit int,
) ([]*keyDomain.AuditLog, error) {
	args := m.Called(ctx, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*keyDomain.AuditLog), args.Error(1)
}

func (m *MockAuditLogUseCase) VerifyBatch(
	ctx context.Context,
	from, to time.Time,
) (*keyDomain.VerificationReport, error) {
	args := m.Called(ctx, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*keyDomain.VerificationReport), args.Error(1)
}
