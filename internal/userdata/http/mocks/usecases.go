// Package mocks provides a mock DataEncryptionUseCase for testing HTTP handlers
// and CLI commands.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	keyDomain "github.com/allisson/dormkeys/internal/keymgmt/domain"
	"github.com/allisson/dormkeys/internal/userdata/domain"
)

// MockDataEncryptionUseCase is a mock implementation of DataEncryptionUseCase.
type MockDataEncryptionUseCase struct {
	mock.Mock
}

func (m *MockDataEncryptionUseCase) EncryptAndSave(
	ctx context.Context,
	input *domain.EncryptInput,
	masterKey *keyDomain.MasterKeyMaterial,
) (*domain.EncryptOutput, error) {
	args := m.Called(ctx, input, masterKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.EncryptOutput), args.Error(1)
}

func (m *MockDataEncryptionUseCase) DecryptAndRead(
	ctx context.Context,
	userID, dataType, dataID string,
	masterKey *keyDomain.MasterKeyMaterial,
) (*domain.DecryptedData, error) {
	args := m.Called(ctx, userID, dataType, dataID, masterKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.DecryptedData), args.Error(1)
}

func (m *MockDataEncryptionUseCase) DecryptBatch(
	ctx context.Context,
	userID, dataType string,
	masterKey *keyDomain.MasterKeyMaterial,
) (*domain.BatchOutput, error) {
	args := m.Called(ctx, userID, dataType, masterKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.BatchOutput), args.Error(1)
}

func (m *MockDataEncryptionUseCase) Delete(ctx context.Context, userID, dataType, dataID string) (bool, error) {
	args := m.Called(ctx, userID, dataType, dataID)
	return args.Bool(0), args.Error(1)
}

func (m *MockDataEncryptionUseCase) GetStats(ctx context.Context, userID string) (map[string]int64, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]int64), args.Error(1)
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
