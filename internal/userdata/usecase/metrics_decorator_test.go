package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	keyDomain "github.com/allisson/dormkeys/internal/keymgmt/domain"
)

func TestDataEncryptionUseCaseWithMetrics(t *testing.T) {
	ctx := context.Background()

	expect := func(m *mockBusinessMetrics, operation, status string) {
		m.On("RecordOperation", ctx, "userdata", operation, status).Return().Once()
		m.On("RecordDuration", ctx, "userdata", operation, mock.AnythingOfType("time.Duration"), status).
			Return().
			Once()
	}

	t.Run("ReEncrypt error", func(t *testing.T) {
		metrics := &mockBusinessMetrics{}
		next := &MockDataEncryptionUseCase{}
		next.On("ReEncrypt", ctx, "42", mock.Anything).Return(nil, keyDomain.ErrNoActiveKey)
		expect(metrics, "data_reencrypt", "rejected")

		_, err := NewDataEncryptionUseCaseWithMetrics(next, metrics).ReEncrypt(ctx, "42", nil)
		assert.ErrorIs(t, err, keyDomain.ErrNoActiveKey)
		metrics.AssertExpectations(t)
	})

	t.Run("Delete success", func(t *testing.T) {
		uc, m := newDataUnderTest(t, DataEncryptionConfig{})
		metrics := &mockBusinessMetrics{}
		m.repo.On("Delete", ctx, "42", "profile", "default").Return(true, nil)
		expect(metrics, "data_delete", "success")

		deleted, err := NewDataEncryptionUseCaseWithMetrics(uc, metrics).Delete(ctx, "42", "profile", "default")
		assert.NoError(t, err)
		assert.True(t, deleted)
		metrics.AssertExpectations(t)
	})
}
