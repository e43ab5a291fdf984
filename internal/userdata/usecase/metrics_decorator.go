package usecase

import (
	"context"
	"time"

	keyDomain "github.com/allisson/dormkeys/internal/keymgmt/domain"
	"github.com/allisson/dormkeys/internal/metrics"
	"github.com/allisson/dormkeys/internal/userdata/domain"
)

const metricsDomain = "userdata"

// dataEncryptionUseCaseWithMetrics decorates DataEncryptionUseCase with metrics instrumentation.
type dataEncryptionUseCaseWithMetrics struct {
	next    DataEncryptionUseCase
	metrics metrics.BusinessMetrics
}

// NewDataEncryptionUseCaseWithMetrics wraps a DataEncryptionUseCase with metrics recording.
func NewDataEncryptionUseCaseWithMetrics(
	useCase DataEncryptionUseCase,
	m metrics.BusinessMetrics,
) DataEncryptionUseCase {
	return &dataEncryptionUseCaseWithMetrics{next: useCase, metrics: m}
}

func (u *dataEncryptionUseCaseWithMetrics) record(ctx context.Context, operation string, start time.Time, err error) {
	status := metrics.Status(err)
	u.metrics.RecordOperation(ctx, metricsDomain, operation, status)
	u.metrics.RecordDuration(ctx, metricsDomain, operation, time.Since(start), status)
}

func (u *dataEncryptionUseCaseWithMetrics) EncryptAndSave(
	ctx context.Context,
	input *domain.EncryptInput,
	masterKey *keyDomain.MasterKeyMaterial,
) (*domain.EncryptOutput, error) {
	start := time.Now()
	out, err := u.next.EncryptAndSave(ctx, input, masterKey)
	u.record(ctx, "data_encrypt", start, err)
	return out, err
}

func (u *dataEncryptionUseCaseWithMetrics) DecryptAndRead(
	ctx context.Context,
	userID, dataType, dataID string,
	masterKey *keyDomain.MasterKeyMaterial,
) (*domain.DecryptedData, error) {
	start := time.Now()
	out, err := u.next.DecryptAndRead(ctx, userID, dataType, dataID, masterKey)
	u.record(ctx, "data_decrypt", start, err)
	return out, err
}

// DecryptBatch counts a batch with failed items as a success; the failures are
// reported per item.
func (u *dataEncryptionUseCaseWithMetrics) DecryptBatch(
	ctx context.Context,
	userID, dataType string,
	masterKey *keyDomain.MasterKeyMaterial,
) (*domain.BatchOutput, error) {
	start := time.Now()
	out, err := u.next.DecryptBatch(ctx, userID, dataType, masterKey)
	u.record(ctx, "data_decrypt_batch", start, err)
	return out, err
}

func (u *dataEncryptionUseCaseWithMetrics) Delete(
	ctx context.Context,
	userID, dataType, dataID string,
) (bool, error) {
	start := time.Now()
	deleted, err := u.next.Delete(ctx, userID, dataType, dataID)
	u.record(ctx, "data_delete", start, err)
	return deleted, err
}

func (u *dataEncryptionUseCaseWithMetrics) GetStats(ctx context.Context, userID string) (map[string]int64, error) {
	start := time.Now()
	stats, err := u.next.GetStats(ctx, userID)
	u.record(ctx, "data_stats", start, err)
	return stats, err
}

func (u *dataEncryptionUseCaseWithMetrics) ReEncrypt(
	ctx context.Context,
	userID string,
	masterKey *keyDomain.MasterKeyMaterial,
) (*domain.ReEncryptOutput, error) {
	start := time.Now()
	out, err := u.next.ReEncrypt(ctx, userID, masterKey)
	u.record(ctx, "data_reencrypt", start, err)
	return out, err
}
