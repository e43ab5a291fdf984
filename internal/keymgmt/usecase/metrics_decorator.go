package usecase

import (
	"context"
	"time"

	"github.com/allisson/dormkeys/internal/keymgmt/domain"
	"github.com/allisson/dormkeys/internal/metrics"
)

const metricsDomain = "keymgmt"

func observe(ctx context.Context, m metrics.BusinessMetrics, operation string, start time.Time, err error) {
	status := metrics.Status(err)
	m.RecordOperation(ctx, metricsDomain, operation, status)
	m.RecordDuration(ctx, metricsDomain, operation, time.Since(start), status)
}

// masterKeyUseCaseWithMetrics decorates MasterKeyUseCase with metrics instrumentation.
type masterKeyUseCaseWithMetrics struct {
	next    MasterKeyUseCase
	metrics metrics.BusinessMetrics
}

// NewMasterKeyUseCaseWithMetrics wraps a MasterKeyUseCase with metrics recording.
func NewMasterKeyUseCaseWithMetrics(useCase MasterKeyUseCase, m metrics.BusinessMetrics) MasterKeyUseCase {
	return &masterKeyUseCaseWithMetrics{next: useCase, metrics: m}
}

func (u *masterKeyUseCaseWithMetrics) Generate(
	ctx context.Context,
	input *domain.GenerateKeyInput,
) (*domain.GenerateKeyOutput, error) {
	start := time.Now()
	out, err := u.next.Generate(ctx, input)
	observe(ctx, u.metrics, "master_key_generate", start, err)
	return out, err
}

func (u *masterKeyUseCaseWithMetrics) Verify(
	ctx context.Context,
	input *domain.VerifyKeyInput,
) (*domain.VerifyKeyOutput, error) {
	start := time.Now()
	out, err := u.next.Verify(ctx, input)
	observe(ctx, u.metrics, "master_key_verify", start, err)
	return out, err
}

func (u *masterKeyUseCaseWithMetrics) Rotate(
	ctx context.Context,
	input *domain.RotateKeyInput,
) (*domain.RotateKeyOutput, error) {
	start := time.Now()
	out, err := u.next.Rotate(ctx, input)
	observe(ctx, u.metrics, "master_key_rotate", start, err)
	return out, err
}

func (u *masterKeyUseCaseWithMetrics) Revoke(ctx context.Context, input *domain.RevokeKeyInput) error {
	start := time.Now()
	err := u.next.Revoke(ctx, input)
	observe(ctx, u.metrics, "master_key_revoke", start, err)
	return err
}

func (u *masterKeyUseCaseWithMetrics) GetLatest(
	ctx context.Context,
	userID, keyType string,
) (*domain.MasterKeyMaterial, error) {
	start := time.Now()
	out, err := u.next.GetLatest(ctx, userID, keyType)
	observe(ctx, u.metrics, "master_key_get_latest", start, err)
	return out, err
}

func (u *masterKeyUseCaseWithMetrics) GetByVersion(
	ctx context.Context,
	userID, keyType string,
	version int,
) (*domain.MasterKeyMaterial, error) {
	start := time.Now()
	out, err := u.next.GetByVersion(ctx, userID, keyType, version)
	observe(ctx, u.metrics, "master_key_get_by_version", start, err)
	return out, err
}

func (u *masterKeyUseCaseWithMetrics) RotateExpired(
	ctx context.Context,
	now time.Time,
	limit int,
) (*domain.RotateExpiredOutput, error) {
	start := time.Now()
	out, err := u.next.RotateExpired(ctx, now, limit)
	observe(ctx, u.metrics, "master_key_rotate_expired", start, err)
	return out, err
}

// deviceUseCaseWithMetrics decorates DeviceUseCase with metrics instrumentation.
type deviceUseCaseWithMetrics struct {
	next    DeviceUseCase
	metrics metrics.BusinessMetrics
}

// NewDeviceUseCaseWithMetrics wraps a DeviceUseCase with metrics recording.
func NewDeviceUseCaseWithMetrics(useCase DeviceUseCase, m metrics.BusinessMetrics) DeviceUseCase {
	return &deviceUseCaseWithMetrics{next: useCase, metrics: m}
}

func (u *deviceUseCaseWithMetrics) Register(
	ctx context.Context,
	userID string,
	info *domain.HardwareInfo,
	req domain.RequestInfo,
) (*domain.RegisterDeviceOutput, error) {
	start := time.Now()
	out, err := u.next.Register(ctx, userID, info, req)
	observe(ctx, u.metrics, "device_register", start, err)
	return out, err
}

func (u *deviceUseCaseWithMetrics) Verify(
	ctx context.Context,
	userID string,
	info *domain.HardwareInfo,
	req domain.RequestInfo,
) error {
	start := time.Now()
	err := u.next.Verify(ctx, userID, info, req)
	observe(ctx, u.metrics, "device_verify", start, err)
	return err
}

func (u *deviceUseCaseWithMetrics) Revoke(
	ctx context.Context,
	userID, fingerprint string,
	req domain.RequestInfo,
) error {
	start := time.Now()
	err := u.next.Revoke(ctx, userID, fingerprint, req)
	observe(ctx, u.metrics, "device_revoke", start, err)
	return err
}

func (u *deviceUseCaseWithMetrics) ListTrusted(
	ctx context.Context,
	userID string,
) ([]*domain.HardwareBinding, error) {
	start := time.Now()
	out, err := u.next.ListTrusted(ctx, userID)
	observe(ctx, u.metrics, "device_list", start, err)
	return out, err
}
