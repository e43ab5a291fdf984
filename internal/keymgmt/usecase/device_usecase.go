package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/allisson/dormkeys/internal/database"
	apperrors "github.com/allisson/dormkeys/internal/errors"
	"github.com/allisson/dormkeys/internal/keymgmt/domain"
	keyService "github.com/allisson/dormkeys/internal/keymgmt/service"
	"github.com/allisson/dormkeys/internal/metadata"
)

type deviceUseCase struct {
	txManager   database.TxManager
	bindingRepo HardwareBindingRepository
	outboxRepo  OutboxEventRepository
	auditLog    AuditLogUseCase
	logger      *slog.Logger
	now         func() time.Time
}

// NewDeviceUseCase creates a DeviceUseCase.
func NewDeviceUseCase(
	txManager database.TxManager,
	bindingRepo HardwareBindingRepository,
	outboxRepo OutboxEventRepository,
	auditLog AuditLogUseCase,
	logger *slog.Logger,
) DeviceUseCase {
	return &deviceUseCase{
		txManager:   txManager,
		bindingRepo: bindingRepo,
		outboxRepo:  outboxRepo,
		auditLog:    auditLog,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (d *deviceUseCase) Register(
	ctx context.Context,
	userID string,
	info *domain.HardwareInfo,
	req domain.RequestInfo,
) (*domain.RegisterDeviceOutput, error) {
	if err := validateUserID(userID); err != nil {
		return nil, err
	}
	if info == nil {
		info = &domain.HardwareInfo{}
	}
	fingerprint := keyService.Fingerprint(info)
	req.DeviceFingerprint = fingerprint

	out, err := d.register(ctx, userID, fingerprint, info)
	// Two first registrations of the same device race on the unique index; the
	// loser retries and finds the winner's row.
	if apperrors.Is(err, apperrors.ErrConflict) {
		out, err = d.register(ctx, userID, fingerprint, info)
	}

	var meta metadata.Map
	if out != nil {
		meta = metadata.Map{
			"trust_score": metadata.Number(out.TrustScore.Float()),
			"new_binding": metadata.Bool(out.IsNewBinding),
		}
	}
	d.auditLog.Append(ctx, auditEntry(domain.ActionDeviceRegistered, userID, nil, req, err, meta))
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (d *deviceUseCase) register(
	ctx context.Context,
	userID, fingerprint string,
	info *domain.HardwareInfo,
) (*domain.RegisterDeviceOutput, error) {
	var out *domain.RegisterDeviceOutput
	err := d.txManager.WithTx(ctx, func(ctx context.Context) error {
		now := d.now()
		existing, err := d.bindingRepo.GetForUpdate(ctx, userID, fingerprint)
		switch {
		case apperrors.Is(err, domain.ErrBindingNotFound):
			binding := domain.NewHardwareBinding(userID, fingerprint, info, now)
			if err := d.bindingRepo.Create(ctx, binding); err != nil {
				return err
			}
			out = &domain.RegisterDeviceOutput{
				Success:           true,
				DeviceFingerprint: fingerprint,
				TrustScore:        binding.TrustScore,
				IsNewBinding:      true,
			}
			return nil
		case err != nil:
			return err
		}

		binding := existing.Reinforced(info, now)
		if err := d.bindingRepo.Update(ctx, binding); err != nil {
			return err
		}
		out = &domain.RegisterDeviceOutput{
			Success:           true,
			DeviceFingerprint: fingerprint,
			TrustScore:        binding.TrustScore,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (d *deviceUseCase) Verify(
	ctx context.Context,
	userID string,
	info *domain.HardwareInfo,
	req domain.RequestInfo,
) error {
	if err := validateUserID(userID); err != nil {
		return err
	}
	fingerprint := keyService.Fingerprint(info)
	req.DeviceFingerprint = fingerprint

	binding, err := d.verify(ctx, userID, fingerprint)

	var meta metadata.Map
	if binding != nil {
		meta = metadata.Map{"trust_score": metadata.Number(binding.TrustScore.Float())}
	}
	var deviceErr *domain.DeviceError
	if apperrors.As(err, &deviceErr) {
		meta = meta.With("reason", metadata.String(string(deviceErr.Reason)))
	}
	d.auditLog.Append(ctx, auditEntry(domain.ActionDeviceVerification, userID, nil, req, err, meta))
	return err
}

func (d *deviceUseCase) verify(ctx context.Context, userID, fingerprint string) (*domain.HardwareBinding, error) {
	binding, err := d.bindingRepo.Get(ctx, userID, fingerprint)
	if apperrors.Is(err, domain.ErrBindingNotFound) {
		return nil, domain.ErrUnknownDevice
	}
	if err != nil {
		return nil, err
	}
	if !binding.IsActive {
		return binding, domain.ErrDeviceDisabled
	}
	if binding.TrustScore.IsLow() {
		return binding, domain.ErrLowTrust
	}

	if err := d.bindingRepo.TouchLastSeen(ctx, binding.ID, d.now()); err != nil {
		d.logger.Warn("failed to update device last seen",
			slog.String("binding_id", binding.ID.String()),
			slog.Any("error", err),
		)
	}
	return binding, nil
}

func (d *deviceUseCase) Revoke(
	ctx context.Context,
	userID, fingerprint string,
	req domain.RequestInfo,
) error {
	if err := validateUserID(userID); err != nil {
		return err
	}
	req.DeviceFingerprint = fingerprint

	err := d.txManager.WithTx(ctx, func(ctx context.Context) error {
		if err := d.bindingRepo.Deactivate(ctx, userID, fingerprint); err != nil {
			return err
		}
		return recordEvent(ctx, d.outboxRepo, domain.EventDeviceRevoked, domain.DeviceEventPayload{
			UserID:            userID,
			DeviceFingerprint: fingerprint,
		}, d.now())
	})

	d.auditLog.Append(ctx, auditEntry(domain.ActionDeviceRevoked, userID, nil, req, err, nil))
	return err
}

func (d *deviceUseCase) ListTrusted(ctx context.Context, userID string) ([]*domain.HardwareBinding, error) {
	if err := validateUserID(userID); err != nil {
		return nil, err
	}
	return d.bindingRepo.ListActive(ctx, userID)
}
