package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/allisson/dormkeys/internal/errors"
	"github.com/allisson/dormkeys/internal/keymgmt/domain"
	keyService "github.com/allisson/dormkeys/internal/keymgmt/service"
)

// Bounds of ListByUser.
const (
	DefaultAuditLogLimit = 50
	MaxAuditLogLimit     = 1000
)

const verifyBatchPageSize = 500

type auditLogUseCase struct {
	auditLogRepo AuditLogRepository
	signer       keyService.AuditSigner
	logger       *slog.Logger
	now          func() time.Time
}

// NewAuditLogUseCase creates an AuditLogUseCase. Rows are stored unsigned when signer is nil.
func NewAuditLogUseCase(
	auditLogRepo AuditLogRepository,
	signer keyService.AuditSigner,
	logger *slog.Logger,
) AuditLogUseCase {
	return &auditLogUseCase{
		auditLogRepo: auditLogRepo,
		signer:       signer,
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Append runs detached from ctx cancellation so an aborted request still leaves its row.
func (a *auditLogUseCase) Append(ctx context.Context, entry *domain.AuditLog) {
	ctx = context.WithoutCancel(ctx)

	if entry.ID == uuid.Nil {
		entry.ID = uuid.Must(uuid.NewV7())
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = a.now()
	}
	// Stores keep microseconds; the signature must cover what is read back.
	entry.CreatedAt = entry.CreatedAt.UTC().Truncate(time.Microsecond)

	if a.signer != nil {
		signature, err := a.signer.Sign(entry)
		if err != nil {
			a.logger.Error("failed to sign audit log",
				slog.String("action", string(entry.Action)),
				slog.String("user_id", entry.UserID),
				slog.Any("error", err),
			)
		} else {
			entry.Signature = signature
		}
	}

	if err := a.auditLogRepo.Create(ctx, entry); err != nil {
		a.logger.Error("failed to write audit log",
			slog.String("action", string(entry.Action)),
			slog.String("user_id", entry.UserID),
			slog.Bool("success", entry.Success),
			slog.Any("error", err),
		)
	}
}

func (a *auditLogUseCase) ListByUser(ctx context.Context, userID string, limit int) ([]*domain.AuditLog, error) {
	if err := validateUserID(userID); err != nil {
		return nil, err
	}
	switch {
	case limit <= 0:
		limit = DefaultAuditLogLimit
	case limit > MaxAuditLogLimit:
		limit = MaxAuditLogLimit
	}

	logs, err := a.auditLogRepo.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list audit logs")
	}
	return logs, nil
}

// VerifyBatch pages through the window in creation order. Unsigned rows are counted
// but not checked.
func (a *auditLogUseCase) VerifyBatch(ctx context.Context, from, to time.Time) (*domain.VerificationReport, error) {
	if a.signer == nil {
		return nil, apperrors.Wrap(apperrors.ErrPreconditionFailed, "no audit signing key configured")
	}
	if to.Before(from) {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "end date is before start date")
	}

	report := &domain.VerificationReport{InvalidLogs: []uuid.UUID{}}
	for offset := 0; ; offset += verifyBatchPageSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		logs, err := a.auditLogRepo.ListBetween(ctx, from, to, offset, verifyBatchPageSize)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to list audit logs")
		}

		for _, log := range logs {
			report.TotalChecked++
			if !log.IsSigned() {
				report.UnsignedCount++
				continue
			}
			report.SignedCount++
			if err := a.signer.Verify(log); err != nil {
				report.InvalidCount++
				report.InvalidLogs = append(report.InvalidLogs, log.ID)
				continue
			}
			report.ValidCount++
		}

		if len(logs) < verifyBatchPageSize {
			return report, nil
		}
	}
}
