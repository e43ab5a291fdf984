package usecase

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/allisson/dormkeys/internal/keymgmt/domain"
	"github.com/allisson/dormkeys/internal/metadata"
	outboxDomain "github.com/allisson/dormkeys/internal/outbox/domain"
)

const maxUserIDLength = 64

func validateUserID(userID string) error {
	if userID == "" || utf8.RuneCountInString(userID) > maxUserIDLength {
		return domain.ErrInvalidUserID
	}
	return nil
}

func keyTypeOrDefault(keyType string) string {
	if keyType == "" {
		return domain.DefaultKeyType
	}
	return keyType
}

// recordEvent stores an outbox event in the transaction carried by ctx.
func recordEvent(
	ctx context.Context,
	repo OutboxEventRepository,
	eventType string,
	payload any,
	now time.Time,
) error {
	event, err := outboxDomain.NewOutboxEvent(eventType, payload, now)
	if err != nil {
		return err
	}
	return repo.Create(ctx, event)
}

// auditEntry builds the row for one call. cause is nil on success.
func auditEntry(
	action domain.AuditAction,
	userID string,
	keyID *uuid.UUID,
	req domain.RequestInfo,
	cause error,
	meta metadata.Map,
) *domain.AuditLog {
	entry := &domain.AuditLog{
		UserID:            userID,
		KeyID:             keyID,
		Action:            action,
		IPAddress:         req.IPAddress,
		UserAgent:         req.UserAgent,
		DeviceFingerprint: req.DeviceFingerprint,
		Success:           cause == nil,
		Metadata:          meta,
	}
	if cause != nil {
		entry.ErrorMessage = cause.Error()
	}
	if req.RequestID != "" {
		entry.Metadata = entry.Metadata.With("request_id", metadata.String(req.RequestID))
	}
	return entry
}

func idPtr(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}
