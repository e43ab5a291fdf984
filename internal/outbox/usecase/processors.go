package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/allisson/dormkeys/internal/outbox/domain"
)

// Event type handled by ReEncryptEventProcessor.
const eventKeyRotated = "key.rotated"

const natsFlushTimeout = 5 * time.Second

// NATSPublisher is the subset of *nats.Conn used by NATSEventProcessor.
type NATSPublisher interface {
	PublishMsg(m *nats.Msg) error
	FlushTimeout(timeout time.Duration) error
}

// ConnectNATS dials url with reconnect handling logged through logger.
func ConnectNATS(url string, logger *slog.Logger) (*nats.Conn, error) {
	conn, err := nats.Connect(url,
		nats.Name("dormkeys-outbox"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", slog.Any("error", err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", slog.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return conn, nil
}

// NATSEventProcessor publishes each event to <prefix>.<event type>. The event id is
// sent as Nats-Msg-Id so JetStream streams can drop redeliveries.
type NATSEventProcessor struct {
	publisher     NATSPublisher
	subjectPrefix string
}

// NewNATSEventProcessor creates a new NATSEventProcessor
func NewNATSEventProcessor(publisher NATSPublisher, subjectPrefix string) *NATSEventProcessor {
	return &NATSEventProcessor{publisher: publisher, subjectPrefix: subjectPrefix}
}

// Process publishes and flushes, so a nil return means the server received the message.
func (p *NATSEventProcessor) Process(_ context.Context, event *domain.OutboxEvent) error {
	msg := nats.NewMsg(p.subjectPrefix + "." + event.EventType)
	msg.Header.Set(nats.MsgIdHdr, event.ID.String())
	msg.Data = []byte(event.Payload)

	if err := p.publisher.PublishMsg(msg); err != nil {
		return fmt.Errorf("failed to publish %s: %w", msg.Subject, err)
	}
	return p.publisher.FlushTimeout(natsFlushTimeout)
}

// RotationHandler re-encrypts a user's records under the key that just became active.
type RotationHandler interface {
	HandleRotation(ctx context.Context, userID, keyType string) error
}

// ReEncryptEventProcessor runs the rotation handler for key.rotated events before
// handing every event to next. A failed re-encryption leaves the event pending.
type ReEncryptEventProcessor struct {
	next    EventProcessor
	handler RotationHandler
}

// NewReEncryptEventProcessor creates a new ReEncryptEventProcessor
func NewReEncryptEventProcessor(next EventProcessor, handler RotationHandler) *ReEncryptEventProcessor {
	return &ReEncryptEventProcessor{next: next, handler: handler}
}

// Process implements EventProcessor.
func (p *ReEncryptEventProcessor) Process(ctx context.Context, event *domain.OutboxEvent) error {
	if event.EventType == eventKeyRotated {
		var payload struct {
			UserID  string `json:"user_id"`
			KeyType string `json:"key_type"`
		}
		if err := json.Unmarshal([]byte(event.Payload), &payload); err != nil {
			return err
		}
		if err := p.handler.HandleRotation(ctx, payload.UserID, payload.KeyType); err != nil {
			return fmt.Errorf("failed to re-encrypt records of %s: %w", payload.UserID, err)
		}
	}
	return p.next.Process(ctx, event)
}
