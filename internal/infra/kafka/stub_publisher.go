package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hugopriorizen/Base/internal/core/domain"
	"github.com/hugopriorizen/Base/internal/core/port"
	"github.com/hugopriorizen/Base/internal/infra/logger"
)

// StubPublisher logs events instead of sending them to Kafka. Useful for development environments.
// Tokens are never written to the log.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	return &StubPublisher{logger: logger}
}

func (p *StubPublisher) logEvent(eventType, accountID string, at time.Time, payload map[string]any) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	p.logger.Info("Stub event published",
		zap.String("event_type", eventType),
		zap.String("account_id", accountID),
		zap.Time("timestamp", at.UTC()),
		zap.Any("payload", payload),
	)
}

// PublishAccountRegistered logs iam.account.registered events.
func (p *StubPublisher) PublishAccountRegistered(_ context.Context, event domain.AccountRegisteredEvent) error {
	p.logEvent(EventAccountRegistered, event.AccountID, event.RegisteredAt, map[string]any{
		"user_name": event.UserName,
		"email":     logger.MaskEmail(event.Email),
		"roles":     event.Roles,
		"metadata":  event.Metadata,
	})
	return nil
}

// PublishAccountDeactivated logs iam.account.deactivated events.
func (p *StubPublisher) PublishAccountDeactivated(_ context.Context, event domain.AccountDeactivatedEvent) error {
	p.logEvent(EventAccountDeactivated, event.AccountID, event.DeactivatedAt, map[string]any{
		"reason":   event.Reason,
		"metadata": event.Metadata,
	})
	return nil
}

// PublishPasswordChanged logs iam.account.password.changed events.
func (p *StubPublisher) PublishPasswordChanged(_ context.Context, event domain.PasswordChangedEvent) error {
	p.logEvent(EventPasswordChanged, event.AccountID, event.ChangedAt, map[string]any{
		"method":   event.Method,
		"metadata": event.Metadata,
	})
	return nil
}

// PublishPasswordResetRequested logs iam.account.password.reset_requested events.
func (p *StubPublisher) PublishPasswordResetRequested(_ context.Context, event domain.PasswordResetRequestedEvent) error {
	p.logEvent(EventPasswordResetRequested, event.AccountID, event.RequestedAt, map[string]any{
		"masked_destination": event.MaskedDestination,
		"expires_at":         event.ExpiresAt,
		"metadata":           event.Metadata,
	})
	return nil
}

// PublishEmailConfirmationRequested logs iam.account.email.confirmation_requested events.
func (p *StubPublisher) PublishEmailConfirmationRequested(_ context.Context, event domain.EmailConfirmationRequestedEvent) error {
	p.logEvent(EventEmailConfirmationRequested, event.AccountID, event.RequestedAt, map[string]any{
		"destination": logger.MaskEmail(event.Email),
		"expires_at":  event.ExpiresAt,
		"metadata":    event.Metadata,
	})
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
