package usecase

import (
	"context"

	uuid "github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/hugopriorizen/Base/internal/core/domain"
	"github.com/hugopriorizen/Base/internal/infra/logger"
)

func eventMetadata(ctx context.Context) map[string]any {
	metadata := map[string]any{}
	if requestID := logger.RequestIDFromContext(ctx); requestID != "" {
		metadata["request_id"] = requestID
	}
	if spanContext := trace.SpanContextFromContext(ctx); spanContext.HasTraceID() {
		metadata["trace_id"] = spanContext.TraceID().String()
	}
	return metadata
}

func (s *IdentityService) publishRegistered(ctx context.Context, account *domain.Account, roles []string) {
	if s.events == nil {
		return
	}

	event := domain.AccountRegisteredEvent{
		EventID:      uuid.NewString(),
		AccountID:    account.ID,
		UserName:     account.UserName,
		Email:        account.Email,
		Roles:        roles,
		RegisteredAt: account.CreatedAt,
		Metadata:     eventMetadata(ctx),
	}

	if err := s.events.PublishAccountRegistered(ctx, event); err != nil {
		s.logger.Warn("publish account registered event failed", zap.String("account_id", account.ID), zap.Error(err))
	}
}

func (s *IdentityService) publishDeactivated(ctx context.Context, accountID, reason string) {
	if s.events == nil {
		return
	}

	event := domain.AccountDeactivatedEvent{
		EventID:       uuid.NewString(),
		AccountID:     accountID,
		DeactivatedAt: s.now(),
		Reason:        reason,
		Metadata:      eventMetadata(ctx),
	}

	if err := s.events.PublishAccountDeactivated(ctx, event); err != nil {
		s.logger.Warn("publish account deactivated event failed", zap.String("account_id", accountID), zap.Error(err))
	}
}

func (s *IdentityService) publishPasswordChanged(ctx context.Context, accountID, method string) {
	if s.events == nil {
		return
	}

	event := domain.PasswordChangedEvent{
		EventID:   uuid.NewString(),
		AccountID: accountID,
		ChangedAt: s.now(),
		Method:    method,
		Metadata:  eventMetadata(ctx),
	}

	if err := s.events.PublishPasswordChanged(ctx, event); err != nil {
		s.logger.Warn("publish password changed event failed", zap.String("account_id", accountID), zap.Error(err))
	}
}

func (s *IdentityService) publishResetRequested(ctx context.Context, account *domain.Account, token domain.IssuedToken) {
	if s.events == nil {
		return
	}

	event := domain.PasswordResetRequestedEvent{
		EventID:           uuid.NewString(),
		AccountID:         account.ID,
		Email:             account.Email,
		MaskedDestination: logger.MaskEmail(account.Email),
		Token:             token.Value,
		RequestedAt:       s.now(),
		ExpiresAt:         token.ExpiresAt,
		Metadata:          eventMetadata(ctx),
	}

	if err := s.events.PublishPasswordResetRequested(ctx, event); err != nil {
		s.logger.Warn("publish password reset requested event failed", zap.String("account_id", account.ID), zap.Error(err))
	}
}

func (s *IdentityService) publishConfirmationRequested(ctx context.Context, account *domain.Account, token domain.IssuedToken) {
	if s.events == nil {
		return
	}

	event := domain.EmailConfirmationRequestedEvent{
		EventID:     uuid.NewString(),
		AccountID:   account.ID,
		Email:       account.Email,
		Token:       token.Value,
		RequestedAt: s.now(),
		ExpiresAt:   token.ExpiresAt,
		Metadata:    eventMetadata(ctx),
	}

	if err := s.events.PublishEmailConfirmationRequested(ctx, event); err != nil {
		s.logger.Warn("publish email confirmation requested event failed", zap.String("account_id", account.ID), zap.Error(err))
	}
}
