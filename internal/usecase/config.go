package usecase

import (
	"time"

	"github.com/hugopriorizen/Base/internal/core/domain"
	"github.com/hugopriorizen/Base/internal/infra/config"
)

// IdentityConfig is the process-wide identity policy injected at construction.
type IdentityConfig struct {
	Lockout               domain.LockoutPolicy
	DefaultRole           string
	RequireConfirmedEmail bool
	// SendConfirmationOnRegister issues an email confirmation token after registration.
	SendConfirmationOnRegister bool
}

// DefaultIdentityConfig returns five attempts, a five minute lockout and the User default role.
func DefaultIdentityConfig() IdentityConfig {
	return IdentityConfig{
		Lockout: domain.LockoutPolicy{
			MaxFailedAttempts: 5,
			Duration:          5 * time.Minute,
		},
		DefaultRole:                domain.RoleUser,
		SendConfirmationOnRegister: true,
	}
}

// IdentityConfigFromSettings maps loaded settings onto the identity policy.
func IdentityConfigFromSettings(settings config.IdentitySettings) IdentityConfig {
	cfg := DefaultIdentityConfig()
	if settings.Lockout.MaxFailedAttempts > 0 {
		cfg.Lockout.MaxFailedAttempts = settings.Lockout.MaxFailedAttempts
	}
	if settings.Lockout.Duration > 0 {
		cfg.Lockout.Duration = settings.Lockout.Duration
	}
	cfg.DefaultRole = settings.DefaultRole
	cfg.RequireConfirmedEmail = settings.RequireConfirmedEmail
	cfg.SendConfirmationOnRegister = settings.SendConfirmationOnRegister
	return cfg
}
