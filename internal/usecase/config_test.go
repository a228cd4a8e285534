package usecase

import (
	"testing"
	"time"

	"github.com/hugopriorizen/Base/internal/infra/config"
)

func TestIdentityConfigFromSettings_KeepsLockoutDefaults(t *testing.T) {
	cfg := IdentityConfigFromSettings(config.IdentitySettings{
		DefaultRole:           "Member",
		RequireConfirmedEmail: true,
	})

	if cfg.Lockout.MaxFailedAttempts != 5 || cfg.Lockout.Duration != 5*time.Minute {
		t.Fatalf("expected default lockout policy, got %+v", cfg.Lockout)
	}
	if cfg.DefaultRole != "Member" || !cfg.RequireConfirmedEmail {
		t.Fatalf("unexpected mapping: %+v", cfg)
	}
	if cfg.SendConfirmationOnRegister {
		t.Fatal("expected confirmation on register to follow settings")
	}
}

func TestIdentityConfigFromSettings_OverridesLockout(t *testing.T) {
	cfg := IdentityConfigFromSettings(config.IdentitySettings{
		Lockout: config.LockoutSettings{MaxFailedAttempts: 3, Duration: time.Minute},
	})

	if cfg.Lockout.MaxFailedAttempts != 3 || cfg.Lockout.Duration != time.Minute {
		t.Fatalf("expected configured lockout policy, got %+v", cfg.Lockout)
	}
}
