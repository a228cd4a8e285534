package usecase

import (
	"context"
	"testing"

	"github.com/hugopriorizen/Base/internal/core/domain"
)

func TestSeeder_SeedIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	seeder := NewSeeder(h.accounts, h.roles, h.credentials, nil)

	cfg := DefaultSeedConfig()
	cfg.AdminPassword = "Adm1n!secret"

	for i := 0; i < 2; i++ {
		if err := seeder.Seed(ctx, cfg); err != nil {
			t.Fatalf("Seed run %d: %v", i, err)
		}
	}

	count, err := h.roles.Count(ctx)
	if err != nil || count != 3 {
		t.Fatalf("expected 3 roles, got %d %v", count, err)
	}

	admin, err := h.accounts.GetByUserName(ctx, "admin")
	if err != nil {
		t.Fatalf("admin not seeded: %v", err)
	}
	if !admin.EmailConfirmed || !admin.IsActive {
		t.Fatalf("unexpected admin state %+v", admin)
	}

	ok, err := h.svc.IsUserInRole(ctx, admin.ID, domain.RoleAdmin)
	if err != nil || !ok {
		t.Fatalf("expected admin role, got %v %v", ok, err)
	}

	accounts, _ := h.svc.CountUsers(ctx, domain.AccountFilter{})
	if accounts != 1 {
		t.Fatalf("expected one account after two runs, got %d", accounts)
	}

	if ok, _ := h.svc.ValidateUser(ctx, "admin", cfg.AdminPassword); !ok {
		t.Fatal("expected seeded admin to log in")
	}
}

func TestSeeder_RejectsWeakAdminPassword(t *testing.T) {
	h := newHarness(t)
	seeder := NewSeeder(h.accounts, h.roles, h.credentials, nil)

	cfg := DefaultSeedConfig()
	cfg.AdminPassword = "admin"
	if err := seeder.Seed(context.Background(), cfg); err == nil {
		t.Fatal("expected weak admin password to be rejected")
	}
}

func TestSeeder_SkipsAdminWithoutPassword(t *testing.T) {
	h := newHarness(t)
	seeder := NewSeeder(h.accounts, h.roles, h.credentials, nil)

	if err := seeder.Seed(context.Background(), DefaultSeedConfig()); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if exists, _ := h.accounts.ExistsByUserName(context.Background(), "admin"); exists {
		t.Fatal("admin must not be created without a password")
	}
}
