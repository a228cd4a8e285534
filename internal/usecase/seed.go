package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hugopriorizen/Base/internal/core/domain"
	"github.com/hugopriorizen/Base/internal/core/port"
	"github.com/hugopriorizen/Base/internal/repository"
)

// SeedConfig describes the bootstrap roles and administrator account.
type SeedConfig struct {
	Roles         []string
	AdminUserName string
	AdminEmail    string
	AdminPassword string
}

// DefaultSeedConfig returns the Admin, User and Manager roles and the admin account identity.
func DefaultSeedConfig() SeedConfig {
	return SeedConfig{
		Roles:         []string{domain.RoleAdmin, domain.RoleUser, domain.RoleManager},
		AdminUserName: "admin",
		AdminEmail:    "admin@example.com",
	}
}

var roleDescriptions = map[string]string{
	domain.RoleAdmin:   "Administrators manage accounts and roles",
	domain.RoleUser:    "Default role for registered accounts",
	domain.RoleManager: "Managers read account listings",
}

// Seeder creates missing roles and the administrator account. It is idempotent.
type Seeder struct {
	accounts    port.AccountRepository
	roles       port.RoleRepository
	credentials *CredentialService
	logger      *zap.Logger
}

// NewSeeder constructs a seeder.
func NewSeeder(accounts port.AccountRepository, roles port.RoleRepository, credentials *CredentialService, logger *zap.Logger) *Seeder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Seeder{accounts: accounts, roles: roles, credentials: credentials, logger: logger}
}

// Seed creates every configured role that is missing, then the admin account when no account
// holds the admin user name.
func (s *Seeder) Seed(ctx context.Context, cfg SeedConfig) error {
	for _, name := range cfg.Roles {
		if err := s.ensureRole(ctx, name); err != nil {
			return err
		}
	}

	if strings.TrimSpace(cfg.AdminUserName) == "" {
		return nil
	}
	return s.ensureAdmin(ctx, cfg)
}

func (s *Seeder) ensureRole(ctx context.Context, name string) error {
	exists, err := s.roles.ExistsByName(ctx, name)
	if err != nil {
		return fmt.Errorf("check role %s: %w", name, err)
	}
	if exists {
		return nil
	}

	role := domain.Role{ID: uuid.NewString(), Name: name}
	if description, ok := roleDescriptions[name]; ok {
		role.Description = &description
	}

	if err := s.roles.Create(ctx, role); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil
		}
		return fmt.Errorf("create role %s: %w", name, err)
	}

	s.logger.Info("role seeded", zap.String("role", name))
	return nil
}

func (s *Seeder) ensureAdmin(ctx context.Context, cfg SeedConfig) error {
	if _, err := s.accounts.GetByUserName(ctx, cfg.AdminUserName); err == nil {
		return nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("check admin account: %w", err)
	}

	if cfg.AdminPassword == "" {
		s.logger.Warn("admin password not configured; skipping admin seed")
		return nil
	}
	if violations := s.credentials.ValidatePasswordPolicy(cfg.AdminPassword); len(violations) > 0 {
		return fmt.Errorf("admin password rejected: %s", strings.Join(violations, ", "))
	}

	hash, err := s.credentials.Hash(cfg.AdminPassword)
	if err != nil {
		return err
	}

	admin := &domain.Account{
		ID:             uuid.NewString(),
		UserName:       cfg.AdminUserName,
		Email:          cfg.AdminEmail,
		PasswordHash:   hash,
		FirstName:      "System",
		LastName:       "Administrator",
		EmailConfirmed: true,
		SecurityStamp:  s.credentials.NewSecurityStamp(),
	}
	if err := s.accounts.Create(ctx, admin); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil
		}
		return fmt.Errorf("create admin account: %w", err)
	}

	role, err := s.roles.GetByName(ctx, domain.RoleAdmin)
	if err != nil {
		return fmt.Errorf("load admin role: %w", err)
	}
	if err := s.roles.Assign(ctx, admin.ID, []string{role.ID}); err != nil {
		return fmt.Errorf("assign admin role: %w", err)
	}

	s.logger.Info("admin account seeded", zap.String("account_id", admin.ID))
	return nil
}
