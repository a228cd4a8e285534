package port

import (
	"context"

	"github.com/hugopriorizen/Base/internal/core/domain"
)

// RoleRepository handles roles and their assignment to accounts.
type RoleRepository interface {
	Create(ctx context.Context, role domain.Role) error
	List(ctx context.Context) ([]domain.Role, error)
	GetByID(ctx context.Context, id string) (*domain.Role, error)
	GetByName(ctx context.Context, name string) (*domain.Role, error)
	ExistsByName(ctx context.Context, name string) (bool, error)
	Count(ctx context.Context) (int, error)

	Assign(ctx context.Context, accountID string, roleIDs []string) error
	ListByAccount(ctx context.Context, accountID string) ([]domain.Role, error)
	ListNamesByAccount(ctx context.Context, accountID string) ([]string, error)
	IsAssigned(ctx context.Context, accountID, roleName string) (bool, error)
}
