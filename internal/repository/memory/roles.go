package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/hugopriorizen/Base/internal/core/domain"
	"github.com/hugopriorizen/Base/internal/core/port"
	"github.com/hugopriorizen/Base/internal/repository"
)

// RoleRepository keeps roles and assignments in memory.
type RoleRepository struct {
	mu          sync.RWMutex
	roles       map[string]domain.Role
	assignments map[string]map[string]struct{}
}

// NewRoleRepository constructs an empty role store.
func NewRoleRepository() *RoleRepository {
	return &RoleRepository{
		roles:       make(map[string]domain.Role),
		assignments: make(map[string]map[string]struct{}),
	}
}

// Create stores a role. Names are unique case-insensitively.
func (r *RoleRepository) Create(_ context.Context, role domain.Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.roles[role.ID]; ok {
		return &repository.ConflictError{Field: repository.FieldRoleName}
	}
	for _, existing := range r.roles {
		if normalize(existing.Name) == normalize(role.Name) {
			return &repository.ConflictError{Field: repository.FieldRoleName}
		}
	}

	r.roles[role.ID] = role
	return nil
}

func sortRoles(roles []domain.Role) []domain.Role {
	sort.Slice(roles, func(i, j int) bool { return roles[i].Name < roles[j].Name })
	return roles
}

// List returns every role sorted by name.
func (r *RoleRepository) List(_ context.Context) ([]domain.Role, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	roles := make([]domain.Role, 0, len(r.roles))
	for _, role := range r.roles {
		roles = append(roles, role)
	}
	return sortRoles(roles), nil
}

// GetByID retrieves a role by id.
func (r *RoleRepository) GetByID(_ context.Context, id string) (*domain.Role, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	role, ok := r.roles[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &role, nil
}

func (r *RoleRepository) byNameLocked(name string) (domain.Role, bool) {
	key := normalize(name)
	for _, role := range r.roles {
		if normalize(role.Name) == key {
			return role, true
		}
	}
	return domain.Role{}, false
}

// GetByName retrieves a role by case-insensitive name.
func (r *RoleRepository) GetByName(_ context.Context, name string) (*domain.Role, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	role, ok := r.byNameLocked(name)
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &role, nil
}

// ExistsByName reports whether a role with the name exists.
func (r *RoleRepository) ExistsByName(_ context.Context, name string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.byNameLocked(name)
	return ok, nil
}

// Count returns the number of roles.
func (r *RoleRepository) Count(_ context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.roles), nil
}

// Assign links roles to an account. Existing links are kept.
func (r *RoleRepository) Assign(_ context.Context, accountID string, roleIDs []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, roleID := range roleIDs {
		if _, ok := r.roles[roleID]; !ok {
			return repository.ErrNotFound
		}
	}

	held, ok := r.assignments[accountID]
	if !ok {
		held = make(map[string]struct{}, len(roleIDs))
		r.assignments[accountID] = held
	}
	for _, roleID := range roleIDs {
		held[roleID] = struct{}{}
	}
	return nil
}

// ListByAccount returns the roles assigned to an account, sorted by name.
func (r *RoleRepository) ListByAccount(_ context.Context, accountID string) ([]domain.Role, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	held := r.assignments[accountID]
	roles := make([]domain.Role, 0, len(held))
	for roleID := range held {
		if role, ok := r.roles[roleID]; ok {
			roles = append(roles, role)
		}
	}
	return sortRoles(roles), nil
}

// ListNamesByAccount returns the names of the roles assigned to an account.
func (r *RoleRepository) ListNamesByAccount(ctx context.Context, accountID string) ([]string, error) {
	roles, err := r.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(roles))
	for _, role := range roles {
		names = append(names, role.Name)
	}
	return names, nil
}

// IsAssigned reports whether the account holds the named role.
func (r *RoleRepository) IsAssigned(_ context.Context, accountID, roleName string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	role, ok := r.byNameLocked(roleName)
	if !ok {
		return false, nil
	}
	_, held := r.assignments[accountID][role.ID]
	return held, nil
}

func (r *RoleRepository) membersOf(roleName string) map[string]struct{} {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := make(map[string]struct{})
	role, ok := r.byNameLocked(roleName)
	if !ok {
		return members
	}
	for accountID, held := range r.assignments {
		if _, ok := held[role.ID]; ok {
			members[accountID] = struct{}{}
		}
	}
	return members
}

var _ port.RoleRepository = (*RoleRepository)(nil)
