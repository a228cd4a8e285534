package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/hugopriorizen/Base/internal/core/domain"
	"github.com/hugopriorizen/Base/internal/core/port"
	"github.com/hugopriorizen/Base/internal/repository"
)

const (
	rolesTable        = "iam.roles"
	accountRolesTable = "iam.account_roles"
)

// RoleRepository implements role persistence operations.
type RoleRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
	now     func() time.Time
}

// NewRoleRepository constructs a PostgreSQL-backed role repository.
func NewRoleRepository(exec pgExecutor) *RoleRepository {
	return &RoleRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the assignment timestamp source.
func (r *RoleRepository) WithClock(now func() time.Time) *RoleRepository {
	if now != nil {
		r.now = now
	}
	return r
}

// Create inserts a new role.
func (r *RoleRepository) Create(ctx context.Context, role domain.Role) error {
	stmt, args, err := r.builder.Insert(rolesTable).
		Columns("id", "name", "normalized_name", "description").
		Values(role.ID, role.Name, normalize(role.Name), role.Description).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert role sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		if conflict := conflictFromError(err); conflict != nil {
			return conflict
		}
		return fmt.Errorf("insert role: %w", err)
	}

	return nil
}

// List retrieves all roles sorted by name.
func (r *RoleRepository) List(ctx context.Context) ([]domain.Role, error) {
	stmt, args, err := r.builder.Select("r.id", "r.name", "r.description").
		From(rolesTable + " r").
		OrderBy("r.name ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list roles sql: %w", err)
	}

	return r.queryRoles(ctx, stmt, args)
}

// GetByID retrieves a role by its ID.
func (r *RoleRepository) GetByID(ctx context.Context, id string) (*domain.Role, error) {
	return r.getOne(ctx, squirrel.Eq{"r.id": id}, "by id")
}

// GetByName retrieves a role by its case-insensitive name.
func (r *RoleRepository) GetByName(ctx context.Context, name string) (*domain.Role, error) {
	return r.getOne(ctx, squirrel.Eq{"r.normalized_name": normalize(name)}, "by name")
}

func (r *RoleRepository) getOne(ctx context.Context, where squirrel.Eq, label string) (*domain.Role, error) {
	stmt, args, err := r.builder.Select("r.id", "r.name", "r.description").
		From(rolesTable + " r").
		Where(where).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select role %s sql: %w", label, err)
	}

	role, err := scanRole(r.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan role %s: %w", label, err)
	}

	return role, nil
}

// ExistsByName reports whether a role with the name exists.
func (r *RoleRepository) ExistsByName(ctx context.Context, name string) (bool, error) {
	stmt, args, err := r.builder.Select("1").
		Prefix("SELECT EXISTS (").
		From(rolesTable).
		Where(squirrel.Eq{"normalized_name": normalize(name)}).
		Suffix(")").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build role exists sql: %w", err)
	}

	var exists bool
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&exists); err != nil {
		return false, fmt.Errorf("scan role exists: %w", err)
	}

	return exists, nil
}

// Count returns the number of roles.
func (r *RoleRepository) Count(ctx context.Context) (int, error) {
	stmt, args, err := r.builder.Select("COUNT(*)").From(rolesTable).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count roles sql: %w", err)
	}

	var count int64
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("scan roles count: %w", err)
	}

	return int(count), nil
}

// Assign links roles to an account, ignoring assignments that already exist.
func (r *RoleRepository) Assign(ctx context.Context, accountID string, roleIDs []string) error {
	if len(roleIDs) == 0 {
		return nil
	}

	assignedAt := r.now()
	builder := r.builder.Insert(accountRolesTable).Columns("account_id", "role_id", "assigned_at")
	for _, roleID := range roleIDs {
		builder = builder.Values(accountID, roleID, assignedAt)
	}

	stmt, args, err := builder.Suffix("ON CONFLICT DO NOTHING").ToSql()
	if err != nil {
		return fmt.Errorf("build assign roles sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("assign roles: %w", err)
	}

	return nil
}

// ListByAccount returns the roles assigned to an account.
func (r *RoleRepository) ListByAccount(ctx context.Context, accountID string) ([]domain.Role, error) {
	stmt, args, err := r.builder.Select("r.id", "r.name", "r.description").
		From(rolesTable + " r").
		Join(accountRolesTable + " ar ON ar.role_id = r.id").
		Where(squirrel.Eq{"ar.account_id": accountID}).
		OrderBy("r.name ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list account roles sql: %w", err)
	}

	return r.queryRoles(ctx, stmt, args)
}

// ListNamesByAccount returns only the role names assigned to an account.
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
func (r *RoleRepository) IsAssigned(ctx context.Context, accountID, roleName string) (bool, error) {
	stmt, args, err := r.builder.Select("1").
		Prefix("SELECT EXISTS (").
		From(accountRolesTable + " ar").
		Join(rolesTable + " r ON r.id = ar.role_id").
		Where(squirrel.Eq{"ar.account_id": accountID, "r.normalized_name": normalize(roleName)}).
		Suffix(")").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build role assigned sql: %w", err)
	}

	var assigned bool
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&assigned); err != nil {
		return false, fmt.Errorf("scan role assigned: %w", err)
	}

	return assigned, nil
}

func (r *RoleRepository) queryRoles(ctx context.Context, stmt string, args []any) ([]domain.Role, error) {
	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query roles: %w", err)
	}
	defer rows.Close()

	roles := make([]domain.Role, 0)
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		roles = append(roles, *role)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate roles: %w", err)
	}

	return roles, nil
}

func scanRole(row rowScanner) (*domain.Role, error) {
	var (
		role        domain.Role
		description sql.NullString
	)

	if err := row.Scan(&role.ID, &role.Name, &description); err != nil {
		return nil, err
	}

	if description.Valid {
		value := description.String
		role.Description = &value
	}

	return &role, nil
}

var _ port.RoleRepository = (*RoleRepository)(nil)
