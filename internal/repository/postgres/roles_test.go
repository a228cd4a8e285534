package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v2"

	"github.com/hugopriorizen/Base/internal/core/domain"
	"github.com/hugopriorizen/Base/internal/repository"
)

func TestRoleRepository_AssignIgnoresDuplicates(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	at := time.Date(2025, 4, 2, 8, 30, 0, 0, time.UTC)
	repo := NewRoleRepository(mock).WithClock(func() time.Time { return at })

	mock.ExpectExec(`INSERT INTO iam\.account_roles \(account_id,role_id,assigned_at\) VALUES \(\$1,\$2,\$3\),\(\$4,\$5,\$6\) ON CONFLICT DO NOTHING`).
		WithArgs("acc-1", "role-admin", at, "acc-1", "role-user", at).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))

	if err := repo.Assign(context.Background(), "acc-1", []string{"role-admin", "role-user"}); err != nil {
		t.Fatalf("Assign returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRoleRepository_GetByNameNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewRoleRepository(mock)

	mock.ExpectQuery(`SELECT r\.id, r\.name, r\.description FROM iam\.roles r WHERE r\.normalized_name = \$1`).
		WithArgs("auditor").
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "description"}))

	if _, err := repo.GetByName(context.Background(), "Auditor"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRoleRepository_ListNamesByAccount(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewRoleRepository(mock)
	description := "Administrators"

	mock.ExpectQuery(`SELECT r\.id, r\.name, r\.description FROM iam\.roles r JOIN iam\.account_roles ar ON ar\.role_id = r\.id WHERE ar\.account_id = \$1 ORDER BY r\.name ASC`).
		WithArgs("acc-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "description"}).
			AddRow("role-admin", domain.RoleAdmin, description).
			AddRow("role-user", domain.RoleUser, nil))

	names, err := repo.ListNamesByAccount(context.Background(), "acc-1")
	if err != nil {
		t.Fatalf("ListNamesByAccount returned error: %v", err)
	}
	if len(names) != 2 || names[0] != domain.RoleAdmin || names[1] != domain.RoleUser {
		t.Fatalf("unexpected role names: %v", names)
	}
}

func TestRoleRepository_IsAssigned(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewRoleRepository(mock)

	mock.ExpectQuery(`SELECT EXISTS \(\s*SELECT 1 FROM iam\.account_roles ar JOIN iam\.roles r ON r\.id = ar\.role_id WHERE ar\.account_id = \$1 AND r\.normalized_name = \$2\s*\)`).
		WithArgs("acc-1", "manager").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

	assigned, err := repo.IsAssigned(context.Background(), "acc-1", "Manager")
	if err != nil {
		t.Fatalf("IsAssigned returned error: %v", err)
	}
	if assigned {
		t.Fatalf("expected role not to be assigned")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
