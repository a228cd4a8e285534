package postgres

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hugopriorizen/Base/internal/repository"
)

const uniqueViolationCode = "23505"

// pgExecutor is satisfied by *pgxpool.Pool, pgx.Tx and pgxmock pools.
type pgExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

// normalize produces the case-insensitive compare key for user names, emails and role names.
func normalize(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

// conflictFromError converts a unique violation into a repository.ConflictError.
func conflictFromError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolationCode {
		return nil
	}

	switch {
	case strings.Contains(pgErr.ConstraintName, "email"):
		return &repository.ConflictError{Field: repository.FieldEmail}
	case strings.Contains(pgErr.ConstraintName, "user_name"):
		return &repository.ConflictError{Field: repository.FieldUserName}
	case strings.Contains(pgErr.ConstraintName, "roles"):
		return &repository.ConflictError{Field: repository.FieldRoleName}
	default:
		return &repository.ConflictError{}
	}
}
