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
	"github.com/hugopriorizen/Base/internal/repository/lifecycle"
)

const accountsTable = "iam.accounts"

var accountColumns = []string{
	"a.id",
	"a.user_name",
	"a.email",
	"a.password_hash",
	"a.first_name",
	"a.last_name",
	"a.address",
	"a.created_at",
	"a.deleted_at",
	"a.is_active",
	"a.last_login_at",
	"a.email_confirmed",
	"a.security_stamp",
	"a.access_failed_count",
	"a.lockout_end",
}

// AccountRepository implements port.AccountRepository using PostgreSQL.
type AccountRepository struct {
	exec        pgExecutor
	builder     squirrel.StatementBuilderType
	interceptor *lifecycle.Interceptor
}

// NewAccountRepository wires a repository backed by any executor that satisfies pgExecutor.
// Every Create, Update and Delete passes through the interceptor before its statement runs.
func NewAccountRepository(exec pgExecutor, interceptor *lifecycle.Interceptor) *AccountRepository {
	if interceptor == nil {
		interceptor = lifecycle.NewInterceptor()
	}
	return &AccountRepository{
		exec:        exec,
		builder:     squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		interceptor: interceptor,
	}
}

// Create inserts a new account row.
func (r *AccountRepository) Create(ctx context.Context, account *domain.Account) error {
	if account == nil {
		return fmt.Errorf("account is nil")
	}
	r.interceptor.Apply(&lifecycle.Change{Op: lifecycle.OpInsert, Entity: account})

	stmt, args, err := r.builder.Insert(accountsTable).
		Columns(
			"id",
			"user_name",
			"normalized_user_name",
			"email",
			"normalized_email",
			"password_hash",
			"first_name",
			"last_name",
			"address",
			"created_at",
			"deleted_at",
			"is_active",
			"email_confirmed",
			"security_stamp",
			"access_failed_count",
		).
		Values(
			account.ID,
			account.UserName,
			normalize(account.UserName),
			account.Email,
			normalize(account.Email),
			account.PasswordHash,
			account.FirstName,
			account.LastName,
			account.Address,
			account.CreatedAt,
			account.DeletedAt,
			account.IsActive,
			account.EmailConfirmed,
			account.SecurityStamp,
			0,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert account sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		if conflict := conflictFromError(err); conflict != nil {
			return conflict
		}
		return fmt.Errorf("insert account: %w", err)
	}

	return nil
}

// Update persists profile, email and lifecycle changes of an active account. Stamp and
// confirmation columns are left alone unless expectedStamp guards the write, so a concurrent
// stamp rotation is never undone.
func (r *AccountRepository) Update(ctx context.Context, account *domain.Account, expectedStamp string) error {
	if account == nil {
		return fmt.Errorf("account is nil")
	}
	r.interceptor.Apply(&lifecycle.Change{Op: lifecycle.OpUpdate, Entity: account})

	query := r.builder.Update(accountsTable).
		Set("user_name", account.UserName).
		Set("normalized_user_name", normalize(account.UserName)).
		Set("email", account.Email).
		Set("normalized_email", normalize(account.Email)).
		Set("first_name", account.FirstName).
		Set("last_name", account.LastName).
		Set("address", account.Address).
		Set("is_active", account.IsActive).
		Set("deleted_at", account.DeletedAt).
		Where(squirrel.Eq{"id": account.ID, "is_active": true})

	if expectedStamp != "" {
		query = query.
			Set("email_confirmed", account.EmailConfirmed).
			Set("security_stamp", account.SecurityStamp).
			Where(squirrel.Eq{"security_stamp": expectedStamp})
	}

	stmt, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build update account sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		if conflict := conflictFromError(err); conflict != nil {
			return conflict
		}
		return fmt.Errorf("update account: %w", err)
	}

	if ct.RowsAffected() == 0 {
		// a guarded write cannot tell a rotated stamp from a vanished row
		if expectedStamp != "" {
			return repository.ErrStaleStamp
		}
		return repository.ErrNotFound
	}

	return nil
}

// Delete soft-deletes an active account. A second delete reports ErrNotFound and leaves deleted_at untouched.
func (r *AccountRepository) Delete(ctx context.Context, id string) error {
	account := &domain.Account{ID: id, IsActive: true}
	change := &lifecycle.Change{Op: lifecycle.OpDelete, Entity: account}
	r.interceptor.Apply(change)

	stmt, args, err := r.builder.Update(accountsTable).
		Set("is_active", account.IsActive).
		Set("deleted_at", account.DeletedAt).
		Where(squirrel.Eq{"id": id, "is_active": true}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build soft delete account sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("soft delete account: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// GetByID retrieves an account in any lifecycle state.
func (r *AccountRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	return r.getOne(ctx, squirrel.Eq{"a.id": id}, "by id")
}

// GetByEmail retrieves an account by case-insensitive email.
func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	return r.getOne(ctx, squirrel.Eq{"a.normalized_email": normalize(email)}, "by email")
}

// GetByUserName retrieves an account by case-insensitive user name.
func (r *AccountRepository) GetByUserName(ctx context.Context, userName string) (*domain.Account, error) {
	return r.getOne(ctx, squirrel.Eq{"a.normalized_user_name": normalize(userName)}, "by user name")
}

func (r *AccountRepository) getOne(ctx context.Context, where squirrel.Eq, label string) (*domain.Account, error) {
	stmt, args, err := r.builder.Select(accountColumns...).
		From(accountsTable + " a").
		Where(where).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select account %s sql: %w", label, err)
	}

	account, err := scanAccount(r.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan account %s: %w", label, err)
	}

	return account, nil
}

// ExistsByID reports whether an active account has the id.
func (r *AccountRepository) ExistsByID(ctx context.Context, id string) (bool, error) {
	return r.exists(ctx, squirrel.Eq{"id": id})
}

// ExistsByEmail reports whether an active account uses the email.
func (r *AccountRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return r.exists(ctx, squirrel.Eq{"normalized_email": normalize(email)})
}

// ExistsByUserName reports whether an active account uses the user name.
func (r *AccountRepository) ExistsByUserName(ctx context.Context, userName string) (bool, error) {
	return r.exists(ctx, squirrel.Eq{"normalized_user_name": normalize(userName)})
}

func (r *AccountRepository) exists(ctx context.Context, where squirrel.Eq) (bool, error) {
	stmt, args, err := r.builder.Select("1").
		Prefix("SELECT EXISTS (").
		From(accountsTable).
		Where(where).
		Where(squirrel.Eq{"is_active": true}).
		Suffix(")").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build account exists sql: %w", err)
	}

	var exists bool
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&exists); err != nil {
		return false, fmt.Errorf("scan account exists: %w", err)
	}

	return exists, nil
}

// List returns accounts matching the filter, newest first.
func (r *AccountRepository) List(ctx context.Context, filter domain.AccountFilter) ([]domain.Account, error) {
	query := applyAccountFilter(r.builder.Select(accountColumns...).From(accountsTable+" a"), filter).
		OrderBy("a.created_at DESC")

	if filter.Limit > 0 {
		query = query.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		query = query.Offset(uint64(filter.Offset))
	}

	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list accounts sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w", err)
	}
	defer rows.Close()

	accounts := make([]domain.Account, 0)
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, *account)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}

	return accounts, nil
}

// Count returns the number of accounts matching the filter.
func (r *AccountRepository) Count(ctx context.Context, filter domain.AccountFilter) (int, error) {
	stmt, args, err := applyAccountFilter(r.builder.Select("COUNT(*)").From(accountsTable+" a"), filter).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count accounts sql: %w", err)
	}

	var count int64
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("scan accounts count: %w", err)
	}

	return int(count), nil
}

func applyAccountFilter(query squirrel.SelectBuilder, filter domain.AccountFilter) squirrel.SelectBuilder {
	if filter.Role != "" {
		query = query.
			Join("iam.account_roles ar ON ar.account_id = a.id").
			Join("iam.roles r ON r.id = ar.role_id").
			Where(squirrel.Eq{"r.normalized_name": normalize(filter.Role)})
	}

	query = query.Where(squirrel.Eq{"a.is_active": !filter.Inactive})

	if filter.CreatedAfter != nil {
		query = query.Where(squirrel.Gt{"a.created_at": *filter.CreatedAfter})
	}

	return query
}

// UpdateCredentials swaps the password hash and stamp only if the stamp still matches expectedStamp.
func (r *AccountRepository) UpdateCredentials(ctx context.Context, id, expectedStamp, passwordHash, newStamp string) error {
	stmt, args, err := r.builder.Update(accountsTable).
		Set("password_hash", passwordHash).
		Set("security_stamp", newStamp).
		Where(squirrel.Eq{"id": id, "security_stamp": expectedStamp, "is_active": true}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update credentials sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update credentials: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrStaleStamp
	}

	return nil
}

// RotateSecurityStamp replaces the stamp, invalidating every outstanding token.
func (r *AccountRepository) RotateSecurityStamp(ctx context.Context, id, newStamp string) error {
	stmt, args, err := r.builder.Update(accountsTable).
		Set("security_stamp", newStamp).
		Where(squirrel.Eq{"id": id, "is_active": true}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build rotate stamp sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("rotate security stamp: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// MarkEmailConfirmed flags the email as confirmed if the stamp is unchanged.
func (r *AccountRepository) MarkEmailConfirmed(ctx context.Context, id, expectedStamp string) error {
	stmt, args, err := r.builder.Update(accountsTable).
		Set("email_confirmed", true).
		Where(squirrel.Eq{"id": id, "security_stamp": expectedStamp, "is_active": true}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build confirm email sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("confirm email: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrStaleStamp
	}

	return nil
}

// RecordLoginFailure increments the failure counter in a single statement. Reaching the threshold
// opens the lockout window and resets the counter.
func (r *AccountRepository) RecordLoginFailure(ctx context.Context, id string, policy domain.LockoutPolicy, at time.Time) (domain.LockoutState, error) {
	until := at.Add(policy.Duration)

	stmt, args, err := r.builder.Update(accountsTable).
		Set("lockout_end", squirrel.Expr("CASE WHEN access_failed_count + 1 >= ? THEN ?::timestamptz ELSE lockout_end END", policy.MaxFailedAttempts, until)).
		Set("access_failed_count", squirrel.Expr("CASE WHEN access_failed_count + 1 >= ? THEN 0 ELSE access_failed_count + 1 END", policy.MaxFailedAttempts)).
		Where(squirrel.Eq{"id": id, "is_active": true}).
		Suffix("RETURNING access_failed_count, lockout_end").
		ToSql()
	if err != nil {
		return domain.LockoutState{}, fmt.Errorf("build record login failure sql: %w", err)
	}

	var state domain.LockoutState
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&state.AccessFailedCount, &state.LockoutEnd); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.LockoutState{}, repository.ErrNotFound
		}
		return domain.LockoutState{}, fmt.Errorf("record login failure: %w", err)
	}

	return state, nil
}

// RecordLoginSuccess stamps last_login_at and clears lockout state.
func (r *AccountRepository) RecordLoginSuccess(ctx context.Context, id string, at time.Time) error {
	stmt, args, err := r.builder.Update(accountsTable).
		Set("last_login_at", at).
		Set("access_failed_count", 0).
		Set("lockout_end", nil).
		Where(squirrel.Eq{"id": id, "is_active": true}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build record login success sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("record login success: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

func scanAccount(row rowScanner) (*domain.Account, error) {
	var (
		account domain.Account
		address sql.NullString
	)

	if err := row.Scan(
		&account.ID,
		&account.UserName,
		&account.Email,
		&account.PasswordHash,
		&account.FirstName,
		&account.LastName,
		&address,
		&account.CreatedAt,
		&account.DeletedAt,
		&account.IsActive,
		&account.LastLoginAt,
		&account.EmailConfirmed,
		&account.SecurityStamp,
		&account.AccessFailedCount,
		&account.LockoutEnd,
	); err != nil {
		return nil, err
	}

	if address.Valid {
		value := address.String
		account.Address = &value
	}

	return &account, nil
}

var _ port.AccountRepository = (*AccountRepository)(nil)
